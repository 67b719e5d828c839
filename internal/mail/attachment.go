package mail

// AttachmentSpec is a caller-supplied attachment. Exactly where the bytes come
// from is decided by the first non-empty source: content, raw, path, href.
type AttachmentSpec struct {
	Filename    string            `json:"filename,omitempty" validate:"max=255"`
	Content     string            `json:"content,omitempty"`
	Encoding    string            `json:"encoding,omitempty" validate:"omitempty,oneof=base64 utf8 utf-8"`
	Path        string            `json:"path,omitempty"`
	Href        string            `json:"href,omitempty" validate:"omitempty,url"`
	Raw         string            `json:"raw,omitempty"`
	ContentType string            `json:"content_type,omitempty"`
	Disposition string            `json:"content_disposition,omitempty" validate:"omitempty,oneof=attachment inline"`
	CID         string            `json:"cid,omitempty"`
	Headers     map[string]string `json:"headers,omitempty"`
}

// HasSource reports whether the spec names any content source.
func (a AttachmentSpec) HasSource() bool {
	return a.Content != "" || a.Path != "" || a.Href != "" || a.Raw != ""
}
