// Package attachment resolves caller-supplied attachment specs into bytes.
package attachment

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/aiox-platform/mailgate/internal/config"
	"github.com/aiox-platform/mailgate/internal/mail"
)

var (
	ErrLocalPathsDisabled = errors.New("local file attachments are disabled (set ATTACHMENTS_ALLOW_LOCAL_PATHS=true)")
	ErrS3NotConfigured    = errors.New("s3 attachments are not configured")
	ErrTooLarge           = errors.New("attachment exceeds the size limit")
)

type s3API interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

type Loader struct {
	allowLocal bool
	maxBytes   int64
	http       *http.Client
	s3         s3API
}

type Option func(*Loader)

// WithS3 enables s3://bucket/key hrefs.
func WithS3(client s3API) Option {
	return func(l *Loader) { l.s3 = client }
}

// WithHTTPClient replaces the client used for http(s) hrefs.
func WithHTTPClient(c *http.Client) Option {
	return func(l *Loader) { l.http = c }
}

func NewLoader(cfg config.AttachmentConfig, opts ...Option) *Loader {
	timeout := cfg.FetchTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	l := &Loader{
		allowLocal: cfg.AllowLocalPaths,
		maxBytes:   cfg.MaxBytes,
		http:       &http.Client{Timeout: timeout},
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// NewS3Client builds an S3 client from the default AWS credential chain.
func NewS3Client(ctx context.Context, region string) (*s3.Client, error) {
	if region == "" {
		region = "us-east-1"
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("loading AWS config: %w", err)
	}
	return s3.NewFromConfig(awsCfg), nil
}

// Load resolves every spec. Any failure is reported as a validation error
// naming the offending attachment.
func (l *Loader) Load(ctx context.Context, specs []mail.AttachmentSpec) ([]mail.Attachment, error) {
	if len(specs) == 0 {
		return nil, nil
	}
	out := make([]mail.Attachment, 0, len(specs))
	var problems []string
	for i, spec := range specs {
		a, err := l.load(ctx, i, spec)
		if err != nil {
			problems = append(problems, fmt.Sprintf("attachments[%d]: %v", i, err))
			continue
		}
		out = append(out, a)
	}
	if len(problems) > 0 {
		return nil, mail.NewValidationError(problems...)
	}
	return out, nil
}

func (l *Loader) load(ctx context.Context, i int, spec mail.AttachmentSpec) (mail.Attachment, error) {
	a := mail.Attachment{
		Filename:    spec.Filename,
		ContentType: spec.ContentType,
		Disposition: spec.Disposition,
		CID:         spec.CID,
		Headers:     spec.Headers,
	}

	var (
		data     []byte
		fallback string
		err      error
	)
	switch {
	case spec.Content != "":
		data, err = decodeContent(spec.Content, spec.Encoding)
	case spec.Raw != "":
		data = []byte(spec.Raw)
	case spec.Path != "":
		fallback = filepath.Base(spec.Path)
		data, err = l.readFile(spec.Path)
	case spec.Href != "":
		var detected string
		data, fallback, detected, err = l.fetch(ctx, spec.Href)
		if a.ContentType == "" {
			a.ContentType = detected
		}
	default:
		return a, errors.New("attachment must have content, path, href, or raw data")
	}
	if err != nil {
		return a, err
	}
	if l.maxBytes > 0 && int64(len(data)) > l.maxBytes {
		return a, fmt.Errorf("%w of %d bytes", ErrTooLarge, l.maxBytes)
	}

	if a.Filename == "" {
		a.Filename = fallback
	}
	if a.Filename == "" || a.Filename == "." || a.Filename == "/" {
		a.Filename = fmt.Sprintf("attachment-%d", i+1)
	}
	if a.ContentType == "" {
		a.ContentType = mime.TypeByExtension(filepath.Ext(a.Filename))
	}
	a.Data = data
	return a, nil
}

func decodeContent(content, encoding string) ([]byte, error) {
	if !strings.EqualFold(encoding, "base64") {
		return []byte(content), nil
	}
	cleaned := strings.Map(func(r rune) rune {
		switch r {
		case '\n', '\r', ' ', '\t':
			return -1
		}
		return r
	}, content)
	data, err := base64.StdEncoding.DecodeString(cleaned)
	if err != nil {
		return nil, fmt.Errorf("invalid base64 content: %w", err)
	}
	return data, nil
}

func (l *Loader) readFile(p string) ([]byte, error) {
	if !l.allowLocal {
		return nil, ErrLocalPathsDisabled
	}
	f, err := os.Open(p)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", filepath.Base(p), err)
	}
	defer f.Close()
	return l.readCapped(f)
}

func (l *Loader) fetch(ctx context.Context, href string) (data []byte, name, contentType string, err error) {
	u, err := url.Parse(href)
	if err != nil {
		return nil, "", "", fmt.Errorf("invalid href: %w", err)
	}
	name = path.Base(u.Path)

	switch u.Scheme {
	case "http", "https":
		data, contentType, err = l.fetchHTTP(ctx, u.String())
	case "s3":
		data, contentType, err = l.fetchS3(ctx, u.Host, strings.TrimPrefix(u.Path, "/"))
	default:
		err = fmt.Errorf("unsupported href scheme %q", u.Scheme)
	}
	return data, name, contentType, err
}

func (l *Loader) fetchHTTP(ctx context.Context, href string) ([]byte, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, href, nil)
	if err != nil {
		return nil, "", err
	}
	resp, err := l.http.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("fetching attachment: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, "", fmt.Errorf("fetching attachment: unexpected status %d", resp.StatusCode)
	}
	data, err := l.readCapped(resp.Body)
	if err != nil {
		return nil, "", err
	}
	return data, resp.Header.Get("Content-Type"), nil
}

func (l *Loader) fetchS3(ctx context.Context, bucket, key string) ([]byte, string, error) {
	if l.s3 == nil {
		return nil, "", ErrS3NotConfigured
	}
	if bucket == "" || key == "" {
		return nil, "", errors.New("s3 href must be s3://bucket/key")
	}
	out, err := l.s3.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, "", fmt.Errorf("downloading from s3: %w", err)
	}
	defer out.Body.Close()

	data, err := l.readCapped(out.Body)
	if err != nil {
		return nil, "", err
	}
	return data, aws.ToString(out.ContentType), nil
}

func (l *Loader) readCapped(r io.Reader) ([]byte, error) {
	if l.maxBytes <= 0 {
		return io.ReadAll(r)
	}
	data, err := io.ReadAll(io.LimitReader(r, l.maxBytes+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > l.maxBytes {
		return nil, fmt.Errorf("%w of %d bytes", ErrTooLarge, l.maxBytes)
	}
	return data, nil
}
