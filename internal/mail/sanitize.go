package mail

import "regexp"

var (
	scriptElementRe = regexp.MustCompile(`(?is)<script\b[^>]*>.*?</script\s*>`)
	scriptOpenRe    = regexp.MustCompile(`(?i)<script\b[^>]*>`)
	jsSchemeRe      = regexp.MustCompile(`(?i)javascript\s*:`)
	eventHandlerRe  = regexp.MustCompile(`(?i)(<[^>]*?)\s+on\w+\s*=\s*("[^"]*"|'[^']*'|[^\s>]+)`)
)

// SanitizeHTML strips script elements, javascript: URLs and inline event
// handler attributes from caller-supplied HTML.
func SanitizeHTML(html string) string {
	if html == "" {
		return html
	}
	out := scriptElementRe.ReplaceAllString(html, "")
	out = scriptOpenRe.ReplaceAllString(out, "")
	out = jsSchemeRe.ReplaceAllString(out, "")
	for {
		next := eventHandlerRe.ReplaceAllString(out, "$1")
		if next == out {
			break
		}
		out = next
	}
	return out
}
