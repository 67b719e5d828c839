package mail

import "strings"

// RedactAddress masks an email address for logging.
// "john.doe@example.com" → "jo***@example.com"
func RedactAddress(addr string) string {
	local, domain, ok := strings.Cut(addr, "@")
	if !ok || domain == "" {
		return "***@***"
	}
	if len(local) > 2 {
		return local[:2] + "***@" + domain
	}
	return "***@" + domain
}

// RedactAddresses masks every address in list.
func RedactAddresses(list []string) []string {
	out := make([]string, len(list))
	for i, a := range list {
		out[i] = RedactAddress(a)
	}
	return out
}
