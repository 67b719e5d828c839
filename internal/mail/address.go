package mail

import (
	"encoding/json"
	"strings"
)

// AddressList decodes from either a JSON string ("a@x.com, b@x.com") or an
// array of strings.
type AddressList []string

func (l *AddressList) UnmarshalJSON(b []byte) error {
	var single string
	if err := json.Unmarshal(b, &single); err == nil {
		*l = SplitAddresses(single)
		return nil
	}

	var many []string
	if err := json.Unmarshal(b, &many); err != nil {
		return err
	}
	out := make(AddressList, 0, len(many))
	for _, a := range many {
		if a = strings.TrimSpace(a); a != "" {
			out = append(out, a)
		}
	}
	*l = out
	return nil
}

// SplitAddresses splits a comma separated address string, dropping blanks.
func SplitAddresses(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
