package auth

import (
	"crypto/subtle"
	"fmt"
	"strings"
)

// Principal is the authenticated caller. Its ID doubles as the quota identity.
type Principal struct {
	ID    string `json:"id"`
	Tier  string `json:"tier"`
	Admin bool   `json:"admin"`
}

type apiKey struct {
	id     string
	secret string
	tier   string
	hashed bool
}

// KeyStore authenticates static API keys configured as "id:secret[:tier]".
// A secret starting with "$2" is treated as a bcrypt hash.
type KeyStore struct {
	keys        []apiKey
	admins      map[string]bool
	defaultTier string
}

func NewKeyStore(specs, admins []string, defaultTier string) (*KeyStore, error) {
	ks := &KeyStore{admins: make(map[string]bool, len(admins)), defaultTier: defaultTier}
	for _, a := range admins {
		ks.admins[a] = true
	}

	seen := make(map[string]bool, len(specs))
	for _, spec := range specs {
		parts := strings.SplitN(spec, ":", 3)
		if len(parts) < 2 || parts[0] == "" || parts[1] == "" {
			return nil, fmt.Errorf("api key %q must be id:secret[:tier]", parts[0])
		}
		if seen[parts[0]] {
			return nil, fmt.Errorf("duplicate api key id %q", parts[0])
		}
		seen[parts[0]] = true

		k := apiKey{id: parts[0], secret: parts[1], tier: defaultTier, hashed: strings.HasPrefix(parts[1], "$2")}
		if len(parts) == 3 && parts[2] != "" {
			k.tier = parts[2]
		}
		ks.keys = append(ks.keys, k)
	}
	return ks, nil
}

// Enabled reports whether any key is configured.
func (ks *KeyStore) Enabled() bool {
	return len(ks.keys) > 0
}

// Anonymous is the principal used when no keys are configured.
func (ks *KeyStore) Anonymous() *Principal {
	return &Principal{ID: "anonymous", Tier: ks.defaultTier}
}

// Authenticate returns the principal owning token.
func (ks *KeyStore) Authenticate(token string) (*Principal, bool) {
	if token == "" {
		return nil, false
	}
	for _, k := range ks.keys {
		var ok bool
		if k.hashed {
			ok = CompareSecret(k.secret, token) == nil
		} else {
			ok = subtle.ConstantTimeCompare([]byte(k.secret), []byte(token)) == 1
		}
		if ok {
			return &Principal{ID: k.id, Tier: k.tier, Admin: ks.admins[k.id]}, true
		}
	}
	return nil, false
}
