package auth

import (
	"context"
	"net/http"
	"strings"

	"github.com/aiox-platform/mailgate/internal/api"
)

type contextKey string

const PrincipalKey contextKey = "principal"

// Middleware resolves the caller from "Authorization: Bearer <key>" or
// "X-API-Key". With no keys configured every request is anonymous.
func Middleware(ks *KeyStore) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !ks.Enabled() {
				next.ServeHTTP(w, r.WithContext(WithPrincipal(r.Context(), ks.Anonymous())))
				return
			}

			p, ok := ks.Authenticate(tokenFromRequest(r))
			if !ok {
				api.HandleError(w, api.ErrInvalidAPIKey)
				return
			}

			next.ServeHTTP(w, r.WithContext(WithPrincipal(r.Context(), p)))
		})
	}
}

// RequireAdmin rejects callers whose key is not listed in AUTH_ADMINS.
func RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p := GetPrincipal(r.Context())
		if p == nil {
			api.HandleError(w, api.ErrUnauthorized)
			return
		}
		if !p.Admin {
			api.HandleError(w, api.ErrAdminRequired)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func WithPrincipal(ctx context.Context, p *Principal) context.Context {
	return context.WithValue(ctx, PrincipalKey, p)
}

func GetPrincipal(ctx context.Context) *Principal {
	p, _ := ctx.Value(PrincipalKey).(*Principal)
	return p
}

func tokenFromRequest(r *http.Request) string {
	if key := r.Header.Get("X-API-Key"); key != "" {
		return key
	}
	parts := strings.SplitN(r.Header.Get("Authorization"), " ", 2)
	if len(parts) == 2 && strings.EqualFold(parts[0], "bearer") {
		return strings.TrimSpace(parts[1])
	}
	return ""
}
