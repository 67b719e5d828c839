package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewKeyStore(t *testing.T) {
	tests := []struct {
		name    string
		specs   []string
		wantErr bool
	}{
		{"valid", []string{"svc:secret:premium", "cli:other"}, false},
		{"missing secret", []string{"svc:"}, true},
		{"missing colon", []string{"svc"}, true},
		{"duplicate id", []string{"svc:a", "svc:b"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewKeyStore(tt.specs, nil, "free")
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestKeyStore_Authenticate(t *testing.T) {
	hash, err := HashSecret("hashed-secret")
	require.NoError(t, err)

	ks, err := NewKeyStore([]string{"svc:plain-secret:premium", "ops:" + hash, "cli:x"}, []string{"ops"}, "free")
	require.NoError(t, err)

	p, ok := ks.Authenticate("plain-secret")
	require.True(t, ok)
	assert.Equal(t, &Principal{ID: "svc", Tier: "premium"}, p)

	p, ok = ks.Authenticate("hashed-secret")
	require.True(t, ok)
	assert.Equal(t, &Principal{ID: "ops", Tier: "free", Admin: true}, p)

	_, ok = ks.Authenticate("nope")
	assert.False(t, ok)
	_, ok = ks.Authenticate("")
	assert.False(t, ok)
}

func TestMiddleware(t *testing.T) {
	ks, err := NewKeyStore([]string{"svc:s3cret:premium"}, nil, "free")
	require.NoError(t, err)

	var seen *Principal
	handler := Middleware(ks)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = GetPrincipal(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	tests := []struct {
		name       string
		header     string
		value      string
		wantStatus int
	}{
		{"bearer", "Authorization", "Bearer s3cret", http.StatusOK},
		{"x-api-key", "X-API-Key", "s3cret", http.StatusOK},
		{"wrong key", "Authorization", "Bearer wrong", http.StatusUnauthorized},
		{"missing", "", "", http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			seen = nil
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.header != "" {
				req.Header.Set(tt.header, tt.value)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			assert.Equal(t, tt.wantStatus, rec.Code)
			if tt.wantStatus == http.StatusOK {
				require.NotNil(t, seen)
				assert.Equal(t, "svc", seen.ID)
			}
		})
	}
}

func TestMiddleware_AnonymousWhenNoKeys(t *testing.T) {
	ks, err := NewKeyStore(nil, nil, "free")
	require.NoError(t, err)

	var seen *Principal
	handler := Middleware(ks)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = GetPrincipal(r.Context())
	}))

	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	require.NotNil(t, seen)
	assert.Equal(t, &Principal{ID: "anonymous", Tier: "free"}, seen)
}

func TestRequireAdmin(t *testing.T) {
	handler := RequireAdmin(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	tests := []struct {
		name       string
		principal  *Principal
		wantStatus int
	}{
		{"no principal", nil, http.StatusUnauthorized},
		{"not admin", &Principal{ID: "svc"}, http.StatusForbidden},
		{"admin", &Principal{ID: "ops", Admin: true}, http.StatusNoContent},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodDelete, "/", nil)
			if tt.principal != nil {
				req = req.WithContext(WithPrincipal(req.Context(), tt.principal))
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)
			assert.Equal(t, tt.wantStatus, rec.Code)
		})
	}
}
