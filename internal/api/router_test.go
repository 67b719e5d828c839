package api_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aiox-platform/mailgate/internal/api"
)

type pinger struct{ err error }

func (p pinger) Ping(context.Context) error { return p.err }

func ok(name string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		api.JSON(w, http.StatusOK, name)
	}
}

func passthrough(next http.Handler) http.Handler { return next }

func denyAll(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		api.HandleError(w, api.ErrAdminRequired)
	})
}

func handlers() api.HandlerSet {
	return api.HandlerSet{
		SendEmail:        ok("send"),
		SendTemplate:     ok("template"),
		SendPremium:      ok("premium"),
		SendBulk:         ok("bulk"),
		ListTemplates:    ok("list-templates"),
		CreateTemplate:   ok("create-template"),
		GetTemplate:      ok("get-template"),
		UpdateTemplate:   ok("update-template"),
		DeleteTemplate:   ok("delete-template"),
		AnalyticsSummary: ok("summary"),
		AnalyticsDaily:   ok("daily"),
		AnalyticsWeekly:  ok("weekly"),
		AnalyticsMonthly: ok("monthly"),
		AnalyticsRange:   ok("range"),
		ResetAnalytics:   ok("reset-analytics"),
		GetQuota:         ok("quota"),
		GetUsage:         ok("usage"),
		ResetUsage:       ok("reset-usage"),
		AuthMiddleware:   passthrough,
		AdminMiddleware:  denyAll,
	}
}

func serve(t *testing.T, h http.Handler, method, path string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(method, path, nil))
	var body map[string]any
	if rec.Body.Len() > 0 && rec.Header().Get("Content-Type") == "application/json" {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	}
	return rec, body
}

func TestRouter_Routes(t *testing.T) {
	r := api.NewRouter(api.RouterConfig{Store: pinger{}}, handlers())

	tests := []struct {
		method string
		path   string
		want   string
	}{
		{http.MethodPost, "/api/v1/emails", "send"},
		{http.MethodPost, "/api/v1/emails/template", "template"},
		{http.MethodPost, "/api/v1/emails/premium", "premium"},
		{http.MethodPost, "/api/v1/emails/bulk", "bulk"},
		{http.MethodGet, "/api/v1/templates", "list-templates"},
		{http.MethodPut, "/api/v1/templates/welcome", "update-template"},
		{http.MethodGet, "/api/v1/analytics/range", "range"},
		{http.MethodGet, "/api/v1/quota", "quota"},
	}
	for _, tt := range tests {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			rec, body := serve(t, r, tt.method, tt.path)
			require.Equal(t, http.StatusOK, rec.Code)
			assert.Equal(t, tt.want, body["data"])
			assert.NotEmpty(t, rec.Header().Get("X-Content-Type-Options"))
		})
	}
}

func TestRouter_AdminRoutesGated(t *testing.T) {
	r := api.NewRouter(api.RouterConfig{}, handlers())

	for _, tt := range []struct{ method, path string }{
		{http.MethodGet, "/api/v1/quota/svc"},
		{http.MethodDelete, "/api/v1/quota/svc"},
		{http.MethodDelete, "/api/v1/analytics"},
	} {
		rec, _ := serve(t, r, tt.method, tt.path)
		assert.Equal(t, http.StatusForbidden, rec.Code, tt.method+" "+tt.path)
	}
}

func TestRouter_Health(t *testing.T) {
	r := api.NewRouter(api.RouterConfig{
		Store:         pinger{},
		TransportInfo: "SMTP (smtp.example.com:587)",
	}, handlers())

	rec, body := serve(t, r, http.MethodGet, "/health/live")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "alive", body["data"].(map[string]any)["status"])

	rec, body = serve(t, r, http.MethodGet, "/health")
	require.Equal(t, http.StatusOK, rec.Code)
	data := body["data"].(map[string]any)
	assert.Equal(t, "healthy", data["status"])
	assert.Equal(t, "not configured", data["nats"])
	assert.Equal(t, "SMTP (smtp.example.com:587)", data["transport"])
}

func TestRouter_ReadinessDegraded(t *testing.T) {
	r := api.NewRouter(api.RouterConfig{
		Store:       pinger{err: errors.New("connection refused")},
		NATSHealthy: func() bool { return false },
	}, handlers())

	rec, body := serve(t, r, http.MethodGet, "/health/ready")
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	data := body["data"].(map[string]any)
	assert.Equal(t, "degraded", data["status"])
	assert.Equal(t, "unhealthy", data["store"])
	assert.Equal(t, "unhealthy", data["nats"])
}

func TestRouter_Config(t *testing.T) {
	r := api.NewRouter(api.RouterConfig{Config: map[string]any{"default_sender": "noreply@example.com"}}, handlers())

	rec, body := serve(t, r, http.MethodGet, "/config")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "noreply@example.com", body["data"].(map[string]any)["default_sender"])
}

func TestRouter_Metrics(t *testing.T) {
	r := api.NewRouter(api.RouterConfig{}, handlers())
	serve(t, r, http.MethodGet, "/health/live")
	rec, _ := serve(t, r, http.MethodGet, "/metrics")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "mailgate_http_requests_total")
}
