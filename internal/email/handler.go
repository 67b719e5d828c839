package email

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/aiox-platform/mailgate/internal/api"
	"github.com/aiox-platform/mailgate/internal/auth"
	"github.com/aiox-platform/mailgate/internal/mail"
	"github.com/aiox-platform/mailgate/internal/quota"
	"github.com/aiox-platform/mailgate/internal/templates"
)

type Handler struct {
	service *Service
}

func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

func (h *Handler) Send(w http.ResponseWriter, r *http.Request) {
	id, ok := identity(w, r)
	if !ok {
		return
	}
	var req SendRequest
	if err := api.DecodeJSON(r, &req); err != nil {
		api.HandleError(w, err)
		return
	}

	res, err := h.service.Send(r.Context(), id, req)
	if err != nil {
		handleError(w, err, id)
		return
	}
	api.JSON(w, http.StatusOK, res)
}

func (h *Handler) SendTemplate(w http.ResponseWriter, r *http.Request) {
	id, ok := identity(w, r)
	if !ok {
		return
	}
	var req TemplateSendRequest
	if err := api.DecodeJSON(r, &req); err != nil {
		api.HandleError(w, err)
		return
	}

	res, err := h.service.SendTemplate(r.Context(), id, req)
	if err != nil {
		handleError(w, err, id)
		return
	}
	api.JSON(w, http.StatusOK, res)
}

func (h *Handler) SendPremium(w http.ResponseWriter, r *http.Request) {
	id, ok := identity(w, r)
	if !ok {
		return
	}
	var req PremiumRequest
	if err := api.DecodeJSON(r, &req); err != nil {
		api.HandleError(w, err)
		return
	}

	res, err := h.service.SendPremium(r.Context(), id, req)
	if err != nil {
		handleError(w, err, id)
		return
	}
	api.JSON(w, http.StatusOK, res)
}

// SendBulk answers 200 even when some recipients failed; the outcome list
// carries the per-recipient result.
func (h *Handler) SendBulk(w http.ResponseWriter, r *http.Request) {
	id, ok := identity(w, r)
	if !ok {
		return
	}
	var req BulkRequest
	if err := api.DecodeJSON(r, &req); err != nil {
		api.HandleError(w, err)
		return
	}

	res, err := h.service.SendBulk(r.Context(), id, req)
	if err != nil {
		handleError(w, err, id)
		return
	}
	api.JSON(w, http.StatusOK, res)
}

func identity(w http.ResponseWriter, r *http.Request) (quota.Identity, bool) {
	p := auth.GetPrincipal(r.Context())
	if p == nil {
		api.HandleError(w, api.ErrUnauthorized)
		return quota.Identity{}, false
	}
	return quota.Identity{ID: p.ID, Tier: p.Tier}, true
}

func handleError(w http.ResponseWriter, err error, id quota.Identity) {
	var (
		verr  *mail.ValidationError
		qerr  *QuotaExceededError
		sendE *SendError
	)
	switch {
	case errors.As(err, &verr):
		api.HandleError(w, verr)
	case errors.As(err, &qerr):
		api.HandleError(w, api.NewQuotaExceededError(qerr.Decision.Reason, qerr.Decision.ResetTime))
	case errors.Is(err, ErrPremiumRequired):
		api.HandleError(w, api.ErrPremiumRequired)
	case errors.Is(err, templates.ErrNotFound):
		api.HandleError(w, api.NewNotFoundError(err.Error()))
	case errors.As(err, &sendE):
		api.HandleError(w, api.NewSendFailedError(sendE.Err.Error()))
	default:
		slog.Error("email request", "identity", id.ID, "error", err)
		api.HandleError(w, api.ErrInternalServer)
	}
}
