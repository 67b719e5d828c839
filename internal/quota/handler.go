package quota

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/aiox-platform/mailgate/internal/api"
	"github.com/aiox-platform/mailgate/internal/auth"
)

type Handler struct {
	tracker *Tracker
}

func NewHandler(tracker *Tracker) *Handler {
	return &Handler{tracker: tracker}
}

// Get returns the calling identity's remaining allowance.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	p := auth.GetPrincipal(r.Context())
	if p == nil {
		api.HandleError(w, api.ErrUnauthorized)
		return
	}

	rem, err := h.tracker.Remaining(r.Context(), Identity{ID: p.ID, Tier: p.Tier})
	if err != nil {
		slog.Error("reading quota", "identity", p.ID, "error", err)
		api.HandleError(w, api.ErrInternalServer)
		return
	}
	api.JSON(w, http.StatusOK, rem)
}

type usageResponse struct {
	Identity string     `json:"identity"`
	Usage    UsageStats `json:"usage"`
}

// GetUsage returns the raw stored counters for any identity.
func (h *Handler) GetUsage(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "identity")
	stats, err := h.tracker.Usage(r.Context(), id)
	if err != nil {
		h.handleError(w, err, id)
		return
	}
	api.JSON(w, http.StatusOK, usageResponse{Identity: id, Usage: stats})
}

// Reset zeroes the counters for an identity.
func (h *Handler) Reset(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "identity")
	if err := h.tracker.ResetUsage(r.Context(), id); err != nil {
		h.handleError(w, err, id)
		return
	}
	if p := auth.GetPrincipal(r.Context()); p != nil {
		slog.Info("quota reset", "identity", id, "by", p.ID)
	}
	api.JSONMessage(w, http.StatusOK, "usage reset")
}

func (h *Handler) handleError(w http.ResponseWriter, err error, id string) {
	if errors.Is(err, ErrEmptyIdentity) {
		api.HandleError(w, api.NewBadRequestError(err.Error()))
		return
	}
	slog.Error("quota storage", "identity", id, "error", err)
	api.HandleError(w, api.ErrInternalServer)
}
