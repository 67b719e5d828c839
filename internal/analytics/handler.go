package analytics

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/aiox-platform/mailgate/internal/api"
)

type Handler struct {
	service *Service
}

func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

func (h *Handler) Summary(w http.ResponseWriter, r *http.Request) {
	sum, err := h.service.Summary(r.Context())
	if err != nil {
		h.handleError(w, err)
		return
	}
	api.JSON(w, http.StatusOK, sum)
}

func (h *Handler) Daily(w http.ResponseWriter, r *http.Request) {
	day, err := h.service.Daily(r.Context(), r.URL.Query().Get("date"))
	if err != nil {
		h.handleError(w, err)
		return
	}
	api.JSON(w, http.StatusOK, day)
}

func (h *Handler) Weekly(w http.ResponseWriter, r *http.Request) {
	p, err := h.service.Weekly(r.Context())
	if err != nil {
		h.handleError(w, err)
		return
	}
	api.JSON(w, http.StatusOK, p)
}

func (h *Handler) Monthly(w http.ResponseWriter, r *http.Request) {
	p, err := h.service.Monthly(r.Context())
	if err != nil {
		h.handleError(w, err)
		return
	}
	api.JSON(w, http.StatusOK, p)
}

func (h *Handler) Range(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	p, err := h.service.Range(r.Context(), q.Get("start"), q.Get("end"))
	if err != nil {
		h.handleError(w, err)
		return
	}
	api.JSON(w, http.StatusOK, p)
}

type resetResponse struct {
	Deleted int `json:"deleted"`
}

func (h *Handler) Reset(w http.ResponseWriter, r *http.Request) {
	n, err := h.service.Reset(r.Context())
	if err != nil {
		h.handleError(w, err)
		return
	}
	slog.Info("analytics reset", "deleted", n)
	api.JSON(w, http.StatusOK, resetResponse{Deleted: n})
}

func (h *Handler) handleError(w http.ResponseWriter, err error) {
	if errors.Is(err, ErrInvalidRange) {
		api.HandleError(w, api.NewBadRequestError(err.Error()))
		return
	}
	slog.Error("analytics", "error", err)
	api.HandleError(w, api.ErrInternalServer)
}
