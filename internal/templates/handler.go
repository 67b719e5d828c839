package templates

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/aiox-platform/mailgate/internal/api"
	"github.com/aiox-platform/mailgate/internal/mail"
)

type Handler struct {
	store    *Store
	validate *mail.Validator
}

func NewHandler(store *Store) *Handler {
	return &Handler{
		store:    store,
		validate: mail.NewValidator(),
	}
}

func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	var req CreateTemplateRequest
	if err := api.DecodeJSON(r, &req); err != nil {
		api.HandleError(w, err)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		api.HandleError(w, err)
		return
	}

	tpl, err := h.store.Save(r.Context(), req.ID, req.Content, req.Description)
	if err != nil {
		h.handleError(w, err, "creating template")
		return
	}

	slog.Info("template saved", "template_id", tpl.ID)
	api.JSON(w, http.StatusCreated, tpl)
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	list, err := h.store.List(r.Context())
	if err != nil {
		h.handleError(w, err, "listing templates")
		return
	}
	api.JSON(w, http.StatusOK, list)
}

func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	tpl, err := h.store.Get(r.Context(), chi.URLParam(r, "templateID"))
	if err != nil {
		h.handleError(w, err, "getting template")
		return
	}
	api.JSON(w, http.StatusOK, tpl)
}

func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	var req UpdateTemplateRequest
	if err := api.DecodeJSON(r, &req); err != nil {
		api.HandleError(w, err)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		api.HandleError(w, err)
		return
	}

	tpl, err := h.store.Save(r.Context(), chi.URLParam(r, "templateID"), req.Content, req.Description)
	if err != nil {
		h.handleError(w, err, "updating template")
		return
	}
	api.JSON(w, http.StatusOK, tpl)
}

func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "templateID")
	if err := h.store.Delete(r.Context(), id); err != nil {
		h.handleError(w, err, "deleting template")
		return
	}
	slog.Info("template deleted", "template_id", id)
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleError(w http.ResponseWriter, err error, op string) {
	switch {
	case errors.Is(err, ErrNotFound):
		api.HandleError(w, api.NewNotFoundError("template not found"))
	case errors.Is(err, ErrInvalidContent):
		api.HandleError(w, api.NewValidationError("content: "+err.Error()))
	default:
		slog.Error(op, "error", err)
		api.HandleError(w, api.ErrInternalServer)
	}
}
