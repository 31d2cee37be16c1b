package draft

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"injury-report/internal/auth"
	"injury-report/internal/injury"
	"injury-report/internal/platform/graph"
)

type Handler struct {
	svc    Service
	logger *zap.Logger
}

func NewHandler(svc Service, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{svc: svc, logger: logger}
}

func (h *Handler) CreateDraft(w http.ResponseWriter, r *http.Request) {
	d, err := h.svc.Create(r.Context())
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, d)
}

func (h *Handler) GetDraft(w http.ResponseWriter, r *http.Request) {
	id, ok := draftID(w, r)
	if !ok {
		return
	}
	d, err := h.svc.Get(r.Context(), id)
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

func (h *Handler) DeleteDraft(w http.ResponseWriter, r *http.Request) {
	id, ok := draftID(w, r)
	if !ok {
		return
	}
	if err := h.svc.Delete(r.Context(), id); err != nil {
		h.fail(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) UpdateSection(w http.ResponseWriter, r *http.Request) {
	id, ok := draftID(w, r)
	if !ok {
		return
	}
	raw, err := io.ReadAll(io.LimitReader(r.Body, 10<<20))
	if err != nil || !json.Valid(raw) {
		writeError(w, http.StatusBadRequest, "Invalid request")
		return
	}
	d, err := h.svc.UpdateSection(r.Context(), id, chi.URLParam(r, "section"), raw)
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

func (h *Handler) Preview(w http.ResponseWriter, r *http.Request) {
	var form injury.FormState
	if err := json.NewDecoder(r.Body).Decode(&form); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request")
		return
	}
	writeJSON(w, http.StatusOK, h.svc.Preview(form))
}

func (h *Handler) SaveDraft(w http.ResponseWriter, r *http.Request) {
	id, ok := draftID(w, r)
	if !ok {
		return
	}
	res, err := h.svc.Save(r.Context(), id, tokens(r))
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *Handler) SubmitDraft(w http.ResponseWriter, r *http.Request) {
	id, ok := draftID(w, r)
	if !ok {
		return
	}
	res, err := h.svc.Submit(r.Context(), id, tokens(r))
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *Handler) ListReports(w http.ResponseWriter, r *http.Request) {
	reports, err := h.svc.ListReports(r.Context(), tokens(r))
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, reports)
}

func (h *Handler) GetReport(w http.ResponseWriter, r *http.Request) {
	view, err := h.svc.GetReport(r.Context(), chi.URLParam(r, "itemID"), tokens(r))
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (h *Handler) DeleteReport(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.DeleteReport(r.Context(), chi.URLParam(r, "itemID"), tokens(r)); err != nil {
		h.fail(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) OpenReport(w http.ResponseWriter, r *http.Request) {
	res, err := h.svc.Open(r.Context(), chi.URLParam(r, "itemID"), tokens(r))
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

func (h *Handler) ReportPDF(w http.ResponseWriter, r *http.Request) {
	itemID := chi.URLParam(r, "itemID")
	data, err := h.svc.ReportPDF(r.Context(), itemID, tokens(r))
	if err != nil {
		h.fail(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", "injury_report_"+itemID+".pdf"))
	_, _ = w.Write(data)
}

// fail maps service errors to responses. Record store failures surface as
// a generic save error; the detail goes to the log.
func (h *Handler) fail(w http.ResponseWriter, err error) {
	var apiErr *graph.APIError
	switch {
	case errors.Is(err, ErrNotFound), errors.Is(err, graph.ErrNotFound):
		writeError(w, http.StatusNotFound, "Not found")
	case errors.Is(err, ErrDraftBusy):
		writeError(w, http.StatusConflict, "This report is already being saved")
	case errors.Is(err, auth.ErrUnauthenticated):
		writeError(w, http.StatusUnauthorized, "Please sign in to save your report")
	case errors.Is(err, ErrUnknownSection), errors.Is(err, ErrInvalidSection):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.As(err, &apiErr), errors.Is(err, graph.ErrListNotFound):
		h.logger.Error("record store error", zap.Error(err))
		writeError(w, http.StatusBadGateway, "Unable to save your report, please try again")
	default:
		h.logger.Error("request failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Internal error")
	}
}

func draftID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid draft ID")
		return uuid.Nil, false
	}
	return id, true
}

func tokens(r *http.Request) auth.TokenSource {
	ts, ok := auth.FromContext(r.Context())
	if !ok {
		return auth.StaticToken("")
	}
	return ts
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// RegisterRoutes mounts the draft and report endpoints. Endpoints that reach
// the record store sit behind auth.Middleware.
func RegisterRoutes(r chi.Router, h *Handler) {
	r.Post("/drafts", h.CreateDraft)
	r.Get("/drafts/{id}", h.GetDraft)
	r.Delete("/drafts/{id}", h.DeleteDraft)
	r.Put("/drafts/{id}/{section}", h.UpdateSection)
	r.Post("/preview", h.Preview)

	r.Group(func(r chi.Router) {
		r.Use(auth.Middleware)
		r.Post("/drafts/{id}/save", h.SaveDraft)
		r.Post("/drafts/{id}/submit", h.SubmitDraft)
		r.Get("/reports", h.ListReports)
		r.Get("/reports/{itemID}", h.GetReport)
		r.Delete("/reports/{itemID}", h.DeleteReport)
		r.Post("/reports/{itemID}/open", h.OpenReport)
		r.Get("/reports/{itemID}/pdf", h.ReportPDF)
	})
}
