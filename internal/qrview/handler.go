package qrview

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"net/http"

	"github.com/sundayezeilo/qrhistory/internal/errx"
	"github.com/sundayezeilo/qrhistory/internal/httpx"
	"github.com/sundayezeilo/qrhistory/internal/qrapi"
	"github.com/sundayezeilo/qrhistory/internal/qrsync"
)

// Downloader fetches a record's QR image. *qrapi.Client implements it.
type Downloader interface {
	DownloadImage(ctx context.Context, rec qrapi.Record, w io.Writer) (int64, error)
}

// LinkRequest is the JSON body of draft and create requests.
type LinkRequest struct {
	Link string `json:"link"`
}

// CreateRequest is the JSON body of a create request. A nil Link means the
// stored draft is submitted.
type CreateRequest struct {
	Link *string `json:"link"`
}

// CreateResponse is returned by a successful create.
type CreateResponse struct {
	Record RecordView `json:"record"`
	State  View       `json:"state"`
}

// Handler serves the controller state as a JSON API.
type Handler struct {
	controller qrsync.Controller
	presenter  *Presenter
	images     Downloader
	logger     *slog.Logger
}

// HandlerConfig holds configuration for the handler.
type HandlerConfig struct {
	Controller qrsync.Controller
	Presenter  *Presenter
	Images     Downloader
	Logger     *slog.Logger
}

// NewHandler creates a new Handler instance.
func NewHandler(cfg HandlerConfig) *Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	presenter := cfg.Presenter
	if presenter == nil {
		presenter = NewPresenter(PresenterConfig{})
	}

	return &Handler{
		controller: cfg.Controller,
		presenter:  presenter,
		images:     cfg.Images,
		logger:     logger,
	}
}

// Register adds the handler's routes to mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/state", h.GetState)
	mux.HandleFunc("POST /api/refresh", h.Refresh)
	mux.HandleFunc("PUT /api/draft", h.SetDraft)
	mux.HandleFunc("POST /api/records", h.CreateRecord)
	mux.HandleFunc("DELETE /api/records/{id}", h.DeleteRecord)
	mux.HandleFunc("GET /api/records/{id}/image", h.DownloadImage)
	mux.HandleFunc("DELETE /api/alerts/error", h.DismissError)
	mux.HandleFunc("DELETE /api/alerts/success", h.DismissSuccess)
}

// GetState writes the current view.
func (h *Handler) GetState(w http.ResponseWriter, r *http.Request) {
	h.writeView(w, http.StatusOK)
}

// Refresh reloads the collection from the API.
func (h *Handler) Refresh(w http.ResponseWriter, r *http.Request) {
	if err := h.controller.Refresh(r.Context()); err != nil {
		h.handleError(r, w, err, "refresh failed")
		return
	}
	h.writeView(w, http.StatusOK)
}

// SetDraft stores the link being typed.
func (h *Handler) SetDraft(w http.ResponseWriter, r *http.Request) {
	req, err := httpx.DecodeJSON[LinkRequest](r)
	if err != nil {
		h.requestLogger(r).WarnContext(r.Context(), "failed to decode request", "error", err.Error())
		httpx.WriteError(w, http.StatusBadRequest, "invalid_request", err.Error(), nil)
		return
	}

	h.controller.SetDraft(req.Link)
	h.writeView(w, http.StatusOK)
}

// CreateRecord creates a record from the body link, or from the draft when the
// body is empty or has no link field. A blank link is rejected, never
// replaced by the draft.
func (h *Handler) CreateRecord(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := h.requestLogger(r)

	req, err := httpx.DecodeOptionalJSON[CreateRequest](r)
	if err != nil {
		logger.WarnContext(ctx, "failed to decode request", "error", err.Error())
		httpx.WriteError(w, http.StatusBadRequest, "invalid_request", err.Error(), nil)
		return
	}

	var rec qrapi.Record
	if req.Link == nil {
		rec, err = h.controller.Submit(ctx)
	} else {
		rec, err = h.controller.CreateRecord(ctx, *req.Link)
	}
	if err != nil {
		h.handleError(r, w, err, "create failed")
		return
	}

	logger.InfoContext(ctx, "record created",
		"record_id", rec.ID.String(),
		"link", rec.Link,
	)

	httpx.WriteJSON(w, http.StatusCreated, CreateResponse{
		Record: h.presenter.record(rec),
		State:  h.presenter.Build(h.controller.State()),
	})
}

// DeleteRecord removes a record. The mirror drops it before the API answers
// and gets it back if the API refuses.
func (h *Handler) DeleteRecord(w http.ResponseWriter, r *http.Request) {
	id := qrapi.ID(r.PathValue("id"))

	if err := h.controller.DeleteRecord(r.Context(), id); err != nil {
		h.handleError(r, w, err, "delete failed")
		return
	}

	h.requestLogger(r).InfoContext(r.Context(), "record deleted", "record_id", id.String())
	h.writeView(w, http.StatusOK)
}

// DownloadImage proxies the record's QR image as an attachment.
func (h *Handler) DownloadImage(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := qrapi.ID(r.PathValue("id"))

	rec, ok := findRecord(h.controller.State().Records, id)
	if !ok {
		httpx.WriteError(w, http.StatusNotFound, "not_found", "no record with this id", nil)
		return
	}
	if h.images == nil {
		httpx.WriteError(w, http.StatusNotImplemented, "not_implemented", "image download is not configured", nil)
		return
	}

	var buf bytes.Buffer
	if _, err := h.images.DownloadImage(ctx, rec, &buf); err != nil {
		h.handleError(r, w, err, "image download failed")
		return
	}

	httpx.SetAttachment(w, http.DetectContentType(buf.Bytes()), DownloadName(h.presenter.now()))
	w.WriteHeader(http.StatusOK)
	if _, err := buf.WriteTo(w); err != nil {
		h.requestLogger(r).WarnContext(ctx, "failed to write image", "error", err.Error())
	}
}

// DismissError clears the error message.
func (h *Handler) DismissError(w http.ResponseWriter, r *http.Request) {
	h.controller.DismissError()
	h.writeView(w, http.StatusOK)
}

// DismissSuccess clears the success message.
func (h *Handler) DismissSuccess(w http.ResponseWriter, r *http.Request) {
	h.controller.DismissSuccess()
	h.writeView(w, http.StatusOK)
}

func (h *Handler) writeView(w http.ResponseWriter, status int) {
	httpx.WriteJSON(w, status, h.presenter.Build(h.controller.State()))
}

// handleError writes err mapped from its kind. The current view travels in
// details so clients can render a rollback without another round trip.
func (h *Handler) handleError(r *http.Request, w http.ResponseWriter, err error, msg string) {
	kind := errx.KindOf(err)

	logAttrs := []any{
		"error", err.Error(),
		"error_kind", kind.String(),
		"operation", errx.OpOf(err),
	}

	logger := h.requestLogger(r)
	switch kind {
	case errx.Invalid, errx.Validation:
		logger.WarnContext(r.Context(), msg, logAttrs...)
	default:
		logger.ErrorContext(r.Context(), msg, logAttrs...)
	}

	httpx.WriteError(w,
		httpx.ErrorKindToStatus(kind),
		httpx.ErrorKindToCode(kind),
		qrsync.UserMessage(err),
		h.presenter.Build(h.controller.State()),
	)
}

func (h *Handler) requestLogger(r *http.Request) *slog.Logger {
	return h.logger.With(
		"request_id", httpx.GetRequestID(r.Context()),
		"method", r.Method,
		"path", r.URL.Path,
	)
}

func findRecord(recs []qrapi.Record, id qrapi.ID) (qrapi.Record, bool) {
	for _, rec := range recs {
		if rec.ID == id {
			return rec, true
		}
	}
	return qrapi.Record{}, false
}
