// Package handlers contains the HTTP handlers of krushakd. Each session owns
// one workflow.Controller; every route below /v1/sessions/{id} operates on
// that controller and answers with its current snapshot.
package handlers

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"krushak/internal/aggregate"
	"krushak/internal/core"
	"krushak/internal/types"
	"krushak/internal/workflow"
)

type ctxKey struct{}

// SessionHandler exposes workflow sessions over HTTP.
type SessionHandler struct {
	store     *SessionStore
	validator *core.Validator
	logger    *slog.Logger
}

// NewSessionHandler creates a SessionHandler. A nil validator gets a default
// one.
func NewSessionHandler(store *SessionStore, val *core.Validator, logger *slog.Logger) *SessionHandler {
	if logger == nil {
		logger = slog.Default()
	}
	if val == nil {
		val = core.NewValidator(logger)
	}
	return &SessionHandler{store: store, validator: val, logger: logger}
}

// RegisterRoutes mounts the session endpoints under /sessions.
func (h *SessionHandler) RegisterRoutes(r chi.Router) {
	r.Route("/sessions", func(r chi.Router) {
		r.Post("/", h.HandleCreate)
		r.Route("/{id}", func(r chi.Router) {
			r.Use(h.withSession)
			r.Get("/", h.HandleGet)
			r.Delete("/", h.HandleDelete)
			r.Put("/fields/{field}", h.HandleSetField)
			r.Put("/language", h.HandleSetLanguage)
			r.Post("/weather", h.HandleFetchWeather)
			r.Post("/predictions", h.HandleSubmitPrediction)
			r.Get("/confidence", h.HandleConfidence)
			r.Post("/reports/{format}", h.HandleExportReport)
			r.Post("/reset", h.HandleReset)
		})
	})
}

// sessionResponse is the body returned by most session routes.
type sessionResponse struct {
	ID       string            `json:"id"`
	Snapshot workflow.Snapshot `json:"snapshot"`
}

type fieldRequest struct {
	// Value is the raw form input. An empty string clears the field.
	Value *string `json:"value" validate:"required"`
}

type languageRequest struct {
	Language string `json:"language" validate:"required"`
}

type weatherRequest struct {
	City string   `json:"city" validate:"max=100"`
	Lat  *float64 `json:"lat" validate:"omitempty,latitude"`
	Lon  *float64 `json:"lon" validate:"omitempty,longitude"`
}

type confidenceResponse struct {
	Confidence []aggregate.Confidence `json:"confidence"`
	Consensus  *aggregate.Vote        `json:"consensus,omitempty"`
}

// withSession resolves {id} to a controller and stores it in the context.
func (h *SessionHandler) withSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		c, err := h.store.Get(id)
		if err != nil {
			core.Error(w, r, err)
			return
		}
		ctx := types.WithSessionID(r.Context(), id)
		ctx = context.WithValue(ctx, ctxKey{}, c)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func controllerFrom(r *http.Request) *workflow.Controller {
	c, _ := r.Context().Value(ctxKey{}).(*workflow.Controller)
	return c
}

func (h *SessionHandler) respond(w http.ResponseWriter, r *http.Request, status int, snap workflow.Snapshot) {
	core.JSON(w, r, status, core.APIResponse{Data: sessionResponse{
		ID:       types.GetSessionID(r.Context()),
		Snapshot: snap,
	}})
}

// HandleCreate handles POST /v1/sessions.
func (h *SessionHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	id, c := h.store.Create()
	h.logger.InfoContext(r.Context(), "session created", "session_id", id)
	r = r.WithContext(types.WithSessionID(r.Context(), id))
	h.respond(w, r, http.StatusCreated, c.Snapshot())
}

// HandleGet handles GET /v1/sessions/{id}.
func (h *SessionHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	h.respond(w, r, http.StatusOK, controllerFrom(r).Snapshot())
}

// HandleDelete handles DELETE /v1/sessions/{id}. Calls still in flight for
// the session are invalidated.
func (h *SessionHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	id := types.GetSessionID(r.Context())
	h.store.Delete(id)
	h.logger.InfoContext(r.Context(), "session deleted", "session_id", id)
	w.WriteHeader(http.StatusNoContent)
}

// HandleSetField handles PUT /v1/sessions/{id}/fields/{field}.
func (h *SessionHandler) HandleSetField(w http.ResponseWriter, r *http.Request) {
	var req fieldRequest
	if !h.decode(w, r, &req) {
		return
	}
	c := controllerFrom(r)
	if err := c.SetField(chi.URLParam(r, "field"), *req.Value); err != nil {
		core.Error(w, r, err)
		return
	}
	h.respond(w, r, http.StatusOK, c.Snapshot())
}

// HandleSetLanguage handles PUT /v1/sessions/{id}/language. Unsupported codes
// fall back to English; the snapshot shows the language in effect.
func (h *SessionHandler) HandleSetLanguage(w http.ResponseWriter, r *http.Request) {
	var req languageRequest
	if !h.decode(w, r, &req) {
		return
	}
	c := controllerFrom(r)
	c.SetLanguage(req.Language)
	h.respond(w, r, http.StatusOK, c.Snapshot())
}

// HandleFetchWeather handles POST /v1/sessions/{id}/weather. The body names
// either a city or a lat/lon pair.
func (h *SessionHandler) HandleFetchWeather(w http.ResponseWriter, r *http.Request) {
	var req weatherRequest
	if !h.decode(w, r, &req) {
		return
	}
	c := controllerFrom(r)

	var (
		snap workflow.Snapshot
		err  error
	)
	switch {
	case req.Lat != nil && req.Lon != nil:
		snap, err = c.FetchWeatherAt(r.Context(), *req.Lat, *req.Lon)
	case req.Lat != nil || req.Lon != nil:
		err = types.NewValidationError(types.ErrCodeValidationCoordinates, "lat",
			"lat and lon must be given together")
	default:
		snap, err = c.FetchWeather(r.Context(), req.City)
	}
	if err != nil {
		core.Error(w, r, err)
		return
	}
	h.respond(w, r, http.StatusOK, snap)
}

// HandleSubmitPrediction handles POST /v1/sessions/{id}/predictions.
func (h *SessionHandler) HandleSubmitPrediction(w http.ResponseWriter, r *http.Request) {
	snap, err := controllerFrom(r).SubmitPrediction(r.Context())
	if err != nil {
		core.Error(w, r, err)
		return
	}
	h.respond(w, r, http.StatusOK, snap)
}

// HandleConfidence handles GET /v1/sessions/{id}/confidence. With
// ?sort=desc the entries are ranked by confidence; otherwise they keep the
// order the models were reported in.
func (h *SessionHandler) HandleConfidence(w http.ResponseWriter, r *http.Request) {
	snap := controllerFrom(r).Snapshot()

	resp := confidenceResponse{Confidence: snap.Confidence}
	switch sort := r.URL.Query().Get("sort"); sort {
	case "", "none":
	case "desc":
		resp.Confidence = aggregate.Ranked(snap.Confidence)
	default:
		core.Error(w, r, types.NewValidationError(types.ErrCodeValidationOutOfSet, "sort",
			"sort must be one of: none, desc"))
		return
	}
	if resp.Confidence == nil {
		resp.Confidence = []aggregate.Confidence{}
	}
	if vote, ok := aggregate.Consensus(snap.Predictions); ok {
		resp.Consensus = &vote
	}
	core.OK(w, r, resp)
}

// HandleExportReport handles POST /v1/sessions/{id}/reports/{format} and
// streams the generated document.
func (h *SessionHandler) HandleExportReport(w http.ResponseWriter, r *http.Request) {
	format := types.ReportFormat(chi.URLParam(r, "format"))
	doc, err := controllerFrom(r).ExportReport(r.Context(), format)
	if err != nil {
		core.Error(w, r, err)
		return
	}
	if doc == nil {
		core.Error(w, r, types.NewAppError(types.ErrCodeConflictSuperseded,
			"the session was reset while the report was being generated", nil))
		return
	}
	h.logger.InfoContext(r.Context(), "report exported",
		"session_id", types.GetSessionID(r.Context()),
		"format", doc.Format, "bytes", len(doc.Data))
	core.Attachment(w, doc.ContentType, doc.Filename, doc.Data)
}

// HandleReset handles POST /v1/sessions/{id}/reset.
func (h *SessionHandler) HandleReset(w http.ResponseWriter, r *http.Request) {
	c := controllerFrom(r)
	c.Reset()
	h.respond(w, r, http.StatusOK, c.Snapshot())
}

// decode reads and validates a JSON body, writing the error response itself
// when it fails.
func (h *SessionHandler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := core.DecodeJSON(w, r, dst); err != nil {
		core.Error(w, r, err)
		return false
	}
	if err := h.validator.ValidateStruct(dst); err != nil {
		core.Error(w, r, err)
		return false
	}
	return true
}
