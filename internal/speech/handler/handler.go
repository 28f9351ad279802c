// Package handler exposes the streaming recognizer over REST.
package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/voicetyped/streamasr/internal/runtime"
	"github.com/voicetyped/streamasr/internal/speech/recognizer"
	"github.com/voicetyped/streamasr/internal/speech/registry"
	"github.com/voicetyped/streamasr/pkg/events"
)

const (
	maxRequestBodySize  = 1 << 20 // 1 MiB
	maxFeaturesBodySize = 16 << 20
)

// Handler provides REST endpoints for streaming recognition.
type Handler struct {
	scheduler *runtime.Scheduler
	publisher *events.Publisher
}

// NewHandler creates a handler serving the scheduler's streams. publisher
// feeds the websocket event route and may be nil.
func NewHandler(scheduler *runtime.Scheduler, publisher *events.Publisher) *Handler {
	return &Handler{scheduler: scheduler, publisher: publisher}
}

// RegisterRoutes registers all stream routes on the given mux.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/v1/streams", h.CreateStream)
	mux.HandleFunc("POST /api/v1/streams/{id}/features", h.AcceptFeatures)
	mux.HandleFunc("GET /api/v1/streams/{id}/result", h.GetResult)
	mux.HandleFunc("POST /api/v1/streams/{id}/reset", h.Reset)
	mux.HandleFunc("DELETE /api/v1/streams/{id}", h.DeleteStream)
	mux.HandleFunc("GET /api/v1/streams/{id}/events", h.StreamEvents)
	mux.HandleFunc("GET /api/v1/decoders", h.ListDecoders)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, ErrorResponse{Error: msg})
}

// writeStreamError maps scheduler and recognizer errors to status codes.
func writeStreamError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, runtime.ErrSessionNotFound):
		writeError(w, http.StatusNotFound, "stream not found")
	case errors.Is(err, recognizer.ErrStreamBusy):
		writeError(w, http.StatusConflict, "stream is being decoded, retry")
	default:
		slog.ErrorContext(r.Context(), "stream request failed",
			slog.String("path", r.URL.Path),
			slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

// CreateStream handles POST /api/v1/streams
func (h *Handler) CreateStream(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
	var req CreateStreamRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
	}

	sess := h.scheduler.Open(r.Context(), req.Hotwords)
	m := h.scheduler.Recognizer().Model()
	writeJSON(w, http.StatusCreated, StreamResponse{
		ID:         sess.ID(),
		FeatureDim: m.FeatureDim(),
		ChunkSize:  m.ChunkSize(),
		ChunkShift: m.ChunkShift(),
		Hotwords:   sess.Stream().ContextGraph().Len(),
	})
}

// AcceptFeatures handles POST /api/v1/streams/{id}/features
func (h *Handler) AcceptFeatures(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxFeaturesBodySize)
	sess, err := h.scheduler.Get(r.PathValue("id"))
	if err != nil {
		writeStreamError(w, r, err)
		return
	}

	var req AcceptFeaturesRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	dim := sess.Stream().FeatureDim()
	flat := make([]float32, 0, len(req.Frames)*dim)
	for i, f := range req.Frames {
		if len(f) != dim {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("frame %d has %d values, want %d", i, len(f), dim))
			return
		}
		flat = append(flat, f...)
	}

	if len(flat) > 0 {
		if err := sess.AcceptFrames(flat); err != nil {
			writeError(w, http.StatusConflict, err.Error())
			return
		}
	}
	if req.InputFinished {
		sess.InputFinished()
	}

	writeJSON(w, http.StatusAccepted, AcceptFeaturesResponse{
		FramesReady: sess.Stream().Source().FramesReady(),
		Finished:    sess.Stream().IsFinished(),
	})
}

// GetResult handles GET /api/v1/streams/{id}/result
func (h *Handler) GetResult(w http.ResponseWriter, r *http.Request) {
	res, err := h.scheduler.Result(r.PathValue("id"))
	if err != nil {
		writeStreamError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// Reset handles POST /api/v1/streams/{id}/reset
func (h *Handler) Reset(w http.ResponseWriter, r *http.Request) {
	res, err := h.scheduler.Reset(r.Context(), r.PathValue("id"))
	if err != nil {
		writeStreamError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// DeleteStream handles DELETE /api/v1/streams/{id}
func (h *Handler) DeleteStream(w http.ResponseWriter, r *http.Request) {
	if err := h.scheduler.Close(r.Context(), r.PathValue("id"), runtime.ReasonDeleted); err != nil {
		writeStreamError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ListDecoders handles GET /api/v1/decoders
func (h *Handler) ListDecoders(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, DecodersResponse{
		Decoders: registry.Decoders.List(),
		Models:   registry.Models.List(),
	})
}
