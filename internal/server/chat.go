package server

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/54b3r/kbchat-go/internal/logging"
)

// handleChat handles POST /chat. It validates the request before any
// pipeline work, runs the full answer pipeline, and returns the answer with
// its grounding passages as JSON.
func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	log := logging.FromContext(r.Context())
	start := time.Now()

	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeJSON(w, http.StatusBadRequest, errorResponse{
			Error:   "invalid_request",
			Message: "request body must be valid JSON",
		})
		return
	}
	if strings.TrimSpace(req.Input) == "" {
		s.writeJSON(w, http.StatusBadRequest, errorResponse{
			Error:   "invalid_request",
			Message: "input is required",
		})
		return
	}

	result, err := s.pipeline.Answer(r.Context(), req.Input, req.ChatHistory)
	if err != nil {
		log.Error("chat request failed", slog.Any("error", err))
		s.metrics.chatRequestsTotal.WithLabelValues("error").Inc()
		s.metrics.chatDurationSeconds.WithLabelValues("error").Observe(time.Since(start).Seconds())

		resp := errorResponse{Error: "Internal server error"}
		// Detail leaks internals; only surface it outside production.
		if s.cfg.Environment != "production" {
			resp.Message = err.Error()
		}
		s.writeJSON(w, http.StatusInternalServerError, resp)
		return
	}

	s.metrics.chatRequestsTotal.WithLabelValues("ok").Inc()
	s.metrics.chatDurationSeconds.WithLabelValues("ok").Observe(time.Since(start).Seconds())
	s.writeJSON(w, http.StatusOK, result)
}

// writeJSON encodes v as the response body with the given status code.
func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Error("response encode error", slog.Any("error", err))
	}
}
