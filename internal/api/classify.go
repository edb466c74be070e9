package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/MikeSquared-Agency/verdict/internal/auth"
	"github.com/MikeSquared-Agency/verdict/internal/store"
	"github.com/MikeSquared-Agency/verdict/internal/thread"
)

// classifyFailed is the only failure detail exposed to clients.
const classifyFailed = "Failed to classify conversation."

// classify handles POST /api/v1/classify
func (s *Server) classify(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)

	var req thread.Conversation
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err))
		return
	}
	if req.Messages == nil {
		writeError(w, http.StatusBadRequest, "conversation is required")
		return
	}
	if err := thread.Validate(req.Messages); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	ctx := r.Context()
	if s.opts.ClassifyTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.opts.ClassifyTimeout)
		defer cancel()
	}

	principal, _ := auth.FromContext(ctx)
	result, err := s.opts.Classifier.Classify(ctx, principal, req.Messages)
	if err != nil {
		s.logger.Error("classify request failed", "error", err, "messages", thread.Count(req.Messages))
		writeError(w, http.StatusBadGateway, classifyFailed)
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// history handles GET /api/v1/history?limit=N
func (s *Server) history(w http.ResponseWriter, r *http.Request) {
	if s.opts.History == nil {
		writeError(w, http.StatusNotImplemented, "history is not configured")
		return
	}
	principal, _ := auth.FromContext(r.Context())

	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = n
	}

	records, err := s.opts.History.List(r.Context(), principal.ID, limit)
	if err != nil {
		if errors.Is(err, store.ErrPrincipalRequired) {
			writeError(w, http.StatusUnauthorized, "authentication required")
			return
		}
		s.logger.Error("failed to list history", "principal", principal.ID, "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to load history.")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"records": records,
		"count":   len(records),
	})
}
