// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


// Package httpapi exposes the engine over a thin chi router. Handlers
// are stateless; admission, caching and failover all live behind the
// engine. Error bodies stay generic so internal diagnostics never
// reach callers; details go to the log.
package httpapi

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/poiesic/semsearch"
	"github.com/poiesic/semsearch/core"
	"github.com/poiesic/semsearch/search"
)

// Server serves the HTTP API for one engine.
type Server struct {
	engine *semsearch.Engine
	logger *slog.Logger
}

// New creates an HTTP API server around the engine.
func New(engine *semsearch.Engine, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		engine: engine,
		logger: logger.With("component", "httpapi"),
	}
}

// Router builds the route table.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.handleHealth)
	r.Route("/api", func(r chi.Router) {
		r.Get("/search", s.handleSearch)
		r.Route("/index/{kind}", func(r chi.Router) {
			r.Post("/resume", s.handleIndexResume)
			r.Get("/progress", s.handleIndexProgress)
			r.Post("/stop", s.handleIndexStop)
		})
		r.Post("/admin/ratelimit/reset", s.handleRateLimitReset)
	})
	return r
}

type matchPayload struct {
	RecordID int64   `json:"record_id"`
	Kind     string  `json:"kind"`
	Name     string  `json:"name"`
	Category string  `json:"category,omitempty"`
	Summary  string  `json:"summary,omitempty"`
	Score    float32 `json:"score"`
	Source   string  `json:"source"`
}

type searchResponse struct {
	Matches []matchPayload `json:"matches"`
	Cached  bool           `json:"cached"`
}

type checkpointPayload struct {
	Kind       string `json:"kind"`
	Version    uint64 `json:"version"`
	NextOffset int64  `json:"next_offset"`
	Processed  int64  `json:"processed"`
	Total      int64  `json:"total"`
	Status     string `json:"status"`
	UpdatedAt  string `json:"updated_at,omitempty"`
}

type resumeResponse struct {
	Triggered  bool               `json:"triggered"`
	Locked     bool               `json:"locked"`
	Checkpoint *checkpointPayload `json:"checkpoint,omitempty"`
}

type errorResponse struct {
	Error             string `json:"error"`
	RetryAfterSeconds int    `json:"retry_after_seconds,omitempty"`
}

func toCheckpointPayload(cp core.Checkpoint) checkpointPayload {
	out := checkpointPayload{
		Kind:       string(cp.Kind),
		Version:    cp.Version,
		NextOffset: cp.NextOffset,
		Processed:  cp.Processed,
		Total:      cp.Total,
		Status:     cp.Status.String(),
	}
	if !cp.UpdatedAt.IsZero() {
		out.UpdatedAt = cp.UpdatedAt.UTC().Format(time.RFC3339)
	}
	return out
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// clientIdentity derives the admission identity. The first address in
// X-Forwarded-For wins so deployments behind a proxy keep per-client
// quotas; otherwise the connection's remote address is used.
func clientIdentity(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		if i := strings.IndexByte(fwd, ','); i >= 0 {
			fwd = fwd[:i]
		}
		return strings.TrimSpace(fwd)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if !s.engine.Healthy(r.Context()) {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "degraded"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("q")
	topK := 0
	if raw := r.URL.Query().Get("top_k"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "top_k must be an integer"})
			return
		}
		topK = n
	}

	resp, err := s.engine.Search(r.Context(), search.Request{
		Query:    query,
		TopK:     topK,
		Identity: clientIdentity(r),
	})
	if err != nil {
		var denied *core.AdmissionError
		switch {
		case errors.As(err, &denied):
			w.Header().Set("Retry-After", strconv.Itoa(denied.RetryAfterSeconds))
			writeJSON(w, http.StatusTooManyRequests, errorResponse{
				Error:             "rate limited",
				RetryAfterSeconds: denied.RetryAfterSeconds,
			})
		case errors.Is(err, core.ErrEmptyQuery):
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "query cannot be empty"})
		default:
			s.logger.Error("search failed", "err", err)
			writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "search failed"})
		}
		return
	}

	out := searchResponse{
		Matches: make([]matchPayload, 0, len(resp.Matches)),
		Cached:  resp.Cached,
	}
	for _, m := range resp.Matches {
		out.Matches = append(out.Matches, matchPayload{
			RecordID: int64(m.RecordId),
			Kind:     string(m.Kind),
			Name:     m.Name,
			Category: m.Category,
			Summary:  m.Summary,
			Score:    m.Score,
			Source:   m.Source,
		})
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleIndexResume(w http.ResponseWriter, r *http.Request) {
	kind, err := core.ParseKind(chi.URLParam(r, "kind"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid kind"})
		return
	}

	batchSize := 0
	if raw := r.URL.Query().Get("batch_size"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "batch_size must be an integer"})
			return
		}
		batchSize = n
	}

	res, err := s.engine.TriggerIndexResume(r.Context(), kind, batchSize)
	if err != nil {
		s.logger.Error("index resume failed", "kind", kind, "err", err)
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "index resume failed"})
		return
	}

	out := resumeResponse{Triggered: res.Triggered, Locked: res.Locked}
	if res.Locked {
		writeJSON(w, http.StatusConflict, out)
		return
	}
	cp := toCheckpointPayload(res.Checkpoint)
	out.Checkpoint = &cp
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleIndexProgress(w http.ResponseWriter, r *http.Request) {
	kind, err := core.ParseKind(chi.URLParam(r, "kind"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid kind"})
		return
	}

	cp, err := s.engine.IndexProgress(r.Context(), kind)
	if err != nil {
		s.logger.Error("index progress failed", "kind", kind, "err", err)
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "index progress unavailable"})
		return
	}
	if cp == nil {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "no indexing pass recorded"})
		return
	}
	writeJSON(w, http.StatusOK, toCheckpointPayload(*cp))
}

func (s *Server) handleIndexStop(w http.ResponseWriter, r *http.Request) {
	kind, err := core.ParseKind(chi.URLParam(r, "kind"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid kind"})
		return
	}

	if err := s.engine.StopIndexing(r.Context(), kind); err != nil {
		s.logger.Error("index stop failed", "kind", kind, "err", err)
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "index stop failed"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "stopped"})
}

type resetRequest struct {
	Identity string `json:"identity"`
}

func (s *Server) handleRateLimitReset(w http.ResponseWriter, r *http.Request) {
	var req resetRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return
	}
	if strings.TrimSpace(req.Identity) == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "identity is required"})
		return
	}

	if err := s.engine.ResetRateLimit(r.Context(), req.Identity); err != nil {
		s.logger.Error("ratelimit reset failed", "identity", req.Identity, "err", err)
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "reset failed"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "reset"})
}
