package server

import (
	"crypto/subtle"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/tidemark/scuttlestore/internal/events"
	"github.com/tidemark/scuttlestore/internal/idgen"
	"github.com/tidemark/scuttlestore/internal/model"
	"github.com/tidemark/scuttlestore/internal/scuttledb"
)

// NewHTTPHandler returns an http.Handler with all routes registered.
// When authToken is non-empty, requests (except GET /v1/health) must include
// a valid Authorization: Bearer <token> header.
func (s *ScuttleServer) NewHTTPHandler(authToken string) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/messages", s.handleAppend)
	mux.HandleFunc("GET /v1/messages/{key}", s.handleGetMessage)
	mux.HandleFunc("GET /v1/feeds/{feed}/messages", s.handleFeedMessages)
	mux.HandleFunc("GET /v1/feeds/{feed}/messages/{seq}", s.handleFeedMessageBySeq)
	mux.HandleFunc("GET /v1/feeds/{feed}/latest", s.handleFeedLatest)
	mux.HandleFunc("POST /v1/indexes/rebuild", s.handleRebuild)
	mux.HandleFunc("GET /v1/status", s.handleStatus)
	mux.HandleFunc("GET /v1/events/stream", s.handleEventStream)
	mux.HandleFunc("GET /v1/health", s.handleHealth)
	return AuthMiddleware(authToken, mux)
}

// handleHealth handles GET /v1/health.
func (s *ScuttleServer) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// appendRequest is the body of POST /v1/messages.
type appendRequest struct {
	Messages []json.RawMessage `json:"messages"`
}

// handleAppend handles POST /v1/messages.
func (s *ScuttleServer) handleAppend(w http.ResponseWriter, r *http.Request) {
	var req appendRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
		return
	}
	if len(req.Messages) == 0 {
		writeError(w, http.StatusBadRequest, "messages is required")
		return
	}

	batch := make([][]byte, len(req.Messages))
	for i, m := range req.Messages {
		batch[i] = []byte(m)
	}

	seqs, err := s.db.AppendBatch(r.Context(), batch)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "append batch: "+err.Error())
		return
	}

	for i, data := range batch {
		msg, ok := model.DecodeMessage(data)
		if !ok {
			continue
		}
		id, _ := idgen.Generate()
		s.publish(r.Context(), events.TopicMessageAppended, events.MessageAppended{
			ID:       id,
			Key:      msg.Key,
			Author:   msg.Value.Author,
			Sequence: msg.Value.Sequence,
			FlumeSeq: int64(seqs[i]),
		})
	}
	if len(seqs) > 0 {
		id, _ := idgen.Generate()
		s.publish(r.Context(), events.TopicBatchAppended, events.BatchAppended{
			ID:       id,
			Count:    len(seqs),
			FirstSeq: int64(seqs[0]),
			LastSeq:  int64(seqs[len(seqs)-1]),
		})
	}

	writeJSON(w, http.StatusCreated, map[string]any{"seqs": seqs})
}

// handleGetMessage handles GET /v1/messages/{key}.
func (s *ScuttleServer) handleGetMessage(w http.ResponseWriter, r *http.Request) {
	key := r.PathValue("key")
	if !model.IsMessageKey(key) {
		writeError(w, http.StatusBadRequest, "not a message key")
		return
	}

	entry, err := s.db.GetEntryByKey(r.Context(), key)
	if errors.Is(err, scuttledb.ErrNotFound) {
		writeError(w, http.StatusNotFound, "message not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeRawJSON(w, http.StatusOK, entry)
}

// handleFeedMessages handles GET /v1/feeds/{feed}/messages.
// Query params: after (per-feed sequence, default 0), limit, keys, values.
func (s *ScuttleServer) handleFeedMessages(w http.ResponseWriter, r *http.Request) {
	feed := r.PathValue("feed")
	if !model.IsFeedRef(feed) {
		writeError(w, http.StatusBadRequest, "not a feed ref")
		return
	}

	q := r.URL.Query()
	after, err := queryInt(q.Get("after"), 0)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid after: "+err.Error())
		return
	}
	limit, err := queryInt(q.Get("limit"), 0)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid limit: "+err.Error())
		return
	}
	includeKeys, err := queryBool(q.Get("keys"), true)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid keys: "+err.Error())
		return
	}
	includeValues, err := queryBool(q.Get("values"), true)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid values: "+err.Error())
		return
	}

	entries, err := s.db.EntriesNewerThan(r.Context(), feed, after, limit, includeKeys, includeValues)
	if errors.Is(err, scuttledb.ErrNoKeysNoValues) {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	// Keys-only results are plain strings; everything else is raw JSON.
	if includeKeys && !includeValues {
		keys := make([]string, len(entries))
		for i, e := range entries {
			keys[i] = string(e)
		}
		writeJSON(w, http.StatusOK, map[string]any{"keys": keys})
		return
	}

	raw := make([]json.RawMessage, len(entries))
	for i, e := range entries {
		raw[i] = json.RawMessage(e)
	}
	field := "messages"
	if !includeKeys {
		field = "values"
	}
	writeJSON(w, http.StatusOK, map[string]any{field: raw})
}

// handleFeedMessageBySeq handles GET /v1/feeds/{feed}/messages/{seq}.
func (s *ScuttleServer) handleFeedMessageBySeq(w http.ResponseWriter, r *http.Request) {
	feed := r.PathValue("feed")
	if !model.IsFeedRef(feed) {
		writeError(w, http.StatusBadRequest, "not a feed ref")
		return
	}
	seq, err := strconv.ParseInt(r.PathValue("seq"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid sequence: "+err.Error())
		return
	}

	entry, err := s.db.GetEntryBySeq(r.Context(), feed, seq)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if entry == nil {
		writeError(w, http.StatusNotFound, "message not found")
		return
	}
	writeRawJSON(w, http.StatusOK, entry)
}

// handleFeedLatest handles GET /v1/feeds/{feed}/latest.
func (s *ScuttleServer) handleFeedLatest(w http.ResponseWriter, r *http.Request) {
	feed := r.PathValue("feed")
	if !model.IsFeedRef(feed) {
		writeError(w, http.StatusBadRequest, "not a feed ref")
		return
	}

	latest, err := s.db.FeedLatestSequence(r.Context(), feed)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"feed": feed, "sequence": latest})
}

// handleRebuild handles POST /v1/indexes/rebuild.
func (s *ScuttleServer) handleRebuild(w http.ResponseWriter, r *http.Request) {
	if err := s.db.RebuildIndexes(r.Context()); err != nil {
		writeError(w, http.StatusInternalServerError, "rebuild indexes: "+err.Error())
		return
	}

	latest, err := s.db.Latest(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	id, _ := idgen.Generate()
	s.publish(r.Context(), events.TopicIndexesRebuilt, events.IndexesRebuilt{
		ID:        id,
		LatestSeq: latest,
	})
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "latest_seq": latest})
}

// handleStatus handles GET /v1/status.
func (s *ScuttleServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	latest, err := s.db.Latest(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"log_bytes":  s.db.Log().Size(),
		"latest_seq": latest,
	})
}

func queryInt(s string, fallback int64) (int64, error) {
	if s == "" {
		return fallback, nil
	}
	return strconv.ParseInt(s, 10, 64)
}

func queryBool(s string, fallback bool) (bool, error) {
	if s == "" {
		return fallback, nil
	}
	return strconv.ParseBool(s)
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// writeRawJSON writes pre-encoded JSON bytes as the response body.
func writeRawJSON(w http.ResponseWriter, status int, data []byte) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(data)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

// AuthMiddleware wraps an http.Handler and checks the Authorization header for
// a valid Bearer token. When token is empty, auth is disabled and all requests
// pass through. GET /v1/health is always exempt.
func AuthMiddleware(token string, next http.Handler) http.Handler {
	if token == "" {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Exempt health check.
		if r.Method == http.MethodGet && r.URL.Path == "/v1/health" {
			next.ServeHTTP(w, r)
			return
		}

		auth := r.Header.Get("Authorization")
		if auth == "" {
			writeError(w, http.StatusUnauthorized, "missing authorization header")
			return
		}

		if !strings.HasPrefix(auth, "Bearer ") {
			writeError(w, http.StatusUnauthorized, "invalid authorization scheme")
			return
		}

		provided := strings.TrimPrefix(auth, "Bearer ")
		if subtle.ConstantTimeCompare([]byte(provided), []byte(token)) != 1 {
			writeError(w, http.StatusUnauthorized, "invalid token")
			return
		}

		next.ServeHTTP(w, r)
	})
}
