// Package server exposes the message store over HTTP/JSON with an SSE event
// stream.
package server

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/tidemark/scuttlestore/internal/events"
	"github.com/tidemark/scuttlestore/internal/scuttledb"
)

// ScuttleServer holds the handlers for the HTTP API.
type ScuttleServer struct {
	db        *scuttledb.DB
	publisher events.Publisher
	sseHub    *sseHub
}

// NewScuttleServer returns a new ScuttleServer backed by the given database
// and publisher.
func NewScuttleServer(db *scuttledb.DB, p events.Publisher) *ScuttleServer {
	return &ScuttleServer{
		db:        db,
		publisher: p,
		sseHub:    newSSEHub(),
	}
}

// publish sends an event to NATS and to connected SSE clients. Both are
// best-effort; failures are logged but do not block the caller.
func (s *ScuttleServer) publish(ctx context.Context, topic string, event any) {
	if err := s.publisher.Publish(ctx, topic, event); err != nil {
		slog.Warn("failed to publish event", "topic", topic, "error", err)
	}
	s.broadcastEvent(topic, event)
}

// broadcastEvent fans out an event to SSE clients.
func (s *ScuttleServer) broadcastEvent(topic string, event any) {
	if s.sseHub == nil {
		return
	}
	payload, err := json.Marshal(event)
	if err != nil {
		slog.Warn("failed to marshal event for SSE broadcast", "topic", topic, "error", err)
		return
	}
	s.sseHub.broadcast(topic, payload)
}
