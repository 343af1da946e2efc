// Package client provides a transport-agnostic interface for the scuttlestore
// service and an HTTP/JSON implementation that talks to its REST API.
package client

import (
	"context"
	"encoding/json"
)

// ScuttleClient is the interface the CLI uses to communicate with a
// scuttlestore server.
type ScuttleClient interface {
	// Append appends a batch of messages and returns their log sequences.
	Append(ctx context.Context, messages []json.RawMessage) ([]uint64, error)

	// GetMessage returns the full entry for a message key.
	GetMessage(ctx context.Context, key string) (json.RawMessage, error)

	// GetFeedMessage returns the full entry for a feed's per-feed sequence.
	GetFeedMessage(ctx context.Context, feed string, seq int64) (json.RawMessage, error)

	// FeedMessages lists a feed's entries with per-feed sequence greater
	// than after.
	FeedMessages(ctx context.Context, req *FeedMessagesRequest) (*FeedMessagesResponse, error)

	// FeedLatest returns a feed's highest per-feed sequence, or nil for an
	// unknown feed.
	FeedLatest(ctx context.Context, feed string) (*int64, error)

	// RebuildIndexes asks the server to rebuild its index from the log.
	RebuildIndexes(ctx context.Context) error

	// Status returns server status.
	Status(ctx context.Context) (*StatusResponse, error)

	// Health checks server health.
	Health(ctx context.Context) (string, error)

	// Lifecycle
	Close() error
}

// FeedMessagesRequest holds the query parameters for FeedMessages.
type FeedMessagesRequest struct {
	Feed          string
	After         int64
	Limit         int64
	IncludeKeys   bool
	IncludeValues bool
}

// FeedMessagesResponse holds the result of FeedMessages. Exactly one of the
// fields is populated, depending on the include flags.
type FeedMessagesResponse struct {
	Messages []json.RawMessage `json:"messages,omitempty"`
	Values   []json.RawMessage `json:"values,omitempty"`
	Keys     []string          `json:"keys,omitempty"`
}

// StatusResponse is the body of GET /v1/status.
type StatusResponse struct {
	LogBytes  int64  `json:"log_bytes"`
	LatestSeq *int64 `json:"latest_seq"`
}
