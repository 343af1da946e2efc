package store

import (
	"context"
	"errors"
)

// ErrNotFound is returned when a lookup matches no row.
var ErrNotFound = errors.New("store: not found")

// Store defines the persistence interface for the message index. The index
// maps message keys and feed sequences to offset-log sequences (flume seqs);
// the log itself holds the message bytes.
type Store interface {
	// Latest returns the highest flume seq in the index, or nil when the
	// index is empty.
	Latest(ctx context.Context) (*int64, error)

	// InsertMessage records one indexed message. flumeSeq and the key are
	// unique; inserting a duplicate of either fails.
	InsertMessage(ctx context.Context, seq int64, flumeSeq int64, keyID, authorID int64) error

	// FindOrCreateKey returns the id for a message key, creating the row if
	// needed.
	FindOrCreateKey(ctx context.Context, key string) (int64, error)

	// FindOrCreateAuthor returns the id for a feed ref, creating the row if
	// needed.
	FindOrCreateAuthor(ctx context.Context, author string) (int64, error)

	// FlumeSeqByKey resolves a message key to its flume seq.
	// Returns ErrNotFound when the key is not indexed.
	FlumeSeqByKey(ctx context.Context, key string) (int64, error)

	// FlumeSeqByFeedAndSequence resolves (feed, per-feed seq) to a flume
	// seq, or nil when the feed has no such sequence.
	FlumeSeqByFeedAndSequence(ctx context.Context, author string, seq int64) (*int64, error)

	// FeedLatestSequence returns the highest per-feed seq for a feed, or
	// nil when the feed is not indexed.
	FeedLatestSequence(ctx context.Context, author string) (*int64, error)

	// FeedSeqsNewerThan returns the flume seqs of a feed's messages with
	// per-feed seq greater than seq, ordered by seq. limit <= 0 means no
	// limit.
	FeedSeqsNewerThan(ctx context.Context, author string, seq int64, limit int64) ([]int64, error)

	// RunInTransaction executes fn against a transactional view of the
	// store, committing on nil and rolling back on error.
	RunInTransaction(ctx context.Context, fn func(tx Store) error) error

	// Lifecycle
	Close() error
}
