// Package scuttledb composes the append-only offset log with the SQLite
// index. The log is the source of truth; the index only maps message keys
// and feed sequences back to log sequences and can be rebuilt from the log
// at any time.
package scuttledb

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/tidemark/scuttlestore/internal/model"
	"github.com/tidemark/scuttlestore/internal/offsetlog"
	"github.com/tidemark/scuttlestore/internal/store"
	"github.com/tidemark/scuttlestore/internal/store/sqlite"
)

// indexBatchSize is the number of log entries indexed per transaction while
// catching the index up to the log.
const indexBatchSize = 10000

// ErrNoKeysNoValues is returned by EntriesNewerThan when both includeKeys
// and includeValues are false.
var ErrNoKeysNoValues = errors.New("scuttledb: include_keys and include_values are both false; pick one or both")

// ErrNotFound is returned when a message key is not in the index.
var ErrNotFound = store.ErrNotFound

// DB is a message store backed by an offset log and a SQLite index.
// All methods are safe for concurrent use.
type DB struct {
	log    *offsetlog.Log
	logger *slog.Logger

	mu     sync.Mutex // guards st across rebuilds
	st     store.Store
	dbPath string
}

// Open opens the offset log at logPath and the SQLite index at dbPath,
// creating either if absent, and catches the index up to the log.
func Open(dbPath, logPath string, logger *slog.Logger) (*DB, error) {
	if logger == nil {
		logger = slog.Default()
	}

	log, err := offsetlog.Open(logPath)
	if err != nil {
		return nil, err
	}

	st, err := sqlite.New(dbPath)
	if err != nil {
		log.Close()
		return nil, err
	}

	db := &DB{log: log, st: st, dbPath: dbPath, logger: logger}
	if err := db.UpdateIndexes(context.Background()); err != nil {
		db.Close()
		return nil, fmt.Errorf("catch up indexes: %w", err)
	}
	return db, nil
}

// AppendBatch appends messages to the offset log and indexes them. The log
// append is durable before indexing starts, so a failure mid-index leaves
// the messages recoverable by the next UpdateIndexes.
func (db *DB) AppendBatch(ctx context.Context, msgs [][]byte) ([]uint64, error) {
	seqs, err := db.log.Append(msgs)
	if err != nil {
		return nil, fmt.Errorf("append to offset log: %w", err)
	}
	if err := db.UpdateIndexes(ctx); err != nil {
		return nil, err
	}
	return seqs, nil
}

// UpdateIndexes walks the offset log from the last indexed sequence and
// indexes everything newer, in transactions of indexBatchSize entries.
func (db *DB) UpdateIndexes(ctx context.Context) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	return db.updateIndexesLocked(ctx)
}

func (db *DB) updateIndexesLocked(ctx context.Context) error {
	maxSeq, err := db.st.Latest(ctx)
	if err != nil {
		return fmt.Errorf("latest indexed seq: %w", err)
	}

	// When the index is non-empty, the entry at maxSeq is already indexed
	// and iteration must skip it.
	var start uint64
	skip := 0
	if maxSeq != nil {
		start = uint64(*maxSeq)
		skip = 1
	}

	it := db.log.Iter(start)
	for {
		batch, err := readBatch(it, skip, indexBatchSize)
		if err != nil {
			return err
		}
		skip = 0
		if len(batch) == 0 {
			return nil
		}

		err = db.st.RunInTransaction(ctx, func(tx store.Store) error {
			for _, e := range batch {
				if err := indexEntry(ctx, tx, e.Seq, e.Data); err != nil {
					return err
				}
			}
			return nil
		})
		if err != nil {
			return fmt.Errorf("index batch: %w", err)
		}
	}
}

// readBatch pulls up to n entries from the iterator, discarding skip entries
// first.
func readBatch(it *offsetlog.Iterator, skip, n int) ([]offsetlog.Entry, error) {
	var batch []offsetlog.Entry
	for len(batch) < n {
		e, err := it.Next()
		if err == io.EOF {
			return batch, nil
		}
		if err != nil {
			return nil, fmt.Errorf("read offset log: %w", err)
		}
		if skip > 0 {
			skip--
			continue
		}
		batch = append(batch, e)
	}
	return batch, nil
}

// indexEntry indexes one log entry. Entries that do not decode as messages
// (deleted records with zeroed bytes, for example) are skipped.
func indexEntry(ctx context.Context, tx store.Store, seq uint64, data []byte) error {
	msg, ok := model.DecodeMessage(data)
	if !ok {
		return nil
	}

	keyID, err := tx.FindOrCreateKey(ctx, msg.Key)
	if err != nil {
		return err
	}
	authorID, err := tx.FindOrCreateAuthor(ctx, msg.Value.Author)
	if err != nil {
		return err
	}
	return tx.InsertMessage(ctx, msg.Value.Sequence, int64(seq), keyID, authorID)
}

// GetEntryByKey returns the log entry for a message key.
// Returns ErrNotFound when the key is not indexed.
func (db *DB) GetEntryByKey(ctx context.Context, key string) ([]byte, error) {
	db.mu.Lock()
	st := db.st
	db.mu.Unlock()

	seq, err := st.FlumeSeqByKey(ctx, key)
	if err != nil {
		return nil, err
	}
	data, err := db.log.Get(uint64(seq))
	if err != nil {
		return nil, fmt.Errorf("read entry at seq %d: %w", seq, err)
	}
	return data, nil
}

// GetEntryBySeq returns the log entry for a feed's message with the given
// per-feed sequence, or nil when the feed has no such sequence.
func (db *DB) GetEntryBySeq(ctx context.Context, feed string, seq int64) ([]byte, error) {
	db.mu.Lock()
	st := db.st
	db.mu.Unlock()

	flumeSeq, err := st.FlumeSeqByFeedAndSequence(ctx, feed, seq)
	if err != nil {
		return nil, err
	}
	if flumeSeq == nil {
		return nil, nil
	}
	data, err := db.log.Get(uint64(*flumeSeq))
	if err != nil {
		return nil, fmt.Errorf("read entry at seq %d: %w", *flumeSeq, err)
	}
	return data, nil
}

// FeedLatestSequence returns the highest per-feed sequence indexed for a
// feed, or nil when the feed is unknown.
func (db *DB) FeedLatestSequence(ctx context.Context, feed string) (*int64, error) {
	db.mu.Lock()
	st := db.st
	db.mu.Unlock()
	return st.FeedLatestSequence(ctx, feed)
}

// EntriesNewerThan returns a feed's messages with per-feed sequence greater
// than seq, in sequence order. With includeKeys only, each result is the
// message key; with includeValues only, each result is the raw value object;
// with both, each result is the full entry. limit <= 0 means no limit.
func (db *DB) EntriesNewerThan(ctx context.Context, feed string, seq int64, limit int64, includeKeys, includeValues bool) ([][]byte, error) {
	if !includeKeys && !includeValues {
		return nil, ErrNoKeysNoValues
	}

	db.mu.Lock()
	st := db.st
	db.mu.Unlock()

	seqs, err := st.FeedSeqsNewerThan(ctx, feed, seq, limit)
	if err != nil {
		return nil, err
	}

	results := make([][]byte, 0, len(seqs))
	for _, fs := range seqs {
		data, err := db.log.Get(uint64(fs))
		if err != nil {
			return nil, fmt.Errorf("read entry at seq %d: %w", fs, err)
		}

		switch {
		case includeKeys && includeValues:
			results = append(results, data)
		case includeKeys:
			msg, ok := model.DecodeMessage(data)
			if !ok {
				return nil, fmt.Errorf("entry at seq %d is not a message; the index may be stale, rebuild it", fs)
			}
			results = append(results, []byte(msg.Key))
		case includeValues:
			msg, ok := model.DecodeMessage(data)
			if !ok {
				return nil, fmt.Errorf("entry at seq %d is not a message; the index may be stale, rebuild it", fs)
			}
			results = append(results, []byte(msg.Value.Raw))
		}
	}
	return results, nil
}

// RebuildIndexes deletes the SQLite index and reindexes the entire offset
// log. Reads against the old index may fail while the rebuild is in flight.
func (db *DB) RebuildIndexes(ctx context.Context) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	if err := db.st.Close(); err != nil {
		return fmt.Errorf("close index: %w", err)
	}
	sqlite.Remove(db.dbPath)

	st, err := sqlite.New(db.dbPath)
	if err != nil {
		return fmt.Errorf("recreate index: %w", err)
	}
	db.st = st

	db.logger.Info("rebuilding indexes", "db_path", db.dbPath, "log_bytes", db.log.Size())
	return db.updateIndexesLocked(ctx)
}

// Latest returns the highest indexed flume seq, or nil when the index is
// empty.
func (db *DB) Latest(ctx context.Context) (*int64, error) {
	db.mu.Lock()
	st := db.st
	db.mu.Unlock()
	return st.Latest(ctx)
}

// Log exposes the underlying offset log (for snapshots and status).
func (db *DB) Log() *offsetlog.Log { return db.log }

// Close closes the index and the offset log.
func (db *DB) Close() error {
	db.mu.Lock()
	defer db.mu.Unlock()

	storeErr := db.st.Close()
	logErr := db.log.Close()
	if storeErr != nil {
		return storeErr
	}
	return logErr
}
