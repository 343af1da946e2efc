package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/tidemark/scuttlestore/internal/store"
)

// executor is the interface satisfied by both *sql.DB and *sql.Tx.
type executor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func queryLatest(ctx context.Context, db executor) (*int64, error) {
	var latest sql.NullInt64
	err := db.QueryRowContext(ctx, `SELECT MAX(flume_seq) FROM messages`).Scan(&latest)
	if err != nil {
		return nil, fmt.Errorf("query latest flume seq: %w", err)
	}
	if !latest.Valid {
		return nil, nil
	}
	return &latest.Int64, nil
}

func queryInsertMessage(ctx context.Context, db executor, seq int64, flumeSeq int64, keyID, authorID int64) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO messages (flume_seq, seq, key_id, author_id)
		VALUES (?, ?, ?, ?)`,
		flumeSeq, seq, keyID, authorID,
	)
	return err
}

func queryFindOrCreateKey(ctx context.Context, db executor, key string) (int64, error) {
	var id int64
	err := db.QueryRowContext(ctx, `SELECT id FROM keys WHERE key = ?`, key).Scan(&id)
	if err == nil {
		return id, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("look up key: %w", err)
	}

	res, err := db.ExecContext(ctx, `INSERT INTO keys (key) VALUES (?)`, key)
	if err != nil {
		return 0, fmt.Errorf("insert key: %w", err)
	}
	id, err = res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("key insert id: %w", err)
	}
	return id, nil
}

func queryFindOrCreateAuthor(ctx context.Context, db executor, author string) (int64, error) {
	var id int64
	err := db.QueryRowContext(ctx, `SELECT id FROM authors WHERE author = ?`, author).Scan(&id)
	if err == nil {
		return id, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("look up author: %w", err)
	}

	res, err := db.ExecContext(ctx, `INSERT INTO authors (author) VALUES (?)`, author)
	if err != nil {
		return 0, fmt.Errorf("insert author: %w", err)
	}
	id, err = res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("author insert id: %w", err)
	}
	return id, nil
}

func queryFlumeSeqByKey(ctx context.Context, db executor, key string) (int64, error) {
	var flumeSeq int64
	err := db.QueryRowContext(ctx, `
		SELECT messages.flume_seq FROM messages
		JOIN keys ON keys.id = messages.key_id
		WHERE keys.key = ?`,
		key,
	).Scan(&flumeSeq)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, store.ErrNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("query flume seq by key: %w", err)
	}
	return flumeSeq, nil
}

func queryFlumeSeqByFeedAndSequence(ctx context.Context, db executor, author string, seq int64) (*int64, error) {
	var flumeSeq int64
	err := db.QueryRowContext(ctx, `
		SELECT messages.flume_seq FROM messages
		JOIN authors ON authors.id = messages.author_id
		WHERE authors.author = ? AND messages.seq = ?`,
		author, seq,
	).Scan(&flumeSeq)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query flume seq by feed and sequence: %w", err)
	}
	return &flumeSeq, nil
}

func queryFeedLatestSequence(ctx context.Context, db executor, author string) (*int64, error) {
	var latest sql.NullInt64
	err := db.QueryRowContext(ctx, `
		SELECT MAX(messages.seq) FROM messages
		JOIN authors ON authors.id = messages.author_id
		WHERE authors.author = ?`,
		author,
	).Scan(&latest)
	if err != nil {
		return nil, fmt.Errorf("query feed latest sequence: %w", err)
	}
	if !latest.Valid {
		return nil, nil
	}
	return &latest.Int64, nil
}

func queryFeedSeqsNewerThan(ctx context.Context, db executor, author string, seq int64, limit int64) ([]int64, error) {
	if limit <= 0 {
		limit = -1 // SQLite: no limit
	}
	rows, err := db.QueryContext(ctx, `
		SELECT messages.flume_seq FROM messages
		JOIN authors ON authors.id = messages.author_id
		WHERE authors.author = ? AND messages.seq > ?
		ORDER BY messages.seq
		LIMIT ?`,
		author, seq, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query feed seqs newer than: %w", err)
	}
	defer rows.Close()

	var seqs []int64
	for rows.Next() {
		var fs int64
		if err := rows.Scan(&fs); err != nil {
			return nil, fmt.Errorf("scan flume seq: %w", err)
		}
		seqs = append(seqs, fs)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate feed seqs: %w", err)
	}
	return seqs, nil
}
