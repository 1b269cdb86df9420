package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/tokenflow/engine/internal/ir"
)

// TokenRepository persists Token values keyed by TraceID, with bounded
// retry around transient sqlite lock contention.
type TokenRepository struct {
	store  *Store
	logger *slog.Logger
}

// NewTokenRepository wraps store for token persistence.
func NewTokenRepository(s *Store, logger *slog.Logger) *TokenRepository {
	if logger == nil {
		logger = slog.Default()
	}
	return &TokenRepository{store: s, logger: logger}
}

// Save upserts tok, keyed by TraceID — a second Save for the same trace id
// replaces the stored row, making injection and re-delivery idempotent.
func (r *TokenRepository) Save(ctx context.Context, tok ir.Token) error {
	historyJSON, err := marshalHistory(tok.History)
	if err != nil {
		return err
	}
	contentJSON, err := marshalMap(tok.Content)
	if err != nil {
		return err
	}
	topicsJSON, err := marshalTopics(tok.Topics)
	if err != nil {
		return err
	}

	query := fmt.Sprintf(`
		INSERT INTO %s (trace_id, source_id, history, content, topics, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(trace_id) DO UPDATE SET
			source_id=excluded.source_id,
			history=excluded.history,
			content=excluded.content,
			topics=excluded.topics,
			created_at=excluded.created_at
	`, r.store.table)

	return r.withRetry(ctx, func() error {
		_, err := r.store.db.ExecContext(ctx, query,
			tok.TraceID, tok.SourceID, historyJSON, contentJSON, topicsJSON,
			tok.CreatedAt.Format(time.RFC3339Nano),
		)
		return err
	})
}

// Load retrieves the token stored under traceID. It returns (Token{},
// false, nil) when no row exists, and (Token{}, false, nil) — logged, not
// returned as an error — when the stored row is corrupt, since a bad row
// must never crash a caller walking the repository.
func (r *TokenRepository) Load(ctx context.Context, traceID string) (ir.Token, bool, error) {
	query := fmt.Sprintf(`
		SELECT trace_id, source_id, history, content, topics, created_at
		FROM %s WHERE trace_id = ?
	`, r.store.table)

	var traceOut, sourceOut, historyJSON, contentJSON, topicsJSON, createdAtJSON string
	var queryErr error
	err := r.withRetry(ctx, func() error {
		row := r.store.db.QueryRowContext(ctx, query, traceID)
		queryErr = row.Scan(&traceOut, &sourceOut, &historyJSON, &contentJSON, &topicsJSON, &createdAtJSON)
		if errors.Is(queryErr, sql.ErrNoRows) {
			return nil
		}
		return queryErr
	})
	if err != nil {
		return ir.Token{}, false, err
	}
	if errors.Is(queryErr, sql.ErrNoRows) {
		return ir.Token{}, false, nil
	}

	tok, parseErr := unmarshalToken(traceOut, sourceOut, historyJSON, contentJSON, topicsJSON, createdAtJSON)
	if parseErr != nil {
		r.logger.Error("store: dropping corrupted token row", "trace_id", traceID, "error", parseErr)
		return ir.Token{}, false, nil
	}
	return tok, true, nil
}

// LookupBySource returns every token stored under sourceID, in no
// particular order — useful for an operator tracing every trace spawned
// from one ingestion event.
func (r *TokenRepository) LookupBySource(ctx context.Context, sourceID string) ([]ir.Token, error) {
	query := fmt.Sprintf(`
		SELECT trace_id, source_id, history, content, topics, created_at
		FROM %s WHERE source_id = ?
	`, r.store.table)

	var tokens []ir.Token
	err := r.withRetry(ctx, func() error {
		tokens = nil
		rows, err := r.store.db.QueryContext(ctx, query, sourceID)
		if err != nil {
			return err
		}
		defer rows.Close()

		for rows.Next() {
			var traceOut, sourceOut, historyJSON, contentJSON, topicsJSON, createdAtJSON string
			if err := rows.Scan(&traceOut, &sourceOut, &historyJSON, &contentJSON, &topicsJSON, &createdAtJSON); err != nil {
				return err
			}
			tok, parseErr := unmarshalToken(traceOut, sourceOut, historyJSON, contentJSON, topicsJSON, createdAtJSON)
			if parseErr != nil {
				r.logger.Error("store: dropping corrupted token row", "trace_id", traceOut, "error", parseErr)
				continue
			}
			tokens = append(tokens, tok)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return tokens, nil
}

// withRetry wraps op with bounded exponential backoff against sqlite's
// transient "database is locked"/"busy" errors, distinct from a genuine
// query failure that should surface immediately.
func (r *TokenRepository) withRetry(ctx context.Context, op func() error) error {
	policy := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 5), ctx)
	return backoff.Retry(func() error {
		err := op()
		if err == nil || !isTransient(err) {
			return backoff.Permanent(err)
		}
		return err
	}, policy)
}

func isTransient(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "database is locked") || strings.Contains(msg, "SQLITE_BUSY")
}
