package journal

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// PoolInterface is the slice of pgxpool.Pool the journal uses, kept narrow
// so tests can substitute pgxmock
type PoolInterface interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Close()
}

const createJournalTable = `
CREATE TABLE IF NOT EXISTS journal_entries (
	id      BIGSERIAL PRIMARY KEY,
	seq     BIGINT NOT NULL,
	kind    TEXT NOT NULL,
	at      TIMESTAMPTZ NOT NULL,
	symbol  TEXT NOT NULL DEFAULT '',
	payload JSONB
)`

const insertJournalEntry = `
INSERT INTO journal_entries (seq, kind, at, symbol, payload)
VALUES ($1, $2, $3, $4, $5)`

// Postgres persists journal entries to a single append-only table
type Postgres struct {
	pool   PoolInterface
	logger zerolog.Logger
}

// NewPostgres creates a journal over an existing pool
func NewPostgres(pool PoolInterface) *Postgres {
	return &Postgres{
		pool:   pool,
		logger: log.With().Str("component", "journal").Logger(),
	}
}

// EnsureSchema creates the journal table if it does not exist
func (p *Postgres) EnsureSchema(ctx context.Context) error {
	if _, err := p.pool.Exec(ctx, createJournalTable); err != nil {
		return fmt.Errorf("failed to create journal table: %w", err)
	}
	return nil
}

// Append inserts one entry
func (p *Postgres) Append(ctx context.Context, entry Entry) error {
	var payload []byte
	if entry.Payload != nil {
		var err error
		payload, err = json.Marshal(entry.Payload)
		if err != nil {
			// A payload that cannot marshal must not lose the entry
			p.logger.Error().Err(err).Uint64("seq", entry.Seq).Msg("Journal payload marshal failed")
			payload = []byte("{}")
		}
	}

	_, err := p.pool.Exec(ctx, insertJournalEntry,
		int64(entry.Seq), string(entry.Kind), entry.At, entry.Symbol, payload)
	if err != nil {
		return fmt.Errorf("failed to append journal entry %d: %w", entry.Seq, err)
	}
	return nil
}

// Close releases the pool
func (p *Postgres) Close() error {
	p.pool.Close()
	return nil
}
