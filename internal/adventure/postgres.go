package adventure

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ent0n29/narrador/internal/story"
)

// PostgresStore persists adventures in PostgreSQL.
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := initPostgresSchema(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}
	return &PostgresStore{pool: pool}, nil
}

func initPostgresSchema(ctx context.Context, pool *pgxpool.Pool) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS adventures (
			adventure_id TEXT PRIMARY KEY,
			started_at TIMESTAMPTZ NOT NULL,
			ended_at TIMESTAMPTZ NOT NULL,
			messages JSONB NOT NULL DEFAULT '[]'::jsonb,
			story_log JSONB NOT NULL DEFAULT '{}'::jsonb,
			fanfic_context TEXT NULL,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
		);`,
		`CREATE INDEX IF NOT EXISTS idx_adventures_updated ON adventures (updated_at DESC);`,
	}
	for _, stmt := range stmts {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("init adventure schema failed on %q: %w", stmt, err)
		}
	}
	return nil
}

func (s *PostgresStore) Upsert(ctx context.Context, rec Record) (Record, error) {
	if strings.TrimSpace(rec.AdventureID) == "" {
		return Record{}, errors.New("adventure id is required")
	}
	messages, storyLog, err := encodeRecordJSON(rec)
	if err != nil {
		return Record{}, err
	}

	row := s.pool.QueryRow(ctx,
		`INSERT INTO adventures (adventure_id, started_at, ended_at, messages, story_log, fanfic_context, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, now())
		ON CONFLICT (adventure_id) DO UPDATE SET
			started_at=EXCLUDED.started_at,
			ended_at=EXCLUDED.ended_at,
			messages=EXCLUDED.messages,
			story_log=EXCLUDED.story_log,
			fanfic_context=EXCLUDED.fanfic_context,
			updated_at=EXCLUDED.updated_at
		RETURNING updated_at`,
		rec.AdventureID,
		rec.StartedAt.UTC(),
		rec.EndedAt.UTC(),
		messages,
		storyLog,
		rec.Context,
	)
	out := rec.clone()
	if err := row.Scan(&out.UpdatedAt); err != nil {
		return Record{}, fmt.Errorf("upsert adventure: %w", err)
	}
	return out, nil
}

func (s *PostgresStore) Get(ctx context.Context, adventureID string) (Record, error) {
	var (
		rec      Record
		messages []byte
		storyLog []byte
	)
	err := s.pool.QueryRow(ctx,
		`SELECT adventure_id, started_at, ended_at, messages, story_log, fanfic_context, updated_at
		FROM adventures WHERE adventure_id=$1`,
		adventureID,
	).Scan(&rec.AdventureID, &rec.StartedAt, &rec.EndedAt, &messages, &storyLog, &rec.Context, &rec.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Record{}, ErrNotFound
	}
	if err != nil {
		return Record{}, fmt.Errorf("get adventure: %w", err)
	}
	if err := decodeRecordJSON(&rec, messages, storyLog); err != nil {
		return Record{}, err
	}
	return rec, nil
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func encodeRecordJSON(rec Record) ([]byte, []byte, error) {
	turns := rec.Turns
	if turns == nil {
		turns = []story.Turn{}
	}
	messages, err := json.Marshal(turns)
	if err != nil {
		return nil, nil, fmt.Errorf("encode messages: %w", err)
	}
	storyLog, err := json.Marshal(rec.StoryLog.Clone())
	if err != nil {
		return nil, nil, fmt.Errorf("encode story log: %w", err)
	}
	return messages, storyLog, nil
}

func decodeRecordJSON(rec *Record, messages, storyLog []byte) error {
	if err := json.Unmarshal(messages, &rec.Turns); err != nil {
		return fmt.Errorf("decode messages: %w", err)
	}
	if err := json.Unmarshal(storyLog, &rec.StoryLog); err != nil {
		return fmt.Errorf("decode story log: %w", err)
	}
	rec.StoryLog = rec.StoryLog.Clone()
	return nil
}
