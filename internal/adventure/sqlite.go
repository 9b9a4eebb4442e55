package adventure

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/pkg/errors"
	_ "modernc.org/sqlite"
)

// SQLiteStore persists adventures in a single SQLite file.
type SQLiteStore struct {
	db *sql.DB
}

var _ Store = &SQLiteStore{}

func toMillis(value time.Time) int64 {
	return value.UTC().UnixMilli()
}

func fromMillis(value int64) time.Time {
	return time.UnixMilli(value).UTC()
}

// NewSQLiteStore opens (or creates) the database at path.
func NewSQLiteStore(ctx context.Context, path string) (*SQLiteStore, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("sqlite adventure store: empty path")
	}
	dsn := path
	if !strings.Contains(dsn, "?") {
		dsn += "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, errors.Wrap(err, "open sqlite db")
	}
	db.SetMaxOpenConns(1)
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, errors.Wrap(err, "ping sqlite db")
	}
	s := &SQLiteStore{db: db}
	if err := s.migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS adventures (
		adventure_id TEXT PRIMARY KEY,
		started_at_ms INTEGER NOT NULL,
		ended_at_ms INTEGER NOT NULL,
		messages_json TEXT NOT NULL DEFAULT '[]',
		story_log_json TEXT NOT NULL DEFAULT '{}',
		fanfic_context TEXT NULL,
		updated_at_ms INTEGER NOT NULL
	);`)
	return errors.Wrap(err, "sqlite adventure store: migrate")
}

func (s *SQLiteStore) Upsert(ctx context.Context, rec Record) (Record, error) {
	if strings.TrimSpace(rec.AdventureID) == "" {
		return Record{}, errors.New("adventure id is required")
	}
	messages, storyLog, err := encodeRecordJSON(rec)
	if err != nil {
		return Record{}, err
	}
	out := rec.clone()
	out.UpdatedAt = time.Now().UTC().Truncate(time.Millisecond)

	var ctxText sql.NullString
	if rec.Context != nil {
		ctxText = sql.NullString{String: *rec.Context, Valid: true}
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO adventures (adventure_id, started_at_ms, ended_at_ms, messages_json, story_log_json, fanfic_context, updated_at_ms)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (adventure_id) DO UPDATE SET
			started_at_ms=excluded.started_at_ms,
			ended_at_ms=excluded.ended_at_ms,
			messages_json=excluded.messages_json,
			story_log_json=excluded.story_log_json,
			fanfic_context=excluded.fanfic_context,
			updated_at_ms=excluded.updated_at_ms`,
		rec.AdventureID,
		toMillis(rec.StartedAt),
		toMillis(rec.EndedAt),
		string(messages),
		string(storyLog),
		ctxText,
		toMillis(out.UpdatedAt),
	)
	if err != nil {
		return Record{}, errors.Wrapf(err, "upsert adventure %s", rec.AdventureID)
	}
	return out, nil
}

func (s *SQLiteStore) Get(ctx context.Context, adventureID string) (Record, error) {
	var (
		rec                Record
		startedMs, endedMs int64
		updatedMs          int64
		messages, storyLog string
		ctxText            sql.NullString
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT adventure_id, started_at_ms, ended_at_ms, messages_json, story_log_json, fanfic_context, updated_at_ms
		FROM adventures WHERE adventure_id = ?`,
		adventureID,
	).Scan(&rec.AdventureID, &startedMs, &endedMs, &messages, &storyLog, &ctxText, &updatedMs)
	if errors.Is(err, sql.ErrNoRows) {
		return Record{}, ErrNotFound
	}
	if err != nil {
		return Record{}, errors.Wrapf(err, "get adventure %s", adventureID)
	}
	rec.StartedAt = fromMillis(startedMs)
	rec.EndedAt = fromMillis(endedMs)
	rec.UpdatedAt = fromMillis(updatedMs)
	if ctxText.Valid {
		c := ctxText.String
		rec.Context = &c
	}
	if err := decodeRecordJSON(&rec, []byte(messages), []byte(storyLog)); err != nil {
		return Record{}, err
	}
	return rec, nil
}

func (s *SQLiteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}
