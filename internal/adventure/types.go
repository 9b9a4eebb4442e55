package adventure

import (
	"context"
	"errors"
	"time"

	"github.com/ent0n29/narrador/internal/story"
)

var ErrNotFound = errors.New("adventure not found")

// Record is the persisted snapshot of one adventure. Turns never include the
// scripted welcome turn.
type Record struct {
	AdventureID string         `json:"adventure_id"`
	StartedAt   time.Time      `json:"started_at"`
	EndedAt     time.Time      `json:"ended_at"`
	Turns       []story.Turn   `json:"messages"`
	StoryLog    story.StoryLog `json:"story_log"`
	Context     *string        `json:"fanfic_context,omitempty"`
	UpdatedAt   time.Time      `json:"updated_at"`
}

func (r Record) clone() Record {
	out := r
	out.Turns = append([]story.Turn(nil), r.Turns...)
	out.StoryLog = r.StoryLog.Clone()
	if r.Context != nil {
		c := *r.Context
		out.Context = &c
	}
	return out
}

// Store persists adventure snapshots keyed by adventure id.
type Store interface {
	// Upsert inserts the record or replaces the existing one with the same id.
	Upsert(ctx context.Context, rec Record) (Record, error)
	Get(ctx context.Context, adventureID string) (Record, error)
	Close() error
}
