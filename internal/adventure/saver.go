package adventure

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// SaveThreshold is the number of player turns between background saves.
const SaveThreshold = 5

const defaultSaveTimeout = 30 * time.Second

// Outcome reports the result of one background save.
type Outcome struct {
	AdventureID string
	OK          bool
	Message     string
}

// Observer receives save outcomes. It must not block for long.
type Observer func(Outcome)

// Persister runs fire-and-forget upserts. Failures are reported to the
// observer and never retried.
type Persister struct {
	store    Store
	observer Observer
	timeout  time.Duration

	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup
}

func NewPersister(store Store, observer Observer) *Persister {
	return &Persister{store: store, observer: observer, timeout: defaultSaveTimeout}
}

// Launch starts a detached save of rec and returns immediately. After
// Shutdown it drops the save.
func (p *Persister) Launch(rec Record) {
	if p == nil || p.store == nil {
		return
	}
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		log.Warn().Str("adventure_id", rec.AdventureID).Msg("adventure save skipped during shutdown")
		return
	}
	p.wg.Add(1)
	p.mu.Unlock()

	rec = rec.clone()
	go func() {
		defer p.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
		defer cancel()

		out := Outcome{AdventureID: rec.AdventureID, OK: true}
		if _, err := p.store.Upsert(ctx, rec); err != nil {
			out.OK = false
			out.Message = err.Error()
		} else {
			out.Message = fmt.Sprintf("Adventure %s saved.", rec.AdventureID)
		}
		p.report(out)
	}()
}

func (p *Persister) report(out Outcome) {
	if p.observer != nil {
		p.observer(out)
		return
	}
	if out.OK {
		log.Info().Str("adventure_id", out.AdventureID).Msg(out.Message)
		return
	}
	log.Error().Str("adventure_id", out.AdventureID).Str("error", out.Message).Msg("adventure save failed")
}

// Shutdown stops accepting new saves and waits for in-flight ones.
func (p *Persister) Shutdown(ctx context.Context) error {
	if p == nil {
		return nil
	}
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()
	return p.Wait(ctx)
}

// Wait blocks until in-flight saves finish or ctx is done.
func (p *Persister) Wait(ctx context.Context) error {
	if p == nil {
		return nil
	}
	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// NewSaver returns a per-adventure turn counter bound to p.
func (p *Persister) NewSaver() *Saver {
	return &Saver{persister: p, threshold: SaveThreshold}
}

// Saver counts player turns for one adventure and triggers a save every
// threshold turns.
type Saver struct {
	persister *Persister
	threshold int

	mu    sync.Mutex
	count int
}

// RecordPlayerTurn counts one player turn. When the threshold is reached the
// counter resets and snapshot is saved in the background. It reports whether
// a save was launched.
func (s *Saver) RecordPlayerTurn(snapshot func() Record) bool {
	s.mu.Lock()
	s.count++
	if s.count < s.threshold {
		s.mu.Unlock()
		return false
	}
	s.count = 0
	s.mu.Unlock()

	s.persister.Launch(snapshot())
	return true
}

func (s *Saver) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.count
}

func (s *Saver) Reset() {
	s.mu.Lock()
	s.count = 0
	s.mu.Unlock()
}
