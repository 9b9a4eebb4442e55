package adventure

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type outcomeSink struct {
	mu       sync.Mutex
	outcomes []Outcome
}

func (s *outcomeSink) observe(o Outcome) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.outcomes = append(s.outcomes, o)
}

func (s *outcomeSink) all() []Outcome {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Outcome(nil), s.outcomes...)
}

func TestSaverLaunchesEveryFifthTurn(t *testing.T) {
	store := NewInMemoryStore()
	sink := &outcomeSink{}
	p := NewPersister(store, sink.observe)
	saver := p.NewSaver()

	snapshots := 0
	snapshot := func() Record {
		snapshots++
		return sampleRecord("adv-5")
	}

	for i := 1; i <= 4; i++ {
		assert.False(t, saver.RecordPlayerTurn(snapshot), "turn %d", i)
	}
	assert.Equal(t, 4, saver.Count())
	assert.True(t, saver.RecordPlayerTurn(snapshot))
	assert.Equal(t, 0, saver.Count())

	require.NoError(t, p.Wait(context.Background()))
	assert.Equal(t, 1, snapshots)
	assert.Equal(t, 1, store.Upserts())

	out := sink.all()
	require.Len(t, out, 1)
	assert.True(t, out[0].OK)
	assert.Equal(t, "adv-5", out[0].AdventureID)

	for i := 0; i < 5; i++ {
		saver.RecordPlayerTurn(snapshot)
	}
	require.NoError(t, p.Wait(context.Background()))
	assert.Equal(t, 2, store.Upserts())
}

type failingStore struct{ InMemoryStore }

func (*failingStore) Upsert(context.Context, Record) (Record, error) {
	return Record{}, errors.New("connection refused")
}

func TestSaverReportsFailureWithoutRetry(t *testing.T) {
	sink := &outcomeSink{}
	p := NewPersister(&failingStore{}, sink.observe)
	saver := p.NewSaver()

	for i := 0; i < SaveThreshold; i++ {
		saver.RecordPlayerTurn(func() Record { return sampleRecord("adv-x") })
	}
	require.NoError(t, p.Wait(context.Background()))

	out := sink.all()
	require.Len(t, out, 1)
	assert.False(t, out[0].OK)
	assert.Contains(t, out[0].Message, "connection refused")
}

func TestSaverReset(t *testing.T) {
	saver := NewPersister(NewInMemoryStore(), nil).NewSaver()
	saver.RecordPlayerTurn(func() Record { return Record{} })
	saver.RecordPlayerTurn(func() Record { return Record{} })
	saver.Reset()
	assert.Equal(t, 0, saver.Count())
}

type blockingStore struct {
	InMemoryStore
	release chan struct{}
}

func (s *blockingStore) Upsert(ctx context.Context, rec Record) (Record, error) {
	<-s.release
	return rec, nil
}

func TestPersisterWaitHonoursContext(t *testing.T) {
	store := &blockingStore{release: make(chan struct{})}
	p := NewPersister(store, func(Outcome) {})
	p.Launch(sampleRecord("slow"))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, p.Wait(ctx), context.DeadlineExceeded)

	close(store.release)
	require.NoError(t, p.Wait(context.Background()))
}

func TestPersisterShutdownDropsLateSaves(t *testing.T) {
	store := NewInMemoryStore()
	sink := &outcomeSink{}
	p := NewPersister(store, sink.observe)

	p.Launch(sampleRecord("before"))
	require.NoError(t, p.Shutdown(context.Background()))
	assert.Equal(t, 1, store.Upserts())

	p.Launch(sampleRecord("after"))
	require.NoError(t, p.Wait(context.Background()))
	assert.Equal(t, 1, store.Upserts())
	assert.Len(t, sink.all(), 1)
}

func TestPersisterLaunchRacesShutdown(t *testing.T) {
	p := NewPersister(NewInMemoryStore(), func(Outcome) {})

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			p.Launch(sampleRecord("racing"))
		}()
	}
	require.NoError(t, p.Shutdown(context.Background()))
	wg.Wait()
	require.NoError(t, p.Wait(context.Background()))
}
