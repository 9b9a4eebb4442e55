package game

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ent0n29/narrador/internal/adventure"
	"github.com/ent0n29/narrador/internal/narrator"
	"github.com/ent0n29/narrador/internal/story"
)

const (
	timeout = time.Second
	tick    = 5 * time.Millisecond
)

type scriptedNarrator struct {
	mu      sync.Mutex
	replies []string
	calls   int
	inputs  []narrator.Input
	block   chan struct{}
}

func (n *scriptedNarrator) Generate(_ context.Context, in narrator.Input) narrator.Result {
	if n.block != nil {
		<-n.block
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	n.calls++
	n.inputs = append(n.inputs, in)
	text := "O narrador continua."
	if len(n.replies) > 0 {
		text = n.replies[0]
		n.replies = n.replies[1:]
	}
	return narrator.Result{Text: text, Source: narrator.SourcePrimary, ProviderName: "fake"}
}

func newTestGame(t *testing.T, n Narrator) (*Game, *adventure.InMemoryStore, *adventure.Persister) {
	t.Helper()
	store := adventure.NewInMemoryStore()
	p := adventure.NewPersister(store, func(adventure.Outcome) {})
	g := New(n, p.NewSaver(), nil)
	require.NoError(t, g.Start(""))
	return g, store, p
}

func TestStartAddsWelcomeTurn(t *testing.T) {
	g, _, _ := newTestGame(t, &scriptedNarrator{})
	st := g.State()

	require.Len(t, st.Turns, 1)
	assert.Equal(t, story.WelcomeTurnID, st.Turns[0].ID)
	assert.Equal(t, WelcomeText, st.Turns[0].Text)
	assert.NotEmpty(t, st.AdventureID)
	assert.Nil(t, st.Context)
	assert.NotNil(t, st.Log.CastOfCharacters)
}

func TestSubmitBeforeStart(t *testing.T) {
	g := New(&scriptedNarrator{}, nil, nil)
	_, err := g.SubmitPlayerText(context.Background(), "oi")
	assert.ErrorIs(t, err, ErrNotStarted)
}

func TestSubmitExtractsLogAndDirective(t *testing.T) {
	n := &scriptedNarrator{replies: []string{
		"Você entra na taverna. [ROLL_D20:convencer o taverneiro]\n```json\n{\"worldAndSetting\":\"Uma taverna escura\"}\n```",
	}}
	g, _, _ := newTestGame(t, n)

	out, err := g.SubmitPlayerText(context.Background(), "Eu sou um ladino")
	require.NoError(t, err)

	assert.Equal(t, "Você entra na taverna. ", out.Display)
	require.NotNil(t, out.Directive)
	assert.Equal(t, "convencer o taverneiro", out.Directive.Reason)
	assert.Equal(t, "Uma taverna escura", out.Log.WorldAndSetting)
	assert.Equal(t, story.RoleNarrator, out.Turn.Role)
	assert.Equal(t, "Você entra na taverna. [ROLL_D20:convencer o taverneiro]", out.Turn.Text)
	assert.Equal(t, narrator.SourcePrimary, out.Source)

	require.Len(t, n.inputs, 1)
	require.Len(t, n.inputs[0].History, 1)
	assert.Equal(t, "Eu sou um ladino", n.inputs[0].History[0].Text)

	st := g.State()
	require.NotNil(t, st.Directive)
	assert.Len(t, st.Turns, 3)
}

func TestBlankFirstInputUsesDefaultCharacter(t *testing.T) {
	n := &scriptedNarrator{}
	g, _, _ := newTestGame(t, n)

	out, err := g.SubmitPlayerText(context.Background(), "   ")
	require.NoError(t, err)
	assert.Equal(t, DefaultCharacter, out.PlayerTurn.Text)
	assert.Equal(t, DefaultCharacter, n.inputs[0].History[0].Text)

	out, err = g.SubmitPlayerText(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, "", out.PlayerTurn.Text)
}

func TestDirectiveBlocksTextUntilResolved(t *testing.T) {
	n := &scriptedNarrator{replies: []string{"A ponte balança. [ROLL_D20:atravessar]", "Você atravessa."}}
	g, _, _ := newTestGame(t, n)

	_, err := g.ResolveDirective(context.Background(), 10)
	require.ErrorIs(t, err, ErrNoDirective)

	_, err = g.SubmitPlayerText(context.Background(), "Atravesso a ponte")
	require.NoError(t, err)

	_, err = g.SubmitPlayerText(context.Background(), "Espero")
	require.ErrorIs(t, err, ErrDirectivePending)

	_, err = g.ResolveDirective(context.Background(), 21)
	require.ErrorIs(t, err, ErrInvalidRoll)
	_, err = g.ResolveDirective(context.Background(), 0)
	require.ErrorIs(t, err, ErrInvalidRoll)

	out, err := g.ResolveDirective(context.Background(), 17)
	require.NoError(t, err)
	assert.Equal(t, "[Resultado do D20: 17]", out.PlayerTurn.Text)
	assert.Nil(t, out.Directive)
	assert.Nil(t, g.State().Directive)
	assert.Equal(t, 2, n.calls)
}

func TestSubmitRejectsConcurrentRequest(t *testing.T) {
	n := &scriptedNarrator{block: make(chan struct{})}
	g, _, _ := newTestGame(t, n)

	done := make(chan error, 1)
	go func() {
		_, err := g.SubmitPlayerText(context.Background(), "primeiro")
		done <- err
	}()

	require.Eventually(t, func() bool { return g.State().Pending }, timeout, tick)

	_, err := g.SubmitPlayerText(context.Background(), "segundo")
	assert.ErrorIs(t, err, ErrRequestPending)
	assert.ErrorIs(t, g.Discard(), ErrRequestPending)

	close(n.block)
	require.NoError(t, <-done)
	assert.False(t, g.State().Pending)
}

func TestSaveAfterFivePlayerTurns(t *testing.T) {
	n := &scriptedNarrator{}
	g, store, p := newTestGame(t, n)

	for i := 0; i < 4; i++ {
		out, err := g.SubmitPlayerText(context.Background(), "passo")
		require.NoError(t, err)
		assert.False(t, out.SaveLaunched)
	}
	require.NoError(t, p.Wait(context.Background()))
	assert.Equal(t, 0, store.Upserts())

	out, err := g.SubmitPlayerText(context.Background(), "quinto passo")
	require.NoError(t, err)
	assert.True(t, out.SaveLaunched)
	require.NoError(t, p.Wait(context.Background()))
	assert.Equal(t, 1, store.Upserts())

	rec, err := store.Get(context.Background(), g.AdventureID())
	require.NoError(t, err)
	assert.Len(t, rec.Turns, 10)
	for _, turn := range rec.Turns {
		assert.NotEqual(t, story.WelcomeTurnID, turn.ID)
	}
	assert.Equal(t, 0, g.State().PlayerTurns)
}

func TestDiscardRestartsWithSameContext(t *testing.T) {
	store := adventure.NewInMemoryStore()
	p := adventure.NewPersister(store, nil)
	g := New(&scriptedNarrator{}, p.NewSaver(), nil)
	require.NoError(t, g.Start("Um conto de neve"))
	first := g.AdventureID()

	_, err := g.SubmitPlayerText(context.Background(), "oi")
	require.NoError(t, err)

	require.NoError(t, g.Discard())
	st := g.State()
	assert.NotEqual(t, first, st.AdventureID)
	require.NotNil(t, st.Context)
	assert.Equal(t, "Um conto de neve", *st.Context)
	assert.Len(t, st.Turns, 1)
	assert.Equal(t, 0, st.PlayerTurns)
}

func TestExportTranscriptIncludesWelcomeAndStripsDirective(t *testing.T) {
	n := &scriptedNarrator{replies: []string{"Olá viajante [ROLL_D20:reagir]"}}
	g, _, _ := newTestGame(t, n)
	_, err := g.SubmitPlayerText(context.Background(), "Oi")
	require.NoError(t, err)

	out := g.ExportTranscript()
	assert.True(t, strings.HasPrefix(out, "Narrador:\nBem-vindo, aventureiro!"))
	assert.Contains(t, out, "Você:\nOi\n")
	assert.Contains(t, out, "Olá viajante")
	assert.NotContains(t, out, "[ROLL_D20:")
}

func TestSnapshotFiltersWelcome(t *testing.T) {
	g, _, _ := newTestGame(t, &scriptedNarrator{})
	_, err := g.SubmitPlayerText(context.Background(), "Oi")
	require.NoError(t, err)

	rec := g.Snapshot()
	assert.Len(t, rec.Turns, 2)
	assert.Equal(t, g.AdventureID(), rec.AdventureID)
	assert.False(t, rec.EndedAt.Before(rec.StartedAt))
}

func TestRollD20Range(t *testing.T) {
	for i := 0; i < 500; i++ {
		v := RollD20()
		if v < 1 || v > 20 {
			t.Fatalf("RollD20() = %d", v)
		}
	}
}

func TestSubmitCompletesAfterCallerCancels(t *testing.T) {
	orch := narrator.NewOrchestrator(narrator.NewMockGateway(), nil, nil)
	g, _, _ := newTestGame(t, orch)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	out, err := g.SubmitPlayerText(ctx, "Eu sou um ladino")
	require.NoError(t, err)
	assert.Equal(t, narrator.SourcePrimary, out.Source)
	assert.Equal(t, "A névoa se abre e a sua história começa: Eu sou um ladino", out.Turn.Text)
	assert.Equal(t, "Uma estrada enevoada ao anoitecer.", out.Log.WorldAndSetting)

	st := g.State()
	require.Len(t, st.Turns, 3)
	assert.NotContains(t, st.Turns[2].Text, "Desculpe")
}
