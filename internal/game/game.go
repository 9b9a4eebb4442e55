package game

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/ent0n29/narrador/internal/adventure"
	"github.com/ent0n29/narrador/internal/narrator"
	"github.com/ent0n29/narrador/internal/observability"
	"github.com/ent0n29/narrador/internal/story"
)

var (
	ErrNotStarted       = errors.New("adventure not started")
	ErrRequestPending   = errors.New("a narration request is already in progress")
	ErrDirectivePending = errors.New("a dice roll must be resolved first")
	ErrNoDirective      = errors.New("no dice roll is pending")
	ErrInvalidRoll      = errors.New("roll result must be between 1 and 20")
)

const WelcomeText = "Bem-vindo, aventureiro! Antes de começarmos, descreva seu personagem.\n\n" +
	"Quem é você? Qual sua aparência, suas habilidades? E que tipo de história você gostaria de viver?\n\n" +
	"(Se preferir, deixe em branco e eu criarei um personagem padrão para você começar.)"

// DefaultCharacter replaces a blank first answer to the welcome turn.
const DefaultCharacter = "Use um personagem padrão: Um andarilho misterioso com um passado sombrio, " +
	"vestindo um manto surrado que esconde feições cansadas. Habilidoso com uma lâmina curta e sobrevivência, " +
	"busca por uma relíquia perdida para redimir um erro antigo. A aventura deve ser focada em exploração e mistério."

// Narrator produces the narrator reply for a turn. Failures come back as
// apology text, never as errors.
type Narrator interface {
	Generate(ctx context.Context, in narrator.Input) narrator.Result
}

// Outcome describes the narrator turn produced by one submission.
type Outcome struct {
	AdventureID  string                  `json:"adventure_id"`
	PlayerTurn   story.Turn              `json:"player_turn"`
	Turn         story.Turn              `json:"turn"`
	Display      string                  `json:"display"`
	Directive    *story.DirectiveRequest `json:"directive,omitempty"`
	Source       narrator.Source         `json:"source"`
	ProviderName string                  `json:"provider,omitempty"`
	Log          story.StoryLog          `json:"story_log"`
	SaveLaunched bool                    `json:"save_launched"`
}

// State is a copy of the game for read-only callers.
type State struct {
	AdventureID string                  `json:"adventure_id"`
	StartedAt   time.Time               `json:"started_at"`
	Context     *string                 `json:"context,omitempty"`
	// Turns hold the raw narrator text. Renderers show only the text before
	// the first story.DirectiveMarker.
	Turns       []story.Turn            `json:"turns"`
	Log         story.StoryLog          `json:"story_log"`
	Directive   *story.DirectiveRequest `json:"directive,omitempty"`
	Pending     bool                    `json:"pending"`
	PlayerTurns int                     `json:"player_turns_since_save"`
}

// Game owns one adventure: its turns, story log, pending directive and
// save counter. At most one narration request is in flight at a time.
type Game struct {
	narrator Narrator
	saver    *adventure.Saver
	metrics  *observability.Metrics
	now      func() time.Time

	mu          sync.Mutex
	started     bool
	pending     bool
	adventureID string
	startedAt   time.Time
	inspiration *string
	turns       []story.Turn
	log         story.StoryLog
	directive   *story.DirectiveRequest
}

func New(n Narrator, saver *adventure.Saver, metrics *observability.Metrics) *Game {
	return &Game{
		narrator: n,
		saver:    saver,
		metrics:  metrics,
		now:      func() time.Time { return time.Now().UTC() },
		log:      story.NewStoryLog(),
	}
}

// Start begins a fresh adventure. A blank inspiration means none.
func (g *Game) Start(inspiration string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.pending {
		return ErrRequestPending
	}
	var ctxText *string
	if strings.TrimSpace(inspiration) != "" {
		ctxText = &inspiration
	}
	g.startLocked(ctxText)
	return nil
}

func (g *Game) startLocked(inspiration *string) {
	g.started = true
	g.adventureID = uuid.NewString()
	g.startedAt = g.now()
	g.inspiration = inspiration
	g.turns = []story.Turn{{Role: story.RoleNarrator, Text: WelcomeText, ID: story.WelcomeTurnID}}
	g.log = story.NewStoryLog()
	g.directive = nil
	if g.saver != nil {
		g.saver.Reset()
	}
}

// Discard abandons the current adventure and restarts with the same
// inspiration under a new adventure id.
func (g *Game) Discard() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.started {
		return ErrNotStarted
	}
	if g.pending {
		return ErrRequestPending
	}
	previous := g.adventureID
	g.startLocked(g.inspiration)
	log.Info().Str("previous_adventure_id", previous).Str("adventure_id", g.adventureID).Msg("adventure discarded")
	return nil
}

func (g *Game) SubmitPlayerText(ctx context.Context, text string) (Outcome, error) {
	return g.submit(ctx, text, false)
}

// ResolveDirective answers the outstanding roll with result and sends the
// roll to the narrator as a player turn.
func (g *Game) ResolveDirective(ctx context.Context, result int) (Outcome, error) {
	if result < 1 || result > 20 {
		return Outcome{}, ErrInvalidRoll
	}
	return g.submit(ctx, fmt.Sprintf("[Resultado do D20: %d]", result), true)
}

// RollD20 returns a uniform roll in 1..20.
func RollD20() int {
	return rand.IntN(20) + 1
}

func (g *Game) submit(ctx context.Context, text string, resolving bool) (Outcome, error) {
	g.mu.Lock()
	if !g.started {
		g.mu.Unlock()
		return Outcome{}, ErrNotStarted
	}
	if g.pending {
		g.mu.Unlock()
		return Outcome{}, ErrRequestPending
	}
	if resolving {
		if g.directive == nil {
			g.mu.Unlock()
			return Outcome{}, ErrNoDirective
		}
		g.directive = nil
	} else if g.directive != nil {
		g.mu.Unlock()
		return Outcome{}, ErrDirectivePending
	}

	if !resolving && len(g.turns) == 1 && g.turns[0].IsWelcome() && strings.TrimSpace(text) == "" {
		text = DefaultCharacter
	}
	player := story.Turn{Role: story.RolePlayer, Text: text, ID: newTurnID()}
	g.turns = append(g.turns, player)
	g.pending = true
	adventureID := g.adventureID
	in := narrator.Input{
		History: story.WithoutWelcome(g.turns),
		Log:     g.log.Clone(),
		Context: g.inspiration,
	}
	g.mu.Unlock()

	// A started generation always completes; provider timeouts bound it.
	start := time.Now()
	res := g.narrator.Generate(context.WithoutCancel(ctx), in)

	narrative, update, err := story.ExtractStoryLog(res.Text)
	if err != nil {
		g.metrics.ObserveParseError()
		log.Warn().Err(err).Str("adventure_id", adventureID).Msg("story log block could not be decoded")
	}
	display, directive := story.ExtractDirective(narrative)
	if directive != nil {
		g.metrics.ObserveDirective()
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	if update != nil {
		g.log = g.log.Merge(*update)
	}
	turn := story.Turn{Role: story.RoleNarrator, Text: narrative, ID: newTurnID()}
	g.turns = append(g.turns, turn)
	g.directive = directive
	g.pending = false

	saved := false
	if g.saver != nil {
		saved = g.saver.RecordPlayerTurn(g.snapshotLocked)
	}
	g.metrics.ObserveTurn(time.Since(start))

	return Outcome{
		AdventureID:  adventureID,
		PlayerTurn:   player,
		Turn:         turn,
		Display:      display,
		Directive:    directive,
		Source:       res.Source,
		ProviderName: res.ProviderName,
		Log:          g.log.Clone(),
		SaveLaunched: saved,
	}, nil
}

// ExportTranscript renders the adventure as plain text.
func (g *Game) ExportTranscript() string {
	g.mu.Lock()
	turns := append([]story.Turn(nil), g.turns...)
	g.mu.Unlock()
	return story.ExportTranscript(turns)
}

// Snapshot returns the record that a save would persist.
func (g *Game) Snapshot() adventure.Record {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.snapshotLocked()
}

func (g *Game) snapshotLocked() adventure.Record {
	rec := adventure.Record{
		AdventureID: g.adventureID,
		StartedAt:   g.startedAt,
		EndedAt:     g.now(),
		Turns:       story.WithoutWelcome(g.turns),
		StoryLog:    g.log.Clone(),
	}
	if g.inspiration != nil {
		c := *g.inspiration
		rec.Context = &c
	}
	return rec
}

func (g *Game) State() State {
	g.mu.Lock()
	defer g.mu.Unlock()
	st := State{
		AdventureID: g.adventureID,
		StartedAt:   g.startedAt,
		Turns:       append([]story.Turn(nil), g.turns...),
		Log:         g.log.Clone(),
		Pending:     g.pending,
	}
	if g.inspiration != nil {
		c := *g.inspiration
		st.Context = &c
	}
	if g.directive != nil {
		d := *g.directive
		st.Directive = &d
	}
	if g.saver != nil {
		st.PlayerTurns = g.saver.Count()
	}
	return st
}

func (g *Game) AdventureID() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.adventureID
}

func newTurnID() string {
	return uuid.Must(uuid.NewV7()).String()
}
