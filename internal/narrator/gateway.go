package narrator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ent0n29/narrador/internal/reliability"
	"github.com/ent0n29/narrador/internal/story"
)

// Input is everything a provider needs to narrate the next turn.
type Input struct {
	History []story.Turn
	Log     story.StoryLog
	Context *string
}

// Gateway produces the next narrator completion for a history.
type Gateway interface {
	Generate(ctx context.Context, in Input) (string, error)
	Name() string
}

// Provider kinds accepted by NewGateway.
const (
	KindGemini = "gemini"
	KindGroq   = "groq"
	KindXAI    = "xai"
	KindOpenAI = "openai"
	KindOllama = "ollama"
	KindMock   = "mock"
)

var ErrMissingAPIKey = errors.New("provider api key is required")

// ProviderConfig controls gateway construction.
type ProviderConfig struct {
	Kind    string
	APIKey  string
	BaseURL string
	Model   string
	Timeout time.Duration
}

// ProviderError is a classified provider failure.
type ProviderError struct {
	Provider   string
	Class      reliability.StatusClass
	StatusCode int
	Message    string
	Err        error
}

func (e *ProviderError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("%s: %s (status %d, %s)", e.Provider, e.Message, e.StatusCode, e.Class)
	}
	return fmt.Sprintf("%s: %s (%s)", e.Provider, e.Message, e.Class)
}

func (e *ProviderError) Unwrap() error { return e.Err }

func newProviderError(provider string, class reliability.StatusClass, status int, err error) *ProviderError {
	msg := "unknown error"
	if err != nil {
		msg = err.Error()
	}
	return &ProviderError{
		Provider:   provider,
		Class:      class,
		StatusCode: status,
		Message:    msg,
		Err:        err,
	}
}

// NewGateway builds the adapter selected by cfg.Kind.
func NewGateway(ctx context.Context, cfg ProviderConfig) (Gateway, error) {
	kind := strings.ToLower(strings.TrimSpace(cfg.Kind))
	switch kind {
	case KindGemini:
		return NewGeminiGateway(ctx, cfg)
	case KindGroq, KindXAI, KindOpenAI:
		return NewChatCompletionsGateway(kind, cfg)
	case KindOllama:
		return NewOllamaGateway(cfg)
	case KindMock:
		return NewMockGateway(), nil
	default:
		return nil, fmt.Errorf("unsupported narrator provider %q", cfg.Kind)
	}
}
