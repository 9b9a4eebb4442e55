package narrator

import (
	"context"
	"fmt"
	"strings"

	"github.com/ent0n29/narrador/internal/story"
)

// MockGateway provides deterministic narration when no provider is configured.
type MockGateway struct{}

func NewMockGateway() *MockGateway { return &MockGateway{} }

func (g *MockGateway) Name() string { return KindMock }

func (g *MockGateway) Generate(ctx context.Context, in Input) (string, error) {
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	default:
	}

	history := story.WithoutWelcome(in.History)
	if len(history) == 0 {
		return "", ErrEmptyHistory
	}
	last := strings.TrimSpace(history[len(history)-1].Text)

	if len(history) == 1 {
		return fmt.Sprintf("A névoa se abre e a sua história começa: %s\n```json\n{\"worldAndSetting\": \"Uma estrada enevoada ao anoitecer.\"}\n```", last), nil
	}
	return fmt.Sprintf("O narrador considera sua ação: %s", last), nil
}
