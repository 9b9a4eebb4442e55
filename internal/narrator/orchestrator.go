package narrator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/ent0n29/narrador/internal/observability"
	"github.com/ent0n29/narrador/internal/redact"
	"github.com/ent0n29/narrador/internal/reliability"
)

// Source tells which provider produced a Result.
type Source string

const (
	SourcePrimary   Source = "primary"
	SourceSecondary Source = "secondary"
)

const (
	primaryApologyFormat   = "Desculpe, ocorreu um erro com a IA: %s"
	secondaryApologyFormat = "Desculpe, o narrador alternativo (%s) também encontrou um erro: %s"
	fallbackUnavailable    = "Serviço de fallback não está configurado."
)

// Result is what the game loop receives for one turn. Failures are already
// rendered as apology text.
type Result struct {
	Text         string
	Source       Source
	ProviderName string
}

// Orchestrator calls the primary gateway and hands eligible failures to the
// secondary exactly once.
type Orchestrator struct {
	primary   Gateway
	secondary Gateway
	metrics   *observability.Metrics
}

func NewOrchestrator(primary, secondary Gateway, metrics *observability.Metrics) *Orchestrator {
	return &Orchestrator{primary: primary, secondary: secondary, metrics: metrics}
}

// Primary returns the preferred gateway.
func (o *Orchestrator) Primary() Gateway { return o.primary }

// Secondary returns the fallback gateway, or nil.
func (o *Orchestrator) Secondary() Gateway { return o.secondary }

func (o *Orchestrator) Generate(ctx context.Context, in Input) Result {
	if o.primary == nil {
		return Result{Text: fmt.Sprintf(primaryApologyFormat, "narrador principal não configurado"), Source: SourcePrimary}
	}

	text, err := o.call(ctx, o.primary, in)
	if err == nil {
		return Result{Text: text, Source: SourcePrimary, ProviderName: o.primary.Name()}
	}

	class, msg := describe(err)
	if !reliability.IsFallbackEligible(class) {
		log.Error().Err(err).Str("provider", o.primary.Name()).Str("class", string(class)).Msg("narrator request failed")
		return Result{
			Text:         fmt.Sprintf(primaryApologyFormat, msg),
			Source:       SourcePrimary,
			ProviderName: o.primary.Name(),
		}
	}

	o.metrics.ObserveFallback(string(class))
	if o.secondary == nil {
		log.Warn().Err(err).Str("provider", o.primary.Name()).Str("class", string(class)).Msg("fallback requested but no secondary narrator is configured")
		return Result{Text: fallbackUnavailable, Source: SourceSecondary}
	}
	log.Warn().Err(err).
		Str("provider", o.primary.Name()).
		Str("fallback", o.secondary.Name()).
		Str("class", string(class)).
		Msg("primary narrator failed, switching to secondary")

	text, err = o.call(ctx, o.secondary, in)
	if err != nil {
		_, secondaryMsg := describe(err)
		log.Error().Err(err).Str("provider", o.secondary.Name()).Msg("secondary narrator failed")
		return Result{
			Text:         fmt.Sprintf(secondaryApologyFormat, o.secondary.Name(), secondaryMsg),
			Source:       SourceSecondary,
			ProviderName: o.secondary.Name(),
		}
	}
	return Result{Text: text, Source: SourceSecondary, ProviderName: o.secondary.Name()}
}

func (o *Orchestrator) call(ctx context.Context, g Gateway, in Input) (string, error) {
	start := time.Now()
	text, err := g.Generate(ctx, in)
	outcome := "ok"
	if err != nil {
		class, _ := describe(err)
		outcome = string(class)
	}
	o.metrics.ObserveGeneration(g.Name(), outcome, time.Since(start))
	return text, err
}

// describe returns the failure class and a player-safe message for err.
func describe(err error) (reliability.StatusClass, string) {
	class, msg := reliability.ClassOther, err.Error()
	var perr *ProviderError
	if errors.As(err, &perr) {
		class, msg = perr.Class, perr.Message
	}
	msg, _ = redact.Secrets(msg)
	return class, msg
}
