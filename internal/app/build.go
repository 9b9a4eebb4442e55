package app

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/ent0n29/narrador/internal/adventure"
	"github.com/ent0n29/narrador/internal/config"
	"github.com/ent0n29/narrador/internal/game"
	"github.com/ent0n29/narrador/internal/httpapi"
	"github.com/ent0n29/narrador/internal/narrator"
	"github.com/ent0n29/narrador/internal/observability"
	"github.com/ent0n29/narrador/internal/session"
)

type BuildResult struct {
	Config       config.Config
	API          *httpapi.Server
	Sessions     *session.Manager
	Orchestrator *narrator.Orchestrator
	Persister    *adventure.Persister
	Metrics      *observability.Metrics

	// Cleanup releases the adventure store. Call it after Persister.Wait.
	Cleanup func() error
}

func Build(ctx context.Context, cfg config.Config) (*BuildResult, error) {
	metrics := observability.NewMetrics(cfg.MetricsNamespace)

	store, err := adventure.NewStore(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("adventure store init failed: %w", err)
	}

	primary, err := narrator.NewGateway(ctx, providerConfig(cfg, cfg.PrimaryProvider))
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("primary narrator init failed: %w", err)
	}

	var secondary narrator.Gateway
	if cfg.SecondaryProvider != "" {
		gw, err := narrator.NewGateway(ctx, providerConfig(cfg, cfg.SecondaryProvider))
		if err != nil {
			log.Warn().Err(err).Str("provider", cfg.SecondaryProvider).Msg("secondary narrator unavailable, fallback disabled")
		} else {
			secondary = gw
		}
	}

	persister := adventure.NewPersister(store, func(out adventure.Outcome) {
		metrics.ObserveSave(out.OK)
		if out.OK {
			log.Info().Str("adventure_id", out.AdventureID).Msg(out.Message)
			return
		}
		log.Error().Str("adventure_id", out.AdventureID).Str("error", out.Message).Msg("adventure save failed")
	})

	orchestrator := narrator.NewOrchestrator(primary, secondary, metrics)

	sessions := session.NewManager(cfg.SessionInactivityTimeout)
	sessions.SetExpireHook(func(s *session.Session) {
		metrics.SessionEvent("expired")
		metrics.SetActiveSessions(sessions.ActiveCount())
		log.Info().Str("session_id", s.ID).Msg("session expired after inactivity")
	})

	newGame := func() *game.Game {
		return game.New(orchestrator, persister.NewSaver(), metrics)
	}
	api := httpapi.New(cfg, sessions, newGame, metrics)

	secondaryName := "disabled"
	if secondary != nil {
		secondaryName = secondary.Name()
	}
	log.Info().
		Str("primary", primary.Name()).
		Str("secondary", secondaryName).
		Str("store", adventure.StoreMode(cfg.DatabaseURL)).
		Msg("narrator pipeline ready")

	cleanup := func() error {
		var errs []string
		if err := store.Close(); err != nil {
			errs = append(errs, err.Error())
		}
		if len(errs) > 0 {
			return fmt.Errorf("%s", strings.Join(errs, "; "))
		}
		return nil
	}

	return &BuildResult{
		Config:       cfg,
		API:          api,
		Sessions:     sessions,
		Orchestrator: orchestrator,
		Persister:    persister,
		Metrics:      metrics,
		Cleanup:      cleanup,
	}, nil
}

func providerConfig(cfg config.Config, kind string) narrator.ProviderConfig {
	apiKey, baseURL, model := cfg.ProviderSettings(kind)
	return narrator.ProviderConfig{
		Kind:    kind,
		APIKey:  apiKey,
		BaseURL: baseURL,
		Model:   model,
		Timeout: cfg.ProviderTimeout,
	}
}
