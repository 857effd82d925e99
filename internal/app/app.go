// Package app wires the service together.
package app

import (
	"context"

	"github.com/maxbolgarin/contem"
	"github.com/maxbolgarin/errm"
	"github.com/maxbolgarin/logze/v2"
	"github.com/totetech/reviewpilot/internal/generator"
	"github.com/totetech/reviewpilot/internal/model/interfaces"
	"github.com/totetech/reviewpilot/internal/provider"
	"github.com/totetech/reviewpilot/internal/reviewer"
	"github.com/totetech/reviewpilot/internal/server"
)

// App is the main service that orchestrates all components
type App struct {
	provider interfaces.CodeProvider
	reviewer *reviewer.Reviewer
	server   *server.Server

	cfg Config
	log logze.Logger
}

// New creates a new review automation service
func New(ctx contem.Context, cfg Config) (*App, error) {
	service := &App{
		cfg: cfg,
		log: logze.With("component", "app"),
	}

	if err := service.init(ctx, cfg); err != nil {
		return nil, errm.Wrap(err, "failed to initialize service")
	}

	return service, nil
}

// Start starts the webhook server
func (s *App) Start(ctx context.Context) error {
	if err := s.server.Start(ctx); err != nil {
		return errm.Wrap(err, "failed to start webhook server")
	}
	return nil
}

func (s *App) init(ctx contem.Context, cfg Config) (err error) {
	// Create VCS provider
	s.provider, err = provider.New(cfg.Provider)
	if err != nil {
		return errm.Wrap(err, "failed to create VCS provider")
	}

	// Create external review generator
	gen, err := generator.New(cfg.Generator)
	if err != nil {
		return errm.Wrap(err, "failed to create review generator")
	}

	// Create the review pipeline - this is the central orchestrator
	s.reviewer, err = reviewer.New(cfg.Review, s.provider, gen)
	if err != nil {
		return errm.Wrap(err, "failed to create review pipeline")
	}
	s.reviewer.SetBotUsername(cfg.Provider.BotUsername)
	ctx.Add(s.reviewer.Stop)

	// Create webhook server - just an event source
	s.server, err = server.New(cfg.Server, s.provider, s.reviewer)
	if err != nil {
		return errm.Wrap(err, "failed to create webhook server")
	}
	ctx.Add(s.server.Stop)

	return nil
}
