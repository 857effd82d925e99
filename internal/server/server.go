// Package server receives webhook events from VCS providers and feeds
// qualifying pull request events into the review pipeline.
package server

import (
	"context"
	"net/http"

	"github.com/maxbolgarin/erro"
	"github.com/maxbolgarin/logze/v2"
	"github.com/maxbolgarin/servex/v2"
	"github.com/totetech/reviewpilot/internal/model/interfaces"
	"github.com/totetech/reviewpilot/internal/reviewer"
)

// Server handles webhook requests from VCS providers
type Server struct {
	provider interfaces.CodeProvider
	reviewer *reviewer.Reviewer
	config   Config
	log      logze.Logger
	server   *servex.Server
}

// New creates a new webhook server
func New(cfg Config, provider interfaces.CodeProvider, reviewer *reviewer.Reviewer) (*Server, error) {
	if err := cfg.PrepareAndValidate(); err != nil {
		return nil, erro.Wrap(err, "validate config")
	}

	log := logze.With("module", "server")

	server, err := servex.NewServer(
		servex.WithReadTimeout(cfg.Timeout),
		servex.WithIdleTimeout(cfg.Timeout*2),
		servex.WithLogger(log),
		servex.WithHealthEndpoint(),
		servex.WithDefaultMetrics(),
		servex.WithCertificate(cfg.Certificate),
	)
	if err != nil {
		return nil, erro.Wrap(err, "failed to create server")
	}

	h := &Server{
		provider: provider,
		reviewer: reviewer,
		config:   cfg,
		log:      log,
		server:   server,
	}

	server.HandleFunc(cfg.Endpoint, h.handleWebhook)

	return h, nil
}

// Start starts the webhook server
func (h *Server) Start(ctx context.Context) error {
	if h.config.EnableHTTPS {
		return h.server.StartHTTPS(h.config.Address)
	}
	return h.server.StartHTTP(h.config.Address)
}

// Stop stops the webhook server
func (h *Server) Stop(ctx context.Context) error {
	return h.server.Shutdown(ctx)
}

// handleWebhook handles incoming webhook requests
func (h *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	ctx := servex.NewContext(w, r)

	body, err := ctx.Read()
	if err != nil {
		ctx.BadRequest(err, "failed to read webhook body")
		return
	}

	// Get token from headers (provider-specific)
	token := h.getAuthFromHeaders(r)

	// Validate webhook signature
	if err := h.provider.ValidateWebhook(body, token); err != nil {
		ctx.Unauthorized(err, "webhook validation failed")
		return
	}

	// Parse webhook event
	event, err := h.provider.ParseWebhookEvent(body)
	if err != nil {
		ctx.BadRequest(err, "failed to parse webhook event")
		return
	}

	// Check if this is a pull request event that should be processed
	if !h.provider.IsPullRequestEvent(event) {
		h.log.Debug("ignoring non-pull request event")
		ctx.Response(http.StatusOK)
		return
	}

	h.log.Info("received pull request event", "pr_title", event.PullRequest.Title, "action", event.Action)

	// Pass event to the pipeline - it handles labeling, collapsing and review
	if err := h.reviewer.HandleEvent(r.Context(), event); err != nil {
		ctx.InternalServerError(err, "failed to handle event")
		return
	}

	ctx.Response(http.StatusAccepted)
}

// getAuthFromHeaders extracts auth token from request headers
func (h *Server) getAuthFromHeaders(r *http.Request) string {
	for _, header := range authHeaders {
		if value := r.Header.Get(header); value != "" {
			return value
		}
	}
	return ""
}
