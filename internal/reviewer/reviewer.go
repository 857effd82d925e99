// Package reviewer runs the per-event review pipeline: size the change,
// label it, collapse superseded reviews and request a fresh one.
package reviewer

import (
	"context"
	"fmt"
	"sync"

	"github.com/maxbolgarin/abstract"
	"github.com/maxbolgarin/errm"
	"github.com/maxbolgarin/logze/v2"
	"github.com/panjf2000/ants/v2"
	"github.com/totetech/reviewpilot/internal/annotate"
	"github.com/totetech/reviewpilot/internal/model"
	"github.com/totetech/reviewpilot/internal/model/interfaces"
	"github.com/totetech/reviewpilot/internal/sizing"
)

const defaultPoolSize = 32

// Reviewer orchestrates the review pipeline for pull request events
type Reviewer struct {
	provider  interfaces.CodeProvider
	generator interfaces.ReviewGenerator
	cfg       Config
	log       logze.Logger
	pool      *ants.Pool

	// One in-flight run per review thread: a newer event for the same
	// thread cancels the run it supersedes. The handle exchange holds
	// runsMu so two simultaneous runs cannot both survive the swap.
	runsMu sync.Mutex
	runs   map[string]runHandle
	lastID uint64

	// SHAs that already went through the pipeline, to drop redelivered events
	processed *abstract.SafeMap[string, bool]

	botMu       sync.Mutex
	botUsername string
}

// New creates a new review pipeline
func New(cfg Config, provider interfaces.CodeProvider, generator interfaces.ReviewGenerator) (*Reviewer, error) {
	if err := cfg.PrepareAndValidate(); err != nil {
		return nil, errm.Wrap(err, "validate config")
	}

	pool, err := ants.NewPool(defaultPoolSize)
	if err != nil {
		return nil, errm.Wrap(err, "failed to create ants pool")
	}

	return &Reviewer{
		provider:  provider,
		generator: generator,
		cfg:       cfg,
		log:       logze.With("component", "reviewer"),
		pool:      pool,
		runs:      make(map[string]runHandle),
		processed: abstract.NewSafeMap[string, bool](),
	}, nil
}

// Stop releases the worker pool
func (r *Reviewer) Stop(ctx context.Context) error {
	r.pool.Release()
	return nil
}

// HandleEvent routes a qualifying webhook event into the pipeline.
// Processing happens on the worker pool so the webhook responds fast.
func (r *Reviewer) HandleEvent(ctx context.Context, event *model.CodeEvent) error {
	if event.PullRequest == nil {
		return errm.New("pull request is nil in event")
	}

	log := r.log.WithFields(
		"project_id", event.ProjectID,
		"pr_iid", event.PullRequest.IID,
		"action", event.Action,
	)

	// The webhook request context dies as soon as the response is written,
	// so the run gets a detached context and is cancelled only by supersede.
	runCtx := context.WithoutCancel(ctx)

	return r.pool.Submit(func() {
		result, err := r.Run(runCtx, event.ProjectID, event.PullRequest)
		if err != nil {
			log.Err(err, "pipeline run failed")
			return
		}
		logResult(result, log)
	})
}

// Run executes the full pipeline for one pull request event. A run for the
// same thread that is still in flight gets cancelled first: its plan is
// computed from a stale snapshot and must not race the new one.
func (r *Reviewer) Run(ctx context.Context, projectID string, pr *model.PullRequest) (*model.ReviewResult, error) {
	key := threadKey(projectID, pr.IID)

	runCtx, cancel := context.WithCancel(ctx)

	r.runsMu.Lock()
	r.lastID++
	handle := runHandle{id: r.lastID, cancel: cancel}
	if prev, ok := r.runs[key]; ok {
		prev.cancel()
	}
	r.runs[key] = handle
	r.runsMu.Unlock()

	defer func() {
		cancel()
		r.runsMu.Lock()
		// only remove the entry if a newer run has not replaced it
		if current, ok := r.runs[key]; ok && current.id == handle.id {
			delete(r.runs, key)
		}
		r.runsMu.Unlock()
	}()

	log := r.log.WithFields("project_id", projectID, "pr_iid", pr.IID)

	result := &model.ReviewResult{}

	if _, done := r.processed.Lookup(runKey(key, pr.SHA)); done && pr.SHA != "" {
		log.Debug("commit already processed, skipping")
		result.Success = true
		return result, nil
	}

	// Size the change. A failed stat lookup degrades to a zero stat so the
	// event still gets labeled instead of failing the whole run.
	stat, err := r.provider.GetChangeStat(runCtx, projectID, pr.IID)
	if err != nil {
		log.Err(err, "failed to get change stat, using zero stat")
		result.Errors = append(result.Errors, errm.Wrap(err, "get change stat"))
		stat = model.ChangeStat{}
	}

	decision := sizing.Classify(stat, sizing.Thresholds{
		SkipLargeChanges: *r.cfg.SkipLargeChanges,
		MaxFiles:         r.cfg.MaxFiles,
		MaxLines:         r.cfg.MaxLines,
	})
	result.Category = decision.Category
	result.Skipped = decision.Skip

	log = log.WithFields("category", decision.Category, "files", stat.FilesChanged, "lines", stat.LinesChanged)

	// The size label is applied on every qualifying event, skipped or not
	if err := r.provider.SetSizeLabel(runCtx, projectID, pr.IID, decision.Category); err != nil {
		log.Err(err, "failed to set size label")
		result.Errors = append(result.Errors, errm.Wrap(err, "set size label"))
	}

	// Snapshot the thread once; the collapse plan and all updates work off
	// this snapshot so concurrently created comments cannot shift attempt numbers.
	comments, err := r.provider.GetComments(runCtx, projectID, pr.IID)
	if err != nil {
		return nil, errm.Wrap(err, "failed to get comments")
	}

	bot, err := r.bot(runCtx)
	if err != nil {
		return nil, errm.Wrap(err, "failed to resolve bot identity")
	}

	plan := annotate.Plan(comments, bot)
	if len(plan) > 0 {
		report := annotate.Apply(runCtx, r.provider, projectID, pr.IID, plan)
		result.CollapsedPrior = len(report.Applied)
		for id, err := range report.Failed {
			result.Errors = append(result.Errors, errm.Wrap(err, "collapse comment "+id))
		}
		log.Info("collapsed prior reviews", "applied", len(report.Applied), "failed", len(report.Failed))
	}

	if decision.Skip {
		if err := r.postTooLargeNotice(runCtx, projectID, pr.IID, stat); err != nil {
			result.Errors = append(result.Errors, errm.Wrap(err, "post too-large notice"))
		}
	} else {
		err := r.generator.RequestReview(runCtx, &model.ReviewRequest{
			ProjectID:   projectID,
			PullRequest: pr,
			Category:    decision.Category,
			Prompt:      r.cfg.CustomPrompt,
		})
		if err != nil {
			result.Errors = append(result.Errors, errm.Wrap(err, "request review"))
		} else {
			result.ReviewRequested = true
		}
	}

	result.Success = len(result.Errors) == 0
	if result.Success && pr.SHA != "" {
		r.processed.Set(runKey(key, pr.SHA), true)
	}

	return result, nil
}

// postTooLargeNotice tells the author the change exceeds the review limits.
// The notice carries the review marker so a later run collapses it too.
func (r *Reviewer) postTooLargeNotice(ctx context.Context, projectID string, prIID int, stat model.ChangeStat) error {
	body := fmt.Sprintf(
		"%s\n### Change too large for automated review\n\nThis change touches %d files and %d lines, which exceeds the configured limits (%d files / %d lines). Split it up or request a review manually.",
		annotate.ReviewMarker,
		stat.FilesChanged, stat.LinesChanged,
		r.cfg.MaxFiles, r.cfg.MaxLines,
	)
	return r.provider.CreateComment(ctx, projectID, prIID, body)
}

// bot resolves the automation identity used to filter review comments.
// Resolved once and cached; a failed lookup is retried on the next run.
func (r *Reviewer) bot(ctx context.Context) (string, error) {
	r.botMu.Lock()
	defer r.botMu.Unlock()

	if r.botUsername != "" {
		return r.botUsername, nil
	}

	user, err := r.provider.GetCurrentUser(ctx)
	if err != nil {
		return "", err
	}
	if user.Username == "" {
		return "", errm.New("provider returned empty username")
	}

	r.botUsername = user.Username
	return r.botUsername, nil
}

// SetBotUsername overrides identity resolution, used when the provider token
// belongs to a service account whose username is known up front
func (r *Reviewer) SetBotUsername(username string) {
	if username == "" {
		return
	}
	r.botMu.Lock()
	r.botUsername = username
	r.botMu.Unlock()
}

// runHandle identifies one in-flight pipeline run so a finished run never
// removes the bookkeeping of the run that superseded it
type runHandle struct {
	id     uint64
	cancel context.CancelFunc
}

func threadKey(projectID string, prIID int) string {
	return fmt.Sprintf("%s:%d", projectID, prIID)
}

func runKey(threadKey, sha string) string {
	return threadKey + ":" + sha
}

func logResult(result *model.ReviewResult, log logze.Logger) {
	if result.Success {
		log.Info("pipeline run finished",
			"category", result.Category,
			"skipped", result.Skipped,
			"collapsed_prior", result.CollapsedPrior,
			"review_requested", result.ReviewRequested,
		)
		return
	}
	log.Error("pipeline run finished with errors", "error_count", len(result.Errors))
	for _, err := range result.Errors {
		log.Error("pipeline error", "error", err.Error())
	}
}
