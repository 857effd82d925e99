// Package annotate collapses superseded review comments into attempt-numbered
// collapsible blocks so only the latest review stays visible on a thread.
package annotate

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/maxbolgarin/errm"
	"github.com/maxbolgarin/logze/v2"
	"github.com/totetech/reviewpilot/internal/model"
	"github.com/totetech/reviewpilot/internal/model/interfaces"
)

const (
	// ReviewMarker identifies review comments posted by the automation.
	// Matching is case-sensitive and exact.
	ReviewMarker = "<!-- reviewpilot:review -->"

	// collapsePrefix is the opening tag of an already-collapsed body
	collapsePrefix = "<details"
)

// Plan computes the list of body rewrites needed to collapse every open review
// comment posted by botUsername. The input snapshot is never mutated.
//
// Attempt numbers are the 1-based rank of a comment among all review comments
// sorted by creation time. Already-collapsed comments keep their historical
// rank but produce no update, which makes Plan idempotent.
func Plan(comments []*model.ReviewComment, botUsername string) []model.CommentUpdate {
	reviews := make([]*model.ReviewComment, 0, len(comments))
	for _, c := range comments {
		if c == nil {
			continue
		}
		if c.Author.Username != botUsername {
			continue
		}
		if !strings.Contains(c.Body, ReviewMarker) {
			continue
		}
		reviews = append(reviews, c)
	}

	sort.SliceStable(reviews, func(i, j int) bool {
		return reviews[i].CreatedAt.Before(reviews[j].CreatedAt)
	})

	var updates []model.CommentUpdate
	for i, c := range reviews {
		if isCollapsed(c.Body) {
			continue
		}
		updates = append(updates, model.CommentUpdate{
			CommentID: c.ID,
			NewBody:   collapseBody(c.Body, i+1),
		})
	}

	return updates
}

// isCollapsed reports whether a body already starts with collapsible markup
func isCollapsed(body string) bool {
	return strings.HasPrefix(strings.TrimLeft(body, " \t\n\r"), collapsePrefix)
}

// collapseBody wraps the original body verbatim inside a collapsible block
func collapseBody(body string, attempt int) string {
	return fmt.Sprintf("<details>\n<summary>Superseded review (attempt %d)</summary>\n\n%s\n\n</details>", attempt, body)
}

// Apply pushes a collapse plan to the provider. Every update is attempted:
// a failure on one comment never aborts the rest of the batch.
func Apply(ctx context.Context, provider interfaces.CodeProvider, projectID string, prIID int, plan []model.CommentUpdate) model.UpdateReport {
	log := logze.With("component", "annotate", "project_id", projectID, "pr_iid", prIID)

	report := model.UpdateReport{Failed: make(map[string]error)}
	for _, update := range plan {
		if err := ctx.Err(); err != nil {
			report.Failed[update.CommentID] = errm.Wrap(err, "run cancelled")
			continue
		}

		if err := provider.UpdateComment(ctx, projectID, prIID, update.CommentID, update.NewBody); err != nil {
			log.Err(err, "failed to collapse comment", "comment_id", update.CommentID)
			report.Failed[update.CommentID] = err
			continue
		}
		report.Applied = append(report.Applied, update.CommentID)
	}

	return report
}
