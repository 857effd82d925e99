// Package sizing classifies pull request diffs into discrete size categories
// and decides whether a change is too large to review.
package sizing

import (
	"github.com/totetech/reviewpilot/internal/model"
)

// Thresholds limits the size of changes that still get a review.
// These are independent from the labeling thresholds below, which are fixed.
type Thresholds struct {
	SkipLargeChanges bool
	MaxFiles         int
	MaxLines         int
}

// labelRule is one row of the labeling table
type labelRule struct {
	match    func(files, lines int) bool
	category model.SizeCategory
}

// Labeling table, evaluated top-down, first match wins
var labelRules = []labelRule{
	{func(files, lines int) bool { return lines > 500 || files > 10 }, model.SizeL},
	{func(files, lines int) bool { return lines > 100 || files > 5 }, model.SizeM},
	{func(files, lines int) bool { return lines > 30 || files > 2 }, model.SizeS},
}

// Classify maps a change stat to a size category and a skip decision.
// It is a pure function: same stat and thresholds always give the same result.
func Classify(stat model.ChangeStat, thresholds Thresholds) model.Decision {
	stat = model.NewChangeStat(stat.FilesChanged, stat.LinesChanged)

	decision := model.Decision{Category: model.SizeXS}
	for _, rule := range labelRules {
		if rule.match(stat.FilesChanged, stat.LinesChanged) {
			decision.Category = rule.category
			break
		}
	}

	if thresholds.SkipLargeChanges &&
		(stat.FilesChanged > thresholds.MaxFiles || stat.LinesChanged > thresholds.MaxLines) {
		decision.Skip = true
	}

	return decision
}
