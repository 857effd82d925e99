package model

// SizeCategory is a discrete label for the size of a change, ordered by severity
type SizeCategory string

const (
	SizeXS SizeCategory = "XS"
	SizeS  SizeCategory = "S"
	SizeM  SizeCategory = "M"
	SizeL  SizeCategory = "L"
)

var sizeSeverity = map[SizeCategory]int{
	SizeXS: 0,
	SizeS:  1,
	SizeM:  2,
	SizeL:  3,
}

// Compare orders categories by severity: -1 if c is smaller than other, 1 if larger
func (c SizeCategory) Compare(other SizeCategory) int {
	switch {
	case sizeSeverity[c] < sizeSeverity[other]:
		return -1
	case sizeSeverity[c] > sizeSeverity[other]:
		return 1
	default:
		return 0
	}
}

// Label returns the repository label attached for this category
func (c SizeCategory) Label() string {
	return "size/" + string(c)
}

// Decision is the outcome of classifying a single change
type Decision struct {
	Category SizeCategory
	Skip     bool
}

// ReviewResult represents the result of one pipeline run for a pull request
type ReviewResult struct {
	Success         bool
	Category        SizeCategory
	Skipped         bool
	CollapsedPrior  int
	ReviewRequested bool
	Errors          []error
}

// ReviewRequest carries everything an external generator needs to produce a review
type ReviewRequest struct {
	ProjectID   string
	PullRequest *PullRequest
	Category    SizeCategory
	Prompt      string
}

func (r ReviewRequest) String() string {
	return r.ProjectID + ":" + r.PullRequest.SHA
}
