package domain

import "time"

// Pipeline stages in execution order.
const (
	StageScript  = "script"
	StageVideo   = "video"
	StagePublish = "publish"
)

// StageState is the outcome of one stage for one product.
type StageState string

const (
	StageSucceeded StageState = "succeeded"
	StageSkipped   StageState = "skipped"
	StageFailed    StageState = "failed"
)

// DetailCancelled marks stages interrupted by batch cancellation.
const DetailCancelled = "cancelled"

// StageOutcome is one entry of the ordered stage mapping.
type StageOutcome struct {
	Stage  string     `json:"stage"`
	State  StageState `json:"state"`
	Detail string     `json:"detail,omitempty"`
	Reason string     `json:"reason,omitempty"`
}

// OverallStatus is the product-level verdict.
type OverallStatus string

const (
	StatusCompleted OverallStatus = "completed"
	StatusPartial   OverallStatus = "partial"
	StatusFailed    OverallStatus = "failed"
)

// WorkflowResult summarizes the processing of a single product.
type WorkflowResult struct {
	ID         string           `json:"id"`
	ProductRef string           `json:"product_ref"`
	Product    Product          `json:"product"`
	Stages     []StageOutcome   `json:"stage_outcomes"`
	Status     OverallStatus    `json:"overall_status"`
	Cancelled  bool             `json:"cancelled,omitempty"`
	Script     *Script          `json:"script,omitempty"`
	Video      *VideoArtifact   `json:"video,omitempty"`
	Attempts   []PublishAttempt `json:"publish_attempts"`
	StartedAt  time.Time        `json:"started_at"`
	FinishedAt time.Time        `json:"finished_at"`
}

// Stage looks up an outcome by stage name.
func (r WorkflowResult) Stage(name string) (StageOutcome, bool) {
	for _, s := range r.Stages {
		if s.Stage == name {
			return s, true
		}
	}
	return StageOutcome{}, false
}

// DeriveStatus computes the overall status from stage outcomes and publish attempts.
// A failed script or video stage fails the product; with both succeeded, publishing decides:
// all attempts succeeded -> completed, some succeeded or publishing skipped -> partial,
// every attempt failed -> failed.
func DeriveStatus(stages []StageOutcome, attempts []PublishAttempt) OverallStatus {
	required := map[string]bool{StageScript: false, StageVideo: false}
	var publish *StageOutcome
	for i := range stages {
		s := stages[i]
		switch s.Stage {
		case StageScript, StageVideo:
			if s.State != StageSucceeded {
				return StatusFailed
			}
			required[s.Stage] = true
		case StagePublish:
			publish = &stages[i]
		}
	}
	if !required[StageScript] || !required[StageVideo] || publish == nil {
		return StatusFailed
	}

	switch publish.State {
	case StageSkipped:
		return StatusPartial
	case StageSucceeded:
		return StatusCompleted
	}

	for _, a := range attempts {
		if a.Succeeded() {
			return StatusPartial
		}
	}
	return StatusFailed
}

// BatchSummary aggregates a batch run.
type BatchSummary struct {
	Total            int      `json:"total"`
	Completed        int      `json:"completed"`
	Partial          int      `json:"partial"`
	Failed           int      `json:"failed"`
	Cancelled        int      `json:"cancelled"`
	PostsPublished   int      `json:"posts_published"`
	PostsFailed      int      `json:"posts_failed"`
	PlatformsReached []string `json:"platforms_reached"`
	PotentialReach   int      `json:"total_potential_reach"`
	SuccessRate      float64  `json:"success_rate"`
}

// BatchResult is returned by batch entry points.
type BatchResult struct {
	Results        []WorkflowResult `json:"results"`
	Duplicates     []string         `json:"duplicates,omitempty"`
	Warnings       []string         `json:"warnings,omitempty"`
	DiscoveryError string           `json:"discovery_error,omitempty"`
	Summary        BatchSummary     `json:"summary"`
}
