package usecase

import (
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"ContentFactory/internal/domain"
)

var stageOrder = []string{domain.StageScript, domain.StageVideo, domain.StagePublish}

// resultBuilder accumulates the outcome of one product. It is owned by a single task.
type resultBuilder struct {
	result  domain.WorkflowResult
	current string
}

func newResultBuilder(product domain.Product, started time.Time) *resultBuilder {
	ref := product.ID
	if ref == "" {
		ref = product.ExternalID
	}
	return &resultBuilder{result: domain.WorkflowResult{
		ID:         uuid.NewString(),
		ProductRef: ref,
		Product:    product,
		StartedAt:  started,
	}}
}

func (b *resultBuilder) begin(stage string) { b.current = stage }

func (b *resultBuilder) set(stage string, state domain.StageState, detail, reason string) {
	if _, ok := b.result.Stage(stage); ok {
		return
	}
	b.result.Stages = append(b.result.Stages, domain.StageOutcome{
		Stage:  stage,
		State:  state,
		Detail: detail,
		Reason: reason,
	})
	b.current = ""
}

func (b *resultBuilder) succeed(stage, detail string) {
	b.set(stage, domain.StageSucceeded, detail, "")
}

func (b *resultBuilder) skip(stage, detail string) {
	b.set(stage, domain.StageSkipped, detail, "")
}

func (b *resultBuilder) fail(stage, detail, reason string) {
	b.set(stage, domain.StageFailed, detail, reason)
}

// cancel marks the in-progress stage as interrupted.
func (b *resultBuilder) cancel() {
	b.result.Cancelled = true
	b.fail(b.pending(), domain.DetailCancelled, domain.DetailCancelled)
}

// abort marks the in-progress stage as failed after an unexpected error.
func (b *resultBuilder) abort(detail string) {
	b.fail(b.pending(), detail, "panic")
}

func (b *resultBuilder) pending() string {
	if b.current != "" {
		return b.current
	}
	for _, stage := range stageOrder {
		if _, ok := b.result.Stage(stage); !ok {
			return stage
		}
	}
	return domain.StagePublish
}

func (b *resultBuilder) setScript(s domain.Script) { b.result.Script = &s }

func (b *resultBuilder) setVideo(a domain.VideoArtifact) {
	if a.ID == "" {
		return
	}
	b.result.Video = &a
}

func (b *resultBuilder) addAttempt(a domain.PublishAttempt) {
	b.result.Attempts = append(b.result.Attempts, a)
}

// finalize fills unreached stages and derives the overall status.
func (b *resultBuilder) finalize(at time.Time) domain.WorkflowResult {
	for _, stage := range stageOrder {
		if _, ok := b.result.Stage(stage); !ok {
			b.result.Stages = append(b.result.Stages, domain.StageOutcome{
				Stage:  stage,
				State:  domain.StageSkipped,
				Detail: "not reached",
			})
		}
	}

	r := b.result
	r.Stages = slices.Clone(r.Stages)
	r.Attempts = slices.Clone(r.Attempts)
	if r.Attempts == nil {
		r.Attempts = []domain.PublishAttempt{}
	}
	r.FinishedAt = at
	r.Status = domain.DeriveStatus(r.Stages, r.Attempts)
	return r
}

// collector gathers results from concurrent product tasks.
type collector struct {
	mu  sync.Mutex
	out []domain.WorkflowResult
}

func newCollector(capacity int) *collector {
	return &collector{out: make([]domain.WorkflowResult, 0, capacity)}
}

func (c *collector) add(r domain.WorkflowResult) {
	c.mu.Lock()
	c.out = append(c.out, r)
	c.mu.Unlock()
}

func (c *collector) results() []domain.WorkflowResult {
	c.mu.Lock()
	defer c.mu.Unlock()
	return slices.Clone(c.out)
}
