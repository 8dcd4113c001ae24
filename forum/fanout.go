package forum

import (
	"github.com/jizhuozhi/go-future"
	"github.com/rs/zerolog/log"

	"github.com/burrowbb/burrow/telemetry"
)

// CommitStep is one named, idempotent denormalized write in a CommitPlan.
type CommitStep struct {
	Name string
	Run  func() error
}

// CommitPlan issues independent denormalized writes together and awaits them
// jointly. First-failure-wins: if any step fails the joint wait fails, and
// steps that already started are neither cancelled nor rolled back. On
// partial failure the completed steps are logged so a repair pass can
// reconcile the indexes.
type CommitPlan struct {
	operation string
	steps     []CommitStep
}

// NewCommitPlan creates a plan. operation names the enclosing workflow in
// logs and metrics.
func NewCommitPlan(operation string) *CommitPlan {
	return &CommitPlan{operation: operation}
}

// Add appends a named step. Steps must be idempotent.
func (p *CommitPlan) Add(name string, run func() error) {
	p.steps = append(p.steps, CommitStep{Name: name, Run: run})
}

// AddIf appends a step only when cond holds.
func (p *CommitPlan) AddIf(cond bool, name string, run func() error) {
	if cond {
		p.Add(name, run)
	}
}

// awaitAll issues independent sub-operations together and awaits them
// jointly, returning the first error in argument order. Used for the
// concurrent validation fetches; unlike a CommitPlan these have no
// per-step accounting.
func awaitAll(fns ...func() error) error {
	promises := make([]*future.Promise[error], len(fns))
	for i, fn := range fns {
		promise := future.NewPromise[error]()
		promises[i] = promise
		go func(fn func() error, promise *future.Promise[error]) {
			promise.Set(nil, fn())
		}(fn, promise)
	}
	var firstErr error
	for _, promise := range promises {
		if _, err := promise.Future().Get(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Run starts every step concurrently and waits for all of them. Returns the
// first error encountered in step order.
func (p *CommitPlan) Run() error {
	promises := make([]*future.Promise[error], len(p.steps))
	for i, step := range p.steps {
		promise := future.NewPromise[error]()
		promises[i] = promise
		go func(step CommitStep, promise *future.Promise[error]) {
			promise.Set(nil, step.Run())
		}(step, promise)
	}

	var firstErr error
	var failedStep string
	var completed []string
	for i, promise := range promises {
		_, err := promise.Future().Get()
		if err != nil {
			telemetry.CommitStepsTotal.With(p.steps[i].Name, "failed").Inc()
			if firstErr == nil {
				firstErr = err
				failedStep = p.steps[i].Name
			}
			continue
		}
		telemetry.CommitStepsTotal.With(p.steps[i].Name, "ok").Inc()
		completed = append(completed, p.steps[i].Name)
	}

	if firstErr != nil && len(completed) > 0 {
		telemetry.CommitPartialFailuresTotal.Inc()
		log.Error().
			Str("operation", p.operation).
			Str("failed_step", failedStep).
			Strs("completed_steps", completed).
			Err(firstErr).
			Msg("Commit plan partially applied, indexes need repair")
	}
	return firstErr
}
