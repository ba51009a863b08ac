// Package pipeline implements the static PM → Architect → Engineer stage
// sequence a Worker drives. A stage is a coroutine — in Go terms, a
// function that runs on the Worker's goroutine and cooperatively yields at
// every observable action via StageContext.Yield, so cancellation and
// deadlines are honored between steps rather than only at the end.
//
// Grounded on the goroutine-per-unit-of-work dispatch idiom used for
// sub-agent execution in the teacher's orchestrator package
// (pkg/agent/orchestrator/runner.go), narrowed here to a single in-process
// coroutine per stage rather than one goroutine per sub-agent, since stages
// run strictly in sequence.
package pipeline

import (
	"context"
	"time"

	"github.com/codeready-toolchain/taskengine/internal/eventmodel"
)

// Stage names, in pipeline order. Event payloads and log fields use these
// exact strings as stage_name.
const (
	StagePM        = "PM"
	StageArchitect = "Architect"
	StageEngineer  = "Engineer"
)

// ExecutionOutput is the optional result of running a stage's primary
// artifact, carried on the Engineer stage's execution-result MESSAGE event.
type ExecutionOutput struct {
	Output    string
	ExitCode  int
	Succeeded bool
}

// EmitFunc is how a StageContext delivers a stage-originated event back to
// the owning Worker, which is responsible for event ID assignment and dual
// persistence — StageContext itself never touches the store or bus.
type EmitFunc func(kind eventmodel.Kind, stageName string, payload map[string]any)

// StageContext is the handle a Runner uses to emit output and cooperate
// with cancellation. A fresh one is built per stage invocation.
type StageContext struct {
	ctx       context.Context
	stageName string
	emit      EmitFunc
}

// NewStageContext builds a StageContext bound to stageName, emitting
// through emit and observing ctx for cancellation/deadline.
func NewStageContext(ctx context.Context, stageName string, emit EmitFunc) *StageContext {
	return &StageContext{ctx: ctx, stageName: stageName, emit: emit}
}

// Context returns the Worker's per-task execution context, for Runners
// that need it directly (e.g. to pass to an external call).
func (c *StageContext) Context() context.Context {
	return c.ctx
}

// StageName returns the name this context was bound to.
func (c *StageContext) StageName() string {
	return c.stageName
}

// Emit sends a MESSAGE event tagged with this stage's name. extra carries
// kind-specific fields (file artifacts, execution results) and may be nil.
func (c *StageContext) Emit(message string, extra map[string]any) {
	c.emit(eventmodel.KindMessage, c.stageName, eventmodel.MessagePayload(message, extra))
}

// Yield is the stage's cooperative suspension point: it sleeps for d
// unless the context is cancelled or its deadline fires first, in which
// case it returns ctx.Err() immediately. Runners must call Yield (directly
// or via a blocking call that itself observes ctx) between observable
// steps so the Worker can unwind a stage promptly on stop or deadline.
func (c *StageContext) Yield(d time.Duration) error {
	if d <= 0 {
		select {
		case <-c.ctx.Done():
			return c.ctx.Err()
		default:
			return nil
		}
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-c.ctx.Done():
		return c.ctx.Err()
	}
}

// Runner is the stage abstraction the Worker drives. Production
// implementations delegate to an external agent framework; Simulator
// (simulator.go) is the only Runner wired by default.
type Runner interface {
	Run(sctx *StageContext, input string) (artifact string, exec *ExecutionOutput, err error)
}

// Stage pairs a name with the Runner that implements it.
type Stage struct {
	Name   string
	Runner Runner
}

// Stages returns the fixed PM → Architect → Engineer sequence. The
// deterministic Simulator is the only Runner this repository wires —
// matching the explicit non-goal that the real agent framework is out of
// scope; see TemporalStageRunner in temporal.go for the production
// extension point this leaves open.
func Stages() []Stage {
	return []Stage{
		{Name: StagePM, Runner: Simulator{}},
		{Name: StageArchitect, Runner: Simulator{}},
		{Name: StageEngineer, Runner: Simulator{}},
	}
}
