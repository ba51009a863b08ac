package pipeline

// TemporalStageRunner sketches where a production deployment would plug in
// a durable workflow engine in place of Simulator — go.temporal.io/sdk is
// the workflow engine the rest of the retrieval pack reaches for to run
// long-lived staged work (goadesign-goa-ai). It is never constructed or
// wired into Stages(): the real agent framework is explicitly out of scope
// here, and a Temporal-backed Runner would need a client.Client, a
// registered workflow/activity pair per stage, and a decision about
// whether the Worker's single-process deadline/cancellation model still
// applies or whether Temporal's own timers take over — open design work
// for whoever builds the production Runner, not this repository.
type TemporalStageRunner struct {
	// TaskQueue is the Temporal task queue stage activities would be
	// dispatched on.
	TaskQueue string
}
