package pipeline

import (
	"fmt"
	"time"

	"github.com/codeready-toolchain/taskengine/internal/eventmodel"
)

// stepDelay is how long Simulator sleeps at each yield point. Short enough
// to keep tests fast, long enough to exercise the cooperative-cancellation
// path between steps.
const stepDelay = 20 * time.Millisecond

// Simulator is the deterministic, test-mode Runner: the reference
// implementation per the engine's explicit non-goal that the real
// LLM-driven agent framework is out of scope. It produces a canned
// sequence of MESSAGE events and artifacts, branching only on which stage
// it was invoked as.
type Simulator struct{}

func (Simulator) Run(sctx *StageContext, input string) (string, *ExecutionOutput, error) {
	switch sctx.StageName() {
	case StagePM:
		return runPM(sctx, input)
	case StageArchitect:
		return runArchitect(sctx, input)
	case StageEngineer:
		return runEngineer(sctx, input)
	default:
		return "", nil, fmt.Errorf("pipeline: no simulator behavior for stage %q", sctx.StageName())
	}
}

func runPM(sctx *StageContext, requirement string) (string, *ExecutionOutput, error) {
	if err := sctx.Yield(stepDelay); err != nil {
		return "", nil, err
	}
	sctx.Emit(fmt.Sprintf("Reviewing requirement: %s", requirement), nil)

	if err := sctx.Yield(stepDelay); err != nil {
		return "", nil, err
	}
	spec := fmt.Sprintf("Product spec for %q: a single-page app with create, list, and complete actions.", requirement)
	sctx.Emit("Drafted product spec", nil)

	return spec, nil, nil
}

func runArchitect(sctx *StageContext, productSpec string) (string, *ExecutionOutput, error) {
	if err := sctx.Yield(stepDelay); err != nil {
		return "", nil, err
	}
	sctx.Emit("Choosing architecture: REST API over an in-memory store", nil)

	if err := sctx.Yield(stepDelay); err != nil {
		return "", nil, err
	}
	design := "Design: main.go (HTTP entrypoint), store.go (in-memory item store), handlers.go (REST handlers)."
	sctx.Emit("Drafted technical design", nil)

	return design + "\n\nBased on: " + productSpec, nil, nil
}

func runEngineer(sctx *StageContext, design string) (string, *ExecutionOutput, error) {
	if err := sctx.Yield(stepDelay); err != nil {
		return "", nil, err
	}
	sctx.Emit("Implementing files from design", nil)

	files := []struct {
		path, content, language string
	}{
		{"main.go", "package main\n\nfunc main() {}\n", "go"},
		{"store.go", "package main\n\ntype Store struct{}\n", "go"},
		{"handlers.go", "package main\n\nfunc handlers() {}\n", "go"},
	}

	for _, f := range files {
		if err := sctx.Yield(stepDelay); err != nil {
			return "", nil, err
		}
		sctx.Emit(
			fmt.Sprintf("Wrote %s", f.path),
			eventmodel.FileArtifactFields(f.path, f.content, f.language),
		)
	}

	if err := sctx.Yield(stepDelay); err != nil {
		return "", nil, err
	}
	exec := &ExecutionOutput{
		Output:    "build ok, 0 tests",
		ExitCode:  0,
		Succeeded: true,
	}
	sctx.Emit("Ran the primary artifact", eventmodel.ExecutionResultFields(exec.Output, exec.ExitCode, exec.Succeeded))

	artifact := fmt.Sprintf("%d files implemented per design:\n%s", len(files), design)
	return artifact, exec, nil
}
