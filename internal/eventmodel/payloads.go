package eventmodel

// Payload constructors build the map[string]any carried by Event.Payload for
// each kind in the closed set (spec.md §3's event-kinds table). Using plain
// maps rather than kind-specific structs keeps Event a single concrete type
// while still giving callers typed builders — there is no per-kind struct;
// these builders are the only place each kind's payload shape is defined.

// LogPayload builds the payload for a LOG event: a generic operational note.
func LogPayload(message string) map[string]any {
	return map[string]any{"message": message}
}

// MessagePayload builds the payload for a MESSAGE event: stage output meant
// for human consumption. extra carries kind-specific fields such as
// file_path/content/kind/language for file artifacts, or an execution
// result; it may be nil.
func MessagePayload(message string, extra map[string]any) map[string]any {
	p := map[string]any{"message": message}
	for k, v := range extra {
		p[k] = v
	}
	return p
}

// StageStartPayload builds the payload for a STAGE_START event.
func StageStartPayload(message string) map[string]any {
	return map[string]any{"message": message}
}

// StageCompletePayload builds the payload for a STAGE_COMPLETE event.
// summary may be empty.
func StageCompletePayload(message, summary string) map[string]any {
	p := map[string]any{"message": message}
	if summary != "" {
		p["summary"] = summary
	}
	return p
}

// ResultPayload builds the payload for a terminal RESULT event.
func ResultPayload(result map[string]any) map[string]any {
	return map[string]any{"result": result}
}

// ErrorPayload builds the payload for an ERROR event. detail may be empty.
func ErrorPayload(message, detail string) map[string]any {
	p := map[string]any{"message": message}
	if detail != "" {
		p["detail"] = detail
	}
	return p
}

// FileArtifactFields builds the extra fields for an Engineer-stage
// file-artifact MESSAGE event. language may be empty.
func FileArtifactFields(filePath, content, language string) map[string]any {
	f := map[string]any{
		"file_path": filePath,
		"content":   content,
		"kind":      "code",
	}
	if language != "" {
		f["language"] = language
	}
	return f
}

// ExecutionResultFields builds the extra fields for an Engineer-stage
// execution-result MESSAGE event.
func ExecutionResultFields(output string, exitCode int, succeeded bool) map[string]any {
	return map[string]any{
		"execution_result": map[string]any{
			"output":    output,
			"exit_code": exitCode,
			"succeeded": succeeded,
		},
	}
}
