package dispatch

import (
	"context"
	"strings"
	"time"
)

// DefaultTaskTemplate is the task requested for each stale module.
const DefaultTaskTemplate = ":{module}:assemble"

// TaskName expands template for module. "{module}" is replaced with the
// module name; an empty template means DefaultTaskTemplate.
func TaskName(template, module string) string {
	if template == "" {
		template = DefaultTaskTemplate
	}
	return strings.ReplaceAll(template, "{module}", module)
}

// Task is one unit of work handed to a TaskRunner.
type Task struct {
	Module string
	Root   string
	Name   string
}

// Status is the verdict of a finished task.
type Status int

const (
	// Succeeded means the build tool reported success.
	Succeeded Status = iota
	// Failed means the build tool reported a failure.
	Failed
	// Ended means the task finished without a verdict, for example because
	// it was canceled.
	Ended
)

func (s Status) String() string {
	switch s {
	case Succeeded:
		return "succeeded"
	case Failed:
		return "failed"
	case Ended:
		return "ended"
	default:
		return "unknown"
	}
}

// Outcome reports how a task finished.
type Outcome struct {
	Status   Status
	Err      error
	Duration time.Duration
}

// TaskRunner executes a named build task inside a module directory.
type TaskRunner interface {
	Execute(ctx context.Context, moduleRoot, task string) Outcome
}

// RunnerFunc adapts a function to TaskRunner.
type RunnerFunc func(ctx context.Context, moduleRoot, task string) Outcome

// Execute calls f.
func (f RunnerFunc) Execute(ctx context.Context, moduleRoot, task string) Outcome {
	return f(ctx, moduleRoot, task)
}
