package dispatch

import (
	"context"
	"errors"
	"path/filepath"
	"slices"
	"testing"

	"github.com/albertocavalcante/modsnap/cmd/modsnap/internal/detector"
	"github.com/albertocavalcante/modsnap/cmd/modsnap/internal/snapshot"
)

// staleResults returns bootstrap results whose snapshots live under dir.
func staleResults(dir string, names ...string) []*detector.Result {
	out := make([]*detector.Result, len(names))
	for i, n := range names {
		out[i] = &detector.Result{
			Module:       n,
			Root:         filepath.Join(dir, n),
			SnapshotPath: filepath.Join(dir, "build", n+snapshot.FileExt),
			Snapshot:     snapshot.NewDir(n),
			Modified:     true,
			Bootstrap:    true,
		}
	}
	return out
}

// scripted returns a runner that answers per task name and records calls.
func scripted(verdicts map[string]Status, calls *[]string) TaskRunner {
	return RunnerFunc(func(_ context.Context, _ string, task string) Outcome {
		*calls = append(*calls, task)
		return Outcome{Status: verdicts[task]}
	})
}

func committed(results []*detector.Result) []string {
	var names []string
	for _, r := range results {
		if snapshot.Exists(r.SnapshotPath) {
			names = append(names, r.Module)
		}
	}
	return names
}

func TestTaskName(t *testing.T) {
	tests := []struct {
		template string
		module   string
		want     string
	}{
		{"", "app", ":app:assemble"},
		{DefaultTaskTemplate, "feature:login", ":feature:login:assemble"},
		{":{module}:build", "core", ":core:build"},
		{"assembleDebug", "core", "assembleDebug"},
	}
	for _, tt := range tests {
		if got := TaskName(tt.template, tt.module); got != tt.want {
			t.Errorf("TaskName(%q, %q) = %q, want %q", tt.template, tt.module, got, tt.want)
		}
	}
}

func TestRun_CommitOrdering(t *testing.T) {
	dir := t.TempDir()
	results := staleResults(dir, "m1", "m2", "m3")
	var calls []string
	runner := scripted(map[string]Status{
		":m1:assemble": Succeeded,
		":m2:assemble": Failed,
		":m3:assemble": Succeeded,
	}, &calls)

	sum, err := New(results).Run(context.Background(), runner)
	if !errors.Is(err, ErrTaskFailed) {
		t.Fatalf("Run() error = %v, want ErrTaskFailed", err)
	}
	if !slices.Equal(calls, []string{":m1:assemble", ":m2:assemble"}) {
		t.Errorf("tasks run = %v, want m1 then m2 only", calls)
	}
	if got := committed(results); !slices.Equal(got, []string{"m1"}) {
		t.Errorf("committed = %v, want [m1]", got)
	}
	if !slices.Equal(sum.Built, []string{"m1"}) ||
		!slices.Equal(sum.Failed, []string{"m2"}) ||
		!slices.Equal(sum.Skipped, []string{"m3"}) {
		t.Errorf("summary = %+v", sum)
	}
}

func TestRun_AllSucceed(t *testing.T) {
	dir := t.TempDir()
	results := staleResults(dir, "a", "b")
	var calls []string
	runner := scripted(map[string]Status{":a:assemble": Succeeded, ":b:assemble": Succeeded}, &calls)

	sum, err := New(results).Run(context.Background(), runner)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if !slices.Equal(sum.Built, []string{"a", "b"}) || len(sum.Skipped) != 0 {
		t.Errorf("summary = %+v", sum)
	}
	if got := committed(results); !slices.Equal(got, []string{"a", "b"}) {
		t.Errorf("committed = %v", got)
	}
}

func TestRun_EndedStopsWithoutCommit(t *testing.T) {
	dir := t.TempDir()
	results := staleResults(dir, "a", "b")
	var calls []string
	runner := scripted(map[string]Status{":a:assemble": Ended}, &calls)

	sum, err := New(results).Run(context.Background(), runner)
	if !errors.Is(err, ErrTaskEnded) {
		t.Fatalf("Run() error = %v, want ErrTaskEnded", err)
	}
	if len(committed(results)) != 0 {
		t.Error("an inconclusive rebuild must not commit")
	}
	if !slices.Equal(sum.Skipped, []string{"a", "b"}) {
		t.Errorf("skipped = %v, want [a b]", sum.Skipped)
	}
}

func TestRun_CanceledContext(t *testing.T) {
	dir := t.TempDir()
	results := staleResults(dir, "a")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var calls []string
	sum, err := New(results).Run(ctx, scripted(nil, &calls))
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Run() error = %v, want context.Canceled", err)
	}
	if len(calls) != 0 || !slices.Equal(sum.Skipped, []string{"a"}) {
		t.Errorf("calls = %v, summary = %+v", calls, sum)
	}
}

func TestRun_Empty(t *testing.T) {
	sum, err := New(nil).Run(context.Background(), scripted(nil, new([]string)))
	if err != nil || len(sum.Built) != 0 {
		t.Errorf("Run() on no modules = %+v, %v", sum, err)
	}
}

func TestNew_SkipsFreshResults(t *testing.T) {
	dir := t.TempDir()
	results := staleResults(dir, "a", "b")
	results[0].Modified = false
	results[0].Bootstrap = false

	d := New(results)
	if d.Len() != 1 {
		t.Fatalf("Len() = %d, want 1", d.Len())
	}
	task, ok := d.Next()
	if !ok || task.Module != "b" {
		t.Errorf("Next() = %+v, %v, want b", task, ok)
	}
}

func TestDispatcher_StateMachine(t *testing.T) {
	dir := t.TempDir()
	d := New(staleResults(dir, "a", "b"), WithTaskTemplate("{module}Build"))

	if d.state != stateIdle {
		t.Errorf("initial state = %v, want idle", d.state)
	}
	if err := d.CommitCurrent(); !errors.Is(err, ErrNothingToCommit) {
		t.Errorf("CommitCurrent() before Next = %v, want ErrNothingToCommit", err)
	}

	task, ok := d.Next()
	if !ok || task.Name != "aBuild" || d.state != stateDispatching {
		t.Fatalf("Next() = %+v, %v, state %v", task, ok, d.state)
	}
	if err := d.CommitCurrent(); err != nil {
		t.Fatalf("CommitCurrent() error = %v", err)
	}
	if err := d.CommitCurrent(); !errors.Is(err, ErrNothingToCommit) {
		t.Errorf("second CommitCurrent() = %v, want ErrNothingToCommit", err)
	}

	if !d.HasNext() {
		t.Fatal("HasNext() should be true before b")
	}
	if _, ok := d.Next(); !ok {
		t.Fatal("Next() should return b")
	}
	if _, ok := d.Next(); ok || d.state != stateIdle {
		t.Errorf("exhausted dispatcher should be idle, state %v", d.state)
	}
}

func TestDispatcher_Fail(t *testing.T) {
	dir := t.TempDir()
	d := New(staleResults(dir, "a", "b"))
	d.Next()

	boom := errors.New("boom")
	d.Fail(boom)
	if d.HasNext() {
		t.Error("HasNext() should be false after Fail")
	}
	if _, ok := d.Next(); ok {
		t.Error("Next() should report exhausted after Fail")
	}
	if d.state != stateStopped || !errors.Is(d.Err(), boom) {
		t.Errorf("state = %v, err = %v", d.state, d.Err())
	}
	if err := d.CommitCurrent(); !errors.Is(err, ErrNothingToCommit) {
		t.Errorf("CommitCurrent() after Fail = %v, want ErrNothingToCommit", err)
	}
}

func TestStatus_String(t *testing.T) {
	for s, want := range map[Status]string{Succeeded: "succeeded", Failed: "failed", Ended: "ended", Status(9): "unknown"} {
		if s.String() != want {
			t.Errorf("Status(%d).String() = %q, want %q", int(s), s.String(), want)
		}
	}
}
