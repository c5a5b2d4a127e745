// Package runner finds the project's build tool and runs module tasks with it.
package runner

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/albertocavalcante/modsnap/cmd/modsnap/internal/dispatch"
	"github.com/albertocavalcante/modsnap/internal/log"
)

// ErrToolNotFound is returned when no build tool can be located.
var ErrToolNotFound = errors.New("build tool not found")

// DefaultTool is looked up on PATH when the project has no wrapper script.
const DefaultTool = "gradle"

// Runner executes build tasks.
type Runner struct {
	command     string // configured tool, overrides discovery
	projectRoot string
	args        []string
	env         []string
	stdout      io.Writer
	stderr      io.Writer
	log         *slog.Logger
}

var _ dispatch.TaskRunner = (*Runner)(nil)

// Option configures a Runner.
type Option func(*Runner)

// WithCommand sets the build tool explicitly. A bare name is looked up on
// PATH; anything with a separator is used as a path.
func WithCommand(command string) Option {
	return func(r *Runner) {
		r.command = command
	}
}

// WithProjectRoot sets the directory tasks run in and where the wrapper
// script is searched.
func WithProjectRoot(dir string) Option {
	return func(r *Runner) {
		r.projectRoot = dir
	}
}

// WithArgs sets arguments passed before the task name.
func WithArgs(args ...string) Option {
	return func(r *Runner) {
		r.args = args
	}
}

// WithEnv adds KEY=VALUE pairs to the tool's environment.
func WithEnv(env ...string) Option {
	return func(r *Runner) {
		r.env = env
	}
}

// WithOutput sets where the tool's stdout and stderr go.
func WithOutput(stdout, stderr io.Writer) Option {
	return func(r *Runner) {
		r.stdout = stdout
		r.stderr = stderr
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(r *Runner) {
		r.log = l
	}
}

// New creates a new Runner with the given options.
func New(opts ...Option) *Runner {
	r := &Runner{
		stdout: os.Stdout,
		stderr: os.Stderr,
		log:    log.Component("runner"),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// FindTool locates the build tool using the following search order:
// 1. The configured command
// 2. The wrapper script (gradlew) in the project root
// 3. gradle on PATH
func (r *Runner) FindTool() (string, error) {
	if r.command != "" {
		if strings.ContainsRune(r.command, os.PathSeparator) || strings.Contains(r.command, "/") {
			if !fileExists(r.command) {
				return "", fmt.Errorf("%w: %s", ErrToolNotFound, r.command)
			}
			return r.command, nil
		}
		path, err := exec.LookPath(r.command)
		if err != nil {
			return "", fmt.Errorf("%w: %s: %w", ErrToolNotFound, r.command, err)
		}
		return path, nil
	}

	if path := r.findWrapper(); path != "" {
		return path, nil
	}

	if path, err := exec.LookPath(DefaultTool); err == nil {
		return path, nil
	}

	return "", ErrToolNotFound
}

// findWrapper looks for the project's wrapper script.
func (r *Runner) findWrapper() string {
	if r.projectRoot == "" {
		return ""
	}
	name := "gradlew"
	if runtime.GOOS == "windows" {
		name = "gradlew.bat"
	}
	wrapper := filepath.Join(r.projectRoot, name)
	if fileExists(wrapper) {
		return wrapper
	}
	return ""
}

// Execute runs task for the module rooted at moduleRoot. Tasks run in the
// project root when one is set, so project-qualified task paths resolve.
func (r *Runner) Execute(ctx context.Context, moduleRoot, task string) dispatch.Outcome {
	start := time.Now()
	tool, err := r.FindTool()
	if err != nil {
		return dispatch.Outcome{Status: dispatch.Failed, Err: err, Duration: time.Since(start)}
	}

	dir := r.projectRoot
	if dir == "" {
		dir = moduleRoot
	}
	args := append(append([]string{}, r.args...), task)

	cmd := exec.CommandContext(ctx, tool, args...)
	cmd.Dir = dir
	cmd.Stdout = r.stdout
	cmd.Stderr = r.stderr
	if len(r.env) > 0 {
		cmd.Env = append(os.Environ(), r.env...)
	}

	r.log.Debug("running build tool", "tool", tool, "args", args, "dir", dir)
	err = cmd.Run()
	out := dispatch.Outcome{Duration: time.Since(start)}

	switch {
	case ctx.Err() != nil:
		out.Status = dispatch.Ended
		out.Err = ctx.Err()
	case err == nil:
		out.Status = dispatch.Succeeded
	default:
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) && exitErr.ExitCode() < 0 {
			// Killed by a signal: no verdict from the tool.
			out.Status = dispatch.Ended
		} else {
			out.Status = dispatch.Failed
		}
		out.Err = fmt.Errorf("%s %s: %w", filepath.Base(tool), task, err)
	}
	return out
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
