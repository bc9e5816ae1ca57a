package runner

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/ssuji15/scriptd/internal/job_tracer"
	"github.com/ssuji15/scriptd/internal/service/logger"
	"github.com/ssuji15/scriptd/internal/util"
	"go.opentelemetry.io/otel/attribute"
)

// Result is what a finished subprocess produced. A timeout or a non-zero exit
// is reported here, never as an error.
type Result struct {
	Stdout   string
	Stderr   string
	ExitCode int
	TimedOut bool
}

// Runner executes scripts as child processes of the service.
type Runner struct {
	tempDir   string
	scriptExt string
	killGrace time.Duration
}

type Option func(*Runner)

// WithTempDir sets where script files are staged. Defaults to os.TempDir.
func WithTempDir(dir string) Option {
	return func(r *Runner) { r.tempDir = dir }
}

// WithScriptExtension sets the suffix of staged script files.
func WithScriptExtension(ext string) Option {
	return func(r *Runner) { r.scriptExt = ext }
}

func NewRunner(opts ...Option) *Runner {
	r := &Runner{
		scriptExt: ".py",
		killGrace: 2 * time.Second,
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// InterpreterPath resolves the python binary of a virtual environment.
func InterpreterPath(envPath string) string {
	return filepath.Join(envPath, "bin", "python")
}

// TimeoutMessage is the stderr reported for a script killed on timeout.
func TimeoutMessage(timeout time.Duration) string {
	return fmt.Sprintf("Timeout expired after %d seconds", int(timeout.Seconds()))
}

// Run writes script to a temporary file and runs interpreterPath with that
// file as its only argument. The file is removed on every path out of Run.
//
// Failing to stage the script, find the interpreter or start the process is
// returned as an error.
func (r *Runner) Run(ctx context.Context, script, interpreterPath string, timeout time.Duration) (Result, error) {
	tracer := job_tracer.GetTracer()
	ctx, span := tracer.Start(ctx, "Runner/Run")
	defer span.End()

	if _, err := exec.LookPath(interpreterPath); err != nil {
		err = fmt.Errorf("interpreter not found: %w", err)
		util.RecordSpanError(span, err)
		return Result{}, err
	}

	f, err := os.CreateTemp(r.tempDir, "script-*"+r.scriptExt)
	if err != nil {
		err = fmt.Errorf("unable to create script file: %w", err)
		util.RecordSpanError(span, err)
		return Result{}, err
	}
	scriptPath := f.Name()
	defer os.Remove(scriptPath)

	_, werr := f.WriteString(script)
	cerr := f.Close()
	if err := errors.Join(werr, cerr); err != nil {
		err = fmt.Errorf("unable to write script file: %w", err)
		util.RecordSpanError(span, err)
		return Result{}, err
	}

	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, interpreterPath, scriptPath)
	// children that inherit the pipes must not hold Wait open past the kill
	cmd.WaitDelay = r.killGrace
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err = cmd.Run()

	if ctx.Err() != nil {
		err = fmt.Errorf("script run aborted: %w", ctx.Err())
		util.RecordSpanError(span, err)
		return Result{}, err
	}
	if timedOut(err, runCtx.Err()) {
		span.SetAttributes(attribute.Bool("timed_out", true))
		log := logger.FromContext(ctx)
		log.Info().Dur("timeout", timeout).Msg("script timed out")
		return Result{
			Stderr:   TimeoutMessage(timeout),
			ExitCode: -1,
			TimedOut: true,
		}, nil
	}

	var exitErr *exec.ExitError
	switch {
	case err == nil:
	case errors.As(err, &exitErr):
		// exit status is data; callers look at stderr
	case errors.Is(err, exec.ErrWaitDelay):
		// exited, but a background child kept the output pipes open
	default:
		err = fmt.Errorf("unable to run script: %w", err)
		util.RecordSpanError(span, err)
		return Result{}, err
	}

	res := Result{
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		ExitCode: cmd.ProcessState.ExitCode(),
	}
	span.SetAttributes(attribute.Int("exit_code", res.ExitCode))
	return res, nil
}

// timedOut reports whether a run was cut short by its deadline. A script
// that exited cleanly as the deadline passed still counts as finished.
func timedOut(runErr, ctxErr error) bool {
	return runErr != nil && errors.Is(ctxErr, context.DeadlineExceeded)
}
