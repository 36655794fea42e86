// Package execx runs the external commands issued by the self-healing
// actions. Every invocation is privilege-aware (sudo prefix when the process
// lacks root), timeout-bounded, and reports failure as a value: a non-zero
// exit, a missing binary, or a missing sudo never becomes a process-level
// error.
package execx

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
)

// DefaultTimeout bounds a command when the caller does not set one.
const DefaultTimeout = 60 * time.Second

// Options controls a single invocation.
type Options struct {
	// CheckExit escalates a non-zero exit from a WARNING log to an ERROR log.
	// The result is a failure either way.
	CheckExit bool
	// Sudo prepends the resolved sudo binary when not already running as
	// root. Fails closed when sudo is absent from PATH.
	Sudo bool
	// Shell joins argv into one line and runs it through "sh -c" instead of
	// resolving argv[0] to an absolute path.
	Shell bool
	// Stdin, when non-empty, is fed to the child's standard input.
	Stdin string
	// Timeout bounds the child's wall time; DefaultTimeout when zero.
	Timeout time.Duration
}

// Result is the outcome of one invocation: success plus the combined
// stdout/stderr text (possibly partial after a timeout).
type Result struct {
	OK     bool
	Output string
}

// Runner executes commands. It holds no state across calls; exactly one child
// is in flight per Run invocation.
type Runner struct {
	// euid is swappable so tests can simulate a root process.
	euid func() int
}

// NewRunner returns a ready Runner.
func NewRunner() *Runner {
	return &Runner{euid: os.Geteuid}
}

// Run executes argv under opts. It never returns an error; inspect Result.OK.
func (r *Runner) Run(ctx context.Context, argv []string, opts Options) Result {
	if len(argv) == 0 {
		return Result{Output: "empty command"}
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	final, err := r.buildArgv(argv, opts)
	if err != nil {
		log.Errorf("execx: %v", err)
		return Result{Output: err.Error()}
	}
	display := strings.Join(final, " ")

	cmd := exec.Command(final[0], final[1:]...)
	var combined bytes.Buffer
	cmd.Stdout = &combined
	cmd.Stderr = &combined
	if opts.Stdin != "" {
		cmd.Stdin = strings.NewReader(opts.Stdin)
	}
	// Own process group so a timeout can take down shell children too.
	setProcessGroup(cmd)

	log.Infof("execx: running: %s", display)
	if err := cmd.Start(); err != nil {
		log.Errorf("execx: start failed: %s: %v", display, err)
		return Result{Output: err.Error()}
	}

	done := make(chan error, 1)
	go func() { done <- cmd.Wait() }()

	var waitErr error
	select {
	case waitErr = <-done:
	case <-time.After(timeout):
		killProcessGroup(cmd)
		<-done
		log.Errorf("execx: command timed out after %s: %s", timeout, display)
		return Result{Output: fmt.Sprintf("timed out after %s\n%s", timeout, trimOutput(&combined))}
	case <-ctx.Done():
		killProcessGroup(cmd)
		<-done
		log.Warnf("execx: command canceled: %s", display)
		return Result{Output: fmt.Sprintf("canceled: %v\n%s", ctx.Err(), trimOutput(&combined))}
	}

	output := trimOutput(&combined)
	if waitErr == nil {
		log.Debugf("execx: command ok: %s", display)
		return Result{OK: true, Output: output}
	}

	msg := fmt.Sprintf("command failed (%v): %s", waitErr, display)
	if opts.CheckExit {
		log.Errorf("execx: %s; output: %s", msg, output)
	} else {
		log.Warnf("execx: %s", msg)
		if opts.Sudo && r.euid() != 0 {
			log.Warn("execx: failure under sudo usually means a missing sudoers rule for this command")
		}
	}
	return Result{Output: output}
}

// buildArgv resolves the final command line: shell wrapping, binary
// resolution, and the sudo prefix.
func (r *Runner) buildArgv(argv []string, opts Options) ([]string, error) {
	var final []string
	if opts.Shell {
		final = []string{"/bin/sh", "-c", strings.Join(argv, " ")}
	} else {
		path, err := exec.LookPath(argv[0])
		if err != nil {
			return nil, fmt.Errorf("command not found: %s", argv[0])
		}
		final = append([]string{path}, argv[1:]...)
	}

	if opts.Sudo && r.euid() != 0 {
		sudoPath, err := exec.LookPath("sudo")
		if err != nil {
			return nil, fmt.Errorf("sudo required but not found in PATH")
		}
		final = append([]string{sudoPath}, final...)
	}
	return final, nil
}

func trimOutput(buf *bytes.Buffer) string {
	return strings.TrimSpace(buf.String())
}
