package broker

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"syscall"
	"time"
)

// backendRunner abstracts one backend invocation so tests can substitute
// a fake for the real subprocess.
type backendRunner interface {
	run(ctx context.Context, args []string, stdin string) (stdout, stderr []byte, err error)
}

// cliRunner invokes the backend binary. One invocation is one process:
// args on the command line, the message on stdin, the NDJSON stream
// collected from stdout.
//
// Termination escalates: after timeout the process gets SIGTERM; if it has
// not exited within grace it gets SIGKILL. Both timers are cancelled the
// moment the process exits on its own.
type cliRunner struct {
	bin     string
	timeout time.Duration
	grace   time.Duration
}

func (r *cliRunner) run(ctx context.Context, args []string, stdin string) ([]byte, []byte, error) {
	cmd := exec.Command(r.bin, args...)
	cmd.Stdin = strings.NewReader(stdin)
	var outBuf, errBuf bytes.Buffer
	cmd.Stdout = &outBuf
	cmd.Stderr = &errBuf

	if err := cmd.Start(); err != nil {
		return nil, nil, spawnError{cause: err}
	}

	done := make(chan error, 1)
	go func() { done <- cmd.Wait() }()

	term := time.NewTimer(r.timeout)
	defer term.Stop()

	var (
		killC    <-chan time.Time
		killT    *time.Timer
		timedOut bool
	)
	defer func() {
		if killT != nil {
			killT.Stop()
		}
	}()

	ctxDone := ctx.Done()
	for {
		select {
		case <-ctxDone:
			// Caller gave up; treat like a timeout so the process is
			// reaped the same way.
			ctxDone = nil
			if !timedOut {
				timedOut = true
				_ = cmd.Process.Signal(syscall.SIGTERM)
				killT = time.NewTimer(r.grace)
				killC = killT.C
			}
		case <-term.C:
			if !timedOut {
				timedOut = true
				_ = cmd.Process.Signal(syscall.SIGTERM)
				killT = time.NewTimer(r.grace)
				killC = killT.C
			}
		case <-killC:
			_ = cmd.Process.Kill()
			killC = nil
		case waitErr := <-done:
			stdout, stderr := outBuf.Bytes(), errBuf.Bytes()
			if timedOut {
				return stdout, stderr, timeoutError{limit: r.timeout.String()}
			}
			if waitErr != nil {
				var exitErr *exec.ExitError
				if errors.As(waitErr, &exitErr) {
					return stdout, stderr, backendExitError{
						code:   exitErr.ExitCode(),
						stderr: stderrTail(stderr),
					}
				}
				return stdout, stderr, fmt.Errorf("backend wait: %w", waitErr)
			}
			return stdout, stderr, nil
		}
	}
}

// stderrTail keeps the last few lines of stderr for error messages; backends
// can be chatty and only the tail names the actual failure.
func stderrTail(b []byte) string {
	s := strings.TrimSpace(string(b))
	if s == "" {
		return ""
	}
	lines := strings.Split(s, "\n")
	if len(lines) > 5 {
		lines = lines[len(lines)-5:]
	}
	out := strings.Join(lines, "\n")
	if len(out) > 500 {
		out = out[len(out)-500:]
	}
	return out
}

// buildArgs assembles the backend command line. A resume id continues the
// prior conversation; otherwise the full instruction prompt seeds a new one.
func (b *Broker) buildArgs(resumeID, instructions string) []string {
	args := []string{
		"--model", b.cfg.Model,
		"--output-format", "stream-json",
	}
	if resumeID != "" {
		args = append(args, "--resume", resumeID)
		return args
	}
	if len(b.cfg.DisallowedTools) > 0 {
		args = append(args, "--disallowed-tools", strings.Join(b.cfg.DisallowedTools, ","))
	}
	if instructions != "" {
		args = append(args, "--append-system-prompt", instructions)
	}
	return args
}
