// Package runner turns external commands into queue operations.
package runner

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
	"syscall"
	"time"

	"github.com/mattjoyce/lanes/internal/log"
	"github.com/mattjoyce/lanes/internal/queue"
)

const (
	// maxStderrBytes caps the amount of stderr kept in an ExitError.
	maxStderrBytes = 64 * 1024
	// maxStdoutBytes caps the result returned to the dispatcher.
	maxStdoutBytes = 1024 * 1024

	terminationGracePeriod = 5 * time.Second
)

// ErrKilled is returned when a command outlives KillAfter or its context.
var ErrKilled = errors.New("command terminated")

// ExitError reports a command that exited with a non-zero status.
type ExitError struct {
	Code   int
	Stderr string
}

func (e *ExitError) Error() string {
	msg := fmt.Sprintf("exit status %d", e.Code)
	if s := strings.TrimSpace(e.Stderr); s != "" {
		msg += ": " + firstLine(s)
	}
	return msg
}

// Spec describes a command. Task arguments are appended to Argv and also
// written to stdin as a JSON array.
type Spec struct {
	Argv []string
	Dir  string
	Env  []string
	// KillAfter terminates the process once exceeded. Zero means no limit
	// beyond the dispatcher's own lifetime.
	KillAfter time.Duration
	Logger    *slog.Logger
}

// Operation returns the queue operation for s. The result is the trimmed
// stdout of the process.
func (s Spec) Operation() queue.Operation {
	logger := s.Logger
	if logger == nil {
		logger = log.WithComponent("runner")
	}
	return func(ctx context.Context, args ...any) (any, error) {
		if len(s.Argv) == 0 {
			return nil, fmt.Errorf("runner: empty command")
		}
		return s.run(ctx, args, logger)
	}
}

func (s Spec) run(ctx context.Context, args []any, logger *slog.Logger) (any, error) {
	payload, err := json.Marshal(args)
	if err != nil {
		return nil, fmt.Errorf("encode args: %w", err)
	}
	argv := append(append([]string{}, s.Argv...), stringArgs(args)...)

	// Not CommandContext: termination is managed here so we can send SIGTERM first.
	cmd := exec.Command(argv[0], argv[1:]...)
	cmd.Dir = s.Dir
	if len(s.Env) > 0 {
		cmd.Env = s.Env
	}
	cmd.Stdin = bytes.NewReader(payload)
	// Own process group, so termination reaches children of shell commands.
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	logger.Debug("spawning command", "argv", argv, "kill_after", s.KillAfter)
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start process: %w", err)
	}

	waitErr := make(chan error, 1)
	go func() {
		waitErr <- cmd.Wait()
	}()

	var deadline <-chan time.Time
	if s.KillAfter > 0 {
		timer := time.NewTimer(s.KillAfter)
		defer timer.Stop()
		deadline = timer.C
	}

	select {
	case <-deadline:
		logger.Warn("command exceeded kill_after, sending SIGTERM", "argv0", argv[0])
		terminate(cmd, waitErr, logger)
		return nil, fmt.Errorf("%w after %s", ErrKilled, s.KillAfter)

	case <-ctx.Done():
		logger.Info("dispatcher stopping, sending SIGTERM", "argv0", argv[0])
		terminate(cmd, waitErr, logger)
		return nil, fmt.Errorf("%w: %v", ErrKilled, ctx.Err())

	case err := <-waitErr:
		if err != nil {
			var exitErr *exec.ExitError
			if errors.As(err, &exitErr) {
				logger.Warn("command exited with non-zero status", "exit_code", exitErr.ExitCode())
				return nil, &ExitError{Code: exitErr.ExitCode(), Stderr: truncate(stderr.String(), maxStderrBytes)}
			}
			return nil, fmt.Errorf("wait for process: %w", err)
		}
		return strings.TrimSpace(truncate(stdout.String(), maxStdoutBytes)), nil
	}
}

func terminate(cmd *exec.Cmd, waitErr <-chan error, logger *slog.Logger) {
	if cmd.Process == nil {
		return
	}
	if err := signalGroup(cmd, syscall.SIGTERM); err != nil {
		logger.Error("failed to send SIGTERM", "error", err)
	}

	grace := time.NewTimer(terminationGracePeriod)
	defer grace.Stop()

	select {
	case <-waitErr:
		logger.Info("command exited after SIGTERM")
	case <-grace.C:
		logger.Warn("command did not exit after SIGTERM, sending SIGKILL")
		if err := signalGroup(cmd, syscall.SIGKILL); err != nil {
			logger.Error("failed to send SIGKILL", "error", err)
		}
		<-waitErr
	}
}

// signalGroup signals the command's process group, falling back to the
// process itself when the group is already gone.
func signalGroup(cmd *exec.Cmd, sig syscall.Signal) error {
	if err := syscall.Kill(-cmd.Process.Pid, sig); err == nil {
		return nil
	}
	return cmd.Process.Signal(sig)
}

// stringArgs renders task arguments as argv entries. Strings and numbers are
// passed as is; anything else is JSON encoded.
func stringArgs(args []any) []string {
	out := make([]string, 0, len(args))
	for _, a := range args {
		switch v := a.(type) {
		case nil:
			out = append(out, "")
		case string:
			out = append(out, v)
		case fmt.Stringer:
			out = append(out, v.String())
		case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64, float32, float64, bool:
			out = append(out, fmt.Sprint(v))
		default:
			b, err := json.Marshal(v)
			if err != nil {
				out = append(out, fmt.Sprint(v))
				continue
			}
			out = append(out, string(b))
		}
	}
	return out
}

func truncate(s string, n int) string {
	if len(s) > n {
		return s[:n]
	}
	return s
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
