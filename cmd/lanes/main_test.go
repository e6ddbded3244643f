package main

import (
	"context"
	"encoding/json"
	"io"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mattjoyce/lanes/internal/api"
	"github.com/mattjoyce/lanes/internal/config"
	"github.com/mattjoyce/lanes/internal/events"
	"github.com/mattjoyce/lanes/internal/log"
	"github.com/mattjoyce/lanes/internal/registry"
	"github.com/mattjoyce/lanes/internal/storage"
	"github.com/mattjoyce/lanes/internal/tasklog"
)

func TestMain(m *testing.M) {
	log.Setup("ERROR")
	os.Exit(m.Run())
}

func captureOutputWithExitCode(t *testing.T, run func() int) (int, string, string) {
	t.Helper()

	oldStdout, oldStderr := os.Stdout, os.Stderr
	stdoutR, stdoutW, err := os.Pipe()
	require.NoError(t, err)
	stderrR, stderrW, err := os.Pipe()
	require.NoError(t, err)
	os.Stdout, os.Stderr = stdoutW, stderrW

	outCh := make(chan []byte, 1)
	errCh := make(chan []byte, 1)
	go func() { b, _ := io.ReadAll(stdoutR); outCh <- b }()
	go func() { b, _ := io.ReadAll(stderrR); errCh <- b }()

	code := run()

	_ = stdoutW.Close()
	_ = stderrW.Close()
	os.Stdout, os.Stderr = oldStdout, oldStderr

	return code, string(<-outCh), string(<-errCh)
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	body = strings.ReplaceAll(body, "$DIR", dir)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

const greetConfig = `
state:
  path: $DIR/lanes.db
queues:
  greet:
    owner: mailer
    command: ["echo"]
    length: 4
`

func TestRunCLIHelpAndUnknown(t *testing.T) {
	code, stdout, _ := captureOutputWithExitCode(t, func() int { return runCLI([]string{"help"}) })
	assert.Equal(t, 0, code)
	assert.Contains(t, stdout, "queue push")

	code, _, stderr := captureOutputWithExitCode(t, func() int { return runCLI([]string{"bogus"}) })
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr, "Unknown command: bogus")

	code, _, _ = captureOutputWithExitCode(t, func() int { return runCLI(nil) })
	assert.Equal(t, 1, code)
}

func TestRunNounActionHelp(t *testing.T) {
	tests := []struct {
		args []string
		want string
	}{
		{[]string{"system", "help"}, "Actions: start, status"},
		{[]string{"system", "start", "--help"}, "lanes system start"},
		{[]string{"config", "-h"}, "Actions: check, lock, show"},
		{[]string{"config", "lock", "--help"}, ".checksums"},
		{[]string{"queue", "help"}, "Actions: list, push, clear, history, watch"},
		{[]string{"queue", "push", "--help"}, "--owner NAME"},
		{[]string{"queue", "history", "-h"}, "newest first"},
	}
	for _, tt := range tests {
		t.Run(strings.Join(tt.args, " "), func(t *testing.T) {
			code, stdout, _ := captureOutputWithExitCode(t, func() int { return runCLI(tt.args) })
			assert.Equal(t, 0, code)
			assert.Contains(t, stdout, tt.want)
		})
	}
}

func TestRunVersionJSON(t *testing.T) {
	orig := []string{version, gitCommit, buildDate}
	version, gitCommit, buildDate = "1.2.3", "0123456789abcdef", "2026-03-04T05:06:07+02:00"
	t.Cleanup(func() { version, gitCommit, buildDate = orig[0], orig[1], orig[2] })

	code, stdout, _ := captureOutputWithExitCode(t, func() int { return runCLI([]string{"version", "--json"}) })
	require.Equal(t, 0, code)

	var info versionInfo
	require.NoError(t, json.Unmarshal([]byte(stdout), &info))
	assert.Equal(t, "1.2.3", info.Version)
	assert.Equal(t, "0123456789ab", info.Commit)
	assert.Equal(t, "2026-03-04T03:06:07Z", info.BuildTime)
}

func TestRunConfigCheck(t *testing.T) {
	path := writeConfig(t, greetConfig)
	code, stdout, _ := captureOutputWithExitCode(t, func() int {
		return runCLI([]string{"config", "check", "--config", path, "--json"})
	})
	require.Equal(t, 0, code)

	var result configCheckResult
	require.NoError(t, json.Unmarshal([]byte(stdout), &result))
	assert.True(t, result.Valid)
	assert.Equal(t, []string{"greet"}, result.Queues)

	bad := writeConfig(t, "state:\n  path: $DIR/x.db\nqueues:\n  broken:\n    overflow: sideways\n")
	code, _, stderr := captureOutputWithExitCode(t, func() int {
		return runCLI([]string{"config", "check", "--config", bad})
	})
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr, "Config invalid")

	missing := writeConfig(t, "state:\n  path: $DIR/x.db\nqueues:\n  ghost:\n    command: [\"lanes-no-such-binary\"]\n")
	code, stdout, _ = captureOutputWithExitCode(t, func() int {
		return runCLI([]string{"config", "check", "--config", missing})
	})
	assert.Equal(t, 1, code)
	assert.Contains(t, stdout, "ERROR [commands]")
}

func TestRunConfigLockThenTamper(t *testing.T) {
	path := writeConfig(t, greetConfig)

	code, stdout, _ := captureOutputWithExitCode(t, func() int {
		return runCLI([]string{"config", "lock", "--config", path, "--dry-run", "-v"})
	})
	require.Equal(t, 0, code)
	assert.Contains(t, stdout, "Would write")
	assert.Contains(t, stdout, "config.yaml")
	_, err := os.Stat(filepath.Join(filepath.Dir(path), ".checksums"))
	assert.True(t, os.IsNotExist(err))

	code, stdout, _ = captureOutputWithExitCode(t, func() int {
		return runCLI([]string{"config", "lock", "--config", path})
	})
	require.Equal(t, 0, code)
	assert.Contains(t, stdout, "Wrote")

	_, err = config.Load(path)
	require.NoError(t, err)

	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0)
	require.NoError(t, err)
	_, err = f.WriteString("# edited\n")
	require.NoError(t, err)
	require.NoError(t, f.Close())

	code, _, _ = captureOutputWithExitCode(t, func() int {
		return runCLI([]string{"config", "check", "--config", path})
	})
	assert.Equal(t, 1, code)
}

func TestRunConfigShowRedactsKey(t *testing.T) {
	path := writeConfig(t, greetConfig+"api:\n  enabled: true\n  api_key: super-secret\n")
	code, stdout, _ := captureOutputWithExitCode(t, func() int {
		return runCLI([]string{"config", "show", "--config", path})
	})
	require.Equal(t, 0, code)
	assert.NotContains(t, stdout, "super-secret")
	assert.Contains(t, stdout, "greet")
}

func TestRunConfigShowRedactsWebhookSecret(t *testing.T) {
	path := writeConfig(t, greetConfig+"webhooks:\n  endpoints:\n    - path: /hooks/greet\n      queue: greet\n      secret: hook-secret\n")
	code, stdout, _ := captureOutputWithExitCode(t, func() int {
		return runCLI([]string{"config", "show", "--config", path, "--json"})
	})
	require.Equal(t, 0, code)
	assert.NotContains(t, stdout, "hook-secret")
	assert.Contains(t, stdout, "/hooks/greet")
}

func TestServeWithWebhooksAndScheduleStopsOnCancel(t *testing.T) {
	cfg, err := config.Load(writeConfig(t, greetConfig+"    schedule:\n      every: 1h\n      args: [tick]\n"+
		"webhooks:\n  listen: 127.0.0.1:0\n  endpoints:\n    - path: /hooks/greet\n      queue: greet\n      secret: s\n"))
	require.NoError(t, err)
	require.NotNil(t, cfg.Queues["greet"].Schedule)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- serve(ctx, cfg, log.WithComponent("test")) }()

	time.Sleep(50 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(15 * time.Second):
		t.Fatal("serve did not stop")
	}
}

func TestSplitFlagsAndPositionals(t *testing.T) {
	flags, positionals := splitFlagsAndPositionals(
		[]string{"send", "--owner", "bob", "a", "--json", "--limit=3", "--", "--raw"},
		map[string]bool{"owner": true, "limit": true},
	)
	assert.Equal(t, []string{"--owner", "bob", "--json", "--limit=3"}, flags)
	assert.Equal(t, []string{"send", "a", "--raw"}, positionals)
}

func TestBuildTaskArgs(t *testing.T) {
	args, err := buildTaskArgs("", []string{"a", "b"})
	require.NoError(t, err)
	assert.Equal(t, []any{"a", "b"}, args)

	args, err = buildTaskArgs(`["x", 3, {"k": true}]`, nil)
	require.NoError(t, err)
	require.Len(t, args, 3)
	assert.Equal(t, json.Number("3"), args[1])

	_, err = buildTaskArgs(`{"not": "array"}`, nil)
	assert.Error(t, err)
	_, err = buildTaskArgs(`[]`, []string{"a"})
	assert.Error(t, err)
}

func TestBindQueuesRunsCommands(t *testing.T) {
	cfg, err := config.Load(writeConfig(t, greetConfig))
	require.NoError(t, err)

	reg := registry.New(context.Background(), nil)
	t.Cleanup(func() { _ = reg.Close() })
	table, err := bindQueues(cfg, reg)
	require.NoError(t, err)

	_, ok := reg.Lookup("mailer", "greet")
	assert.True(t, ok, "configured owner gets its dispatcher up front")

	task, err := table.Push("mailer", "greet", "hello")
	require.NoError(t, err)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	result, err := task.Wait(ctx)
	require.NoError(t, err)
	assert.Equal(t, "hello", result)
}

func TestServeStopsOnCancel(t *testing.T) {
	cfg, err := config.Load(writeConfig(t, greetConfig))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- serve(ctx, cfg, log.WithComponent("test")) }()

	time.Sleep(50 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(15 * time.Second):
		t.Fatal("serve did not stop")
	}
	_, err = os.Stat(cfg.State.Path)
	assert.NoError(t, err, "database created")
}

func TestQueueCommandsAgainstAPI(t *testing.T) {
	cfgPath := writeConfig(t, greetConfig)
	cfg, err := config.Load(cfgPath)
	require.NoError(t, err)

	db, err := storage.OpenSQLite(context.Background(), cfg.State.Path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	hub := events.NewHub(32)
	store := tasklog.New(db)
	recorder := tasklog.NewRecorder(store, hub, 0)
	recCtx, stopRecorder := context.WithCancel(context.Background())
	t.Cleanup(stopRecorder)
	go func() { _ = recorder.Run(recCtx) }()

	reg := registry.New(context.Background(), hub)
	t.Cleanup(func() { _ = reg.Close() })
	table, err := bindQueues(cfg, reg)
	require.NoError(t, err)

	srv := api.New(api.Config{APIKey: "k"}, registry.Service{Registry: reg, Table: table}, store, hub, log.WithComponent("api"))
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	client := []string{"--api-url", ts.URL, "--api-key", "k"}

	code, stdout, stderr := captureOutputWithExitCode(t, func() int {
		return runCLI(append([]string{"queue", "push", "greet", "hi", "--config", cfgPath}, client...))
	})
	require.Equal(t, 0, code, stderr)
	assert.Contains(t, stdout, "mailer/greet task")

	require.NoError(t, reg.WaitForIdle(context.Background()))
	assert.Eventually(t, func() bool {
		entries, err := store.List(context.Background(), "mailer", "greet", 0)
		return err == nil && len(entries) == 1
	}, 5*time.Second, 20*time.Millisecond)

	code, stdout, _ = captureOutputWithExitCode(t, func() int {
		return runCLI(append([]string{"queue", "list"}, client...))
	})
	require.Equal(t, 0, code)
	assert.Contains(t, stdout, "greet")
	assert.Contains(t, stdout, "mailer")

	code, stdout, _ = captureOutputWithExitCode(t, func() int {
		return runCLI(append([]string{"queue", "history", "mailer", "greet"}, client...))
	})
	require.Equal(t, 0, code)
	assert.Contains(t, stdout, "done")

	code, stdout, _ = captureOutputWithExitCode(t, func() int {
		return runCLI(append([]string{"queue", "clear", "mailer", "greet"}, client...))
	})
	require.Equal(t, 0, code)
	assert.Contains(t, stdout, "Cleared 0 task(s)")

	code, _, stderr = captureOutputWithExitCode(t, func() int {
		return runCLI(append([]string{"queue", "push", "nope", "--config", cfgPath}, client...))
	})
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr, "404")

	code, _, stderr = captureOutputWithExitCode(t, func() int {
		return runCLI([]string{"queue", "list", "--api-url", ts.URL, "--api-key", ""})
	})
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr, "API key required")
}
