package runner

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mattjoyce/lanes/internal/log"
)

func TestMain(m *testing.M) {
	log.Setup("ERROR")
	os.Exit(m.Run())
}

func shell(script string) []string {
	return []string{"/bin/sh", "-c", script, "sh"}
}

func TestCommand_AppendsArgs(t *testing.T) {
	op := Spec{Argv: shell(`echo "$1-$2"`)}.Operation()

	res, err := op(context.Background(), "hello", 42)
	require.NoError(t, err)
	assert.Equal(t, "hello-42", res)
}

func TestCommand_WritesArgsToStdin(t *testing.T) {
	op := Spec{Argv: shell("cat")}.Operation()

	res, err := op(context.Background(), map[string]any{"level": 3})
	require.NoError(t, err)
	assert.Equal(t, `[{"level":3}]`, res)
}

func TestCommand_NonZeroExit(t *testing.T) {
	op := Spec{Argv: shell(`echo "bad input" >&2; exit 3`)}.Operation()

	_, err := op(context.Background())
	var exitErr *ExitError
	require.ErrorAs(t, err, &exitErr)
	assert.Equal(t, 3, exitErr.Code)
	assert.Contains(t, exitErr.Stderr, "bad input")
	assert.Equal(t, "exit status 3: bad input", err.Error())
}

func TestCommand_KillAfter(t *testing.T) {
	op := Spec{Argv: []string{"/bin/sleep", "5"}, KillAfter: 50 * time.Millisecond}.Operation()

	start := time.Now()
	_, err := op(context.Background())
	assert.ErrorIs(t, err, ErrKilled)
	assert.Less(t, time.Since(start), 3*time.Second)
}

func TestCommand_KillAfterReachesChildren(t *testing.T) {
	// The backgrounded sleep keeps stdout open; only a group kill lets Wait return.
	op := Spec{Argv: shell("sleep 30 & wait"), KillAfter: 100 * time.Millisecond}.Operation()

	start := time.Now()
	_, err := op(context.Background())
	assert.ErrorIs(t, err, ErrKilled)
	assert.Less(t, time.Since(start), 3*time.Second)
}

func TestCommand_ContextCancel(t *testing.T) {
	op := Spec{Argv: []string{"/bin/sleep", "5"}}.Operation()
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := op(ctx)
	assert.ErrorIs(t, err, ErrKilled)
}

func TestCommand_StartFailure(t *testing.T) {
	_, err := Spec{Argv: []string{"/nonexistent/lanes-test-binary"}}.Operation()(context.Background())
	assert.ErrorContains(t, err, "start process")

	_, err = Spec{}.Operation()(context.Background())
	assert.ErrorContains(t, err, "empty command")
}

func TestStringArgs(t *testing.T) {
	got := stringArgs([]any{"s", 1, 2.5, true, nil, []int{1, 2}, map[string]string{"k": "v"}})
	assert.Equal(t, []string{"s", "1", "2.5", "true", "", "[1,2]", `{"k":"v"}`}, got)
}
