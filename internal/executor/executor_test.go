package executor

import (
	"context"
	"errors"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowpilot-ai/flowpilot/internal/operations"
	"github.com/flowpilot-ai/flowpilot/internal/types"
)

func newTestExecutor() (*Executor, *operations.Registry) {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	registry := operations.NewRegistry()
	return New(registry, logger), registry
}

func TestExecute_OrderPreserved(t *testing.T) {
	exec, registry := newTestExecutor()

	registry.Register("first", func(ctx context.Context, params map[string]string) (string, error) {
		return "one", nil
	})
	registry.Register("second", func(ctx context.Context, params map[string]string) (string, error) {
		return "two", nil
	})

	results := exec.Execute(context.Background(), []types.Invocation{
		{Operation: "first", Parameters: map[string]string{}},
		{Operation: "second", Parameters: map[string]string{}},
	})

	require.Len(t, results, 2)
	assert.Equal(t, "first", results[0].Operation)
	assert.Equal(t, "one", results[0].Payload)
	assert.Equal(t, "second", results[1].Operation)
	assert.Equal(t, "two", results[1].Payload)
}

func TestExecute_FailureDoesNotAbortRest(t *testing.T) {
	exec, registry := newTestExecutor()

	registry.Register("broken", func(ctx context.Context, params map[string]string) (string, error) {
		return "", errors.New("backend unavailable")
	})
	registry.Register("healthy", func(ctx context.Context, params map[string]string) (string, error) {
		return "data", nil
	})

	results := exec.Execute(context.Background(), []types.Invocation{
		{Operation: "broken"},
		{Operation: "healthy"},
	})

	require.Len(t, results, 2)
	assert.False(t, results[0].Success)
	assert.Equal(t, "backend unavailable", results[0].Error)
	assert.True(t, results[1].Success)
	assert.Equal(t, "data", results[1].Payload)
}

func TestExecute_UnknownOperation(t *testing.T) {
	exec, _ := newTestExecutor()

	results := exec.Execute(context.Background(), []types.Invocation{
		{Operation: "missing"},
	})

	require.Len(t, results, 1)
	assert.False(t, results[0].Success)
	assert.Contains(t, results[0].Error, "unknown operation")
}

func TestExecute_EmptyListYieldsEmptyResults(t *testing.T) {
	exec, _ := newTestExecutor()

	results := exec.Execute(context.Background(), nil)

	assert.NotNil(t, results)
	assert.Empty(t, results)
}

func TestExecute_ParametersPassedThrough(t *testing.T) {
	exec, registry := newTestExecutor()

	var seen map[string]string
	registry.Register("echo", func(ctx context.Context, params map[string]string) (string, error) {
		seen = params
		return "ok", nil
	})

	params := map[string]string{"workflow_id": "wf-7"}
	exec.Execute(context.Background(), []types.Invocation{
		{Operation: "echo", Parameters: params},
	})

	assert.Equal(t, params, seen)
}

func TestExecute_CancelledContextStopsRemaining(t *testing.T) {
	exec, registry := newTestExecutor()

	ctx, cancel := context.WithCancel(context.Background())
	registry.Register("canceller", func(ctx context.Context, params map[string]string) (string, error) {
		cancel()
		return "partial", nil
	})
	called := false
	registry.Register("late", func(ctx context.Context, params map[string]string) (string, error) {
		called = true
		return "never", nil
	})

	results := exec.Execute(ctx, []types.Invocation{
		{Operation: "canceller"},
		{Operation: "late"},
	})

	require.Len(t, results, 1)
	assert.True(t, results[0].Success)
	assert.False(t, called, "operations after cancellation must not run")
}
