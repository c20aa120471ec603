package executor

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/flowpilot-ai/flowpilot/internal/operations"
	"github.com/flowpilot-ai/flowpilot/internal/types"
)

// Executor runs mapped operations against the registry, isolating each
// failure so one broken retrieval never takes the whole request down.
type Executor struct {
	registry *operations.Registry
	logger   *logrus.Logger
}

// New creates an executor over the given registry.
func New(registry *operations.Registry, logger *logrus.Logger) *Executor {
	return &Executor{registry: registry, logger: logger}
}

// Execute invokes every operation in listed order. A failing operation (or an
// unknown name) yields a result with Success=false and moves on; results come
// back in invocation order, never completion order. An empty invocation list
// yields an empty, non-nil result list.
func (e *Executor) Execute(ctx context.Context, invocations []types.Invocation) []types.OperationResult {
	results := make([]types.OperationResult, 0, len(invocations))

	for _, inv := range invocations {
		results = append(results, e.executeOne(ctx, inv))

		// A cancelled request stops issuing further calls; results already
		// collected stay usable for a partial response.
		if ctx.Err() != nil {
			break
		}
	}

	return results
}

func (e *Executor) executeOne(ctx context.Context, inv types.Invocation) types.OperationResult {
	start := time.Now()

	fn, err := e.registry.Resolve(inv.Operation)
	if err != nil {
		e.logger.WithError(err).WithField("operation", inv.Operation).
			Warn("Operation not registered")
		return types.OperationResult{
			Operation: inv.Operation,
			Success:   false,
			Error:     err.Error(),
		}
	}

	payload, err := fn(ctx, inv.Parameters)
	elapsed := time.Since(start)

	if err != nil {
		e.logger.WithError(err).WithFields(logrus.Fields{
			"operation":   inv.Operation,
			"duration_ms": elapsed.Milliseconds(),
		}).Warn("Operation failed")
		return types.OperationResult{
			Operation: inv.Operation,
			Success:   false,
			Error:     err.Error(),
		}
	}

	e.logger.WithFields(logrus.Fields{
		"operation":   inv.Operation,
		"duration_ms": elapsed.Milliseconds(),
	}).Debug("Operation completed")

	return types.OperationResult{
		Operation: inv.Operation,
		Success:   true,
		Payload:   payload,
	}
}
