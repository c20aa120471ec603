package providers

import (
	"context"

	"github.com/flowpilot-ai/flowpilot/internal/types"
)

// LLMProvider is the boundary to one model vendor. The router only needs
// single-shot prompt completion; anything fancier belongs to the vendor
// package.
type LLMProvider interface {
	Name() string

	// Complete sends prompt to the given model and returns the generated
	// text plus reported token usage. Usage may be zero when the vendor
	// does not report it.
	Complete(ctx context.Context, model string, prompt string) (string, types.Usage, error)

	// HealthCheck probes the vendor with a minimal request.
	HealthCheck(ctx context.Context) error
}
