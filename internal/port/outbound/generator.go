// Package outbound defines the outbound ports: interfaces the core
// depends on, implemented by adapters.
package outbound

import (
	"context"

	"github.com/celestine-app/celestine/internal/domain/content"
)

// Generator produces content text for a generation request. It is an
// opaque, expensive, latency-variable collaborator: prompt construction
// and model selection live behind this interface, and callers bound every
// invocation with a context deadline.
type Generator interface {
	// Generate returns the generated text for the request, or an error.
	// Implementations must honor ctx cancellation and deadlines.
	Generate(ctx context.Context, req *content.GenerationRequest) (string, error)
}
