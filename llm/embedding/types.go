// Package embedding provides unified embedding provider interfaces and
// implementations, including the deterministic hash fallback used when
// no remote embedder is configured or reachable.
package embedding

import "context"

// Provider defines the unified embedding provider interface.
type Provider interface {
	// Embed generates an embedding for one text.
	Embed(ctx context.Context, text string) ([]float32, error)

	// Name returns the provider name.
	Name() string

	// Dimensions returns the embedding dimensionality.
	Dimensions() int
}
