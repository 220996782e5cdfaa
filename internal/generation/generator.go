package generation

import "context"

// Request carries one image-generation call's parameters. Width and height
// are pixel dimensions already validated at intake; Style is an optional
// free-form tag passed through to the provider.
type Request struct {
	Prompt string
	Width  int
	Height int
	Style  string
}

// Result is the ephemeral outcome of a successful generation call: a locator
// the artifact store can fetch bytes from. It is consumed immediately by the
// task executor and never persisted directly.
type Result struct {
	// Locator is a URI identifying the generated image. Providers return
	// either an http(s) URL or a data: URI carrying the bytes inline.
	Locator string
}

// Generator defines the boundary between the task executor and external
// image-generation services. Implementations own provider-specific request
// shaping, response parsing, and error classification; the shared retry
// policy lives in this package.
type Generator interface {
	// Generate produces an image for the request and returns its locator.
	// Transient provider failures are retried per the configured policy;
	// validation-class failures return immediately. The context bounds the
	// whole call including retries.
	Generate(ctx context.Context, req Request) (*Result, error)
}

// HealthChecker is an optional interface generators can implement to report
// whether the upstream provider is reachable. The system status report uses
// it via type assertion.
type HealthChecker interface {
	Ping(ctx context.Context) error
}
