// Package ark implements the image generation boundary against the Volcano
// Engine Ark platform (Doubao Seedream models) through the official SDK.
package ark

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/volcengine/volcengine-go-sdk/service/arkruntime"
	"github.com/volcengine/volcengine-go-sdk/service/arkruntime/model"
	"github.com/volcengine/volcengine-go-sdk/volcengine"

	"github.com/phrazzld/pictor-api/internal/config"
	"github.com/phrazzld/pictor-api/internal/generation"
	"github.com/phrazzld/pictor-api/internal/platform/logger"
)

// DefaultBaseURL is the public Ark endpoint used when no override is configured.
const DefaultBaseURL = "https://ark.cn-beijing.volces.com/api/v3"

// Generator implements the generation.Generator interface using the Ark
// images API. Each Generate call submits one prompt and yields an https
// locator for the produced image.
type Generator struct {
	// logger is used for structured logging
	logger *slog.Logger

	// config contains provider-specific configuration
	config config.GeneratorConfig

	// policy drives retry behavior for transient provider failures
	policy generation.RetryPolicy

	// client is the Ark runtime client for making requests
	client *arkruntime.Client

	// probe is used by Ping for a cheap reachability check; the SDK
	// exposes no endpoint that does not bill a generation
	probe *http.Client

	// baseURL is the resolved endpoint, kept for Ping
	baseURL string
}

// NewGenerator creates an Ark-backed Generator with the provided dependencies.
//
// Parameters:
//   - logger: A structured logger for operation logging
//   - cfg: Generator configuration containing API key, model name, and timeouts
//   - policy: Retry policy applied to transient provider failures
//
// Returns:
//   - A properly initialized Generator or an error if the configuration is unusable
func NewGenerator(
	logger *slog.Logger,
	cfg config.GeneratorConfig,
	policy generation.RetryPolicy,
) (*Generator, error) {
	if logger == nil {
		return nil, errors.New("logger cannot be nil")
	}

	if cfg.APIKey == "" {
		return nil, fmt.Errorf("%w: ark API key cannot be empty", generation.ErrInvalidConfig)
	}

	if cfg.Model == "" {
		return nil, fmt.Errorf("%w: model name cannot be empty", generation.ErrInvalidConfig)
	}

	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	client := arkruntime.NewClientWithApiKey(
		cfg.APIKey,
		arkruntime.WithBaseUrl(baseURL),
	)

	return &Generator{
		logger:  logger.With(slog.String("component", "ark_generator")),
		config:  cfg,
		policy:  policy,
		client:  client,
		probe:   &http.Client{Timeout: cfg.RequestTimeout()},
		baseURL: baseURL,
	}, nil
}

// Ensure Generator satisfies the generation interfaces.
var (
	_ generation.Generator     = (*Generator)(nil)
	_ generation.HealthChecker = (*Generator)(nil)
)

// Generate produces one image for the request and returns its locator.
// Transient provider failures are retried under the generator's policy;
// rejected prompts and malformed responses fail immediately.
func (g *Generator) Generate(ctx context.Context, req generation.Request) (*generation.Result, error) {
	log := logger.FromContextOrDefault(ctx, g.logger)

	log.DebugContext(ctx, "requesting image generation",
		"model", g.config.Model,
		"width", req.Width,
		"height", req.Height,
		"prompt_length", len(req.Prompt))

	return generation.Retry(ctx, log, g.policy, func(ctx context.Context) (*generation.Result, error) {
		return g.generateOnce(ctx, req)
	})
}

// generateOnce performs a single images API call under the per-attempt timeout.
func (g *Generator) generateOnce(ctx context.Context, req generation.Request) (*generation.Result, error) {
	ctx, cancel := context.WithTimeout(ctx, g.config.RequestTimeout())
	defer cancel()

	genReq := model.GenerateImagesRequest{
		Model:          g.config.Model,
		Prompt:         buildPrompt(req),
		Size:           volcengine.String(fmt.Sprintf("%dx%d", req.Width, req.Height)),
		ResponseFormat: volcengine.String(model.GenerateImagesResponseFormatURL),
		Watermark:      volcengine.Bool(false),
	}

	resp, err := g.client.GenerateImages(ctx, genReq)
	if err != nil {
		// SDK and transport errors are usually temporary upstream
		// conditions; assume transient and let the retry policy decide.
		return nil, fmt.Errorf("%w: ark api call: %v", generation.ErrTransientFailure, err)
	}

	if resp.Error != nil {
		return nil, classifyResponseError(fmt.Sprint(resp.Error.Code), fmt.Sprint(resp.Error.Message))
	}

	if len(resp.Data) == 0 {
		return nil, fmt.Errorf("%w: no image data in response", generation.ErrInvalidResponse)
	}

	img := resp.Data[0]
	if img.Url == nil || *img.Url == "" {
		return nil, fmt.Errorf("%w: image entry missing url", generation.ErrInvalidResponse)
	}

	return &generation.Result{Locator: *img.Url}, nil
}

// Ping reports whether the Ark endpoint is reachable. Any HTTP response
// counts as reachable; only transport failures are errors. The images API
// bills per generation, so the probe never submits a prompt.
func (g *Generator) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, g.baseURL, nil)
	if err != nil {
		return fmt.Errorf("building probe request: %w", err)
	}

	resp, err := g.probe.Do(req)
	if err != nil {
		return fmt.Errorf("ark endpoint unreachable: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	return nil
}

// buildPrompt folds the optional style tag into the prompt text, since the
// images API takes a single prompt string.
func buildPrompt(req generation.Request) string {
	if req.Style == "" {
		return req.Prompt
	}
	return fmt.Sprintf("%s, style: %s", req.Prompt, req.Style)
}

// classifyResponseError maps an error object embedded in an Ark response to
// the generation error taxonomy. Rate limits and server-side conditions are
// retryable; content-policy rejections and everything else are permanent.
func classifyResponseError(code, message string) error {
	switch {
	case strings.Contains(code, "RateLimit"),
		strings.Contains(code, "Overloaded"),
		strings.Contains(code, "Internal"),
		strings.Contains(code, "Timeout"):
		return fmt.Errorf("%w: ark error %s: %s", generation.ErrTransientFailure, code, message)
	case strings.Contains(code, "Sensitive"),
		strings.Contains(code, "ContentFilter"):
		return fmt.Errorf("%w: ark rejected prompt (%s): %s", generation.ErrContentRejected, code, message)
	default:
		return fmt.Errorf("%w: ark error %s: %s", generation.ErrInvalidResponse, code, message)
	}
}
