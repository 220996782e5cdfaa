package gemini

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"

	"google.golang.org/genai"

	"github.com/phrazzld/pictor-api/internal/config"
	"github.com/phrazzld/pictor-api/internal/generation"
	"github.com/phrazzld/pictor-api/internal/platform/logger"
)

// Generator implements the generation.Generator interface using Google's
// Gemini API to generate images from prompt text.
type Generator struct {
	// logger is used for structured logging
	logger *slog.Logger

	// config contains provider-specific configuration
	config config.GeneratorConfig

	// policy drives retry behavior for transient provider failures
	policy generation.RetryPolicy

	// client is the Gemini API client for making requests
	client *genai.Client

	// model is the name of the Gemini model to use
	model string
}

// NewGenerator creates a Gemini-backed Generator with the provided dependencies.
//
// Parameters:
//   - ctx: Context for the operation, which can be used for cancellation
//   - logger: A structured logger for operation logging
//   - cfg: Generator configuration containing API key, model name, and timeouts
//   - policy: Retry policy applied to transient provider failures
//
// Returns:
//   - A properly initialized Generator or an error if initialization fails
func NewGenerator(
	ctx context.Context,
	logger *slog.Logger,
	cfg config.GeneratorConfig,
	policy generation.RetryPolicy,
) (*Generator, error) {
	if logger == nil {
		return nil, errors.New("logger cannot be nil")
	}

	if cfg.APIKey == "" {
		return nil, fmt.Errorf("%w: gemini API key cannot be empty", generation.ErrInvalidConfig)
	}

	if cfg.Model == "" {
		return nil, fmt.Errorf("%w: model name cannot be empty", generation.ErrInvalidConfig)
	}

	clientConfig := &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	}

	client, err := genai.NewClient(ctx, clientConfig)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to create Gemini client: %v",
			generation.ErrInvalidConfig, err)
	}

	return &Generator{
		logger: logger.With(slog.String("component", "gemini_generator")),
		config: cfg,
		policy: policy,
		client: client,
		model:  cfg.Model,
	}, nil
}

// Ensure Generator satisfies the generation interfaces.
var (
	_ generation.Generator     = (*Generator)(nil)
	_ generation.HealthChecker = (*Generator)(nil)
)

// Generate produces one image for the request and returns it as a data: URI
// locator. Transient API failures are retried under the generator's policy.
func (g *Generator) Generate(ctx context.Context, req generation.Request) (*generation.Result, error) {
	log := logger.FromContextOrDefault(ctx, g.logger)

	log.DebugContext(ctx, "requesting image generation",
		"model", g.model,
		"width", req.Width,
		"height", req.Height,
		"prompt_length", len(req.Prompt))

	return generation.Retry(ctx, log, g.policy, func(ctx context.Context) (*generation.Result, error) {
		return g.generateOnce(ctx, req)
	})
}

// generateOnce performs a single GenerateContent call under the per-attempt
// timeout and parses the first inline image out of the response.
func (g *Generator) generateOnce(ctx context.Context, req generation.Request) (*generation.Result, error) {
	ctx, cancel := context.WithTimeout(ctx, g.config.RequestTimeout())
	defer cancel()

	parts := []*genai.Part{
		genai.NewPartFromText(buildPrompt(req)),
	}
	contents := []*genai.Content{
		genai.NewContentFromParts(parts, genai.RoleUser),
	}

	genConfig := &genai.GenerateContentConfig{
		ResponseModalities: []string{"TEXT", "IMAGE"},
	}

	resp, err := g.client.Models.GenerateContent(ctx, g.model, contents, genConfig)
	if err != nil {
		// API call errors are usually temporary upstream conditions;
		// assume transient and let the retry policy decide.
		return nil, fmt.Errorf("%w: gemini api call: %v", generation.ErrTransientFailure, err)
	}

	return parseResponse(resp)
}

// Ping reports whether the generator is usable. Gemini offers no free
// reachability endpoint, so this is a configuration-level probe.
func (g *Generator) Ping(ctx context.Context) error {
	if g.client == nil {
		return fmt.Errorf("%w: gemini client not initialized", generation.ErrInvalidConfig)
	}
	return ctx.Err()
}

// buildPrompt turns the request into instruction text. Gemini has no
// dedicated size or style parameters on the image path, so both are folded
// into the prompt.
func buildPrompt(req generation.Request) string {
	prompt := fmt.Sprintf("Generate an image, %dx%d pixels: %s", req.Width, req.Height, req.Prompt)
	if req.Style != "" {
		prompt = fmt.Sprintf("%s (style: %s)", prompt, req.Style)
	}
	return prompt
}

// parseResponse extracts the first inline image from a GenerateContent
// response and encodes it as a data: URI. Blocked prompts map to
// ErrContentRejected; responses without an image map to ErrInvalidResponse.
func parseResponse(resp *genai.GenerateContentResponse) (*generation.Result, error) {
	if resp == nil {
		return nil, fmt.Errorf("%w: nil response", generation.ErrInvalidResponse)
	}

	if len(resp.Candidates) == 0 {
		if resp.PromptFeedback != nil {
			return nil, fmt.Errorf("%w: prompt blocked (%v)",
				generation.ErrContentRejected, resp.PromptFeedback.BlockReason)
		}
		return nil, fmt.Errorf("%w: no content generated", generation.ErrInvalidResponse)
	}

	candidate := resp.Candidates[0]
	if candidate.FinishReason == genai.FinishReasonSafety {
		return nil, fmt.Errorf("%w: content blocked by safety filters", generation.ErrContentRejected)
	}

	if candidate.Content == nil || len(candidate.Content.Parts) == 0 {
		return nil, fmt.Errorf("%w: empty content in response", generation.ErrInvalidResponse)
	}

	for _, part := range candidate.Content.Parts {
		if part.InlineData != nil && len(part.InlineData.Data) > 0 {
			return &generation.Result{Locator: encodeDataURI(part.InlineData)}, nil
		}
	}

	return nil, fmt.Errorf("%w: response contains no image data", generation.ErrInvalidResponse)
}

// encodeDataURI packs an inline blob into a data: URI locator.
func encodeDataURI(blob *genai.Blob) string {
	mimeType := blob.MIMEType
	if mimeType == "" {
		mimeType = "image/png"
	}
	return fmt.Sprintf("data:%s;base64,%s", mimeType, base64.StdEncoding.EncodeToString(blob.Data))
}
