package gemini

import (
	"context"
	"encoding/base64"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/genai"

	"github.com/phrazzld/pictor-api/internal/config"
	"github.com/phrazzld/pictor-api/internal/generation"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testConfig() config.GeneratorConfig {
	return config.GeneratorConfig{
		Provider:          "gemini",
		APIKey:            "test-api-key",
		Model:             "gemini-2.0-flash-exp",
		TimeoutSeconds:    5,
		MaxRetries:        3,
		RetryDelaySeconds: 1,
	}
}

func testPolicy() generation.RetryPolicy {
	return generation.RetryPolicy{
		MaxAttempts: 3,
		BaseDelay:   time.Millisecond,
		Sleep:       func(context.Context, time.Duration) error { return nil },
	}
}

func TestNewGeneratorValidation(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	_, err := NewGenerator(ctx, nil, testConfig(), testPolicy())
	assert.Error(t, err, "nil logger must be rejected")

	cfg := testConfig()
	cfg.APIKey = ""
	_, err = NewGenerator(ctx, testLogger(), cfg, testPolicy())
	assert.ErrorIs(t, err, generation.ErrInvalidConfig)

	cfg = testConfig()
	cfg.Model = ""
	_, err = NewGenerator(ctx, testLogger(), cfg, testPolicy())
	assert.ErrorIs(t, err, generation.ErrInvalidConfig)
}

func TestNewGeneratorAndPing(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	gen, err := NewGenerator(ctx, testLogger(), testConfig(), testPolicy())
	require.NoError(t, err)
	require.NotNil(t, gen)
	assert.NoError(t, gen.Ping(ctx))

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	assert.Error(t, gen.Ping(cancelled))
}

func TestBuildPrompt(t *testing.T) {
	t.Parallel()

	prompt := buildPrompt(generation.Request{Prompt: "a red bicycle", Width: 512, Height: 512})
	assert.Equal(t, "Generate an image, 512x512 pixels: a red bicycle", prompt)

	styled := buildPrompt(generation.Request{
		Prompt: "a red bicycle",
		Width:  256,
		Height: 1024,
		Style:  "watercolor",
	})
	assert.Equal(t, "Generate an image, 256x1024 pixels: a red bicycle (style: watercolor)", styled)
}

func TestParseResponseInlineImage(t *testing.T) {
	t.Parallel()

	imageBytes := []byte{0x89, 0x50, 0x4e, 0x47}
	resp := &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{
			{
				Content: &genai.Content{
					Parts: []*genai.Part{
						{Text: "here is your image"},
						{InlineData: &genai.Blob{MIMEType: "image/png", Data: imageBytes}},
					},
				},
			},
		},
	}

	result, err := parseResponse(resp)

	require.NoError(t, err)
	require.NotNil(t, result)
	expected := "data:image/png;base64," + base64.StdEncoding.EncodeToString(imageBytes)
	assert.Equal(t, expected, result.Locator)
}

func TestParseResponseDefaultsMimeType(t *testing.T) {
	t.Parallel()

	resp := &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{
			{
				Content: &genai.Content{
					Parts: []*genai.Part{
						{InlineData: &genai.Blob{Data: []byte{0x01}}},
					},
				},
			},
		},
	}

	result, err := parseResponse(resp)

	require.NoError(t, err)
	assert.Contains(t, result.Locator, "data:image/png;base64,")
}

func TestParseResponseFailures(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		resp *genai.GenerateContentResponse
		want error
	}{
		{
			name: "nil response",
			resp: nil,
			want: generation.ErrInvalidResponse,
		},
		{
			name: "no candidates",
			resp: &genai.GenerateContentResponse{},
			want: generation.ErrInvalidResponse,
		},
		{
			name: "safety finish",
			resp: &genai.GenerateContentResponse{
				Candidates: []*genai.Candidate{
					{FinishReason: genai.FinishReasonSafety},
				},
			},
			want: generation.ErrContentRejected,
		},
		{
			name: "nil content",
			resp: &genai.GenerateContentResponse{
				Candidates: []*genai.Candidate{{}},
			},
			want: generation.ErrInvalidResponse,
		},
		{
			name: "text only",
			resp: &genai.GenerateContentResponse{
				Candidates: []*genai.Candidate{
					{
						Content: &genai.Content{
							Parts: []*genai.Part{{Text: "no image here"}},
						},
					},
				},
			},
			want: generation.ErrInvalidResponse,
		},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			result, err := parseResponse(tc.resp)

			require.Error(t, err)
			assert.Nil(t, result)
			assert.ErrorIs(t, err, tc.want)
			assert.NotErrorIs(t, err, generation.ErrTransientFailure,
				"parse failures must never be retried")
		})
	}
}
