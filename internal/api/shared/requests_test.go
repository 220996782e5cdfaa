package shared

import (
	"bytes"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDecodeJSON(t *testing.T) {
	tests := []struct {
		name        string
		requestBody string
		target      interface{}
		wantErr     bool
		errContains string
	}{
		{
			name:        "valid json",
			requestBody: `{"prompt": "a red bicycle", "width": 512}`,
			target: &struct {
				Prompt string `json:"prompt"`
				Width  int    `json:"width"`
			}{},
			wantErr: false,
		},
		{
			name:        "invalid json",
			requestBody: `{"prompt": "a red bicycle",}`, // trailing comma
			target:      &struct{}{},
			wantErr:     true,
			errContains: "invalid character",
		},
		{
			name:        "empty body",
			requestBody: "",
			target:      &struct{}{},
			wantErr:     true,
			errContains: "EOF",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(
				http.MethodPost,
				"/test",
				bytes.NewBufferString(tc.requestBody),
			)

			err := DecodeJSON(req, tc.target)

			if tc.wantErr {
				assert.Error(t, err)
				assert.Contains(t, err.Error(), tc.errContains)
			} else {
				assert.NoError(t, err)

				data := tc.target.(*struct {
					Prompt string `json:"prompt"`
					Width  int    `json:"width"`
				})
				assert.Equal(t, "a red bicycle", data.Prompt)
				assert.Equal(t, 512, data.Width)
			}
		})
	}
}

// errorReader is a request body that fails on read.
type errorReader struct{}

func (er errorReader) Read(p []byte) (n int, err error) {
	return 0, io.ErrUnexpectedEOF
}

func TestDecodeJSONWithReadError(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/test", errorReader{})

	var target struct{}
	err := DecodeJSON(req, &target)

	assert.Error(t, err)
	assert.Contains(t, err.Error(), "unexpected EOF")
}

func TestValidateSingleton(t *testing.T) {
	type taggedRequest struct {
		Prompt string `validate:"required"`
		Width  int    `validate:"omitempty,gte=1"`
	}

	assert.NoError(t, Validate.Struct(taggedRequest{Prompt: "a red bicycle"}))
	assert.Error(t, Validate.Struct(taggedRequest{}), "missing required field should fail")
	assert.Error(t, Validate.Struct(taggedRequest{Prompt: "ok", Width: -1}))
}
