package generation

import "errors"

// Common errors returned by the generation package
var (
	// ErrGenerationFailed is the terminal error raised when the retry budget
	// for transient failures is exhausted. Its message names the attempt
	// count so a task's failure reason distinguishes retry exhaustion from a
	// non-retryable rejection.
	ErrGenerationFailed = errors.New("image generation failed")

	// ErrInvalidResponse is returned when the provider response cannot be
	// parsed or yields no usable image locator. Never retried.
	ErrInvalidResponse = errors.New("invalid response from image generator")

	// ErrContentRejected is returned when the provider refuses the prompt,
	// e.g. because of safety filters. Never retried.
	ErrContentRejected = errors.New("prompt rejected by image generator")

	// ErrTransientFailure marks temporary errors (timeouts, 5xx-class
	// responses) that might resolve on retry.
	ErrTransientFailure = errors.New("transient error during image generation")

	// ErrInvalidConfig is returned when the generator configuration is invalid
	ErrInvalidConfig = errors.New("invalid generator configuration")
)

// IsTransient reports whether the error is worth retrying. Anything not
// explicitly marked transient is treated as permanent.
func IsTransient(err error) bool {
	return errors.Is(err, ErrTransientFailure)
}
