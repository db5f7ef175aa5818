package gemini

import "errors"

// Common errors returned by the Gemini client.
var (
	// ErrInvalidConfig is returned when the client configuration is
	// incomplete or invalid.
	ErrInvalidConfig = errors.New("invalid gemini configuration")

	// ErrEmptyInput is returned when generation is requested for empty
	// input text.
	ErrEmptyInput = errors.New("input text is empty")

	// ErrInvalidResponse is returned when the model returns no usable
	// content.
	ErrInvalidResponse = errors.New("invalid gemini response")

	// ErrContentBlocked is returned when the model refuses the request on
	// safety grounds. Not retryable.
	ErrContentBlocked = errors.New("content blocked by safety filters")
)
