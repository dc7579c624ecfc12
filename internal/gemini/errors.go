package gemini

import "errors"

var (
	// ErrEmptyRequest indicates no fragment survived request assembly.
	// Callers pre-validate input, so reaching this is a defect upstream.
	ErrEmptyRequest = errors.New("request has no content")

	// ErrTimeout indicates the outbound call exceeded its deadline and was cancelled.
	ErrTimeout = errors.New("request timed out")

	// ErrMalformedResponse indicates a success response missing the expected candidate text.
	ErrMalformedResponse = errors.New("malformed response from API")
)

// APIError represents a non-success response from the remote endpoint
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return "API request failed"
}
