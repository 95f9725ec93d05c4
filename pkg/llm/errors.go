package llm

import (
	"errors"
	"fmt"
)

var (
	// ErrRateLimited is returned when the user exhausted the request window.
	ErrRateLimited = errors.New("llm rate limit exceeded")
	// ErrBudgetExceeded is returned when the bot spent its daily token budget.
	ErrBudgetExceeded = errors.New("llm daily token budget exceeded")
	// ErrUnsafeResponse is returned when a response matches a harmful pattern.
	ErrUnsafeResponse = errors.New("llm response failed safety check")
	// ErrPromptRejected is the sentinel PromptRejectedError unwraps to.
	ErrPromptRejected = errors.New("prompt rejected by safety filter")
	// ErrInvalidJSON is returned when no attempt produced a schema-valid document.
	ErrInvalidJSON = errors.New("llm did not produce valid json")
)

// PromptRejectedError reports why a prompt was refused.
type PromptRejectedError struct {
	Pattern string
	Score   float64
}

func (e *PromptRejectedError) Error() string {
	if e.Pattern != "" {
		return fmt.Sprintf("%s: matched %q (score %.2f)", ErrPromptRejected, e.Pattern, e.Score)
	}
	return fmt.Sprintf("%s: risk score %.2f", ErrPromptRejected, e.Score)
}

func (e *PromptRejectedError) Unwrap() error { return ErrPromptRejected }

// UpstreamError aggregates the failed attempts of one completion.
type UpstreamError struct {
	Attempts int
	Last     error
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("llm request failed after %d attempts: %v", e.Attempts, e.Last)
}

func (e *UpstreamError) Unwrap() error { return e.Last }

// StatusError is a non-2xx answer of the backend.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("llm backend returned %d: %s", e.Code, e.Body)
}
