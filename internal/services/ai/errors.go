package ai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
)

var (
	ErrRateLimited   = errors.New("rate limit exceeded")
	ErrAuth          = errors.New("API key rejected")
	ErrUnavailable   = errors.New("completion service unreachable")
	ErrEmptyResponse = errors.New("no response from model")
)

// StatusError is a non-2xx answer from a completion service.
type StatusError struct {
	Status int
	Body   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("request failed with status %d: %s", e.Status, e.Body)
}

// Unwrap maps well-known statuses onto the package sentinels.
func (e *StatusError) Unwrap() error {
	switch {
	case e.Status == http.StatusTooManyRequests:
		return ErrRateLimited
	case e.Status == http.StatusUnauthorized || e.Status == http.StatusForbidden:
		return ErrAuth
	case e.Status >= 500:
		return ErrUnavailable
	}
	return nil
}

// retryable reports whether another attempt could succeed. Only transport
// failures and 5xx answers are worth repeating.
func retryable(err error) bool {
	var se *StatusError
	if errors.As(err, &se) {
		return se.Status >= 500
	}

	var (
		syntaxErr *json.SyntaxError
		typeErr   *json.UnmarshalTypeError
	)
	switch {
	case errors.Is(err, ErrAuth), errors.Is(err, ErrRateLimited), errors.Is(err, ErrEmptyResponse):
		return false
	case errors.Is(err, context.Canceled):
		return false
	case errors.As(err, &syntaxErr), errors.As(err, &typeErr):
		return false
	}
	return true
}
