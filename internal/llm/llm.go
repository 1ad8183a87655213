// Package llm defines the model boundary: a single blocking text-completion
// call. Cross-cutting concerns (transport retries, logging) are layered on via
// Middleware decorators rather than baked into clients.
package llm

import (
	"context"
	"errors"
)

var ErrEmptyResponse = errors.New("empty response from model")

// Client is the opaque text-completion boundary. One formatted prompt in,
// one text response out; the response is expected to contain a JSON object,
// optionally fenced. No streaming, no multi-turn state.
type Client interface {
	Name() string
	Complete(ctx context.Context, prompt string) (string, error)
	Close() error
}

// PermanentError indicates a failure that will not resolve with retries
// (bad credentials, invalid request). Transport retry middleware gives up
// immediately on it.
type PermanentError struct {
	Err error
}

func (e *PermanentError) Error() string { return e.Err.Error() }
func (e *PermanentError) Unwrap() error { return e.Err }

func NewPermanentError(err error) error {
	return &PermanentError{Err: err}
}
