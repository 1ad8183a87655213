package llm

import (
	"context"
	"sync"
)

// FakeClient replays scripted responses for offline runs and tests. Each
// Complete call consumes the next response (or error); the last entry
// repeats once the script is exhausted.
type FakeClient struct {
	mu        sync.Mutex
	responses []string
	errs      []error
	calls     int
	prompts   []string
}

var _ Client = (*FakeClient)(nil)

// NewFakeClient scripts the given responses in order.
func NewFakeClient(responses ...string) *FakeClient {
	return &FakeClient{responses: responses}
}

// Fail scripts an error for the call at the same position a response would
// occupy; a non-nil error wins over the response.
func (f *FakeClient) Fail(errs ...error) *FakeClient {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.errs = errs
	return f
}

func (f *FakeClient) Name() string { return "FakeLLM" }
func (f *FakeClient) Close() error { return nil }

func (f *FakeClient) Complete(ctx context.Context, prompt string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	i := f.calls
	f.calls++
	f.prompts = append(f.prompts, prompt)

	if i < len(f.errs) && f.errs[i] != nil {
		return "", f.errs[i]
	}
	if len(f.responses) == 0 {
		return "{}", nil
	}
	if i >= len(f.responses) {
		i = len(f.responses) - 1
	}
	return f.responses[i], nil
}

// Calls reports how many times Complete was invoked.
func (f *FakeClient) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// Prompt returns the i-th prompt seen, or "" when out of range.
func (f *FakeClient) Prompt(i int) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if i < 0 || i >= len(f.prompts) {
		return ""
	}
	return f.prompts[i]
}
