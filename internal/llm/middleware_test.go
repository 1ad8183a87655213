package llm

import (
	"context"
	"errors"
	"log"
	"strings"
	"testing"
	"time"
)

func TestRetrySucceedsAfterTransient(t *testing.T) {
	fake := NewFakeClient("bad", "ok").Fail(errors.New("transient"), nil)
	cli := Wrap(fake, Retry(3, time.Millisecond))

	resp, err := cli.Complete(context.Background(), "p")
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if resp != "ok" {
		t.Fatalf("resp=%q", resp)
	}
	if fake.Calls() != 2 {
		t.Fatalf("calls=%d want 2", fake.Calls())
	}
}

func TestRetryStopsOnPermanentError(t *testing.T) {
	fake := NewFakeClient("never").Fail(NewPermanentError(errors.New("bad key")))
	cli := Wrap(fake, Retry(4, time.Millisecond))

	_, err := cli.Complete(context.Background(), "p")
	var pErr *PermanentError
	if !errors.As(err, &pErr) {
		t.Fatalf("err=%v want permanent", err)
	}
	if fake.Calls() != 1 {
		t.Fatalf("calls=%d want 1", fake.Calls())
	}
}

func TestRetryExhaustsBudget(t *testing.T) {
	boom := errors.New("boom")
	fake := NewFakeClient("x").Fail(boom, boom, boom)
	cli := Wrap(fake, Retry(3, time.Millisecond))

	_, err := cli.Complete(context.Background(), "p")
	if !errors.Is(err, boom) {
		t.Fatalf("err=%v want boom", err)
	}
	if fake.Calls() != 3 {
		t.Fatalf("calls=%d want 3", fake.Calls())
	}
}

func TestWithLoggingPassesThrough(t *testing.T) {
	var sb strings.Builder
	cli := Wrap(NewFakeClient(`{"a":1}`), WithLogging(log.New(&sb, "", 0)))

	resp, err := cli.Complete(context.Background(), "hello")
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if resp != `{"a":1}` {
		t.Fatalf("resp=%q", resp)
	}
	if !strings.Contains(sb.String(), "LLM request") {
		t.Fatalf("log=%q", sb.String())
	}
}

func TestFakeClientRepeatsLastResponse(t *testing.T) {
	fake := NewFakeClient("one", "two")
	ctx := context.Background()
	for _, want := range []string{"one", "two", "two"} {
		got, err := fake.Complete(ctx, "p")
		if err != nil {
			t.Fatalf("Complete: %v", err)
		}
		if got != want {
			t.Fatalf("got=%q want=%q", got, want)
		}
	}
}
