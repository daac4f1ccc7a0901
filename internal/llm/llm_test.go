package llm

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestInferSource(t *testing.T) {
	cases := []struct {
		model string
		want  Source
	}{
		{"gpt-4", SourceOpenAI},
		{"ft:gpt-3.5-turbo:custom", SourceOpenAI},
		{"claude-2.1", SourceAnthropic},
		{"gemini-pro", SourceGoogle},
		{"mistralai/Mixtral-8x7B-Instruct-v0.1", SourceTogether},
	}
	for _, c := range cases {
		got, err := InferSource(c.model)
		if err != nil || got != c.want {
			t.Errorf("InferSource(%q) = %v, %v; want %v", c.model, got, err, c.want)
		}
	}
}

func TestInferSourceUnknownModel(t *testing.T) {
	_, err := InferSource("made-up-model")
	var ume *UnknownModelError
	if !errors.As(err, &ume) {
		t.Fatalf("expected UnknownModelError, got %v", err)
	}
	if ume.Model != "made-up-model" {
		t.Fatalf("error carries wrong model: %q", ume.Model)
	}
}

func TestTokenLimit(t *testing.T) {
	if TokenLimit("gpt-4-1106-preview") != 128000 {
		t.Fatalf("wrong limit for gpt-4-1106-preview")
	}
	if TokenLimit("unknown") != defaultTokenLimit {
		t.Fatalf("expected fallback limit")
	}
}

func TestRouterFailsFastOnUnknownModel(t *testing.T) {
	r := NewRouter(Config{OpenAIKey: "test"}, nil, nil)
	_, err := r.Complete(context.Background(), Request{Model: "bogus", Prompt: "p"})
	var ume *UnknownModelError
	if !errors.As(err, &ume) {
		t.Fatalf("expected UnknownModelError, got %v", err)
	}
	_, err = r.CompleteMany(context.Background(), []Request{
		{Model: "gpt-4", Prompt: "a"},
		{Model: "bogus", Prompt: "b"},
	})
	if !errors.As(err, &ume) {
		t.Fatalf("expected UnknownModelError from batch, got %v", err)
	}
}

func TestRetryStopsAfterBudget(t *testing.T) {
	p := RetryPolicy{MaxRetries: 2, InitialBackoff: time.Millisecond, MaxBackoff: time.Millisecond, BackoffFactor: 1.0}
	calls := 0
	err := Retry(context.Background(), p, func() error {
		calls++
		return errors.New("transient")
	})
	if err == nil {
		t.Fatalf("expected final error")
	}
	if calls != 3 {
		t.Fatalf("expected 3 attempts, got %d", calls)
	}
}

func TestRetrySucceedsMidway(t *testing.T) {
	p := RetryPolicy{MaxRetries: 3, InitialBackoff: time.Millisecond, MaxBackoff: time.Millisecond, BackoffFactor: 1.0}
	calls := 0
	err := Retry(context.Background(), p, func() error {
		calls++
		if calls < 2 {
			return errors.New("transient")
		}
		return nil
	})
	if err != nil || calls != 2 {
		t.Fatalf("err=%v calls=%d", err, calls)
	}
}

func TestRetryHonorsContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := Retry(ctx, DefaultRetryPolicy(), func() error { return errors.New("x") })
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context error, got %v", err)
	}
}
