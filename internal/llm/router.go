package llm

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/mohammad-safakhou/foresight/internal/telemetry"
)

// Request is one completion call.
type Request struct {
	Model       string
	Prompt      string
	System      string
	MaxTokens   int
	Temperature float64
}

// CompletionClient is the completion capability consumed by the pipeline
// stages.
type CompletionClient interface {
	Complete(ctx context.Context, req Request) (string, error)
	CompleteMany(ctx context.Context, reqs []Request) ([]string, error)
}

// Embedder is the batched, order-preserving embedding capability.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// Config carries provider credentials and the shared retry policy.
type Config struct {
	OpenAIKey    string
	AnthropicKey string
	TogetherKey  string
	GoogleKey    string
	Timeout      time.Duration
	Retry        RetryPolicy
	// MaxConcurrent bounds concurrent provider calls in CompleteMany.
	MaxConcurrent int
}

// Router dispatches requests to the provider family owning the model
// name. It implements CompletionClient and Embedder.
type Router struct {
	cfg       Config
	logger    *log.Logger
	telemetry *telemetry.Telemetry

	openai    *openAIClient
	together  *openAIClient
	anthropic *anthropicClient
	google    *googleClient
}

func NewRouter(cfg Config, logger *log.Logger, tele *telemetry.Telemetry) *Router {
	if logger == nil {
		logger = log.New(log.Writer(), "[LLM] ", log.LstdFlags)
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 120 * time.Second
	}
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = 8
	}
	if cfg.Retry.BackoffFactor == 0 {
		cfg.Retry = DefaultRetryPolicy()
	}
	r := &Router{cfg: cfg, logger: logger, telemetry: tele}
	if cfg.OpenAIKey != "" {
		r.openai = newOpenAIClient(cfg.OpenAIKey, "")
	}
	if cfg.TogetherKey != "" {
		r.together = newOpenAIClient(cfg.TogetherKey, togetherBaseURL)
	}
	if cfg.AnthropicKey != "" {
		r.anthropic = newAnthropicClient(cfg.AnthropicKey)
	}
	if cfg.GoogleKey != "" {
		r.google = newGoogleClient(cfg.GoogleKey, cfg.Timeout)
	}
	return r
}

// Complete routes one completion request, retrying transient failures.
func (r *Router) Complete(ctx context.Context, req Request) (string, error) {
	source, err := InferSource(req.Model)
	if err != nil {
		return "", err
	}

	call, err := r.callFor(source)
	if err != nil {
		return "", err
	}

	var out string
	start := time.Now()
	err = Retry(ctx, r.cfg.Retry, func() error {
		cctx, cancel := context.WithTimeout(ctx, r.cfg.Timeout)
		defer cancel()
		var cerr error
		out, cerr = call(cctx, req)
		if cerr != nil {
			r.logger.Printf("completion failed (model=%s source=%s): %v", req.Model, source, cerr)
		}
		return cerr
	})
	r.telemetry.RecordLLMRequest(string(source), req.Model, time.Since(start), err)
	if err != nil {
		return "", fmt.Errorf("complete with %s: %w", req.Model, err)
	}
	return strings.TrimSpace(out), nil
}

// CompleteMany issues all requests concurrently and returns responses in
// input order. The first hard failure cancels the remaining calls.
func (r *Router) CompleteMany(ctx context.Context, reqs []Request) ([]string, error) {
	// Fail fast on unknown models before spending any quota.
	for _, req := range reqs {
		if _, err := InferSource(req.Model); err != nil {
			return nil, err
		}
	}

	out := make([]string, len(reqs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.cfg.MaxConcurrent)
	for i, req := range reqs {
		g.Go(func() error {
			resp, err := r.Complete(gctx, req)
			if err != nil {
				return err
			}
			out[i] = resp
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

func (r *Router) callFor(source Source) (func(context.Context, Request) (string, error), error) {
	switch source {
	case SourceOpenAI:
		if r.openai == nil {
			return nil, fmt.Errorf("openai provider not configured")
		}
		return r.openai.complete, nil
	case SourceTogether:
		if r.together == nil {
			return nil, fmt.Errorf("together provider not configured")
		}
		return r.together.complete, nil
	case SourceAnthropic:
		if r.anthropic == nil {
			return nil, fmt.Errorf("anthropic provider not configured")
		}
		return r.anthropic.complete, nil
	case SourceGoogle:
		if r.google == nil {
			return nil, fmt.Errorf("google provider not configured")
		}
		return r.google.complete, nil
	default:
		return nil, &UnknownModelError{Model: string(source)}
	}
}

// Embed returns one vector per input text, in input order, via the OpenAI
// embeddings API.
func (r *Router) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if r.openai == nil {
		return nil, fmt.Errorf("openai provider not configured for embeddings")
	}
	if len(texts) == 0 {
		return nil, nil
	}

	var vecs [][]float32
	start := time.Now()
	err := Retry(ctx, r.cfg.Retry, func() error {
		cctx, cancel := context.WithTimeout(ctx, r.cfg.Timeout)
		defer cancel()
		var eerr error
		vecs, eerr = r.openai.embed(cctx, texts)
		if eerr != nil {
			r.logger.Printf("embedding failed (%d texts): %v", len(texts), eerr)
		}
		return eerr
	})
	r.telemetry.RecordLLMRequest(string(SourceOpenAI), embeddingModel, time.Since(start), err)
	if err != nil {
		return nil, fmt.Errorf("embed %d texts: %w", len(texts), err)
	}
	return vecs, nil
}
