// Package summarize compresses ranked articles into a token-bounded
// evidence digest via recursive chunked summarization.
package summarize

import (
	"context"
	"fmt"
	"log"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/mohammad-safakhou/foresight/internal/llm"
	"github.com/mohammad-safakhou/foresight/internal/models"
	"github.com/mohammad-safakhou/foresight/internal/parse"
	"github.com/mohammad-safakhou/foresight/internal/prompts"
)

const (
	// chunkSafetyMargin keeps the prompt scaffolding under the model limit
	// when a chunk is summarized.
	chunkSafetyMargin = 1000
	// maxDepth guards against a provider whose summaries fail to shrink
	// the text; recursion is cut off and the text truncated instead of
	// looping.
	maxDepth = 8
)

// Config parameterizes summarization. MaxArticles caps how many ranked
// articles are summarized at all; the rest are dropped.
type Config struct {
	Model         string
	Temperature   float64
	Template      prompts.Template
	MaxArticles   int
	MaxConcurrent int
}

// Summarizer rewrites article summaries in place on copies and renders
// the final digest.
type Summarizer struct {
	llm    llm.CompletionClient
	logger *log.Logger
}

func NewSummarizer(client llm.CompletionClient, logger *log.Logger) *Summarizer {
	if logger == nil {
		logger = log.New(log.Writer(), "[SUMMARIZER] ", log.LstdFlags)
	}
	return &Summarizer{llm: client, logger: logger}
}

// SummarizeArticles summarizes every article concurrently, preserving
// order, and returns updated copies. Articles beyond cfg.MaxArticles are
// dropped. A failed summarization keeps the article's previous summary.
func (s *Summarizer) SummarizeArticles(ctx context.Context, q models.Question, articles []models.Article, cfg Config) ([]models.Article, error) {
	if cfg.MaxArticles > 0 && len(articles) > cfg.MaxArticles {
		articles = articles[:cfg.MaxArticles]
	}
	out := make([]models.Article, len(articles))
	copy(out, articles)

	limit := cfg.MaxConcurrent
	if limit <= 0 {
		limit = 8
	}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)
	for i := range out {
		g.Go(func() error {
			summary, err := s.Summarize(gctx, q, out[i].Text, cfg)
			if err != nil {
				s.logger.Printf("summarization of %q failed, keeping raw text: %v", out[i].Title, err)
				return nil
			}
			out[i].Summary = summary
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// Summarize reduces text to fit the summarization model's token budget.
// Within-budget text is summarized with one call; oversized text is split
// into word-aligned chunks under (limit - margin) tokens, each chunk
// summarized recursively, and the joined result re-summarized until it
// fits. Each pass shrinks the text in the steady state, which bounds the
// recursion; maxDepth covers the pathological case where it does not.
func (s *Summarizer) Summarize(ctx context.Context, q models.Question, text string, cfg Config) (string, error) {
	return s.summarize(ctx, q, text, cfg, 0)
}

func (s *Summarizer) summarize(ctx context.Context, q models.Question, text string, cfg Config, depth int) (string, error) {
	limit := llm.TokenLimit(cfg.Model)

	if depth >= maxDepth {
		s.logger.Printf("recursion depth %d reached without convergence, truncating", depth)
		return parse.TruncateTokens(text, cfg.Model, limit-chunkSafetyMargin), nil
	}

	if parse.CountTokens(text, cfg.Model)+chunkSafetyMargin <= limit {
		return s.summarizeOnce(ctx, q, text, cfg)
	}

	chunks := SplitIntoChunks(text, limit-chunkSafetyMargin, cfg.Model)
	summaries := make([]string, len(chunks))
	g, gctx := errgroup.WithContext(ctx)
	for i, chunk := range chunks {
		g.Go(func() error {
			sum, err := s.summarize(gctx, q, chunk, cfg, depth+1)
			if err != nil {
				return err
			}
			summaries[i] = sum
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return "", err
	}
	return s.summarize(ctx, q, strings.Join(summaries, " "), cfg, depth+1)
}

func (s *Summarizer) summarizeOnce(ctx context.Context, q models.Question, text string, cfg Config) (string, error) {
	prompt, err := cfg.Template.Render(map[string]string{
		"question":   q.Title,
		"background": q.Background,
		"article":    text,
	})
	if err != nil {
		return "", err
	}
	return s.llm.Complete(ctx, llm.Request{
		Model:       cfg.Model,
		Prompt:      prompt,
		MaxTokens:   1000,
		Temperature: cfg.Temperature,
	})
}

// SplitIntoChunks splits text into word-aligned pieces each under
// tokenLimit tokens for the given model. Words are never broken.
func SplitIntoChunks(text string, tokenLimit int, model string) []string {
	words := strings.Fields(text)
	var chunks []string
	var current strings.Builder
	for _, w := range words {
		candidate := w
		if current.Len() > 0 {
			candidate = current.String() + " " + w
		}
		if parse.CountTokens(candidate, model) > tokenLimit && current.Len() > 0 {
			chunks = append(chunks, current.String())
			current.Reset()
			current.WriteString(w)
			continue
		}
		if current.Len() > 0 {
			current.WriteByte(' ')
		}
		current.WriteString(w)
	}
	if current.Len() > 0 {
		chunks = append(chunks, current.String())
	}
	return chunks
}

// Digest renders the ordered evidence block handed to the forecasters.
func Digest(articles []models.Article) string {
	if len(articles) == 0 {
		return "---\nNo articles were retrieved for this question.\n----"
	}
	var b strings.Builder
	b.WriteString("---\nARTICLES\n")
	for i, a := range articles {
		date := "unknown date"
		if !a.PublishDate.IsZero() {
			date = a.PublishDate.Format("2006-01-02")
		}
		fmt.Fprintf(&b, "[%d] %s (published on %s)\nSummary: %s\n", i+1, a.Title, date, a.Summary)
	}
	b.WriteString("----")
	return b.String()
}
