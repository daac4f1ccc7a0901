// Package rank shrinks and orders the candidate article pool: an optional
// embedding gate for large pools, then model-rated or similarity-based
// relevance ranking with threshold filtering.
package rank

import (
	"context"
	"log"
	"math"

	"github.com/mohammad-safakhou/foresight/internal/llm"
	"github.com/mohammad-safakhou/foresight/internal/models"
)

// PreFilterConfig tunes the embedding gate. The threshold tightens for
// very large pools to bound downstream ranking cost.
type PreFilterConfig struct {
	Enabled         bool
	MinPool         int
	Threshold       float64
	StrictPool      int
	StrictThreshold float64
	MaxChars        int
}

func DefaultPreFilterConfig() PreFilterConfig {
	return PreFilterConfig{
		Enabled:         true,
		MinPool:         25,
		Threshold:       0.32,
		StrictPool:      100,
		StrictThreshold: 0.36,
		MaxChars:        18000,
	}
}

// PreFilter keeps articles whose embedding is close enough to the
// question embedding. It is a lossy, best-effort optimization: pools
// under MinPool and any embedding failure pass the input through
// unchanged.
func PreFilter(ctx context.Context, embedder llm.Embedder, q models.Question, articles []models.Article, cfg PreFilterConfig, logger *log.Logger) []models.Article {
	if logger == nil {
		logger = log.New(log.Writer(), "[PREFILTER] ", log.LstdFlags)
	}
	if !cfg.Enabled || len(articles) < cfg.MinPool {
		return articles
	}

	threshold := cfg.Threshold
	if len(articles) >= cfg.StrictPool {
		threshold = cfg.StrictThreshold
	}

	texts := make([]string, 0, len(articles)+1)
	texts = append(texts, "Question: "+q.Title+"\n\nBackground:"+q.Background)
	for _, a := range articles {
		t := a.Text
		if len(t) > cfg.MaxChars {
			t = t[:cfg.MaxChars]
		}
		texts = append(texts, t)
	}

	vecs, err := embedder.Embed(ctx, texts)
	if err != nil || len(vecs) != len(texts) {
		logger.Printf("embedding gate skipped: %v", err)
		return articles
	}

	questionVec := vecs[0]
	kept := make([]models.Article, 0, len(articles))
	for i, a := range articles {
		if Cosine(questionVec, vecs[i+1]) > threshold {
			kept = append(kept, a)
		}
	}
	logger.Printf("embedding gate kept %d of %d articles (threshold %.2f)", len(kept), len(articles), threshold)
	return kept
}

// Cosine computes cosine similarity between two vectors, in [-1,1].
// Mismatched or zero-length vectors yield 0.
func Cosine(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
