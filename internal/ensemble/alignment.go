package ensemble

import (
	"context"
	"log"
	"sync"

	"github.com/mohammad-safakhou/foresight/internal/llm"
	"github.com/mohammad-safakhou/foresight/internal/models"
	"github.com/mohammad-safakhou/foresight/internal/parse"
	"github.com/mohammad-safakhou/foresight/internal/prompts"
)

// Aligner rates how faithfully each base reasoning tracks the retrieved
// evidence, on the same 1-6 scale the relevance ranker uses.
type Aligner struct {
	llm    llm.CompletionClient
	logger *log.Logger
}

func NewAligner(client llm.CompletionClient, logger *log.Logger) *Aligner {
	if logger == nil {
		logger = log.New(log.Writer(), "[ALIGN] ", log.LstdFlags)
	}
	return &Aligner{llm: client, logger: logger}
}

// Score rates each reasoning independently. Failed ratings are logged
// and omitted, so the returned slice can be shorter than the input but
// preserves input order among the survivors.
func (a *Aligner) Score(ctx context.Context, q models.Question, digest string, reasonings []models.BaseReasoning, model string, temperature float64) []float64 {
	tpl, err := prompts.Lookup("alignment-0")
	if err != nil {
		a.logger.Printf("alignment template unavailable: %v", err)
		return nil
	}

	type rated struct {
		score float64
		ok    bool
	}
	results := make([]rated, len(reasonings))

	var wg sync.WaitGroup
	for i, br := range reasonings {
		wg.Add(1)
		go func(i int, br models.BaseReasoning) {
			defer wg.Done()
			prompt, err := tpl.Render(map[string]string{
				"question":            q.Title,
				"background":          q.Background,
				"resolution_criteria": q.ResolutionCriteria,
				"date_begin":          q.DateBegin.Format("2006-01-02"),
				"date_end":            q.DateEnd.Format("2006-01-02"),
				"retrieved_info":      digest,
				"reasoning":           br.Output,
			})
			if err != nil {
				a.logger.Printf("alignment prompt for reasoning %d: %v", i, err)
				return
			}
			output, err := a.llm.Complete(ctx, llm.Request{
				Model:       model,
				Prompt:      prompt,
				MaxTokens:   500,
				Temperature: temperature,
			})
			if err != nil {
				a.logger.Printf("alignment rating for reasoning %d: %v", i, err)
				return
			}
			results[i] = rated{score: parse.ExtractRating(output), ok: true}
		}(i, br)
	}
	wg.Wait()

	var scores []float64
	for _, r := range results {
		if r.ok {
			scores = append(scores, r.score)
		}
	}
	return scores
}
