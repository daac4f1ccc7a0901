// Package ensemble elicits base forecasts from configured (model, prompt)
// pairs and aggregates them into one prediction under a selectable
// strategy.
package ensemble

import (
	"context"
	"fmt"
	"log"
	"math"
	"sort"
	"strings"

	"github.com/mohammad-safakhou/foresight/internal/llm"
	"github.com/mohammad-safakhou/foresight/internal/models"
	"github.com/mohammad-safakhou/foresight/internal/parse"
	"github.com/mohammad-safakhou/foresight/internal/prompts"
)

// Aggregation strategies. The strategy is configuration-selected, never
// auto-detected.
const (
	AggregateMean         = "mean"
	AggregateWeightedMean = "weighted-mean"
	AggregateVoteOrMedian = "vote-or-median"
	AggregateMeta         = "meta"
)

// Vocabulary is the ordered ten-step answer scale for token answers.
var Vocabulary = []string{
	"No",
	"Extremely Unlikely",
	"Very Unlikely",
	"Unlikely",
	"Slightly Unlikely",
	"Slightly Likely",
	"Likely",
	"Very Likely",
	"Extremely Likely",
	"Yes",
}

// DefaultToken is the middle-of-scale fallback when no vocabulary entry
// can be extracted or an aggregate lands outside the vocabulary.
const DefaultToken = "Slightly Unlikely"

// TokenProbs maps each vocabulary entry to its bucket midpoint.
var TokenProbs = map[string]float64{
	"No":                 0.05,
	"Extremely Unlikely": 0.15,
	"Very Unlikely":      0.25,
	"Unlikely":           0.35,
	"Slightly Unlikely":  0.45,
	"Slightly Likely":    0.55,
	"Likely":             0.65,
	"Very Likely":        0.75,
	"Extremely Likely":   0.85,
	"Yes":                0.95,
}

// Config drives one ensemble pass. BaseTemplates holds one template list
// per base model, index-aligned with BaseModels.
type Config struct {
	BaseModels      []string
	BaseTemplates   [][]prompts.Template
	BaseTemperature float64
	MaxTokens       int

	AnswerType models.AnswerType

	Aggregation string
	// Weights has one entry per reasoning group (per base model); required
	// for weighted-mean only.
	Weights []float64

	MetaModel       string
	MetaTemplate    prompts.Template
	MetaTemperature float64

	AlignmentModel       string
	AlignmentTemperature float64
}

// Validate checks the configuration contract before any provider call is
// issued, so a doomed run costs no quota.
func (c Config) Validate() error {
	if len(c.BaseModels) == 0 {
		return fmt.Errorf("ensemble: no base models configured")
	}
	if len(c.BaseTemplates) != len(c.BaseModels) {
		return fmt.Errorf("ensemble: %d template lists for %d base models", len(c.BaseTemplates), len(c.BaseModels))
	}
	for i, tpls := range c.BaseTemplates {
		if len(tpls) == 0 {
			return fmt.Errorf("ensemble: base model %s has no prompt templates", c.BaseModels[i])
		}
	}
	switch c.Aggregation {
	case AggregateMean, AggregateVoteOrMedian:
	case AggregateWeightedMean:
		if len(c.Weights) != len(c.BaseModels) {
			return fmt.Errorf("ensemble: weighted-mean needs %d weights, got %d", len(c.BaseModels), len(c.Weights))
		}
	case AggregateMeta:
		if c.MetaModel == "" {
			return fmt.Errorf("ensemble: meta aggregation needs a meta model")
		}
	default:
		return fmt.Errorf("ensemble: unknown aggregation strategy %q", c.Aggregation)
	}
	if c.AnswerType == models.AnswerToken &&
		(c.Aggregation == AggregateMean || c.Aggregation == AggregateWeightedMean) {
		return fmt.Errorf("ensemble: token answers aggregate via vote-or-median or meta, not %s", c.Aggregation)
	}
	return nil
}

// Reasoner runs the elicitation fan-out and the aggregation.
type Reasoner struct {
	llm    llm.CompletionClient
	logger *log.Logger
}

func NewReasoner(client llm.CompletionClient, logger *log.Logger) *Reasoner {
	if logger == nil {
		logger = log.New(log.Writer(), "[ENSEMBLE] ", log.LstdFlags)
	}
	return &Reasoner{llm: client, logger: logger}
}

// Elicit issues one completion per (model, template) pair, all
// concurrently, and returns reasonings grouped by model in input order.
func (r *Reasoner) Elicit(ctx context.Context, q models.Question, digest string, cfg Config) ([][]models.BaseReasoning, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	type slot struct{ model, template int }
	var reqs []llm.Request
	var slots []slot
	for mi, model := range cfg.BaseModels {
		for ti, tpl := range cfg.BaseTemplates[mi] {
			prompt, err := renderQuestionPrompt(tpl, q, digest)
			if err != nil {
				return nil, err
			}
			maxTokens := cfg.MaxTokens
			if maxTokens <= 0 {
				maxTokens = 2000
			}
			reqs = append(reqs, llm.Request{
				Model:       model,
				Prompt:      prompt,
				MaxTokens:   maxTokens,
				Temperature: cfg.BaseTemperature,
			})
			slots = append(slots, slot{model: mi, template: ti})
		}
	}

	responses, err := r.llm.CompleteMany(ctx, reqs)
	if err != nil {
		return nil, fmt.Errorf("elicit base reasonings: %w", err)
	}

	grouped := make([][]models.BaseReasoning, len(cfg.BaseModels))
	for mi := range cfg.BaseModels {
		grouped[mi] = make([]models.BaseReasoning, len(cfg.BaseTemplates[mi]))
	}
	for i, resp := range responses {
		s := slots[i]
		br := models.BaseReasoning{
			Model:    cfg.BaseModels[s.model],
			Template: cfg.BaseTemplates[s.model][s.template].ID,
			Prompt:   reqs[i].Prompt,
			Output:   resp,
		}
		br.Probability, br.Token = extractPrediction(resp, cfg.AnswerType)
		grouped[s.model][s.template] = br
	}
	return grouped, nil
}

func renderQuestionPrompt(tpl prompts.Template, q models.Question, digest string) (string, error) {
	return tpl.Render(map[string]string{
		"question":            q.Title,
		"background":          q.Background,
		"resolution_criteria": q.ResolutionCriteria,
		"date_begin":          q.DateBegin.Format("2006-01-02"),
		"date_end":            q.DateEnd.Format("2006-01-02"),
		"retrieved_info":      digest,
	})
}

func extractPrediction(output string, answerType models.AnswerType) (float64, string) {
	if answerType == models.AnswerToken {
		token, ok := parse.FindEndWord(output, Vocabulary)
		if !ok {
			token = DefaultToken
		}
		return TokenProbs[token], token
	}
	return parse.ExtractProbability(output), ""
}

// Aggregate combines grouped base reasonings into an EnsembleResult. A
// single reasoning across all groups bypasses every strategy and is
// returned verbatim with no meta fields set.
func (r *Reasoner) Aggregate(ctx context.Context, q models.Question, digest string, grouped [][]models.BaseReasoning, cfg Config) (models.EnsembleResult, error) {
	if err := cfg.Validate(); err != nil {
		return models.EnsembleResult{}, err
	}

	result := models.EnsembleResult{BaseReasonings: grouped}
	for _, group := range grouped {
		probs := make([]float64, len(group))
		for i, br := range group {
			probs[i] = br.Probability
		}
		result.BaseProbabilities = append(result.BaseProbabilities, probs)
	}

	flat := result.FlatReasonings()
	if len(flat) == 0 {
		return models.EnsembleResult{}, fmt.Errorf("aggregate: no base reasonings")
	}
	if len(flat) == 1 {
		result.Probability = clampProbability(flat[0].Probability)
		result.Token = clampToken(flat[0].Token, cfg.AnswerType)
		return result, nil
	}

	switch cfg.Aggregation {
	case AggregateMean:
		result.Probability = mean(probabilities(flat))
	case AggregateWeightedMean:
		result.Probability = weightedMean(grouped, cfg.Weights)
	case AggregateVoteOrMedian:
		if cfg.AnswerType == models.AnswerToken {
			result.Token = mostFrequentToken(flat)
			result.Probability = TokenProbs[result.Token]
		} else {
			result.Probability = median(probabilities(flat))
		}
	case AggregateMeta:
		if err := r.aggregateMeta(ctx, q, digest, flat, cfg, &result); err != nil {
			return models.EnsembleResult{}, err
		}
	}

	result.Probability = clampProbability(result.Probability)
	result.Token = clampToken(result.Token, cfg.AnswerType)
	return result, nil
}

func (r *Reasoner) aggregateMeta(ctx context.Context, q models.Question, digest string, flat []models.BaseReasoning, cfg Config, result *models.EnsembleResult) error {
	reasonings := make([]string, len(flat))
	for i, br := range flat {
		reasonings[i] = br.Output
	}
	prompt, err := cfg.MetaTemplate.Render(map[string]string{
		"question":            q.Title,
		"background":          q.Background,
		"resolution_criteria": q.ResolutionCriteria,
		"date_begin":          q.DateBegin.Format("2006-01-02"),
		"date_end":            q.DateEnd.Format("2006-01-02"),
		"retrieved_info":      digest,
		"base_reasonings":     ConcatReasonings(reasonings),
	})
	if err != nil {
		return err
	}

	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 2000
	}
	output, err := r.llm.Complete(ctx, llm.Request{
		Model:       cfg.MetaModel,
		Prompt:      prompt,
		MaxTokens:   maxTokens,
		Temperature: cfg.MetaTemperature,
	})
	if err != nil {
		// The base reasonings are already paid for; fall back to their
		// median rather than failing the question.
		r.logger.Printf("meta completion failed, falling back to median: %v", err)
		if cfg.AnswerType == models.AnswerToken {
			result.Token = mostFrequentToken(flat)
			result.Probability = TokenProbs[result.Token]
		} else {
			result.Probability = median(probabilities(flat))
		}
		return nil
	}

	result.MetaPrompt = &prompt
	result.MetaReasoning = &output
	result.Probability, result.Token = extractPrediction(output, cfg.AnswerType)
	return nil
}

// ConcatReasonings renders base reasonings labeled by forecaster index
// for the meta prompt.
func ConcatReasonings(reasonings []string) string {
	parts := make([]string, len(reasonings))
	for i, r := range reasonings {
		parts[i] = fmt.Sprintf("Response from forecaster %d:\n%s", i+1, r)
	}
	return "---\n" + strings.Join(parts, "\n\n-\n") + "\n---"
}

func probabilities(flat []models.BaseReasoning) []float64 {
	out := make([]float64, len(flat))
	for i, br := range flat {
		out[i] = br.Probability
	}
	return out
}

func mean(vals []float64) float64 {
	var sum float64
	for _, v := range vals {
		sum += v
	}
	return sum / float64(len(vals))
}

func median(vals []float64) float64 {
	sorted := make([]float64, len(vals))
	copy(sorted, vals)
	sort.Float64s(sorted)
	n := len(sorted)
	if n%2 == 1 {
		return sorted[n/2]
	}
	return (sorted[n/2-1] + sorted[n/2]) / 2
}

func weightedMean(grouped [][]models.BaseReasoning, weights []float64) float64 {
	var sum, weightSum float64
	for gi, group := range grouped {
		for _, br := range group {
			sum += weights[gi] * br.Probability
			weightSum += weights[gi]
		}
	}
	if weightSum == 0 {
		return parse.DefaultProbability
	}
	return sum / weightSum
}

// mostFrequentToken breaks ties by first occurrence in input order, which
// is stable because elicitation preserves input order.
func mostFrequentToken(flat []models.BaseReasoning) string {
	counts := map[string]int{}
	var order []string
	for _, br := range flat {
		if _, seen := counts[br.Token]; !seen {
			order = append(order, br.Token)
		}
		counts[br.Token]++
	}
	best := ""
	bestCount := 0
	for _, tok := range order {
		if counts[tok] > bestCount {
			best = tok
			bestCount = counts[tok]
		}
	}
	if _, known := TokenProbs[best]; !known {
		return DefaultToken
	}
	return best
}

func clampProbability(p float64) float64 {
	if math.IsNaN(p) || p < 0 || p > 1 {
		return parse.DefaultProbability
	}
	return p
}

func clampToken(tok string, answerType models.AnswerType) string {
	if answerType != models.AnswerToken {
		return ""
	}
	if _, ok := TokenProbs[tok]; !ok {
		return DefaultToken
	}
	return tok
}
