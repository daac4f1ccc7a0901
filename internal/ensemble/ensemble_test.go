package ensemble

import (
	"context"
	"fmt"
	"io"
	"log"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/mohammad-safakhou/foresight/internal/llm"
	"github.com/mohammad-safakhou/foresight/internal/models"
	"github.com/mohammad-safakhou/foresight/internal/prompts"
)

type scriptedLLM struct {
	responses map[string]string
	fallback  string
	calls     atomic.Int64
	err       error
}

func (s *scriptedLLM) Complete(_ context.Context, req llm.Request) (string, error) {
	s.calls.Add(1)
	if s.err != nil {
		return "", s.err
	}
	for key, resp := range s.responses {
		if strings.Contains(req.Prompt, key) {
			return resp, nil
		}
	}
	return s.fallback, nil
}

func (s *scriptedLLM) CompleteMany(ctx context.Context, reqs []llm.Request) ([]string, error) {
	out := make([]string, len(reqs))
	for i, req := range reqs {
		resp, err := s.Complete(ctx, req)
		if err != nil {
			return nil, err
		}
		out[i] = resp
	}
	return out, nil
}

func testLogger() *log.Logger { return log.New(io.Discard, "", 0) }

func testQuestion() models.Question {
	return models.Question{
		Title:              "Will the launch happen before July?",
		Background:         "The launch has slipped twice.",
		ResolutionCriteria: "Resolves yes on a launch before 2024-07-01.",
		DateBegin:          time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		DateEnd:            time.Date(2024, 6, 30, 0, 0, 0, 0, time.UTC),
	}
}

func baseTemplate(id string) prompts.Template {
	return prompts.Template{
		ID:     id,
		Text:   "Question: {question}\nInfo: {retrieved_info}\nMarker: " + id,
		Fields: []string{"question", "retrieved_info"},
	}
}

func baseConfig(agg string) Config {
	return Config{
		BaseModels:    []string{"gpt-4"},
		BaseTemplates: [][]prompts.Template{{baseTemplate("tpl-a"), baseTemplate("tpl-b"), baseTemplate("tpl-c")}},
		AnswerType:    models.AnswerProbability,
		Aggregation:   agg,
	}
}

func reasoningsFromProbs(probs ...float64) [][]models.BaseReasoning {
	group := make([]models.BaseReasoning, len(probs))
	for i, p := range probs {
		group[i] = models.BaseReasoning{
			Model:       "gpt-4",
			Output:      fmt.Sprintf("reasoning %d", i),
			Probability: p,
		}
	}
	return [][]models.BaseReasoning{group}
}

func TestElicitExtractsProbabilities(t *testing.T) {
	client := &scriptedLLM{
		responses: map[string]string{
			"Marker: tpl-a": "After weighing the evidence I'd say *0.3*",
			"Marker: tpl-b": "This seems likely. *70%*",
			"Marker: tpl-c": "No number in this one.",
		},
	}
	r := NewReasoner(client, testLogger())

	grouped, err := r.Elicit(context.Background(), testQuestion(), "digest", baseConfig(AggregateMean))
	if err != nil {
		t.Fatalf("Elicit: %v", err)
	}
	if len(grouped) != 1 || len(grouped[0]) != 3 {
		t.Fatalf("got shape %dx%d, want 1x3", len(grouped), len(grouped[0]))
	}
	want := []float64{0.3, 0.7, 0.5}
	for i, br := range grouped[0] {
		if br.Probability != want[i] {
			t.Errorf("reasoning %d probability = %v, want %v", i, br.Probability, want[i])
		}
		if br.Model != "gpt-4" {
			t.Errorf("reasoning %d model = %q", i, br.Model)
		}
	}
}

func TestElicitTokenAnswers(t *testing.T) {
	client := &scriptedLLM{
		responses: map[string]string{
			"Marker: tpl-a": "All signs point one way.\n\nAnswer: Very Likely",
			"Marker: tpl-b": "Hard to say, nothing conclusive here.",
		},
	}
	cfg := baseConfig(AggregateVoteOrMedian)
	cfg.AnswerType = models.AnswerToken
	cfg.BaseTemplates = [][]prompts.Template{{baseTemplate("tpl-a"), baseTemplate("tpl-b")}}
	r := NewReasoner(client, testLogger())

	grouped, err := r.Elicit(context.Background(), testQuestion(), "digest", cfg)
	if err != nil {
		t.Fatalf("Elicit: %v", err)
	}
	if got := grouped[0][0].Token; got != "Very Likely" {
		t.Errorf("token = %q, want Very Likely", got)
	}
	if got := grouped[0][1].Token; got != DefaultToken {
		t.Errorf("missing token defaulted to %q, want %q", got, DefaultToken)
	}
	if got := grouped[0][0].Probability; got != TokenProbs["Very Likely"] {
		t.Errorf("token probability = %v, want %v", got, TokenProbs["Very Likely"])
	}
}

func TestAggregateMean(t *testing.T) {
	r := NewReasoner(&scriptedLLM{}, testLogger())
	result, err := r.Aggregate(context.Background(), testQuestion(), "digest",
		reasoningsFromProbs(0.2, 0.5, 0.8), baseConfig(AggregateMean))
	if err != nil {
		t.Fatalf("Aggregate: %v", err)
	}
	if result.Probability != 0.5 {
		t.Errorf("mean probability = %v, want 0.5", result.Probability)
	}
	if result.MetaPrompt != nil || result.MetaReasoning != nil {
		t.Error("non-meta aggregation set meta fields")
	}
}

func TestAggregateMedian(t *testing.T) {
	r := NewReasoner(&scriptedLLM{}, testLogger())

	result, err := r.Aggregate(context.Background(), testQuestion(), "digest",
		reasoningsFromProbs(0.1, 0.5, 0.9), baseConfig(AggregateVoteOrMedian))
	if err != nil {
		t.Fatalf("Aggregate: %v", err)
	}
	if result.Probability != 0.5 {
		t.Errorf("odd-count median = %v, want 0.5", result.Probability)
	}

	result, err = r.Aggregate(context.Background(), testQuestion(), "digest",
		reasoningsFromProbs(0.2, 0.4, 0.6, 0.8), baseConfig(AggregateVoteOrMedian))
	if err != nil {
		t.Fatalf("Aggregate: %v", err)
	}
	if result.Probability != 0.5 {
		t.Errorf("even-count median = %v, want 0.5", result.Probability)
	}
}

func TestAggregateTokenVote(t *testing.T) {
	grouped := [][]models.BaseReasoning{{
		{Model: "gpt-4", Token: "Likely", Probability: TokenProbs["Likely"]},
		{Model: "gpt-4", Token: "Unlikely", Probability: TokenProbs["Unlikely"]},
		{Model: "gpt-4", Token: "Likely", Probability: TokenProbs["Likely"]},
	}}
	cfg := baseConfig(AggregateVoteOrMedian)
	cfg.AnswerType = models.AnswerToken
	r := NewReasoner(&scriptedLLM{}, testLogger())

	result, err := r.Aggregate(context.Background(), testQuestion(), "digest", grouped, cfg)
	if err != nil {
		t.Fatalf("Aggregate: %v", err)
	}
	if result.Token != "Likely" {
		t.Errorf("vote token = %q, want Likely", result.Token)
	}
	if result.Probability != TokenProbs["Likely"] {
		t.Errorf("vote probability = %v", result.Probability)
	}
}

func TestAggregateTokenVoteTieBreak(t *testing.T) {
	grouped := [][]models.BaseReasoning{{
		{Model: "gpt-4", Token: "Unlikely"},
		{Model: "gpt-4", Token: "Likely"},
		{Model: "gpt-4", Token: "Likely"},
		{Model: "gpt-4", Token: "Unlikely"},
	}}
	cfg := baseConfig(AggregateVoteOrMedian)
	cfg.AnswerType = models.AnswerToken
	r := NewReasoner(&scriptedLLM{}, testLogger())

	result, err := r.Aggregate(context.Background(), testQuestion(), "digest", grouped, cfg)
	if err != nil {
		t.Fatalf("Aggregate: %v", err)
	}
	if result.Token != "Unlikely" {
		t.Errorf("tie broke to %q, want first-encountered Unlikely", result.Token)
	}
}

func TestAggregateWeightedMean(t *testing.T) {
	grouped := [][]models.BaseReasoning{
		{{Model: "gpt-4", Probability: 1.0}},
		{{Model: "claude-2.1", Probability: 0.0}},
	}
	cfg := Config{
		BaseModels: []string{"gpt-4", "claude-2.1"},
		BaseTemplates: [][]prompts.Template{
			{baseTemplate("tpl-a")},
			{baseTemplate("tpl-a")},
		},
		AnswerType:  models.AnswerProbability,
		Aggregation: AggregateWeightedMean,
		Weights:     []float64{3, 1},
	}
	r := NewReasoner(&scriptedLLM{}, testLogger())

	result, err := r.Aggregate(context.Background(), testQuestion(), "digest", grouped, cfg)
	if err != nil {
		t.Fatalf("Aggregate: %v", err)
	}
	if result.Probability != 0.75 {
		t.Errorf("weighted mean = %v, want 0.75", result.Probability)
	}
}

func TestWeightedMeanRejectsMismatchedWeights(t *testing.T) {
	cfg := baseConfig(AggregateWeightedMean)
	cfg.Weights = []float64{0.5, 0.5}
	client := &scriptedLLM{}
	r := NewReasoner(client, testLogger())

	if _, err := r.Elicit(context.Background(), testQuestion(), "digest", cfg); err == nil {
		t.Fatal("expected weight mismatch error")
	}
	if client.calls.Load() != 0 {
		t.Errorf("made %d provider calls before validation failure", client.calls.Load())
	}
}

func TestTokenAnswersRejectMeanAggregation(t *testing.T) {
	cfg := baseConfig(AggregateMean)
	cfg.AnswerType = models.AnswerToken
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for token answers with mean aggregation")
	}
}

func TestSingleReasoningBypassesAggregation(t *testing.T) {
	client := &scriptedLLM{}
	cfg := baseConfig(AggregateMeta)
	cfg.MetaModel = "gpt-4"
	cfg.MetaTemplate = prompts.Ensemble
	r := NewReasoner(client, testLogger())

	result, err := r.Aggregate(context.Background(), testQuestion(), "digest",
		reasoningsFromProbs(0.42), cfg)
	if err != nil {
		t.Fatalf("Aggregate: %v", err)
	}
	if result.Probability != 0.42 {
		t.Errorf("bypass probability = %v, want 0.42", result.Probability)
	}
	if result.MetaPrompt != nil || result.MetaReasoning != nil {
		t.Error("single-reasoning bypass set meta fields")
	}
	if client.calls.Load() != 0 {
		t.Errorf("bypass made %d provider calls", client.calls.Load())
	}
}

func TestAggregateMeta(t *testing.T) {
	client := &scriptedLLM{
		responses: map[string]string{"Response from forecaster 1:": "Combining the views, *0.65*"},
	}
	cfg := baseConfig(AggregateMeta)
	cfg.MetaModel = "gpt-4"
	cfg.MetaTemplate = prompts.Ensemble
	r := NewReasoner(client, testLogger())

	result, err := r.Aggregate(context.Background(), testQuestion(), "digest",
		reasoningsFromProbs(0.3, 0.7), cfg)
	if err != nil {
		t.Fatalf("Aggregate: %v", err)
	}
	if result.Probability != 0.65 {
		t.Errorf("meta probability = %v, want 0.65", result.Probability)
	}
	if result.MetaPrompt == nil || result.MetaReasoning == nil {
		t.Fatal("meta aggregation left meta fields nil")
	}
	if !strings.Contains(*result.MetaPrompt, "Response from forecaster 2:") {
		t.Error("meta prompt missing labeled base reasonings")
	}
}

func TestAggregateMetaFallsBackToMedian(t *testing.T) {
	client := &scriptedLLM{err: fmt.Errorf("provider down")}
	cfg := baseConfig(AggregateMeta)
	cfg.MetaModel = "gpt-4"
	cfg.MetaTemplate = prompts.Ensemble
	r := NewReasoner(client, testLogger())

	result, err := r.Aggregate(context.Background(), testQuestion(), "digest",
		reasoningsFromProbs(0.2, 0.5, 0.9), cfg)
	if err != nil {
		t.Fatalf("Aggregate: %v", err)
	}
	if result.Probability != 0.5 {
		t.Errorf("fallback probability = %v, want median 0.5", result.Probability)
	}
	if result.MetaPrompt != nil || result.MetaReasoning != nil {
		t.Error("failed meta call still set meta fields")
	}
}

func TestAggregateClampsOutOfRange(t *testing.T) {
	r := NewReasoner(&scriptedLLM{}, testLogger())
	result, err := r.Aggregate(context.Background(), testQuestion(), "digest",
		reasoningsFromProbs(1.8), baseConfig(AggregateMean))
	if err != nil {
		t.Fatalf("Aggregate: %v", err)
	}
	if result.Probability != 0.5 {
		t.Errorf("clamped probability = %v, want 0.5", result.Probability)
	}
}

func TestConcatReasonings(t *testing.T) {
	got := ConcatReasonings([]string{"first take", "second take"})
	want := "---\nResponse from forecaster 1:\nfirst take\n\n-\nResponse from forecaster 2:\nsecond take\n---"
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("ConcatReasonings mismatch (-want +got):\n%s", diff)
	}
}

func TestAlignerScoresEachReasoning(t *testing.T) {
	client := &scriptedLLM{
		responses: map[string]string{
			"strong argument": "Rating: 5",
			"weak argument":   "Rating: 2",
		},
	}
	a := NewAligner(client, testLogger())
	reasonings := []models.BaseReasoning{
		{Output: "strong argument"},
		{Output: "weak argument"},
	}

	scores := a.Score(context.Background(), testQuestion(), "digest", reasonings, "gpt-4", 0)
	if diff := cmp.Diff([]float64{5, 2}, scores); diff != "" {
		t.Errorf("alignment scores mismatch (-want +got):\n%s", diff)
	}
}

func TestAlignerOmitsFailures(t *testing.T) {
	client := &scriptedLLM{err: fmt.Errorf("provider down")}
	a := NewAligner(client, testLogger())

	scores := a.Score(context.Background(), testQuestion(), "digest",
		[]models.BaseReasoning{{Output: "anything"}}, "gpt-4", 0)
	if len(scores) != 0 {
		t.Errorf("got %d scores from failing provider, want 0", len(scores))
	}
}
