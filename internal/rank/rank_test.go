package rank

import (
	"context"
	"errors"
	"io"
	"log"
	"math"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/mohammad-safakhou/foresight/internal/llm"
	"github.com/mohammad-safakhou/foresight/internal/models"
)

func testLogger() *log.Logger { return log.New(io.Discard, "", 0) }

type fixedEmbedder struct {
	vecs [][]float32
	err  error
}

func (f *fixedEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.vecs[:len(texts)], nil
}

// ratingLLM answers rating prompts by marker: the first response whose
// marker appears in the prompt wins.
type ratingLLM struct {
	markers   []string
	responses []string
	fallback  string
}

func (r *ratingLLM) Complete(ctx context.Context, req llm.Request) (string, error) {
	for i, marker := range r.markers {
		if strings.Contains(req.Prompt, marker) {
			return r.responses[i], nil
		}
	}
	return r.fallback, nil
}

func (r *ratingLLM) CompleteMany(ctx context.Context, reqs []llm.Request) ([]string, error) {
	out := make([]string, len(reqs))
	for i, req := range reqs {
		out[i], _ = r.Complete(ctx, req)
	}
	return out, nil
}

func art(title string, rating float64, published time.Time) models.Article {
	return models.Article{Title: title, Link: "https://e.example/" + title, Text: title, Rating: rating, Rated: true, PublishDate: published}
}

func TestCosine(t *testing.T) {
	if got := Cosine([]float32{1, 0}, []float32{1, 0}); math.Abs(got-1) > 1e-9 {
		t.Fatalf("parallel vectors: %v", got)
	}
	if got := Cosine([]float32{1, 0}, []float32{0, 1}); math.Abs(got) > 1e-9 {
		t.Fatalf("orthogonal vectors: %v", got)
	}
	if got := Cosine([]float32{1, 0}, []float32{-1, 0}); math.Abs(got+1) > 1e-9 {
		t.Fatalf("opposite vectors: %v", got)
	}
	if Cosine([]float32{1}, []float32{1, 2}) != 0 {
		t.Fatalf("mismatched lengths must score 0")
	}
}

func TestPreFilterSmallPoolPassesThrough(t *testing.T) {
	articles := []models.Article{art("a", 0, time.Time{})}
	emb := &fixedEmbedder{err: errors.New("should not be called")}
	got := PreFilter(context.Background(), emb, models.Question{}, articles, DefaultPreFilterConfig(), testLogger())
	if len(got) != 1 {
		t.Fatalf("small pool must pass through")
	}
}

func TestPreFilterKeepsSimilarArticles(t *testing.T) {
	cfg := DefaultPreFilterConfig()
	cfg.MinPool = 2

	// Question vector, then one similar and one dissimilar article.
	emb := &fixedEmbedder{vecs: [][]float32{{1, 0}, {0.9, 0.1}, {0, 1}}}
	articles := []models.Article{art("similar", 0, time.Time{}), art("off-topic", 0, time.Time{})}
	got := PreFilter(context.Background(), emb, models.Question{Title: "q"}, articles, cfg, testLogger())
	if len(got) != 1 || got[0].Title != "similar" {
		t.Fatalf("expected only the similar article, got %+v", got)
	}
}

func TestPreFilterSkipsOnEmbeddingFailure(t *testing.T) {
	cfg := DefaultPreFilterConfig()
	cfg.MinPool = 1
	emb := &fixedEmbedder{err: errors.New("provider down")}
	articles := []models.Article{art("a", 0, time.Time{}), art("b", 0, time.Time{})}
	got := PreFilter(context.Background(), emb, models.Question{}, articles, cfg, testLogger())
	if len(got) != 2 {
		t.Fatalf("failure must forward the unfiltered pool")
	}
}

func TestRankWithModelParsesRatings(t *testing.T) {
	client := &ratingLLM{
		markers: []string{"Relevant", "Junk"},
		responses: []string{
			"Thoughts: on topic.\nRating: 5",
			"Thoughts: paywall error text.\nRating: 1",
		},
	}
	r := NewRanker(client, nil, nil, testLogger())

	articles := []models.Article{
		{Title: "Relevant", Link: "https://e.example/1", Text: "body one"},
		{Title: "Junk", Link: "https://e.example/2", Text: "body two"},
	}
	got, err := r.Rank(context.Background(), models.Question{Title: "q"}, articles, Config{
		Method:    MethodLLM,
		Detail:    DetailExcerpt,
		Model:     "gpt-3.5-turbo-1106",
		Threshold: 4,
		SortBy:    "relevance",
	})
	if err != nil {
		t.Fatalf("rank: %v", err)
	}
	if len(got) != 1 || got[0].Title != "Relevant" || got[0].Rating != 5 {
		t.Fatalf("unexpected result: %+v", got)
	}
	if got[0].RatingReasoning == "" {
		t.Fatalf("reasoning must be preserved")
	}
	// Input articles stay untouched.
	if articles[0].Rated {
		t.Fatalf("input slice must not be mutated")
	}
}

func TestRankWithEmbeddingMethod(t *testing.T) {
	// Question vector, then one parallel and one orthogonal article.
	emb := &fixedEmbedder{vecs: [][]float32{{1, 0}, {1, 0}, {0, 1}}}
	r := NewRanker(nil, emb, nil, testLogger())

	articles := []models.Article{
		{Title: "similar", Link: "https://e.example/1", Text: "body one"},
		{Title: "off-topic", Link: "https://e.example/2", Text: "body two"},
	}
	got, err := r.Rank(context.Background(), models.Question{Title: "q"}, articles, Config{
		Method:    MethodEmbedding,
		Threshold: 0.5,
		SortBy:    "relevance",
	})
	if err != nil {
		t.Fatalf("rank: %v", err)
	}
	if len(got) != 1 || got[0].Title != "similar" {
		t.Fatalf("expected only the similar article, got %+v", got)
	}
	if math.Abs(got[0].Rating-1) > 1e-9 {
		t.Fatalf("rating must equal cosine similarity, got %v", got[0].Rating)
	}
}

// fixedScorer returns a fixed score slice, standing in for the bleve index.
type fixedScorer struct {
	scores []float64
}

func (f *fixedScorer) Scores(ctx context.Context, query string, articles []models.Article) ([]float64, error) {
	return f.scores[:len(articles)], nil
}

func TestRankWithKeywordMethod(t *testing.T) {
	r := NewRanker(nil, nil, &fixedScorer{scores: []float64{2.4, 0.1}}, testLogger())

	articles := []models.Article{
		{Title: "match", Link: "https://e.example/1", Text: "body one"},
		{Title: "miss", Link: "https://e.example/2", Text: "body two"},
	}
	got, err := r.Rank(context.Background(), models.Question{Title: "q"}, articles, Config{
		Method:    MethodKeyword,
		Threshold: 1,
		SortBy:    "relevance",
	})
	if err != nil {
		t.Fatalf("rank: %v", err)
	}
	if len(got) != 1 || got[0].Title != "match" || got[0].Rating != 2.4 {
		t.Fatalf("unexpected result: %+v", got)
	}
}

func TestRankWithKeywordMethodRequiresIndex(t *testing.T) {
	r := NewRanker(nil, nil, nil, testLogger())
	_, err := r.Rank(context.Background(), models.Question{Title: "q"}, []models.Article{art("a", 0, time.Time{})}, Config{
		Method: MethodKeyword,
		SortBy: "relevance",
	})
	if err == nil {
		t.Fatalf("keyword ranking without an index must fail")
	}
}

// countingLLM tracks the peak number of in-flight Complete calls.
type countingLLM struct {
	mu       sync.Mutex
	inFlight int
	peak     int
}

func (c *countingLLM) Complete(ctx context.Context, req llm.Request) (string, error) {
	c.mu.Lock()
	c.inFlight++
	if c.inFlight > c.peak {
		c.peak = c.inFlight
	}
	c.mu.Unlock()
	time.Sleep(2 * time.Millisecond)
	c.mu.Lock()
	c.inFlight--
	c.mu.Unlock()
	return "Rating: 5", nil
}

func (c *countingLLM) CompleteMany(ctx context.Context, reqs []llm.Request) ([]string, error) {
	out := make([]string, len(reqs))
	for i, req := range reqs {
		out[i], _ = c.Complete(ctx, req)
	}
	return out, nil
}

func TestRankWithModelBoundsConcurrency(t *testing.T) {
	client := &countingLLM{}
	r := NewRanker(client, nil, nil, testLogger())

	articles := make([]models.Article, 16)
	for i := range articles {
		articles[i] = models.Article{Title: "a", Link: "https://e.example/" + string(rune('a'+i)), Text: "body"}
	}
	_, err := r.Rank(context.Background(), models.Question{Title: "q"}, articles, Config{
		Method:        MethodLLM,
		Model:         "gpt-3.5-turbo-1106",
		Threshold:     4,
		SortBy:        "relevance",
		MaxConcurrent: 2,
	})
	if err != nil {
		t.Fatalf("rank: %v", err)
	}
	if client.peak > 2 {
		t.Fatalf("rating fan-out exceeded its cap: %d in flight", client.peak)
	}
}

func TestPreFilterStrictThresholdForLargePools(t *testing.T) {
	cfg := DefaultPreFilterConfig()
	cfg.MinPool = 2
	cfg.StrictPool = 3

	// Cosine against the question vector lands near 0.34: above the base
	// threshold, below the strict one.
	borderline := []float32{0.34, float32(math.Sqrt(1 - 0.34*0.34))}
	vecs := [][]float32{{1, 0}, borderline, borderline, borderline}
	articles := []models.Article{
		art("b1", 0, time.Time{}),
		art("b2", 0, time.Time{}),
		art("b3", 0, time.Time{}),
	}

	emb := &fixedEmbedder{vecs: vecs}
	got := PreFilter(context.Background(), emb, models.Question{Title: "q"}, articles, cfg, testLogger())
	if len(got) != 0 {
		t.Fatalf("strict tier must drop borderline articles, kept %d", len(got))
	}

	// The same pool under StrictPool keeps them at the base threshold.
	cfg.StrictPool = 100
	got = PreFilter(context.Background(), emb, models.Question{Title: "q"}, articles, cfg, testLogger())
	if len(got) != 3 {
		t.Fatalf("base tier must keep borderline articles, kept %d", len(got))
	}
}

func TestSortAndFilterByRelevance(t *testing.T) {
	in := []models.Article{art("low", 2, time.Time{}), art("high", 6, time.Time{}), art("mid", 4, time.Time{})}
	got, err := SortAndFilter(in, 4, "relevance", time.Time{})
	if err != nil {
		t.Fatalf("sort: %v", err)
	}
	var titles []string
	for _, a := range got {
		titles = append(titles, a.Title)
	}
	if diff := cmp.Diff([]string{"high", "mid"}, titles); diff != "" {
		t.Fatalf("order mismatch (-want +got):\n%s", diff)
	}
}

func TestSortAndFilterByDateDefaultsMissingDates(t *testing.T) {
	end := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	older := art("older", 5, end.AddDate(0, 0, -20))
	undated := art("undated", 5, time.Time{})
	newer := art("newer", 5, end.AddDate(0, 0, -1))

	got, err := SortAndFilter([]models.Article{older, undated, newer}, 4, "date", end)
	if err != nil {
		t.Fatalf("sort: %v", err)
	}
	var titles []string
	for _, a := range got {
		titles = append(titles, a.Title)
	}
	// The undated article takes the window end, ranking as most recent.
	if diff := cmp.Diff([]string{"undated", "newer", "older"}, titles); diff != "" {
		t.Fatalf("order mismatch (-want +got):\n%s", diff)
	}
}

func TestSortAndFilterRejectsUnknownKey(t *testing.T) {
	_, err := SortAndFilter([]models.Article{art("a", 5, time.Time{})}, 1, "popularity", time.Time{})
	var iske *InvalidSortKeyError
	if !errors.As(err, &iske) {
		t.Fatalf("expected InvalidSortKeyError, got %v", err)
	}
}
