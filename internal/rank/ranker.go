package rank

import (
	"context"
	"fmt"
	"log"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/mohammad-safakhou/foresight/internal/llm"
	"github.com/mohammad-safakhou/foresight/internal/models"
	"github.com/mohammad-safakhou/foresight/internal/parse"
	"github.com/mohammad-safakhou/foresight/internal/prompts"
)

// Method selects how relevance ratings are produced.
type Method string

const (
	MethodLLM       Method = "llm-rating"
	MethodEmbedding Method = "embedding"
	// MethodKeyword scores articles against the question with the local
	// full-text index.
	MethodKeyword Method = "keyword"
)

// Detail selects how much of an article an LLM rating prompt sees.
type Detail string

const (
	DetailTitle    Detail = "title"
	DetailExcerpt  Detail = "title-excerpt"
	DetailFullText Detail = "full-text"
)

const (
	// excerptTokens bounds the leading excerpt in DetailExcerpt prompts.
	excerptTokens = 250
	// fullTextChars bounds DetailFullText prompts.
	fullTextChars = 40000
)

// InvalidSortKeyError reports an unrecognized sort key; the ranker never
// silently returns unsorted data.
type InvalidSortKeyError struct {
	Key string
}

func (e *InvalidSortKeyError) Error() string {
	return fmt.Sprintf("invalid sort key %q (want \"relevance\" or \"date\")", e.Key)
}

// Config parameterizes one ranking pass. Threshold applies to whichever
// method runs; typical values are 4 for llm-rating and 0.5 for the
// similarity methods.
type Config struct {
	Method      Method
	Detail      Detail
	Model       string
	Temperature float64
	Threshold   float64
	SortBy      string
	// DefaultDate is assigned to articles missing a publish date before a
	// date sort; callers pass the retrieval window's end.
	DefaultDate   time.Time
	MaxConcurrent int
}

// KeywordScorer scores articles against a query text; implemented by the
// local bleve index.
type KeywordScorer interface {
	Scores(ctx context.Context, query string, articles []models.Article) ([]float64, error)
}

// Ranker assigns relevance ratings and produces the filtered, ordered
// pool handed to summarization.
type Ranker struct {
	llm      llm.CompletionClient
	embedder llm.Embedder
	keyword  KeywordScorer
	logger   *log.Logger
}

func NewRanker(client llm.CompletionClient, embedder llm.Embedder, keyword KeywordScorer, logger *log.Logger) *Ranker {
	if logger == nil {
		logger = log.New(log.Writer(), "[RANKER] ", log.LstdFlags)
	}
	return &Ranker{llm: client, embedder: embedder, keyword: keyword, logger: logger}
}

// Rank rates every article with the configured method, then filters and
// sorts. The returned slice owns its articles; the input is not mutated.
func (r *Ranker) Rank(ctx context.Context, q models.Question, articles []models.Article, cfg Config) ([]models.Article, error) {
	if len(articles) == 0 {
		return nil, nil
	}

	rated := make([]models.Article, len(articles))
	copy(rated, articles)

	// Articles that arrive pre-rated (background URLs) keep their rating.
	var idx []int
	for i, a := range rated {
		if !a.Rated {
			idx = append(idx, i)
		}
	}
	pending := make([]models.Article, len(idx))
	for j, i := range idx {
		pending[j] = rated[i]
	}

	if len(pending) > 0 {
		var err error
		switch cfg.Method {
		case MethodLLM:
			err = r.rateWithModel(ctx, q, pending, cfg)
		case MethodEmbedding:
			err = r.rateWithEmbeddings(ctx, q, pending)
		case MethodKeyword:
			err = r.rateWithKeywords(ctx, q, pending)
		default:
			return nil, fmt.Errorf("unknown ranking method %q", cfg.Method)
		}
		if err != nil {
			return nil, err
		}
	}
	for j, i := range idx {
		rated[i] = pending[j]
	}

	return SortAndFilter(rated, cfg.Threshold, cfg.SortBy, cfg.DefaultDate)
}

func (r *Ranker) rateWithModel(ctx context.Context, q models.Question, articles []models.Article, cfg Config) error {
	reqs := make([]llm.Request, len(articles))
	for i, a := range articles {
		prompt, err := prompts.Relevance.Render(map[string]string{
			"question":            q.Title,
			"background":          q.Background,
			"resolution_criteria": q.ResolutionCriteria,
			"article":             articleView(a, cfg.Detail),
		})
		if err != nil {
			return err
		}
		reqs[i] = llm.Request{Model: cfg.Model, Prompt: prompt, MaxTokens: 500, Temperature: cfg.Temperature}
	}

	limit := cfg.MaxConcurrent
	if limit <= 0 {
		limit = 8
	}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)
	for i := range articles {
		g.Go(func() error {
			resp, err := r.llm.Complete(gctx, reqs[i])
			if err != nil {
				return fmt.Errorf("relevance rating: %w", err)
			}
			articles[i].Rating = parse.ExtractRating(resp)
			articles[i].Rated = true
			articles[i].RatingReasoning = resp
			return nil
		})
	}
	return g.Wait()
}

func articleView(a models.Article, detail Detail) string {
	switch detail {
	case DetailTitle:
		return a.Title
	case DetailFullText:
		text := a.Text
		if len(text) > fullTextChars {
			text = text[:fullTextChars]
		}
		return a.Title + "\n" + text
	default:
		text := a.Text
		if budget := excerptTokens * parse.CharsPerToken; len(text) > budget {
			text = text[:budget]
		}
		return a.Title + "\n" + text
	}
}

func (r *Ranker) rateWithEmbeddings(ctx context.Context, q models.Question, articles []models.Article) error {
	texts := make([]string, 0, len(articles)+1)
	texts = append(texts, "Question: "+q.Title+"\n\nBackground:"+q.Background)
	for _, a := range articles {
		texts = append(texts, a.Text)
	}
	vecs, err := r.embedder.Embed(ctx, texts)
	if err != nil {
		return fmt.Errorf("embedding rating: %w", err)
	}
	for i := range articles {
		articles[i].Rating = Cosine(vecs[0], vecs[i+1])
		articles[i].Rated = true
	}
	return nil
}

func (r *Ranker) rateWithKeywords(ctx context.Context, q models.Question, articles []models.Article) error {
	if r.keyword == nil {
		return fmt.Errorf("keyword ranking requires a local article index")
	}
	scores, err := r.keyword.Scores(ctx, q.Title, articles)
	if err != nil {
		return fmt.Errorf("keyword rating: %w", err)
	}
	for i := range articles {
		articles[i].Rating = scores[i]
		articles[i].Rated = true
	}
	return nil
}

// SortAndFilter drops articles rated below threshold and orders the rest.
// sortBy "relevance" orders by rating descending; "date" orders by publish
// date descending with missing dates replaced by defaultDate so unknown
// articles rank as most recent rather than vanishing. Any other key is an
// InvalidSortKeyError.
func SortAndFilter(articles []models.Article, threshold float64, sortBy string, defaultDate time.Time) ([]models.Article, error) {
	kept := make([]models.Article, 0, len(articles))
	for _, a := range articles {
		if a.Rating >= threshold {
			kept = append(kept, a)
		}
	}

	switch sortBy {
	case "relevance":
		sort.SliceStable(kept, func(i, j int) bool { return kept[i].Rating > kept[j].Rating })
	case "date":
		for i := range kept {
			if kept[i].PublishDate.IsZero() {
				kept[i].PublishDate = defaultDate
			}
		}
		sort.SliceStable(kept, func(i, j int) bool { return kept[i].PublishDate.After(kept[j].PublishDate) })
	default:
		return nil, &InvalidSortKeyError{Key: sortBy}
	}
	return kept, nil
}
