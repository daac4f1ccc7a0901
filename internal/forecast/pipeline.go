// Package forecast wires the retrieval, ranking, summarization and
// ensemble stages into the end-to-end pipeline and runs it per question.
package forecast

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/mohammad-safakhou/foresight/internal/ensemble"
	"github.com/mohammad-safakhou/foresight/internal/llm"
	"github.com/mohammad-safakhou/foresight/internal/models"
	"github.com/mohammad-safakhou/foresight/internal/rank"
	"github.com/mohammad-safakhou/foresight/internal/retrieval"
	"github.com/mohammad-safakhou/foresight/internal/summarize"
	"github.com/mohammad-safakhou/foresight/internal/telemetry"
)

// Store persists finished forecast records.
type Store interface {
	SaveForecast(ctx context.Context, rec models.ForecastRecord) error
}

// Cache is the idempotence sink consulted before a question is run and
// written after it finishes.
type Cache interface {
	Load(ctx context.Context, key string) (models.ForecastRecord, bool, error)
	Save(ctx context.Context, key string, rec models.ForecastRecord) error
}

// Indexer receives retrieved articles for local full-text search.
type Indexer interface {
	IndexArticles(ctx context.Context, articles []models.Article) error
}

// Config bundles the per-stage configurations for one pipeline run.
type Config struct {
	Planner   retrieval.PlannerConfig
	Retriever retrieval.RetrieverConfig
	PreFilter rank.PreFilterConfig
	Rank      rank.Config
	Summarize summarize.Config
	Ensemble  ensemble.Config

	// RetrievalIndex distinguishes repeated retrievals of the same question
	// over time; it is part of the idempotence key.
	RetrievalIndex int
	// RunID, when set, names the run up front so callers can hand the id
	// out before the pipeline finishes. Empty means generate one.
	RunID         string
	WithAlignment bool
}

// Pipeline runs a question through every stage. Store, cache and indexer
// are optional; a nil value disables that sink.
type Pipeline struct {
	planner    *retrieval.Planner
	retriever  *retrieval.Retriever
	fetcher    *retrieval.Fetcher
	ranker     *rank.Ranker
	summarizer *summarize.Summarizer
	reasoner   *ensemble.Reasoner
	aligner    *ensemble.Aligner
	embedder   llm.Embedder

	store   Store
	cache   Cache
	indexer Indexer

	telemetry *telemetry.Telemetry
	logger    *log.Logger
}

type Options struct {
	Planner    *retrieval.Planner
	Retriever  *retrieval.Retriever
	Fetcher    *retrieval.Fetcher
	Ranker     *rank.Ranker
	Summarizer *summarize.Summarizer
	Reasoner   *ensemble.Reasoner
	Aligner    *ensemble.Aligner
	Embedder   llm.Embedder
	Store      Store
	Cache      Cache
	Indexer    Indexer
	Telemetry  *telemetry.Telemetry
	Logger     *log.Logger
}

func NewPipeline(opts Options) *Pipeline {
	logger := opts.Logger
	if logger == nil {
		logger = log.New(log.Writer(), "[PIPELINE] ", log.LstdFlags)
	}
	return &Pipeline{
		planner:    opts.Planner,
		retriever:  opts.Retriever,
		fetcher:    opts.Fetcher,
		ranker:     opts.Ranker,
		summarizer: opts.Summarizer,
		reasoner:   opts.Reasoner,
		aligner:    opts.Aligner,
		embedder:   opts.Embedder,
		store:      opts.Store,
		cache:      opts.Cache,
		indexer:    opts.Indexer,
		telemetry:  opts.Telemetry,
		logger:     logger,
	}
}

// Run executes the full pipeline for one question and returns the
// persisted record. Retrieval and ranking failures inside a stage degrade
// to smaller pools; only elicitation and aggregation errors abort the
// question.
func (p *Pipeline) Run(ctx context.Context, q models.Question, cfg Config) (models.ForecastRecord, error) {
	start := time.Now()
	status := "ok"
	defer func() { p.telemetry.RecordForecast(status, time.Since(start)) }()

	runID := cfg.RunID
	if runID == "" {
		runID = uuid.NewString()
	}
	rec := models.ForecastRecord{
		RunID:          runID,
		Question:       q,
		RetrievalIndex: cfg.RetrievalIndex,
		CreatedAt:      time.Now().UTC(),
	}

	articles, err := p.gatherEvidence(ctx, q, cfg)
	if err != nil {
		status = "error"
		return models.ForecastRecord{}, err
	}
	rec.Articles = articles

	summarized, err := p.summarizer.SummarizeArticles(ctx, q, articles, cfg.Summarize)
	if err != nil {
		status = "error"
		return models.ForecastRecord{}, fmt.Errorf("summarize: %w", err)
	}
	rec.Articles = summarized
	rec.Digest = summarize.Digest(summarized)

	grouped, err := p.reasoner.Elicit(ctx, q, rec.Digest, cfg.Ensemble)
	if err != nil {
		status = "error"
		return models.ForecastRecord{}, fmt.Errorf("elicit: %w", err)
	}
	result, err := p.reasoner.Aggregate(ctx, q, rec.Digest, grouped, cfg.Ensemble)
	if err != nil {
		status = "error"
		return models.ForecastRecord{}, fmt.Errorf("aggregate: %w", err)
	}
	rec.Result = result

	if cfg.WithAlignment && p.aligner != nil {
		rec.AlignmentScores = p.aligner.Score(ctx, q, rec.Digest, result.FlatReasonings(),
			cfg.Ensemble.AlignmentModel, cfg.Ensemble.AlignmentTemperature)
	}

	if q.Resolved {
		brier := BrierScore(result.Probability, q.Resolution)
		rec.BrierScore = &brier
	}

	if p.store != nil {
		if err := p.store.SaveForecast(ctx, rec); err != nil {
			p.logger.Printf("persisting forecast %s: %v", rec.RunID, err)
		}
	}
	return rec, nil
}

// gatherEvidence plans queries, retrieves and merges articles from every
// source, folds in background URLs, and narrows the pool with the
// embedding pre-filter and the ranker.
func (p *Pipeline) gatherEvidence(ctx context.Context, q models.Question, cfg Config) ([]models.Article, error) {
	plan, err := p.planner.Plan(ctx, q, cfg.Planner)
	if err != nil {
		return nil, fmt.Errorf("plan queries: %w", err)
	}

	queries := map[string][]models.SearchQuery{
		"newscatcher": plan.Newscatcher,
		"gnews":       plan.GNews,
	}
	articles := p.retriever.RetrieveWithConfig(ctx, queries, q.DateBegin, q.DateEnd, cfg.Retriever)

	if extra := p.fetchBackgroundArticles(ctx, q); len(extra) > 0 {
		articles = retrieval.Deduplicate(append(extra, articles...))
	}

	if p.indexer != nil && len(articles) > 0 {
		if err := p.indexer.IndexArticles(ctx, articles); err != nil {
			p.logger.Printf("indexing articles: %v", err)
		}
	}

	articles = rank.PreFilter(ctx, p.embedder, q, articles, cfg.PreFilter, p.logger)

	rankCfg := cfg.Rank
	if rankCfg.DefaultDate.IsZero() {
		rankCfg.DefaultDate = q.DateEnd
	}
	ranked, err := p.ranker.Rank(ctx, q, articles, rankCfg)
	if err != nil {
		return nil, fmt.Errorf("rank articles: %w", err)
	}
	return ranked, nil
}

// fetchBackgroundArticles resolves URLs the question author embedded in
// the background text. They are trusted evidence and enter the pool with
// the top rating so the relevance filter never discards them.
func (p *Pipeline) fetchBackgroundArticles(ctx context.Context, q models.Question) []models.Article {
	if p.fetcher == nil {
		return nil
	}
	var out []models.Article
	for _, link := range retrieval.ExtractURLs(q.Background) {
		a, err := p.fetcher.Fetch(ctx, link)
		if err != nil {
			p.logger.Printf("background url %s: %v", link, err)
			continue
		}
		a.SearchTerm = "additional-url"
		a.Rating = 6
		a.Rated = true
		out = append(out, a)
	}
	return out
}
