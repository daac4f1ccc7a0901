package retrieval

import (
	"context"
	"log"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/mohammad-safakhou/foresight/internal/models"
	"github.com/mohammad-safakhou/foresight/internal/telemetry"
)

// RetrieverConfig bounds one retrieval pass.
type RetrieverConfig struct {
	// ArticlesPerQuery caps how many articles each (source, query) fetch
	// contributes.
	ArticlesPerQuery int
	// MinBodyChars drops articles with shorter body text; short bodies
	// are a cheap signal of scraping failure or a paywall stub.
	MinBodyChars int
	// MaxConcurrent bounds in-flight source fetches.
	MaxConcurrent int
}

// Retriever fans queries out across news sources and merges the results
// into a deduplicated article pool.
type Retriever struct {
	sources   []Source
	logger    *log.Logger
	telemetry *telemetry.Telemetry
}

func NewRetriever(sources []Source, logger *log.Logger, tele *telemetry.Telemetry) *Retriever {
	if logger == nil {
		logger = log.New(log.Writer(), "[RETRIEVER] ", log.LstdFlags)
	}
	return &Retriever{sources: sources, logger: logger, telemetry: tele}
}

// Retrieve fetches every query against every source concurrently. The
// merge is deterministic: results are flattened source-then-query
// regardless of completion order, then deduplicated first-wins.
//
// An inverted date range is a per-question data problem, not a programming
// error: it is logged and yields an empty pool without a single provider
// call, so a bad question cannot abort a batch.
func (r *Retriever) Retrieve(ctx context.Context, queries map[string][]models.SearchQuery, from, to time.Time) []models.Article {
	cfg := RetrieverConfig{ArticlesPerQuery: 5, MinBodyChars: 200, MaxConcurrent: 8}
	return r.RetrieveWithConfig(ctx, queries, from, to, cfg)
}

// RetrieveWithConfig is Retrieve with explicit limits.
func (r *Retriever) RetrieveWithConfig(ctx context.Context, queries map[string][]models.SearchQuery, from, to time.Time, cfg RetrieverConfig) []models.Article {
	if !to.After(from) {
		r.logger.Printf("invalid date range: end %s is not after start %s", to.Format("2006-01-02"), from.Format("2006-01-02"))
		return nil
	}
	if cfg.ArticlesPerQuery <= 0 {
		cfg.ArticlesPerQuery = 5
	}
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = 8
	}

	// results[i][j] holds the articles for source i, query j so the merge
	// order is independent of completion order.
	results := make([][][]models.Article, len(r.sources))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(cfg.MaxConcurrent)
	for i, src := range r.sources {
		qs := queries[src.Name()]
		results[i] = make([][]models.Article, len(qs))
		for j, q := range qs {
			cleaned := CleanQuery(q.Text)
			if cleaned == "" {
				continue
			}
			g.Go(func() error {
				articles, err := src.Search(gctx, cleaned, from, to, cfg.ArticlesPerQuery)
				if err != nil {
					// Per-query failures are skipped, not fatal.
					r.logger.Printf("%s search %q failed: %v", src.Name(), cleaned, err)
					return nil
				}
				for k := range articles {
					articles[k].SearchTerm = q.Text
				}
				results[i][j] = articles
				r.telemetry.RecordArticles(src.Name(), len(articles))
				return nil
			})
		}
	}
	_ = g.Wait()

	var merged []models.Article
	for _, perSource := range results {
		for _, perQuery := range perSource {
			for _, a := range perQuery {
				if len(a.Text) <= cfg.MinBodyChars {
					continue
				}
				merged = append(merged, a)
			}
		}
	}
	return Deduplicate(merged)
}
