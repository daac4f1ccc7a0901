package forecast

import (
	"context"
	"path"
	"regexp"
	"strconv"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/mohammad-safakhou/foresight/internal/models"
)

// BatchConfig parameterizes a batch run over a question file.
type BatchConfig struct {
	Workers int
	// OutputPrefix namespaces idempotence keys so separate experiments do
	// not collide in the shared cache.
	OutputPrefix string
}

// BatchReport summarizes a batch run. MeanBrier averages the Brier
// scores of resolved questions, cached results included; Scored counts
// how many contributed.
type BatchReport struct {
	Succeeded int
	Failed    int
	Skipped   int
	Scored    int
	MeanBrier float64
}

var keySanitizeRe = regexp.MustCompile(`[^a-zA-Z0-9._-]+`)

const maxKeyLen = 150

// IdempotenceKey derives the cache key for one (question, retrieval
// index) pair. Question titles are free text, so everything outside a
// safe character set collapses to underscores.
func IdempotenceKey(prefix string, retrievalIndex int, q models.Question) string {
	name := keySanitizeRe.ReplaceAllString(q.Title, "_")
	if len(name) > maxKeyLen {
		name = name[:maxKeyLen]
	}
	return path.Join(prefix, strconv.Itoa(retrievalIndex), name)
}

// RunBatch forecasts every question with a bounded worker pool. Questions
// whose idempotence key already holds a record are skipped, reusing the
// cached Brier score; failures are logged and counted but never abort the
// batch.
func (p *Pipeline) RunBatch(ctx context.Context, questions []models.Question, cfg Config, batch BatchConfig) BatchReport {
	workers := batch.Workers
	if workers <= 0 {
		workers = 4
	}

	var succeeded, failed, skipped atomic.Int64
	var mu sync.Mutex
	var brierSum float64
	var scored int
	addBrier := func(rec models.ForecastRecord) {
		if rec.BrierScore == nil {
			return
		}
		mu.Lock()
		brierSum += *rec.BrierScore
		scored++
		mu.Unlock()
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for _, q := range questions {
		g.Go(func() error {
			key := IdempotenceKey(batch.OutputPrefix, cfg.RetrievalIndex, q)
			if p.cache != nil {
				cached, ok, err := p.cache.Load(gctx, key)
				if err != nil {
					p.logger.Printf("idempotence check for %q: %v", q.Title, err)
				} else if ok {
					addBrier(cached)
					skipped.Add(1)
					return nil
				}
			}

			rec, err := p.Run(gctx, q, cfg)
			if err != nil {
				p.logger.Printf("forecast for %q failed: %v", q.Title, err)
				failed.Add(1)
				return nil
			}
			if p.cache != nil {
				if err := p.cache.Save(gctx, key, rec); err != nil {
					p.logger.Printf("caching forecast for %q: %v", q.Title, err)
				}
			}
			addBrier(rec)
			succeeded.Add(1)
			return nil
		})
	}
	_ = g.Wait()

	report := BatchReport{
		Succeeded: int(succeeded.Load()),
		Failed:    int(failed.Load()),
		Skipped:   int(skipped.Load()),
		Scored:    scored,
	}
	if scored > 0 {
		report.MeanBrier = brierSum / float64(scored)
	}
	return report
}
