package server

import (
	"context"
	"log"
	"time"

	"github.com/gorhill/cronexpr"
	"github.com/redis/go-redis/v9"

	"github.com/mohammad-safakhou/foresight/internal/forecast"
	"github.com/mohammad-safakhou/foresight/internal/models"
	"github.com/mohammad-safakhou/foresight/internal/store"
)

// Scheduler periodically re-forecasts stored questions whose retrieval
// window is still open, so long-horizon questions pick up fresh evidence.
type Scheduler struct {
	Store       *store.Store
	Pipeline    *forecast.Pipeline
	BuildConfig func(retrievalIndex int) (forecast.Config, error)
	Rdb         *redis.Client
	Cron        string
	Stop        chan struct{}
	Logger      *log.Logger
}

func (s *Scheduler) Start() {
	ticker := time.NewTicker(1 * time.Hour)
	go func() {
		for {
			select {
			case <-s.Stop:
				ticker.Stop()
				return
			case <-ticker.C:
				s.tick()
			}
		}
	}()
}

func (s *Scheduler) tick() {
	ctx := context.Background()
	latest, err := s.Store.LatestByQuestion(ctx)
	if err != nil {
		s.Logger.Printf("scheduler: listing questions: %v", err)
		return
	}
	for _, f := range latest {
		if !isDue(s.Cron, f.CreatedAt) {
			continue
		}
		rec, err := s.Store.GetForecast(ctx, f.RunID)
		if err != nil {
			s.Logger.Printf("scheduler: loading run %s: %v", f.RunID, err)
			continue
		}
		if rec.Question.Resolved || !rec.Question.DateEnd.After(time.Now()) {
			continue
		}

		// distributed lock to avoid duplicate runs
		if s.Rdb != nil {
			lockKey := "foresight:sched:lock:" + rec.Question.ID
			ok, _ := s.Rdb.SetNX(ctx, lockKey, "1", 2*time.Minute).Result()
			if !ok {
				continue
			}
		}

		go func(q models.Question, retrievalIndex int) {
			cfg, err := s.BuildConfig(retrievalIndex)
			if err != nil {
				s.Logger.Printf("scheduler: config for %q: %v", q.Title, err)
				return
			}
			runCtx, cancel := context.WithTimeout(context.Background(), 30*time.Minute)
			defer cancel()
			if _, err := s.Pipeline.Run(runCtx, q, cfg); err != nil {
				s.Logger.Printf("scheduler: forecast %q: %v", q.Title, err)
			}
		}(rec.Question, rec.RetrievalIndex+1)
	}
}

func isDue(cronSpec string, last time.Time) bool {
	now := time.Now()
	switch cronSpec {
	case "", "@daily":
		return now.Sub(last) >= 24*time.Hour
	case "@hourly":
		return now.Sub(last) >= time.Hour
	default:
		expr, err := cronexpr.Parse(cronSpec)
		if err != nil {
			return now.Sub(last) >= 24*time.Hour
		}
		return expr.Next(last).Before(now)
	}
}
