package server

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/mohammad-safakhou/foresight/config"
	"github.com/mohammad-safakhou/foresight/internal/ensemble"
	"github.com/mohammad-safakhou/foresight/internal/forecast"
	"github.com/mohammad-safakhou/foresight/internal/rank"
	"github.com/mohammad-safakhou/foresight/internal/retrieval"
	"github.com/mohammad-safakhou/foresight/internal/store"
	"github.com/mohammad-safakhou/foresight/internal/summarize"
	"github.com/mohammad-safakhou/foresight/internal/telemetry"

	llmpkg "github.com/mohammad-safakhou/foresight/internal/llm"
)

// Run wires storage, the LLM router and the pipeline, then serves the
// API until the listener fails.
func Run(cfg *config.Config) error {
	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Recover())
	baseLogger := log.New(log.Writer(), "[HTTP] ", log.LstdFlags)
	e.HTTPErrorHandler = func(err error, c echo.Context) {
		code := http.StatusInternalServerError
		msg := err.Error()
		if he, ok := err.(*echo.HTTPError); ok {
			code = he.Code
			if he.Message != nil {
				msg = fmt.Sprint(he.Message)
			}
		}
		req := c.Request()
		baseLogger.Printf("%d %s %s from %s: %v", code, req.Method, req.URL.Path, c.RealIP(), err)
		if !c.Response().Committed {
			_ = c.JSON(code, map[string]interface{}{"error": msg})
		}
	}
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins:     []string{"*"},
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Content-Type", "Cookie", "Authorization"},
		AllowCredentials: true,
	}))

	tele := telemetry.New()
	e.GET("/healthz", func(c echo.Context) error { return c.String(200, "ok") })
	e.GET("/metrics", echo.WrapHandler(tele.Handler()))

	ctx := context.Background()

	dsn, err := cfg.Storage.Postgres.DSN()
	if err != nil {
		return err
	}
	if err := Migrate("file://migrations", dsn, "up", 0); err != nil {
		baseLogger.Printf("migrate up: %v", err)
	}
	st, err := store.NewWithDSN(ctx, dsn)
	if err != nil {
		return err
	}

	var cache *store.Cache
	if cfg.Storage.Redis.Host != "" {
		cache, err = store.NewCache(ctx, cfg.Storage.Redis.Addr(), cfg.Storage.Redis.Password, cfg.Storage.Redis.DB, cfg.Storage.Redis.TTL)
		if err != nil {
			return err
		}
	}

	index, err := store.NewArticleIndex(cfg.Storage.IndexPath)
	if err != nil {
		return err
	}

	pipeline, err := BuildPipeline(cfg, st, cache, index, tele)
	if err != nil {
		return err
	}

	secret := cfg.Server.JWTSecret
	if secret == "" {
		return fmt.Errorf("jwt secret not configured (server.jwt_secret)")
	}
	auth := &AuthHandler{Store: st, Secret: []byte(secret)}

	api := e.Group("/api")
	auth.Register(api.Group("/auth"))

	fh := &ForecastsHandler{
		Store:       st,
		Pipeline:    pipeline,
		BuildConfig: cfg.PipelineConfig,
		Logger:      log.New(log.Writer(), "[FORECASTS] ", log.LstdFlags),
	}
	fh.Register(api.Group("/forecasts"), auth.Secret)

	sched := &Scheduler{
		Store:       st,
		Pipeline:    pipeline,
		BuildConfig: cfg.PipelineConfig,
		Cron:        cfg.Server.ScheduleCron,
		Stop:        make(chan struct{}),
		Logger:      log.New(log.Writer(), "[SCHED] ", log.LstdFlags),
	}
	if cache != nil {
		sched.Rdb = cache.Client()
	}
	sched.Start()

	addr := cfg.Server.Address
	if addr == "" {
		addr = ":10001"
	}
	log.Printf("listening on %s", addr)
	return e.Start(addr)
}

// BuildPipeline assembles the forecast pipeline from configuration.
// Optional sinks may be nil.
func BuildPipeline(cfg *config.Config, st *store.Store, cache *store.Cache, index *store.ArticleIndex, tele *telemetry.Telemetry) (*forecast.Pipeline, error) {
	router := llmpkg.NewRouter(cfg.LLMConfig(), nil, tele)

	var sources []retrieval.Source
	if cfg.Providers.NewscatcherKey != "" {
		sources = append(sources, retrieval.NewNewscatcherClient(cfg.Providers.NewscatcherKey, nil))
	}
	if cfg.Providers.GNewsKey != "" {
		sources = append(sources, retrieval.NewGNewsClient(cfg.Providers.GNewsKey, nil))
	}
	if len(sources) == 0 {
		return nil, fmt.Errorf("no news sources configured (providers.newscatcher_key or providers.gnews_key)")
	}

	var keyword rank.KeywordScorer
	if index != nil {
		keyword = index
	}
	opts := forecast.Options{
		Planner:    retrieval.NewPlanner(router, nil),
		Retriever:  retrieval.NewRetriever(sources, nil, tele),
		Fetcher:    retrieval.NewFetcher(15*time.Second, 20000),
		Ranker:     rank.NewRanker(router, router, keyword, nil),
		Summarizer: summarize.NewSummarizer(router, nil),
		Reasoner:   ensemble.NewReasoner(router, nil),
		Aligner:    ensemble.NewAligner(router, nil),
		Embedder:   router,
		Telemetry:  tele,
	}
	if st != nil {
		opts.Store = st
	}
	if cache != nil {
		opts.Cache = cache
	}
	if index != nil {
		opts.Indexer = index
	}
	return forecast.NewPipeline(opts), nil
}
