package server

import (
	"context"
	"database/sql"
	"errors"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/mohammad-safakhou/foresight/internal/forecast"
	"github.com/mohammad-safakhou/foresight/internal/models"
	"github.com/mohammad-safakhou/foresight/internal/store"
)

// ForecastsHandler serves forecast submission and retrieval. Submissions
// run asynchronously; the pipeline persists the record when it finishes.
type ForecastsHandler struct {
	Store    *store.Store
	Pipeline *forecast.Pipeline
	// BuildConfig assembles the per-run pipeline config for a retrieval
	// index.
	BuildConfig func(retrievalIndex int) (forecast.Config, error)
	Logger      *log.Logger
}

func (h *ForecastsHandler) Register(g *echo.Group, secret []byte) {
	g.Use(AuthMiddleware(secret))
	g.POST("", h.create)
	g.GET("", h.list)
	g.GET("/:id", h.get)
}

func (h *ForecastsHandler) create(c echo.Context) error {
	var req CreateForecastRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if req.Question.Title == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "question title is required")
	}
	if !req.Question.DateEnd.After(req.Question.DateBegin) {
		return echo.NewHTTPError(http.StatusBadRequest, "date_end must be after date_begin")
	}
	if req.Question.ID == "" {
		req.Question.ID = uuid.NewString()
	}

	cfg, err := h.BuildConfig(req.RetrievalIndex)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	cfg.RunID = uuid.NewString()

	go func(q models.Question, cfg forecast.Config) {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Minute)
		defer cancel()
		if _, err := h.Pipeline.Run(ctx, q, cfg); err != nil {
			h.Logger.Printf("forecast run %s failed: %v", cfg.RunID, err)
		}
	}(req.Question, cfg)

	return c.JSON(http.StatusAccepted, ForecastAcceptedResponse{
		RunID:     cfg.RunID,
		Status:    "running",
		CreatedAt: time.Now().UTC(),
	})
}

func (h *ForecastsHandler) get(c echo.Context) error {
	rec, err := h.Store.GetForecast(c.Request().Context(), c.Param("id"))
	if errors.Is(err, sql.ErrNoRows) {
		return echo.NewHTTPError(http.StatusNotFound, "forecast not found")
	}
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, rec)
}

func (h *ForecastsHandler) list(c echo.Context) error {
	limit, _ := strconv.Atoi(c.QueryParam("limit"))
	list, err := h.Store.ListForecasts(c.Request().Context(), c.QueryParam("question_id"), limit)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if list == nil {
		list = []store.ForecastSummary{}
	}
	return c.JSON(http.StatusOK, list)
}
