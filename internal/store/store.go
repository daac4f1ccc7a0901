// Package store persists forecast runs in Postgres and caches finished
// records in Redis for idempotent batch reruns.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"time"

	_ "github.com/lib/pq"

	"github.com/mohammad-safakhou/foresight/internal/models"
)

type Store struct {
	DB *sql.DB
}

func New(ctx context.Context) (*Store, error) {
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		host := getenvDefault("POSTGRES_HOST", "localhost")
		port := getenvDefault("POSTGRES_PORT", "5432")
		user := os.Getenv("POSTGRES_USER")
		pass := os.Getenv("POSTGRES_PASSWORD")
		db := os.Getenv("POSTGRES_DB")
		ssl := getenvDefault("POSTGRES_SSLMODE", "disable")
		dsn = fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s", user, pass, host, port, db, ssl)
	}
	return NewWithDSN(ctx, dsn)
}

// NewWithDSN constructs the Store using an explicit Postgres DSN
func NewWithDSN(ctx context.Context, dsn string) (*Store, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.PingContext(ctx); err != nil {
		return nil, err
	}
	return &Store{DB: db}, nil
}

func getenvDefault(k, def string) string {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	return v
}

// User operations
func (s *Store) CreateUser(ctx context.Context, email, hash string) error {
	_, err := s.DB.ExecContext(ctx, `INSERT INTO users (email, password_hash) VALUES ($1,$2)`, email, hash)
	return err
}

func (s *Store) GetUserByEmail(ctx context.Context, email string) (id string, hash string, err error) {
	err = s.DB.QueryRowContext(ctx, `SELECT id, password_hash FROM users WHERE email=$1`, email).Scan(&id, &hash)
	return
}

// ForecastSummary is the list-view projection of a stored forecast.
type ForecastSummary struct {
	RunID          string    `json:"run_id"`
	QuestionID     string    `json:"question_id"`
	Title          string    `json:"title"`
	Category       string    `json:"category,omitempty"`
	RetrievalIndex int       `json:"retrieval_index"`
	Probability    float64   `json:"probability"`
	Token          string    `json:"token,omitempty"`
	BrierScore     *float64  `json:"brier_score,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

// SaveForecast stores the full record. Articles and the ensemble result
// are kept as JSON documents; the fields the API lists and filters on are
// promoted to columns.
func (s *Store) SaveForecast(ctx context.Context, rec models.ForecastRecord) error {
	question, err := json.Marshal(rec.Question)
	if err != nil {
		return fmt.Errorf("marshal question: %w", err)
	}
	articles, err := json.Marshal(rec.Articles)
	if err != nil {
		return fmt.Errorf("marshal articles: %w", err)
	}
	result, err := json.Marshal(rec.Result)
	if err != nil {
		return fmt.Errorf("marshal result: %w", err)
	}
	alignment, err := json.Marshal(rec.AlignmentScores)
	if err != nil {
		return fmt.Errorf("marshal alignment scores: %w", err)
	}
	_, err = s.DB.ExecContext(ctx, `
INSERT INTO forecast_runs (run_id, question_id, title, category, retrieval_index, question, articles, digest, result, probability, token, alignment_scores, brier_score, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)`,
		rec.RunID, rec.Question.ID, rec.Question.Title, rec.Question.Category, rec.RetrievalIndex,
		question, articles, rec.Digest, result, rec.Result.Probability, rec.Result.Token,
		alignment, rec.BrierScore, rec.CreatedAt)
	return err
}

// GetForecast loads one full record by run id.
func (s *Store) GetForecast(ctx context.Context, runID string) (models.ForecastRecord, error) {
	var rec models.ForecastRecord
	var question, articles, result, alignment []byte
	err := s.DB.QueryRowContext(ctx, `
SELECT run_id, retrieval_index, question, articles, digest, result, alignment_scores, brier_score, created_at
FROM forecast_runs WHERE run_id=$1`, runID).Scan(
		&rec.RunID, &rec.RetrievalIndex, &question, &articles, &rec.Digest, &result, &alignment, &rec.BrierScore, &rec.CreatedAt)
	if err != nil {
		return models.ForecastRecord{}, err
	}
	if err := json.Unmarshal(question, &rec.Question); err != nil {
		return models.ForecastRecord{}, fmt.Errorf("unmarshal question: %w", err)
	}
	if err := json.Unmarshal(articles, &rec.Articles); err != nil {
		return models.ForecastRecord{}, fmt.Errorf("unmarshal articles: %w", err)
	}
	if err := json.Unmarshal(result, &rec.Result); err != nil {
		return models.ForecastRecord{}, fmt.Errorf("unmarshal result: %w", err)
	}
	if err := json.Unmarshal(alignment, &rec.AlignmentScores); err != nil {
		return models.ForecastRecord{}, fmt.Errorf("unmarshal alignment scores: %w", err)
	}
	return rec, nil
}

// ListForecasts returns summaries newest-first, optionally filtered by
// question id.
func (s *Store) ListForecasts(ctx context.Context, questionID string, limit int) ([]ForecastSummary, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `
SELECT run_id, question_id, title, category, retrieval_index, probability, token, brier_score, created_at
FROM forecast_runs`
	args := []interface{}{}
	if questionID != "" {
		query += ` WHERE question_id=$1 ORDER BY created_at DESC LIMIT $2`
		args = append(args, questionID, limit)
	} else {
		query += ` ORDER BY created_at DESC LIMIT $1`
		args = append(args, limit)
	}
	rows, err := s.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []ForecastSummary
	for rows.Next() {
		var f ForecastSummary
		if err := rows.Scan(&f.RunID, &f.QuestionID, &f.Title, &f.Category, &f.RetrievalIndex, &f.Probability, &f.Token, &f.BrierScore, &f.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

// LatestByQuestion returns the newest summary per question id, for the
// scheduler to decide which questions are due a fresh retrieval.
func (s *Store) LatestByQuestion(ctx context.Context) ([]ForecastSummary, error) {
	rows, err := s.DB.QueryContext(ctx, `
SELECT DISTINCT ON (question_id) run_id, question_id, title, category, retrieval_index, probability, token, brier_score, created_at
FROM forecast_runs ORDER BY question_id, created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []ForecastSummary
	for rows.Next() {
		var f ForecastSummary
		if err := rows.Scan(&f.RunID, &f.QuestionID, &f.Title, &f.Category, &f.RetrievalIndex, &f.Probability, &f.Token, &f.BrierScore, &f.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, rows.Err()
}
