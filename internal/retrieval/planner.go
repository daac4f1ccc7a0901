package retrieval

import (
	"context"
	"fmt"
	"log"
	"strconv"
	"strings"

	"github.com/mohammad-safakhou/foresight/internal/llm"
	"github.com/mohammad-safakhou/foresight/internal/models"
	"github.com/mohammad-safakhou/foresight/internal/parse"
	"github.com/mohammad-safakhou/foresight/internal/prompts"
)

// PlannerConfig parameterizes query generation. Word limits differ per
// backend because Newscatcher degrades on long queries.
type PlannerConfig struct {
	Model               string
	Temperature         float64
	Templates           []prompts.Template
	NumKeywords         int
	MaxWordsNewscatcher int
	MaxWordsGNews       int
}

// Plan holds one backend-tuned query list per news source.
type Plan struct {
	Newscatcher []models.SearchQuery
	GNews       []models.SearchQuery
}

// Planner generates short search queries from a question, once per
// (template, backend) pair.
type Planner struct {
	llm    llm.CompletionClient
	logger *log.Logger
}

func NewPlanner(client llm.CompletionClient, logger *log.Logger) *Planner {
	if logger == nil {
		logger = log.New(log.Writer(), "[PLANNER] ", log.LstdFlags)
	}
	return &Planner{llm: client, logger: logger}
}

// Plan renders every configured template for both backends, issues all
// completions concurrently, and parses the query lists. A response with
// the wrong query count is logged and used as-is; the original question
// is always appended as a guaranteed query.
func (p *Planner) Plan(ctx context.Context, q models.Question, cfg PlannerConfig) (Plan, error) {
	if len(cfg.Templates) == 0 {
		return Plan{}, fmt.Errorf("planner: no query templates configured")
	}

	type slot struct {
		backend  string
		template string
	}
	var reqs []llm.Request
	var slots []slot
	for _, backend := range []struct {
		name     string
		maxWords int
	}{
		{"newscatcher", cfg.MaxWordsNewscatcher},
		{"gnews", cfg.MaxWordsGNews},
	} {
		for _, tpl := range cfg.Templates {
			prompt, err := tpl.Render(map[string]string{
				"question":     q.Title,
				"background":   q.Background,
				"date_begin":   q.DateBegin.Format("2006-01-02"),
				"date_end":     q.DateEnd.Format("2006-01-02"),
				"num_keywords": strconv.Itoa(cfg.NumKeywords),
				"max_words":    strconv.Itoa(backend.maxWords),
			})
			if err != nil {
				return Plan{}, err
			}
			reqs = append(reqs, llm.Request{
				Model:       cfg.Model,
				Prompt:      prompt,
				MaxTokens:   500,
				Temperature: cfg.Temperature,
			})
			slots = append(slots, slot{backend: backend.name, template: tpl.ID})
		}
	}

	responses, err := p.llm.CompleteMany(ctx, reqs)
	if err != nil {
		return Plan{}, fmt.Errorf("planner: %w", err)
	}

	var plan Plan
	for i, resp := range responses {
		queries := parse.ParseSearchQueries(resp)
		if len(queries) != cfg.NumKeywords {
			p.logger.Printf("template %s (%s) returned %d queries, wanted %d; proceeding",
				slots[i].template, slots[i].backend, len(queries), cfg.NumKeywords)
		}
		for _, text := range queries {
			sq := models.SearchQuery{Text: text, Template: slots[i].template}
			switch slots[i].backend {
			case "newscatcher":
				plan.Newscatcher = append(plan.Newscatcher, sq)
			case "gnews":
				plan.GNews = append(plan.GNews, sq)
			}
		}
	}

	// The question itself is always searched.
	question := models.SearchQuery{Text: q.Title, Template: "question"}
	plan.Newscatcher = append(plan.Newscatcher, question)
	plan.GNews = append(plan.GNews, question)

	plan.Newscatcher = dedupeQueries(plan.Newscatcher)
	plan.GNews = dedupeQueries(plan.GNews)
	return plan, nil
}

func dedupeQueries(queries []models.SearchQuery) []models.SearchQuery {
	seen := make(map[string]struct{}, len(queries))
	out := queries[:0]
	for _, q := range queries {
		key := strings.ToLower(strings.TrimSpace(q.Text))
		if key == "" {
			continue
		}
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, q)
	}
	return out
}
