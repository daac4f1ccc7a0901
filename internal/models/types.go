package models

import (
	"strings"
	"time"
)

// Question is a binary forecasting question with the metadata needed to
// retrieve evidence and elicit predictions.
type Question struct {
	ID                 string    `json:"id"`
	Title              string    `json:"title"`
	Background         string    `json:"background"`
	ResolutionCriteria string    `json:"resolution_criteria"`
	DateBegin          time.Time `json:"date_begin"`
	DateEnd            time.Time `json:"date_end"`
	Category           string    `json:"category,omitempty"`

	// Resolution is set once the question has resolved; used for scoring.
	Resolved   bool    `json:"resolved,omitempty"`
	Resolution float64 `json:"resolution,omitempty"`
}

// Article is a normalized evidence unit produced by the retriever and
// enriched stage by stage. Summary starts as the full text and is replaced
// by the summarizer; Rating stays unset until the ranker runs.
type Article struct {
	Title           string    `json:"title"`
	Link            string    `json:"link"`
	PublishDate     time.Time `json:"publish_date,omitempty"`
	Text            string    `json:"text"`
	Summary         string    `json:"summary"`
	SearchTerm      string    `json:"search_term,omitempty"`
	SiteName        string    `json:"site_name,omitempty"`
	Rating          float64   `json:"rating,omitempty"`
	Rated           bool      `json:"rated,omitempty"`
	RatingReasoning string    `json:"rating_reasoning,omitempty"`
}

func NewArticle(title, link string, published time.Time, text, searchTerm, site string) Article {
	return Article{
		Title:       strings.TrimSpace(title),
		Link:        strings.TrimSpace(link),
		PublishDate: published,
		Text:        text,
		Summary:     text,
		SearchTerm:  searchTerm,
		SiteName:    site,
	}
}

// DedupKey identifies an article for merge purposes.
func (a Article) DedupKey() (link, title string) {
	return strings.ToLower(a.Link), strings.ToLower(a.Title)
}

// SearchQuery is a short search string tagged with the prompt template that
// produced it. Ephemeral within one retrieval pass.
type SearchQuery struct {
	Text     string `json:"text"`
	Template string `json:"template"`
}

// AnswerType selects how a forecaster's output is interpreted.
type AnswerType string

const (
	AnswerProbability AnswerType = "probability"
	AnswerToken       AnswerType = "token"
)

// BaseReasoning is one forecaster's full deliberation for one
// (model, prompt template) pair, with the prediction extracted from it.
type BaseReasoning struct {
	Model       string  `json:"model"`
	Template    string  `json:"template"`
	Prompt      string  `json:"prompt"`
	Output      string  `json:"output"`
	Probability float64 `json:"probability"`
	Token       string  `json:"token,omitempty"`
}

// EnsembleResult is the aggregated outcome for one question. Base
// reasonings keep their (model, template) grouping. MetaPrompt and
// MetaReasoning are nil unless the meta strategy issued a second-order
// call.
type EnsembleResult struct {
	BaseReasonings    [][]BaseReasoning `json:"base_reasonings"`
	BaseProbabilities [][]float64       `json:"base_probabilities"`
	Probability       float64           `json:"probability"`
	Token             string            `json:"token,omitempty"`
	MetaPrompt        *string           `json:"meta_prompt,omitempty"`
	MetaReasoning     *string           `json:"meta_reasoning,omitempty"`
}

// FlatReasonings returns all base reasonings in input order.
func (r EnsembleResult) FlatReasonings() []BaseReasoning {
	var out []BaseReasoning
	for _, group := range r.BaseReasonings {
		out = append(out, group...)
	}
	return out
}

// ForecastRecord is the full per-question output persisted after a run.
type ForecastRecord struct {
	RunID           string         `json:"run_id"`
	Question        Question       `json:"question"`
	RetrievalIndex  int            `json:"retrieval_index"`
	Articles        []Article      `json:"articles"`
	Digest          string         `json:"digest"`
	Result          EnsembleResult `json:"result"`
	AlignmentScores []float64      `json:"alignment_scores,omitempty"`
	BrierScore      *float64       `json:"brier_score,omitempty"`
	CreatedAt       time.Time      `json:"created_at"`
}

// QuestionCategories is the fixed label set carried on stored records.
var QuestionCategories = []string{
	"Science & Tech",
	"Healthcare & Biology",
	"Economics & Business",
	"Environment & Energy",
	"Politics & Governance",
	"Education & Research",
	"Arts & Recreation",
	"Security & Defense",
	"Social Sciences",
	"Sports",
	"Other",
}
