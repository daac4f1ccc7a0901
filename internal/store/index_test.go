package store

import (
	"context"
	"testing"

	"github.com/mohammad-safakhou/foresight/internal/models"
)

func indexArticles() []models.Article {
	return []models.Article{
		{Title: "Rocket launch delayed to June", Link: "https://example.com/a", Text: "The rocket launch slipped after a fueling issue on the pad."},
		{Title: "Quarterly earnings beat estimates", Link: "https://example.com/b", Text: "The company reported strong revenue growth this quarter."},
		{Title: "Launch window confirmed", Link: "https://example.com/c", Text: "Officials confirmed the launch window for the rocket."},
	}
}

func TestScoresRankMatchingArticles(t *testing.T) {
	idx, err := NewArticleIndex("")
	if err != nil {
		t.Fatalf("new index: %v", err)
	}
	defer idx.Close()

	articles := indexArticles()
	scores, err := idx.Scores(context.Background(), "rocket launch", articles)
	if err != nil {
		t.Fatalf("scores: %v", err)
	}
	if len(scores) != len(articles) {
		t.Fatalf("got %d scores for %d articles", len(scores), len(articles))
	}
	if scores[0] <= 0 || scores[2] <= 0 {
		t.Errorf("launch articles scored %v and %v, want > 0", scores[0], scores[2])
	}
	if scores[1] >= scores[0] {
		t.Errorf("earnings article (%v) outscored launch article (%v)", scores[1], scores[0])
	}
}

func TestSearchFindsIndexedArticles(t *testing.T) {
	idx, err := NewArticleIndex("")
	if err != nil {
		t.Fatalf("new index: %v", err)
	}
	defer idx.Close()

	if err := idx.IndexArticles(context.Background(), indexArticles()); err != nil {
		t.Fatalf("index articles: %v", err)
	}

	hits, err := idx.Search(context.Background(), "fueling issue", 10)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(hits) == 0 {
		t.Fatal("no hits for indexed article")
	}
	if hits[0].Link != "https://example.com/a" {
		t.Errorf("top hit = %q, want https://example.com/a", hits[0].Link)
	}
}

func TestIndexArticlesOverwritesByLink(t *testing.T) {
	idx, err := NewArticleIndex("")
	if err != nil {
		t.Fatalf("new index: %v", err)
	}
	defer idx.Close()

	a := models.Article{Title: "First title", Link: "https://example.com/a", Text: "original text"}
	if err := idx.IndexArticles(context.Background(), []models.Article{a}); err != nil {
		t.Fatal(err)
	}
	a.Title = "Updated title"
	if err := idx.IndexArticles(context.Background(), []models.Article{a}); err != nil {
		t.Fatal(err)
	}

	count, err := idx.index.DocCount()
	if err != nil {
		t.Fatal(err)
	}
	if count != 1 {
		t.Errorf("doc count = %d, want 1", count)
	}
}
