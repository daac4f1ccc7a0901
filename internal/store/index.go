package store

import (
	"context"
	"fmt"
	"os"

	"github.com/blevesearch/bleve"

	"github.com/mohammad-safakhou/foresight/internal/models"
)

// ArticleIndex is the local BM25 index over retrieved articles. It backs
// the keyword ranking method and the search command.
type ArticleIndex struct {
	index bleve.Index
}

type articleDoc struct {
	Title      string `json:"title"`
	Text       string `json:"text"`
	SiteName   string `json:"site_name"`
	SearchTerm string `json:"search_term"`
}

// NewArticleIndex opens the index at path, creating it when absent. An
// empty path yields a memory-only index.
func NewArticleIndex(path string) (*ArticleIndex, error) {
	if path == "" {
		idx, err := bleve.NewMemOnly(bleve.NewIndexMapping())
		if err != nil {
			return nil, err
		}
		return &ArticleIndex{index: idx}, nil
	}
	idx, err := bleve.Open(path)
	if os.IsNotExist(err) || err == bleve.ErrorIndexPathDoesNotExist {
		idx, err = bleve.New(path, bleve.NewIndexMapping())
	}
	if err != nil {
		return nil, fmt.Errorf("open article index: %w", err)
	}
	return &ArticleIndex{index: idx}, nil
}

func (ai *ArticleIndex) Close() error { return ai.index.Close() }

// IndexArticles adds articles to the index keyed by link, so repeated
// retrievals of the same article overwrite rather than duplicate.
func (ai *ArticleIndex) IndexArticles(_ context.Context, articles []models.Article) error {
	batch := ai.index.NewBatch()
	for _, a := range articles {
		if a.Link == "" {
			continue
		}
		doc := articleDoc{Title: a.Title, Text: a.Text, SiteName: a.SiteName, SearchTerm: a.SearchTerm}
		if err := batch.Index(a.Link, doc); err != nil {
			return err
		}
	}
	return ai.index.Batch(batch)
}

// Scores rates the given articles against a query. The pool is indexed
// into a throwaway memory index so scores are relative to the pool, not
// to everything ever retrieved; articles the query does not match score 0.
func (ai *ArticleIndex) Scores(_ context.Context, query string, articles []models.Article) ([]float64, error) {
	scratch, err := bleve.NewMemOnly(bleve.NewIndexMapping())
	if err != nil {
		return nil, err
	}
	defer scratch.Close()

	batch := scratch.NewBatch()
	for i, a := range articles {
		doc := articleDoc{Title: a.Title, Text: a.Text, SiteName: a.SiteName, SearchTerm: a.SearchTerm}
		if err := batch.Index(fmt.Sprintf("%d", i), doc); err != nil {
			return nil, err
		}
	}
	if err := scratch.Batch(batch); err != nil {
		return nil, err
	}

	req := bleve.NewSearchRequestOptions(bleve.NewMatchQuery(query), len(articles), 0, false)
	res, err := scratch.Search(req)
	if err != nil {
		return nil, err
	}

	scores := make([]float64, len(articles))
	for _, hit := range res.Hits {
		var i int
		if _, err := fmt.Sscanf(hit.ID, "%d", &i); err != nil {
			continue
		}
		if i >= 0 && i < len(scores) {
			scores[i] = hit.Score
		}
	}
	return scores, nil
}

// SearchHit is one persistent-index match.
type SearchHit struct {
	Link  string
	Score float64
}

// Search queries the persistent index.
func (ai *ArticleIndex) Search(_ context.Context, query string, limit int) ([]SearchHit, error) {
	if limit <= 0 {
		limit = 10
	}
	req := bleve.NewSearchRequestOptions(bleve.NewQueryStringQuery(query), limit, 0, false)
	res, err := ai.index.Search(req)
	if err != nil {
		return nil, err
	}
	out := make([]SearchHit, 0, len(res.Hits))
	for _, hit := range res.Hits {
		out = append(out, SearchHit{Link: hit.ID, Score: hit.Score})
	}
	return out, nil
}
