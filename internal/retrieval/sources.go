// Package retrieval turns a forecasting question into a deduplicated pool
// of normalized articles: query planning, concurrent multi-source search,
// full-text fetching and merge.
package retrieval

import (
	"context"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/mohammad-safakhou/foresight/internal/httpx"
	"github.com/mohammad-safakhou/foresight/internal/models"
)

// Source is one news search backend. Implementations validate nothing
// about the date range; the retriever does that before calling.
type Source interface {
	Name() string
	Search(ctx context.Context, query string, from, to time.Time, limit int) ([]models.Article, error)
}

// queryStripChars are characters (and their URL encodings) that break the
// search backends when left inside a query.
var queryStripChars = []string{
	"[", "]", "/", "\\", "%5B", "%5D", "%2F", "%5C", ":", "%3A", "^", "%5E",
}

// CleanQuery removes characters the news APIs reject.
func CleanQuery(q string) string {
	for _, c := range queryStripChars {
		q = strings.ReplaceAll(q, c, "")
	}
	return strings.TrimSpace(q)
}

// NewscatcherClient searches the Newscatcher v2 API.
type NewscatcherClient struct {
	APIKey string
	HTTP   *httpx.Client
}

func NewNewscatcherClient(apiKey string, client *httpx.Client) *NewscatcherClient {
	if client == nil {
		client = httpx.NewClient(20*time.Second, 2, 500*time.Millisecond)
	}
	return &NewscatcherClient{APIKey: apiKey, HTTP: client}
}

func (c *NewscatcherClient) Name() string { return "newscatcher" }

func (c *NewscatcherClient) Search(ctx context.Context, query string, from, to time.Time, limit int) ([]models.Article, error) {
	params := url.Values{}
	params.Set("q", query)
	params.Set("lang", "en")
	params.Set("sort_by", "relevancy")
	params.Set("from", from.Format("2006/01/02"))
	params.Set("to", to.Format("2006/01/02"))
	params.Set("page_size", strconv.Itoa(max1(limit)))

	var resp struct {
		Status   string `json:"status"`
		Articles []struct {
			Title         string `json:"title"`
			Link          string `json:"link"`
			PublishedDate string `json:"published_date"`
			Summary       string `json:"summary"`
			CleanURL      string `json:"clean_url"`
		} `json:"articles"`
	}
	headers := map[string]string{"x-api-key": c.APIKey}
	if err := c.HTTP.GetJSON(ctx, "https://api.newscatcherapi.com/v2/search", params, headers, &resp); err != nil {
		return nil, err
	}

	out := make([]models.Article, 0, len(resp.Articles))
	for _, a := range resp.Articles {
		if len(out) >= max1(limit) {
			break
		}
		published, _ := time.Parse("2006-01-02 15:04:05", a.PublishedDate)
		out = append(out, models.NewArticle(a.Title, a.Link, published, a.Summary, query, a.CleanURL))
	}
	return out, nil
}

// GNewsClient searches the GNews v4 API.
type GNewsClient struct {
	APIKey string
	HTTP   *httpx.Client
}

func NewGNewsClient(apiKey string, client *httpx.Client) *GNewsClient {
	if client == nil {
		client = httpx.NewClient(20*time.Second, 2, 500*time.Millisecond)
	}
	return &GNewsClient{APIKey: apiKey, HTTP: client}
}

func (c *GNewsClient) Name() string { return "gnews" }

func (c *GNewsClient) Search(ctx context.Context, query string, from, to time.Time, limit int) ([]models.Article, error) {
	params := url.Values{}
	params.Set("q", query)
	params.Set("lang", "en")
	params.Set("from", from.UTC().Format(time.RFC3339))
	params.Set("to", to.UTC().Format(time.RFC3339))
	params.Set("max", strconv.Itoa(max1(limit)))
	params.Set("apikey", c.APIKey)

	var resp struct {
		Articles []struct {
			Title       string `json:"title"`
			Description string `json:"description"`
			Content     string `json:"content"`
			URL         string `json:"url"`
			PublishedAt string `json:"publishedAt"`
			Source      struct {
				Name string `json:"name"`
			} `json:"source"`
		} `json:"articles"`
	}
	if err := c.HTTP.GetJSON(ctx, "https://gnews.io/api/v4/search", params, nil, &resp); err != nil {
		return nil, err
	}

	out := make([]models.Article, 0, len(resp.Articles))
	for _, a := range resp.Articles {
		if len(out) >= max1(limit) {
			break
		}
		published, _ := time.Parse(time.RFC3339, a.PublishedAt)
		text := a.Content
		if text == "" {
			text = a.Description
		}
		out = append(out, models.NewArticle(a.Title, a.URL, published, text, query, a.Source.Name))
	}
	return out, nil
}

func max1(n int) int {
	if n < 1 {
		return 1
	}
	return n
}
