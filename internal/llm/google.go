package llm

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/mohammad-safakhou/foresight/internal/httpx"
)

const googleBaseURL = "https://generativelanguage.googleapis.com/v1beta/models"

// googleClient talks to the Gemini REST API directly; there is no system
// role, so the system prompt is folded into the user text.
type googleClient struct {
	apiKey string
	http   *httpx.Client
}

func newGoogleClient(apiKey string, timeout time.Duration) *googleClient {
	return &googleClient{
		apiKey: apiKey,
		http:   httpx.NewClient(timeout, 0, 0),
	}
}

func (c *googleClient) complete(ctx context.Context, req Request) (string, error) {
	prompt := req.Prompt
	if req.System != "" {
		prompt = req.System + "\n\n" + req.Prompt
	}

	body := map[string]interface{}{
		"contents": []map[string]interface{}{
			{"parts": []map[string]string{{"text": prompt}}},
		},
		"generationConfig": map[string]interface{}{
			"temperature":     req.Temperature,
			"maxOutputTokens": req.MaxTokens,
		},
	}

	var out struct {
		Candidates []struct {
			Content struct {
				Parts []struct {
					Text string `json:"text"`
				} `json:"parts"`
			} `json:"content"`
		} `json:"candidates"`
	}

	url := fmt.Sprintf("%s/%s:generateContent?key=%s", googleBaseURL, req.Model, c.apiKey)
	if err := c.http.DoJSON(ctx, http.MethodPost, url, nil, body, &out); err != nil {
		return "", err
	}
	if len(out.Candidates) == 0 || len(out.Candidates[0].Content.Parts) == 0 {
		return "", fmt.Errorf("empty gemini response")
	}
	text := ""
	for _, p := range out.Candidates[0].Content.Parts {
		text += p.Text
	}
	return text, nil
}
