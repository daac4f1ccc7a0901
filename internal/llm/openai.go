package llm

import (
	"context"
	"fmt"
	"strings"

	openai "github.com/sashabaranov/go-openai"
)

const (
	togetherBaseURL = "https://api.together.xyz/v1"
	embeddingModel  = string(openai.LargeEmbedding3)
)

// openAIClient serves both the OpenAI API and Together's
// OpenAI-compatible endpoint (base URL override).
type openAIClient struct {
	client *openai.Client
}

func newOpenAIClient(apiKey, baseURL string) *openAIClient {
	if baseURL == "" {
		return &openAIClient{client: openai.NewClient(apiKey)}
	}
	cfg := openai.DefaultConfig(apiKey)
	cfg.BaseURL = baseURL
	return &openAIClient{client: openai.NewClientWithConfig(cfg)}
}

func (c *openAIClient) complete(ctx context.Context, req Request) (string, error) {
	name := strings.ToLower(req.Model)
	// Reasoning models take no system message or temperature.
	reasoning := strings.Contains(name, "o1") || strings.Contains(name, "o3") || strings.Contains(name, "o4")

	var ccr openai.ChatCompletionRequest
	if reasoning {
		prompt := req.Prompt
		if req.System != "" {
			prompt = req.System + "\n\n" + req.Prompt
		}
		ccr = openai.ChatCompletionRequest{
			Model:               req.Model,
			MaxCompletionTokens: req.MaxTokens,
			Messages: []openai.ChatCompletionMessage{
				{Role: openai.ChatMessageRoleUser, Content: prompt},
			},
		}
	} else {
		msgs := []openai.ChatCompletionMessage{}
		if req.System != "" {
			msgs = append(msgs, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: req.System})
		}
		msgs = append(msgs, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: req.Prompt})
		ccr = openai.ChatCompletionRequest{
			Model:       req.Model,
			Temperature: float32(req.Temperature),
			MaxTokens:   req.MaxTokens,
			Messages:    msgs,
		}
	}

	resp, err := c.client.CreateChatCompletion(ctx, ccr)
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("empty completion response")
	}
	return resp.Choices[0].Message.Content, nil
}

func (c *openAIClient) embed(ctx context.Context, texts []string) ([][]float32, error) {
	// Newlines degrade embedding quality; flatten them first.
	inputs := make([]string, len(texts))
	for i, t := range texts {
		inputs[i] = strings.ReplaceAll(t, "\n", " ")
	}

	resp, err := c.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input: inputs,
		Model: openai.LargeEmbedding3,
	})
	if err != nil {
		return nil, err
	}
	if len(resp.Data) != len(texts) {
		return nil, fmt.Errorf("embedding count mismatch: sent %d, got %d", len(texts), len(resp.Data))
	}
	vecs := make([][]float32, len(resp.Data))
	for _, d := range resp.Data {
		if d.Index < 0 || d.Index >= len(vecs) {
			return nil, fmt.Errorf("embedding index %d out of range", d.Index)
		}
		vecs[d.Index] = d.Embedding
	}
	return vecs, nil
}
