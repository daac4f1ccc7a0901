// Package llm provides the completion and embedding capabilities behind
// the pipeline: a model-name registry, a provider router dispatching to
// OpenAI, Anthropic, Together and Google, and a bounded retry policy.
package llm

import "fmt"

// Source identifies a model provider family.
type Source string

const (
	SourceOpenAI    Source = "openai"
	SourceAnthropic Source = "anthropic"
	SourceTogether  Source = "together"
	SourceGoogle    Source = "google"
)

// UnknownModelError is returned when a model name has no registered
// source. Callers must treat it as fatal for the request rather than
// guessing a provider.
type UnknownModelError struct {
	Model string
}

func (e *UnknownModelError) Error() string {
	return fmt.Sprintf("model %q is not registered with any provider", e.Model)
}

var modelSources = map[string]Source{
	"claude-2.1":               SourceAnthropic,
	"claude-2":                 SourceAnthropic,
	"claude-3-opus-20240229":   SourceAnthropic,
	"claude-3-sonnet-20240229": SourceAnthropic,

	"gpt-4":              SourceOpenAI,
	"gpt-3.5-turbo-1106": SourceOpenAI,
	"gpt-3.5-turbo-16k":  SourceOpenAI,
	"gpt-3.5-turbo":      SourceOpenAI,
	"gpt-4-1106-preview": SourceOpenAI,

	"gemini-pro": SourceGoogle,

	"togethercomputer/llama-2-7b-chat":             SourceTogether,
	"togethercomputer/llama-2-13b-chat":            SourceTogether,
	"togethercomputer/llama-2-70b-chat":            SourceTogether,
	"togethercomputer/LLaMA-2-7B-32K":              SourceTogether,
	"togethercomputer/StripedHyena-Hessian-7B":     SourceTogether,
	"mistralai/Mistral-7B-Instruct-v0.2":           SourceTogether,
	"mistralai/Mixtral-8x7B-Instruct-v0.1":         SourceTogether,
	"zero-one-ai/Yi-34B-Chat":                      SourceTogether,
	"NousResearch/Nous-Hermes-2-Mixtral-8x7B-DPO":  SourceTogether,
	"NousResearch/Nous-Hermes-2-Yi-34B":            SourceTogether,
}

var modelTokenLimits = map[string]int{
	"claude-2.1":               200000,
	"claude-2":                 100000,
	"claude-3-opus-20240229":   200000,
	"claude-3-sonnet-20240229": 200000,

	"gpt-4":              8000,
	"gpt-3.5-turbo-1106": 16000,
	"gpt-3.5-turbo-16k":  16000,
	"gpt-3.5-turbo":      8000,
	"gpt-4-1106-preview": 128000,

	"gemini-pro": 30720,

	"togethercomputer/llama-2-7b-chat":             4096,
	"togethercomputer/llama-2-13b-chat":            4096,
	"togethercomputer/llama-2-70b-chat":            4096,
	"togethercomputer/StripedHyena-Hessian-7B":     32768,
	"togethercomputer/LLaMA-2-7B-32K":              32768,
	"mistralai/Mistral-7B-Instruct-v0.2":           32768,
	"mistralai/Mixtral-8x7B-Instruct-v0.1":         32768,
	"zero-one-ai/Yi-34B-Chat":                      4096,
	"NousResearch/Nous-Hermes-2-Mixtral-8x7B-DPO":  32768,
	"NousResearch/Nous-Hermes-2-Yi-34B":            32768,
}

const defaultTokenLimit = 4096

// InferSource maps a model name to its provider family. Fine-tuned OpenAI
// models ("ft:gpt...") are routed to OpenAI; any other unregistered name
// is an UnknownModelError.
func InferSource(model string) (Source, error) {
	if s, ok := modelSources[model]; ok {
		return s, nil
	}
	if len(model) > 6 && model[:6] == "ft:gpt" {
		return SourceOpenAI, nil
	}
	return "", &UnknownModelError{Model: model}
}

// TokenLimit returns the context window for model, falling back to a
// conservative default for unregistered names.
func TokenLimit(model string) int {
	if l, ok := modelTokenLimits[model]; ok {
		return l
	}
	return defaultTokenLimit
}
