package parse

import "strings"

// CharsPerToken is the approximation used for OpenAI-family models; no
// exact tokenizer is shipped, the pipeline only needs budget estimates.
const CharsPerToken = 4

// CountTokens estimates how many tokens text occupies for the given
// model. Anthropic models tokenize denser prose, so a chars/3 heuristic
// is used for them.
func CountTokens(text, model string) int {
	if strings.Contains(strings.ToLower(model), "claude") {
		return len(text) / 3
	}
	return len(text) / CharsPerToken
}

// TruncateTokens cuts text to roughly maxTokens, word-aligned. Texts
// already under the budget are returned unchanged.
func TruncateTokens(text, model string, maxTokens int) string {
	if CountTokens(text, model) <= maxTokens {
		return text
	}
	words := strings.Fields(text)
	var b strings.Builder
	for _, w := range words {
		if CountTokens(b.String()+" "+w, model) > maxTokens {
			break
		}
		if b.Len() > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(w)
	}
	return b.String()
}
