package models

import "strings"

// providerPatterns is checked in order; mistral names must win over llama.
var providerPatterns = []struct {
	provider string
	needles  []string
}{
	{"OpenAI", []string{"gpt-", "davinci", "turbo", "o1-", "o3-", "o4-"}},
	{"Anthropic", []string{"claude", "opus", "sonnet", "haiku"}},
	{"Google", []string{"gemini", "palm"}},
	{"DeepSeek", []string{"deepseek"}},
	{"Qwen", []string{"qwen"}},
	{"xAI", []string{"grok"}},
	{"Mistral", []string{"mistral", "mixtral", "codestral"}},
	{"Ollama", []string{"llama"}},
	{"Cohere", []string{"command", "cohere"}},
}

// DetectProvider infers the provider for a model name when callers omit it.
// Unknown names return "".
func DetectProvider(model string) string {
	ml := strings.ToLower(strings.TrimSpace(model))
	if ml == "" {
		return ""
	}
	for _, p := range providerPatterns {
		for _, n := range p.needles {
			if strings.Contains(ml, n) {
				return p.provider
			}
		}
	}
	return ""
}

// WithProvider fills Provider from the model name when it is empty.
func (m ModelConfig) WithProvider() ModelConfig {
	if m.Provider == "" {
		m.Provider = DetectProvider(m.Model)
	}
	return m
}
