package openrouter

import "fmt"

// Model is a supported model identifier. The set is closed: callers pass
// one of the constants below (or a string parsed by ParseModel at the
// boundary) and the client maps it to the wire-level OpenRouter name.
type Model string

const (
	ModelClaude3Haiku  Model = "claude-3-haiku"
	ModelClaude3Sonnet Model = "claude-3-sonnet"
	ModelClaude3Opus   Model = "claude-3-opus"
	ModelGPT4          Model = "gpt-4"
	ModelGPT4Turbo     Model = "gpt-4-turbo"
	ModelGPT35Turbo    Model = "gpt-3.5-turbo"
	ModelGeminiFlash   Model = "gemini-flash"
	ModelGeminiPro     Model = "gemini-pro"
	ModelLlama3_8B     Model = "llama-3-8b"
	ModelLlama3_70B    Model = "llama-3-70b"
	ModelMixtral8x7B   Model = "mixtral-8x7b"
)

// DefaultModel is used when no model is configured for a conversation.
const DefaultModel = ModelClaude3Haiku

// visionModel backs AnalyzeImage; it must be a vision-capable completion
// model.
const visionModel Model = "claude-3-opus-vision"

var wireNames = map[Model]string{
	ModelClaude3Haiku:  "anthropic/claude-3-haiku",
	ModelClaude3Sonnet: "anthropic/claude-3-sonnet",
	ModelClaude3Opus:   "anthropic/claude-3-opus-20240229",
	ModelGPT4:          "openai/gpt-4",
	ModelGPT4Turbo:     "openai/gpt-4-turbo",
	ModelGPT35Turbo:    "openai/gpt-3.5-turbo",
	ModelGeminiFlash:   "google/gemini-flash-1.5-8b",
	ModelGeminiPro:     "google/gemini-pro",
	ModelLlama3_8B:     "meta-llama/llama-3-8b-instruct",
	ModelLlama3_70B:    "meta-llama/llama-3-70b-instruct",
	ModelMixtral8x7B:   "mistralai/mixtral-8x7b-instruct",
	visionModel:        "anthropic/claude-3-opus-20240229",
}

// ParseModel validates an externally supplied model identifier.
func ParseModel(s string) (Model, error) {
	if s == "" {
		return DefaultModel, nil
	}
	m := Model(s)
	if m == visionModel {
		return "", fmt.Errorf("openrouter: model %q is reserved for vision analysis", s)
	}
	if _, ok := wireNames[m]; !ok {
		return "", fmt.Errorf("openrouter: unsupported model %q", s)
	}
	return m, nil
}

// Wire returns the OpenRouter wire name for a model.
func (m Model) Wire() (string, error) {
	name, ok := wireNames[m]
	if !ok {
		return "", fmt.Errorf("openrouter: unsupported model %q", string(m))
	}
	return name, nil
}
