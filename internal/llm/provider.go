package llm

import (
	"context"
	"fmt"

	"github.com/ppiankov/virasat/internal/model"
)

// Provider defines the interface for multimodal model vendors
type Provider interface {
	// Name returns the provider name
	Name() string

	// Analyze sends one prompt plus one inline image and returns the raw text reply
	Analyze(ctx context.Context, req AnalyzeRequest) (*AnalyzeResponse, error)

	// Ping checks that the provider is configured and reachable
	Ping(ctx context.Context) error
}

// AnalyzeRequest contains the input for a single image analysis
type AnalyzeRequest struct {
	// Prompt is the instruction text (if empty, HeritagePrompt is used)
	Prompt string

	// ImageData is the base64 encoded image, without a data-URL prefix
	ImageData string

	// MIMEType of the image (e.g. image/jpeg)
	MIMEType string

	// Model overrides the configured model
	Model string

	// MaxTokens limits the response length
	MaxTokens int
}

// AnalyzeResponse contains the model's raw reply
type AnalyzeResponse struct {
	// Text is the unparsed model output (may be wrapped in code fences)
	Text string

	// Model is the model that generated the response
	Model string

	// TokensUsed tracks token consumption
	TokensUsed int
}

// Config holds LLM provider configuration
type Config struct {
	// Provider name: "gemini", "openai", "anthropic", "ollama"
	Provider string

	// Model name (provider-specific)
	Model string

	// APIKey for hosted vendors
	APIKey string

	// BaseURL for custom endpoints (e.g., Ollama, test servers)
	BaseURL string

	// Timeout for API requests
	Timeout int // seconds

	// MaxTokens for response generation
	MaxTokens int

	// Proxy settings
	HTTPProxy  string
	HTTPSProxy string
	NoProxy    string
}

// DefaultConfig returns sensible defaults
func DefaultConfig() Config {
	return Config{
		Provider:  "gemini",
		Model:     "gemini-2.5-flash-lite",
		Timeout:   30,
		MaxTokens: 1024,
	}
}

// ConfigFromModel converts model.AIConfig to llm.Config
func ConfigFromModel(c model.AIConfig) Config {
	return Config{
		Provider:   c.Provider,
		Model:      c.Model,
		APIKey:     c.APIKey,
		BaseURL:    c.BaseURL,
		Timeout:    c.Timeout,
		MaxTokens:  c.MaxTokens,
		HTTPProxy:  c.HTTPProxy,
		HTTPSProxy: c.HTTPSProxy,
		NoProxy:    c.NoProxy,
	}
}

// resolve fills request defaults from the provider config
func (c Config) resolve(req AnalyzeRequest, defaultModel string) (prompt, modelName, mimeType string, maxTokens int, err error) {
	if req.ImageData == "" {
		return "", "", "", 0, fmt.Errorf("image data is required")
	}

	prompt = req.Prompt
	if prompt == "" {
		prompt = HeritagePrompt
	}

	modelName = req.Model
	if modelName == "" {
		modelName = c.Model
	}
	if modelName == "" {
		modelName = defaultModel
	}

	mimeType = req.MIMEType
	if mimeType == "" {
		mimeType = "image/jpeg"
	}

	maxTokens = req.MaxTokens
	if maxTokens == 0 {
		maxTokens = c.MaxTokens
	}
	if maxTokens == 0 {
		maxTokens = 1024
	}

	return prompt, modelName, mimeType, maxTokens, nil
}

// temperature keeps the classification output focused
const temperature = 0.2
