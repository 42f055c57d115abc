package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/ppiankov/virasat/internal/httpclient"
)

// DefaultGeminiBaseURL is the Generative Language API host
const DefaultGeminiBaseURL = "https://generativelanguage.googleapis.com"

// GeminiProvider implements the Provider interface for Google Gemini models
// through the Generative Language REST API
type GeminiProvider struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
	config     Config
}

// Generative Language API structures
type geminiRequest struct {
	Contents         []geminiContent         `json:"contents"`
	GenerationConfig *geminiGenerationConfig `json:"generationConfig,omitempty"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiPart struct {
	Text       string            `json:"text,omitempty"`
	InlineData *geminiInlineData `json:"inlineData,omitempty"`
}

type geminiInlineData struct {
	MimeType string `json:"mimeType"`
	Data     string `json:"data"`
}

type geminiGenerationConfig struct {
	Temperature     float64 `json:"temperature,omitempty"`
	MaxOutputTokens int     `json:"maxOutputTokens,omitempty"`
}

type geminiResponse struct {
	Candidates []struct {
		Content *geminiContent `json:"content"`
	} `json:"candidates"`
	UsageMetadata *struct {
		TotalTokenCount int `json:"totalTokenCount"`
	} `json:"usageMetadata"`
	ModelVersion string `json:"modelVersion"`
}

type geminiError struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Status  string `json:"status"`
	} `json:"error"`
}

// NewGeminiProvider creates a new Gemini provider
func NewGeminiProvider(config Config) (*GeminiProvider, error) {
	if config.APIKey == "" {
		return nil, fmt.Errorf("Gemini API key is required")
	}

	baseURL := config.BaseURL
	if baseURL == "" {
		baseURL = DefaultGeminiBaseURL
	}

	return &GeminiProvider{
		apiKey:  config.APIKey,
		baseURL: strings.TrimSuffix(baseURL, "/"),
		httpClient: httpclient.New(httpclient.Options{
			Timeout:    timeoutOf(config, 30*time.Second),
			HTTPProxy:  config.HTTPProxy,
			HTTPSProxy: config.HTTPSProxy,
			NoProxy:    config.NoProxy,
		}),
		config: config,
	}, nil
}

// Name returns the provider name
func (p *GeminiProvider) Name() string {
	return "gemini"
}

// Ping lists one model, a lightweight authenticated call
func (p *GeminiProvider) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+"/v1beta/models?pageSize=1", nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("x-goog-api-key", p.apiKey)

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("Gemini API check failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("Gemini API check failed: HTTP %d", resp.StatusCode)
	}
	return nil
}

// Analyze sends the prompt and inline image through generateContent
func (p *GeminiProvider) Analyze(ctx context.Context, req AnalyzeRequest) (*AnalyzeResponse, error) {
	prompt, model, mimeType, maxTokens, err := p.config.resolve(req, "gemini-2.5-flash-lite")
	if err != nil {
		return nil, err
	}
	model = strings.TrimPrefix(model, "models/")

	apiReq := geminiRequest{
		Contents: []geminiContent{
			{
				Role: "user",
				Parts: []geminiPart{
					{Text: prompt},
					{InlineData: &geminiInlineData{MimeType: mimeType, Data: req.ImageData}},
				},
			},
		},
		GenerationConfig: &geminiGenerationConfig{
			Temperature:     temperature,
			MaxOutputTokens: maxTokens,
		},
	}

	var resp geminiResponse
	url := fmt.Sprintf("%s/v1beta/models/%s:generateContent", p.baseURL, model)
	headers := map[string]string{"x-goog-api-key": p.apiKey}
	err = postJSON(ctx, p.httpClient, url, headers, apiReq, &resp, func(body []byte) string {
		var apiErr geminiError
		if json.Unmarshal(body, &apiErr) != nil || apiErr.Error.Message == "" {
			return ""
		}
		return apiErr.Error.Status + " - " + apiErr.Error.Message
	})
	if err != nil {
		return nil, fmt.Errorf("Gemini API error: %w", err)
	}

	var text strings.Builder
	for _, cand := range resp.Candidates {
		if cand.Content == nil {
			continue
		}
		for _, part := range cand.Content.Parts {
			text.WriteString(part.Text)
		}
		break
	}
	if text.Len() == 0 {
		return nil, fmt.Errorf("no content in Gemini response")
	}

	tokens := 0
	if resp.UsageMetadata != nil {
		tokens = resp.UsageMetadata.TotalTokenCount
	}

	return &AnalyzeResponse{
		Text:       strings.TrimSpace(text.String()),
		Model:      model,
		TokensUsed: tokens,
	}, nil
}
