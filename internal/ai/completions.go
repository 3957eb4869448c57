package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/suPer8Hu/vidblog/internal/pipeline"
)

// CompletionsProvider talks to any /chat/completions endpoint in the OpenAI
// wire format. OpenAI and OpenRouter are both served by it.
type CompletionsProvider struct {
	Name    string
	BaseURL string
	APIKey  string
	Model   string
	// Extra headers sent with every request (OpenRouter attribution).
	Headers map[string]string
	// JSONMode asks the backend for a JSON object response.
	JSONMode bool
	Client   *http.Client
}

type completionsMsg struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type responseFormat struct {
	Type string `json:"type"`
}

type completionsReq struct {
	Model          string           `json:"model"`
	Messages       []completionsMsg `json:"messages"`
	Stream         bool             `json:"stream"`
	ResponseFormat *responseFormat  `json:"response_format,omitempty"`
}

type completionsResp struct {
	Choices []struct {
		Message completionsMsg `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

func NewOpenAIProvider(baseURL, apiKey, model string) *CompletionsProvider {
	if baseURL == "" {
		baseURL = "https://api.openai.com/v1"
	}
	if model == "" {
		model = "gpt-4o-mini"
	}
	return &CompletionsProvider{
		Name:     "openai",
		BaseURL:  baseURL,
		APIKey:   apiKey,
		Model:    model,
		JSONMode: true,
		Client:   &http.Client{Timeout: 90 * time.Second},
	}
}

func NewOpenRouterProvider(baseURL, apiKey, model, siteURL, appName string) *CompletionsProvider {
	if baseURL == "" {
		baseURL = "https://openrouter.ai/api/v1"
	}
	headers := map[string]string{}
	if siteURL != "" {
		headers["HTTP-Referer"] = siteURL
	}
	if appName != "" {
		headers["X-Title"] = appName
	}
	return &CompletionsProvider{
		Name:    "openrouter",
		BaseURL: baseURL,
		APIKey:  apiKey,
		Model:   model,
		Headers: headers,
		Client:  &http.Client{Timeout: 90 * time.Second},
	}
}

func (p *CompletionsProvider) Chat(ctx context.Context, messages []Message) (string, error) {
	if p.Client == nil {
		return "", fmt.Errorf("%s: http client is nil", p.Name)
	}
	if strings.TrimSpace(p.APIKey) == "" {
		return "", pipeline.Errorf(pipeline.KindAuthentication, "", "%s: api key is required", p.Name)
	}
	model := strings.TrimSpace(p.Model)
	if model == "" {
		return "", fmt.Errorf("%s: model is required", p.Name)
	}

	reqBody := completionsReq{Model: model}
	for _, m := range messages {
		reqBody.Messages = append(reqBody.Messages, completionsMsg{Role: m.Role, Content: m.Content})
	}
	if p.JSONMode {
		reqBody.ResponseFormat = &responseFormat{Type: "json_object"}
	}

	b, err := json.Marshal(reqBody)
	if err != nil {
		return "", err
	}

	url := fmt.Sprintf("%s/chat/completions", strings.TrimRight(p.BaseURL, "/"))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(b))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+p.APIKey)
	for k, v := range p.Headers {
		req.Header.Set(k, v)
	}

	resp, err := p.Client.Do(req)
	if err != nil {
		return "", pipeline.Wrap(pipeline.KindExternalService, "", p.Name+": request failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", pipeline.ResponseError(p.Name, resp)
	}

	var decoded completionsResp
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return "", pipeline.Wrap(pipeline.KindExternalService, "", p.Name+": decode response", err)
	}
	if decoded.Error != nil && decoded.Error.Message != "" {
		return "", pipeline.Errorf(pipeline.KindExternalService, "", "%s: %s", p.Name, decoded.Error.Message)
	}
	if len(decoded.Choices) == 0 {
		return "", errors.New(p.Name + ": empty response")
	}
	return decoded.Choices[0].Message.Content, nil
}
