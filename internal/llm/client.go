package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

// Client implements the Service interface with multiple provider support
type Client struct {
	config     Config
	httpClient *http.Client
}

// NewClient creates a new LLM client with the given configuration
func NewClient(config Config) *Client {
	return &Client{
		config: config,
		httpClient: &http.Client{
			Timeout: 60 * time.Second,
		},
	}
}

// Configure validates and applies the provider configuration
func (c *Client) Configure(config Config) error {
	if config.Provider == "" {
		return fmt.Errorf("provider is required")
	}

	if config.Model == "" && config.Provider != ProviderAzure {
		return fmt.Errorf("model is required")
	}

	switch config.Provider {
	case ProviderOpenAI:
		if config.APIKey == "" {
			return fmt.Errorf("API key is required for OpenAI provider")
		}

		if config.BaseURL == "" {
			config.BaseURL = "https://api.openai.com/v1"
		}
	case ProviderAzure:
		if config.APIKey == "" {
			return fmt.Errorf("API key is required for Azure OpenAI provider")
		}

		if config.BaseURL == "" {
			return fmt.Errorf("endpoint base URL is required for Azure OpenAI provider")
		}

		if config.Deployment == "" {
			return fmt.Errorf("deployment name is required for Azure OpenAI provider")
		}

		if config.APIVersion == "" {
			config.APIVersion = "2024-02-15-preview"
		}
	case ProviderAnthropic:
		if config.APIKey == "" {
			return fmt.Errorf("API key is required for Anthropic provider")
		}

		if config.BaseURL == "" {
			config.BaseURL = "https://api.anthropic.com/v1"
		}
	case ProviderOllama, ProviderLocal:
		if config.BaseURL == "" {
			config.BaseURL = "http://localhost:11434"
		}
	default:
		return fmt.Errorf("unsupported provider: %s", config.Provider)
	}

	c.config = config

	return nil
}

// GenerateQuery sends the prompt to the configured provider and decodes the
// structured JSON response.
func (c *Client) GenerateQuery(ctx context.Context, req Request) (*QueryResponse, error) {
	if c.config.Provider == "" {
		return nil, fmt.Errorf("LLM client not configured")
	}

	switch c.config.Provider {
	case ProviderOpenAI:
		return c.generateOpenAI(ctx, c.config.BaseURL+"/chat/completions", req.Prompt)
	case ProviderAzure:
		return c.generateOpenAI(ctx, c.azureURL(), req.Prompt)
	case ProviderAnthropic:
		return c.generateAnthropic(ctx, req.Prompt)
	case ProviderOllama, ProviderLocal:
		return c.generateOllama(ctx, req.Prompt)
	default:
		return nil, fmt.Errorf("unsupported provider: %s", c.config.Provider)
	}
}

// azureURL builds the deployment-scoped chat completions endpoint
func (c *Client) azureURL() string {
	return fmt.Sprintf("%s/openai/deployments/%s/chat/completions?api-version=%s",
		c.config.BaseURL, c.config.Deployment, url.QueryEscape(c.config.APIVersion))
}

// OpenAI-compatible API structures (also served by Azure OpenAI)
type openAIRequest struct {
	Model          string                `json:"model,omitempty"`
	Messages       []openAIMessage       `json:"messages"`
	Temperature    float64               `json:"temperature,omitempty"`
	MaxTokens      int                   `json:"max_tokens,omitempty"`
	ResponseFormat *openAIResponseFormat `json:"response_format,omitempty"`
}

type openAIMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type openAIResponseFormat struct {
	Type string `json:"type"`
}

type openAIResponse struct {
	Choices []openAIChoice `json:"choices"`
	Error   *openAIError   `json:"error,omitempty"`
}

type openAIChoice struct {
	Message openAIMessage `json:"message"`
}

type openAIError struct {
	Message string `json:"message"`
	Type    string `json:"type"`
	Code    string `json:"code"`
}

func (c *Client) generateOpenAI(ctx context.Context, endpoint, prompt string) (*QueryResponse, error) {
	reqBody := openAIRequest{
		Model: c.config.Model,
		Messages: []openAIMessage{
			{Role: "user", Content: prompt},
		},
		Temperature:    0.1,
		MaxTokens:      1000,
		ResponseFormat: &openAIResponseFormat{Type: "json_object"},
	}

	headers := map[string]string{
		"Authorization": "Bearer " + c.config.APIKey,
	}
	if c.config.Provider == ProviderAzure {
		// Azure authenticates with an api-key header instead of a bearer token
		headers = map[string]string{"api-key": c.config.APIKey}
	}

	respBody, err := c.makeRequest(ctx, endpoint, reqBody, headers)
	if err != nil {
		return nil, err
	}

	var response openAIResponse
	if err := json.Unmarshal(respBody, &response); err != nil {
		return nil, fmt.Errorf("failed to parse OpenAI response: %w", err)
	}

	if response.Error != nil {
		return nil, fmt.Errorf("OpenAI API error: %s", response.Error.Message)
	}

	if len(response.Choices) == 0 {
		return nil, fmt.Errorf("no response from OpenAI")
	}

	var queryResp QueryResponse
	if err := json.Unmarshal([]byte(response.Choices[0].Message.Content), &queryResp); err != nil {
		return nil, fmt.Errorf("failed to parse query JSON: %w", err)
	}

	return &queryResp, nil
}

// Anthropic API structures
type anthropicRequest struct {
	Model     string             `json:"model"`
	Messages  []anthropicMessage `json:"messages"`
	MaxTokens int                `json:"max_tokens"`
	System    string             `json:"system,omitempty"`
}

type anthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type anthropicResponse struct {
	Content []anthropicContent `json:"content"`
	Error   *anthropicError    `json:"error,omitempty"`
}

type anthropicContent struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type anthropicError struct {
	Message string `json:"message"`
	Type    string `json:"type"`
}

func (c *Client) generateAnthropic(ctx context.Context, prompt string) (*QueryResponse, error) {
	reqBody := anthropicRequest{
		Model:     c.config.Model,
		MaxTokens: 1000,
		Messages: []anthropicMessage{
			{Role: "user", Content: prompt},
		},
	}

	headers := map[string]string{
		"x-api-key":         c.config.APIKey,
		"anthropic-version": "2023-06-01",
	}

	respBody, err := c.makeRequest(ctx, c.config.BaseURL+"/messages", reqBody, headers)
	if err != nil {
		return nil, err
	}

	var response anthropicResponse
	if err := json.Unmarshal(respBody, &response); err != nil {
		return nil, fmt.Errorf("failed to parse Anthropic response: %w", err)
	}

	if response.Error != nil {
		return nil, fmt.Errorf("Anthropic API error: %s", response.Error.Message)
	}

	if len(response.Content) == 0 {
		return nil, fmt.Errorf("no response from Anthropic")
	}

	var queryResp QueryResponse
	if err := json.Unmarshal([]byte(response.Content[0].Text), &queryResp); err != nil {
		return nil, fmt.Errorf("failed to parse query JSON: %w", err)
	}

	return &queryResp, nil
}

// Ollama API structures
type ollamaRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
	Stream bool   `json:"stream"`
	Format string `json:"format,omitempty"`
}

type ollamaResponse struct {
	Response string `json:"response"`
	Done     bool   `json:"done"`
	Error    string `json:"error,omitempty"`
}

func (c *Client) generateOllama(ctx context.Context, prompt string) (*QueryResponse, error) {
	reqBody := ollamaRequest{
		Model:  c.config.Model,
		Prompt: prompt,
		Stream: false,
		Format: "json",
	}

	respBody, err := c.makeRequest(ctx, c.config.BaseURL+"/api/generate", reqBody, nil)
	if err != nil {
		return nil, err
	}

	var response ollamaResponse
	if err := json.Unmarshal(respBody, &response); err != nil {
		return nil, fmt.Errorf("failed to parse Ollama response: %w", err)
	}

	if response.Error != "" {
		return nil, fmt.Errorf("Ollama API error: %s", response.Error)
	}

	var queryResp QueryResponse
	if err := json.Unmarshal([]byte(response.Response), &queryResp); err != nil {
		return nil, fmt.Errorf("failed to parse query JSON: %w", err)
	}

	return &queryResp, nil
}

func (c *Client) makeRequest(ctx context.Context, endpoint string, reqBody interface{}, headers map[string]string) ([]byte, error) {
	jsonBody, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewBuffer(jsonBody))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")

	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to make request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("API request failed with status %d: %s", resp.StatusCode, string(body))
	}

	return body, nil
}
