package llm

import (
	"context"

	"github.com/npsettle/portquery/internal/intent"
)

// Service defines the interface for query-generation backends
type Service interface {
	GenerateQuery(ctx context.Context, req Request) (*QueryResponse, error)
	Configure(config Config) error
}

// Request carries everything a backend needs to produce a query. HTTP
// providers consume the schema-grounded prompt; the rule-based fallback
// works from the classified intent directly.
type Request struct {
	Prompt string
	Intent intent.Intent
}

// Config represents LLM service configuration
type Config struct {
	Provider   string `json:"provider"` // openai, azure, anthropic, ollama, local
	Model      string `json:"model"`
	APIKey     string `json:"api_key,omitempty"`
	BaseURL    string `json:"base_url,omitempty"`
	Deployment string `json:"deployment,omitempty"`  // azure deployment name
	APIVersion string `json:"api_version,omitempty"` // azure api-version query param
}

// QueryResponse is the structured generation result
type QueryResponse struct {
	SQL         string  `json:"sql"`
	Explanation string  `json:"explanation"`
	Confidence  float64 `json:"confidence"`
	Reasoning   string  `json:"reasoning"`
}

// Provider constants for the supported backends
const (
	ProviderOpenAI    = "openai"
	ProviderAzure     = "azure"
	ProviderAnthropic = "anthropic"
	ProviderOllama    = "ollama"
	ProviderLocal     = "local"
)
