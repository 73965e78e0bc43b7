package llm

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/npsettle/portquery/internal/config"
	"github.com/npsettle/portquery/internal/logging"
)

// Manager handles multiple LLM providers with fallback strategies
type Manager struct {
	providers map[string]Service
	fallback  Service
	config    ManagerConfig
	logger    *logging.Logger
}

// ManagerConfig configures the LLM manager behavior
type ManagerConfig struct {
	DefaultProvider   string        `json:"default_provider"`
	FallbackProviders []string      `json:"fallback_providers"`
	RetryAttempts     int           `json:"retry_attempts"`
	RetryDelay        time.Duration `json:"retry_delay"`
	Timeout           time.Duration `json:"timeout"`
	EnableFallback    bool          `json:"enable_fallback"`
}

// NewManager creates a new LLM manager with the given configuration
func NewManager(cfg ManagerConfig, logger *logging.Logger) *Manager {
	if logger == nil {
		if logging.GetLogger() == nil {
			logging.SetupFallbackLogger()
		}

		logger = logging.GetLogger()
	}

	return &Manager{
		providers: make(map[string]Service),
		fallback:  NewFallbackService(),
		config:    cfg,
		logger:    logger,
	}
}

// NewManagerFromConfig builds a manager with a single HTTP provider from
// application configuration.
func NewManagerFromConfig(llmCfg config.LLMConfig, logger *logging.Logger) (*Manager, error) {
	manager := NewManager(ManagerConfig{
		DefaultProvider: llmCfg.Provider,
		RetryAttempts:   llmCfg.RetryAttempts,
		RetryDelay:      llmCfg.RetryDelayDuration(),
		Timeout:         llmCfg.TimeoutDuration(),
		EnableFallback:  llmCfg.EnableFallback,
	}, logger)

	client := NewClient(Config{})

	err := client.Configure(Config{
		Provider:   llmCfg.Provider,
		Model:      llmCfg.Model,
		APIKey:     llmCfg.APIKey,
		BaseURL:    llmCfg.BaseURL,
		Deployment: llmCfg.Deployment,
		APIVersion: llmCfg.APIVersion,
	})
	if err != nil {
		// No usable provider; the manager still works through the
		// rule-based fallback when that is enabled.
		if !llmCfg.EnableFallback {
			return nil, fmt.Errorf("failed to configure provider %s: %w", llmCfg.Provider, err)
		}

		manager.logger.Warnf("provider %s not configured, relying on rule-based fallback: %v",
			llmCfg.Provider, err)

		return manager, nil
	}

	if err := manager.RegisterProvider(llmCfg.Provider, client); err != nil {
		return nil, err
	}

	return manager, nil
}

// RegisterProvider registers a new LLM provider
func (m *Manager) RegisterProvider(name string, service Service) error {
	if name == "" {
		return errors.New("provider name cannot be empty")
	}

	if service == nil {
		return errors.New("service cannot be nil")
	}

	m.providers[name] = service

	return nil
}

// Configure configures a specific provider
func (m *Manager) Configure(config Config) error {
	provider, exists := m.providers[config.Provider]
	if !exists {
		return fmt.Errorf("provider %s not registered", config.Provider)
	}

	return provider.Configure(config)
}

// GenerateQuery runs the request through the configured providers with
// fallback: default provider, then fallback providers, then the rule-based
// template service when enabled.
func (m *Manager) GenerateQuery(ctx context.Context, req Request) (*QueryResponse, error) {
	if m.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.config.Timeout)

		defer cancel()
	}

	var lastErr error

	if m.config.DefaultProvider != "" {
		if provider, exists := m.providers[m.config.DefaultProvider]; exists {
			response, err := m.tryProvider(ctx, provider, req)
			if err == nil {
				return response, nil
			}

			lastErr = err

			m.logger.WithField("provider", m.config.DefaultProvider).
				Warnf("default provider failed: %v", err)
		}
	}

	for _, providerName := range m.config.FallbackProviders {
		if provider, exists := m.providers[providerName]; exists {
			response, err := m.tryProvider(ctx, provider, req)
			if err == nil {
				return response, nil
			}

			lastErr = err

			m.logger.WithField("provider", providerName).
				Warnf("fallback provider failed: %v", err)
		}
	}

	if m.config.EnableFallback {
		m.logger.Debug("using rule-based fallback for query generation")

		return m.fallback.GenerateQuery(ctx, req)
	}

	if lastErr != nil {
		return nil, fmt.Errorf("all LLM providers failed and fallback is disabled: %w", lastErr)
	}

	return nil, errors.New("all LLM providers failed and fallback is disabled")
}

// tryProvider attempts one provider with bounded retries
func (m *Manager) tryProvider(ctx context.Context, provider Service, req Request) (*QueryResponse, error) {
	var lastErr error

	for attempt := 0; attempt <= m.config.RetryAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(m.config.RetryDelay):
			}
		}

		response, err := provider.GenerateQuery(ctx, req)
		if err == nil {
			return response, nil
		}

		lastErr = err

		// Don't retry on context cancellation
		if ctx.Err() != nil {
			break
		}
	}

	return nil, fmt.Errorf("provider failed after %d attempts: %w", m.config.RetryAttempts+1, lastErr)
}
