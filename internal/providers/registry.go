package providers

import (
	"log/slog"
	"strings"
	"sync"
)

// ModelConfig describes one extraction model target from configuration.
type ModelConfig struct {
	// Model is the model identifier. A "/" in the name (vendor-prefixed,
	// e.g. "google/gemini-2.5-flash") selects the aggregator backend;
	// bare names go to the direct backend.
	Model       string
	APIKey      string
	Temperature float64
	MaxTokens   int
}

// ForModel constructs the caller appropriate for a model identifier.
func ForModel(cfg ModelConfig, logger *slog.Logger) (Caller, error) {
	if strings.Contains(cfg.Model, "/") {
		return NewOpenRouterCaller(OpenRouterConfig{
			APIKey: cfg.APIKey,
			Model:  cfg.Model,
			Logger: logger,
		}), nil
	}
	return NewGeminiCaller(GeminiConfig{
		APIKey: cfg.APIKey,
		Model:  cfg.Model,
		Logger: logger,
	})
}

// Registry caches callers per model identifier so pipelines sharing a
// model reuse one client. Thread-safe.
type Registry struct {
	mu      sync.Mutex
	callers map[string]Caller
	logger  *slog.Logger
}

// NewRegistry creates an empty caller registry.
func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		callers: make(map[string]Caller),
		logger:  logger,
	}
}

// Caller returns the cached caller for a model config, constructing and
// registering it on first use.
func (r *Registry) Caller(cfg ModelConfig) (Caller, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if c, ok := r.callers[cfg.Model]; ok {
		return c, nil
	}
	c, err := ForModel(cfg, r.logger)
	if err != nil {
		return nil, err
	}
	r.callers[cfg.Model] = c
	r.logger.Info("registered model caller", "model", cfg.Model, "backend", c.Name())
	return c, nil
}

// Register installs a pre-built caller under a model name. Used by tests
// to substitute mocks.
func (r *Registry) Register(model string, c Caller) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.callers[model] = c
}

// Close releases callers that hold API clients.
func (r *Registry) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, c := range r.callers {
		if closer, ok := c.(interface{ Close() error }); ok {
			_ = closer.Close()
		}
	}
}
