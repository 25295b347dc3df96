package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/kyleking/current/internal/config"
)

// Backend is a Generator that can also list models
type Backend interface {
	Generator
	ModelLister
	Model() string
}

// NewGenerator picks the backend named in cfg.Backend
func NewGenerator(ctx context.Context, cfg config.GeminiConfig) (Backend, error) {
	switch strings.ToLower(cfg.Backend) {
	case BackendREST, "":
		return NewClient(cfg), nil
	case BackendGenAI:
		client, err := NewGenAIClient(ctx, cfg)
		if err != nil {
			return nil, err
		}

		return client, nil
	default:
		return nil, fmt.Errorf("unsupported backend: %s", cfg.Backend)
	}
}
