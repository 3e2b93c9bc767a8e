// Package embedding converts text into fixed-dimensional vectors. The
// engine depends only on the Provider capability interface; the concrete
// variant (local or remote) is selected by configuration.
package embedding

import (
	"context"

	"knowgo/src/core/kerr"
)

// Provider is the capability contract every embedding backend satisfies.
type Provider interface {
	// Embed returns one vector per input text, in input order.
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	// Dimensionality is the fixed length of every vector this provider emits.
	Dimensionality() int
	// Describe reports the provider's identity and current availability.
	Describe(ctx context.Context) Info
}

// Info describes a provider for capability discovery.
type Info struct {
	Name      string `json:"name"`
	Device    string `json:"device"`
	Available bool   `json:"available"`
}

const (
	ProviderLocal  = "local"
	ProviderRemote = "remote"
)

// Config selects and parameterizes the active provider. It is supplied by
// the settings collaborator and read-only to the engine.
type Config struct {
	Provider       string
	Model          string
	Dimensionality int
	BaseURL        string
	APIKey         string
}

// NewProvider builds the configured provider variant. A missing provider
// selection is a startup configuration error, not a runtime fault.
func NewProvider(cfg Config) (Provider, error) {
	const op = "embedding.NewProvider"

	if cfg.Provider == "" {
		return nil, kerr.New(kerr.KindValidation, op, "no embedding provider configured")
	}
	if cfg.Dimensionality <= 0 {
		return nil, kerr.Newf(kerr.KindValidation, op, "dimensionality must be positive, got %d", cfg.Dimensionality)
	}

	switch cfg.Provider {
	case ProviderLocal:
		return NewLocal(cfg.BaseURL, cfg.Model, cfg.Dimensionality)
	case ProviderRemote:
		return NewRemote(cfg.BaseURL, cfg.APIKey, cfg.Model, cfg.Dimensionality)
	default:
		return nil, kerr.Newf(kerr.KindValidation, op, "unknown embedding provider %q", cfg.Provider)
	}
}
