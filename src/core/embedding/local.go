package embedding

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ollama/ollama/api"

	"knowgo/src/core/kerr"
)

const defaultOllamaURL = "http://localhost:11434"

// Local runs embeddings on an Ollama instance on this machine. Besides the
// Provider contract it exposes discovery of locally cached models.
type Local struct {
	client *api.Client
	model  string
	dim    int
}

// NewLocal builds a local provider against the Ollama HTTP API.
func NewLocal(baseURL, model string, dim int) (*Local, error) {
	const op = "embedding.NewLocal"

	if model == "" {
		return nil, kerr.New(kerr.KindValidation, op, "local provider requires a model name")
	}
	if baseURL == "" {
		baseURL = defaultOllamaURL
	}
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, kerr.Wrap(kerr.KindValidation, op, err)
	}

	client := api.NewClient(u, &http.Client{Timeout: 2 * time.Minute})
	return &Local{client: client, model: model, dim: dim}, nil
}

func (l *Local) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	const op = "embedding.Local.Embed"

	resp, err := l.client.Embed(ctx, &api.EmbedRequest{
		Model: l.model,
		Input: texts,
	})
	if err != nil {
		return nil, kerr.Wrap(kerr.KindProvider, op, err)
	}
	if len(resp.Embeddings) != len(texts) {
		return nil, kerr.Newf(kerr.KindProvider, op, "got %d embeddings for %d inputs", len(resp.Embeddings), len(texts))
	}
	for i, vec := range resp.Embeddings {
		if len(vec) != l.dim {
			return nil, kerr.Newf(kerr.KindProvider, op, "embedding %d has dimensionality %d, want %d", i, len(vec), l.dim)
		}
	}
	return resp.Embeddings, nil
}

func (l *Local) Dimensionality() int {
	return l.dim
}

// Describe probes the local runtime. Device reports "gpu" when any loaded
// model has layers offloaded to VRAM.
func (l *Local) Describe(ctx context.Context) Info {
	info := Info{Name: "ollama/" + l.model, Device: "cpu"}

	if _, err := l.client.Version(ctx); err != nil {
		return info
	}
	info.Available = true

	if running, err := l.client.ListRunning(ctx); err == nil {
		for _, m := range running.Models {
			if m.SizeVRAM > 0 {
				info.Device = "gpu"
				break
			}
		}
	}
	return info
}

// LocalModel describes one locally cached model for capability discovery.
type LocalModel struct {
	Name           string `json:"name"`
	Dimensionality int    `json:"dimensionality"`
	SizeBytes      int64  `json:"size_bytes"`
	Available      bool   `json:"available"`
}

// ListModels enumerates the models cached by the local runtime with their
// embedding dimensionality where the runtime reports one.
func (l *Local) ListModels(ctx context.Context) ([]LocalModel, error) {
	const op = "embedding.Local.ListModels"

	list, err := l.client.List(ctx)
	if err != nil {
		return nil, kerr.Wrap(kerr.KindProvider, op, err)
	}

	models := make([]LocalModel, 0, len(list.Models))
	for _, m := range list.Models {
		lm := LocalModel{
			Name:      m.Name,
			SizeBytes: m.Size,
			Available: true,
		}
		if show, err := l.client.Show(ctx, &api.ShowRequest{Model: m.Name}); err == nil {
			for key, value := range show.ModelInfo {
				if !strings.HasSuffix(key, ".embedding_length") {
					continue
				}
				if f, ok := value.(float64); ok {
					lm.Dimensionality = int(f)
				}
			}
		}
		models = append(models, lm)
	}
	return models, nil
}
