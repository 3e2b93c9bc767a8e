package embedding

import (
	"context"

	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms/openai"

	"knowgo/src/core/kerr"
)

// Remote embeds text through an OpenAI-compatible embedding API. The
// provider's own rate limits surface as provider errors; retry policy is
// the batcher's concern.
type Remote struct {
	embedder *embeddings.EmbedderImpl
	model    string
	dim      int
}

// NewRemote builds a remote provider for the given API endpoint.
func NewRemote(baseURL, apiKey, model string, dim int) (*Remote, error) {
	const op = "embedding.NewRemote"

	if apiKey == "" {
		return nil, kerr.New(kerr.KindValidation, op, "remote provider requires an API key")
	}
	if model == "" {
		return nil, kerr.New(kerr.KindValidation, op, "remote provider requires a model name")
	}

	opts := []openai.Option{
		openai.WithToken(apiKey),
		openai.WithEmbeddingModel(model),
	}
	if baseURL != "" {
		opts = append(opts, openai.WithBaseURL(baseURL))
	}
	llm, err := openai.New(opts...)
	if err != nil {
		return nil, kerr.Wrap(kerr.KindValidation, op, err)
	}

	embedder, err := embeddings.NewEmbedder(llm, embeddings.WithStripNewLines(true))
	if err != nil {
		return nil, kerr.Wrap(kerr.KindValidation, op, err)
	}

	return &Remote{embedder: embedder, model: model, dim: dim}, nil
}

func (r *Remote) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	const op = "embedding.Remote.Embed"

	vecs, err := r.embedder.EmbedDocuments(ctx, texts)
	if err != nil {
		return nil, kerr.Wrap(kerr.KindProvider, op, err)
	}
	if len(vecs) != len(texts) {
		return nil, kerr.Newf(kerr.KindProvider, op, "got %d embeddings for %d inputs", len(vecs), len(texts))
	}
	for i, vec := range vecs {
		if len(vec) != r.dim {
			return nil, kerr.Newf(kerr.KindProvider, op, "embedding %d has dimensionality %d, want %d", i, len(vec), r.dim)
		}
	}
	return vecs, nil
}

func (r *Remote) Dimensionality() int {
	return r.dim
}

func (r *Remote) Describe(ctx context.Context) Info {
	return Info{Name: "openai/" + r.model, Device: "remote", Available: true}
}
