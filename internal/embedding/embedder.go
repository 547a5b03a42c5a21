// Package embedding provides deterministic, fully offline text embedding
// generation. There is no networked backend: the hashing embedder is always
// available, and the ONNX backend (build tag "onnx") loads a local model
// file supplied by an external collaborator rather than calling out.
package embedding

import (
	"context"
	"fmt"
)

// Embedder generates fixed-dimension, L2-normalized embedding vectors for
// text. Implementations must be deterministic for a given model snapshot.
type Embedder interface {
	// Embed generates an embedding vector for a single text.
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch generates embeddings for multiple texts. More efficient
	// than multiple Embed calls for bulk ingestion.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Model returns the name of the embedding model being used.
	Model() string

	// Dimension returns the embedding vector dimension. Must match
	// EMBED_DIM and the VectorIndex's configured dimension.
	Dimension() int

	// ModelLoaded reports whether a real model backs this embedder, for
	// the health operation's model_loaded field.
	ModelLoaded() bool
}

// BackendType identifies which embedder implementation to construct.
type BackendType string

const (
	// BackendHashing is the default, always-available backend.
	BackendHashing BackendType = "hashing"

	// BackendONNX loads a real all-MiniLM-L6-v2 model file. Only
	// available when built with the "onnx" build tag.
	BackendONNX BackendType = "onnx"
)

// Config selects and parameterizes an Embedder.
type Config struct {
	Backend BackendType
	Dim     int // defaults to 384 if zero

	// ONNX-specific; ignored by the hashing backend.
	ModelPath     string
	TokenizerPath string
}

// New constructs an Embedder per cfg. An empty or BackendHashing Backend
// always succeeds; BackendONNX requires the "onnx" build tag and a valid
// model file, returning errors.ErrEmbedderUnavailable otherwise.
func New(cfg Config) (Embedder, error) {
	dim := cfg.Dim
	if dim == 0 {
		dim = DefaultDimension
	}
	switch cfg.Backend {
	case BackendHashing, "":
		return NewHashingEmbedder(dim), nil
	case BackendONNX:
		return newONNXEmbedder(cfg.ModelPath, cfg.TokenizerPath, dim)
	default:
		return nil, fmt.Errorf("unknown embedding backend: %s", cfg.Backend)
	}
}
