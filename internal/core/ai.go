package core

import "context"

// EmbeddingProvider turns texts into embedding vectors. Callers own the
// batching: implementations may reject calls above the provider's per-call
// item limit.
type EmbeddingProvider interface {
	EmbedTexts(ctx context.Context, texts []string) ([][]float32, error)
}

type LLMProvider interface {
	Generate(ctx context.Context, systemPrompt string, userPrompt string) (string, error)
}

// Parser extracts plain text from raw document bytes. Implementations must
// return ErrEmptyParse when extraction "succeeds" but yields empty or
// whitespace-only text.
type Parser interface {
	Parse(ctx context.Context, raw []byte, contentType string) (string, error)
}
