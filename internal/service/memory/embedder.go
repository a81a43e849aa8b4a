package memory

import (
	"context"
	"fmt"

	"github.com/cloudwego/eino/components/embedding"
)

// Embedder 将文本转换为向量。
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// EinoEmbedder 适配 eino 的 embedding 组件（如 Ark 向量化模型）。
type EinoEmbedder struct {
	inner embedding.Embedder
}

// NewEinoEmbedder 包装一个 eino embedding.Embedder。
func NewEinoEmbedder(inner embedding.Embedder) *EinoEmbedder {
	return &EinoEmbedder{inner: inner}
}

// Embed 向量化单条文本。
func (e *EinoEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vectors, err := e.inner.EmbedStrings(ctx, []string{text})
	if err != nil {
		return nil, fmt.Errorf("embed strings: %w", err)
	}
	if len(vectors) == 0 {
		return nil, fmt.Errorf("embedder returned no vectors")
	}

	out := make([]float32, len(vectors[0]))
	for i, v := range vectors[0] {
		out[i] = float32(v)
	}
	return out, nil
}
