package db

import (
	"context"
	"fmt"

	"github.com/surrealdb/surrealdb.go"
	surrealmodels "github.com/surrealdb/surrealdb.go/pkg/models"
)

// Chunk is one stored knowledge-base fragment.
type Chunk struct {
	ID        surrealmodels.RecordID `json:"id"`
	Content   string                 `json:"content"`
	Source    *string                `json:"source,omitempty"`
	Heading   *string                `json:"heading,omitempty"`
	Position  int                    `json:"position"`
	Embedding []float32              `json:"embedding"`
}

// CreateChunk inserts a chunk with its embedding.
func (c *Client) CreateChunk(ctx context.Context, content string, source, heading *string, position int, embedding []float32) error {
	_, err := surrealdb.Query[any](ctx, c.db, `
		CREATE chunk SET
			content = $content,
			source = $source,
			heading = $heading,
			position = $position,
			embedding = $embedding
	`, map[string]any{
		"content":   content,
		"source":    source,
		"heading":   heading,
		"position":  position,
		"embedding": embedding,
	})
	if err != nil {
		return fmt.Errorf("create chunk: %w", err)
	}
	return nil
}

// SearchChunks runs a hybrid search: HNSW vector similarity fused with BM25
// full-text via reciprocal rank fusion (k=60, the standard constant).
func (c *Client) SearchChunks(ctx context.Context, query string, embedding []float32, limit int) ([]Chunk, error) {
	if limit <= 0 {
		limit = 5
	}

	sql := fmt.Sprintf(`
		SELECT * FROM search::rrf([
			(SELECT id, content, source, heading, position
			 FROM chunk
			 WHERE embedding <|%d,40|> $emb),
			(SELECT id, content, source, heading, position
			 FROM chunk
			 WHERE content @0@ $q)
		], $limit, 60)
	`, limit*2)

	results, err := surrealdb.Query[[]Chunk](ctx, c.db, sql, map[string]any{
		"q":     query,
		"emb":   embedding,
		"limit": limit,
	})
	if err != nil {
		return nil, fmt.Errorf("chunk search: %w", err)
	}

	if results != nil && len(*results) > 0 {
		return (*results)[0].Result, nil
	}
	return []Chunk{}, nil
}

// DeleteChunksBySource removes all chunks ingested from the given source.
// Re-ingesting a document replaces its chunks instead of duplicating them.
func (c *Client) DeleteChunksBySource(ctx context.Context, source string) error {
	_, err := surrealdb.Query[any](ctx, c.db, `DELETE chunk WHERE source = $source`, map[string]any{
		"source": source,
	})
	if err != nil {
		return fmt.Errorf("delete chunks by source: %w", err)
	}
	return nil
}

// CountChunks returns the number of stored chunks.
func (c *Client) CountChunks(ctx context.Context) (int, error) {
	results, err := surrealdb.Query[[]struct {
		C int `json:"c"`
	}](ctx, c.db, `SELECT count() AS c FROM chunk GROUP ALL`, nil)
	if err != nil {
		return 0, fmt.Errorf("count chunks: %w", err)
	}
	if results != nil && len(*results) > 0 && len((*results)[0].Result) > 0 {
		return (*results)[0].Result[0].C, nil
	}
	return 0, nil
}
