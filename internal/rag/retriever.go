package rag

import (
	"context"
	"fmt"

	"github.com/wujekbizon/wolfmed-progress/internal/db"
)

// DBRetriever searches the SurrealDB knowledge base: it embeds the question
// and runs the hybrid vector/full-text chunk query.
type DBRetriever struct {
	db       *db.Client
	embedder *Embedder
}

var _ Retriever = (*DBRetriever)(nil)

// NewDBRetriever wires the embedder to the database client.
func NewDBRetriever(dbClient *db.Client, embedder *Embedder) *DBRetriever {
	return &DBRetriever{db: dbClient, embedder: embedder}
}

func (r *DBRetriever) Search(ctx context.Context, question string, limit int) ([]db.Chunk, error) {
	embedding, err := r.embedder.Embed(ctx, question)
	if err != nil {
		return nil, fmt.Errorf("embed question: %w", err)
	}
	return r.db.SearchChunks(ctx, question, embedding, limit)
}
