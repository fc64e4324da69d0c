package rag

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"
)

// Retrieval holds the nearest chunks, closest first. The three slices are
// parallel.
type Retrieval struct {
	Documents []string            `json:"documents"`
	Metadatas []map[string]string `json:"metadatas"`
	Distances []float32           `json:"distances"`
}

// Retrieve embeds query and returns up to topK stored chunks. A topK of zero
// or less uses the configured default. Before anything has been ingested the
// error matches models.ErrCollectionNotFound.
func (p *Pipeline) Retrieve(ctx context.Context, query string, topK int) (*Retrieval, error) {
	if topK <= 0 {
		topK = p.cfg.RAG.TopK
	}
	emb, store, err := p.ensureStore(ctx)
	if err != nil {
		return nil, err
	}

	vector, err := emb.EmbedQuery(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}
	matches, err := store.Query(ctx, vector, topK)
	if err != nil {
		return nil, err
	}

	res := &Retrieval{
		Documents: make([]string, len(matches)),
		Metadatas: make([]map[string]string, len(matches)),
		Distances: make([]float32, len(matches)),
	}
	for i, m := range matches {
		res.Documents[i] = m.Text
		res.Metadatas[i] = m.Metadata
		res.Distances[i] = m.Distance
	}
	log.Debug().Str("query", query).Int("matches", len(matches)).Msg("Retrieved chunks")
	return res, nil
}
