package rag

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog/log"

	"analyst-rag/internal/models"
	"analyst-rag/internal/parser"
)

type IngestResult struct {
	Source  string `json:"source"`
	Chunks  int    `json:"chunks"`
	Skipped bool   `json:"skipped"`
}

// Ingest extracts, chunks and stores the file at filePath. Chunks are keyed
// by the file's base name, and a previous ingest of the same name is
// replaced once the new chunks are stored. Unreadable or empty files are
// skipped without error; an unsupported extension is returned as
// parser.ErrUnsupportedFormat.
func (p *Pipeline) Ingest(ctx context.Context, filePath string) (*IngestResult, error) {
	source := filepath.Base(filePath)
	result := &IngestResult{Source: source}

	text, err := parser.Extract(filePath)
	if err != nil {
		if errors.Is(err, parser.ErrUnsupportedFormat) {
			return nil, err
		}
		result.Skipped = true
		return result, nil
	}
	if strings.TrimSpace(text) == "" {
		log.Info().Str("source", source).Msg("No text extracted, skipping")
		result.Skipped = true
		return result, nil
	}

	pieces := p.splitter.Split(text)
	chunks := make([]models.Chunk, len(pieces))
	for i, piece := range pieces {
		chunks[i] = models.Chunk{
			ID:       fmt.Sprintf("%s_%d", source, i),
			Text:     piece,
			Source:   source,
			Metadata: map[string]string{models.SourceKey: source},
		}
	}

	_, store, err := p.ensureStore(ctx)
	if err != nil {
		return nil, err
	}
	if err := store.ReplaceByMetadata(ctx, models.SourceKey, source, chunks); err != nil {
		return nil, fmt.Errorf("failed to store chunks of %s: %w", source, err)
	}

	log.Info().Str("source", source).Int("chunks", len(chunks)).Msg("Ingested document")
	result.Chunks = len(chunks)
	return result, nil
}
