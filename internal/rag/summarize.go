package rag

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/rs/zerolog/log"

	"analyst-rag/internal/models"
)

// Summarize asks the model for a bullet-point summary of every stored chunk
// of source. Documents longer than chars_per_token times the model context
// length are refused with ErrDocumentTooLarge.
func (p *Pipeline) Summarize(ctx context.Context, source string) (string, error) {
	_, store, err := p.ensureStore(ctx)
	if err != nil {
		return "", err
	}

	chunks, err := store.GetByMetadata(ctx, models.SourceKey, source)
	if err != nil && !errors.Is(err, models.ErrCollectionNotFound) {
		return "", fmt.Errorf("failed to load chunks of %s: %w", source, err)
	}
	if len(chunks) == 0 {
		return "", &DocumentNotFoundError{Source: source}
	}

	texts := make([]string, len(chunks))
	for i, ch := range chunks {
		texts[i] = ch.Text
	}
	fullText := strings.Join(texts, "\n")

	limit := p.cfg.RAG.CharsPerToken * p.cfg.LLM.ContextLength
	if n := utf8.RuneCountInString(fullText); n > limit {
		log.Info().Str("source", source).Int("chars", n).Int("limit", limit).Msg("Document too large to summarize")
		return "", ErrDocumentTooLarge
	}

	return p.generate(ctx, models.SummaryPromptTemplate, map[string]any{"full_text": fullText})
}
