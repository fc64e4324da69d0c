package rag

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"

	"analyst-rag/internal/models"
)

// Answer responds to query using the stored documents. With history, the
// retrieval query folds in the previous question so follow-ups find the
// right context; the prompt itself always carries query unchanged. When no
// chunk is found the fixed no-information answer is returned and the
// language model is never loaded.
func (p *Pipeline) Answer(ctx context.Context, query string, history []models.Turn) (*models.Answer, error) {
	retrievalQuery := query
	if len(history) > 0 {
		retrievalQuery = fmt.Sprintf(models.CompositeQueryTemplate, history[len(history)-1].Question, query)
	}

	res, err := p.Retrieve(ctx, retrievalQuery, p.cfg.RAG.TopK)
	if errors.Is(err, models.ErrCollectionNotFound) {
		res, err = &Retrieval{}, nil
	}
	if err != nil {
		return nil, err
	}
	if len(res.Documents) == 0 {
		log.Info().Str("query", query).Msg("No relevant chunks found")
		return &models.Answer{Text: models.NoRelevantInfoMessage, Sources: []map[string]string{}}, nil
	}

	answer, err := p.generate(ctx, models.QAPromptTemplate, map[string]any{
		"context":  strings.Join(res.Documents, models.ContextSeparator),
		"question": query,
	})
	if err != nil {
		return nil, err
	}

	nextSteps, err := p.generate(ctx, models.NextStepsPromptTemplate, map[string]any{
		"question": query,
		"answer":   answer,
	})
	if err != nil {
		return nil, err
	}

	return &models.Answer{Text: answer, Sources: res.Metadatas, NextSteps: nextSteps}, nil
}
