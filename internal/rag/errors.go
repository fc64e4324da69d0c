package rag

import (
	"errors"
	"fmt"

	"analyst-rag/internal/models"
)

var (
	ErrDocumentNotFound    = errors.New("document not found")
	ErrDocumentTooLarge    = errors.New(models.DocumentTooLargeMessage)
	ErrSnapshotUnsupported = errors.New("store backend does not support export and import")
)

// DocumentNotFoundError names the source a summary was requested for.
type DocumentNotFoundError struct {
	Source string
}

func (e *DocumentNotFoundError) Error() string {
	return fmt.Sprintf(models.DocumentNotFoundMessage, e.Source)
}

func (e *DocumentNotFoundError) Is(target error) bool {
	return target == ErrDocumentNotFound
}
