package bootstrap

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"analyst-rag/internal/chromemdb"
	"analyst-rag/internal/config"
)

type nopEmbedder struct{}

func (nopEmbedder) EmbedDocuments(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{1, 0}
	}
	return out, nil
}

func (nopEmbedder) EmbedQuery(context.Context, string) ([]float32, error) {
	return []float32{1, 0}, nil
}

func TestStoreLoader_Chromem(t *testing.T) {
	cfg := config.Default()
	cfg.Store.Path = filepath.Join(t.TempDir(), "db")

	store, err := StoreLoader(cfg)(context.Background(), nopEmbedder{})
	require.NoError(t, err)
	assert.IsType(t, &chromemdb.VectorDBManager{}, store)
}

func TestStoreLoader_Errors(t *testing.T) {
	cfg := config.Default()
	cfg.Store.Backend = "sqlite"
	_, err := StoreLoader(cfg)(context.Background(), nopEmbedder{})
	assert.ErrorContains(t, err, "unknown store backend")

	cfg.Store.Backend = config.BackendPGVector
	cfg.Store.Postgres.DSN = ""
	_, err = StoreLoader(cfg)(context.Background(), nopEmbedder{})
	assert.ErrorContains(t, err, "dsn is required")
}

func TestNewPipeline(t *testing.T) {
	cfg := config.Default()
	cfg.Store.InMemory = true
	assert.NotNil(t, NewPipeline(cfg))
}
