package db

import (
	"context"
	"errors"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"analyst-rag/internal/config"
	"analyst-rag/internal/models"
)

func TestVector_Value(t *testing.T) {
	v, err := Vector{1, -0.5, 0.25}.Value()
	require.NoError(t, err)
	assert.Equal(t, "[1,-0.5,0.25]", v)

	v, err = Vector(nil).Value()
	require.NoError(t, err)
	assert.Nil(t, v)
}

func TestVector_Scan(t *testing.T) {
	var v Vector
	require.NoError(t, v.Scan([]byte("[1, 2.5,-3]")))
	assert.Equal(t, Vector{1, 2.5, -3}, v)

	require.NoError(t, v.Scan("[]"))
	assert.Equal(t, Vector{}, v)

	require.NoError(t, v.Scan(nil))
	assert.Nil(t, v)

	assert.Error(t, v.Scan("1,2"))
	assert.Error(t, v.Scan("[1,x]"))
	assert.Error(t, v.Scan(42))
}

func TestConnectDB_Validation(t *testing.T) {
	_, err := ConnectDB(&config.PostgresConfig{})
	assert.Error(t, err)

	_, err = ConnectDB(&config.PostgresConfig{DSN: "postgres://localhost/x", Driver: "mysql"})
	assert.Error(t, err)
}

type fakeEmbedder struct{}

func (fakeEmbedder) vector(text string) []float32 {
	v := []float32{0, 0, 0}
	for i, r := range text {
		v[i%3] += float32(r%5) + 1
	}
	return v
}

func (f fakeEmbedder) EmbedDocuments(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = f.vector(t)
	}
	return out, nil
}

func (f fakeEmbedder) EmbedQuery(_ context.Context, text string) ([]float32, error) {
	return f.vector(text), nil
}

type failingEmbedder struct{ fakeEmbedder }

func (failingEmbedder) EmbedDocuments(context.Context, []string) ([][]float32, error) {
	return nil, errors.New("embedding server down")
}

func TestReplaceByMetadata_EmbedsBeforeTouchingDatabase(t *testing.T) {
	cfg := config.PostgresConfig{DSN: "postgres://nobody@127.0.0.1:1/none?sslmode=disable", Dimensions: 3}
	sqldb, err := ConnectDB(&cfg)
	require.NoError(t, err)
	store, err := NewPGVectorStore(NewDB(sqldb, false), cfg, failingEmbedder{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	err = store.ReplaceByMetadata(context.Background(), models.SourceKey, "a.txt", []models.Chunk{{ID: "a.txt_0", Text: "x", Source: "a.txt"}})
	assert.ErrorContains(t, err, "embedding server down")
}

// newTestStore needs a Postgres with the pgvector extension available.
func newTestStore(t *testing.T) *PGVectorStore {
	t.Helper()
	dsn := os.Getenv("ANALYST_TEST_PG_DSN")
	if dsn == "" {
		t.Skip("ANALYST_TEST_PG_DSN not set")
	}
	cfg := config.PostgresConfig{DSN: dsn, Driver: config.DriverPGDriver, Table: "analyst_chunks_test", Dimensions: 3}
	sqldb, err := ConnectDB(&cfg)
	require.NoError(t, err)
	store, err := NewPGVectorStore(NewDB(sqldb, false), cfg, fakeEmbedder{})
	require.NoError(t, err)
	require.NoError(t, store.Clear(context.Background()))
	t.Cleanup(func() {
		_ = store.Clear(context.Background())
		_ = store.Close()
	})
	return store
}

func TestPGVectorStore_RoundTrip(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	_, err := store.Query(ctx, []float32{1, 0, 0}, 5)
	assert.ErrorIs(t, err, ErrCollectionNotFound)

	chunks := []models.Chunk{
		{ID: "a.txt_0", Text: "first", Source: "a.txt"},
		{ID: "a.txt_1", Text: "second", Source: "a.txt"},
		{ID: "b.txt_0", Text: "other", Source: "b.txt"},
	}
	require.NoError(t, store.Add(ctx, chunks))

	got, err := store.GetByMetadata(ctx, models.SourceKey, "a.txt")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "first", got[0].Text)
	assert.Equal(t, "second", got[1].Text)

	q, _ := fakeEmbedder{}.EmbedQuery(ctx, "other")
	matches, err := store.Query(ctx, q, 10)
	require.NoError(t, err)
	require.Len(t, matches, 3)
	assert.Equal(t, "b.txt_0", matches[0].ID)
	for i := 1; i < len(matches); i++ {
		assert.LessOrEqual(t, matches[i-1].Distance, matches[i].Distance)
	}

	require.NoError(t, store.ReplaceByMetadata(ctx, models.SourceKey, "a.txt", []models.Chunk{
		{ID: "a.txt_0", Text: "rewritten", Source: "a.txt"},
	}))
	got, err = store.GetByMetadata(ctx, models.SourceKey, "a.txt")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "rewritten", got[0].Text)

	require.NoError(t, store.DeleteByMetadata(ctx, models.SourceKey, "a.txt"))
	n, err := store.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	require.NoError(t, store.Clear(ctx))
	_, err = store.GetByMetadata(ctx, models.SourceKey, "b.txt")
	assert.ErrorIs(t, err, ErrCollectionNotFound)
}
