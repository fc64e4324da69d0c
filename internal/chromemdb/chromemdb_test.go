package chromemdb

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"analyst-rag/internal/config"
	"analyst-rag/internal/models"
)

type fakeEmbedder struct {
	vectors map[string][]float32
	dim     int
	err     error
	queries int
}

func newFakeEmbedder() *fakeEmbedder {
	return &fakeEmbedder{vectors: map[string][]float32{}, dim: 3}
}

func (f *fakeEmbedder) vector(text string) []float32 {
	if v, ok := f.vectors[text]; ok {
		return append([]float32(nil), v...)
	}
	v := make([]float32, f.dim)
	for i, r := range text {
		v[i%f.dim] += float32(r%7) + 1
	}
	return v
}

func (f *fakeEmbedder) EmbedDocuments(_ context.Context, texts []string) ([][]float32, error) {
	if f.err != nil {
		return nil, f.err
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = f.vector(t)
	}
	return out, nil
}

func (f *fakeEmbedder) EmbedQuery(_ context.Context, text string) ([]float32, error) {
	f.queries++
	return f.vector(text), nil
}

func newManager(t *testing.T, path string, emb *fakeEmbedder) *VectorDBManager {
	t.Helper()
	m, err := NewVectorDBManager(config.StoreConfig{Path: path, Collection: "test_collection"}, emb)
	require.NoError(t, err)
	return m
}

func chunksFor(source string, texts ...string) []models.Chunk {
	out := make([]models.Chunk, len(texts))
	for i, text := range texts {
		out[i] = models.Chunk{
			ID:     source + "_" + string(rune('0'+i)),
			Text:   text,
			Source: source,
		}
	}
	return out
}

// forget drops the shared handle without touching disk, as a process restart would.
func forget(path string) {
	registryMu.Lock()
	defer registryMu.Unlock()
	delete(registry, registryKey(path))
}

func TestQuery_BeforeIngestIsCollectionNotFound(t *testing.T) {
	path := filepath.Join(t.TempDir(), "db")
	m := newManager(t, path, newFakeEmbedder())

	_, err := m.Query(context.Background(), []float32{1, 0, 0}, 5)
	assert.ErrorIs(t, err, ErrCollectionNotFound)
	assert.ErrorIs(t, err, models.ErrCollectionNotFound)

	_, err = m.GetByMetadata(context.Background(), models.SourceKey, "story.txt")
	assert.ErrorIs(t, err, ErrCollectionNotFound)

	_, statErr := os.Stat(path)
	assert.True(t, os.IsNotExist(statErr), "reads must not create the store directory")
}

func TestQuery_OrderedByDistance(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "db")
	emb := newFakeEmbedder()
	emb.vectors = map[string][]float32{
		"gamma": {0, 1, 0},
		"alpha": {1, 0, 0},
		"delta": {-1, 0, 0},
		"beta":  {1, 1, 0},
	}
	m := newManager(t, path, emb)
	require.NoError(t, m.Add(ctx, chunksFor("greek.txt", "gamma", "alpha", "delta", "beta")))

	matches, err := m.Query(ctx, []float32{1, 0, 0}, 3)
	require.NoError(t, err)
	require.Len(t, matches, 3)
	assert.Equal(t, "alpha", matches[0].Text)
	assert.Equal(t, "beta", matches[1].Text)
	assert.Equal(t, "gamma", matches[2].Text)
	for i := 1; i < len(matches); i++ {
		assert.LessOrEqual(t, matches[i-1].Distance, matches[i].Distance)
	}
	assert.InDelta(t, 0, matches[0].Distance, 1e-5)
	assert.InDelta(t, 1, matches[2].Distance, 1e-5)
	assert.Equal(t, map[string]string{"source": "greek.txt"}, matches[0].Metadata)

	all, err := m.Query(ctx, []float32{1, 0, 0}, 50)
	require.NoError(t, err)
	assert.Len(t, all, 4)
	assert.Equal(t, "delta", all[3].Text)
}

func TestGetByMetadata_ExactAndInsertionOrder(t *testing.T) {
	ctx := context.Background()
	m := newManager(t, filepath.Join(t.TempDir(), "db"), newFakeEmbedder())

	require.NoError(t, m.Add(ctx, chunksFor("a.txt", "first chunk of a", "second chunk of a", "third chunk of a")))
	require.NoError(t, m.Add(ctx, chunksFor("b.txt", "only chunk of b")))
	require.NoError(t, m.Add(ctx, chunksFor("a.txt.bak", "lookalike source")))

	chunks, err := m.GetByMetadata(ctx, models.SourceKey, "a.txt")
	require.NoError(t, err)
	require.Len(t, chunks, 3)
	assert.Equal(t, "first chunk of a", chunks[0].Text)
	assert.Equal(t, "second chunk of a", chunks[1].Text)
	assert.Equal(t, "third chunk of a", chunks[2].Text)
	for _, ch := range chunks {
		assert.Equal(t, "a.txt", ch.Source)
		assert.NotContains(t, ch.Metadata, seqKey)
	}

	none, err := m.GetByMetadata(ctx, models.SourceKey, "missing.txt")
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestAdd_DuplicateIDOverwrites(t *testing.T) {
	ctx := context.Background()
	m := newManager(t, filepath.Join(t.TempDir(), "db"), newFakeEmbedder())

	require.NoError(t, m.Add(ctx, []models.Chunk{{ID: "x.txt_0", Text: "old text", Source: "x.txt"}}))
	require.NoError(t, m.Add(ctx, []models.Chunk{{ID: "x.txt_0", Text: "new text", Source: "x.txt"}}))

	n, err := m.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	chunks, err := m.GetByMetadata(ctx, models.SourceKey, "x.txt")
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	assert.Equal(t, "new text", chunks[0].Text)
}

func TestAdd_DimensionMismatch(t *testing.T) {
	ctx := context.Background()
	emb := newFakeEmbedder()
	m := newManager(t, filepath.Join(t.TempDir(), "db"), emb)
	require.NoError(t, m.Add(ctx, chunksFor("a.txt", "three dims")))

	emb.dim = 5
	err := m.Add(ctx, chunksFor("b.txt", "five dims"))
	assert.ErrorIs(t, err, ErrDimensionMismatch)
}

func TestDeleteByMetadata(t *testing.T) {
	ctx := context.Background()
	m := newManager(t, filepath.Join(t.TempDir(), "db"), newFakeEmbedder())

	require.NoError(t, m.DeleteByMetadata(ctx, models.SourceKey, "nothing-yet.txt"))

	require.NoError(t, m.Add(ctx, chunksFor("a.txt", "one", "two")))
	require.NoError(t, m.Add(ctx, chunksFor("b.txt", "three")))
	require.NoError(t, m.DeleteByMetadata(ctx, models.SourceKey, "a.txt"))

	n, err := m.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestReplaceByMetadata(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "db")
	emb := newFakeEmbedder()
	m := newManager(t, path, emb)

	require.NoError(t, m.ReplaceByMetadata(ctx, models.SourceKey, "a.txt", chunksFor("a.txt", "one", "two", "three")))
	require.NoError(t, m.Add(ctx, chunksFor("b.txt", "other")))

	require.NoError(t, m.ReplaceByMetadata(ctx, models.SourceKey, "a.txt", chunksFor("a.txt", "uno")))
	chunks, err := m.GetByMetadata(ctx, models.SourceKey, "a.txt")
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	assert.Equal(t, "uno", chunks[0].Text)

	n, err := m.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	forget(path)
	t.Cleanup(func() { forget(path) })
	restarted := newManager(t, path, emb)
	n, err = restarted.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n, "stale chunks are removed from disk")
}

func TestReplaceByMetadata_EmbedFailureKeepsOldChunks(t *testing.T) {
	ctx := context.Background()
	emb := newFakeEmbedder()
	m := newManager(t, filepath.Join(t.TempDir(), "db"), emb)
	require.NoError(t, m.Add(ctx, chunksFor("story.txt", "once", "upon", "a time")))

	emb.err = errors.New("embedding server down")
	err := m.ReplaceByMetadata(ctx, models.SourceKey, "story.txt", chunksFor("story.txt", "rewritten"))
	require.ErrorContains(t, err, "embedding server down")

	chunks, err := m.GetByMetadata(ctx, models.SourceKey, "story.txt")
	require.NoError(t, err)
	require.Len(t, chunks, 3)
	assert.Equal(t, "once", chunks[0].Text)
}

func TestGetByMetadata_NoEmbeddingOnceDimensionKnown(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "db")
	emb := newFakeEmbedder()
	m := newManager(t, path, emb)
	require.NoError(t, m.Add(ctx, chunksFor("a.txt", "first", "second")))

	chunks, err := m.GetByMetadata(ctx, models.SourceKey, "a.txt")
	require.NoError(t, err)
	assert.Len(t, chunks, 2)
	assert.Zero(t, emb.queries)

	forget(path)
	t.Cleanup(func() { forget(path) })
	restarted := newManager(t, path, emb)
	for i := 0; i < 3; i++ {
		chunks, err = restarted.GetByMetadata(ctx, models.SourceKey, "a.txt")
		require.NoError(t, err)
		assert.Len(t, chunks, 2)
	}
	assert.Equal(t, 1, emb.queries, "a restarted manager learns the dimension once")
}

func TestSharedAcrossManagersAndRestart(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "db")
	emb := newFakeEmbedder()

	writer := newManager(t, path, emb)
	reader := newManager(t, path, emb)
	require.NoError(t, writer.Add(ctx, chunksFor("story.txt", "once", "upon", "a time")))

	chunks, err := reader.GetByMetadata(ctx, models.SourceKey, "story.txt")
	require.NoError(t, err)
	assert.Len(t, chunks, 3)

	forget(path)
	t.Cleanup(func() { forget(path) })

	restarted := newManager(t, path, emb)
	chunks, err = restarted.GetByMetadata(ctx, models.SourceKey, "story.txt")
	require.NoError(t, err)
	require.Len(t, chunks, 3)
	assert.Equal(t, []string{"once", "upon", "a time"}, []string{chunks[0].Text, chunks[1].Text, chunks[2].Text})
}

func TestClear_RoundTrip(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "db")
	m := newManager(t, path, newFakeEmbedder())
	other := newManager(t, path, newFakeEmbedder())

	require.NoError(t, m.Add(ctx, chunksFor("story.txt", "once", "upon")))
	require.NoError(t, m.Clear(ctx))

	_, statErr := os.Stat(path)
	assert.True(t, os.IsNotExist(statErr))

	_, err := other.Query(ctx, []float32{1, 1, 1}, 5)
	assert.ErrorIs(t, err, ErrCollectionNotFound)
	_, err = other.GetByMetadata(ctx, models.SourceKey, "story.txt")
	assert.ErrorIs(t, err, ErrCollectionNotFound)

	require.NoError(t, m.Clear(ctx), "clear is idempotent")
	require.NoError(t, other.Clear(ctx))
}

func TestExportImport(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	path := filepath.Join(dir, "db")
	key := "0123456789abcdef0123456789abcdef"

	m, err := NewVectorDBManager(config.StoreConfig{Path: path, Collection: "c", EncryptionKey: key}, newFakeEmbedder())
	require.NoError(t, err)

	backup := filepath.Join(dir, "backup.gob.enc")
	assert.ErrorIs(t, m.Export(ctx, backup), ErrCollectionNotFound)

	require.NoError(t, m.Add(ctx, chunksFor("report.pdf", "page one", "page two")))
	require.NoError(t, m.Export(ctx, backup))
	require.NoError(t, m.Clear(ctx))

	require.NoError(t, m.Import(ctx, backup))
	chunks, err := m.GetByMetadata(ctx, models.SourceKey, "report.pdf")
	require.NoError(t, err)
	require.Len(t, chunks, 2)
	assert.Equal(t, "page one", chunks[0].Text)

	forget(path)
	t.Cleanup(func() { forget(path) })
	restarted, err := NewVectorDBManager(config.StoreConfig{Path: path, Collection: "c"}, newFakeEmbedder())
	require.NoError(t, err)
	n, err := restarted.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n, "imported documents are persisted")
}

func TestImport_ReplacesDocumentsOnDisk(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	path := filepath.Join(dir, "db")
	backup := filepath.Join(dir, "backup.gob")
	m := newManager(t, path, newFakeEmbedder())

	require.NoError(t, m.Add(ctx, chunksFor("a.txt", "one", "two")))
	require.NoError(t, m.Export(ctx, backup))
	require.NoError(t, m.Add(ctx, chunksFor("b.txt", "added after export")))
	require.NoError(t, m.Import(ctx, backup))

	n, err := m.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	forget(path)
	t.Cleanup(func() { forget(path) })
	restarted := newManager(t, path, newFakeEmbedder())
	n, err = restarted.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	chunks, err := restarted.GetByMetadata(ctx, models.SourceKey, "b.txt")
	require.NoError(t, err)
	assert.Empty(t, chunks)
}

func TestImport_BrokenFileKeepsCollection(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	m := newManager(t, filepath.Join(dir, "db"), newFakeEmbedder())
	require.NoError(t, m.Add(ctx, chunksFor("a.txt", "one", "two")))

	broken := filepath.Join(dir, "broken.gob")
	require.NoError(t, os.WriteFile(broken, []byte("not a snapshot"), 0o644))
	assert.Error(t, m.Import(ctx, broken))
	assert.Error(t, m.Import(ctx, filepath.Join(dir, "missing.gob")))

	n, err := m.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestInMemory(t *testing.T) {
	ctx := context.Background()
	m, err := NewVectorDBManager(config.StoreConfig{InMemory: true}, newFakeEmbedder())
	require.NoError(t, err)

	_, err = m.Query(ctx, []float32{1, 0, 0}, 1)
	assert.ErrorIs(t, err, ErrCollectionNotFound)

	require.NoError(t, m.Add(ctx, chunksFor("notes.txt", "hello")))
	matches, err := m.Query(ctx, []float32{1, 0, 0}, 5)
	require.NoError(t, err)
	assert.Len(t, matches, 1)

	require.NoError(t, m.Clear(ctx))
	_, err = m.Query(ctx, []float32{1, 0, 0}, 1)
	assert.ErrorIs(t, err, ErrCollectionNotFound)
}

func TestNewVectorDBManager_RequiresEmbedder(t *testing.T) {
	_, err := NewVectorDBManager(config.StoreConfig{}, nil)
	assert.Error(t, err)
}
