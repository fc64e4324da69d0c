package chromemdb

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/philippgille/chromem-go"
	"github.com/rs/zerolog/log"
	"github.com/tmc/langchaingo/embeddings"

	"analyst-rag/internal/config"
	"analyst-rag/internal/models"
)

// seqKey orders chunks by insertion. It never leaves the store.
const seqKey = "ingest_seq"

var (
	ErrCollectionNotFound = models.ErrCollectionNotFound
	ErrDimensionMismatch  = errors.New("embedding dimension mismatch")
)

// VectorDBManager stores chunks in a chromem-go collection. Persistent
// managers pointing at the same directory share one database handle.
type VectorDBManager struct {
	dbPath         string
	collectionName string
	inMemory       bool
	compress       bool
	encryptionKey  string
	embedder       embeddings.Embedder
	memDB          *chromem.DB
	// dim is the embedding dimension last seen in the collection, 0 if unknown.
	dim atomic.Int64
}

// NewVectorDBManager prepares a manager. Nothing is read or created on disk
// until the first operation.
func NewVectorDBManager(cfg config.StoreConfig, embedder embeddings.Embedder) (*VectorDBManager, error) {
	if embedder == nil {
		return nil, errors.New("embedder is required")
	}
	if cfg.Collection == "" {
		cfg.Collection = models.DefaultCollectionName
	}
	m := &VectorDBManager{
		dbPath:         cfg.Path,
		collectionName: cfg.Collection,
		inMemory:       cfg.InMemory,
		compress:       cfg.Compress,
		encryptionKey:  cfg.EncryptionKey,
		embedder:       embedder,
	}
	if m.inMemory {
		m.memDB = chromem.NewDB()
	} else if m.dbPath == "" {
		m.dbPath = models.DefaultStorePath
	}
	return m, nil
}

func (m *VectorDBManager) embed(ctx context.Context, text string) ([]float32, error) {
	return m.embedder.EmbedQuery(ctx, text)
}

func (m *VectorDBManager) database(create bool) (*chromem.DB, error) {
	if m.inMemory {
		return m.memDB, nil
	}
	return openShared(m.dbPath, m.compress, create)
}

// collection returns the chunk collection. With create unset a missing
// collection yields ErrCollectionNotFound.
func (m *VectorDBManager) collection(create bool) (*chromem.Collection, error) {
	db, err := m.database(create)
	if err != nil {
		return nil, err
	}
	if create {
		c, err := db.GetOrCreateCollection(m.collectionName, nil, m.embed)
		if err != nil {
			return nil, fmt.Errorf("failed to create/get collection: %w", err)
		}
		return c, nil
	}
	c := db.GetCollection(m.collectionName, m.embed)
	if c == nil {
		return nil, ErrCollectionNotFound
	}
	return c, nil
}

// Add embeds the chunk texts and stores them. An existing ID is overwritten.
func (m *VectorDBManager) Add(ctx context.Context, chunks []models.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}
	docs, err := m.embedChunks(ctx, chunks)
	if err != nil {
		return err
	}
	c, err := m.writableCollection(ctx, docs[0].Embedding)
	if err != nil {
		return err
	}
	if err := c.AddDocuments(ctx, docs, runtime.NumCPU()); err != nil {
		return fmt.Errorf("failed to add documents: %w", err)
	}
	log.Debug().Str("collection", m.collectionName).Int("count", len(docs)).Msg("Added documents")
	return nil
}

// ReplaceByMetadata swaps every chunk whose metadata key equals value for
// chunks. The new chunks are embedded before anything is written, and old
// chunks are removed only after the new ones are stored.
func (m *VectorDBManager) ReplaceByMetadata(ctx context.Context, key, value string, chunks []models.Chunk) error {
	if len(chunks) == 0 {
		return m.DeleteByMetadata(ctx, key, value)
	}
	docs, err := m.embedChunks(ctx, chunks)
	if err != nil {
		return err
	}
	c, err := m.writableCollection(ctx, docs[0].Embedding)
	if err != nil {
		return err
	}

	var stale []string
	if n := c.Count(); n > 0 {
		old, err := c.QueryWithOptions(ctx, chromem.QueryOptions{
			QueryEmbedding: docs[0].Embedding,
			NResults:       n,
			Where:          map[string]string{key: value},
		})
		if err != nil {
			return fmt.Errorf("failed to look up previous documents: %w", err)
		}
		keep := make(map[string]bool, len(docs))
		for _, d := range docs {
			keep[d.ID] = true
		}
		for _, r := range old {
			if !keep[r.ID] {
				stale = append(stale, r.ID)
			}
		}
	}

	if err := c.AddDocuments(ctx, docs, runtime.NumCPU()); err != nil {
		return fmt.Errorf("failed to add documents: %w", err)
	}
	if len(stale) > 0 {
		if err := c.Delete(ctx, nil, nil, stale...); err != nil {
			return fmt.Errorf("failed to delete previous documents: %w", err)
		}
	}
	log.Debug().
		Str("collection", m.collectionName).
		Str(key, value).
		Int("count", len(docs)).
		Int("removed", len(stale)).
		Msg("Replaced documents")
	return nil
}

// embedChunks turns chunks into chromem documents. It touches no storage.
func (m *VectorDBManager) embedChunks(ctx context.Context, chunks []models.Chunk) ([]chromem.Document, error) {
	texts := make([]string, len(chunks))
	for i, ch := range chunks {
		texts[i] = ch.Text
	}
	vectors, err := m.embedder.EmbedDocuments(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("failed to embed chunks: %w", err)
	}
	if len(vectors) != len(chunks) {
		return nil, fmt.Errorf("failed to embed chunks: got %d vectors for %d chunks", len(vectors), len(chunks))
	}
	dim := len(vectors[0])
	for i, v := range vectors {
		if len(v) == 0 || len(v) != dim {
			return nil, fmt.Errorf("%w: chunk %s has %d dimensions, expected %d", ErrDimensionMismatch, chunks[i].ID, len(v), dim)
		}
	}

	batch := nextBatch()
	docs := make([]chromem.Document, len(chunks))
	for i, ch := range chunks {
		metadata := make(map[string]string, len(ch.Metadata)+2)
		for k, v := range ch.Metadata {
			metadata[k] = v
		}
		metadata[models.SourceKey] = ch.Source
		metadata[seqKey] = fmt.Sprintf("%020d-%08d", batch, i)
		docs[i] = chromem.Document{
			ID:        ch.ID,
			Content:   ch.Text,
			Metadata:  metadata,
			Embedding: vectors[i],
		}
	}
	return docs, nil
}

// writableCollection opens or creates the collection and checks that sample
// matches the dimension of what is already stored.
func (m *VectorDBManager) writableCollection(ctx context.Context, sample []float32) (*chromem.Collection, error) {
	c, err := m.collection(true)
	if err != nil {
		return nil, err
	}
	if c.Count() > 0 {
		if _, err := c.QueryEmbedding(ctx, sample, 1, nil, nil); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrDimensionMismatch, err)
		}
	}
	m.dim.Store(int64(len(sample)))
	return c, nil
}

// Query returns up to topK chunks nearest to embedding, closest first.
func (m *VectorDBManager) Query(ctx context.Context, embedding []float32, topK int) ([]models.Match, error) {
	c, err := m.collection(false)
	if err != nil {
		return nil, err
	}
	n := c.Count()
	if n == 0 || topK <= 0 {
		return nil, nil
	}
	topK = min(topK, n)

	results, err := c.QueryEmbedding(ctx, embedding, topK, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to query by similarity: %w", err)
	}
	m.dim.Store(int64(len(embedding)))

	matches := make([]models.Match, len(results))
	for i, r := range results {
		matches[i] = models.Match{
			Chunk:    toChunk(r.ID, r.Content, r.Metadata),
			Distance: 1 - r.Similarity,
		}
	}
	sort.SliceStable(matches, func(i, j int) bool { return matches[i].Distance < matches[j].Distance })
	return matches, nil
}

// GetByMetadata returns every chunk whose metadata key equals value, in the
// order the chunks were added.
func (m *VectorDBManager) GetByMetadata(ctx context.Context, key, value string) ([]models.Chunk, error) {
	c, err := m.collection(false)
	if err != nil {
		return nil, err
	}
	n := c.Count()
	if n == 0 {
		return nil, nil
	}

	results, err := m.filter(ctx, c, n, key, value)
	if err != nil {
		return nil, fmt.Errorf("failed to filter by metadata: %w", err)
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Metadata[seqKey] < results[j].Metadata[seqKey]
	})
	chunks := make([]models.Chunk, len(results))
	for i, r := range results {
		chunks[i] = toChunk(r.ID, r.Content, r.Metadata)
	}
	return chunks, nil
}

// filter returns every document whose metadata key equals value. chromem
// filters only inside a similarity query, so the probe is a unit vector of the
// stored dimension. The dimension is learned from earlier writes and queries;
// only when it is unknown is the value itself embedded once.
func (m *VectorDBManager) filter(ctx context.Context, c *chromem.Collection, n int, key, value string) ([]chromem.Result, error) {
	query := func(probe []float32) ([]chromem.Result, error) {
		return c.QueryWithOptions(ctx, chromem.QueryOptions{
			QueryEmbedding: probe,
			NResults:       n,
			Where:          map[string]string{key: value},
		})
	}

	if d := int(m.dim.Load()); d > 0 {
		probe := make([]float32, d)
		probe[0] = 1
		results, err := query(probe)
		if err == nil {
			return results, nil
		}
		// the store was rebuilt with another dimension
		m.dim.Store(0)
	}

	probe, err := m.embed(ctx, value)
	if err != nil {
		return nil, fmt.Errorf("failed to embed metadata probe: %w", err)
	}
	results, err := query(probe)
	if err != nil {
		return nil, err
	}
	m.dim.Store(int64(len(probe)))
	return results, nil
}

// DeleteByMetadata removes every chunk whose metadata key equals value.
func (m *VectorDBManager) DeleteByMetadata(ctx context.Context, key, value string) error {
	c, err := m.collection(false)
	if errors.Is(err, ErrCollectionNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if err := c.Delete(ctx, map[string]string{key: value}, nil); err != nil {
		return fmt.Errorf("failed to delete documents: %w", err)
	}
	return nil
}

// Count returns the number of stored chunks.
func (m *VectorDBManager) Count(_ context.Context) (int, error) {
	c, err := m.collection(false)
	if err != nil {
		return 0, err
	}
	return c.Count(), nil
}

// Clear removes all chunks. For a persistent store the directory is removed.
func (m *VectorDBManager) Clear(_ context.Context) error {
	m.dim.Store(0)
	if m.inMemory {
		return m.memDB.Reset()
	}
	if err := resetShared(m.dbPath); err != nil {
		return fmt.Errorf("failed to clear database: %w", err)
	}
	log.Info().Str("path", m.dbPath).Msg("Cleared vector database")
	return nil
}

// Export writes the collection to filePath, encrypted when a key is set.
func (m *VectorDBManager) Export(_ context.Context, filePath string) error {
	if filePath == "" {
		return errors.New("export file path is required")
	}
	db, err := m.database(false)
	if err != nil {
		return err
	}
	if db.GetCollection(m.collectionName, m.embed) == nil {
		return ErrCollectionNotFound
	}

	log.Debug().
		Str("collection", m.collectionName).
		Str("file", filePath).
		Bool("compress", m.compress).
		Bool("encrypted", m.encryptionKey != "").
		Msg("Exporting collection")
	if err := db.ExportToFile(filePath, m.compress, m.encryptionKey, m.collectionName); err != nil {
		return fmt.Errorf("failed to export database: %w", err)
	}
	return nil
}

// Import replaces the collection with the one stored in filePath. The
// snapshot is decoded into a scratch database first, so a broken file leaves
// the current collection untouched. Documents the snapshot does not contain
// are removed from disk as well.
func (m *VectorDBManager) Import(_ context.Context, filePath string) error {
	staged := chromem.NewDB()
	if err := staged.ImportFromFile(filePath, m.encryptionKey, m.collectionName); err != nil {
		return fmt.Errorf("failed to import database: %w", err)
	}
	if staged.GetCollection(m.collectionName, m.embed) == nil {
		return fmt.Errorf("failed to import database: snapshot has no collection %q", m.collectionName)
	}

	db, err := m.database(true)
	if err != nil {
		return err
	}
	if err := db.DeleteCollection(m.collectionName); err != nil {
		return fmt.Errorf("failed to drop collection before import: %w", err)
	}
	if err := db.ImportFromFile(filePath, m.encryptionKey, m.collectionName); err != nil {
		return fmt.Errorf("failed to import database: %w", err)
	}
	m.dim.Store(0)
	return nil
}

func toChunk(id, content string, metadata map[string]string) models.Chunk {
	out := make(map[string]string, len(metadata))
	for k, v := range metadata {
		if k == seqKey {
			continue
		}
		out[k] = v
	}
	return models.Chunk{
		ID:       id,
		Text:     content,
		Source:   out[models.SourceKey],
		Metadata: out,
	}
}

var (
	batchMu   sync.Mutex
	lastBatch int64
)

// nextBatch returns a strictly increasing timestamp for ordering batches.
func nextBatch() int64 {
	batchMu.Lock()
	defer batchMu.Unlock()
	b := time.Now().UnixNano()
	if b <= lastBatch {
		b = lastBatch + 1
	}
	lastBatch = b
	return b
}

