package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	_ "github.com/lib/pq"
	"github.com/rs/zerolog/log"
	"github.com/tmc/langchaingo/embeddings"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
	"github.com/uptrace/bun/extra/bundebug"

	"analyst-rag/internal/config"
	"analyst-rag/internal/models"
)

var (
	ErrCollectionNotFound = models.ErrCollectionNotFound
	ErrDimensionMismatch  = errors.New("embedding dimension mismatch")
)

// Document is one row of the chunk table. The seq column is filled by the
// database and only used for ordering.
type Document struct {
	bun.BaseModel `bun:"table:analyst_chunks,alias:d"`
	ID            string            `bun:"id,pk"`
	Source        string            `bun:"source,notnull"`
	Content       string            `bun:"content,notnull"`
	Metadata      map[string]string `bun:"metadata,type:jsonb"`
	Embedding     Vector            `bun:"embedding,notnull,type:vector"`
}

type matchRow struct {
	ID       string            `bun:"id"`
	Source   string            `bun:"source"`
	Content  string            `bun:"content"`
	Metadata map[string]string `bun:"metadata,type:jsonb"`
	Distance float64           `bun:"distance"`
}

func NewDB(sqldb *sql.DB, debug bool) *bun.DB {
	db := bun.NewDB(sqldb, pgdialect.New())
	if debug {
		db.AddQueryHook(bundebug.NewQueryHook(bundebug.WithVerbose(true)))
	}
	return db
}

// ConnectDB opens a connection pool with the configured driver.
func ConnectDB(cfg *config.PostgresConfig) (*sql.DB, error) {
	if cfg.DSN == "" {
		return nil, errors.New("postgres dsn is required")
	}
	switch cfg.Driver {
	case config.DriverPQ:
		sqldb, err := sql.Open("postgres", cfg.DSN)
		if err != nil {
			return nil, fmt.Errorf("failed to open database: %w", err)
		}
		return sqldb, nil
	case config.DriverPGDriver, "":
		return sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(cfg.DSN))), nil
	default:
		return nil, fmt.Errorf("unknown postgres driver: %s", cfg.Driver)
	}
}

// PGVectorStore keeps chunks in a Postgres table with a pgvector column.
type PGVectorStore struct {
	db         *bun.DB
	table      string
	dimensions int
	embedder   embeddings.Embedder
}

func NewPGVectorStore(db *bun.DB, cfg config.PostgresConfig, embedder embeddings.Embedder) (*PGVectorStore, error) {
	if embedder == nil {
		return nil, errors.New("embedder is required")
	}
	if cfg.Table == "" {
		cfg.Table = "analyst_chunks"
	}
	if cfg.Dimensions <= 0 {
		return nil, fmt.Errorf("invalid vector dimensions: %d", cfg.Dimensions)
	}
	return &PGVectorStore{db: db, table: cfg.Table, dimensions: cfg.Dimensions, embedder: embedder}, nil
}

// Close releases the connection pool.
func (s *PGVectorStore) Close() error {
	return s.db.Close()
}

func (s *PGVectorStore) exists(ctx context.Context) (bool, error) {
	var ok bool
	if err := s.db.NewRaw("SELECT to_regclass(?) IS NOT NULL", s.table).Scan(ctx, &ok); err != nil {
		return false, fmt.Errorf("failed to look up table: %w", err)
	}
	return ok, nil
}

// InitDB creates the extension, the table and the source index.
func (s *PGVectorStore) InitDB(ctx context.Context) error {
	stmts := []*bun.RawQuery{
		s.db.NewRaw("CREATE EXTENSION IF NOT EXISTS vector"),
		s.db.NewRaw(`CREATE TABLE IF NOT EXISTS ? (
			seq bigserial NOT NULL,
			id text PRIMARY KEY,
			source text NOT NULL,
			content text NOT NULL,
			metadata jsonb,
			embedding vector(?) NOT NULL
		)`, bun.Ident(s.table), bun.Safe(fmt.Sprint(s.dimensions))),
		s.db.NewRaw("CREATE INDEX IF NOT EXISTS ? ON ? (source, seq)",
			bun.Ident(s.table+"_source_idx"), bun.Ident(s.table)),
	}
	for _, q := range stmts {
		if _, err := q.Exec(ctx); err != nil {
			return fmt.Errorf("failed to initialize database: %w", err)
		}
	}
	return nil
}

// Add embeds the chunks and upserts them. An existing ID is overwritten.
func (s *PGVectorStore) Add(ctx context.Context, chunks []models.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}
	docs, err := s.embedChunks(ctx, chunks)
	if err != nil {
		return err
	}
	if err := s.InitDB(ctx); err != nil {
		return err
	}
	if err := s.upsert(ctx, s.db, docs); err != nil {
		return err
	}
	log.Debug().Str("table", s.table).Int("count", len(docs)).Msg("Stored documents")
	return nil
}

// ReplaceByMetadata swaps every chunk whose metadata key equals value for
// chunks in one transaction. Embedding happens before the transaction starts.
func (s *PGVectorStore) ReplaceByMetadata(ctx context.Context, key, value string, chunks []models.Chunk) error {
	if len(chunks) == 0 {
		return s.DeleteByMetadata(ctx, key, value)
	}
	docs, err := s.embedChunks(ctx, chunks)
	if err != nil {
		return err
	}
	if err := s.InitDB(ctx); err != nil {
		return err
	}
	err = s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if _, err := tx.NewRaw("DELETE FROM ? WHERE metadata->>? = ?", bun.Ident(s.table), key, value).Exec(ctx); err != nil {
			return fmt.Errorf("failed to delete documents: %w", err)
		}
		return s.upsert(ctx, &tx, docs)
	})
	if err != nil {
		return err
	}
	log.Debug().Str("table", s.table).Str(key, value).Int("count", len(docs)).Msg("Replaced documents")
	return nil
}

func (s *PGVectorStore) embedChunks(ctx context.Context, chunks []models.Chunk) ([]Document, error) {
	texts := make([]string, len(chunks))
	for i, ch := range chunks {
		texts[i] = ch.Text
	}
	vectors, err := s.embedder.EmbedDocuments(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("failed to embed chunks: %w", err)
	}
	if len(vectors) != len(chunks) {
		return nil, fmt.Errorf("failed to embed chunks: got %d vectors for %d chunks", len(vectors), len(chunks))
	}

	docs := make([]Document, len(chunks))
	for i, ch := range chunks {
		if len(vectors[i]) != s.dimensions {
			return nil, fmt.Errorf("%w: chunk %s has %d dimensions, expected %d", ErrDimensionMismatch, ch.ID, len(vectors[i]), s.dimensions)
		}
		metadata := make(map[string]string, len(ch.Metadata)+1)
		for k, v := range ch.Metadata {
			metadata[k] = v
		}
		metadata[models.SourceKey] = ch.Source
		docs[i] = Document{
			ID:        ch.ID,
			Source:    ch.Source,
			Content:   ch.Text,
			Metadata:  metadata,
			Embedding: Vector(vectors[i]),
		}
	}
	return docs, nil
}

func (s *PGVectorStore) upsert(ctx context.Context, db bun.IDB, docs []Document) error {
	_, err := db.NewInsert().
		Model(&docs).
		ModelTableExpr("?", bun.Ident(s.table)).
		On("CONFLICT (id) DO UPDATE").
		Set("source = EXCLUDED.source").
		Set("content = EXCLUDED.content").
		Set("metadata = EXCLUDED.metadata").
		Set("embedding = EXCLUDED.embedding").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to store documents: %w", err)
	}
	return nil
}

// Query returns up to topK chunks by ascending cosine distance.
func (s *PGVectorStore) Query(ctx context.Context, embedding []float32, topK int) ([]models.Match, error) {
	ok, err := s.exists(ctx)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrCollectionNotFound
	}
	if topK <= 0 {
		return nil, nil
	}
	if len(embedding) != s.dimensions {
		return nil, fmt.Errorf("%w: query has %d dimensions, expected %d", ErrDimensionMismatch, len(embedding), s.dimensions)
	}

	var rows []matchRow
	err = s.db.NewRaw(
		"SELECT id, source, content, metadata, embedding <=> ?::vector AS distance FROM ? ORDER BY distance, seq LIMIT ?",
		Vector(embedding), bun.Ident(s.table), topK,
	).Scan(ctx, &rows)
	if err != nil {
		return nil, fmt.Errorf("failed to search documents: %w", err)
	}

	matches := make([]models.Match, len(rows))
	for i, r := range rows {
		matches[i] = models.Match{
			Chunk:    toChunk(r.ID, r.Source, r.Content, r.Metadata),
			Distance: float32(r.Distance),
		}
	}
	return matches, nil
}

// GetByMetadata returns the chunks whose metadata key equals value in
// insertion order.
func (s *PGVectorStore) GetByMetadata(ctx context.Context, key, value string) ([]models.Chunk, error) {
	ok, err := s.exists(ctx)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrCollectionNotFound
	}

	var rows []matchRow
	err = s.db.NewRaw(
		"SELECT id, source, content, metadata, 0 AS distance FROM ? WHERE metadata->>? = ? ORDER BY seq",
		bun.Ident(s.table), key, value,
	).Scan(ctx, &rows)
	if err != nil {
		return nil, fmt.Errorf("failed to filter documents: %w", err)
	}

	chunks := make([]models.Chunk, len(rows))
	for i, r := range rows {
		chunks[i] = toChunk(r.ID, r.Source, r.Content, r.Metadata)
	}
	return chunks, nil
}

func (s *PGVectorStore) DeleteByMetadata(ctx context.Context, key, value string) error {
	ok, err := s.exists(ctx)
	if err != nil || !ok {
		return err
	}
	if _, err := s.db.NewRaw("DELETE FROM ? WHERE metadata->>? = ?", bun.Ident(s.table), key, value).Exec(ctx); err != nil {
		return fmt.Errorf("failed to delete documents: %w", err)
	}
	return nil
}

func (s *PGVectorStore) Count(ctx context.Context) (int, error) {
	ok, err := s.exists(ctx)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, ErrCollectionNotFound
	}
	var n int
	if err := s.db.NewRaw("SELECT count(*) FROM ?", bun.Ident(s.table)).Scan(ctx, &n); err != nil {
		return 0, fmt.Errorf("failed to count documents: %w", err)
	}
	return n, nil
}

// Clear drops the chunk table.
func (s *PGVectorStore) Clear(ctx context.Context) error {
	if _, err := s.db.NewRaw("DROP TABLE IF EXISTS ?", bun.Ident(s.table)).Exec(ctx); err != nil {
		return fmt.Errorf("failed to clear documents: %w", err)
	}
	log.Info().Str("table", s.table).Msg("Dropped chunk table")
	return nil
}

func toChunk(id, source, content string, metadata map[string]string) models.Chunk {
	if metadata == nil {
		metadata = map[string]string{}
	}
	if _, ok := metadata[models.SourceKey]; !ok {
		metadata[models.SourceKey] = source
	}
	return models.Chunk{ID: id, Text: content, Source: source, Metadata: metadata}
}
