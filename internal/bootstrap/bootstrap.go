package bootstrap

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/tmc/langchaingo/embeddings"

	"analyst-rag/internal/chromemdb"
	"analyst-rag/internal/config"
	"analyst-rag/internal/db"
	"analyst-rag/internal/rag"
)

var _ rag.VectorStore = (*db.PGVectorStore)(nil)

// NewPipeline wires a pipeline with the store backend named in cfg.
func NewPipeline(cfg *config.Config, opts ...rag.Option) *rag.Pipeline {
	opts = append([]rag.Option{rag.WithStoreLoader(StoreLoader(cfg))}, opts...)
	return rag.New(cfg, opts...)
}

// StoreLoader returns the loader for cfg.Store.Backend.
func StoreLoader(cfg *config.Config) rag.StoreLoader {
	return func(ctx context.Context, emb embeddings.Embedder) (rag.VectorStore, error) {
		switch cfg.Store.Backend {
		case config.BackendChromem, "":
			log.Debug().Str("path", cfg.Store.Path).Bool("in_memory", cfg.Store.InMemory).Msg("Opening chromem store")
			return chromemdb.NewVectorDBManager(cfg.Store, emb)
		case config.BackendPGVector:
			return openPGVector(ctx, cfg.Store.Postgres, emb)
		default:
			return nil, fmt.Errorf("unknown store backend: %s", cfg.Store.Backend)
		}
	}
}

func openPGVector(ctx context.Context, pg config.PostgresConfig, emb embeddings.Embedder) (rag.VectorStore, error) {
	log.Debug().Str("driver", pg.Driver).Str("table", pg.Table).Msg("Opening pgvector store")
	sqldb, err := db.ConnectDB(&pg)
	if err != nil {
		return nil, err
	}
	if err := sqldb.PingContext(ctx); err != nil {
		_ = sqldb.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	store, err := db.NewPGVectorStore(db.NewDB(sqldb, pg.Debug), pg, emb)
	if err != nil {
		_ = sqldb.Close()
		return nil, err
	}
	return store, nil
}
