package rag

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"
	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/prompts"

	"analyst-rag/internal/chromemdb"
	"analyst-rag/internal/config"
	"analyst-rag/internal/embedding"
	"analyst-rag/internal/llmservice"
	"analyst-rag/internal/models"
	"analyst-rag/internal/parser"
)

// VectorStore is what the pipeline needs from a storage backend.
type VectorStore interface {
	Add(ctx context.Context, chunks []models.Chunk) error
	Query(ctx context.Context, embedding []float32, topK int) ([]models.Match, error)
	GetByMetadata(ctx context.Context, key, value string) ([]models.Chunk, error)
	DeleteByMetadata(ctx context.Context, key, value string) error
	// ReplaceByMetadata swaps the chunks matching key=value for chunks and
	// leaves the old ones in place when the new ones cannot be stored.
	ReplaceByMetadata(ctx context.Context, key, value string, chunks []models.Chunk) error
	Clear(ctx context.Context) error
}

// Snapshotter is implemented by stores that can back up their contents.
type Snapshotter interface {
	Export(ctx context.Context, filePath string) error
	Import(ctx context.Context, filePath string) error
}

var (
	_ VectorStore = (*chromemdb.VectorDBManager)(nil)
	_ Snapshotter = (*chromemdb.VectorDBManager)(nil)
)

type (
	EmbedderLoader func(ctx context.Context) (embeddings.Embedder, error)
	LLMLoader      func(ctx context.Context) (llms.Model, error)
	StoreLoader    func(ctx context.Context, embedder embeddings.Embedder) (VectorStore, error)
)

type Option func(*Pipeline)

func WithEmbedderLoader(l EmbedderLoader) Option {
	return func(p *Pipeline) { p.loadEmbedder = l }
}

func WithLLMLoader(l LLMLoader) Option {
	return func(p *Pipeline) { p.loadLLM = l }
}

func WithStoreLoader(l StoreLoader) Option {
	return func(p *Pipeline) { p.loadStore = l }
}

// Pipeline ingests documents and answers questions over them. The embedder,
// the store and the language model are loaded on first use, once each.
type Pipeline struct {
	cfg      *config.Config
	splitter parser.Splitter

	loadEmbedder EmbedderLoader
	loadLLM      LLMLoader
	loadStore    StoreLoader

	mu         sync.Mutex
	storeReady bool
	llmReady   bool
	embedder   embeddings.Embedder
	store      VectorStore
	llm        llms.Model
}

// New builds a pipeline. Nothing is loaded until an operation needs it.
func New(cfg *config.Config, opts ...Option) *Pipeline {
	if cfg == nil {
		cfg = config.Default()
	}
	p := &Pipeline{
		cfg:      cfg,
		splitter: parser.NewSplitter(cfg.RAG.ChunkSize, cfg.RAG.ChunkOverlap),
	}
	p.loadEmbedder = func(context.Context) (embeddings.Embedder, error) {
		return embedding.NewEmbedder(&p.cfg.EmbedLLM)
	}
	p.loadLLM = func(context.Context) (llms.Model, error) {
		return llmservice.NewLLM(&p.cfg.LLM)
	}
	p.loadStore = func(_ context.Context, emb embeddings.Embedder) (VectorStore, error) {
		return chromemdb.NewVectorDBManager(p.cfg.Store, emb)
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// ensureStore loads the embedder and the store. A failed load is not
// remembered, so the next call tries again.
func (p *Pipeline) ensureStore(ctx context.Context) (embeddings.Embedder, VectorStore, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.storeReady {
		return p.embedder, p.store, nil
	}
	emb, err := p.loadEmbedder(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load embedder: %w", err)
	}
	store, err := p.loadStore(ctx, emb)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open vector store: %w", err)
	}
	p.embedder, p.store, p.storeReady = emb, store, true
	log.Debug().Str("backend", p.cfg.Store.Backend).Msg("Vector store ready")
	return emb, store, nil
}

func (p *Pipeline) ensureLLM(ctx context.Context) (llms.Model, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.llmReady {
		return p.llm, nil
	}
	llm, err := p.loadLLM(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load llm: %w", err)
	}
	p.llm, p.llmReady = llm, true
	log.Debug().Str("model", p.cfg.LLM.Model).Msg("LLM ready")
	return llm, nil
}

// Warmup loads every component up front.
func (p *Pipeline) Warmup(ctx context.Context) error {
	if _, _, err := p.ensureStore(ctx); err != nil {
		return err
	}
	_, err := p.ensureLLM(ctx)
	return err
}

// Clear removes every stored chunk.
func (p *Pipeline) Clear(ctx context.Context) error {
	_, store, err := p.ensureStore(ctx)
	if err != nil {
		return err
	}
	if err := store.Clear(ctx); err != nil {
		return fmt.Errorf("failed to clear store: %w", err)
	}
	return nil
}

// Export writes a snapshot of the store to filePath.
func (p *Pipeline) Export(ctx context.Context, filePath string) error {
	s, err := p.snapshotter(ctx)
	if err != nil {
		return err
	}
	return s.Export(ctx, filePath)
}

// Import replaces the stored chunks with the snapshot in filePath.
func (p *Pipeline) Import(ctx context.Context, filePath string) error {
	s, err := p.snapshotter(ctx)
	if err != nil {
		return err
	}
	return s.Import(ctx, filePath)
}

func (p *Pipeline) snapshotter(ctx context.Context) (Snapshotter, error) {
	_, store, err := p.ensureStore(ctx)
	if err != nil {
		return nil, err
	}
	s, ok := store.(Snapshotter)
	if !ok {
		return nil, ErrSnapshotUnsupported
	}
	return s, nil
}

func (p *Pipeline) generate(ctx context.Context, template string, values map[string]any) (string, error) {
	llm, err := p.ensureLLM(ctx)
	if err != nil {
		return "", err
	}
	prompt, err := renderPrompt(template, values)
	if err != nil {
		return "", err
	}
	return llmservice.GenerateContent(ctx, llm, &p.cfg.LLM, prompt)
}

func renderPrompt(template string, values map[string]any) (string, error) {
	vars := make([]string, 0, len(values))
	for k := range values {
		vars = append(vars, k)
	}
	pt := prompts.PromptTemplate{
		Template:       template,
		InputVariables: vars,
		TemplateFormat: prompts.TemplateFormatFString,
	}
	out, err := pt.Format(values)
	if err != nil {
		return "", fmt.Errorf("failed to render prompt: %w", err)
	}
	return out, nil
}
