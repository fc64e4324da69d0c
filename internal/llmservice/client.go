package llmservice

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"

	"analyst-rag/internal/config"
)

// NewLLM creates the generation model for the configured provider.
func NewLLM(cfg *config.LLMConfig) (llms.Model, error) {
	log.Debug().Interface("config", map[string]string{
		"provider": cfg.Provider,
		"base_url": cfg.BaseURL,
		"model":    cfg.Model,
	}).Msg("Creating llm")

	switch cfg.Provider {
	case config.ProviderOllama, "":
		llm, err := ollama.New(
			ollama.WithServerURL(cfg.BaseURL),
			ollama.WithModel(cfg.Model),
		)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize ollama: %w", err)
		}
		return llm, nil
	case config.ProviderOpenAI:
		opts := []openai.Option{
			openai.WithToken(strings.TrimPrefix(cfg.Key, "Bearer ")),
			openai.WithModel(cfg.Model),
		}
		if cfg.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(cfg.BaseURL))
		}
		llm, err := openai.New(opts...)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize openai: %w", err)
		}
		return llm, nil
	default:
		return nil, fmt.Errorf("unknown llm provider: %s", cfg.Provider)
	}
}

// GenerateContent sends a single prompt and returns the model's raw text.
func GenerateContent(ctx context.Context, llm llms.Model, cfg *config.LLMConfig, prompt string) (string, error) {
	var opts []llms.CallOption
	if cfg != nil {
		opts = append(opts, llms.WithTemperature(cfg.Temperature))
		if cfg.MaxTokens > 0 {
			opts = append(opts, llms.WithMaxTokens(cfg.MaxTokens))
		}
	}
	log.Debug().Int("prompt_len", len(prompt)).Msg("Generating content")

	res, err := llms.GenerateFromSinglePrompt(ctx, llm, prompt, opts...)
	if err != nil {
		return "", fmt.Errorf("failed to generate content: %w", err)
	}
	return res, nil
}
