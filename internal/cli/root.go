package cli

import (
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"analyst-rag/internal/bootstrap"
	"analyst-rag/internal/config"
	"analyst-rag/internal/rag"
)

const defaultConfigPath = "./configs/config.yaml"

type app struct {
	configPath  string
	debug       bool
	cfg         *config.Config
	newPipeline func(cfg *config.Config) *rag.Pipeline
}

func (a *app) pipeline() *rag.Pipeline {
	return a.newPipeline(a.cfg)
}

func Execute() error {
	return NewRootCmd().Execute()
}

func NewRootCmd() *cobra.Command {
	return newRootCmd(func(cfg *config.Config) *rag.Pipeline {
		return bootstrap.NewPipeline(cfg)
	})
}

func newRootCmd(newPipeline func(cfg *config.Config) *rag.Pipeline) *cobra.Command {
	a := &app{newPipeline: newPipeline}

	root := &cobra.Command{
		Use:   "analyst",
		Short: "Analyst - question answering over your documents",
		Long: `Analyst ingests CSV, PDF, DOCX and TXT files into a local vector store
and answers questions about them with a language model.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			_ = godotenv.Load()
			cfg, err := config.Load(a.configPath)
			if err != nil {
				return err
			}
			a.cfg = cfg
			setupLogging(cfg.Log.Level, a.debug)
			log.Debug().Interface("config", cfg).Msg("Loaded config")
			return nil
		},
	}
	root.PersistentFlags().StringVarP(&a.configPath, "config", "c", defaultConfigPath, "Path to YAML config file")
	root.PersistentFlags().BoolVar(&a.debug, "debug", false, "Enable debug logging")

	root.AddCommand(
		newIngestCmd(a),
		newAskCmd(a),
		newSummarizeCmd(a),
		newClearCmd(a),
		newExportCmd(a),
		newImportCmd(a),
		newServeCmd(a),
		newChatCmd(a),
	)
	return root
}

func setupLogging(level string, debug bool) {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil || level == "" {
		lvl = zerolog.InfoLevel
	}
	if debug {
		lvl = zerolog.DebugLevel
	}
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	zerolog.SetGlobalLevel(lvl)
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).With().Caller().Logger()
}
