package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"analyst-rag/internal/config"
)

func NewRouter(cfg config.ServerConfig, assistant Assistant) *gin.Engine {
	gin.SetMode(cfg.GinMode)
	router := gin.New()
	router.Use(RequestLogger(), gin.Recovery())
	if cfg.MaxUploadMB > 0 {
		router.MaxMultipartMemory = int64(cfg.MaxUploadMB) << 20
	}

	h := NewHandler(assistant, cfg)
	router.GET("/healthz", h.Health)

	v1 := router.Group("/api/v1")
	v1.POST("/documents", h.UploadDocument)
	v1.DELETE("/documents", h.ClearDocuments)
	v1.GET("/documents/:name/summary", h.Summary)
	v1.POST("/ask", h.Ask)

	return router
}

// Run serves the API on cfg.Addr until ctx is cancelled.
func Run(ctx context.Context, cfg config.ServerConfig, assistant Assistant) error {
	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           NewRouter(cfg, assistant),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", srv.Addr).Msg("Server starting")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	log.Info().Msg("Server shutting down")
	return srv.Shutdown(shutdownCtx)
}
