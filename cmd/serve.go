package cmd

import (
	"context"
	"errors"
	"time"

	"github.com/spf13/cobra"

	"github.com/toolchest/favikit/internal/cache"
	"github.com/toolchest/favikit/internal/favicon"
	"github.com/toolchest/favikit/internal/server"
	"github.com/toolchest/favikit/internal/usage"
)

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the favikit HTTP server",
	Long: `Serves the fallback processing endpoint used by "favikit generate
--fallback", batch processing, usage tracking and a websocket progress
stream on /ws.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (default from config, :8080)")
	rootCmd.AddCommand(serveCmd)
}

func runServe(c *cobra.Command, _ []string) error {
	sc := server.Config{
		Addr:          cfg.Server.Addr,
		MaxUploadSize: cfg.Server.MaxUploadSize,
		MaxBatchFiles: cfg.Server.MaxBatchFiles,
		ReadTimeout:   cfg.Server.ReadTimeout,
		WriteTimeout:  cfg.Server.WriteTimeout,
		IdleTimeout:   cfg.Server.IdleTimeout,
		Defaults:      cfg.Generate,
	}
	if c.Flags().Changed("addr") {
		sc.Addr = serveAddr
	}
	// The server is the fallback; it never falls back further.
	sc.Defaults.LargeFile.FallbackToServer = false

	results := cache.New[*favicon.Result](cfg.Cache.TTL, cfg.Cache.MaxEntries)
	srv := server.NewServer(sc, log, server.Deps{Results: results, Usage: usage.NewStore()})

	ctx, stop := signalContext()
	defer stop()

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start() }()

	purge := time.NewTicker(cfg.Cache.TTL)
	defer purge.Stop()
	for {
		select {
		case err := <-errCh:
			return err
		case <-purge.C:
			if n := results.Purge(); n > 0 {
				log.WithField("purged", n).Debug("expired cache entries dropped")
			}
		case <-ctx.Done():
			log.Info("Shutting down favikit server")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
			defer cancel()
			if err := srv.Stop(shutdownCtx); err != nil && !errors.Is(err, context.DeadlineExceeded) {
				return err
			}
			return <-errCh
		}
	}
}
