package cmd

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"dream/internal/config"
	"dream/internal/host"
	"dream/internal/transport"
	"dream/pkg/async"
	"dream/pkg/logging"
	"dream/pkg/portsource"
	"dream/pkg/registry"
	"dream/pkg/uri"
)

var (
	serveConfigPath string
	servePort       int
	serveAPIKey     string
	serveWorkers    int
	serveDebug      bool
)

// serveCmd starts a host bound to a config directory and either an explicit
// port or one drawn from the port source.
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start a host and serve mounted services",
	Args:  cobra.NoArgs,
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveConfigPath, "config-path", "./config", "directory containing service configuration documents")
	serveCmd.Flags().IntVar(&servePort, "port", 0, "explicit listen port (0 draws one from the port source)")
	serveCmd.Flags().StringVar(&serveAPIKey, "apikey", "", "administrative API key gating mount/unmount (generated if empty)")
	serveCmd.Flags().IntVar(&serveWorkers, "workers", 10, "worker pool size backing request dispatch")
	serveCmd.Flags().BoolVar(&serveDebug, "debug", false, "enable debug logging")
}

func runServe(cmd *cobra.Command, args []string) error {
	level := logging.LevelInfo
	if serveDebug {
		level = logging.LevelDebug
	}
	logging.Init(level, os.Stderr)

	apiKey := serveAPIKey
	if apiKey == "" {
		apiKey = uuid.NewString()
		logging.Info("Serve", "generated administrative api key %s", apiKey)
	}

	configs, errs := config.NewConfigurationLoader(serveConfigPath).Load()
	if errs.HasErrors() {
		logging.Warn("Serve", "%s", errs.GetSummary())
	}

	port := servePort
	if port == 0 {
		source := portsource.New()
		picked, err := source.Pick()
		if err != nil {
			return fmt.Errorf("failed to pick a listen port: %w", err)
		}
		port = picked
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	reg := registry.New()
	pool := async.NewPool(serveWorkers)
	h := host.New(apiKey)
	h.SetLoader(func(dir string) ([]host.ServiceConfig, error) {
		loaded, loadErrs := config.NewConfigurationLoader(dir).Load()
		if loadErrs.HasErrors() {
			return loaded, loadErrs
		}
		return loaded, nil
	})
	reg.AddEndpoint(h)

	base, err := uri.Parse(fmt.Sprintf("http://127.0.0.1:%d", port))
	if err != nil {
		return fmt.Errorf("failed to construct local base uri: %w", err)
	}
	for _, c := range configs {
		svcBase := base.At(strings.Split(strings.Trim(c.Path, "/"), "/")...)
		if mountErr := h.Mount(ctx, apiKey, svcBase, host.NewConfiguredService(c)); mountErr != nil {
			logging.Warn("Serve", "failed to mount service sid=%s path=%s: %s", c.SID, c.Path, mountErr)
			continue
		}
		logging.Info("Serve", "mounted service sid=%s at %s", c.SID, svcBase.String())
	}

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", port),
		Handler: transport.NewHandler(reg, pool),
	}

	serverErr := make(chan error, 1)
	go func() {
		logging.Info("Serve", "listening on %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErr <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serverErr:
		return fmt.Errorf("server failed: %w", err)
	case <-sigCh:
		logging.Info("Serve", "shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logging.Warn("Serve", "error during http shutdown: %s", err)
	}
	return h.Close(shutdownCtx)
}
