package cli

import (
	"context"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/douit-app/douit/internal/config"
	"github.com/douit-app/douit/internal/core"
	"github.com/douit-app/douit/internal/docstore"
	"github.com/douit-app/douit/internal/server"
)

var (
	serverListen      string
	serverLogLevel    string
	serverLogFormat   string
	serverWebhookURLs string
)

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Run the douit HTTP API",
	Long:  "Commands for running the douit HTTP API over the workspace store.",
}

var serverStartCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the douit HTTP API",
	Long: `Start the douit HTTP API.

Flags override the workspace config. The acting user of each request is
read from the X-User-ID header.

Examples:
  douit server start
  douit server start --listen 0.0.0.0:8720 --log-format text
  douit server start --webhook-urls https://hooks.local/a,https://hooks.local/b`,
	Args: cobra.NoArgs,
	Run:  runServerStart,
}

func init() {
	serverCmd.AddCommand(serverStartCmd)

	f := serverStartCmd.Flags()
	f.StringVar(&serverListen, "listen", os.Getenv("DOUIT_LISTEN"), "Listen address (host:port)")
	f.StringVar(&serverLogLevel, "log-level", os.Getenv("DOUIT_LOG_LEVEL"), "Log level (debug|info|warn|error)")
	f.StringVar(&serverLogFormat, "log-format", os.Getenv("DOUIT_LOG_FORMAT"), "Log format (json|text)")
	f.StringVar(&serverWebhookURLs, "webhook-urls", os.Getenv("DOUIT_WEBHOOK_URLS"), "Comma-separated webhook URLs to notify on edits")
}

func runServerStart(_ *cobra.Command, _ []string) {
	cfg, err := config.Load()
	if err != nil {
		exitError("%v", err)
	}
	applyServerFlags(cfg)
	if err := cfg.Validate(); err != nil {
		exitError("%v", err)
	}

	logger := newLogger(cfg.LogLevel, cfg.LogFormat, os.Stdout)

	base, err := docstore.Open(cfg.Store, cfg.DataPath())
	if err != nil {
		logger.Error("failed to open store", "error", err, "path", cfg.DataPath())
		os.Exit(1)
	}
	defer base.Close()

	st := docstore.WithBreaker(
		docstore.WithRetry(base, docstore.DefaultRetryConfig(), logger),
		docstore.DefaultBreakerConfig(),
		logger,
	)
	eng := core.NewEngine(st, core.WithLogger(logger))

	srvCfg := server.DefaultServerConfig()
	srvCfg.RequestsPerMinute = cfg.RateLimit
	srvCfg.CORSOrigins = cfg.CORSOrigins
	srvCfg.Metrics = server.NewMetrics("douit")
	if len(cfg.WebhookURLs) > 0 {
		srvCfg.Webhooks = server.NewWebhookNotifier(&server.WebhookConfig{
			URLs: cfg.WebhookURLs,
		}, srvCfg.Metrics, logger)
		logger.Info("webhooks configured", "count", len(cfg.WebhookURLs))
	}

	h, handlerCleanup := server.Handler(eng, st, srvCfg, logger)
	defer handlerCleanup()

	srv := &http.Server{
		Addr:              cfg.Listen,
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      5 * time.Minute,
		IdleTimeout:       120 * time.Second,
		BaseContext:       func(_ net.Listener) context.Context { return context.Background() },
	}

	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGTERM)

	go func() {
		logger.Info("starting douit server", "listen", cfg.Listen, "store", cfg.Store, "data_dir", cfg.DataPath())
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	<-done
	logger.Info("shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("shutdown error", "error", err)
	}
	logger.Info("server stopped")
}

// applyServerFlags overlays non-empty flag values onto cfg.
func applyServerFlags(cfg *config.Config) {
	if serverListen != "" {
		cfg.Listen = serverListen
	}
	if serverLogLevel != "" {
		cfg.LogLevel = serverLogLevel
	}
	if serverLogFormat != "" {
		cfg.LogFormat = serverLogFormat
	}
	if urls := splitList(serverWebhookURLs); len(urls) > 0 {
		cfg.WebhookURLs = urls
	}
}

// splitList splits a comma-separated list, dropping blank entries.
func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
