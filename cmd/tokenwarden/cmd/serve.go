package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	inboundhttp "github.com/tokenwarden/tokenwarden/internal/adapter/inbound/http"
	outboundaudit "github.com/tokenwarden/tokenwarden/internal/adapter/outbound/audit"
	"github.com/tokenwarden/tokenwarden/internal/adapter/outbound/memory"
	"github.com/tokenwarden/tokenwarden/internal/config"
	"github.com/tokenwarden/tokenwarden/internal/domain/audit"
	"github.com/tokenwarden/tokenwarden/internal/domain/auth"
	"github.com/tokenwarden/tokenwarden/internal/service"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the decision API",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return runServe(cmd.Context())
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(ctx context.Context) error {
	cfg, err := config.Load(config.New(), cfgFile)
	if err != nil {
		return err
	}

	level := slog.LevelInfo
	if cfg.DevMode {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	if cfg.DevMode {
		shutdownTracing, err := setupDevTracing()
		if err != nil {
			return err
		}
		defer shutdownTracing()
	}

	store, err := buildAuditStore(cfg, logger)
	if err != nil {
		return err
	}

	// Decision records go through the async audit service so a slow sink
	// never stalls a decision; overflow is dropped and counted.
	auditor := service.NewAuditService(store, logger)
	defer func() { _ = auditor.Close() }()

	limits, err := cfg.Limits.ToLimits()
	if err != nil {
		return err
	}

	keys := make([]auth.Key, 0, len(cfg.Auth.Keys))
	for _, k := range cfg.Auth.Keys {
		keys = append(keys, auth.Key{Name: k.Name, Hash: k.Hash})
	}
	keyring := auth.NewKeyring(keys)
	if keyring.Empty() {
		logger.Warn("no api keys configured; decision API runs unauthenticated")
	}

	svc := service.NewAuthorizationService(limits, auditor, logger)
	server := inboundhttp.NewServer(cfg.Server.Addr, svc, auditor, keyring, logger)

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	auditor.Start(ctx)

	errCh := make(chan error, 1)
	go func() { errCh <- server.ListenAndServe() }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	// Stop drains queued records into the sink before the deferred Close.
	auditor.Stop()
	if err := store.Flush(shutdownCtx); err != nil {
		logger.Error("decision log flush failed", "error", err)
	}
	return <-errCh
}

// buildAuditStore selects the decision log sink from the audit.output
// scheme.
func buildAuditStore(cfg *config.Config, logger *slog.Logger) (audit.Store, error) {
	output := cfg.Audit.Output
	switch {
	case output == "stdout":
		return memory.NewAuditStore(), nil
	case strings.HasPrefix(output, "file://"):
		dir := strings.TrimPrefix(output, "file://")
		return outboundaudit.NewFileStore(outboundaudit.FileConfig{
			Dir:           dir,
			RetentionDays: cfg.Audit.RetentionDays,
		}, logger)
	case strings.HasPrefix(output, "sqlite://"):
		return outboundaudit.NewSQLiteStore(strings.TrimPrefix(output, "sqlite://"))
	default:
		return nil, fmt.Errorf("unsupported audit output %q", output)
	}
}

// setupDevTracing installs a stdout trace exporter so dev runs can see
// authorization spans. Returns the provider shutdown function.
func setupDevTracing() (func(), error) {
	exporter, err := stdouttrace.New(stdouttrace.WithPrettyPrint())
	if err != nil {
		return nil, fmt.Errorf("create trace exporter: %w", err)
	}
	provider := sdktrace.NewTracerProvider(sdktrace.WithBatcher(exporter))
	otel.SetTracerProvider(provider)
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = provider.Shutdown(ctx)
	}, nil
}
