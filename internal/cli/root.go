// Package cli implements the toolchat command line.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/petasbytes/toolchat/internal/config"
	"github.com/petasbytes/toolchat/internal/history"
	"github.com/petasbytes/toolchat/internal/metrics"
	"github.com/petasbytes/toolchat/internal/provider"
	"github.com/petasbytes/toolchat/internal/runner"
	"github.com/petasbytes/toolchat/internal/telemetry"
	"github.com/petasbytes/toolchat/internal/toolsession"
)

// NewRootCmd builds the toolchat command tree. Running the root without a
// subcommand starts the chat REPL.
func NewRootCmd(version string) *cobra.Command {
	root := &cobra.Command{
		Use:   "toolchat",
		Short: "Chat with Claude using tools from an MCP server",
		// SilenceUsage prevents printing usage on every error
		SilenceUsage: true,
		RunE:         runChat,
	}
	root.PersistentFlags().String("config", "", "Path to config file (default: ./toolchat.yaml or ~/.toolchat/config.yaml)")
	root.PersistentFlags().Bool("verbose", false, "Enable debug logging")
	root.PersistentFlags().String("server", "", "Tool server entry point passed to the server command")
	root.PersistentFlags().String("model", "", "Model identifier")

	root.Version = version
	root.SetVersionTemplate(fmt.Sprintf("toolchat version %s\n", version))

	root.AddCommand(newChatCmd())
	root.AddCommand(newToolsCmd())
	root.AddCommand(newHistoryCmd())
	root.AddCommand(newConfigCmd())
	return root
}

// app holds everything a command needs, built once from config.
type app struct {
	cfg      config.Config
	logger   *slog.Logger
	reader   *sdkmetric.ManualReader
	recorder *metrics.Recorder
	store    *history.SQLiteStore
	closers  []func(context.Context) error
}

func loadConfig(cmd *cobra.Command) (config.Config, error) {
	explicit, _ := cmd.Flags().GetString("config")
	path, _, err := config.DiscoverPath(explicit)
	if err != nil {
		return config.Config{}, exitError(exitConfig, "%s", err)
	}
	cfg, err := config.Load(path)
	if err != nil {
		return config.Config{}, exitError(exitConfig, "%s", err)
	}
	if v, _ := cmd.Flags().GetString("server"); strings.TrimSpace(v) != "" {
		cfg.Server.Args = []string{strings.TrimSpace(v)}
	}
	if v, _ := cmd.Flags().GetString("model"); strings.TrimSpace(v) != "" {
		cfg.Model = strings.TrimSpace(v)
	}
	if verbose, _ := cmd.Flags().GetBool("verbose"); verbose {
		cfg.LogLevel = "debug"
	}
	return cfg, nil
}

func newLogger(w io.Writer, level string) *slog.Logger {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: lvl}))
}

// setup wires logging, telemetry, metrics and the optional history store.
// Callers must run a.close.
func setup(cmd *cobra.Command, withHistory bool) (*app, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	a := &app{cfg: cfg, logger: newLogger(cmd.ErrOrStderr(), cfg.LogLevel)}
	slog.SetDefault(a.logger)

	if cfg.Observe.Events {
		telemetry.SetObserve(true)
	}
	telemetry.SetArtifactsDir(cfg.Observe.ArtifactsDir)

	if err := a.setupTracing(cmd.Context()); err != nil {
		return nil, exitError(exitConfig, "tracing: %s", err)
	}

	a.reader = sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(a.reader))
	otel.SetMeterProvider(mp)
	a.closers = append(a.closers, mp.Shutdown)
	if a.recorder, err = metrics.NewRecorder(mp.Meter("github.com/petasbytes/toolchat")); err != nil {
		a.close(cmd.Context())
		return nil, exitError(exitRuntime, "metrics: %s", err)
	}

	if withHistory && cfg.HistoryEnabled() {
		store, err := history.NewSQLiteStore(cfg.History.Path)
		if err != nil {
			// History is informational; chat still works without it.
			a.logger.Warn("tool-call history disabled", "path", cfg.History.Path, "error", err)
		} else {
			a.store = store
			a.closers = append(a.closers, func(context.Context) error { return store.Close() })
		}
	}
	return a, nil
}

func (a *app) setupTracing(ctx context.Context) error {
	var opts []sdktrace.TracerProviderOption
	if endpoint := strings.TrimSpace(a.cfg.Observe.OTelEndpoint); endpoint != "" {
		exp, err := otlptracehttp.New(ctx, otlptracehttp.WithEndpointURL(endpoint))
		if err != nil {
			return err
		}
		opts = append(opts, sdktrace.WithBatcher(exp))
	}
	tp := sdktrace.NewTracerProvider(opts...)
	otel.SetTracerProvider(tp)
	a.closers = append(a.closers, tp.Shutdown)
	return nil
}

func (a *app) close(ctx context.Context) {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](context.WithoutCancel(ctx)); err != nil {
			a.logger.Warn("shutdown", "error", err)
		}
	}
	a.closers = nil
}

func (a *app) manager() *toolsession.Manager {
	opts := []toolsession.Option{
		toolsession.WithLogger(a.logger),
		toolsession.WithMetrics(a.recorder),
	}
	if a.store != nil {
		opts = append(opts, toolsession.WithRecorder(a.store))
	}
	return toolsession.NewManager(a.cfg.ToolSession(), opts...)
}

var errMissingKey = errors.New("missing ANTHROPIC_API_KEY; export it or set api_key in the config file")

func (a *app) runner() (*runner.Runner, error) {
	if a.cfg.APIKey == "" {
		return nil, errMissingKey
	}
	opts := []option.RequestOption{option.WithAPIKey(a.cfg.APIKey)}
	if a.cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(a.cfg.BaseURL))
	}
	return runner.New(provider.NewAnthropicClient(opts...), a.manager(),
		runner.WithModel(anthropic.Model(a.cfg.Model)),
		runner.WithMaxTokens(a.cfg.MaxTokens),
		runner.WithMaxRounds(a.cfg.MaxRounds),
		runner.WithWindowBudget(a.cfg.WindowBudget),
		runner.WithLogger(a.logger),
		runner.WithMetrics(a.recorder),
	), nil
}
