// Command lowcode serves HTTP endpoints backed by node-graph flow documents.
//
// Usage:
//
//	lowcode [--config settings.json] [--env-file .env] <command>
//
// Commands:
//
//	serve     Serve flows over HTTP (default)
//	mcp       Serve the MCP tools over stdio
//	diagram   Render a controller's node graph
//	seal      Encrypt a value for use in settings
//	version   Print the build version
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/dominossauro/lowcode/internal/diagram"
	"github.com/dominossauro/lowcode/internal/loader"
	"github.com/dominossauro/lowcode/internal/logging"
	"github.com/dominossauro/lowcode/internal/validation"
)

type rootOptions struct {
	settingsPath string
	envFile      string
}

func (o *rootOptions) load() (Config, error) {
	return loadConfig(o.settingsPath, o.envFile, os.Getenv)
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	serve := &cobra.Command{
		Use:   "serve",
		Short: "Serve flows over HTTP",
		Args:  cobra.NoArgs,
		RunE:  func(cmd *cobra.Command, _ []string) error { return runServe(cmd.Context(), opts) },
	}

	root := &cobra.Command{
		Use:           "lowcode",
		Short:         "Low-code flow execution engine",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.NoArgs,
		RunE:          serve.RunE,
	}
	root.PersistentFlags().StringVar(&opts.settingsPath, "config", "settings.json", "settings file (ignored when missing)")
	root.PersistentFlags().StringVar(&opts.envFile, "env-file", ".env", "dotenv file loaded before reading LOWCODE_* variables")

	root.AddCommand(
		serve,
		&cobra.Command{
			Use:   "mcp",
			Short: "Serve the MCP tools over stdio",
			Args:  cobra.NoArgs,
			RunE:  func(cmd *cobra.Command, _ []string) error { return runMCP(cmd.Context(), opts) },
		},
		newDiagramCmd(opts),
		newSealCmd(opts),
		&cobra.Command{
			Use:   "version",
			Short: "Print the build version",
			Args:  cobra.NoArgs,
			Run: func(cmd *cobra.Command, _ []string) {
				fmt.Fprintln(cmd.OutOrStdout(), version)
			},
		},
	)
	return root
}

func runServe(parent context.Context, opts *rootOptions) error {
	cfg, err := opts.load()
	if err != nil {
		return err
	}
	level := new(slog.LevelVar)
	level.Set(logging.ParseLevel(cfg.LogLevel))
	logger := logging.NewLeveledLogger(level, cfg.LogFormat, os.Stderr)

	ctx, cancel := signal.NotifyContext(orBackground(parent), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.close()

	if err := a.reloader.Start(ctx); err != nil {
		return err
	}

	swapper := newHandlerSwapper(a.httpHandler(cfg))
	httpSrv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           swapper,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", "addr", cfg.ListenAddr, "version", version)
		errCh <- httpSrv.ListenAndServe()
	}()

	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)

	current := cfg
	for {
		select {
		case err := <-errCh:
			if errors.Is(err, http.ErrServerClosed) {
				return nil
			}
			return err
		case <-hup:
			current = a.reconfigure(ctx, opts, current, level, swapper)
		case <-ctx.Done():
			logger.Info("shutting down")
			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer shutdownCancel()
			if err := httpSrv.Shutdown(shutdownCtx); err != nil {
				logger.Error("shutdown error", "error", err)
			}
			logger.Info("stopped")
			return nil
		}
	}
}

// reconfigure handles SIGHUP: it reloads flows, re-reads the configuration and
// applies the fields that can change live. It returns the config now in effect.
func (a *app) reconfigure(ctx context.Context, opts *rootOptions, current Config, level *slog.LevelVar, swapper *handlerSwapper) Config {
	if _, err := a.reloader.Reload(ctx, true); err != nil {
		a.logger.Error("flow reload failed, keeping previous controllers", "error", err)
	}

	next, err := opts.load()
	if err != nil {
		a.logger.Error("config reload failed", "error", err)
		return current
	}
	return applyConfig(current, next, level, func(cfg Config) { swapper.Swap(a.httpHandler(cfg)) }, a.logger)
}

// applyConfig applies the live-changeable part of next and reports the rest.
func applyConfig(current, next Config, level *slog.LevelVar, rebuild func(Config), logger *slog.Logger) Config {
	d := diffConfigs(current, next)
	if d.Empty() {
		return current
	}
	if d.LogLevelChanged {
		level.Set(logging.ParseLevel(next.LogLevel))
		current.LogLevel = next.LogLevel
	}
	if d.ShowExceptionsChanged {
		current.ShowExceptions = next.ShowExceptions
		rebuild(current)
	}
	if len(d.RestartNeeded) > 0 {
		logger.Warn("config changes need a restart", "fields", d.RestartNeeded)
	}
	logger.Info("config reloaded", "log_level", current.LogLevel, "show_exceptions", current.ShowExceptions)
	return current
}

func runMCP(parent context.Context, opts *rootOptions) error {
	cfg, err := opts.load()
	if err != nil {
		return err
	}
	// stdout carries the protocol.
	logger := logging.NewLogger(cfg.LogLevel, cfg.LogFormat, os.Stderr)

	ctx, cancel := signal.NotifyContext(orBackground(parent), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.close()

	if err := a.reloader.Start(ctx); err != nil {
		return err
	}
	err = a.mcpServer().Serve(ctx)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func newDiagramCmd(opts *rootOptions) *cobra.Command {
	var format, out, flowsDir string
	cmd := &cobra.Command{
		Use:   "diagram <controller>",
		Short: "Render a controller's node graph",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.load()
			if err != nil {
				return err
			}
			if flowsDir == "" {
				flowsDir = cfg.FlowsDir
			}
			data, err := renderDiagram(cmd.Context(), flowsDir, args[0], format)
			if err != nil {
				return err
			}
			if out == "" {
				_, err = cmd.OutOrStdout().Write(data)
				return err
			}
			return os.WriteFile(out, data, 0o644)
		},
	}
	cmd.Flags().StringVar(&format, "format", "mermaid", "mermaid, ascii, svg or png")
	cmd.Flags().StringVarP(&out, "out", "o", "", "write to file instead of stdout")
	cmd.Flags().StringVar(&flowsDir, "flows", "", "flows directory (default: flows_dir from config)")
	return cmd
}

func newSealCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "seal <value>",
		Short: "Encrypt a value for use in settings",
		Long:  "Encrypts value with LOWCODE_SECRET_KEY. The output can replace a datasource dsn in settings.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			// Loads the env file so the key may come from it.
			if _, err := opts.load(); err != nil {
				return err
			}
			sealed, err := sealValue(os.Getenv, args[0])
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), sealed)
			return nil
		},
	}
}

func sealValue(getenv func(string) string, value string) (string, error) {
	sealer, err := sealerFromEnv(getenv)
	if err != nil {
		return "", err
	}
	if sealer == nil {
		return "", fmt.Errorf("%sSECRET_KEY is not set", envPrefix)
	}
	return sealer.Seal(value)
}

func newLoader() (*loader.Loader, error) {
	validator, err := validation.NewDocumentValidator()
	if err != nil {
		return nil, fmt.Errorf("document validator: %w", err)
	}
	return loader.New(validator, logging.Discard()), nil
}

func renderDiagram(ctx context.Context, flowsDir, controller, format string) ([]byte, error) {
	ld, err := newLoader()
	if err != nil {
		return nil, err
	}
	catalog, err := ld.LoadDir(flowsDir)
	if err != nil {
		return nil, err
	}
	ctrl, err := catalog.Get(controller)
	if err != nil {
		return nil, err
	}
	model := diagram.Build(ctrl, nil)

	switch format {
	case "mermaid":
		return []byte(diagram.RenderMermaid(model)), nil
	case "ascii":
		return []byte(diagram.RenderASCII(model)), nil
	case "svg", "png":
		return diagram.RenderImage(orBackground(ctx), model, diagram.ImageFormat(format))
	default:
		return nil, fmt.Errorf("unsupported format %q", format)
	}
}

func orBackground(ctx context.Context) context.Context {
	if ctx == nil {
		return context.Background()
	}
	return ctx
}
