package cmd

import (
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/conneroisu/previewd/internal/config"
	"github.com/conneroisu/previewd/internal/diagnostics"
	"github.com/conneroisu/previewd/internal/editor"
	"github.com/conneroisu/previewd/internal/errors"
	"github.com/conneroisu/previewd/internal/logging"
	"github.com/conneroisu/previewd/internal/metrics"
	"github.com/conneroisu/previewd/internal/pages"
	"github.com/conneroisu/previewd/internal/pipeline"
	"github.com/conneroisu/previewd/internal/render"
	"github.com/conneroisu/previewd/internal/server"
)

var serveCmd = &cobra.Command{
	Use:     "serve",
	Aliases: []string{"s", "develop"},
	Short:   "Start the development preview server",
	Long: `Start the development preview server.

Every request goes through a fixed handler chain: hot-update guard, GraphQL,
refresh webhook, editor launch, reverse proxy, on-demand render, static files.

Examples:
  previewd serve
  previewd serve --port 9000 --open
  previewd serve --root ./site --renderer-workers 4`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	flags := serveCmd.Flags()
	flags.IntP("port", "p", 8000, "Port to serve on")
	flags.String("host", "localhost", "Host to bind to")
	flags.Bool("open", false, "Open the browser once the server is listening")
	flags.String("root", ".", "Project root directory")
	flags.Int("renderer-workers", 2, "Maximum concurrent render processes")
	flags.String("graphql-ide", config.IDEGraphiQL, "GraphQL explorer (graphiql, playground)")
	flags.Bool("no-hot-reload", false, "Do not inject the live-reload client into rendered pages")

	bindFlags(flags, map[string]string{
		"server.port":    "port",
		"server.host":    "host",
		"server.open":    "open",
		"project.root":   "root",
		"render.workers": "renderer-workers",
		"graphql.ide":    "graphql-ide",
	})
}

func bindFlags(flags *pflag.FlagSet, keys map[string]string) {
	for key, name := range keys {
		_ = viper.BindPFlag(key, flags.Lookup(name))
	}
}

func runServe(cmd *cobra.Command, _ []string) error {
	logger, err := newLogger()
	if err != nil {
		return err
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	if noHotReload, _ := cmd.Flags().GetBool("no-hot-reload"); noHotReload {
		cfg.Development.HotReload = false
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	srv, err := buildServer(cfg, logger)
	if err != nil {
		return err
	}

	if err := srv.Start(ctx); err != nil {
		if errors.IsConfigError(err) {
			return err
		}
		return errors.NewNetworkError(errors.ErrCodeServerStart,
			fmt.Sprintf("preview server on %s stopped", cfg.Addr()), err)
	}
	return nil
}

// buildServer wires the configured components into a PreviewServer.
func buildServer(cfg *config.Config, logger logging.Logger) (*server.PreviewServer, error) {
	m := metrics.New()

	pool, err := render.NewProcessPool(cfg.Render.Command, cfg.Render.Workers, cfg.Project.Root, logger)
	if err != nil {
		return nil, errors.NewConfigError(errors.ErrCodeInvalidConfig, err.Error())
	}

	opts := server.Options{
		Config:      cfg,
		Logger:      logger,
		Metrics:     m,
		Pages:       pages.NewIndex(cfg.ProjectPath(cfg.Project.PageManifest), logger),
		Renderer:    render.NewRenderer(pool, logger, m),
		Diagnostics: diagnostics.NewBuilder(cfg.Project.Root, cfg.Project.StripSegments, diagnostics.NewSourceCache(0)),
		Editor:      editor.NewCommandLauncher(cfg.Editor.Command, logger),
	}

	if cfg.GraphQL.Upstream != "" {
		opts.Executor = pipeline.NewRemoteExecutor(cfg.GraphQL.Upstream, &http.Client{Timeout: 30 * time.Second})
	}

	return server.New(opts)
}
