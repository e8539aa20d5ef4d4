package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/forgo/negotiator/internal/config"
	"github.com/forgo/negotiator/internal/server"
)

type serveOptions struct {
	host   string
	port   string
	reload bool
}

func addServeCommand(parent *cobra.Command, root *rootOptions) {
	opts := &serveOptions{}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the API server and frontend",
		Long: `Loads the env file when it exists, then serves the API, the frontend
entry page and /config.json.

With --reload the env file is watched and provider API keys are swapped in
place when it changes. Other settings need a restart.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := serveConfig(cmd, root, opts)
			if err != nil {
				return err
			}
			return runServe(cmd.Context(), cfg, root.envFile, opts.reload)
		},
	}

	cmd.Flags().StringVar(&opts.host, "host", "0.0.0.0", "Interface to bind")
	cmd.Flags().StringVarP(&opts.port, "port", "p", "", "Port to listen on (default $PORT or 8000)")
	cmd.Flags().BoolVar(&opts.reload, "reload", false, "Reload provider keys when the env file changes")

	parent.AddCommand(cmd)
}

// serveConfig loads configuration and applies the flags the user set
func serveConfig(cmd *cobra.Command, root *rootOptions, opts *serveOptions) (*config.Config, error) {
	cfg, err := loadConfig(root)
	if err != nil {
		return nil, err
	}
	if cmd.Flags().Changed("host") {
		cfg.Server.Host = opts.host
	}
	if cmd.Flags().Changed("port") {
		cfg.Server.Port = opts.port
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration (run 'negotiator doctor' for details):\n%w", err)
	}
	return cfg, nil
}

func runServe(ctx context.Context, cfg *config.Config, envFile string, reload bool) error {
	logger := server.NewLogger(os.Stdout, cfg.Server.LogLevel)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	srv, err := server.New(ctx, cfg, server.Options{Version: version, Logger: logger})
	if err != nil {
		return err
	}
	defer func() { _ = srv.Close() }()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return srv.ListenAndRun(gctx, cfg.Addr())
	})

	if reload {
		logger.Info("watching env file for key changes", slog.String("path", envFile))
		g.Go(func() error {
			return watchFile(gctx, envFile, reloadDebounce, func() {
				next, err := config.Reload(envFile)
				if err != nil {
					logger.Error("reloading env file failed", slog.String("error", err.Error()))
					return
				}
				if err := next.Validate(); err != nil {
					logger.Error("reloaded configuration is invalid, keeping current keys", slog.String("error", err.Error()))
					return
				}
				srv.Reconfigure(next)
			})
		})
	}

	return g.Wait()
}
