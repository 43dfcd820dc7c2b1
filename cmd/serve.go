package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/gencohq/genco/pkg/config"
	"github.com/gencohq/genco/pkg/logutil"
	"github.com/gencohq/genco/pkg/proxy"
)

var (
	serveConfigPath         string
	serveListenAddrOverride string
	serveEnvFile            string
)

func init() {
	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the backend server",
		RunE: func(cmd *cobra.Command, args []string) error {
			// Secrets (signing secret, login users, provider keys) live in
			// the environment; an optional .env file seeds it for dev.
			if err := godotenv.Load(serveEnvFile); err != nil && !errors.Is(err, os.ErrNotExist) {
				return fmt.Errorf("load env file: %w", err)
			}

			cfg, err := config.LoadOrCreate(serveConfigPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			if cmd.Flags().Changed("listen-addr") {
				cfg.ListenAddr = serveListenAddrOverride
			}
			if rootLogLevel == "" {
				if err := logutil.Configure(cfg.LogLevel); err != nil {
					return err
				}
			}

			srv, err := proxy.NewServer(cfg)
			if err != nil {
				return fmt.Errorf("create server: %w", err)
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			return srv.Run(ctx)
		},
	}
	serveCmd.Flags().StringVar(&serveConfigPath, "config", config.DefaultConfigPath(), "Server config TOML path")
	serveCmd.Flags().StringVar(&serveListenAddrOverride, "listen-addr", "", "Override listen address from config (e.g. 127.0.0.1:8787)")
	serveCmd.Flags().StringVar(&serveEnvFile, "env-file", ".env", "Env file with secrets to load before start")
	rootCmd.AddCommand(serveCmd)
}
