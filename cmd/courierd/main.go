package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"courier/internal/app"
	"courier/internal/auth"
	"courier/internal/domain"
	"courier/internal/domain/types"
	"courier/internal/logging"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "courierd:", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string
	root := &cobra.Command{
		Use:           "courierd",
		Short:         "Courier chat server",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "YAML config file")

	load := func() (*app.Config, *zap.Logger, error) {
		cfg, err := app.LoadConfig(configPath)
		if err != nil {
			return nil, nil, err
		}
		logger, err := logging.New(cfg.Log.Level, cfg.Log.Env)
		if err != nil {
			return nil, nil, err
		}
		return cfg, logger, nil
	}

	root.AddCommand(serveCmd(load), purgeCmd(load), tokenCmd(load))
	return root
}

type loader func() (*app.Config, *zap.Logger, error)

func serveCmd(load loader) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the REST and realtime server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := load()
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			srv, err := app.NewServer(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer srv.Close()

			if err := srv.Run(ctx); err != nil {
				logger.Error("server stopped with error", zap.Error(err))
				return err
			}
			logger.Info("server stopped")
			return nil
		},
	}
}

func purgeCmd(load loader) *cobra.Command {
	return &cobra.Command{
		Use:   "purge",
		Short: "Delete expired messages once and exit",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := load()
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			ctx, cancel := context.WithTimeout(cmd.Context(), 5*time.Minute)
			defer cancel()

			srv, err := app.NewServer(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer srv.Close()

			n, err := srv.PurgeOnce(ctx)
			if err != nil {
				return err
			}
			fmt.Printf("purged %d expired message(s)\n", n)
			return nil
		},
	}
}

func tokenCmd(load loader) *cobra.Command {
	var (
		role string
		ttl  time.Duration
	)
	cmd := &cobra.Command{
		Use:   "token <user-id>",
		Short: "Mint a bearer token for development",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := load()
			if err != nil {
				return err
			}
			r := types.Role(role)
			if r != types.RoleMember && r != types.RoleAdmin {
				return fmt.Errorf("unknown role %q, use member or admin", role)
			}
			jwt, err := auth.NewJWT(cfg.Auth.JWTSecret, cfg.Auth.Issuer)
			if err != nil {
				return err
			}
			tok, err := jwt.Issue(domain.Principal{UserID: domain.UserID(args[0]), Role: r}, ttl)
			if err != nil {
				return err
			}
			fmt.Println(tok)
			return nil
		},
	}
	cmd.Flags().StringVar(&role, "role", string(types.RoleMember), "member or admin")
	cmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "token lifetime")
	return cmd
}
