package commands

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"courier/internal/app"
	"courier/internal/domain"
	"courier/internal/domain/types"
	"courier/internal/logging"
)

const requestTimeout = 30 * time.Second

var (
	cfg    = viper.New()
	client *app.Client
)

// Execute runs the root command.
func Execute() error {
	root := newRootCmd()
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, color.RedString("✗")+" "+describe(err))
		return err
	}
	return nil
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "courier",
		Short:         "End-to-end encrypted team chat CLI",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			logger, err := logging.New(cfg.GetString("log-level"), "development")
			if err != nil {
				return err
			}
			client, err = app.NewClient(app.ClientConfig{
				Home:      cfg.GetString("home"),
				ServerURL: cfg.GetString("server"),
				Token:     cfg.GetString("token"),
				UserID:    domain.UserID(cfg.GetString("user")),
				DeviceID:  domain.DeviceID(cfg.GetString("device")),
			}, logger)
			return err
		},
	}

	flags := root.PersistentFlags()
	flags.String("home", "", "config dir (default ~/.courier)")
	flags.StringP("passphrase", "p", "", "passphrase protecting the device key")
	flags.String("server", "", "server base URL (e.g. http://127.0.0.1:8080)")
	flags.String("token", "", "bearer token issued by the server")
	flags.String("user", "", "your user id (must match the token)")
	flags.String("device", "", "device id (default cli-default)")
	flags.String("log-level", "warn", "log level: debug, info, warn or error")

	cfg.SetEnvPrefix(app.EnvPrefix)
	cfg.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	cfg.AutomaticEnv()
	_ = cfg.BindPFlags(flags)

	root.AddCommand(
		initCmd(),
		fingerprintCmd(),
		registerCmd(),
		conversationsCmd(),
		directCmd(),
		teamCmd(),
		retentionCmd(),
		sendCmd(),
		historyCmd(),
		searchCmd(),
		exportCmd(),
		watchCmd(),
	)
	return root
}

func passphrase() (string, error) {
	p := cfg.GetString("passphrase")
	if p == "" {
		return "", errors.New("passphrase required (-p or COURIER_PASSPHRASE)")
	}
	return p, nil
}

// withTimeout derives a bounded context for one round of requests.
func withTimeout(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	return context.WithTimeout(cmd.Context(), requestTimeout)
}

// bootstrap loads the device key and registers it so that the session
// controller can encrypt and decrypt.
func bootstrap(ctx context.Context) error {
	if err := client.Online(); err != nil {
		return err
	}
	p, err := passphrase()
	if err != nil {
		return err
	}
	_, _, err = client.Session.Bootstrap(ctx, p)
	return err
}

// describe renders err for the terminal, using the public message of typed
// errors.
func describe(err error) string {
	var derr *types.Error
	if !errors.As(err, &derr) {
		return err.Error()
	}
	switch derr.Kind {
	case types.KindKeyUnavailable:
		return "no device key, run " + color.YellowString("courier init") + " first"
	case types.KindUnauthenticated:
		return "not authenticated, check --token"
	case types.KindInternal:
		return err.Error()
	}
	return types.PublicMessage(err)
}

func ok(format string, a ...any) {
	fmt.Println(color.GreenString("✓") + " " + fmt.Sprintf(format, a...))
}

func info(format string, a ...any) {
	fmt.Println(color.CyanString("→") + " " + fmt.Sprintf(format, a...))
}
