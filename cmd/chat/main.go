package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/zhouzirui/z-tavern/chatclient/internal/config"
	"github.com/zhouzirui/z-tavern/chatclient/internal/gateway"
	"github.com/zhouzirui/z-tavern/chatclient/internal/logging"
	"github.com/zhouzirui/z-tavern/chatclient/internal/session"
)

// app carries what every subcommand needs once flags and env are resolved.
type app struct {
	cfg     *config.Config
	gateway *gateway.Client
}

func (a *app) controller(opts ...session.Option) *session.Controller {
	opts = append(opts, session.WithDefaultTitle(a.cfg.Client.DefaultTitle))
	return session.NewController(a.gateway, opts...)
}

func newRootCommand() *cobra.Command {
	a := &app{}

	root := &cobra.Command{
		Use:           "chat",
		Short:         "Chat with the assistant from the terminal",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			// tui owns the terminal, so console logs stay off there
			return a.setup(cmd, cmd.Name() == "tui" || cmd.Name() == "chat")
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTUI(cmd.Context(), a)
		},
	}

	flags := root.PersistentFlags()
	flags.String("api-url", "", "base URL of the conversation API (CHAT_API_URL)")
	flags.String("token", "", "bearer token (CHAT_API_TOKEN)")
	flags.Bool("allow-opaque-token", false, "accept tokens that are not JWTs (CHAT_ALLOW_OPAQUE_TOKEN)")
	flags.Duration("timeout", 0, "per-request timeout, 0 disables it (CHAT_REQUEST_TIMEOUT)")
	flags.String("log-level", "", "log level (LOG_LEVEL)")
	flags.String("log-file", "", "write logs to this file (LOG_FILE)")

	root.AddCommand(
		&cobra.Command{
			Use:   "tui",
			Short: "Open the interactive chat (default)",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return runTUI(cmd.Context(), a)
			},
		},
		newListCommand(a),
		newSendCommand(a),
		newDeleteCommand(a),
	)

	return root
}

func (a *app) setup(cmd *cobra.Command, quiet bool) error {
	envErr := godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return errors.Wrap(err, "load configuration")
	}
	if err := applyFlags(cmd, cfg); err != nil {
		return err
	}

	logging.Init(logging.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		File:   cfg.Log.File,
		Quiet:  quiet,
	})
	if envErr != nil {
		log.Debug().Err(envErr).Msg("no .env file, continuing with system environment variables only")
	}

	client, err := gateway.New(gateway.Config{
		BaseURL:          cfg.Client.APIURL,
		Token:            cfg.Client.Token,
		AllowOpaqueToken: cfg.Client.AllowOpaqueToken,
		Timeout:          cfg.Client.RequestTimeout,
	}, nil)
	if err != nil {
		return err
	}

	a.cfg = cfg
	a.gateway = client
	return nil
}

// applyFlags lets explicitly set flags override the environment.
func applyFlags(cmd *cobra.Command, cfg *config.Config) error {
	flags := cmd.Flags()
	var err error
	if flags.Changed("api-url") {
		cfg.Client.APIURL, err = flags.GetString("api-url")
	}
	if err == nil && flags.Changed("token") {
		cfg.Client.Token, err = flags.GetString("token")
	}
	if err == nil && flags.Changed("allow-opaque-token") {
		cfg.Client.AllowOpaqueToken, err = flags.GetBool("allow-opaque-token")
	}
	if err == nil && flags.Changed("timeout") {
		var timeout time.Duration
		timeout, err = flags.GetDuration("timeout")
		if err == nil && timeout < 0 {
			err = errors.Errorf("invalid --timeout %s: must not be negative", timeout)
		}
		cfg.Client.RequestTimeout = timeout
	}
	if err == nil && flags.Changed("log-level") {
		cfg.Log.Level, err = flags.GetString("log-level")
	}
	if err == nil && flags.Changed("log-file") {
		cfg.Log.File, err = flags.GetString("log-file")
	}
	return err
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCommand().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		stop()
		os.Exit(1)
	}
}
