package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	config "taskmate/app/configs"
	"taskmate/app/core/interaction/cli"
	httpchannel "taskmate/app/core/interaction/http"
	"taskmate/app/core/interaction/telegram"
	"taskmate/app/core/runtime"
	"taskmate/app/pkg/logger"
)

var Version = "dev"

func main() {
	var configPath string
	rootCmd := &cobra.Command{
		Use:           "taskmate",
		Short:         "TaskMate - a conversational task manager",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", config.DefaultPath(), "config file (.yaml or .json)")

	rootCmd.AddCommand(serveCmd(&configPath))
	rootCmd.AddCommand(chatCmd(&configPath))
	rootCmd.AddCommand(configCmd(&configPath))

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func serveCmd(configPath *string) *cobra.Command {
	var withCLI bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve TaskMate over HTTP and Telegram",
		Long: `Start the HTTP and Telegram channels and background jobs.

Examples:
  taskmate serve
  taskmate serve --cli
  TASKMATE_HTTP_PORT=9000 taskmate serve`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(*configPath)
			if err != nil {
				return err
			}
			if withCLI {
				err = logger.InitFileOnly(cfg.Log.Dir, cfg.Log.Level)
			} else {
				err = logger.InitWithLevel(cfg.Log.Dir, cfg.Log.Level)
			}
			if err != nil {
				return fmt.Errorf("init logger: %w", err)
			}
			defer logger.Sync()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			app, err := runtime.Build(ctx, cfg)
			if err != nil {
				return err
			}
			defer app.Close()

			if cfg.HTTP.Enabled {
				ch := httpchannel.NewHTTPChannel(fmt.Sprintf(":%d", cfg.HTTP.Port))
				ch.SetTaskBackend(app.Search, app.Store)
				ch.SetStatusProvider(app.Status.Snapshot)
				app.RegisterChannel(ch)
				fmt.Printf("HTTP API: http://localhost:%d/api/message (POST), /api/tasks\n", cfg.HTTP.Port)
			}
			if token := cfg.Telegram.BotToken; token != "" {
				app.RegisterChannel(telegram.NewChannel(telegram.Config{
					BotToken:       token,
					TimeoutSeconds: cfg.Telegram.PollTimeoutSec,
				}))
			}
			if withCLI {
				// Leaving the CLI shuts the whole process down.
				app.RegisterChannel(cli.NewCLIChannel(cfg.CLI.UserID))
				return runUntilCLIExit(ctx, app)
			}
			if !cfg.HTTP.Enabled && cfg.Telegram.BotToken == "" {
				return fmt.Errorf("no channel enabled: set http.enabled, telegram.bot_token or pass --cli")
			}

			logger.Info("%s is ready to serve", cfg.Agent.Name)
			return app.Run(ctx)
		},
	}
	cmd.Flags().BoolVar(&withCLI, "cli", false, "also chat on this terminal")
	return cmd
}

func chatCmd(configPath *string) *cobra.Command {
	var user string
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Chat with TaskMate in the terminal",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(*configPath)
			if err != nil {
				return err
			}
			if user != "" {
				cfg.CLI.UserID = user
			}
			if err := logger.InitFileOnly(cfg.Log.Dir, cfg.Log.Level); err != nil {
				return fmt.Errorf("init logger: %w", err)
			}
			defer logger.Sync()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			app, err := runtime.Build(ctx, cfg)
			if err != nil {
				return err
			}
			defer app.Close()

			app.RegisterChannel(cli.NewCLIChannel(cfg.CLI.UserID))
			return app.Run(ctx)
		},
	}
	cmd.Flags().StringVarP(&user, "user", "u", "", "chat as this user (default cli.user_id)")
	return cmd
}

func configCmd(configPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect the configuration",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "check",
		Short: "Validate the effective config and print a JSON report",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(*configPath)
			if err != nil {
				return err
			}
			report := config.Preflight(*configPath, cfg)
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			if err := enc.Encode(report); err != nil {
				return err
			}
			if !report.Passed {
				return fmt.Errorf("config check failed")
			}
			return nil
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Print the effective config with secrets masked",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(*configPath)
			if err != nil {
				return err
			}
			cfg.LLM.APIKey = mask(cfg.LLM.APIKey)
			cfg.Embedding.APIKey = mask(cfg.Embedding.APIKey)
			cfg.Telegram.BotToken = mask(cfg.Telegram.BotToken)
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(cfg)
		},
	})
	return cmd
}

func loadConfig(path string) (config.Config, error) {
	mgr, err := config.NewManager(path)
	if err != nil {
		return config.Config{}, fmt.Errorf("load config: %w", err)
	}
	return mgr.Get(), nil
}

// runUntilCLIExit stops the other channels once the terminal session ends.
func runUntilCLIExit(parent context.Context, app *runtime.App) error {
	ctx, cancel := context.WithCancel(parent)
	defer cancel()
	app.Gateway.OnChannelStopped("cli", cancel)
	return app.Run(ctx)
}

func mask(secret string) string {
	if len(secret) <= 4 {
		if secret == "" {
			return ""
		}
		return "****"
	}
	return secret[:2] + "****" + secret[len(secret)-2:]
}
