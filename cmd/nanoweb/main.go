// Package main is the entry point for the nanoweb CLI: the gateway server
// and the terminal console that talks to it.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"nanoweb/pkg/config"
	"nanoweb/pkg/console"
	"nanoweb/pkg/logger"
	"nanoweb/pkg/version"
)

var (
	configPath string
	serverURL  string
)

var rootCmd = &cobra.Command{
	Use:   "nanoweb",
	Short: "nanoweb - remote console for nanobot",
	Long: `nanoweb manages a nanobot installation over SSH.

Run "nanoweb serve" on a machine that can reach the nanobot host, then use
the console commands (login, dashboard, config, chat, ...) against it.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println(version.GetFullVersion())
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "config file path")
	rootCmd.PersistentFlags().StringVarP(&serverURL, "server", "s", "", "gateway URL (overrides client.server_url)")

	rootCmd.AddCommand(versionCmd)
}

// clientEnv bundles what the console commands need.
type clientEnv struct {
	cfg    *config.Config
	log    *logger.Logger
	tokens *console.TokenStore
	client *console.Client
	store  *console.Store
}

func newClientEnv() (*clientEnv, error) {
	cfg, err := config.NewLoader().Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	logCfg := cfg.LoggerSettings().ToLoggerConfig()
	logCfg.Quiet = true
	log, err := logger.New(logCfg)
	if err != nil {
		log = logger.NewNop()
	}

	base := cfg.Client.ServerURL
	if strings.TrimSpace(serverURL) != "" {
		base = serverURL
	}

	tokens := console.NewTokenStore(cfg.Client.TokenFile)
	return &clientEnv{
		cfg:    cfg,
		log:    log,
		tokens: tokens,
		client: console.NewClient(base, tokens),
		store:  console.NewStore(tokens),
	}, nil
}

// requireLogin fails early when no token is stored.
func (e *clientEnv) requireLogin() error {
	if !e.store.IsAuthenticated() {
		return errors.New(`not logged in; run "nanoweb login" first`)
	}
	return nil
}

// withClient runs fn with a logged-in client and a context cancelled on
// interrupt.
func withClient(fn func(ctx context.Context, env *clientEnv) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		env, err := newClientEnv()
		if err != nil {
			return err
		}
		defer env.log.Sync()
		if err := env.requireLogin(); err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		err = fn(ctx, env)
		if errors.Is(err, console.ErrUnauthorized) {
			return fmt.Errorf("%w (session expired; run \"nanoweb login\" again)", err)
		}
		return err
	}
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
