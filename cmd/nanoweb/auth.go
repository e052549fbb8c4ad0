package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"nanoweb/pkg/console"
)

var (
	loginHost string
	loginPort int
	loginUser string
)

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Log in to a nanobot host through the gateway",
	Long: `Log in with SSH credentials for the nanobot host.

The gateway verifies the credentials by opening an SSH connection and
returns a token that the other commands use. Empty fields fall back to the
gateway's ssh defaults.

Examples:
  nanoweb login --host 10.0.0.5 --user root
  nanoweb login --host 10.0.0.5 --port 2222`,
	RunE: runLogin,
}

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Revoke and forget the stored token",
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := newClientEnv()
		if err != nil {
			return err
		}
		if env.store.IsAuthenticated() {
			// The local token is cleared even if the gateway is unreachable.
			if err := env.client.Logout(context.Background()); err != nil {
				fmt.Fprintf(os.Stderr, "Warning: %v\n", err)
			}
		}
		if err := env.store.Logout(); err != nil {
			return err
		}
		fmt.Println("Logged out.")
		return nil
	},
}

var whoamiCmd = &cobra.Command{
	Use:   "whoami",
	Short: "Show the host behind the current session",
	RunE: withClient(func(ctx context.Context, env *clientEnv) error {
		info, err := env.client.Me(ctx)
		if err != nil {
			return err
		}
		env.store.SetServerInfo(info)
		fmt.Printf("%s@%s:%d\n", info.Username, info.Host, info.Port)
		return nil
	}),
}

var probeCmd = &cobra.Command{
	Use:   "probe <host>",
	Short: "Check which SSH ports are open on a host",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := newClientEnv()
		if err != nil {
			return err
		}
		res, err := env.client.TestConnectivity(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		fmt.Print(renderConnectivity(res))
		return nil
	},
}

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Check that the gateway is up",
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := newClientEnv()
		if err != nil {
			return err
		}
		h, err := env.client.Health(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Printf("%s %s (version %s)\n", env.client.BaseURL(), h.Status, h.Version)
		return nil
	},
}

func init() {
	loginCmd.Flags().StringVar(&loginHost, "host", "", "nanobot host (IP or name)")
	loginCmd.Flags().IntVarP(&loginPort, "port", "p", 22, "SSH port")
	loginCmd.Flags().StringVarP(&loginUser, "user", "u", "root", "SSH user")

	rootCmd.AddCommand(loginCmd)
	rootCmd.AddCommand(logoutCmd)
	rootCmd.AddCommand(whoamiCmd)
	rootCmd.AddCommand(probeCmd)
	rootCmd.AddCommand(healthCmd)
}

func runLogin(cmd *cobra.Command, args []string) error {
	env, err := newClientEnv()
	if err != nil {
		return err
	}

	host := strings.TrimSpace(loginHost)
	if host == "" && term.IsTerminal(int(os.Stdin.Fd())) {
		fmt.Print("Host: ")
		line, _ := bufio.NewReader(os.Stdin).ReadString('\n')
		host = strings.TrimSpace(line)
	}

	password, err := readPassword(fmt.Sprintf("Password for %s@%s: ", loginUser, host))
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	fmt.Println("Connecting via SSH...")
	if _, err := env.client.Login(ctx, console.LoginRequest{
		Host:     host,
		Port:     loginPort,
		Username: loginUser,
		Password: password,
	}); err != nil {
		return err
	}
	env.store.SetAuthenticated(true)

	info, err := env.client.Me(ctx)
	if err != nil {
		return err
	}
	env.store.SetServerInfo(info)
	fmt.Printf("Logged in to %s@%s:%d\n", info.Username, info.Host, info.Port)
	return nil
}

// readPassword prompts without echo on a terminal and reads a plain line
// otherwise, so passwords can be piped in.
func readPassword(prompt string) (string, error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		line, err := bufio.NewReader(os.Stdin).ReadString('\n')
		if err != nil && line == "" {
			return "", nil
		}
		return strings.TrimRight(line, "\r\n"), nil
	}

	fmt.Print(prompt)
	raw, err := term.ReadPassword(fd)
	fmt.Println()
	if err != nil {
		return "", fmt.Errorf("read password: %w", err)
	}
	return string(raw), nil
}
