package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/jmerrifield20/wtomax/internal/identity"
	"github.com/spf13/cobra"
)

// ── login ────────────────────────────────────────────────────────────────────

var loginSecret string

var loginCmd = &cobra.Command{
	Use:   "login <address>",
	Short: "Exchange an address secret for a caller token",
	Long: `login authenticates against POST /api/v1/auth/token and caches the
returned bearer token in ~/.wtomax/token (mode 0600).

The secret is read from --secret, WTOMAX_SECRET, or prompted on stdin.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		secret := loginSecret
		if secret == "" {
			secret = os.Getenv("WTOMAX_SECRET")
		}
		if secret == "" {
			fmt.Fprint(os.Stderr, "secret: ")
			line, err := bufio.NewReader(os.Stdin).ReadString('\n')
			if err != nil {
				return fmt.Errorf("read secret: %w", err)
			}
			secret = strings.TrimSpace(line)
		}

		c, err := newClient(false)
		if err != nil {
			return err
		}
		ctx, cancel := context.WithTimeout(context.Background(), timeoutDur)
		defer cancel()

		tok, err := c.Login(ctx, args[0], secret)
		if err != nil {
			return fmt.Errorf("login: %w", err)
		}

		path := tokenPath()
		if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
			return fmt.Errorf("create token dir: %w", err)
		}
		if err := os.WriteFile(path, []byte(tok.AccessToken+"\n"), 0o600); err != nil {
			return fmt.Errorf("write token: %w", err)
		}

		fmt.Printf("✓ Logged in as %s\n", args[0])
		fmt.Printf("  Token expires in %ds, cached at %s\n", tok.ExpiresIn, path)
		return nil
	},
}

var whoamiCmd = &cobra.Command{
	Use:   "whoami",
	Short: "Show the address the cached token identifies",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient(true)
		if err != nil {
			return err
		}
		ctx, cancel := context.WithTimeout(context.Background(), timeoutDur)
		defer cancel()
		addr, err := c.WhoAmI(ctx)
		if err != nil {
			return err
		}
		fmt.Println(addr)
		return nil
	},
}

// ── hash-secret ──────────────────────────────────────────────────────────────

var hashSecretCmd = &cobra.Command{
	Use:   "hash-secret <secret>",
	Short: "Print the bcrypt hash to put under identity.credentials in custodyd.yaml",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		h, err := identity.HashSecret(args[0])
		if err != nil {
			return err
		}
		fmt.Println(h)
		return nil
	},
}

func init() {
	loginCmd.Flags().StringVar(&loginSecret, "secret", "", "Caller secret")
	rootCmd.AddCommand(loginCmd, whoamiCmd, hashSecretCmd)
}
