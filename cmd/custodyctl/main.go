package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/jmerrifield20/wtomax/pkg/client"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// version is overridden at build time via -ldflags "-X main.version=...".
var version = "dev"

var (
	serverURL  string
	cfgFile    string
	outFormat  string
	insecure   bool
	tokenFlag  string
	timeoutDur time.Duration
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "custodyctl",
	Short: "wTOMAX custody CLI",
	Long: `custodyctl talks to a custodyd server.

Guardians use it to vote on governance requests, the administrator to
execute them, and holders to wrap and unwrap. Run 'custodyctl login'
first; the token is cached in ~/.wtomax/token.`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if cfgFile != "" {
			viper.SetConfigFile(cfgFile)
		} else {
			home, _ := os.UserHomeDir()
			viper.AddConfigPath(filepath.Join(home, ".wtomax"))
			viper.SetConfigName("config")
			viper.SetConfigType("yaml")
		}
		viper.SetEnvPrefix("wtomax")
		viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
		viper.AutomaticEnv()
		_ = viper.ReadInConfig()

		if serverURL == "" {
			serverURL = viper.GetString("server")
		}
		if serverURL == "" {
			serverURL = "http://localhost:8080"
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default ~/.wtomax/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", "", "custodyd base URL (default http://localhost:8080)")
	rootCmd.PersistentFlags().StringVarP(&outFormat, "output", "o", "table", "Output format: table or json")
	rootCmd.PersistentFlags().BoolVar(&insecure, "insecure", false, "Skip TLS certificate verification (development only)")
	rootCmd.PersistentFlags().StringVar(&tokenFlag, "token", "", "Bearer token (overrides the cached login token)")
	rootCmd.PersistentFlags().DurationVar(&timeoutDur, "timeout", 15*time.Second, "Request timeout")

	rootCmd.AddCommand(versionCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the CLI version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("custodyctl", version)
	},
}

// ── helpers ──────────────────────────────────────────────────────────────────

func tokenPath() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".wtomax", "token")
}

// newClient builds an SDK client. When authed is set, a token must come
// from --token, WTOMAX_TOKEN, or a previous login.
func newClient(authed bool) (*client.Client, error) {
	var opts []client.Option
	if insecure {
		opts = append(opts, client.WithInsecureSkipVerify())
	}
	if authed {
		tok := tokenFlag
		if tok == "" {
			tok = viper.GetString("token")
		}
		if tok == "" {
			b, err := os.ReadFile(tokenPath())
			if err != nil {
				if errors.Is(err, os.ErrNotExist) {
					return nil, fmt.Errorf("not logged in; run 'custodyctl login' first")
				}
				return nil, fmt.Errorf("read token: %w", err)
			}
			tok = strings.TrimSpace(string(b))
		}
		opts = append(opts, client.WithBearerToken(tok))
	}
	return client.New(serverURL, opts...)
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func asJSON() bool { return outFormat == "json" }
