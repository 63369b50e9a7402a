package commands

import (
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/aerosense-dev/aerosense/internal/cli/config"
)

const defaultServerURL = "http://localhost:8080"

// NewInitCmd creates the init command
func NewInitCmd() *cobra.Command {
	var alias string

	cmd := &cobra.Command{
		Use:   "init [server-url]",
		Short: "Create or extend aerosense.yaml in the current directory",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			serverURL := defaultServerURL
			if len(args) > 0 {
				serverURL = args[0]
			}

			currentDir, err := os.Getwd()
			if err != nil {
				return fmt.Errorf("failed to get current directory: %w", err)
			}
			return runInit(currentDir, cmd.OutOrStdout(), serverURL, alias)
		},
	}

	cmd.Flags().StringVar(&alias, "alias", "", "Alias for the server (default: local, then server-N)")

	return cmd
}

func runInit(dir string, out io.Writer, serverURL, alias string) error {
	serverURL = strings.TrimRight(strings.TrimSpace(serverURL), "/")
	parsed, err := url.Parse(serverURL)
	if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") || parsed.Host == "" {
		return fmt.Errorf("invalid server URL %q: expected http(s)://host[:port]", serverURL)
	}

	configPath := filepath.Join(dir, config.ConfigFileName)

	var cfg *config.Config
	isNewConfig := false

	if _, err := os.Stat(configPath); err == nil {
		cfg, err = config.Load(configPath)
		if err != nil {
			return fmt.Errorf("failed to load existing config: %w", err)
		}
		fmt.Fprintf(out, "Found existing %s\n", config.ConfigFileName)
	} else {
		cfg = config.DefaultConfig()
		cfg.Servers = nil
		isNewConfig = true
	}

	if _, err := cfg.GetServerByURLOrAlias(serverURL); err == nil {
		fmt.Fprintf(out, "Server %s already exists in %s\n", serverURL, config.ConfigFileName)
		return nil
	}

	if alias == "" {
		if len(cfg.Servers) == 0 {
			alias = "local"
		} else {
			alias = fmt.Sprintf("server-%d", len(cfg.Servers)+1)
		}
	}
	if _, err := cfg.GetServerByAlias(alias); err == nil {
		return fmt.Errorf("alias '%s' is already used in %s", alias, config.ConfigFileName)
	}

	cfg.Servers = append(cfg.Servers, config.Server{Alias: alias, URL: serverURL})

	if err := config.Save(configPath, cfg); err != nil {
		return err
	}

	if isNewConfig {
		fmt.Fprintf(out, "✓ Created ./%s with server %s (%s)\n", config.ConfigFileName, serverURL, alias)
	} else {
		fmt.Fprintf(out, "✓ Added server %s (%s) to ./%s\n", serverURL, alias, config.ConfigFileName)
	}

	fmt.Fprintln(out, "\nNext steps:")
	fmt.Fprintln(out, "  1. Run 'aerosense signup' to create an account, or")
	fmt.Fprintln(out, "  2. Run 'aerosense login' to sign in")

	return nil
}
