package commands

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/aerosense-dev/aerosense/internal/cli/config"
	"github.com/aerosense-dev/aerosense/internal/cli/serverselect"
	"github.com/aerosense-dev/aerosense/internal/cli/userconfig"
)

// NewSelectServerCmd creates the select-server command
func NewSelectServerCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "select-server [url-or-alias]",
		Short: "Select the server to use for commands",
		Long: `Select the server to use for commands.

If no param is provided, an interactive prompt will be shown.

Examples:
  $ aerosense select-server                        # Interactive selection
  $ aerosense select-server https://farm.example   # Select by URL
  $ aerosense select-server local                  # Select by alias`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var urlOrAlias string
			if len(args) > 0 {
				urlOrAlias = args[0]
			}

			cfg, err := config.LoadFromCurrentDir()
			if err != nil {
				return fmt.Errorf("failed to load config: %w\nRun 'aerosense init' to create a configuration file", err)
			}
			return runSelectServer(cfg, cmd.OutOrStdout(), urlOrAlias)
		},
	}

	return cmd
}

func runSelectServer(cfg *config.Config, out io.Writer, urlOrAlias string) error {
	var server *config.Server
	var err error

	if urlOrAlias != "" {
		server, err = cfg.GetServerByURLOrAlias(urlOrAlias)
	} else {
		server, err = serverselect.PromptServerSelection(cfg)
	}
	if err != nil {
		return err
	}

	if err := userconfig.SetSelectedServer(server.URL); err != nil {
		return fmt.Errorf("failed to save selected server: %w", err)
	}

	fmt.Fprintf(out, "Selected server: %s (%s)\n", server.Alias, server.URL)
	return nil
}
