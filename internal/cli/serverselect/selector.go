package serverselect

import (
	"fmt"
	"os"

	"github.com/manifoldco/promptui"
	"github.com/rs/zerolog/log"

	"github.com/aerosense-dev/aerosense/internal/cli/config"
	"github.com/aerosense-dev/aerosense/internal/cli/userconfig"
)

// EnvServer overrides the selected server with a URL or alias
const EnvServer = "AEROSENSE_SERVER"

var promptSelect = PromptServerSelection

// ResolveServer determines which server to use based on the following priority:
// 1. If the server flag is provided, use that server (URL or alias)
// 2. If AEROSENSE_SERVER is set, use that server
// 3. If user has a selected server in their local config, use that
// 4. If only one server in project config, use that
// 5. Otherwise, prompt user to select a server interactively
func ResolveServer(projectConfig *config.Config, serverFlag string) (*config.Server, error) {
	if serverFlag != "" {
		return projectConfig.GetServerByURLOrAlias(serverFlag)
	}

	if env := os.Getenv(EnvServer); env != "" {
		server, err := projectConfig.GetServerByURLOrAlias(env)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", EnvServer, err)
		}
		return server, nil
	}

	selectedURL, err := userconfig.GetSelectedServer()
	if err != nil {
		return nil, fmt.Errorf("failed to load user config: %w", err)
	}

	if selectedURL != "" {
		server, err := projectConfig.GetServerByURLOrAlias(selectedURL)
		if err != nil {
			// selected server no longer exists in project config
			_ = userconfig.SetSelectedServer("")
		} else {
			return server, nil
		}
	}

	if len(projectConfig.Servers) == 1 {
		server := &projectConfig.Servers[0]
		remember(server)
		return server, nil
	}

	server, err := promptSelect(projectConfig)
	if err != nil {
		return nil, err
	}
	remember(server)

	return server, nil
}

func remember(server *config.Server) {
	if err := userconfig.SetSelectedServer(server.URL); err != nil {
		log.Warn().Err(err).Str("server", server.URL).Msg("Failed to save selected server")
	}
}

// PromptServerSelection shows an interactive prompt for the user to select a server
func PromptServerSelection(projectConfig *config.Config) (*config.Server, error) {
	if len(projectConfig.Servers) == 0 {
		return nil, fmt.Errorf("no servers configured in %s", config.ConfigFileName)
	}

	type serverOption struct {
		Label  string
		Server *config.Server
	}

	options := make([]serverOption, len(projectConfig.Servers))
	for i := range projectConfig.Servers {
		server := &projectConfig.Servers[i]
		options[i] = serverOption{
			Label:  fmt.Sprintf("%s (%s)", server.Alias, server.URL),
			Server: server,
		}
	}

	templates := &promptui.SelectTemplates{
		Label:    "{{ . }}",
		Active:   "> {{ .Label | cyan }}",
		Inactive: "  {{ .Label }}",
		Selected: "{{ .Label | green }}",
	}

	prompt := promptui.Select{
		Label:     "Select a server",
		Items:     options,
		Templates: templates,
		Size:      10,
	}

	index, _, err := prompt.Run()
	if err != nil {
		return nil, fmt.Errorf("server selection cancelled: %w", err)
	}

	return options[index].Server, nil
}
