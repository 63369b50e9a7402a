package commands

import (
	"fmt"
	"io"
	"net/http"
	"os"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/aerosense-dev/aerosense/internal/cli/auth"
	"github.com/aerosense-dev/aerosense/internal/cli/client"
	"github.com/aerosense-dev/aerosense/internal/cli/config"
	"github.com/aerosense-dev/aerosense/internal/cli/nav"
	"github.com/aerosense-dev/aerosense/internal/cli/notify"
	"github.com/aerosense-dev/aerosense/internal/cli/recovery"
	"github.com/aerosense-dev/aerosense/internal/cli/serverselect"
	"github.com/aerosense-dev/aerosense/internal/cli/session"
)

// App is one CLI invocation's object graph, wired against a single server
type App struct {
	Server     *config.Server
	Router     *nav.Router
	Store      *session.Store
	Client     *client.Client
	Controller *session.Controller
	Guard      *session.Guard
	Recovery   *recovery.Flow
	Notifier   notify.Notifier
	Logger     zerolog.Logger
}

// appOptions replaces production dependencies in tests
type appOptions struct {
	tokens     auth.TokenStore
	notifier   notify.Notifier
	httpClient *http.Client
	logger     *zerolog.Logger
	start      nav.Route
}

// newApp wires the client stack for server
func newApp(server *config.Server, timings config.Timings, out io.Writer, opts appOptions) *App {
	logger := log.Logger
	if opts.logger != nil {
		logger = *opts.logger
	}
	tokens := opts.tokens
	if tokens == nil {
		tokens = auth.Default
	}
	notifier := opts.notifier
	if notifier == nil {
		notifier = notify.NewConsole(out)
	}
	start := opts.start
	if start == "" {
		start = nav.RouteHome
	}

	router := nav.NewRouter(start, logger)
	store := session.NewStore(auth.NewSlot(tokens, server.URL), logger)

	api := client.New(server.URL, store, router, logger)
	if opts.httpClient != nil {
		api.SetHTTPClient(opts.httpClient)
	}

	ctrlOpts := session.DefaultOptions()
	if timings.ValidationTimeout > 0 {
		ctrlOpts.ValidationTimeout = timings.ValidationTimeout
	}
	if timings.AutoLoginDelay > 0 {
		ctrlOpts.AutoLoginDelay = timings.AutoLoginDelay
	}

	return &App{
		Server:     server,
		Router:     router,
		Store:      store,
		Client:     api,
		Controller: session.NewController(store, api, router, notifier, logger, ctrlOpts),
		Guard:      session.NewGuard(store, router),
		Recovery:   recovery.NewFlow(api, router, notifier, logger),
		Notifier:   notifier,
		Logger:     logger,
	}
}

// loadApp resolves the project config and server for cmd and wires the app
func loadApp(cmd *cobra.Command) (*App, error) {
	cfg, err := config.LoadFromCurrentDir()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w\nRun 'aerosense init' to create a configuration file", err)
	}

	serverFlag, _ := cmd.Flags().GetString("server")
	server, err := serverselect.ResolveServer(cfg, serverFlag)
	if err != nil {
		return nil, err
	}
	if server.URL == "" {
		return nil, fmt.Errorf("server URL is empty. Please edit %s and add a valid URL", config.ConfigFileName)
	}

	timings, err := cfg.Timeouts()
	if err != nil {
		return nil, err
	}

	return newApp(server, timings, cmd.OutOrStdout(), appOptions{}), nil
}

// envOr returns value, or the named environment variable when value is empty
func envOr(value, name string) string {
	if value != "" {
		return value
	}
	return os.Getenv(name)
}
