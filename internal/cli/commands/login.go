package commands

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/aerosense-dev/aerosense/internal/cli/session"
)

const (
	EnvEmail    = "AEROSENSE_EMAIL"
	EnvPassword = "AEROSENSE_PASSWORD"
)

// NewLoginCmd creates the login command
func NewLoginCmd() *cobra.Command {
	var email, password string

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in to an AeroSense server",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := loadApp(cmd)
			if err != nil {
				return err
			}
			p := newPrompter(cmd.InOrStdin(), cmd.OutOrStdout())
			return runLogin(cmd.Context(), app, p, cmd.OutOrStdout(), email, password)
		},
	}

	cmd.Flags().StringVar(&email, "email", "", "Email address (or set AEROSENSE_EMAIL)")
	cmd.Flags().StringVar(&password, "password", "", "Password (or set AEROSENSE_PASSWORD, will prompt if not provided)")

	return cmd
}

func runLogin(ctx context.Context, app *App, p *prompter, out io.Writer, email, password string) error {
	email = envOr(email, EnvEmail)
	password = envOr(password, EnvPassword)

	var err error
	if email == "" {
		if !p.Interactive() {
			return fmt.Errorf("email is required (use --email flag or %s env var)", EnvEmail)
		}
		if email, err = p.Line("Email: "); err != nil {
			return err
		}
	}
	if password == "" {
		if !p.Interactive() {
			return fmt.Errorf("password is required in non-interactive mode (use --password flag or %s env var)", EnvPassword)
		}
		if password, err = p.Secret("Password: "); err != nil {
			return err
		}
	}

	if err := start(ctx, app); err != nil {
		return err
	}

	fmt.Fprintf(out, "Logging in to %s (%s)...\n", app.Server.Alias, app.Server.URL)

	if err := app.Controller.SignIn(ctx, email, password); err != nil {
		return err
	}

	user := app.Store.Snapshot().User
	fmt.Fprintf(out, "  User: %s (%s)\n", user.FullName, user.Email)
	return nil
}

// start runs startup validation of the persisted token
func start(ctx context.Context, app *App) error {
	state, err := app.Controller.Start(ctx)
	if err != nil && !errors.Is(err, session.ErrAlreadyStarted) {
		return err
	}
	app.Logger.Debug().Str("state", string(state)).Msg("Session started")
	return nil
}
