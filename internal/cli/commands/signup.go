package commands

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/aerosense-dev/aerosense/internal/cli/session"
)

var errPasswordMismatch = errors.New("passwords do not match")

// NewSignupCmd creates the signup command
func NewSignupCmd() *cobra.Command {
	var name, email, password string

	cmd := &cobra.Command{
		Use:     "signup",
		Aliases: []string{"register"},
		Short:   "Create an AeroSense account and sign in",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := loadApp(cmd)
			if err != nil {
				return err
			}
			p := newPrompter(cmd.InOrStdin(), cmd.OutOrStdout())
			return runSignup(cmd.Context(), app, p, cmd.OutOrStdout(), name, email, password)
		},
	}

	cmd.Flags().StringVar(&name, "name", "", "Full name")
	cmd.Flags().StringVar(&email, "email", "", "Email address (or set AEROSENSE_EMAIL)")
	cmd.Flags().StringVar(&password, "password", "", "Password (or set AEROSENSE_PASSWORD, will prompt if not provided)")

	return cmd
}

func runSignup(ctx context.Context, app *App, p *prompter, out io.Writer, name, email, password string) error {
	email = envOr(email, EnvEmail)
	password = envOr(password, EnvPassword)

	var err error
	if name == "" && p.Interactive() {
		if name, err = p.Line("Full name: "); err != nil {
			return err
		}
	}
	if email == "" && p.Interactive() {
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
		confirm, err := p.Secret("Confirm password: ")
		if err != nil {
			return err
		}
		if confirm != password {
			return errPasswordMismatch
		}
	}

	if err := start(ctx, app); err != nil {
		return err
	}

	fmt.Fprintf(out, "Creating account on %s (%s)...\n", app.Server.Alias, app.Server.URL)

	if err := app.Controller.SignUp(ctx, name, email, password); err != nil {
		return err
	}

	snap := app.Store.Snapshot()
	if snap.State() != session.StateAuthenticated {
		fmt.Fprintln(out, "Run 'aerosense login' to sign in with your new account.")
		return nil
	}

	fmt.Fprintf(out, "  User: %s (%s)\n", snap.User.FullName, snap.User.Email)
	return nil
}
