package commands

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/aerosense-dev/aerosense/internal/cli/nav"
)

const resendKeyword = "resend"

// NewForgotPasswordCmd creates the forgot-password command
func NewForgotPasswordCmd() *cobra.Command {
	var email string

	cmd := &cobra.Command{
		Use:   "forgot-password",
		Short: "Reset your password with a one-time code sent by email",
		Long: `Reset your password with a one-time code sent by email.

The command walks through three pages:
  1. request a code for your email address
  2. enter the code (type 'resend' to get a new one)
  3. choose a new password`,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := loadApp(cmd)
			if err != nil {
				return err
			}
			p := newPrompter(cmd.InOrStdin(), cmd.OutOrStdout())
			return runForgotPassword(cmd.Context(), app, p, cmd.OutOrStdout(), email)
		},
	}

	cmd.Flags().StringVar(&email, "email", "", "Email address of the account (or set AEROSENSE_EMAIL)")

	return cmd
}

// runForgotPassword renders whichever recovery page the router is on
// until the flow lands on the sign-in page.
func runForgotPassword(ctx context.Context, app *App, p *prompter, out io.Writer, email string) error {
	email = envOr(email, EnvEmail)
	app.Router.Navigate(nav.RouteForgotPassword, nil)

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		loc := app.Router.Location()
		switch loc.Route {
		case nav.RouteForgotPassword:
			if email == "" {
				var err error
				if email, err = p.Line("Email: "); err != nil {
					return err
				}
			}
			if err := app.Recovery.Request(ctx, email); err != nil {
				email = ""
			}

		case nav.RouteVerifyOTP:
			ticket, err := app.Recovery.EnterVerify(loc)
			if err != nil {
				continue
			}
			code, err := p.Line(fmt.Sprintf("Code sent to %s (or '%s'): ", ticket.Email, resendKeyword))
			if err != nil {
				return err
			}
			if strings.EqualFold(code, resendKeyword) {
				_ = app.Recovery.Resend(ctx, ticket)
				continue
			}
			_ = app.Recovery.Verify(ctx, ticket, code)

		case nav.RouteResetPassword:
			ticket, err := app.Recovery.EnterReset(loc)
			if err != nil {
				continue
			}
			password, err := p.Secret("New password: ")
			if err != nil {
				return err
			}
			confirm, err := p.Secret("Confirm new password: ")
			if err != nil {
				return err
			}
			_ = app.Recovery.Reset(ctx, ticket, password, confirm)

		case nav.RouteSignIn:
			fmt.Fprintln(out, "Run 'aerosense login' to sign in with your new password.")
			return nil

		default:
			return fmt.Errorf("unexpected page %s during password recovery", loc.Route)
		}
	}
}
