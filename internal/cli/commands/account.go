package commands

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/aerosense-dev/aerosense/internal/cli/client"
	"github.com/aerosense-dev/aerosense/internal/cli/nav"
	"github.com/aerosense-dev/aerosense/internal/cli/session"
)

const notProvided = "Not provided"

var (
	cardStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#4ade80")).
			Padding(0, 2)
	avatarStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#0b1f12")).
			Background(lipgloss.Color("#4ade80")).
			Padding(0, 1)
	nameStyle  = lipgloss.NewStyle().Bold(true)
	labelStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("245")).Width(14)
	mutedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
)

// NewAccountCmd creates the account command
func NewAccountCmd() *cobra.Command {
	var refresh bool

	cmd := &cobra.Command{
		Use:     "account",
		Aliases: []string{"whoami"},
		Short:   "Show the signed-in account",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := loadApp(cmd)
			if err != nil {
				return err
			}
			return runAccount(cmd.Context(), app, cmd.OutOrStdout(), refresh)
		},
	}

	cmd.Flags().BoolVar(&refresh, "refresh", false, "Re-fetch the profile before showing it")

	return cmd
}

func runAccount(ctx context.Context, app *App, out io.Writer, refresh bool) error {
	if err := start(ctx, app); err != nil {
		return err
	}

	user, err := app.Guard.Enter(ctx, nav.RouteAccount)
	if err != nil {
		return err
	}

	if refresh {
		if err := app.Controller.Refresh(ctx); err != nil {
			return err
		}
		user = app.Store.Snapshot().User
		if user == nil {
			return session.ErrAccessDenied
		}
	}

	fmt.Fprintln(out, renderAccount(user))
	return nil
}

// renderAccount draws the personal information card
func renderAccount(user *client.User) string {
	var profile client.Profile
	if user.Profile != nil {
		profile = *user.Profile
	}

	initials := user.Initials()
	if initials == "" {
		initials = "U"
	}

	var b strings.Builder
	b.WriteString(avatarStyle.Render(initials))
	b.WriteString("  ")
	b.WriteString(nameStyle.Render(user.FullName))
	b.WriteString("\n")
	b.WriteString(strings.Repeat(" ", lipgloss.Width(avatarStyle.Render(initials))+2))
	b.WriteString(mutedStyle.Render(user.Email))
	b.WriteString("\n\n")

	rows := []struct{ label, value string }{
		{"Email", user.Email},
		{"Phone", profile.Phone},
		{"Address", profile.Address},
		{"Organization", profile.Organization},
		{"Role", profile.Role},
	}
	for i, row := range rows {
		value := row.value
		if value == "" {
			value = notProvided
		}
		b.WriteString(labelStyle.Render(row.label))
		b.WriteString(value)
		if i < len(rows)-1 {
			b.WriteString("\n")
		}
	}

	if profile.Bio != "" {
		b.WriteString("\n\n")
		b.WriteString(labelStyle.Render("Bio"))
		b.WriteString(profile.Bio)
	}

	return cardStyle.Render(b.String())
}
