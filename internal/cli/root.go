package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/aerosense-dev/aerosense/internal/cli/client"
	"github.com/aerosense-dev/aerosense/internal/cli/commands"
	"github.com/aerosense-dev/aerosense/internal/logger"
)

var version = "dev" // Will be set during build

var (
	logLevel  string
	logFormat string
)

var rootCmd = &cobra.Command{
	Use:   "aerosense",
	Short: "AeroSense - farm monitoring dashboard client",
	Long: `AeroSense CLI - Sign in to an AeroSense server and manage your account.

Sessions are stored in the OS keychain, one per server.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		logger.InitWriter(os.Stderr, logLevel, logFormat)
	},
}

func init() {
	rootCmd.PersistentFlags().String("server", "", "Server URL or alias from aerosense.yaml (or set AEROSENSE_SERVER)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "error", "Log level: debug, info, warn, error, disabled")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "console", "Log format: console or json")

	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the version number",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "aerosense version %s\n", version)
		},
	})

	rootCmd.AddCommand(commands.NewInitCmd())
	rootCmd.AddCommand(commands.NewLoginCmd())
	rootCmd.AddCommand(commands.NewSignupCmd())
	rootCmd.AddCommand(commands.NewLogoutCmd())
	rootCmd.AddCommand(commands.NewAccountCmd())
	rootCmd.AddCommand(commands.NewForgotPasswordCmd())
	rootCmd.AddCommand(commands.NewSelectServerCmd())
}

// Execute runs the root command
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		// rejections were already shown as a notification
		var rej *client.Rejection
		if !errors.As(err, &rej) {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
		return err
	}
	return nil
}
