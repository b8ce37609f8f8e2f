package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/oshokin/alarm-clock/internal/config"
	"github.com/oshokin/alarm-clock/internal/logger"
	"github.com/oshokin/alarm-clock/internal/service/alarm"
	"github.com/oshokin/alarm-clock/internal/service/autostart"
	"github.com/oshokin/alarm-clock/internal/version"
)

var (
	// configPath to the configuration YAML file.
	configPath string
	// storePath overrides the JSON store file.
	storePath string
	// allowMultiple skips the single instance check.
	allowMultiple bool

	// rootCmd represents the base command for running the alarm daemon.
	rootCmd = &cobra.Command{
		Use:   "alarmd [listen-address]",
		Short: "Run the alarm clock daemon.",
		Long: `Starts the alarm clock daemon.

The daemon restores every enabled alarm from the store, arms a wake-up for
each of them and rings them when they fire: sound, vibration, a notification
and the full-screen ringing surface. Alarms are managed with alarmctl over
gRPC on the configured server address. A listen address can be provided as
argument to override config (e.g., :9090, 127.0.0.1:50051).`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			// Setup graceful shutdown handling.
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
			defer stop()

			var listenAddress string
			if len(args) > 0 {
				listenAddress = args[0]
			}

			return alarm.Run(ctx, &alarm.Options{
				ConfigPath:    configPath,
				ListenAddress: listenAddress,
				StorePath:     storePath,
				AllowMultiple: allowMultiple,
			})
		},
	}

	// autostartCmd groups the boot registration commands.
	autostartCmd = &cobra.Command{
		Use:   "autostart",
		Short: "Manage starting alarmd with the user session.",
	}
)

// Execute runs the alarmd CLI and exits with non-zero status on error.
func Execute() {
	version.AttachCobraVersionCommand(rootCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// newAutostartCommand builds one autostart subcommand around action.
func newAutostartCommand(use, short string, action func(ctx context.Context, entry autostart.Entry) error) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := logger.WithName(cmd.Context(), "autostart")

			// The session manager starts alarmd from another directory.
			absConfigPath, err := filepath.Abs(configPath)
			if err != nil {
				return fmt.Errorf("resolve config path: %w", err)
			}

			entry, err := autostart.NewEntry("--config", absConfigPath)
			if err != nil {
				return err
			}

			return action(ctx, entry)
		},
	}
}

//nolint:gochecknoinits // Required by Cobra CLI framework architecture.
func init() {
	rootCmd.PersistentFlags().
		StringVarP(&configPath, "config", "c", config.DefaultConfigFilename, "path to configuration file")
	rootCmd.Flags().
		StringVarP(&storePath, "store", "s", "", "path to the JSON alarm store (file driver)")
	rootCmd.Flags().BoolVar(&allowMultiple, "allow-multiple", false, "skip the single instance check")

	err := rootCmd.Flags().MarkHidden("allow-multiple")
	if err != nil {
		panic(err)
	}

	autostartCmd.AddCommand(
		newAutostartCommand("enable", "Start alarmd when the user logs in.", autostart.Enable),
		newAutostartCommand("disable", "Stop starting alarmd at login.", autostart.Disable),
		newAutostartCommand("status", "Report whether alarmd starts at login.",
			func(_ context.Context, entry autostart.Entry) error {
				state := "disabled"
				if entry.IsEnabled() {
					state = "enabled"
				}

				_, err := fmt.Fprintln(os.Stdout, "Autostart", state)

				return err
			}),
	)

	rootCmd.AddCommand(autostartCmd)
}
