package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/oshokin/alarm-clock/internal/config"
	"github.com/oshokin/alarm-clock/internal/service/client"
	"github.com/oshokin/alarm-clock/internal/version"
)

var (
	// configPath to the configuration YAML file.
	configPath string
	// serverAddress overrides the daemon address from the config.
	serverAddress string
	// label is the alarm label for set and edit.
	label string
	// exportPath is the iCalendar output file.
	exportPath string

	// rootCmd represents the base command for controlling the alarm daemon.
	rootCmd = &cobra.Command{
		Use:   "alarmctl",
		Short: "Manage alarms of the alarm clock daemon.",
		Long: `Creates, edits and deletes alarms kept by alarmd, and dismisses or
snoozes the alarm that is ringing. The daemon address is loaded from the
configuration file unless --server is given.`,
		SilenceUsage: true,
	}
)

// Execute runs the alarmctl CLI and exits with non-zero status on error.
func Execute() {
	version.AttachCobraVersionCommand(rootCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// run connects to the daemon and runs fn until it returns or a signal arrives.
func run(cmd *cobra.Command, fn func(ctx context.Context, c *client.Commands) error) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	options := &client.Options{
		ConfigPath:    configPath,
		ServerAddress: serverAddress,
		Out:           cmd.OutOrStdout(),
	}

	return client.Run(ctx, options, func(c *client.Commands) error {
		return fn(ctx, c)
	})
}

func newSetCommand() *cobra.Command {
	command := &cobra.Command{
		Use:     "set HH:MM",
		Short:   "Create an alarm.",
		Example: "alarmctl set 07:30 --label Gym",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, func(ctx context.Context, c *client.Commands) error {
				return c.Set(ctx, args[0], label)
			})
		},
	}

	command.Flags().StringVarP(&label, "label", "l", "", "alarm label")

	return command
}

func newEditCommand() *cobra.Command {
	command := &cobra.Command{
		Use:   "edit ID HH:MM",
		Short: "Change time and label of an alarm.",
		Args:  cobra.ExactArgs(2), //nolint:mnd // ID and time.
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, func(ctx context.Context, c *client.Commands) error {
				return c.Edit(ctx, args[0], args[1], label)
			})
		},
	}

	command.Flags().StringVarP(&label, "label", "l", "", "alarm label")

	return command
}

func newToggleCommand(use, short string, enabled bool) *cobra.Command {
	return &cobra.Command{
		Use:   use + " ID",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, func(ctx context.Context, c *client.Commands) error {
				return c.Toggle(ctx, args[0], enabled)
			})
		},
	}
}

func newSnoozeCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "snooze [duration]",
		Short:   "Snooze the ringing alarm.",
		Example: "alarmctl snooze 10m",
		Args:    cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var delay time.Duration

			if len(args) > 0 {
				parsed, err := time.ParseDuration(args[0])
				if err != nil {
					return err
				}

				delay = parsed
			}

			return run(cmd, func(ctx context.Context, c *client.Commands) error {
				return c.Snooze(ctx, delay)
			})
		},
	}
}

func newExportCommand() *cobra.Command {
	command := &cobra.Command{
		Use:   "export",
		Short: "Write the enabled alarms as an iCalendar file.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd, func(ctx context.Context, c *client.Commands) error {
				return c.Export(ctx, exportPath)
			})
		},
	}

	command.Flags().StringVarP(&exportPath, "out", "o", "", "output file, stdout when empty")

	return command
}

// simple builds a command without flags around one client call.
func simple(use, short string, args cobra.PositionalArgs, fn func(ctx context.Context, c *client.Commands, args []string) error) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  args,
		RunE: func(cmd *cobra.Command, positional []string) error {
			return run(cmd, func(ctx context.Context, c *client.Commands) error {
				return fn(ctx, c, positional)
			})
		},
	}
}

//nolint:gochecknoinits // Required by Cobra CLI framework architecture.
func init() {
	rootCmd.PersistentFlags().
		StringVarP(&configPath, "config", "c", config.DefaultConfigFilename, "path to configuration file")
	rootCmd.PersistentFlags().
		StringVar(&serverAddress, "server", "", "daemon address, overrides the configuration")

	rootCmd.AddCommand(
		newSetCommand(),
		newEditCommand(),
		newToggleCommand("enable", "Enable an alarm.", true),
		newToggleCommand("disable", "Disable an alarm.", false),
		newSnoozeCommand(),
		newExportCommand(),
		simple("delete ID", "Delete an alarm.", cobra.ExactArgs(1),
			func(ctx context.Context, c *client.Commands, args []string) error {
				return c.Delete(ctx, args[0])
			}),
		simple("show ID", "Show one alarm.", cobra.ExactArgs(1),
			func(ctx context.Context, c *client.Commands, args []string) error {
				return c.Show(ctx, args[0])
			}),
		simple("list", "List every alarm.", cobra.NoArgs,
			func(ctx context.Context, c *client.Commands, _ []string) error {
				return c.List(ctx)
			}),
		simple("status", "Show the ringing alarm.", cobra.NoArgs,
			func(ctx context.Context, c *client.Commands, _ []string) error {
				return c.Status(ctx)
			}),
		simple("dismiss", "Dismiss the ringing alarm.", cobra.NoArgs,
			func(ctx context.Context, c *client.Commands, _ []string) error {
				return c.Dismiss(ctx)
			}),
	)
}
