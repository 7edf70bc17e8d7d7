// Package root wires the CLI: flag parsing, logging setup, and the
// subcommands that start the client.
package root

import (
	"context"
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/tabchat/tabchat/pkg/logging"
)

type rootFlags struct {
	debugMode   bool
	logFilePath string
	serverURL   string
	logFile     io.Closer
}

func (f *rootFlags) setupLogging() error {
	file, err := logging.Setup(f.logFilePath, f.debugMode)
	if err != nil {
		return err
	}
	f.logFile = file
	return nil
}

func NewRootCmd() *cobra.Command {
	var flags rootFlags

	cmd := &cobra.Command{
		Use:   "tabchat",
		Short: "tabchat - multi-tab terminal chat client",
		Long:  "tabchat is a terminal client for chatting with a remote agent server across multiple tabs",
		Example: `  tabchat
  tabchat --server http://localhost:8765
  tabchat sessions`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			// Initialize logging before anything else so logs don't break
			// the TUI.
			if err := flags.setupLogging(); err != nil {
				slog.SetDefault(slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{
					Level: func() slog.Level {
						if flags.debugMode {
							return slog.LevelDebug
						}
						return slog.LevelInfo
					}(),
				})))
			}
			return nil
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			if flags.logFile != nil {
				if err := flags.logFile.Close(); err != nil {
					slog.Error("Failed to close log file", "error", err)
				}
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTUI(cmd.Context(), &flags)
		},
		SilenceErrors: true,
		SilenceUsage:  true,
	}

	cmd.PersistentFlags().BoolVarP(&flags.debugMode, "debug", "d", false, "Enable debug logging")
	cmd.PersistentFlags().StringVar(&flags.logFilePath, "log-file", "", "Path to debug log file (default: ~/.tabchat/tabchat.debug.log)")
	cmd.PersistentFlags().StringVarP(&flags.serverURL, "server", "s", "", "Agent server base URL (default from config)")

	cmd.AddCommand(newVersionCmd())
	cmd.AddCommand(newSessionsCmd(&flags))
	cmd.AddCommand(newDemoCmd(&flags))

	return cmd
}

// Execute runs the root command.
func Execute(ctx context.Context) error {
	cmd := NewRootCmd()
	cmd.SetContext(ctx)
	return cmd.ExecuteContext(ctx)
}
