// Package root wires the command line interface.
package root

import (
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/ragdesk/ragdesk/pkg/logging"
)

type rootFlags struct {
	debugMode   bool
	logFilePath string
	configPath  string
	logFile     io.Closer
}

func NewRootCmd() *cobra.Command {
	var flags rootFlags

	cmd := &cobra.Command{
		Use:   "ragdesk",
		Short: "ragdesk - document-grounded chat server",
		Long:  "ragdesk serves a streaming chat API that grounds model answers in documents and reviewed web search results",
		Example: `  ragdesk serve
  ragdesk serve --config config.yaml`,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			level := slog.LevelInfo
			if flags.debugMode {
				level = slog.LevelDebug
			}
			closer, err := logging.Setup(level, flags.logFilePath)
			if err != nil {
				return err
			}
			flags.logFile = closer
			return nil
		},
		PersistentPostRunE: func(*cobra.Command, []string) error {
			if flags.logFile != nil {
				return flags.logFile.Close()
			}
			return nil
		},
		SilenceErrors: true,
		SilenceUsage:  true,
	}

	cmd.PersistentFlags().BoolVar(&flags.debugMode, "debug", false, "Enable debug logging")
	cmd.PersistentFlags().StringVar(&flags.logFilePath, "log-file", "", "Write logs to this file instead of stderr")
	cmd.PersistentFlags().StringVarP(&flags.configPath, "config", "c", "", "Path to the configuration file")

	cmd.AddCommand(
		newServeCmd(&flags),
		newVersionCmd(),
	)

	return cmd
}
