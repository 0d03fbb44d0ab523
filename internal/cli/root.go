// Package cli provides the command-line interface for curator-streams.
package cli

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/bakkerme/curator-streams/internal/config"
)

// Version and Commit are set via ldflags at build time.
var (
	Version = "dev"
	Commit  = "none"
)

var (
	configPath    string
	dbPath        string
	directoryPath string
)

var rootCmd = &cobra.Command{
	Use:           "streams",
	Short:         "Retrieve social and web feeds incrementally",
	Long:          "streams polls reddit, RSS and web feeds on a schedule, enriches new items with list memberships and stores them in SQLite.",
	SilenceUsage:  true,
	SilenceErrors: true,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, _ []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "streams %s (%s)\n", Version, Commit)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to the streams document (env STREAMS_CONFIG)")
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "", "path to the SQLite database (env STREAMS_DB)")
	rootCmd.PersistentFlags().StringVar(&directoryPath, "directory", "", "path to the enrichment directory (env STREAMS_DIRECTORY)")
	rootCmd.AddCommand(versionCmd)
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

// environment merges flags over the environment configuration.
func environment() config.EnvConfig {
	env := config.LoadEnv()
	if configPath != "" {
		env.StreamsConfigPath = configPath
	}
	if dbPath != "" {
		env.DBPath = dbPath
	}
	if directoryPath != "" {
		env.DirectoryPath = directoryPath
	}
	return env
}

func newLogger(level slog.Level) *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
}
