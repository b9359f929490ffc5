// orgstore gRPC server and client
// Tracks the version history of accountabilities between organizational parties
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/nainya/orgstore/internal/config"
)

var (
	rootCmd = &cobra.Command{
		Use:   "orgstore",
		Short: "Version chains for organizational accountabilities",
		Long: `orgstore keeps the full history of every accountability: each change
becomes a new head version linked to the one it supersedes.`,
		SilenceUsage: true,
	}

	configPath string
	cfg        config.Config
)

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "YAML configuration file")
	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		loaded, err := config.Load(configPath)
		if err != nil {
			return err
		}
		cfg = loaded
		return nil
	}

	rootCmd.AddCommand(serveCmd, accountabilityCmd, versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
