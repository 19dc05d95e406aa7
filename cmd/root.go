// Package cmd wires the process entry points: serve runs the scheduler and
// its HTTP control plane, migrate manages the database schema.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	configPath string
	envPath    string
)

var rootCmd = &cobra.Command{
	Use:   "kestrel",
	Short: "Persistent cron-like task scheduler with a REST control plane",
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file (yaml/json/toml), watched for live reload")
	rootCmd.PersistentFlags().StringVar(&envPath, "env", ".env", "optional .env file loaded before reading the environment")
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(migrateCmd)
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
