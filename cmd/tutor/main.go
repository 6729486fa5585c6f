package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var version = "dev"

var (
	configPath string
	envFile    string
)

var rootCmd = &cobra.Command{
	Use:           "tutor",
	Short:         "Study companion chat service",
	Long:          "tutor hosts the student chat assistant over HTTP, WebSocket and Telegram, and offers offline tools to inspect routing and rendering.",
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		// It's okay if .env doesn't exist
		if err := godotenv.Load(envFile); err != nil && !os.IsNotExist(err) {
			fmt.Fprintf(os.Stderr, "Warning: failed to load %s: %v\n", envFile, err)
		}
	},
}

func init() {
	rootCmd.CompletionOptions.DisableDefaultCmd = true
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "configs/config.yaml", "Path to configuration file")
	rootCmd.PersistentFlags().StringVar(&envFile, "env", ".env", "Path to .env file")

	rootCmd.AddCommand(serveCmd, classifyCmd, renderCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
