package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

const version = "0.1.0"

var (
	serverURL  string
	configFile string
)

var rootCmd = &cobra.Command{
	Use:   "stockchat-cli",
	Short: "Ask questions about stocks from the terminal",
	Long: `stockchat-cli answers free-form stock questions with a price table,
metrics, news and earnings.

Queries run in-process from the local configuration, or against a running
stockchat-server when --server is set.`,
	SilenceUsage: true,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the CLI version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "stockchat-cli %s\n", version)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&serverURL, "server", "s", os.Getenv("STOCKCHAT_SERVER"), "stockchat-server base URL (default: run locally)")
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "config file for local runs")

	rootCmd.AddCommand(versionCmd, askCmd, stateCmd, historyCmd, zoomCmd, modeCmd, resetCmd)
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		cancel()
		os.Exit(1)
	}
}
