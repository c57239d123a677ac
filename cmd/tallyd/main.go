package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "tallyd <command>",
	Short: "Real-time purchase tally service",
	Long: `tallyd ingests purchase orders, keeps an atomic per-product tally,
and fans live updates out to WebSocket viewers.`,
}

func main() {
	// A local .env is a dev convenience; absence is not an error.
	_ = godotenv.Load()

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
