// skyrush is the headless client core for the Skyrush runner game.
//
// Usage:
//
//	skyrush run               - Boot the client and play one session
//	skyrush scores            - Show locally journaled best scores
//
// Global flags:
//
//	--config <path>  - Path to a tuning config file (default: search order)
//	--db <path>      - Path to the local database (default: from environment)
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	// Global flags
	flagConfig string
	flagDBPath string
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "skyrush",
	Short: "Skyrush - headless runner-game client core",
	Long: `Skyrush drives the runner-game client core from the terminal: boot
sequencing, server-granted sessions, the run simulation and result
submission, without any rendering attached.

Available commands:
  run      - Boot the client and play one scripted session
  scores   - View locally journaled best scores

Examples:
  skyrush run --mode endless --duration 30s
  skyrush scores`,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagConfig, "config", "", "Path to tuning config file")
	rootCmd.PersistentFlags().StringVar(&flagDBPath, "db", "", "Path to local database (overrides SKYRUSH_DB_PATH)")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(scoresCmd)
}
