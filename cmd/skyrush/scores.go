package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/skyrush-games/client/internal/backend"
	"github.com/skyrush-games/client/internal/config"
	"github.com/skyrush-games/client/internal/storage"
)

var scoresCmd = &cobra.Command{
	Use:   "scores",
	Short: "Show locally journaled best scores",
	Long: `Display the best score journaled locally for each session mode.

These are the client-side records; the server-known maximum may differ
until the next snapshot refresh.

Examples:
  skyrush scores`,
	Args: cobra.NoArgs,
	Run:  runScores,
}

func runScores(cmd *cobra.Command, args []string) {
	dbPath := flagDBPath
	if dbPath == "" {
		envCfg, err := config.LoadEnv()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error loading configuration: %v\n", err)
			os.Exit(1)
		}
		dbPath = envCfg.DBPath
	}

	store, err := storage.Open(dbPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error opening local database: %v\n", err)
		os.Exit(1)
	}
	defer store.Close()

	fmt.Println("Best Scores")
	fmt.Println("-----------")
	for _, mode := range []backend.Mode{backend.ModeEndless, backend.ModeChapter} {
		score, err := store.BestScore(string(mode))
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error reading best score for %s: %v\n", mode, err)
			os.Exit(1)
		}
		if score == 0 {
			fmt.Printf("%-10s (no runs yet)\n", mode)
			continue
		}
		fmt.Printf("%-10s %d\n", mode, score)
	}
}
