package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/kevinvandever/secureask/internal/config"
)

var (
	cfg      *config.Config
	demoMode bool
)

var rootCmd = &cobra.Command{
	Use:   "secureask",
	Short: "Cited research answers from SEC filings, Reddit, and TikTok",
	Long:  "Answers company research questions by fanning out to SEC EDGAR full-text search, Reddit discussions, and TikTok content, ranking the evidence and citing every claim in the synthesized answer.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = c
		if demoMode {
			cfg.Demo = true
		}

		if err := config.InitLogger(cfg.Log); err != nil {
			return fmt.Errorf("init logger: %w", err)
		}

		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&demoMode, "demo", false, "use built-in fixtures instead of live sources")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
