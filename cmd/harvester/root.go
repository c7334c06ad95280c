package main

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/jakalope/newsagger-go/internal/config"
)

var (
	cfgFile string
	v       = viper.New()
	log     = logrus.StandardLogger()
)

var rootCmd = &cobra.Command{
	Use:   "harvester",
	Short: "Harvests Chronicling America newspaper pages into a local archive",
	Long: `harvester enumerates Library of Congress batches and search facets,
stages pages into a durable queue, and downloads pdf/jp2/ocr/metadata
artifacts to disk, resuming cleanly across interruptions and upstream
CAPTCHA challenges.`,
}

// Execute runs the root command. Called once from main.main.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "path to newsagger.yaml (default: ./newsagger.yaml)")
	rootCmd.PersistentFlags().String("database-path", "", "override database_path")
	rootCmd.PersistentFlags().String("download-root", "", "override download_root")
	rootCmd.PersistentFlags().Int("max-requests-per-minute", 0, "override max_requests_per_minute")
	rootCmd.PersistentFlags().String("log-level", "", "override log_level")

	_ = v.BindPFlag("database_path", rootCmd.PersistentFlags().Lookup("database-path"))
	_ = v.BindPFlag("download_root", rootCmd.PersistentFlags().Lookup("download-root"))
	_ = v.BindPFlag("max_requests_per_minute", rootCmd.PersistentFlags().Lookup("max-requests-per-minute"))
	_ = v.BindPFlag("log_level", rootCmd.PersistentFlags().Lookup("log-level"))
}

// loadConfig builds a config.Config from flags/env/newsagger.yaml and
// applies log_level to the shared logger.
func loadConfig() (config.Config, error) {
	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	}
	cfg, err := config.Load(v)
	if err != nil {
		return config.Config{}, err
	}
	if lvl, lerr := logrus.ParseLevel(cfg.LogLevel); lerr == nil {
		log.SetLevel(lvl)
	}
	return cfg, nil
}
