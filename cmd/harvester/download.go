package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jakalope/newsagger-go/internal/download"
	"github.com/jakalope/newsagger-go/internal/metrics"
)

var downloadCmd = &cobra.Command{
	Use:   "download",
	Short: "Run the Download Engine consumer loop over the queue",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		c, err := buildComponents(cfg)
		if err != nil {
			return err
		}
		defer c.Close()
		stop := metrics.Subscribe(c.bus)
		defer stop()

		httpClient := downloadHTTPClient(cfg, c.gate)
		eng := download.New(c.st, httpClient, cfg, log)
		eng.Bus = c.bus

		continuous, _ := cmd.Flags().GetBool("continuous")
		if err := eng.Run(cmd.Context(), continuous); err != nil {
			return fmt.Errorf("download: %w", err)
		}
		fmt.Println(green("download run complete"))
		return nil
	},
}

func init() {
	downloadCmd.Flags().Bool("continuous", false, "keep polling the queue instead of exiting once it drains")
	rootCmd.AddCommand(downloadCmd)
}
