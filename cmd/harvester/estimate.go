package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

var estimateCmd = &cobra.Command{
	Use:   "estimate <year1> <year2>",
	Short: "Estimate total pages and storage size for a year range before committing to a harvest",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		y1, err := strconv.Atoi(args[0])
		if err != nil {
			return fmt.Errorf("invalid year1 %q: %w", args[0], err)
		}
		y2, err := strconv.Atoi(args[1])
		if err != nil {
			return fmt.Errorf("invalid year2 %q: %w", args[1], err)
		}

		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		c, err := buildComponents(cfg)
		if err != nil {
			return err
		}
		defer c.Close()

		est, err := c.cl.EstimateSize(cmd.Context(), y1, y2)
		if err != nil {
			return err
		}
		fmt.Printf("%s–%s: %d pages, ~%.1f MB\n", args[0], args[1], est.TotalPages, est.EstimatedSizeMB)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(estimateCmd)
}
