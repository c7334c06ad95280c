package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jakalope/newsagger-go/internal/statusapi"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Serve the read-only operator status API (thin view over spec.md §3's data model)",
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

		addr, _ := cmd.Flags().GetString("addr")
		if addr == "" {
			addr = cfg.StatusAPIAddr
		}

		h := statusapi.New(c.st, c.gate)
		corsOrigins, _ := cmd.Flags().GetStringSlice("cors-origin")
		router := statusapi.NewRouter(h, corsOrigins, log)

		fmt.Printf("status API listening on %s\n", addr)
		return router.Run(addr)
	},
}

func init() {
	statusCmd.Flags().String("addr", "", "override status_api_addr")
	statusCmd.Flags().StringSlice("cors-origin", []string{"*"}, "allowed CORS origins")
	rootCmd.AddCommand(statusCmd)
}
