package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jakalope/newsagger-go/internal/discovery"
	"github.com/jakalope/newsagger-go/internal/metrics"
	"github.com/jakalope/newsagger-go/internal/store"
)

var discoverCmd = &cobra.Command{
	Use:   "discover",
	Short: "Run the Discovery Engine",
}

var discoverBatchCmd = &cobra.Command{
	Use:   "batch <session-name>",
	Short: "Discover issues batch-by-batch, the preferred low-CAPTCHA path",
	Args:  cobra.ExactArgs(1),
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

		eng := discovery.NewBatchEngine(c.cl, c.st, c.gate, log)
		eng.Bus = c.bus

		autoEnqueue, _ := cmd.Flags().GetBool("auto-enqueue")
		if err := eng.Run(cmd.Context(), args[0], autoEnqueue); err != nil {
			return fmt.Errorf("discover batch: %w", err)
		}
		fmt.Println(green("batch discovery complete"))
		return nil
	},
}

var discoverFacetsCmd = &cobra.Command{
	Use:   "facets",
	Short: "Run every pending/discovering SearchFacet until completion or global CAPTCHA halt",
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

		eng := discovery.NewFacetEngine(c.cl, c.st, c.gate, log)
		eng.Bus = c.bus

		if err := eng.RunPendingFacets(cmd.Context()); err != nil {
			if err == discovery.ErrGlobalHalt {
				fmt.Println(yellow("halted: global CAPTCHA cooldown active, resume later"))
				return nil
			}
			return fmt.Errorf("discover facets: %w", err)
		}
		fmt.Println(green("facet discovery complete"))
		return nil
	},
}

var discoverSeedFacetCmd = &cobra.Command{
	Use:   "seed-facet <type> <value>",
	Short: "Create a pending SearchFacet of type date_range|state|combined",
	Args:  cobra.ExactArgs(2),
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

		estimate, _ := cmd.Flags().GetInt("estimate")
		id, err := c.st.CreateSearchFacet(store.FacetType(args[0]), args[1], "", estimate)
		if err != nil {
			return err
		}
		fmt.Printf("created facet %s\n", id)
		return nil
	},
}

func init() {
	discoverBatchCmd.Flags().Bool("auto-enqueue", true, "enqueue discovered pages for download immediately")
	discoverSeedFacetCmd.Flags().Int("estimate", 0, "estimated_items for the new facet")

	discoverCmd.AddCommand(discoverBatchCmd, discoverFacetsCmd, discoverSeedFacetCmd)
	rootCmd.AddCommand(discoverCmd)
}
