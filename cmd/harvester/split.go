package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jakalope/newsagger-go/internal/discovery"
	"github.com/jakalope/newsagger-go/internal/recovery"
	"github.com/jakalope/newsagger-go/internal/store"
)

var splitFacetCmd = &cobra.Command{
	Use:   "split-facet <facet-id>",
	Short: "Split a needs_splitting SearchFacet into narrower child facets",
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

		children, err := discovery.SplitFacet(c.st, args[0])
		if err != nil {
			return err
		}
		fmt.Printf("split into %d child facets\n", len(children))
		return nil
	},
}

var splitStoreCmd = &cobra.Command{
	Use:   "split <n> <out-dir>",
	Short: "Partition non-terminal facets across n sibling worker stores for multi-host operation",
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

		var n int
		if _, err := fmt.Sscanf(args[0], "%d", &n); err != nil {
			return fmt.Errorf("invalid worker count %q: %w", args[0], err)
		}

		cfgPath, err := recovery.SplitStateStore(c.st, args[1], n)
		if err != nil {
			return err
		}
		fmt.Printf("wrote %s\n", cfgPath)
		return nil
	},
}

var mergeStoreCmd = &cobra.Command{
	Use:   "merge <worker-db-path>",
	Short: "Merge a completed worker store's facets and pages back into the master store",
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

		worker, err := store.Open(args[0], log)
		if err != nil {
			return err
		}
		defer worker.Close()

		facets, pages, err := recovery.MergeWorkerStore(c.st, worker)
		if err != nil {
			return err
		}
		fmt.Printf("merged %d facets, %d pages\n", facets, pages)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(splitFacetCmd, splitStoreCmd, mergeStoreCmd)
}
