package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jakalope/newsagger-go/internal/recovery"
)

var recoveryCmd = &cobra.Command{
	Use:   "recovery",
	Short: "Operator recovery tools: resume-failed, reset-stuck, cleanup",
}

var recoveryResumeFailedCmd = &cobra.Command{
	Use:   "resume-failed",
	Short: "Requeue every failed QueueItem as queued",
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

		ops := recovery.New(c.st, log)
		n, err := ops.ResumeFailed()
		if err != nil {
			return err
		}
		fmt.Printf("requeued %d failed items\n", n)
		return nil
	},
}

var recoveryResetStuckCmd = &cobra.Command{
	Use:   "reset-stuck",
	Short: "Reset QueueItems stuck in active back to queued",
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

		ops := recovery.New(c.st, log)
		n, err := ops.ResetStuckActive()
		if err != nil {
			return err
		}
		fmt.Printf("reset %d stuck items\n", n)
		return nil
	},
}

var recoveryEnqueuePeriodicalCmd = &cobra.Command{
	Use:   "enqueue-periodical <lccn>",
	Short: "Queue a bulk redownload of every undownloaded page for a periodical",
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

		ops := recovery.New(c.st, log)
		id, err := ops.EnqueuePeriodical(args[0])
		if err != nil {
			return err
		}
		fmt.Printf("queued periodical item %s\n", id)
		return nil
	},
}

var recoveryCleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Delete zero-byte/truncated pdf artifacts left by interrupted downloads",
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

		ops := recovery.New(c.st, log)
		n, err := ops.CleanupIncomplete(cfg.DownloadRoot)
		if err != nil {
			return err
		}
		fmt.Printf("removed %d incomplete files\n", n)
		return nil
	},
}

func init() {
	recoveryCmd.AddCommand(recoveryResumeFailedCmd, recoveryResetStuckCmd, recoveryEnqueuePeriodicalCmd, recoveryCleanupCmd)
	rootCmd.AddCommand(recoveryCmd)
}
