package main

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"github.com/timmy/pricebook/internal/app"
	"github.com/timmy/pricebook/internal/domain"
)

var jobsCmd = &cobra.Command{
	Use:   "jobs",
	Short: "Inspect and resume pricing jobs",
}

var jobsStatusCmd = &cobra.Command{
	Use:   "status <job-id>",
	Short: "Print a job as JSON",
	Args:  cobra.ExactArgs(1),
	RunE:  runJobsStatus,
}

var jobsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List an organization's unfinished jobs",
	RunE:  runJobsList,
}

var jobsRecoverCmd = &cobra.Command{
	Use:   "recover",
	Short: "Resume an organization's unfinished jobs and wait for them",
	Long:  "Resumes every pending or processing job of the organization. Jobs stuck without progress past the stale timeout are failed instead.",
	RunE:  runJobsRecover,
}

var (
	jobsOrg     string
	jobsTimeout time.Duration
)

func init() {
	jobsCmd.PersistentFlags().StringVar(&jobsOrg, "org", "", "Organization ID (required)")
	if err := jobsCmd.MarkPersistentFlagRequired("org"); err != nil {
		panic(fmt.Sprintf("failed to mark org flag as required: %v", err))
	}
	jobsRecoverCmd.Flags().DurationVar(&jobsTimeout, "timeout", 10*time.Minute, "How long to wait for resumed jobs")

	jobsCmd.AddCommand(jobsStatusCmd, jobsListCmd, jobsRecoverCmd)
	rootCmd.AddCommand(jobsCmd)
}

func runJobsStatus(cmd *cobra.Command, args []string) error {
	return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
		status, err := a.Pricing.GetJobStatus(ctx, jobsOrg, args[0])
		if err != nil {
			return err
		}
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(status)
	})
}

func runJobsList(cmd *cobra.Command, _ []string) error {
	return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
		jobs, err := a.Pricing.GetActiveJobs(ctx, jobsOrg)
		if err != nil {
			return err
		}
		for _, job := range jobs {
			fmt.Fprintln(cmd.OutOrStdout(), jobLine(job))
		}
		return nil
	})
}

func runJobsRecover(cmd *cobra.Command, _ []string) error {
	return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
		n, err := a.Pricing.RecoverActiveJobs(ctx, jobsOrg)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "resumed %d job(s)\n", n)
		if n == 0 {
			return nil
		}

		waitCtx, cancel := context.WithTimeout(ctx, jobsTimeout)
		defer cancel()
		ticker := time.NewTicker(500 * time.Millisecond)
		defer ticker.Stop()
		for {
			jobs, err := a.Pricing.GetActiveJobs(waitCtx, jobsOrg)
			if err != nil {
				return err
			}
			if len(jobs) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "all jobs finished")
				return nil
			}
			select {
			case <-waitCtx.Done():
				return fmt.Errorf("%d job(s) still active: %w", len(jobs), waitCtx.Err())
			case <-ticker.C:
			}
		}
	})
}

// jobLine renders a one-line job summary.
func jobLine(job domain.PricingJob) string {
	return fmt.Sprintf("%s %s %s %d/%d", job.ID, job.OperationType, job.Status, job.ProcessedItems, job.TotalItems)
}
