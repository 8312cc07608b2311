package cli

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/raphaelgruber/groundwork/internal/client"
	"github.com/spf13/cobra"
)

var jobsCmd = &cobra.Command{
	Use:   "jobs [job-id]",
	Short: "List or inspect background jobs on the server",
	Long: `List all background jobs or inspect a specific job by ID. Jobs live in the
server process, so these commands need --server.

Examples:
  groundwork jobs                  # List all jobs
  groundwork jobs abc123           # Show details for job abc123
  groundwork jobs dead-letter      # Jobs that failed permanently
  groundwork jobs requeue abc123   # Retry a dead-lettered job`,
	Args: cobra.MaximumNArgs(1),
	RunE: runJobs,
}

var jobsDeadLetterCmd = &cobra.Command{
	Use:   "dead-letter",
	Short: "List jobs that failed permanently",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := remoteClient()
		if err != nil {
			return err
		}
		jobs, err := c.DeadLetters(cmd.Context())
		if err != nil {
			return fmt.Errorf("list dead letters: %w", err)
		}
		printJobs(cmd.OutOrStdout(), jobs)
		return nil
	},
}

var jobsRequeueCmd = &cobra.Command{
	Use:   "requeue <job-id>",
	Short: "Run a dead-lettered job again",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := remoteClient()
		if err != nil {
			return err
		}
		job, err := c.Requeue(cmd.Context(), args[0])
		if err != nil {
			return fmt.Errorf("requeue job: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Requeued %s (%s)\n", job.ID, job.Type)
		return nil
	},
}

func init() {
	jobsCmd.AddCommand(jobsDeadLetterCmd)
	jobsCmd.AddCommand(jobsRequeueCmd)
}

func runJobs(cmd *cobra.Command, args []string) error {
	c, err := remoteClient()
	if err != nil {
		return err
	}

	// If job ID provided, show that specific job
	if len(args) == 1 {
		return showJob(cmd.Context(), cmd.OutOrStdout(), c, args[0])
	}

	jobs, err := c.ListJobs(cmd.Context())
	if err != nil {
		return fmt.Errorf("list jobs: %w", err)
	}
	printJobs(cmd.OutOrStdout(), jobs)
	return nil
}

func printJobs(out io.Writer, jobs []client.Job) {
	if len(jobs) == 0 {
		fmt.Fprintln(out, "No jobs found")
		return
	}

	fmt.Fprintf(out, "%-26s %-13s %-10s %-10s %-8s %s\n", "ID", "TYPE", "STATUS", "PROGRESS", "ATTEMPTS", "STARTED")
	fmt.Fprintln(out, "------------------------------------------------------------------------------------------")

	for _, job := range jobs {
		progress := ""
		if job.Total > 0 {
			progress = fmt.Sprintf("%d/%d", job.Progress, job.Total)
		}
		started := job.StartedAt.Format("15:04:05")
		fmt.Fprintf(out, "%-26s %-13s %-10s %-10s %-8d %s\n", job.ID, job.Type, job.Status, progress, job.Attempts, started)
	}
}

func showJob(ctx context.Context, out io.Writer, c *client.Client, id string) error {
	job, err := c.GetJob(ctx, id)
	if err != nil {
		return fmt.Errorf("get job: %w", err)
	}

	fmt.Fprintf(out, "Job: %s\n", job.ID)
	fmt.Fprintf(out, "  Type: %s (%s)\n", job.Type, job.Name)
	fmt.Fprintf(out, "  Status: %s after %d attempt(s)\n", job.Status, job.Attempts)
	if job.Total > 0 {
		fmt.Fprintf(out, "  Progress: %d/%d\n", job.Progress, job.Total)
	}
	fmt.Fprintf(out, "  Started: %s\n", job.StartedAt.Format(time.RFC3339))
	if job.CompletedAt != nil {
		fmt.Fprintf(out, "  Completed: %s\n", job.CompletedAt.Format(time.RFC3339))
		duration := job.CompletedAt.Sub(job.StartedAt)
		fmt.Fprintf(out, "  Duration: %s\n", duration.Round(time.Millisecond))
	}
	if job.Error != "" {
		fmt.Fprintf(out, "  Error: %s\n", job.Error)
	}
	if len(job.Result) > 0 && string(job.Result) != "null" {
		fmt.Fprintf(out, "\nResult: %s\n", job.Result)
	}
	return nil
}
