package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/ourstore/storefront/config"
	"github.com/ourstore/storefront/internal/server"
	"github.com/ourstore/storefront/pkg/database"
	"github.com/ourstore/storefront/pkg/queue"
)

var (
	queueWorkersFlag int
	queueFailedLimit int64
	queueRetryDelay  time.Duration
)

// storefront queue:work
var queueWorkCmd = &cobra.Command{
	Use:   "queue:work",
	Short: "Process queued jobs until interrupted",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if err := server.Boot(ctx); err != nil {
			return err
		}
		defer server.Close()

		workers := queueWorkersFlag
		if workers < 1 {
			workers = 1
		}
		q := server.NewQueue()
		fmt.Printf("Queue worker started (%d workers). Press Ctrl+C to stop.\n", workers)
		q.Start(ctx, workers)

		<-ctx.Done()
		q.Wait()
		fmt.Println("Queue worker stopped.")
		return nil
	},
}

// storefront queue:failed
var queueFailedCmd = &cobra.Command{
	Use:   "queue:failed",
	Short: "List jobs that exhausted their retries",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if err := server.BootDB(ctx); err != nil {
			return err
		}
		defer server.Close()

		list, err := queue.NewMongoFailedStore(database.DB).List(ctx, queueFailedLimit)
		if err != nil {
			return err
		}
		if len(list) == 0 {
			fmt.Println("No failed jobs.")
			return nil
		}
		w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', 0)
		fmt.Fprintln(w, "ID\tJOB\tATTEMPTS\tFAILED AT\tERROR")
		for _, f := range list {
			fmt.Fprintf(w, "%s\t%s\t%d\t%s\t%s\n", f.ID.Hex(), f.JobType, f.Attempts, f.FailedAt.Format("2006-01-02 15:04:05"), f.Error)
		}
		return w.Flush()
	},
}

// storefront queue:retry <id>
var queueRetryCmd = &cobra.Command{
	Use:   "queue:retry <id>",
	Short: "Push a failed job back onto the queue",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := primitive.ObjectIDFromHex(args[0])
		if err != nil {
			return fmt.Errorf("invalid job id %q", args[0])
		}
		ctx := cmd.Context()
		if err := server.Boot(ctx); err != nil {
			return err
		}
		defer server.Close()
		if config.QueueDriver() != "redis" {
			return fmt.Errorf("queue:retry needs QUEUE_DRIVER=redis; the memory queue does not outlive this command")
		}

		store := queue.NewMongoFailedStore(database.DB)
		f, err := store.Find(ctx, id)
		if err != nil {
			return err
		}
		if err := server.NewQueue().Retry(ctx, f, queueRetryDelay); err != nil {
			return err
		}
		if err := store.Forget(ctx, id); err != nil {
			return err
		}
		fmt.Printf("Job %s (%s) re-queued.\n", id.Hex(), f.JobType)
		return nil
	},
}

// storefront schedule:list
var scheduleListCmd = &cobra.Command{
	Use:   "schedule:list",
	Short: "List scheduled tasks",
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := server.NewScheduler(queue.New(queue.NewMemoryDriver()))
		if err != nil {
			return err
		}
		for _, t := range s.List() {
			fmt.Println("  •", t)
		}
		return nil
	},
}

// storefront schedule:run
var scheduleRunCmd = &cobra.Command{
	Use:   "schedule:run",
	Short: "Run scheduled tasks until interrupted (when serve runs with --schedule=false)",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if err := server.Boot(ctx); err != nil {
			return err
		}
		defer server.Close()

		s, err := server.NewScheduler(server.NewQueue())
		if err != nil {
			return err
		}
		fmt.Println("Scheduler started. Press Ctrl+C to stop.")
		s.Start(ctx)

		<-ctx.Done()
		s.Wait()
		fmt.Println("Scheduler stopped.")
		return nil
	},
}

func init() {
	queueWorkCmd.Flags().IntVarP(&queueWorkersFlag, "workers", "w", 2, "Number of concurrent workers")
	queueFailedCmd.Flags().Int64Var(&queueFailedLimit, "limit", 50, "Maximum failures to list")
	queueRetryCmd.Flags().DurationVar(&queueRetryDelay, "delay", 0, "Wait this long before the job runs again")
}
