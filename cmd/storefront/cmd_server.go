package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/ourstore/storefront/config"
	"github.com/ourstore/storefront/internal/kernel"
	"github.com/ourstore/storefront/internal/server"
)

var (
	serveGRPC     bool
	serveWorkers  int
	serveSchedule bool
)

// storefront serve
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP server (plus optional gRPC health, workers and scheduler)",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		workers := serveWorkers
		if !cmd.Flags().Changed("workers") {
			workers = config.QueueWorkers()
		}
		return server.Run(ctx, server.Options{
			GRPC:     serveGRPC,
			Workers:  workers,
			Schedule: serveSchedule,
		})
	},
}

// storefront route:list
var routeListCmd = &cobra.Command{
	Use:   "route:list",
	Short: "List every registered route",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := config.Load(); err != nil {
			return err
		}
		k, err := kernel.NewHTTPKernel(kernel.Options{})
		if err != nil {
			return err
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', 0)
		fmt.Fprintln(w, "METHOD\tPATH\tNAME")
		fmt.Fprintln(w, "------\t----\t----")
		for _, ri := range k.Routes() {
			fmt.Fprintf(w, "%s\t%s\t%s\n", ri.Method, ri.Path, ri.Name)
		}
		return w.Flush()
	},
}

func init() {
	serveCmd.Flags().BoolVar(&serveGRPC, "grpc", false, "Also serve the gRPC health endpoint on GRPC_PORT")
	serveCmd.Flags().IntVarP(&serveWorkers, "workers", "w", 2, "In-process queue workers (0 to leave jobs to queue:work)")
	serveCmd.Flags().BoolVar(&serveSchedule, "schedule", true, "Run scheduled tasks in this process")
}
