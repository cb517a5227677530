// Package server owns the storefront process lifecycle: it boots the
// backing services, serves HTTP (and optionally gRPC), runs the queue
// workers, the live feed and the scheduler, and drains them on shutdown.
package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/ourstore/storefront/app/notifications"
	"github.com/ourstore/storefront/config"
	"github.com/ourstore/storefront/internal/kernel"
	"github.com/ourstore/storefront/pkg/cache"
	"github.com/ourstore/storefront/pkg/database"
	"github.com/ourstore/storefront/pkg/event"
	storegrpc "github.com/ourstore/storefront/pkg/grpc"
	"github.com/ourstore/storefront/pkg/idempotency"
	"github.com/ourstore/storefront/pkg/logger"
	"github.com/ourstore/storefront/pkg/storage"
)

const shutdownTimeout = 15 * time.Second

type Options struct {
	// GRPC also serves the health endpoint on config.GRPCPort.
	GRPC bool
	// Workers is the number of in-process queue workers; 0 leaves jobs to
	// a separate `queue:work` process.
	Workers int
	// Schedule runs periodic tasks in this process.
	Schedule bool
}

// Run serves until ctx is cancelled, then shuts everything down in order.
func Run(ctx context.Context, opts Options) error {
	if err := Boot(ctx); err != nil {
		return err
	}
	defer Close()

	var disk storage.Disk
	if err := storage.Connect(ctx); err != nil {
		logger.Warn("storage unavailable, image uploads disabled", "error", err)
	} else {
		disk = storage.Default()
	}

	var idem idempotency.Store = idempotency.NewMemoryStore()
	if cache.Connected() {
		idem = idempotency.NewRedisStore(cache.RDB)
	}

	q := NewQueue()
	events := event.NewDispatcher(8)

	k, err := kernel.NewHTTPKernel(kernel.Options{
		Stores:      kernel.MongoStores(database.DB),
		Notifier:    notifications.NewQueueNotifier(q),
		Events:      events,
		Idempotency: idem,
		Disk:        disk,
		Health:      database.Ping,
	})
	if err != nil {
		return err
	}

	srv := &http.Server{
		Addr:              ":" + config.AppPort(),
		Handler:           k.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       2 * time.Minute,
	}

	// Background loops stop on runCtx; requests in flight still finish
	// during srv.Shutdown.
	runCtx, stop := context.WithCancel(ctx)
	defer stop()

	g, gctx := errgroup.WithContext(runCtx)

	g.Go(func() error {
		k.Hub().Run(gctx)
		return nil
	})

	if opts.Workers > 0 {
		q.Start(gctx, opts.Workers)
	}

	if opts.Schedule {
		sched, err := NewScheduler(q)
		if err != nil {
			return err
		}
		sched.Start(gctx)
		defer sched.Wait()
	}

	var rpc *storegrpc.Server
	if opts.GRPC {
		rpc = storegrpc.New(database.Ping)
		if err := rpc.Start(config.GRPCPort()); err != nil {
			return err
		}
	}

	g.Go(func() error {
		logger.Info("storefront listening", "addr", srv.Addr, "env", config.AppEnv())
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("http shutdown", "error", err)
		}
		rpc.Stop()
		q.Wait()
		if err := events.Close(shutdownCtx); err != nil {
			logger.Warn("event listeners did not drain", "error", err)
		}
		return nil
	})

	return g.Wait()
}
