package server

import (
	"context"
	"log/slog"
	"time"

	"github.com/ourstore/storefront/app/models"
	"github.com/ourstore/storefront/app/notifications"
	"github.com/ourstore/storefront/app/repositories"
	"github.com/ourstore/storefront/config"
	"github.com/ourstore/storefront/pkg/cache"
	"github.com/ourstore/storefront/pkg/database"
	"github.com/ourstore/storefront/pkg/logger"
	"github.com/ourstore/storefront/pkg/mail"
	"github.com/ourstore/storefront/pkg/notification"
	"github.com/ourstore/storefront/pkg/paging"
	"github.com/ourstore/storefront/pkg/queue"
	"github.com/ourstore/storefront/pkg/schedule"
)

const (
	digestThreshold = 10
	digestLimit     = 50
)

// Boot loads config and connects to Mongo. Redis is optional: without it
// caching, rate limiting and idempotency run in process.
func Boot(ctx context.Context) error {
	if err := config.Load(); err != nil {
		return err
	}
	if err := database.Connect(ctx); err != nil {
		return err
	}
	if err := cache.Connect(ctx); err != nil {
		logger.Warn("redis unavailable, using in-process fallbacks", "error", err)
	}
	if config.LogToMongo() {
		logger.AddSink(logger.NewMongoHandler(database.DB.Collection("logs"), slog.LevelInfo))
	}
	return nil
}

// BootDB is Boot for commands that only need Mongo.
func BootDB(ctx context.Context) error {
	if err := config.Load(); err != nil {
		return err
	}
	return database.Connect(ctx)
}

// Close releases what Boot opened.
func Close() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := cache.Close(); err != nil {
		logger.Warn("redis close", "error", err)
	}
	if err := database.Disconnect(ctx); err != nil {
		logger.Warn("mongo disconnect", "error", err)
	}
}

// NewQueue builds the job queue from config with every storefront job
// registered. The redis driver falls back to memory when Redis is down.
func NewQueue() *queue.Manager {
	var driver queue.Driver = queue.NewMemoryDriver()
	if config.QueueDriver() == "redis" {
		if cache.Connected() {
			driver = queue.NewRedisDriver(cache.RDB)
		} else {
			logger.Warn("queue: redis driver requested but redis is down, using memory")
		}
	}

	opts := []queue.Option{}
	if database.DB != nil {
		opts = append(opts, queue.WithFailedStore(queue.NewMongoFailedStore(database.DB)))
	}
	q := queue.New(driver, opts...)
	notifications.Register(q, notification.NewSender(mail.FromConfig(), config.SlackWebhookURL()))
	return q
}

// NewScheduler registers the storefront's periodic tasks.
func NewScheduler(q *queue.Manager) (*schedule.Scheduler, error) {
	s := schedule.New()

	digest, err := s.Cron("0 8 * * *")
	if err != nil {
		return nil, err
	}
	digest.Name("catalog:low-stock-digest").WithoutOverlapping().
		Run(notifications.QueueLowStockDigest(q, lowStock))

	return s, nil
}

func lowStock(ctx context.Context) ([]models.Product, error) {
	if database.DB == nil {
		return nil, nil
	}
	threshold := digestThreshold
	list, _, err := repositories.NewProductRepository(database.DB).List(ctx, repositories.ProductFilter{
		StockBelow:  &threshold,
		SortByStock: true,
	}, paging.New(1, digestLimit))
	return list, err
}
