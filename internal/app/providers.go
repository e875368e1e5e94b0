package app

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/nguyentranbao-ct/chat-sync/internal/cache"
	"github.com/nguyentranbao-ct/chat-sync/internal/config"
	"github.com/nguyentranbao-ct/chat-sync/internal/connectivity"
	"github.com/nguyentranbao-ct/chat-sync/internal/feed"
	"github.com/nguyentranbao-ct/chat-sync/internal/kafka"
	"github.com/nguyentranbao-ct/chat-sync/internal/models"
	"github.com/nguyentranbao-ct/chat-sync/internal/session"
	"github.com/nguyentranbao-ct/chat-sync/internal/syncengine"
)

func newMongoDB(lc fx.Lifecycle, cfg *config.Config) (*mongo.Database, error) {
	opts := options.Client().
		SetAppName("chat-sync").
		SetDirect(cfg.Database.Direct).
		SetHosts(cfg.Database.Hosts).
		SetTimeout(cfg.Database.Timeout)

	if cfg.Database.Username != "" {
		opts.SetAuth(options.Credential{
			Username:      cfg.Database.Username,
			Password:      cfg.Database.Password,
			AuthSource:    cfg.Database.AuthDB,
			AuthMechanism: "SCRAM-SHA-1",
		})
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Database.Timeout)
	defer cancel()
	mongoClient, err := mongo.Connect(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("init mongo client: %w", err)
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			return mongoClient.Ping(ctx, nil)
		},
		OnStop: func(ctx context.Context) error {
			return mongoClient.Disconnect(ctx)
		},
	})

	return mongoClient.Database(cfg.Database.Database), nil
}

func newMessageCollection(db *mongo.Database, cfg *config.Config) *mongo.Collection {
	return db.Collection(cfg.Database.Collection)
}

func newEventPublisher(lc fx.Lifecycle, cfg *config.Config, logger *zap.SugaredLogger) (feed.EventPublisher, error) {
	if !cfg.Kafka.Enabled {
		return kafka.NoopPublisher{}, nil
	}
	producer, err := kafka.NewProducer(cfg.Kafka)
	if err != nil {
		return nil, fmt.Errorf("init kafka producer: %w", err)
	}
	publisher := kafka.NewPublisher(producer, cfg.Kafka.Topic, logger.Named("kafka"))
	lc.Append(fx.StopHook(publisher.Close))
	return publisher, nil
}

func newFeedClient(coll *mongo.Collection, publisher feed.EventPublisher, logger *zap.SugaredLogger) feed.Client {
	return feed.NewMongoClient(coll, publisher, logger.Named("feed"))
}

func newCacheStore(lc fx.Lifecycle, cfg *config.Config) (cache.Store, error) {
	var store cache.Store
	switch cfg.Cache.Driver {
	case "memory":
		store = cache.NewMemoryStore()
	default:
		sqlite, err := cache.NewSQLiteStore(cfg.Cache.Path)
		if err != nil {
			return nil, fmt.Errorf("open cache %s: %w", cfg.Cache.Path, err)
		}
		store = sqlite
	}
	lc.Append(fx.StopHook(store.Close))
	return store, nil
}

func newMonitor(lc fx.Lifecycle, cfg *config.Config, logger *zap.SugaredLogger) connectivity.Monitor {
	if cfg.Connectivity.Mode != "probe" {
		return connectivity.NewManual(models.ConnectivityState(cfg.Connectivity.Initial))
	}
	probe := connectivity.NewProbe(connectivity.ProbeOptions{
		URLs:     cfg.Connectivity.ProbeURLs,
		Interval: cfg.Connectivity.Interval,
		Timeout:  cfg.Connectivity.Timeout,
	}, logger.Named("connectivity"))
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			probe.Start(context.Background())
			return nil
		},
		OnStop: func(context.Context) error {
			probe.Close()
			return nil
		},
	})
	return probe
}

func newSessionManager(
	lc fx.Lifecycle,
	feedClient feed.Client,
	store cache.Store,
	monitor connectivity.Monitor,
	metrics *syncengine.Metrics,
	logger *zap.SugaredLogger,
) session.Manager {
	sessions := session.NewManager(session.Deps{
		Feed:    feedClient,
		Cache:   store,
		Monitor: monitor,
		Metrics: metrics,
		Logger:  logger,
	})
	lc.Append(fx.StopHook(sessions.Close))
	return sessions
}
