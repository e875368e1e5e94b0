package app

import (
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/nguyentranbao-ct/chat-sync/internal/config"
	"github.com/nguyentranbao-ct/chat-sync/internal/server"
	"github.com/nguyentranbao-ct/chat-sync/internal/syncengine"
)

func Invoke(funcs ...any) *fx.App {
	conf := config.MustLoad()
	logger := MustNewLogger(conf.Log)
	log := logger.Named("app")
	log.Debugw("config loaded", "server", conf.Server, "cache", conf.Cache, "connectivity", conf.Connectivity,
		"kafka_enabled", conf.Kafka.Enabled)
	return fx.New(
		fx.WithLogger(func() fxevent.Logger {
			l := &fxevent.ZapLogger{
				Logger: log.Desugar(),
			}
			l.UseLogLevel(zapcore.DebugLevel)
			return l
		}),
		fx.Provide(
			newMongoDB,
			newMessageCollection,
			newEventPublisher,
			newFeedClient,
			newCacheStore,
			newMonitor,
			syncengine.NewMetrics,
			newSessionManager,

			server.NewController,
		),
		fx.Supply(conf, logger),
		fx.Invoke(funcs...),
	)
}

// MustNewLogger builds the process-wide sugared logger.
func MustNewLogger(conf config.LogConfig) *zap.SugaredLogger {
	zc := zap.NewProductionConfig()
	if conf.Development {
		zc = zap.NewDevelopmentConfig()
	}
	level, err := zapcore.ParseLevel(conf.Level)
	if err != nil {
		panic(err)
	}
	zc.Level = zap.NewAtomicLevelAt(level)
	logger, err := zc.Build()
	if err != nil {
		panic(err)
	}
	return logger.Sugar()
}
