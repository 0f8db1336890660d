package main

import (
	"context"
	"fmt"
	"time"

	"github.com/Gobusters/ectoinject"
	"github.com/Gobusters/ectoinject/ectocontainer"
	"github.com/Gobusters/ectoinject/loglevel"
	"github.com/Gobusters/ectologger"
	"github.com/Gobusters/ectologger/zapadapter"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Ramsey-B/fern/config"
	"github.com/Ramsey-B/fern/internal/repositories/document"
	"github.com/Ramsey-B/fern/internal/repositories/typeschema"
	"github.com/Ramsey-B/fern/pkg/database"
	"github.com/Ramsey-B/fern/pkg/events"
	"github.com/Ramsey-B/fern/pkg/graph"
	"github.com/Ramsey-B/fern/pkg/hooks"
	"github.com/Ramsey-B/fern/pkg/indexer"
	"github.com/Ramsey-B/fern/pkg/kafka"
	fernredis "github.com/Ramsey-B/fern/pkg/redis"
	"github.com/Ramsey-B/fern/pkg/routes/graphsync"
	hooksroute "github.com/Ramsey-B/fern/pkg/routes/hooks"
	"github.com/Ramsey-B/fern/pkg/schema"
	"github.com/Ramsey-B/fern/pkg/startup"
	"github.com/Ramsey-B/fern/pkg/tracing"
	"github.com/Ramsey-B/fern/pkg/tracing/exporters"
)

// app holds every long lived dependency of a fern process
type app struct {
	cfg     *config.Config
	logger  ectologger.Logger
	zap     *zap.Logger
	startup *startup.Startup

	db       *database.DatabaseInstance
	redis    *fernredis.Client
	graph    *graph.Client
	indexer  *indexer.Indexer
	hooks    *hooks.Hooks
	producer *kafka.Producer
	consumer *kafka.Consumer

	// containerID names the dependency container the HTTP handlers resolve from
	containerID string

	shutdownTracing func(context.Context) error
}

type appOptions struct {
	migrate  bool
	consumer bool
}

func newLogger(cfg *config.Config) (*zap.Logger, ectologger.Logger, error) {
	zapCfg := zap.NewProductionConfig()
	if cfg.PrettyLogs {
		zapCfg = zap.NewDevelopmentConfig()
	}

	level, err := zap.ParseAtomicLevel(cfg.LogLevel)
	if err != nil {
		return nil, nil, fmt.Errorf("invalid log level %q: %w", cfg.LogLevel, err)
	}
	zapCfg.Level = level

	zapLogger, err := zapCfg.Build()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to build logger: %w", err)
	}
	zapLogger = zapLogger.With(zap.String("app", cfg.AppName), zap.String("version", cfg.AppVersion))
	return zapLogger, zapadapter.NewZapEctoLogger(zapLogger, nil), nil
}

func newApp(cfg *config.Config, opts appOptions) (*app, error) {
	zapLogger, logger, err := newLogger(cfg)
	if err != nil {
		return nil, err
	}

	a := &app{
		cfg:             cfg,
		logger:          logger,
		zap:             zapLogger,
		startup:         startup.NewStartup(logger, cfg.StartupMaxAttempts),
		graph:           graph.NewClient(logger),
		shutdownTracing: func(context.Context) error { return nil },
	}
	a.register(opts)
	return a, nil
}

// register declares the dependency graph. Nothing connects until Start.
func (a *app) register(opts appOptions) {
	cfg := a.cfg

	a.startup.AddDependency(&startup.Dependency{
		Name:      "tracing",
		StartFunc: a.startTracing,
		StopFunc: func(ctx context.Context) error {
			return a.shutdownTracing(ctx)
		},
	})

	a.startup.AddDependency(&startup.Dependency{
		Name:     "database",
		Requires: []string{"tracing"},
		StartFunc: func(ctx context.Context) error {
			db, err := database.Open(ctx, database.Options{
				Driver:          cfg.DatabaseDriver,
				DSN:             cfg.DatabaseURL(),
				MaxOpenConns:    cfg.DatabaseMaxOpenConns,
				MaxIdleConns:    cfg.DatabaseMaxIdleConns,
				ConnMaxLifetime: cfg.DatabaseConnMaxLifetime,
			}, a.logger)
			if err != nil {
				return err
			}
			a.db = db
			return nil
		},
		StopFunc: func(_ context.Context) error {
			if a.db == nil {
				return nil
			}
			return a.db.Close()
		},
	})

	indexerRequires := []string{"database"}

	if opts.migrate {
		a.startup.AddDependency(&startup.Dependency{
			Name:     "migrations",
			Requires: []string{"database"},
			StartFunc: func(_ context.Context) error {
				return a.migrations().Up(a.db.DB.DB, cfg.DatabaseName)
			},
		})
		indexerRequires = append(indexerRequires, "migrations")
	}

	if cfg.RedisEnabled {
		a.startup.AddDependency(&startup.Dependency{
			Name: "redis",
			StartFunc: func(ctx context.Context) error {
				client, err := fernredis.NewClient(ctx, cfg.Redis(), a.logger)
				if err != nil {
					return err
				}
				a.redis = client
				return nil
			},
			StopFunc: func(_ context.Context) error {
				if a.redis == nil {
					return nil
				}
				return a.redis.Close()
			},
		})
		indexerRequires = append(indexerRequires, "redis")
	}

	if cfg.KafkaProducerEnabled {
		a.startup.AddDependency(&startup.Dependency{
			Name: "kafka-producer",
			StartFunc: func(_ context.Context) error {
				a.producer = kafka.NewProducer(kafka.ProducerConfig{
					Brokers:      cfg.KafkaBrokers,
					Topic:        cfg.KafkaOutputTopic,
					BatchSize:    cfg.KafkaBatchSize,
					BatchTimeout: time.Duration(cfg.KafkaBatchTimeout) * time.Millisecond,
					RequiredAcks: cfg.KafkaRequiredAcks,
					Compression:  cfg.KafkaCompression,
				}, a.logger)
				return nil
			},
			StopFunc: func(_ context.Context) error {
				if a.producer == nil {
					return nil
				}
				return a.producer.Close()
			},
		})
		indexerRequires = append(indexerRequires, "kafka-producer")
	}

	a.startup.AddDependency(&startup.Dependency{
		Name:      "indexer",
		Requires:  indexerRequires,
		StartFunc: a.startIndexer,
		StopFunc: func(ctx context.Context) error {
			if a.indexer == nil {
				return nil
			}
			return a.indexer.Shutdown(ctx)
		},
	})

	if opts.consumer && cfg.KafkaConsumerEnabled {
		a.startup.AddDependency(&startup.Dependency{
			Name:     "kafka-consumer",
			Requires: []string{"indexer"},
			StartFunc: func(ctx context.Context) error {
				a.consumer = kafka.NewConsumer(kafka.ConsumerConfig{
					Brokers:         cfg.KafkaBrokers,
					Topic:           cfg.KafkaLifecycleTopic,
					ConsumerGroup:   cfg.KafkaConsumerGroup,
					RetryBackoff:    cfg.KafkaRetryBackoff,
					MaxRetryBackoff: cfg.KafkaMaxRetryBackoff,
				}, a.logger, a.hooks.HandleMessage)
				return a.consumer.Start(ctx)
			},
			StopFunc: func(_ context.Context) error {
				if a.consumer == nil {
					return nil
				}
				return a.consumer.Stop()
			},
		})
	}
}

func (a *app) startTracing(ctx context.Context) error {
	if !a.cfg.TracingEnabled {
		return nil
	}

	otlp := exporters.DefaultOTLPConfig()
	otlp.Endpoint = a.cfg.OTLPEndpoint
	otlp.Protocol = a.cfg.OTLPProtocol
	otlp.Insecure = a.cfg.OTLPInsecure
	otlp.URLPath = a.cfg.OTLPURLPath
	otlp.Timeout = time.Duration(a.cfg.OTLPTimeoutSeconds) * time.Second

	shutdown, err := tracing.InitProvider(ctx, tracing.ProviderConfig{
		ServiceName:    a.cfg.AppName,
		ServiceVersion: a.cfg.AppVersion,
		Exporter:       a.cfg.TracingExporter,
		OTLP:           otlp,
		Logger:         a.logger,
	})
	if err != nil {
		return err
	}
	a.shutdownTracing = shutdown
	return nil
}

// startIndexer wires the synchronizer and loads the graph configuration.
// An unreachable graph store is only logged: lifecycle hooks keep running
// and fail per document until it comes back.
func (a *app) startIndexer(ctx context.Context) error {
	documents := document.NewRepository(a.db, a.logger)
	schemas := schema.NewPointerMapService(typeschema.NewRepository(a.db, a.logger), a.logger)
	fallback := a.cfg.FallbackGraphConfig()

	idxCfg := indexer.Config{
		Store:             a.graph,
		Searcher:          graph.NewQueryService(a.graph, a.logger),
		Repository:        documents,
		Schemas:           schemas,
		Logger:            a.logger,
		ConfigObjectID:    a.cfg.GraphConfigObjectID,
		ConfigPayloadName: a.cfg.GraphConfigPayloadName,
		Fallback:          &fallback,
		LockTTL:           a.cfg.ReindexLockTTL,
	}
	if a.redis != nil {
		idxCfg.Locker = fernredis.NewLocker(a.redis, a.cfg.RedisKeyPrefix)
	}
	a.indexer = indexer.New(idxCfg)

	var notifier hooks.Notifier
	if a.producer != nil {
		notifier = events.NewEmitter(a.producer, a.logger)
	}
	a.hooks = hooks.New(a.indexer, notifier, a.logger)

	if _, err := a.indexer.LoadConfig(ctx); err != nil {
		return err
	}
	if err := a.indexer.Ping(ctx); err != nil {
		a.logger.WithContext(ctx).WithError(err).Warn("Graph store unreachable, continuing without it")
	}
	return a.registerServices()
}

var (
	_ graphsync.Service = (*indexer.Indexer)(nil)
	_ hooksroute.Guard  = (*hooks.Hooks)(nil)
)

// registerServices publishes the request-facing services in a container of
// their own. Each start attempt gets a fresh id since container ids are
// process-wide.
func (a *app) registerServices() error {
	container, err := ectoinject.NewDIContainer(ectocontainer.DIContainerConfig{
		ID:                       a.cfg.AppName + "-" + uuid.NewString(),
		AllowMissingDependencies: true,
		LoggerConfig: &ectocontainer.DIContainerLoggerConfig{
			Prefix:   "ectoinject",
			LogLevel: loglevel.WARN,
			Enabled:  true,
			LogFunc: func(ctx context.Context, _ string, msg string) {
				a.logger.WithContext(ctx).Debug(msg)
			},
		},
	})
	if err != nil {
		return fmt.Errorf("failed to create dependency container: %w", err)
	}

	if err := ectoinject.RegisterInstance[graphsync.Service](container, a.indexer); err != nil {
		return fmt.Errorf("failed to register graph sync service: %w", err)
	}
	if err := ectoinject.RegisterInstance[hooksroute.Guard](container, a.hooks); err != nil {
		return fmt.Errorf("failed to register lifecycle hooks: %w", err)
	}
	if err := ectoinject.RegisterInstance[ectologger.Logger](container, a.logger); err != nil {
		return fmt.Errorf("failed to register logger: %w", err)
	}

	a.containerID = container.GetContainerID()
	return nil
}

func (a *app) migrations() *database.MigrationService {
	return database.NewMigrationService(a.logger, &database.MigrationConfig{
		MigrationFolderPath: a.cfg.DatabaseMigrationFolderPath,
		Version:             uint(a.cfg.DatabaseMigrationVersion),
		Force:               a.cfg.DatabaseMigrationForce,
		AutoRollback:        a.cfg.DatabaseMigrationAutoRollback,
	})
}

func (a *app) Start(ctx context.Context) error {
	return a.startup.Start(ctx)
}

func (a *app) Stop(ctx context.Context) error {
	err := a.startup.Stop(ctx)
	_ = a.zap.Sync()
	return err
}
