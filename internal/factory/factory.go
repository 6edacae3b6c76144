// Package factory wires clients, stores and services together and owns
// their lifecycle.
package factory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"rediguard/internal/bucketing"
	"rediguard/internal/client"
	"rediguard/internal/config"
	"rediguard/internal/ipset"
	"rediguard/internal/pipeline"
	"rediguard/internal/scoring"
	"rediguard/internal/service"
	"rediguard/internal/store"
	"rediguard/internal/store/chstore"
	"rediguard/internal/store/esstore"
	"rediguard/internal/store/kafkalog"
	"rediguard/internal/store/redisstore"
	"rediguard/internal/util"
)

// Factory manages the lifecycle of all application dependencies
type Factory struct {
	config *config.Config

	// Clients
	redisClient      *client.RedisClient
	kafkaProducer    *client.KafkaProducer
	kafkaConsumer    *client.KafkaConsumer
	esClient         *client.ESClient
	clickhouseClient *client.ClickHouseClient

	// Stores
	eventLog   store.EventLog
	states     store.StateStore
	scores     store.ScoreSeries
	embeddings store.EmbeddingStore
	alerts     store.AlertIndex
	archive    store.EventArchive
	badIPs     ipset.Set

	// Domain components
	bucketingManager *bucketing.Manager
	scorer           *scoring.Scorer
	eventPipeline    *pipeline.Pipeline
	consumer         *pipeline.Consumer
	securityService  *service.SecurityService
	taskManager      *service.TaskManager

	closeOnce sync.Once
	closed    chan struct{}
}

// NewFactory creates and initializes all application dependencies
func NewFactory() (*Factory, error) {
	cfg := config.LoadConfig()

	util.Init(cfg.Environment, cfg.Logging.Level, cfg.Logging.Format)

	factory := &Factory{
		config: cfg,
		closed: make(chan struct{}),
	}

	if err := factory.initializeClients(); err != nil {
		return nil, fmt.Errorf("failed to initialize clients: %w", err)
	}
	if err := factory.initializeStores(); err != nil {
		return nil, fmt.Errorf("failed to initialize stores: %w", err)
	}
	factory.initializeDomain()

	util.Info("Factory initialized successfully",
		util.String("environment", cfg.Environment),
		util.String("ipset_mode", cfg.Pipeline.IPSetMode),
		util.Int("pipeline_workers", cfg.Pipeline.Workers),
	)

	return factory, nil
}

// initializeClients initializes all external service clients with health checks
func (f *Factory) initializeClients() error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	redisClient, err := client.NewRedisClient(f.config, util.Get())
	if err != nil {
		return fmt.Errorf("redis: %w", err)
	}
	f.redisClient = redisClient
	if err := f.redisClient.HealthCheck(ctx); err != nil {
		return fmt.Errorf("redis health check: %w", err)
	}

	producer, err := client.NewKafkaProducer(f.config, util.Get())
	if err != nil {
		return fmt.Errorf("kafka producer: %w", err)
	}
	f.kafkaProducer = producer
	if err := f.kafkaProducer.HealthCheck(ctx); err != nil {
		return fmt.Errorf("kafka health check: %w", err)
	}

	consumer, err := client.NewKafkaConsumer(f.config, util.Get())
	if err != nil {
		return fmt.Errorf("kafka consumer: %w", err)
	}
	f.kafkaConsumer = consumer

	esClient, err := client.NewElasticsearchClient(f.config, util.Get())
	if err != nil {
		return fmt.Errorf("elasticsearch: %w", err)
	}
	f.esClient = esClient

	chClient, err := client.NewClickHouseClient(f.config, util.Get())
	if err != nil {
		return fmt.Errorf("clickhouse: %w", err)
	}
	f.clickhouseClient = chClient

	return nil
}

// initializeStores builds the storage layer over the clients
func (f *Factory) initializeStores() error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pipelineCfg := f.config.Pipeline

	f.eventLog = kafkalog.NewEventLog(f.kafkaProducer, f.config.Kafka.LoginTopic, util.Get())
	f.states = redisstore.NewStateCache(f.redisClient)
	f.scores = redisstore.NewScoreSeries(f.redisClient, pipelineCfg.ScoreRetention)
	f.embeddings = redisstore.NewEmbeddingStore(f.redisClient, pipelineCfg.SimilarityScanDepth)

	alerts, err := esstore.NewAlertIndex(f.esClient, f.config.Elasticsearch.AlertIndex)
	if err != nil {
		return fmt.Errorf("alert index: %w", err)
	}
	f.alerts = alerts

	archive, err := chstore.NewEventArchive(ctx, f.clickhouseClient)
	if err != nil {
		return fmt.Errorf("event archive: %w", err)
	}
	f.archive = archive

	f.bucketingManager = bucketing.NewManager(pipelineCfg.UserLockStripes)

	switch pipelineCfg.IPSetMode {
	case "exact":
		f.badIPs = ipset.NewExactSet(f.redisClient)
	default:
		f.badIPs = ipset.NewBloomSet(f.redisClient, f.bucketingManager, pipelineCfg.BloomBits, pipelineCfg.BloomHashes)
	}

	return nil
}

// initializeDomain builds the scorer, pipeline and services
func (f *Factory) initializeDomain() {
	pipelineCfg := f.config.Pipeline

	f.scorer = scoring.NewScorer(scoring.Options{
		Trees:        pipelineCfg.ForestTrees,
		SampleSize:   pipelineCfg.ForestSampleSize,
		Seed:         pipelineCfg.BootstrapSeed,
		NumNormal:    pipelineCfg.BootstrapNormal,
		NumAnomalous: pipelineCfg.BootstrapAnomalous,
	}, util.Get())

	f.eventPipeline = pipeline.New(
		f.states, f.scores, f.embeddings, f.alerts, f.archive,
		f.badIPs, f.scorer,
		pipeline.Options{
			AnomalyThreshold:   pipelineCfg.AnomalyThreshold,
			GeoJumpThresholdKM: pipelineCfg.GeoJumpThresholdKM,
			VectorDimension:    pipelineCfg.VectorDimension,
			LockStripes:        pipelineCfg.UserLockStripes,
		},
		util.Get(),
	)

	f.consumer = pipeline.NewConsumer(f.kafkaConsumer, f.eventPipeline, pipelineCfg.Workers, util.Get())

	generator := service.NewGenerator(time.Now().UnixNano())
	f.securityService = service.NewSecurityService(
		f.eventLog, f.scores, f.embeddings, f.alerts, f.archive, f.states,
		f.badIPs, generator, f.config.Limits, util.Get(),
	)
	f.taskManager = service.NewTaskManager(f.eventLog, generator, f.config.Limits, util.Get())
}

// HealthCheck probes every backend and returns the failures by name
func (f *Factory) HealthCheck(ctx context.Context) map[string]error {
	healthErrors := make(map[string]error)

	if f.redisClient != nil {
		if err := f.redisClient.HealthCheck(ctx); err != nil {
			healthErrors["redis"] = err
		}
	} else {
		healthErrors["redis"] = fmt.Errorf("redis client not initialized")
	}

	if f.esClient != nil {
		if err := f.esClient.HealthCheck(); err != nil {
			healthErrors["elasticsearch"] = err
		}
	} else {
		healthErrors["elasticsearch"] = fmt.Errorf("elasticsearch client not initialized")
	}

	if f.clickhouseClient != nil {
		if err := f.clickhouseClient.HealthCheck(ctx); err != nil {
			healthErrors["clickhouse"] = err
		}
	} else {
		healthErrors["clickhouse"] = fmt.Errorf("clickhouse client not initialized")
	}

	if f.kafkaProducer != nil {
		if err := f.kafkaProducer.HealthCheck(ctx); err != nil {
			healthErrors["kafka"] = err
		}
	} else {
		healthErrors["kafka"] = fmt.Errorf("kafka producer not initialized")
	}

	if f.scorer == nil || !f.scorer.Ready() {
		healthErrors["scorer"] = fmt.Errorf("anomaly model not trained")
	}

	return healthErrors
}

func (f *Factory) IsHealthy(ctx context.Context) bool {
	return len(f.HealthCheck(ctx)) == 0
}

func (f *Factory) Close() error {
	f.closeOnce.Do(func() {
		close(f.closed)
		util.Info("Shutting down factory...")

		if f.kafkaConsumer != nil {
			if err := f.kafkaConsumer.Close(); err != nil {
				util.Error("Failed to close Kafka consumer", util.ErrorField(err))
			}
		}

		if f.kafkaProducer != nil {
			if err := f.kafkaProducer.Close(); err != nil {
				util.Error("Failed to close Kafka producer", util.ErrorField(err))
			}
		}

		if f.clickhouseClient != nil {
			if err := f.clickhouseClient.Close(); err != nil {
				util.Error("Failed to close ClickHouse client", util.ErrorField(err))
			}
		}

		if f.esClient != nil {
			f.esClient.Close()
		}

		if f.redisClient != nil {
			if err := f.redisClient.Close(); err != nil {
				util.Error("Failed to close Redis client", util.ErrorField(err))
			}
		}

		util.Sync()
		util.Info("Factory shutdown completed")
	})

	return nil
}

func (f *Factory) WaitForClose() {
	<-f.closed
}

func (f *Factory) Config() *config.Config {
	return f.config
}

func (f *Factory) SecurityService() *service.SecurityService {
	return f.securityService
}

func (f *Factory) TaskManager() *service.TaskManager {
	return f.taskManager
}

func (f *Factory) Consumer() *pipeline.Consumer {
	return f.consumer
}
