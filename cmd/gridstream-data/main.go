package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"gridstream-data/common/database"
	commonlogger "gridstream-data/common/logger"
	commonmqtt "gridstream-data/common/mqtt"
	commonredis "gridstream-data/common/redis"
	"gridstream-data/internal/cache"
	"gridstream-data/internal/config"
	ingestmqtt "gridstream-data/internal/mqtt"
	"gridstream-data/internal/repository"
	"gridstream-data/internal/service"
	"gridstream-data/internal/store"

	"go.uber.org/zap"
)

func main() {
	cfg := config.Load()

	logger, err := commonlogger.NewLogger(cfg.Log.Level, cfg.Log.Format, "gridstream-data")
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	db, err := database.NewPostgresDB(&cfg.Database)
	if err != nil {
		logger.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer db.Close()

	bulkDB, err := database.NewBulkLoadDB(&cfg.Database, cfg.BulkLoadMaxConns)
	if err != nil {
		logger.Fatal("Failed to create bulk-load database pool", zap.Error(err))
	}
	defer bulkDB.Close()

	redisClient := commonredis.NewRedisClient(&cfg.Redis.RedisConfig)
	defer redisClient.Close()
	if err := commonredis.Ping(context.Background(), redisClient); err != nil {
		// Redis 只承载旁路缓存与输出流，不可用时降级运行
		logger.Warn("Redis unavailable, latest-datum cache and output stream disabled", zap.Error(err))
	}

	streamsRepo := repository.NewPostgresStreamsRepository(db)
	datumRepo := repository.NewPostgresDatumRepository(db, bulkDB)
	auditRepo := repository.NewPostgresAuditRepository(db)

	resolver := service.NewStreamResolver(streamsRepo,
		cache.Config{Capacity: cfg.Cache.MetaCapacity, TTL: cfg.Cache.MetaTTL},
		cache.Config{Capacity: cfg.Cache.IDCapacity, TTL: cfg.Cache.IDTTL},
		logger,
	)

	latest := store.NewLatestDatumStore(store.NewRedisKV(redisClient), cfg.Redis.LatestTTL)
	writer := service.NewDatumWriter(datumRepo, latest, redisClient, cfg.Redis.OutputStream, logger)

	rollup := service.NewRollupService(auditRepo, cfg.Rollup.Interval, logger)

	ownership := service.NewOwnershipClient(cfg.Registry.BaseURL, cfg.Registry.Timeout, cfg.Registry.CacheTTL, logger)

	ingestor, err := ingestmqtt.NewDatumIngestor(resolver, writer, ownership, ingestmqtt.IngestorConfig{
		NodeTopicTemplate: cfg.MQTT.NodeTopicTemplate,
		QoS:               cfg.MQTT.QoS,
		TransientTries:    cfg.Ingest.TransientTries,
	}, logger)
	if err != nil {
		logger.Fatal("Failed to create datum ingestor", zap.Error(err))
	}

	mqttClient, err := commonmqtt.NewClient(&cfg.MQTT.MQTTConfig, cfg.MQTT.OpTimeout, ingestor.Resubscribe, logger)
	if err != nil {
		logger.Fatal("Failed to connect to MQTT broker", zap.Error(err))
	}
	// 初次连接回调发生在 SetClient 之前，这里补一次初始订阅
	ingestor.SetClient(mqttClient)
	ingestor.Resubscribe()
	defer mqttClient.Disconnect()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go rollup.Run(ctx)

	logger.Info("gridstream-data started")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	logger.Info("Shutting down")
	cancel()
}
