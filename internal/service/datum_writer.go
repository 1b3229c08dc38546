package service

import (
	"context"
	"fmt"

	"gridstream-data/internal/domain"
	"gridstream-data/internal/repository"
	"gridstream-data/internal/store"

	rediscommon "gridstream-data/common/redis"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

// DatumWriter datum 写入服务
// 存储写入（含同事务审计累加）必须成功；最新值缓存与输出 Stream 发布为尽力而为
type DatumWriter struct {
	repo         repository.DatumRepository
	latest       *store.LatestDatumStore
	redisClient  *redis.Client
	outputStream string
	logger       *zap.Logger
}

// NewDatumWriter 创建 datum 写入服务；latest / redisClient 可为 nil（关闭对应旁路）
func NewDatumWriter(repo repository.DatumRepository, latest *store.LatestDatumStore, redisClient *redis.Client, outputStream string, logger *zap.Logger) *DatumWriter {
	return &DatumWriter{
		repo:         repo,
		latest:       latest,
		redisClient:  redisClient,
		outputStream: outputStream,
		logger:       logger,
	}
}

// Write 写入一条 datum
// 丢审计可容忍（近似计数），丢 datum 不可——存储写失败向上传播
func (w *DatumWriter) Write(ctx context.Context, stream *domain.Stream, d *domain.Datum) error {
	if err := w.repo.Upsert(ctx, d); err != nil {
		return fmt.Errorf("failed to write datum: %w", err)
	}

	if w.latest != nil {
		if err := w.latest.Put(ctx, d); err != nil {
			w.logger.Warn("Failed to update latest datum cache",
				zap.String("stream_id", d.StreamID.String()),
				zap.Error(err),
			)
		}
	}

	if w.redisClient != nil && w.outputStream != "" {
		record := map[string]interface{}{
			"stream_id": d.StreamID.String(),
			"kind":      stream.Kind.String(),
			"object_id": stream.ObjectID,
			"source_id": stream.SourceID,
			"timestamp": d.Timestamp.Unix(),
		}
		if _, err := rediscommon.PublishJSONToStream(ctx, w.redisClient, w.outputStream, record); err != nil {
			w.logger.Warn("Failed to publish accepted datum to output stream", zap.Error(err))
		}
	}

	return nil
}
