package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"gridstream-data/common/database"
	commonlogger "gridstream-data/common/logger"
	commonredis "gridstream-data/common/redis"
	"gridstream-data/internal/config"
	"gridstream-data/internal/domain"
	"gridstream-data/internal/repository"
	"gridstream-data/internal/service"
	"gridstream-data/internal/store"

	"go.uber.org/zap"
)

// 聚合查询诊断工具：按条件执行查询门面并输出 JSON 结果
func main() {
	kindFlag := flag.String("kind", "node", "object kind: node or location")
	nodesFlag := flag.String("objects", "", "comma-separated object IDs")
	sourcesFlag := flag.String("sources", "", "comma-separated source IDs (optional)")
	startFlag := flag.String("start", "", "range start, RFC3339 (optional)")
	endFlag := flag.String("end", "", "range end, RFC3339 (optional)")
	aggFlag := flag.String("agg", "", "aggregation: Minute/Hour/Day/Month/Year/RunningTotal/HourOfDay/DayOfWeek (optional)")
	mostRecentFlag := flag.Bool("most-recent", false, "return only the latest datum per stream")
	offsetFlag := flag.Int("offset", 0, "result offset")
	maxFlag := flag.Int("max", 100, "maximum results")
	userFlag := flag.Int64("user", 0, "acting user ID (0 = admin access)")
	flag.Parse()

	cfg := config.Load()
	logger, err := commonlogger.NewLogger(cfg.Log.Level, "console", "query-datum")
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer logger.Sync()

	criteria, err := buildCriteria(*kindFlag, *nodesFlag, *sourcesFlag, *startFlag, *endFlag, *aggFlag, *mostRecentFlag)
	if err != nil {
		log.Fatalf("Invalid criteria: %v", err)
	}

	db, err := database.NewPostgresDB(&cfg.Database)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	streamsRepo := repository.NewPostgresStreamsRepository(db)
	datumRepo := repository.NewPostgresDatumRepository(db, db)
	auditRepo := repository.NewPostgresAuditRepository(db)

	var latest *store.LatestDatumStore
	redisClient := commonredis.NewRedisClient(&cfg.Redis.RedisConfig)
	defer redisClient.Close()
	if err := commonredis.Ping(context.Background(), redisClient); err == nil {
		latest = store.NewLatestDatumStore(store.NewRedisKV(redisClient), cfg.Redis.LatestTTL)
	}

	enforcer, err := service.NewAggregationEnforcer(service.EnforcerConfig{
		MinuteMaxDays:    cfg.Agg.MinuteMax,
		HourMaxDays:      cfg.Agg.HourMax,
		DayMaxDays:       cfg.Agg.DayMax,
		HourOfDayMaxDays: cfg.Agg.HourOfDayMax,
		DayOfWeekMaxDays: cfg.Agg.DayOfWeekMax,
	})
	if err != nil {
		log.Fatalf("Invalid aggregation config: %v", err)
	}

	auditor := service.NewQueryAuditor(auditRepo, service.QueryAuditorConfig{
		UpdateDelay:             cfg.Audit.UpdateDelay,
		FlushDelay:              cfg.Audit.FlushDelay,
		ConnectionRecoveryDelay: cfg.Audit.ConnectionRecoveryDelay,
		StatLogUpdateCount:      cfg.Audit.StatLogUpdateCount,
	}, logger)

	queries := service.NewQueryService(streamsRepo, datumRepo, latest, enforcer, auditor,
		service.QueryServiceConfig{FilteredResultsLimit: cfg.Query.FilteredResultsLimit}, logger)
	ownership := service.NewOwnershipClient(cfg.Registry.BaseURL, cfg.Registry.Timeout, cfg.Registry.CacheTTL, logger)
	authorized := service.NewAuthorizedQueryService(queries, ownership)

	actor := service.Actor{UserID: *userFlag, Admin: *userFlag == 0}

	ctx := context.Background()
	var result interface{}
	var effective domain.Aggregation

	if criteria.Aggregation != domain.AggregationNone {
		result, effective, err = authorized.FindFilteredAggregate(ctx, actor, criteria, nil, *offsetFlag, *maxFlag)
		if err == nil {
			fmt.Fprintf(os.Stderr, "aggregation: %s\n", effective)
		}
	} else {
		result, err = authorized.FindFilteredRaw(ctx, actor, criteria, nil, *offsetFlag, *maxFlag)
	}
	if err != nil {
		log.Fatalf("Query failed: %v", err)
	}

	// 退出前把本次查询的审计计数落库
	flushCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := auditor.Flush(flushCtx); err != nil {
		logger.Warn("Failed to flush query audit counts", zap.Error(err))
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(result); err != nil {
		log.Fatalf("Failed to encode result: %v", err)
	}
}

func buildCriteria(kind, objects, sources, start, end, agg string, mostRecent bool) (*domain.DatumCriteria, error) {
	k, err := domain.ParseObjectKind(kind)
	if err != nil {
		return nil, err
	}
	c := &domain.DatumCriteria{Kind: k, MostRecent: mostRecent}

	for _, part := range splitList(objects) {
		id, err := strconv.ParseInt(part, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid object ID %q", part)
		}
		c.ObjectIDs = append(c.ObjectIDs, id)
	}
	c.SourceIDs = splitList(sources)

	if start != "" {
		t, err := time.Parse(time.RFC3339, start)
		if err != nil {
			return nil, fmt.Errorf("invalid start date: %w", err)
		}
		c.StartDate = &t
	}
	if end != "" {
		t, err := time.Parse(time.RFC3339, end)
		if err != nil {
			return nil, fmt.Errorf("invalid end date: %w", err)
		}
		c.EndDate = &t
	}
	if agg != "" {
		a, err := domain.ParseAggregation(agg)
		if err != nil {
			return nil, err
		}
		c.Aggregation = a
	}
	return c, c.Validate()
}

func splitList(s string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
