package config

import (
	"os"
	"strconv"
	"time"

	commoncfg "gridstream-data/common/config"
)

// Config gridstream-data 服务配置
type Config struct {
	Database         commoncfg.DatabaseConfig
	BulkLoadMaxConns int

	Redis struct {
		commoncfg.RedisConfig
		// 接收成功写入后发布的输出 Stream
		OutputStream string
		// 最新 datum KV 的过期时间
		LatestTTL time.Duration
	}

	MQTT struct {
		commoncfg.MQTTConfig
		// subscribe/unsubscribe 等待上限
		OpTimeout time.Duration
		// 节点主题模板，{nodeId} 为节点ID占位符
		NodeTopicTemplate string
	}

	Log struct {
		Level  string
		Format string
	}

	// Ingest 接收管道配置
	Ingest struct {
		// 瞬态存储错误的立即重试次数上限
		TransientTries int
	}

	// Registry 节点归属注册服务（HTTP）
	Registry struct {
		BaseURL  string
		Timeout  time.Duration
		CacheTTL time.Duration
	}

	// Agg 聚合级别限制阈值（天数；0 表示该档不限制）
	Agg struct {
		MinuteMax    int
		HourMax      int
		DayMax       int
		HourOfDayMax int
		DayOfWeekMax int
	}

	// Query 查询配置
	Query struct {
		FilteredResultsLimit int
	}

	// Audit 查询审计写入器配置
	Audit struct {
		UpdateDelay             time.Duration
		FlushDelay              time.Duration
		ConnectionRecoveryDelay time.Duration
		StatLogUpdateCount      int
	}

	// Cache 流标识缓存配置（元数据缓存与仅ID缓存各自独立）
	Cache struct {
		MetaCapacity int
		MetaTTL      time.Duration
		IDCapacity   int
		IDTTL        time.Duration
	}

	// Rollup 小时→天→月审计汇总任务间隔
	Rollup struct {
		Interval time.Duration
	}
}

// Load 从环境变量加载配置
func Load() *Config {
	cfg := &Config{}

	cfg.Database.Host = getEnv("DB_HOST", "localhost")
	cfg.Database.Port = parseInt(getEnv("DB_PORT", "5432"), 5432)
	cfg.Database.User = getEnv("DB_USER", "postgres")
	cfg.Database.Password = getEnv("DB_PASSWORD", "postgres")
	cfg.Database.Database = getEnv("DB_NAME", "gridstream")
	cfg.Database.SSLMode = getEnv("DB_SSLMODE", "disable")
	cfg.Database.MaxConns = parseInt(getEnv("DB_MAX_CONNS", "10"), 10)
	cfg.Database.MaxIdle = parseInt(getEnv("DB_MAX_IDLE", "5"), 5)
	cfg.BulkLoadMaxConns = parseInt(getEnv("DB_BULK_MAX_CONNS", "2"), 2)

	cfg.Redis.Addr = getEnv("REDIS_ADDR", "localhost:6379")
	cfg.Redis.Password = getEnv("REDIS_PASSWORD", "")
	cfg.Redis.DB = parseInt(getEnv("REDIS_DB", "0"), 0)
	cfg.Redis.OutputStream = getEnv("REDIS_OUTPUT_STREAM", "gridstream:datum:accepted")
	cfg.Redis.LatestTTL = parseDuration(getEnv("REDIS_LATEST_TTL", "24h"), 24*time.Hour)

	cfg.MQTT.Broker = getEnv("MQTT_BROKER", "tcp://localhost:1883")
	cfg.MQTT.ClientID = getEnv("MQTT_CLIENT_ID", "gridstream-data")
	cfg.MQTT.Username = getEnv("MQTT_USERNAME", "")
	cfg.MQTT.Password = getEnv("MQTT_PASSWORD", "")
	cfg.MQTT.QoS = byte(parseInt(getEnv("MQTT_QOS", "1"), 1))
	cfg.MQTT.OpTimeout = parseDuration(getEnv("MQTT_OP_TIMEOUT", "10s"), 10*time.Second)
	cfg.MQTT.NodeTopicTemplate = getEnv("MQTT_NODE_TOPIC_TEMPLATE", "node/{nodeId}/datum")

	cfg.Log.Level = getEnv("LOG_LEVEL", "info")
	cfg.Log.Format = getEnv("LOG_FORMAT", "json")

	cfg.Ingest.TransientTries = parseInt(getEnv("INGEST_TRANSIENT_TRIES", "3"), 3)

	cfg.Registry.BaseURL = getEnv("REGISTRY_BASE_URL", "http://localhost:8081")
	cfg.Registry.Timeout = parseDuration(getEnv("REGISTRY_TIMEOUT", "5s"), 5*time.Second)
	cfg.Registry.CacheTTL = parseDuration(getEnv("REGISTRY_CACHE_TTL", "1m"), time.Minute)

	cfg.Agg.MinuteMax = parseInt(getEnv("AGG_MINUTE_MAX_DAYS", "7"), 7)
	cfg.Agg.HourMax = parseInt(getEnv("AGG_HOUR_MAX_DAYS", "31"), 31)
	cfg.Agg.DayMax = parseInt(getEnv("AGG_DAY_MAX_DAYS", "730"), 730)
	cfg.Agg.HourOfDayMax = parseInt(getEnv("AGG_HOUR_OF_DAY_MAX_DAYS", "3650"), 3650)
	cfg.Agg.DayOfWeekMax = parseInt(getEnv("AGG_DAY_OF_WEEK_MAX_DAYS", "3650"), 3650)

	cfg.Query.FilteredResultsLimit = parseInt(getEnv("QUERY_FILTERED_RESULTS_LIMIT", "1000"), 1000)

	cfg.Audit.UpdateDelay = parseDuration(getEnv("AUDIT_UPDATE_DELAY", "10s"), 10*time.Second)
	cfg.Audit.FlushDelay = parseDuration(getEnv("AUDIT_FLUSH_DELAY", "10s"), 10*time.Second)
	cfg.Audit.ConnectionRecoveryDelay = parseDuration(getEnv("AUDIT_RECOVERY_DELAY", "15s"), 15*time.Second)
	cfg.Audit.StatLogUpdateCount = parseInt(getEnv("AUDIT_STAT_LOG_UPDATE_COUNT", "1000"), 1000)

	cfg.Cache.MetaCapacity = parseInt(getEnv("STREAM_META_CACHE_CAPACITY", "10000"), 10000)
	cfg.Cache.MetaTTL = parseDuration(getEnv("STREAM_META_CACHE_TTL", "1h"), time.Hour)
	cfg.Cache.IDCapacity = parseInt(getEnv("STREAM_ID_CACHE_CAPACITY", "100000"), 100000)
	cfg.Cache.IDTTL = parseDuration(getEnv("STREAM_ID_CACHE_TTL", "24h"), 24*time.Hour)

	cfg.Rollup.Interval = parseDuration(getEnv("ROLLUP_INTERVAL", "1h"), time.Hour)

	return cfg
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func parseInt(s string, def int) int {
	i, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return i
}

func parseDuration(s string, def time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil {
		return def
	}
	return d
}
