package trendengine

import (
	"log"
	"time"

	"trendsys/config"
	"trendsys/internal/analyzer"
)

// Config holds all env-parsed configuration for the trend engine service.
type Config struct {
	RedisAddr          string
	RedisPassword      string
	SQLitePath         string
	ConsumerGroup      string
	ConsumerName       string
	EnabledTFs         []int
	SubscribeTokenKeys []string // "exchange:token" keys
	SnapshotIntervalS  int
	SnapshotKey        string
	HTTPAddr           string
	LogLevel           string
	PELIntervalS       int
	PELMinIdleMs       int64
	ReportsKeep        int // archived reports kept per series
	BreakerFailures    uint32
	BreakerTimeout     time.Duration
	AlertWebhookURL    string // trend reversal alerts; empty logs them only
	AlertsPerMinute    int

	Engine analyzer.EngineConfig
}

// LoadConfig reads all environment variables and returns a Config. A .env file
// in the working directory is loaded first if present.
func LoadConfig() (Config, error) {
	config.LoadDotEnv(".env")

	trendCfg, err := config.ResolveTrendConfig(
		config.GetEnv("TREND_PRESET", "default"),
		config.GetEnv("TREND_CONFIG_FILE", ""),
	)
	if err != nil {
		return Config{}, err
	}

	cfg := Config{
		RedisAddr:          config.GetEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword:      config.GetEnv("REDIS_PASSWORD", ""),
		SQLitePath:         config.GetEnv("SQLITE_PATH", "data/trend.db"),
		ConsumerGroup:      config.GetEnv("CONSUMER_GROUP", "trendengine"),
		ConsumerName:       config.GetEnv("CONSUMER_NAME", "worker-1"),
		EnabledTFs:         config.ParseTFs(config.GetEnv("ENABLED_TFS", "60,300,900")),
		SubscribeTokenKeys: config.ParseTokenKeys(config.GetEnv("SUBSCRIBE_TOKENS", "")),
		SnapshotIntervalS:  config.GetEnvInt("SNAPSHOT_INTERVAL_SEC", 30),
		SnapshotKey:        config.GetEnv("SNAPSHOT_KEY", "trend:snapshot:engine"),
		HTTPAddr:           config.GetEnv("HTTP_ADDR", ":9096"),
		LogLevel:           config.GetEnv("LOG_LEVEL", "info"),
		PELIntervalS:       config.GetEnvInt("PEL_RECLAIM_INTERVAL_SEC", 30),
		PELMinIdleMs:       config.GetEnvInt64("PEL_MIN_IDLE_MS", 60000),
		ReportsKeep:        config.GetEnvInt("REPORTS_KEEP", 500),
		BreakerFailures:    uint32(config.GetEnvInt("REDIS_BREAKER_FAILURES", 5)),
		BreakerTimeout:     time.Duration(config.GetEnvInt("REDIS_BREAKER_TIMEOUT_SEC", 10)) * time.Second,
		AlertWebhookURL:    config.GetEnv("ALERT_WEBHOOK_URL", ""),
		AlertsPerMinute:    config.GetEnvInt("ALERTS_PER_MINUTE", 30),
	}

	cfg.Engine = analyzer.EngineConfig{
		TFs:          cfg.EnabledTFs,
		WindowSize:   config.GetEnvInt("WINDOW_SIZE", 200),
		MinPoints:    config.GetEnvInt("MIN_POINTS", 30),
		AnalyzeEvery: config.GetEnvInt("ANALYZE_EVERY", 1),
		Options: analyzer.Options{
			Config:          trendCfg,
			ExtremaPeriod:   config.GetEnvInt("EXTREMA_PERIOD", 5),
			ExtremaNeighbor: config.GetEnvNonNegInt("EXTREMA_NEIGHBOR", 5),
		},
	}
	if err := cfg.Engine.Validate(); err != nil {
		return Config{}, err
	}

	log.Printf("[trendengine] config: tfs=%v window=%d min=%d every=%d trend=%s",
		cfg.EnabledTFs, cfg.Engine.WindowSize, cfg.Engine.MinPoints, cfg.Engine.AnalyzeEvery, trendCfg)
	return cfg, nil
}
