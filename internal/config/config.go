package config

import (
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store      StoreConfig      `yaml:"store" mapstructure:"store"`
	Artifacts  ArtifactConfig   `yaml:"artifacts" mapstructure:"artifacts"`
	Fetch      FetchConfig      `yaml:"fetch" mapstructure:"fetch"`
	Enrich     EnrichConfig     `yaml:"enrich" mapstructure:"enrich"`
	Batch      BatchConfig      `yaml:"batch" mapstructure:"batch"`
	LinkCheck  LinkCheckConfig  `yaml:"linkcheck" mapstructure:"linkcheck"`
	Server     ServerConfig     `yaml:"server" mapstructure:"server"`
	Monitoring MonitoringConfig `yaml:"monitoring" mapstructure:"monitoring"`
	Log        LogConfig        `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the item store backend.
type StoreConfig struct {
	Driver string `yaml:"driver" mapstructure:"driver"`
	// Path is the JSON file (file driver) or the seed file (sqlite and badger).
	Path      string `yaml:"path" mapstructure:"path"`
	DSN       string `yaml:"dsn" mapstructure:"dsn"`
	BadgerDir string `yaml:"badger_dir" mapstructure:"badger_dir"`
}

// ArtifactConfig configures where backups and reports are written.
type ArtifactConfig struct {
	Driver string   `yaml:"driver" mapstructure:"driver"`
	Dir    string   `yaml:"dir" mapstructure:"dir"`
	S3     S3Config `yaml:"s3" mapstructure:"s3"`
}

// S3Config holds S3-compatible object storage settings.
type S3Config struct {
	Endpoint        string `yaml:"endpoint" mapstructure:"endpoint"`
	Region          string `yaml:"region" mapstructure:"region"`
	Bucket          string `yaml:"bucket" mapstructure:"bucket"`
	Prefix          string `yaml:"prefix" mapstructure:"prefix"`
	AccessKeyID     string `yaml:"access_key_id" mapstructure:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key" mapstructure:"secret_access_key"`
	UsePathStyle    bool   `yaml:"use_path_style" mapstructure:"use_path_style"`
}

// FetchConfig configures outbound requests.
type FetchConfig struct {
	UserAgent string `yaml:"user_agent" mapstructure:"user_agent"`
	// DelayMs spaces batch requests to one host. The server ignores it.
	DelayMs      int   `yaml:"delay_ms" mapstructure:"delay_ms"`
	MaxBodyBytes int64 `yaml:"max_body_bytes" mapstructure:"max_body_bytes"`
}

// EnrichConfig holds per-pass time budgets and selection knobs.
type EnrichConfig struct {
	LocationTimeoutMs int    `yaml:"location_timeout_ms" mapstructure:"location_timeout_ms"`
	PageTimeoutMs     int    `yaml:"page_timeout_ms" mapstructure:"page_timeout_ms"`
	DeepTimeoutMs     int    `yaml:"deep_timeout_ms" mapstructure:"deep_timeout_ms"`
	JSONTimeoutMs     int    `yaml:"json_timeout_ms" mapstructure:"json_timeout_ms"`
	OnDemandTimeoutMs int    `yaml:"on_demand_timeout_ms" mapstructure:"on_demand_timeout_ms"`
	CandidateLimit    int    `yaml:"candidate_limit" mapstructure:"candidate_limit"`
	StrictThreshold   int    `yaml:"strict_threshold" mapstructure:"strict_threshold"`
	HeuristicsFile    string `yaml:"heuristics_file" mapstructure:"heuristics_file"`
}

// BatchConfig bounds batch runs.
type BatchConfig struct {
	Size            int    `yaml:"size" mapstructure:"size"`
	Concurrency     int    `yaml:"concurrency" mapstructure:"concurrency"`
	MaxItems        int    `yaml:"max_items" mapstructure:"max_items"`
	PauseMs         int    `yaml:"pause_ms" mapstructure:"pause_ms"`
	Strategy        string `yaml:"strategy" mapstructure:"strategy"`
	MaxAttempts     int    `yaml:"max_attempts" mapstructure:"max_attempts"`
	RetryAfterHours int    `yaml:"retry_after_hours" mapstructure:"retry_after_hours"`
}

// LinkCheckConfig configures image URL health checks.
type LinkCheckConfig struct {
	Concurrency int `yaml:"concurrency" mapstructure:"concurrency"`
	TimeoutMs   int `yaml:"timeout_ms" mapstructure:"timeout_ms"`
}

// ServerConfig configures the on-demand HTTP API.
type ServerConfig struct {
	Port        int      `yaml:"port" mapstructure:"port"`
	CORSOrigins []string `yaml:"cors_origins" mapstructure:"cors_origins"`
}

// MonitoringConfig configures run alerts.
type MonitoringConfig struct {
	WebhookURL           string  `yaml:"webhook_url" mapstructure:"webhook_url"`
	FailureRateThreshold float64 `yaml:"failure_rate_threshold" mapstructure:"failure_rate_threshold"`
	MinProcessed         int     `yaml:"min_processed" mapstructure:"min_processed"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Ms converts a millisecond setting to a duration.
func Ms(n int) time.Duration {
	return time.Duration(n) * time.Millisecond
}

// bareEnv lists settings that also honour an unprefixed variable.
var bareEnv = map[string]string{
	"batch.size":      "BATCH_SIZE",
	"batch.max_items": "MAX_ITEMS",
	"batch.pause_ms":  "PAUSE_BETWEEN_BATCHES_MS",
}

// Load reads config.yaml (optional) from path, or from the working
// directory when path is empty, then applies CURATOR_* environment overrides.
func Load(path string) (*Config, error) {
	v := viper.New()

	// Config file
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	// Environment
	v.SetEnvPrefix("CURATOR")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, bare := range bareEnv {
		prefixed := "CURATOR_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		if err := v.BindEnv(key, prefixed, bare); err != nil {
			return nil, eris.Wrapf(err, "config: bind env %s", key)
		}
	}

	// Defaults
	v.SetDefault("store.driver", "file")
	v.SetDefault("store.path", "data/references.json")
	v.SetDefault("store.dsn", "data/references.db")
	v.SetDefault("store.badger_dir", "data/badger")
	v.SetDefault("artifacts.driver", "local")
	v.SetDefault("artifacts.dir", "data/runs")
	v.SetDefault("artifacts.s3.region", "us-east-1")
	v.SetDefault("artifacts.s3.prefix", "curator")
	v.SetDefault("fetch.user_agent", "")
	v.SetDefault("fetch.delay_ms", 350)
	v.SetDefault("fetch.max_body_bytes", 4<<20)
	v.SetDefault("enrich.location_timeout_ms", 8000)
	v.SetDefault("enrich.page_timeout_ms", 12000)
	v.SetDefault("enrich.deep_timeout_ms", 9000)
	v.SetDefault("enrich.json_timeout_ms", 9000)
	v.SetDefault("enrich.on_demand_timeout_ms", 8000)
	v.SetDefault("enrich.candidate_limit", 60)
	v.SetDefault("enrich.strict_threshold", 10)
	v.SetDefault("enrich.heuristics_file", "")
	v.SetDefault("batch.size", 80)
	v.SetDefault("batch.concurrency", 3)
	v.SetDefault("batch.max_items", 0)
	v.SetDefault("batch.pause_ms", 800)
	v.SetDefault("batch.strategy", "ladder")
	v.SetDefault("batch.max_attempts", 2)
	v.SetDefault("batch.retry_after_hours", 168)
	v.SetDefault("linkcheck.concurrency", 6)
	v.SetDefault("linkcheck.timeout_ms", 8000)
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.cors_origins", []string{"*"})
	v.SetDefault("monitoring.webhook_url", "")
	v.SetDefault("monitoring.failure_rate_threshold", 0.5)
	v.SetDefault("monitoring.min_processed", 5)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	// Read config file (optional unless named explicitly)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok || path != "" {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
