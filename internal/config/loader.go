package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Load loads configuration from file
func Load(configPath string) (*Config, error) {
	v := viper.New()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		v.AddConfigPath("/etc/forecaster")
	}

	setDefaults(v)

	// FORECASTER_QUEUE_URL overrides queue.url
	v.SetEnvPrefix("FORECASTER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	return parseConfig(v)
}

// setDefaults mirrors DefaultConfig so env overrides work without a file
func setDefaults(v *viper.Viper) {
	d := DefaultConfig()

	v.SetDefault("server.host", d.Server.Host)
	v.SetDefault("server.http_port", d.Server.HTTPPort)
	v.SetDefault("server.body_limit_mb", d.Server.BodyLimitMB)

	v.SetDefault("storage.data_dir", d.Storage.DataDir)
	v.SetDefault("storage.timezone", d.Storage.Timezone)

	v.SetDefault("queue.type", d.Queue.Type)
	v.SetDefault("queue.url", d.Queue.URL)
	v.SetDefault("queue.subject", d.Queue.Subject)
	v.SetDefault("queue.redis_stream", d.Queue.RedisStream)
	v.SetDefault("queue.redis_group", d.Queue.RedisGroup)
	v.SetDefault("queue.kafka_group_id", d.Queue.KafkaGroupID)

	v.SetDefault("metadata.backend", d.Metadata.Backend)
	v.SetDefault("metadata.prefix", d.Metadata.Prefix)
	v.SetDefault("metadata.etcd.endpoints", d.Metadata.Etcd.Endpoints)
	v.SetDefault("metadata.etcd.dial_timeout", d.Metadata.Etcd.DialTimeout)
	v.SetDefault("metadata.cache_size", d.Metadata.CacheSize)

	v.SetDefault("forecast.default_horizon", d.Forecast.DefaultHorizon)
	v.SetDefault("forecast.max_horizon", d.Forecast.MaxHorizon)
	v.SetDefault("forecast.confidence", d.Forecast.Confidence)
	v.SetDefault("forecast.max_p", d.Forecast.MaxP)
	v.SetDefault("forecast.max_d", d.Forecast.MaxD)
	v.SetDefault("forecast.max_q", d.Forecast.MaxQ)
	v.SetDefault("forecast.n_lags", d.Forecast.NLags)
	v.SetDefault("forecast.max_depth", d.Forecast.MaxDepth)
	v.SetDefault("forecast.n_estimators", d.Forecast.NEstimators)
	v.SetDefault("forecast.learning_rate", d.Forecast.LearningRate)
	v.SetDefault("forecast.lambda", d.Forecast.Lambda)
	v.SetDefault("forecast.chart_enabled", d.Forecast.ChartEnabled)
	v.SetDefault("forecast.chart_max_points", d.Forecast.ChartMaxPoints)
	v.SetDefault("forecast.model_compression", d.Forecast.ModelCompression)

	v.SetDefault("worker.concurrency", d.Worker.Concurrency)
	v.SetDefault("worker.job_timeout", d.Worker.JobTimeout)

	v.SetDefault("auth.enabled", d.Auth.Enabled)

	v.SetDefault("tracing.enabled", d.Tracing.Enabled)
	v.SetDefault("tracing.endpoint", d.Tracing.Endpoint)
	v.SetDefault("tracing.sampling_rate", d.Tracing.SamplingRate)
	v.SetDefault("tracing.service_name", d.Tracing.ServiceName)
	v.SetDefault("tracing.environment", d.Tracing.Environment)

	v.SetDefault("logging.level", d.Logging.Level)
	v.SetDefault("logging.format", d.Logging.Format)
	v.SetDefault("logging.output_path", d.Logging.OutputPath)
}

// parseConfig parses viper config into Config struct
func parseConfig(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}

// DefaultConfig returns default configuration
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:        "0.0.0.0",
			HTTPPort:    8080,
			BodyLimitMB: 50,
		},
		Storage: StorageConfig{
			DataDir:  "./data",
			Timezone: "UTC",
		},
		Queue: QueueConfig{
			Type:         "nats",
			URL:          "nats://localhost:4222",
			Subject:      "forecast.jobs",
			RedisStream:  "forecaster",
			RedisGroup:   "forecaster-workers",
			KafkaGroupID: "forecaster-workers",
		},
		Metadata: MetadataConfig{
			Backend: "memory",
			Prefix:  "/forecaster",
			Etcd: EtcdConfig{
				Endpoints:   []string{"http://localhost:2379"},
				DialTimeout: 5 * time.Second,
			},
			CacheSize: 1024,
		},
		Forecast: ForecastConfig{
			DefaultHorizon:   14,
			MaxHorizon:       365,
			Confidence:       0.95,
			MaxP:             5,
			MaxD:             2,
			MaxQ:             5,
			NLags:            7,
			MaxDepth:         3,
			NEstimators:      100,
			LearningRate:     0.3,
			Lambda:           1,
			ChartEnabled:     true,
			ChartMaxPoints:   500,
			ModelCompression: "snappy",
		},
		Worker: WorkerConfig{
			Concurrency: 1,
			JobTimeout:  time.Hour,
		},
		Tracing: TracingConfig{
			Endpoint:     "localhost:4317",
			SamplingRate: 1.0,
			ServiceName:  "forecaster",
			Environment:  "development",
		},
		Logging: LoggingConfig{
			Level:      "info",
			Format:     "json",
			OutputPath: "stdout",
		},
	}
}
