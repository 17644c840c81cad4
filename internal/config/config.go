package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Environment   string
	Server        ServerConfig
	Database      DatabaseConfig
	Redis         RedisConfig
	Observability ObservabilityConfig
	Ingestion     IngestionConfig
	Queue         QueueConfig
	Geocoding     GeocodingConfig
}

type ServerConfig struct {
	Port int
}

type DatabaseConfig struct {
	Path      string
	LogTiming bool
}

type RedisConfig struct {
	Addr        string
	Password    string
	DB          int
	CacheTTLSec int
}

type ObservabilityConfig struct {
	Enabled           bool
	OTLPEndpoint      string
	OTLPTraceHeaders  map[string]string
	OTLPMetricHeaders map[string]string
	ServiceName       string
	ServiceVer        string
	SamplingRatio     float64
	MetricsConsole    bool
}

type IngestionConfig struct {
	IntervalMS int
	Sources    []string
}

type QueueConfig struct {
	VisibilityMS int
	IdleDelayMS  int
	MaxAttempts  int
}

type GeocodingConfig struct {
	CanadaEndpoint string
	USEndpoint     string
}

func Load() (Config, error) {
	return load()
}

func load() (Config, error) {
	v := viper.New()
	v.AutomaticEnv()

	v.SetDefault("souk_env", "")
	v.SetDefault("app_env", "")
	v.SetDefault("go_env", "")
	v.SetDefault("souk_port", 8080)
	v.SetDefault("souk_db_path", "data/souk")
	v.SetDefault("souk_db_timing", false)
	v.SetDefault("souk_redis_addr", "")
	v.SetDefault("souk_redis_password", "")
	v.SetDefault("souk_redis_db", 0)
	v.SetDefault("souk_redis_cache_ttl_sec", 300)
	v.SetDefault("souk_otel_enabled", false)
	v.SetDefault("otel_exporter_otlp_endpoint", "")
	v.SetDefault("otel_exporter_otlp_headers", "")
	v.SetDefault("otel_exporter_otlp_traces_headers", "")
	v.SetDefault("otel_exporter_otlp_metrics_headers", "")
	v.SetDefault("otel_service_name", "souk")
	v.SetDefault("souk_service_name", "souk")
	v.SetDefault("souk_version", "dev")
	v.SetDefault("otel_service_version", "")
	v.SetDefault("souk_otel_sampling_ratio", 1.0)
	v.SetDefault("souk_otel_metrics_console", false)
	v.SetDefault("souk_ingest_interval_ms", 30000)
	v.SetDefault("souk_ingest_sources", "simulated")
	v.SetDefault("souk_queue_visibility_ms", 120000)
	v.SetDefault("souk_queue_idle_delay_ms", 1000)
	v.SetDefault("souk_queue_max_attempts", 5)
	v.SetDefault("souk_geocoder_ca_endpoint", "")
	v.SetDefault("souk_geocoder_us_endpoint", "")

	env := resolveEnvironment(v)
	port := v.GetInt("souk_port")
	if port <= 0 || port > 65535 {
		return Config{}, fmt.Errorf("invalid SOUK_PORT: %d", port)
	}

	samplingRatio := v.GetFloat64("souk_otel_sampling_ratio")
	if samplingRatio < 0 {
		samplingRatio = 0
	}
	if samplingRatio > 1 {
		samplingRatio = 1
	}

	ingestInterval := v.GetInt("souk_ingest_interval_ms")
	if ingestInterval <= 0 {
		ingestInterval = 30000
	}

	visibility := v.GetInt("souk_queue_visibility_ms")
	if visibility <= 0 {
		visibility = 120000
	}

	idleDelay := v.GetInt("souk_queue_idle_delay_ms")
	if idleDelay <= 0 {
		idleDelay = 1000
	}

	maxAttempts := v.GetInt("souk_queue_max_attempts")
	if maxAttempts <= 0 {
		maxAttempts = 5
	}
	if maxAttempts > 50 {
		maxAttempts = 50
	}

	cacheTTL := v.GetInt("souk_redis_cache_ttl_sec")
	if cacheTTL <= 0 {
		cacheTTL = 300
	}

	serviceName := strings.TrimSpace(v.GetString("otel_service_name"))
	if serviceName == "" {
		serviceName = strings.TrimSpace(v.GetString("souk_service_name"))
	}
	if serviceName == "" {
		serviceName = "souk"
	}

	serviceVersion := strings.TrimSpace(v.GetString("souk_version"))
	if serviceVersion == "" {
		serviceVersion = strings.TrimSpace(v.GetString("otel_service_version"))
	}
	if serviceVersion == "" {
		serviceVersion = "dev"
	}

	otlpEndpoint := strings.TrimSpace(v.GetString("otel_exporter_otlp_endpoint"))
	otlpCommonHeaders := parseOTLPHeaders(v.GetString("otel_exporter_otlp_headers"))
	otlpTraceHeaders := parseOTLPHeaders(v.GetString("otel_exporter_otlp_traces_headers"))
	otlpMetricHeaders := parseOTLPHeaders(v.GetString("otel_exporter_otlp_metrics_headers"))
	metricsConsole := v.GetBool("souk_otel_metrics_console")
	otelEnabled := v.GetBool("souk_otel_enabled") || otlpEndpoint != "" || metricsConsole
	traceHeaders := mergeHeaderMaps(otlpCommonHeaders, otlpTraceHeaders)
	metricHeaders := mergeHeaderMaps(otlpCommonHeaders, otlpMetricHeaders)

	cfg := Config{
		Environment: env,
		Server:      ServerConfig{Port: port},
		Database: DatabaseConfig{
			Path:      strings.TrimSpace(v.GetString("souk_db_path")),
			LogTiming: v.GetBool("souk_db_timing"),
		},
		Redis: RedisConfig{
			Addr:        strings.TrimSpace(v.GetString("souk_redis_addr")),
			Password:    v.GetString("souk_redis_password"),
			DB:          v.GetInt("souk_redis_db"),
			CacheTTLSec: cacheTTL,
		},
		Observability: ObservabilityConfig{
			Enabled:           otelEnabled,
			OTLPEndpoint:      otlpEndpoint,
			OTLPTraceHeaders:  traceHeaders,
			OTLPMetricHeaders: metricHeaders,
			ServiceName:       serviceName,
			ServiceVer:        serviceVersion,
			SamplingRatio:     samplingRatio,
			MetricsConsole:    metricsConsole,
		},
		Ingestion: IngestionConfig{
			IntervalMS: ingestInterval,
			Sources:    parseSourceList(v.GetString("souk_ingest_sources")),
		},
		Queue: QueueConfig{
			VisibilityMS: visibility,
			IdleDelayMS:  idleDelay,
			MaxAttempts:  maxAttempts,
		},
		Geocoding: GeocodingConfig{
			CanadaEndpoint: strings.TrimSpace(v.GetString("souk_geocoder_ca_endpoint")),
			USEndpoint:     strings.TrimSpace(v.GetString("souk_geocoder_us_endpoint")),
		},
	}

	if cfg.Database.Path == "" {
		cfg.Database.Path = "data/souk"
	}

	return cfg, nil
}

func parseOTLPHeaders(raw string) map[string]string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	out := make(map[string]string)
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		pair := strings.SplitN(part, "=", 2)
		if len(pair) != 2 {
			continue
		}
		key := strings.TrimSpace(pair[0])
		value := strings.TrimSpace(pair[1])
		if key == "" || value == "" {
			continue
		}
		out[key] = value
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

func parseSourceList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		part = strings.ToLower(strings.TrimSpace(part))
		if part == "" {
			continue
		}
		out = append(out, part)
	}
	return out
}

func mergeHeaderMaps(base, override map[string]string) map[string]string {
	if len(base) == 0 && len(override) == 0 {
		return nil
	}
	out := make(map[string]string, len(base)+len(override))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range override {
		out[k] = v
	}
	return out
}

func (c Config) IsLocalDevelopment() bool {
	switch strings.ToLower(strings.TrimSpace(c.Environment)) {
	case "", "local", "dev", "development", "test":
		return true
	default:
		return false
	}
}

func (c Config) IngestionInterval() time.Duration {
	return time.Duration(c.Ingestion.IntervalMS) * time.Millisecond
}

func (c Config) QueueVisibility() time.Duration {
	return time.Duration(c.Queue.VisibilityMS) * time.Millisecond
}

func (c Config) QueueIdleDelay() time.Duration {
	return time.Duration(c.Queue.IdleDelayMS) * time.Millisecond
}

func (c Config) CacheTTL() time.Duration {
	return time.Duration(c.Redis.CacheTTLSec) * time.Second
}

func resolveEnvironment(v *viper.Viper) string {
	for _, key := range []string{"souk_env", "app_env", "go_env"} {
		value := strings.TrimSpace(v.GetString(key))
		if value != "" {
			return strings.ToLower(value)
		}
	}
	return ""
}
