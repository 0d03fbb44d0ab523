package config

import (
	"log/slog"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

type EnvConfig struct {
	StreamsConfigPath string
	DBPath            string
	DirectoryPath     string
	LogLevel          slog.Level
	RunOnce           bool
	OTel              OTelEnvConfig
	Reddit            RedditEnvConfig
	RSS               RSSEnvConfig
	Web               WebEnvConfig
}

type OTelEnvConfig struct {
	Enabled     bool
	ServiceName string
	Endpoint    string
	Protocol    string // "grpc" or "http/protobuf"
	Headers     map[string]string
	Insecure    bool
	SampleRatio float64
}

type RedditEnvConfig struct {
	HTTPTimeout  time.Duration
	UserAgent    string
	ClientID     string
	ClientSecret string
	Username     string
	Password     string
	// RetryAttempts bounds retries of a single page fetch on 5xx responses.
	RetryAttempts int
}

type RSSEnvConfig struct {
	HTTPTimeout time.Duration
	UserAgent   string
}

type WebEnvConfig struct {
	HTTPTimeout time.Duration
	UserAgent   string
}

func LoadEnv() EnvConfig {
	otlpEndpoint := strings.TrimSpace(envString("OTEL_EXPORTER_OTLP_ENDPOINT", ""))

	return EnvConfig{
		StreamsConfigPath: envString("STREAMS_CONFIG", "streams.yaml"),
		DBPath:            envString("STREAMS_DB", "streams.db"),
		DirectoryPath:     envString("STREAMS_DIRECTORY", ""),
		LogLevel:          envLevel("LOG_LEVEL", slog.LevelInfo),
		RunOnce:           envBool("RUN_ONCE", false),
		OTel: OTelEnvConfig{
			Enabled:     envBool("OTEL_ENABLED", false),
			ServiceName: strings.TrimSpace(envString("OTEL_SERVICE_NAME", "curator-streams")),
			Endpoint:    otlpEndpoint,
			Protocol:    strings.ToLower(strings.TrimSpace(envString("OTEL_EXPORTER_OTLP_PROTOCOL", "grpc"))),
			Headers:     parseHeaders(envString("OTEL_EXPORTER_OTLP_HEADERS", "")),
			Insecure:    envBool("OTEL_EXPORTER_OTLP_INSECURE", defaultInsecure(otlpEndpoint)),
			SampleRatio: clamp01(envFloat("OTEL_TRACES_SAMPLE_RATIO", 1.0)),
		},
		Reddit: RedditEnvConfig{
			HTTPTimeout:   envDuration("REDDIT_HTTP_TIMEOUT", 10*time.Second),
			UserAgent:     envString("REDDIT_USER_AGENT", "curator-streams/0.1"),
			ClientID:      envString("REDDIT_CLIENT_ID", ""),
			ClientSecret:  envString("REDDIT_CLIENT_SECRET", ""),
			Username:      envString("REDDIT_USERNAME", ""),
			Password:      envString("REDDIT_PASSWORD", ""),
			RetryAttempts: envInt("REDDIT_RETRY_ATTEMPTS", 3),
		},
		RSS: RSSEnvConfig{
			HTTPTimeout: envDuration("RSS_HTTP_TIMEOUT", 10*time.Second),
			UserAgent:   envString("RSS_USER_AGENT", "curator-streams/0.1"),
		},
		Web: WebEnvConfig{
			HTTPTimeout: envDuration("WEB_HTTP_TIMEOUT", 15*time.Second),
			UserAgent:   envString("WEB_USER_AGENT", "curator-streams/0.1"),
		},
	}
}

func envString(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	switch strings.ToLower(v) {
	case "1", "true", "yes", "y", "on":
		return true
	default:
		return false
	}
}

func envInt(key string, fallback int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return i
}

func envFloat(key string, fallback float64) float64 {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fallback
	}
	return f
}

func envDuration(key string, fallback time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	d, err := ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}

func envLevel(key string, fallback slog.Level) slog.Level {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	var level slog.Level
	if err := level.UnmarshalText([]byte(v)); err != nil {
		return fallback
	}
	return level
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func parseHeaders(raw string) map[string]string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	out := map[string]string{}
	for _, part := range strings.Split(raw, ",") {
		k, v, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok {
			continue
		}
		k = strings.TrimSpace(k)
		v = strings.TrimSpace(v)
		if k == "" || v == "" {
			continue
		}
		out[k] = v
	}
	return out
}

func defaultInsecure(endpoint string) bool {
	endpoint = strings.TrimSpace(endpoint)
	if endpoint == "" {
		return true
	}
	if strings.Contains(endpoint, "://") {
		u, err := url.Parse(endpoint)
		if err != nil {
			return false
		}
		return u.Scheme == "http"
	}
	return strings.HasPrefix(endpoint, "localhost:") ||
		strings.HasPrefix(endpoint, "127.0.0.1:") ||
		strings.HasPrefix(endpoint, "0.0.0.0:")
}
