package app

import (
	"strings"
	"time"

	"github.com/yungbote/readsession-backend/internal/db"
	"github.com/yungbote/readsession-backend/internal/observability"
	"github.com/yungbote/readsession-backend/internal/platform/envutil"
	"github.com/yungbote/readsession-backend/internal/platform/logger"
	"github.com/yungbote/readsession-backend/internal/realtime/bus"
)

type Config struct {
	Port        string
	Environment string
	CORSOrigins []string

	DB db.Config

	JWTSecretKey string
	JWTIssuer    string
	JWTLeeway    time.Duration

	Redis bus.RedisConfig

	PolicyFile string

	Otel observability.OtelConfig

	MetricsEnabled bool
	MetricsAddr    string

	ShutdownTimeout time.Duration
}

func LoadConfig(log *logger.Logger) Config {
	env := envutil.String("APP_ENV", "development", log)
	return Config{
		Port:        envutil.String("PORT", "8080", log),
		Environment: env,
		CORSOrigins: splitList(envutil.String("CORS_ALLOWED_ORIGINS", "", log)),

		DB: db.Config{
			Driver:          envutil.String("DB_DRIVER", "postgres", log),
			DSN:             envutil.String("DB_DSN", "", log),
			MaxOpenConns:    envutil.Int("DB_MAX_OPEN_CONNS", 20, log),
			MaxIdleConns:    envutil.Int("DB_MAX_IDLE_CONNS", 10, log),
			ConnMaxLifetime: envutil.Duration("DB_CONN_MAX_LIFETIME", 30*time.Minute, log),
			Quiet:           envutil.Bool("DB_QUIET", env == "production", log),
		},

		JWTSecretKey: envutil.String("JWT_SECRET_KEY", "", log),
		JWTIssuer:    envutil.String("JWT_ISSUER", "", log),
		JWTLeeway:    envutil.Duration("JWT_LEEWAY", 30*time.Second, log),

		Redis: bus.RedisConfig{
			Addr:     envutil.String("REDIS_ADDR", "", log),
			Password: envutil.String("REDIS_PASSWORD", "", log),
			DB:       envutil.Int("REDIS_DB", 0, log),
			Channel:  envutil.String("REDIS_CHANNEL", "readsession:events", log),
		},

		PolicyFile: envutil.String("READING_POLICY_FILE", "", log),

		Otel: observability.OtelConfig{
			Enabled:     envutil.Bool("OTEL_ENABLED", false, log),
			ServiceName: envutil.String("OTEL_SERVICE_NAME", "readsession", log),
			Environment: env,
			Version:     envutil.String("APP_VERSION", "", log),
			Endpoint:    envutil.String("OTEL_EXPORTER_OTLP_ENDPOINT", "", log),
			Insecure:    envutil.Bool("OTEL_EXPORTER_OTLP_INSECURE", true, log),
			Headers:     observability.ParseHeaders(envutil.String("OTEL_EXPORTER_OTLP_HEADERS", "", log)),
			SampleRatio: envutil.Float("OTEL_SAMPLE_RATIO", 1, log),
		},

		MetricsEnabled: observability.Enabled(),
		MetricsAddr:    envutil.String("METRICS_ADDR", ":9090", log),

		ShutdownTimeout: envutil.Duration("SHUTDOWN_TIMEOUT", 15*time.Second, log),
	}
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
