package envutil

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/yungbote/readsession-backend/internal/platform/logger"
)

func String(key, def string, log *logger.Logger) string {
	val, ok := os.LookupEnv(key)
	val = strings.TrimSpace(val)
	if !ok || val == "" {
		debug(log, key, "Environment variable not found, using default", "default", def)
		return def
	}
	debug(log, key, "Environment variable found, using environment")
	return val
}

func Int(key string, def int, log *logger.Logger) int {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		debug(log, key, "Environment variable not found, using default", "default", def)
		return def
	}
	i, err := strconv.Atoi(raw)
	if err != nil {
		debug(log, key, "Environment variable could not be parsed as int, using default", "provided", raw, "default", def, "error", err)
		return def
	}
	return i
}

func Float(key string, def float64, log *logger.Logger) float64 {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		debug(log, key, "Environment variable not found, using default", "default", def)
		return def
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		debug(log, key, "Environment variable could not be parsed as float, using default", "provided", raw, "default", def, "error", err)
		return def
	}
	return f
}

func Bool(key string, def bool, log *logger.Logger) bool {
	raw := strings.TrimSpace(strings.ToLower(os.Getenv(key)))
	switch raw {
	case "":
		debug(log, key, "Environment variable not found, using default", "default", def)
		return def
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		debug(log, key, "Environment variable could not be parsed as bool, using default", "provided", raw, "default", def)
		return def
	}
}

// Duration accepts Go duration strings ("90s") or bare integers as seconds.
func Duration(key string, def time.Duration, log *logger.Logger) time.Duration {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		debug(log, key, "Environment variable not found, using default", "default", def.String())
		return def
	}
	if secs, err := strconv.Atoi(raw); err == nil {
		return time.Duration(secs) * time.Second
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		debug(log, key, "Environment variable could not be parsed as duration, using default", "provided", raw, "default", def.String(), "error", err)
		return def
	}
	return d
}

func debug(log *logger.Logger, key, msg string, kv ...interface{}) {
	if log == nil {
		return
	}
	log.With("env_var", key).Debug(msg, kv...)
}
