// Package config loads the process's environment surface: LLM
// credentials per adapter, preview port range, expiry/idle timeouts,
// watcher poll interval, container resource caps, and the debug flag.
// It reads os.Getenv directly with small typed helpers, loaded once
// via godotenv at process start (cmd/apploomd), rather than a generic
// config-struct-from-tags library.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config is the resolved environment surface for one process.
type Config struct {
	// LLM credentials. An adapter is available only if its credential is
	// non-empty.
	GeminiAPIKey    string
	OpenAIAPIKey    string
	AnthropicAPIKey string

	// Preview sandbox.
	PreviewPortRangeStart int
	PreviewPortRangeEnd   int
	PreviewHardExpiry     time.Duration
	PreviewIdleExpiry     time.Duration
	PreviewPollInterval   time.Duration
	PreviewMaxConcurrent  int
	ContainerMemoryMiB    int
	ContainerCPUs         float64
	ContainerNetwork      string

	// Project Memory persistence.
	MemoryPostgresDSN string

	// Optional object-storage backing for VFS snapshot export/import.
	MinioEndpoint  string
	MinioAccessKey string
	MinioSecretKey string
	MinioBucket    string
	MinioUseSSL    bool

	// Orchestrator.
	MaxRepairAttempts int

	// Relaxes CORS on the collaborator layer and enables verbose logs.
	Debug bool
}

// Load reads the process environment into a Config, applying the defaults
// spec.md names (e.g. preview ports 8100-8200, 1h hard / 30m idle expiry,
// 2s poll interval, 3 repair attempts).
func Load() Config {
	return Config{
		GeminiAPIKey:    os.Getenv("GEMINI_API_KEY"),
		OpenAIAPIKey:    os.Getenv("OPENAI_API_KEY"),
		AnthropicAPIKey: os.Getenv("ANTHROPIC_API_KEY"),

		PreviewPortRangeStart: envInt("PREVIEW_PORT_RANGE_START", 8100),
		PreviewPortRangeEnd:   envInt("PREVIEW_PORT_RANGE_END", 8200),
		PreviewHardExpiry:     envDuration("PREVIEW_HARD_EXPIRY", time.Hour),
		PreviewIdleExpiry:     envDuration("PREVIEW_IDLE_EXPIRY", 30*time.Minute),
		PreviewPollInterval:   envDuration("PREVIEW_POLL_INTERVAL", 2*time.Second),
		PreviewMaxConcurrent:  envInt("PREVIEW_MAX_CONCURRENT", 8),
		ContainerMemoryMiB:    envInt("CONTAINER_MEMORY_MIB", 512),
		ContainerCPUs:         envFloat("CONTAINER_CPUS", 0.5),
		ContainerNetwork:      envString("CONTAINER_NETWORK", "apploom-preview"),

		MemoryPostgresDSN: os.Getenv("MEMORY_POSTGRES_DSN"),

		MinioEndpoint:  os.Getenv("MINIO_ENDPOINT"),
		MinioAccessKey: os.Getenv("MINIO_ACCESS_KEY"),
		MinioSecretKey: os.Getenv("MINIO_SECRET_KEY"),
		MinioBucket:    envString("MINIO_BUCKET", "apploom-vfs"),
		MinioUseSSL:    envBool("MINIO_USE_SSL", true),

		MaxRepairAttempts: envInt("MAX_REPAIR_ATTEMPTS", 3),

		Debug: envBool("DEBUG", false),
	}
}

func envString(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func envFloat(key string, def float64) float64 {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return def
	}
	return f
}

func envBool(key string, def bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func envDuration(key string, def time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def
	}
	return d
}
