// Package config loads server configuration from environment variables,
// with an optional .env file picked up at startup. Every setting has a
// production default so both servers run with zero configuration against
// local Redis/NATS/Postgres.
package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds the settings shared by the poll and push servers. Fields that
// only one deployment shape uses (e.g. NATSURL for push, PostgresDSN for
// reports) are simply ignored by the other.
type Config struct {
	ListenAddr  string // address for the HTTP/WebSocket listener
	RedisAddr   string // host:port of the Redis backing store
	NATSURL     string // NATS server URL for room event fan-out
	PostgresDSN string // report database DSN; empty disables persistence
	ServerName  string // instance identifier used in logs

	// PresenceThreshold is the maximum age of a last-seen timestamp for a
	// uid to count as online/reachable. QueueMaxAge bounds how long a
	// waiting entry may sit in the queue before it is purged.
	PresenceThreshold time.Duration
	QueueMaxAge       time.Duration
	SweepInterval     time.Duration

	// WebSocket server tuning (push deployment only).
	WorkerPoolSize int
	MaxConnections int
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
}

// Load reads the environment (after a best-effort .env load) and returns a
// fully populated Config.
func Load() Config {
	_ = godotenv.Load()

	hostname, _ := os.Hostname()

	return Config{
		ListenAddr:        getString("LISTEN_ADDR", ":8080"),
		RedisAddr:         getString("REDIS_ADDR", "localhost:6379"),
		NATSURL:           getString("NATS_URL", "nats://localhost:4222"),
		PostgresDSN:       getString("POSTGRES_DSN", ""),
		ServerName:        getString("SERVER_NAME", hostname),
		PresenceThreshold: getDuration("PRESENCE_THRESHOLD", 30*time.Second),
		QueueMaxAge:       getDuration("QUEUE_MAX_AGE", 30*time.Second),
		SweepInterval:     getDuration("SWEEP_INTERVAL", 10*time.Second),
		WorkerPoolSize:    getInt("WORKER_POOL_SIZE", 256),
		MaxConnections:    getInt("MAX_CONNECTIONS", 100000),
		ReadTimeout:       getDuration("READ_TIMEOUT", 10*time.Second),
		WriteTimeout:      getDuration("WRITE_TIMEOUT", 10*time.Second),
	}
}

func getString(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return n
		}
	}
	return fallback
}

func getDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			return d
		}
	}
	return fallback
}
