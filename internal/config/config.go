package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	AppPort       string
	DatabaseURL   string
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	AllowedOrigin string
	LogLevel      string
	LogJSON       bool

	// Rate limits (fixed window)
	ConnectRateLimit  int
	ConnectRateWindow time.Duration
	JoinRateLimit     int
	JoinRateWindow    time.Duration
	ActionRateLimit   int
	ActionRateWindow  time.Duration

	// Lifecycle timeouts
	HeartbeatTimeout  time.Duration
	PlayerIdleTimeout time.Duration
	RoomIdleTimeout   time.Duration
	PauseTimeout      time.Duration

	// Session records in the KV store
	SessionTTL time.Duration
}

// Load reads configuration from the environment, falling back to
// safe defaults for everything except DATABASE_URL.
func Load() *Config {
	_ = godotenv.Load()

	port := os.Getenv("APP_PORT")
	if port == "" {
		port = "8080"
	}

	redisDB := 0
	if v := os.Getenv("REDIS_DB"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			redisDB = n
		}
	}

	return &Config{
		AppPort:       port,
		DatabaseURL:   os.Getenv("DATABASE_URL"),
		RedisAddr:     os.Getenv("REDIS_ADDR"),
		RedisPassword: os.Getenv("REDIS_PASSWORD"),
		RedisDB:       redisDB,
		AllowedOrigin: os.Getenv("ALLOWED_ORIGIN"),
		LogLevel:      envString("LOG_LEVEL", "info"),
		LogJSON:       os.Getenv("LOG_JSON") == "true",

		ConnectRateLimit:  envInt("CONNECT_RATE_LIMIT", 10),
		ConnectRateWindow: envSeconds("CONNECT_RATE_WINDOW_SECONDS", time.Minute),
		JoinRateLimit:     envInt("JOIN_RATE_LIMIT", 20),
		JoinRateWindow:    envSeconds("JOIN_RATE_WINDOW_SECONDS", time.Minute),
		ActionRateLimit:   envInt("ACTION_RATE_LIMIT", 60),
		ActionRateWindow:  envSeconds("ACTION_RATE_WINDOW_SECONDS", time.Minute),

		HeartbeatTimeout:  envSeconds("HEARTBEAT_TIMEOUT_SECONDS", time.Minute),
		PlayerIdleTimeout: envSeconds("PLAYER_IDLE_TIMEOUT_SECONDS", 10*time.Minute),
		RoomIdleTimeout:   envSeconds("ROOM_IDLE_TIMEOUT_SECONDS", 5*time.Minute),
		PauseTimeout:      envSeconds("PAUSE_TIMEOUT_SECONDS", 90*time.Second),

		SessionTTL: envSeconds("SESSION_TTL_SECONDS", 24*time.Hour),
	}
}

func envString(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return n
		}
	}
	return def
}

func envSeconds(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return time.Duration(n) * time.Second
		}
	}
	return def
}
