package main

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/example/signaling-coordinator/modules/coordinator"
	"github.com/example/signaling-coordinator/modules/wsserver"
)

// Config holds the process configuration read from the environment.
type Config struct {
	WSAddr           string
	APIPort          string
	AllowedOrigins   string
	StatsLogInterval time.Duration
	SendQueueSize    int
	RateLimit        wsserver.RateConfig
	Coordinator      coordinator.Config
}

func loadConfig() Config {
	engine := coordinator.DefaultConfig()
	engine.DefaultChannels = getEnvList("DEFAULT_CHANNELS", engine.DefaultChannels)
	engine.SweepInterval = getEnvDuration("SWEEP_INTERVAL", engine.SweepInterval)
	engine.ChannelIdleTTL = getEnvDuration("CHANNEL_IDLE_TTL", engine.ChannelIdleTTL)
	engine.MessageRetention = getEnvDuration("MESSAGE_RETENTION", engine.MessageRetention)
	engine.NegotiationTTL = getEnvDuration("NEGOTIATION_TTL", engine.NegotiationTTL)
	engine.MaxConversationMessages = getEnvInt("MAX_CONVERSATION_MESSAGES", engine.MaxConversationMessages)
	engine.MaxConversations = getEnvInt("MAX_CONVERSATIONS", engine.MaxConversations)

	return Config{
		WSAddr:           getEnv("WS_ADDR", ":3001"),
		APIPort:          getEnv("API_PORT", "3002"),
		AllowedOrigins:   getEnv("CORS_ALLOWED_ORIGINS", "http://localhost:3000,http://localhost:8080"),
		StatsLogInterval: getEnvDuration("STATS_LOG_INTERVAL", 5*time.Minute),
		SendQueueSize:    getEnvInt("WS_SEND_QUEUE", 256),
		RateLimit: wsserver.RateConfig{
			PerSecond: float64(getEnvInt("WS_RATE_PER_SECOND", 20)),
			Burst:     getEnvInt("WS_RATE_BURST", 40),
		},
		Coordinator: engine,
	}
}

// getEnv returns environment variable value or default.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt returns environment variable as int or default.
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil && intVal > 0 {
			return intVal
		}
		log.Printf("Warning: invalid int value for %s: %s, using default: %d", key, value, defaultValue)
	}
	return defaultValue
}

// getEnvDuration returns environment variable as duration or default.
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil && duration > 0 {
			return duration
		}
		log.Printf("Warning: invalid duration value for %s: %s, using default: %s", key, value, defaultValue)
	}
	return defaultValue
}

// getEnvList returns a comma-separated environment variable or default.
func getEnvList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}
