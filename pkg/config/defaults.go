// Package config provides centralized default values for PlanPulse
package config

import (
	"bufio"
	"log"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"
)

var envLoaded sync.Once

func loadEnvFile() {
	envLoaded.Do(func() {
		file, err := os.Open(".env")
		if err != nil {
			return
		}
		defer file.Close()

		log.Println("Loading configuration overrides from .env file...")
		scanner := bufio.NewScanner(file)
		for scanner.Scan() {
			line := strings.TrimSpace(scanner.Text())

			if line == "" || strings.HasPrefix(line, "#") {
				continue
			}

			parts := strings.SplitN(line, "=", 2)
			if len(parts) != 2 {
				continue
			}

			key := strings.TrimSpace(parts[0])
			value := strings.TrimSpace(parts[1])

			if os.Getenv(key) == "" {
				os.Setenv(key, value)
			}
		}
	})
}

func getEnvInt(key string, defaultValue int) int {
	if valStr := os.Getenv(key); valStr != "" {
		if val, err := strconv.Atoi(valStr); err == nil {
			if val != defaultValue {
				log.Printf("Config override: %s=%d (default: %d)", key, val, defaultValue)
			}
			return val
		}
	}
	return defaultValue
}

func getEnvString(key string, defaultValue string) string {
	if val := os.Getenv(key); val != "" {
		if val != defaultValue {
			log.Printf("Config override: %s=%s (default: %s)", key, val, defaultValue)
		}
		return val
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if valStr := os.Getenv(key); valStr != "" {
		if val, err := strconv.ParseBool(valStr); err == nil {
			if val != defaultValue {
				log.Printf("Config override: %s=%t (default: %t)", key, val, defaultValue)
			}
			return val
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if valStr := os.Getenv(key); valStr != "" {
		if val, err := time.ParseDuration(valStr); err == nil {
			if val != defaultValue {
				log.Printf("Config override: %s=%s (default: %s)", key, val, defaultValue)
			}
			return val
		}
	}
	return defaultValue
}

var (
	// Server Configuration
	Port               string
	ServerReadTimeout  time.Duration
	ServerWriteTimeout time.Duration
	ServerIdleTimeout  time.Duration

	// Session Engine Configuration
	//
	// SessionResumptionWindow is the single source of truth for how long an
	// idle session can still be resumed. HeartbeatIdleThreshold is the
	// maximum gap between heartbeats that still counts as engaged time.
	SessionResumptionWindow time.Duration
	HeartbeatIdleThreshold  time.Duration
	SessionSweepInterval    time.Duration
	MaxSessionsPerTenant    int
	MaxHeartbeatsPerEntry   int

	// Retention Configuration
	RetentionGracePeriod   time.Duration
	RetentionSweepInterval time.Duration

	// Event Recorder Configuration
	EventBufferSize   int
	EventDrainTimeout time.Duration

	// Cache Configuration
	MaxTenants      int
	UserStateTTL    time.Duration
	CleanupInterval time.Duration

	// Database Pool
	DBMaxOpenConns           int
	DBMaxIdleConns           int
	DBConnMaxLifetimeMinutes int
	DBConnMaxIdleMinutes     int
	SlowQueryThreshold       time.Duration

	// Auth Configuration
	JWTTokenLifetime time.Duration
)

func init() {
	loadEnvFile()

	// Server Configuration
	Port = getEnvString("PORT", "8080")
	ServerReadTimeout = getEnvDuration("SERVER_READ_TIMEOUT", 15*time.Second)
	ServerWriteTimeout = getEnvDuration("SERVER_WRITE_TIMEOUT", 15*time.Second)
	ServerIdleTimeout = getEnvDuration("SERVER_IDLE_TIMEOUT", 60*time.Second)

	// Session Engine
	SessionResumptionWindow = getEnvDuration("SESSION_RESUMPTION_WINDOW", 30*time.Minute)
	HeartbeatIdleThreshold = getEnvDuration("HEARTBEAT_IDLE_THRESHOLD", 5*time.Minute)
	SessionSweepInterval = getEnvDuration("SESSION_SWEEP_INTERVAL", 10*time.Minute)
	MaxSessionsPerTenant = getEnvInt("MAX_SESSIONS_PER_TENANT", 5000)
	MaxHeartbeatsPerEntry = getEnvInt("MAX_HEARTBEATS_PER_ENTRY", 2880)

	// Retention
	RetentionGracePeriod = getEnvDuration("RETENTION_GRACE_PERIOD", 72*time.Hour)
	RetentionSweepInterval = getEnvDuration("RETENTION_SWEEP_INTERVAL", 24*time.Hour)

	// Event Recorder
	EventBufferSize = getEnvInt("EVENT_BUFFER_SIZE", 1024)
	EventDrainTimeout = getEnvDuration("EVENT_DRAIN_TIMEOUT", 5*time.Second)

	// Memory Management
	MaxTenants = getEnvInt("MAX_TENANTS", 5)
	UserStateTTL = getEnvDuration("USER_STATE_TTL", 2*time.Hour)
	CleanupInterval = getEnvDuration("CLEANUP_INTERVAL", 15*time.Minute)

	// Database Pool
	DBMaxOpenConns = getEnvInt("DB_MAX_OPEN_CONNS", 10)
	DBMaxIdleConns = getEnvInt("DB_MAX_IDLE_CONNS", 3)
	DBConnMaxLifetimeMinutes = getEnvInt("DB_CONN_MAX_LIFETIME_MINUTES", 30)
	DBConnMaxIdleMinutes = getEnvInt("DB_CONN_MAX_IDLE_MINUTES", 3)
	SlowQueryThreshold = getEnvDuration("SLOW_QUERY_THRESHOLD", 200*time.Millisecond)

	// Auth
	JWTTokenLifetime = getEnvDuration("JWT_TOKEN_LIFETIME", 30*24*time.Hour)
}
