// Package config builds runtime configuration from environment variables so
// main stays lean. Every recognized option has a development-safe default.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config is the full configuration surface of the service.
type Config struct {
	Addr string

	Validation ValidationConfig
	Token      TokenConfig
	Consensus  ConsensusConfig
	Merkle     MerkleConfig

	Redis    RedisConfig
	Postgres PostgresConfig
	Kafka    KafkaConfig
}

// ValidationConfig tunes the Stage 1 coordinator.
type ValidationConfig struct {
	MinValidators      int
	MaxValidators      int
	ValidationDeadline time.Duration
	FraudThreshold     float64
	ClockSkew          time.Duration
}

// TokenConfig tunes the token issuer.
type TokenConfig struct {
	TTL      time.Duration
	Issuer   string
	Audience string
}

// ConsensusConfig tunes the Stage 2 agreement rounds.
type ConsensusConfig struct {
	// FaultTolerance is the maximum tolerated faulty nodes (f). When zero it
	// is derived from the active node count as floor((n-1)/3).
	FaultTolerance   int
	NodeCount        int
	ConsensusTimeout time.Duration
}

// MerkleConfig bounds the record store.
type MerkleConfig struct {
	TreeDepth int
}

// RedisConfig configures the optional redis-backed consumed token set.
type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// PostgresConfig configures the optional postgres-backed record log.
type PostgresConfig struct {
	URL string
}

// KafkaConfig configures the optional audit event sink.
type KafkaConfig struct {
	Brokers []string
	Topic   string
}

// FromEnv builds a Config from environment variables.
func FromEnv() Config {
	return Config{
		Addr: envString("QUORUMGATE_ADDR", ":8080"),
		Validation: ValidationConfig{
			MinValidators:      envInt("QUORUMGATE_MIN_VALIDATORS", 1),
			MaxValidators:      envInt("QUORUMGATE_MAX_VALIDATORS", 16),
			ValidationDeadline: envDurationMs("QUORUMGATE_VALIDATION_DEADLINE_MS", 100*time.Millisecond),
			FraudThreshold:     envFloat("QUORUMGATE_FRAUD_THRESHOLD", 0.85),
			ClockSkew:          envDurationMs("QUORUMGATE_CLOCK_SKEW_MS", 30_000*time.Millisecond),
		},
		Token: TokenConfig{
			TTL:      time.Duration(envInt("QUORUMGATE_TOKEN_TTL_SECONDS", 300)) * time.Second,
			Issuer:   envString("QUORUMGATE_TOKEN_ISSUER", "quorumgate"),
			Audience: envString("QUORUMGATE_TOKEN_AUDIENCE", "quorumgate-store"),
		},
		Consensus: ConsensusConfig{
			FaultTolerance:   envInt("QUORUMGATE_BFT_F", 0),
			NodeCount:        envInt("QUORUMGATE_NODE_COUNT", 4),
			ConsensusTimeout: envDurationMs("QUORUMGATE_CONSENSUS_TIMEOUT_MS", 5_000*time.Millisecond),
		},
		Merkle: MerkleConfig{
			TreeDepth: envInt("QUORUMGATE_MERKLE_TREE_DEPTH", 20),
		},
		Redis: RedisConfig{
			URL:          os.Getenv("QUORUMGATE_REDIS_URL"),
			PoolSize:     envInt("QUORUMGATE_REDIS_POOL_SIZE", 10),
			MinIdleConns: envInt("QUORUMGATE_REDIS_MIN_IDLE_CONNS", 2),
			DialTimeout:  envDurationMs("QUORUMGATE_REDIS_DIAL_TIMEOUT_MS", 5*time.Second),
			ReadTimeout:  envDurationMs("QUORUMGATE_REDIS_READ_TIMEOUT_MS", 3*time.Second),
			WriteTimeout: envDurationMs("QUORUMGATE_REDIS_WRITE_TIMEOUT_MS", 3*time.Second),
		},
		Postgres: PostgresConfig{
			URL: os.Getenv("QUORUMGATE_POSTGRES_URL"),
		},
		Kafka: KafkaConfig{
			Brokers: splitNonEmpty(os.Getenv("QUORUMGATE_KAFKA_BROKERS")),
			Topic:   envString("QUORUMGATE_KAFKA_AUDIT_TOPIC", "quorumgate.audit"),
		},
	}
}

func envString(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func envDurationMs(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return time.Duration(n) * time.Millisecond
		}
	}
	return fallback
}

func splitNonEmpty(csv string) []string {
	var out []string
	for _, part := range strings.Split(csv, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
