package config

import (
	"os"
	"strings"
	"time"
)

// Config captures everything the server needs from the environment so main
// stays lean. Reward policy caps live in internal/policy, not here.
type Config struct {
	Addr string

	// DatabaseURL is the Postgres DSN. Empty selects the in-memory stores,
	// which is only appropriate for development and tests.
	DatabaseURL string

	// JWTSigningKey verifies access tokens minted by the auth provider.
	JWTSigningKey string

	// DeviceCookieSecret keys the HMAC over anonymous device tokens.
	DeviceCookieSecret string

	// AdminTokenHash is the bcrypt hash of the token required for absolute
	// balance sets. Empty disables the endpoint.
	AdminTokenHash string

	Redis RedisConfig
	Audit AuditConfig
}

// RedisConfig configures the optional Redis client used for soft per-IP
// ad-watch counters.
type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// AuditConfig configures the optional Kafka audit publisher.
type AuditConfig struct {
	Brokers []string
	Topic   string
}

// FromEnv builds a Config from environment variables.
func FromEnv() Config {
	addr := os.Getenv("ARCANA_ADDR")
	if addr == "" {
		addr = ":8080"
	}

	jwtSigningKey := os.Getenv("ARCANA_JWT_SIGNING_KEY")
	if jwtSigningKey == "" {
		// Use a default for development - should be overridden in production
		jwtSigningKey = "dev-secret-key-change-in-production"
	}

	cookieSecret := os.Getenv("ARCANA_DEVICE_COOKIE_SECRET")
	if cookieSecret == "" {
		cookieSecret = "dev-cookie-secret-change-in-production"
	}

	topic := os.Getenv("ARCANA_AUDIT_TOPIC")
	if topic == "" {
		topic = "arcana.stars.audit"
	}

	return Config{
		Addr:               addr,
		DatabaseURL:        os.Getenv("ARCANA_DATABASE_URL"),
		JWTSigningKey:      jwtSigningKey,
		DeviceCookieSecret: cookieSecret,
		AdminTokenHash:     os.Getenv("ARCANA_ADMIN_TOKEN_HASH"),
		Redis: RedisConfig{
			URL:          os.Getenv("ARCANA_REDIS_URL"),
			PoolSize:     10,
			MinIdleConns: 2,
			DialTimeout:  5 * time.Second,
			ReadTimeout:  3 * time.Second,
			WriteTimeout: 3 * time.Second,
		},
		Audit: AuditConfig{
			Brokers: splitNonEmpty(os.Getenv("ARCANA_AUDIT_BROKERS")),
			Topic:   topic,
		},
	}
}

func splitNonEmpty(s string) []string {
	if s == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
