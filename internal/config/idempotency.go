package config

import (
	"strings"
	"time"
)

// Idempotency backends.
const (
	IdempotencyOff      = "off"
	IdempotencyRedis    = "redis"
	IdempotencyDynamoDB = "dynamodb"
)

// IdempotencyConfig controls the Idempotency-Key middleware on mutating
// routes.
type IdempotencyConfig struct {
	Backend string
	TTL     time.Duration
	Prefix  string // redis key prefix
	Table   string // dynamodb table name
	Region  string // optional; the default AWS chain applies when empty
}

func LoadIdempotencyConfig() IdempotencyConfig {
	c := IdempotencyConfig{
		Backend: strings.ToLower(envStr("IDEMPOTENCY_BACKEND", IdempotencyRedis)),
		TTL:     envDur("IDEMPOTENCY_TTL", 24*time.Hour),
		Prefix:  envStr("IDEMPOTENCY_PREFIX", "mw:idem"),
		Table:   envStr("IDEMPOTENCY_TABLE", "mindwell-idempotency"),
		Region:  envStr("AWS_REGION", ""),
	}
	switch c.Backend {
	case IdempotencyRedis, IdempotencyDynamoDB, IdempotencyOff:
	default:
		c.Backend = IdempotencyOff
	}
	if c.TTL < time.Minute {
		c.TTL = time.Minute
	}
	return c
}
