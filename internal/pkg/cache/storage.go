package cache

import (
	"strconv"

	"github.com/ManuelReschke/MeliDesk/internal/pkg/env"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/storage/redis"
)

// LimiterDatabase keeps rate limiter counters apart from the cached marketplace data in DB 0.
const LimiterDatabase = 2

// NewFiberStorage returns a fiber.Storage on the cache server, for middleware that keeps
// state across instances (the webhook limiter).
func NewFiberStorage(database int) fiber.Storage {
	host := env.GetEnv("CACHE_HOST", "localhost")
	port, err := strconv.Atoi(env.GetEnv("CACHE_PORT", "6379"))
	if err != nil {
		port = 6379
	}

	return redis.New(redis.Config{
		Host:     host,
		Port:     port,
		Password: env.GetEnv("CACHE_PASSWORD", ""),
		Database: database,
		Reset:    false,
	})
}
