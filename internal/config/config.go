package config

import (
	"time"

	"telecare-signaling/pkg/constants"
	"telecare-signaling/pkg/env"
)

// Config holds the environment-driven settings of the signaling service
type Config struct {
	Env  string
	Port string

	JWTSecret string

	RedisHost     string
	RedisPort     int
	RedisPassword string
	RedisDB       int
	RedisPoolSize int
	RedisTimeout  time.Duration

	MaxConnections int
	RoomCapacity   int
}

// Load reads the configuration from the environment (or Docker secrets)
func Load() *Config {
	return &Config{
		Env:  env.GetString("ENV", "development"),
		Port: env.GetString("PORT", "8084"),

		JWTSecret: env.GetStringFromFile("JWT_SECRET", ""),

		RedisHost:     env.GetString("REDIS_HOST", "localhost"),
		RedisPort:     env.GetInt("REDIS_PORT", 6379),
		RedisPassword: env.GetStringFromFile("REDIS_PASSWORD", ""),
		RedisDB:       env.GetInt("REDIS_DB", 0),
		RedisPoolSize: env.GetInt("REDIS_POOL_SIZE", 10),
		RedisTimeout:  env.GetDuration("REDIS_TIMEOUT", 5*time.Second),

		MaxConnections: env.GetInt("WS_MAX_CONNECTIONS", constants.DefaultMaxConnections),
		RoomCapacity:   env.GetInt("CONSULTATION_ROOM_CAPACITY", constants.DefaultRoomCapacity),
	}
}

// IsProduction reports whether the service runs in production mode
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}
