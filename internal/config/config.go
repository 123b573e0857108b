package config

import (
	"fmt"
	"os"
	"strconv"
)

type Config struct {
	Port          string
	AllowedOrigin string
	DatabaseURL   string
	SQLitePath    string
	StoreBackend  string
	RedisAddr     string
	RedisPassword string
	RedisDB       int
}

// Load reads everything from the environment. Backend selection:
// STORE=memory forces the in-memory store, otherwise DATABASE_URL picks
// PostgreSQL and the default is a SQLite file next to the binary.
func Load() Config {
	redisDB, _ := strconv.Atoi(getEnv("REDIS_DB", "0"))

	cfg := Config{
		Port:          getEnv("PORT", "8080"),
		AllowedOrigin: getEnv("ALLOWED_ORIGIN", "http://127.0.0.1:3000"),
		DatabaseURL:   os.Getenv("DATABASE_URL"),
		SQLitePath:    getEnv("SQLITE_PATH", "panaderia.db"),
		StoreBackend:  os.Getenv("STORE"),
		RedisAddr:     os.Getenv("REDIS_ADDR"),
		RedisPassword: os.Getenv("REDIS_PASSWORD"),
		RedisDB:       redisDB,
	}

	return cfg
}

func (c Config) Address() string {
	return fmt.Sprintf(":%s", c.Port)
}

func getEnv(key string, fallback string) string {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	return val
}
