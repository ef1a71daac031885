package config

import (
	"sync"
)

var (
	redisOnce   sync.Once
	redisConfig *RedisConfig
)

// RedisConfig is shared by the asynq queue and the task status store.
type RedisConfig struct {
	Addr        string
	Password    string
	DB          int
	Concurrency int
}

func GetRedisConfig() *RedisConfig {
	redisOnce.Do(func() {
		loadEnv()
		redisConfig = &RedisConfig{
			Addr:        getEnv("REDIS_ADDR", "localhost:6379"),
			Password:    getEnv("REDIS_PASSWORD", ""),
			DB:          getEnvInt("REDIS_DB", 0),
			Concurrency: getEnvInt("WORKER_CONCURRENCY", 10),
		}
	})
	return redisConfig
}
