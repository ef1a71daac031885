package config

import (
	"sync"
	"time"
)

var (
	serverOnce   sync.Once
	serverConfig *ServerConfig
)

type ServerConfig struct {
	Addr            string
	StorageType     string // s3 or minio
	PipelineFile    string
	LogLevel        string
	ShutdownTimeout time.Duration
	RetentionPeriod time.Duration
}

func GetServerConfig() *ServerConfig {
	serverOnce.Do(func() {
		loadEnv()
		serverConfig = &ServerConfig{
			Addr:            getEnv("HTTP_ADDR", ":8080"),
			StorageType:     getEnv("STORAGE_TYPE", "minio"),
			PipelineFile:    getEnv("PIPELINE_CONFIG", "config/pipeline.yaml"),
			LogLevel:        getEnv("LOG_LEVEL", "info"),
			ShutdownTimeout: getEnvDuration("SHUTDOWN_TIMEOUT", 5*time.Second),
			RetentionPeriod: getEnvDuration("RETENTION_PERIOD", 24*time.Hour),
		}
	})
	return serverConfig
}
