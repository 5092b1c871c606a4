package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// AppConfig 汇总运行服务所需的基础配置。
type AppConfig struct {
	ListenAddr         string
	Port               string
	DatabasePath       string
	GinMode            string
	UserID             string
	RoutingModeDefault string
	RemoteMongoURI     string
	RemoteMongoDB      string
	SyncDrainInterval  time.Duration
}

// Load 从环境变量读取应用配置，并为缺失项提供安全的默认值。
// 存在 .env 文件时先行加载，便于本地开发。
func Load() AppConfig {
	_ = godotenv.Load()

	port := strings.TrimSpace(os.Getenv("PORT"))
	if port == "" {
		port = "8080"
	}

	listenAddr := strings.TrimSpace(os.Getenv("LISTEN_ADDR"))
	if listenAddr == "" {
		listenAddr = fmt.Sprintf(":%s", port)
	}

	databasePath := strings.TrimSpace(os.Getenv("DATABASE_PATH"))
	if databasePath == "" {
		databasePath = "habitledger.db"
	}

	ginMode := strings.TrimSpace(os.Getenv("GIN_MODE"))
	if ginMode == "" {
		ginMode = "release"
	}

	userID := strings.TrimSpace(os.Getenv("USER_ID"))
	if userID == "" {
		userID = "local"
	}

	routingMode := strings.TrimSpace(os.Getenv("SYNC_ROUTING_MODE"))
	if routingMode == "" {
		routingMode = "dual"
	}

	drainInterval := 30 * time.Second
	if raw := strings.TrimSpace(os.Getenv("SYNC_DRAIN_INTERVAL")); raw != "" {
		if seconds, err := strconv.Atoi(raw); err == nil && seconds > 0 {
			drainInterval = time.Duration(seconds) * time.Second
		}
	}

	return AppConfig{
		ListenAddr:         listenAddr,
		Port:               port,
		DatabasePath:       databasePath,
		GinMode:            ginMode,
		UserID:             userID,
		RoutingModeDefault: routingMode,
		RemoteMongoURI:     strings.TrimSpace(os.Getenv("REMOTE_MONGO_URI")),
		RemoteMongoDB:      envOrDefault("REMOTE_MONGO_DATABASE", "habitledger"),
		SyncDrainInterval:  drainInterval,
	}
}

func envOrDefault(key, fallback string) string {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	return value
}
