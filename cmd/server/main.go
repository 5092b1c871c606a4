package main

import (
	"context"
	"log"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/habitledger/internal/config"
	"github.com/habitledger/internal/db"
	"github.com/habitledger/internal/handler"
	"github.com/habitledger/internal/router"
	"github.com/habitledger/internal/service"
	"github.com/habitledger/internal/sync"
)

func main() {
	cfg := config.Load()
	gin.SetMode(cfg.GinMode)

	// 初始化本地存储
	if err := db.Init(cfg.DatabasePath); err != nil {
		log.Fatalf("failed to initialize database: %v", err)
	}

	// 路由模式未设置时以配置默认值落库
	settings := service.NewSettingService(db.DB)
	if stored, err := settings.Get(db.SettingKeyRoutingMode); err == nil && stored == "" {
		if err := settings.SetRoutingMode(cfg.RoutingModeDefault); err != nil {
			log.Printf("warning: seed routing mode: %v", err)
		}
	}

	// 远端镜像可选：未配置时发件箱持续排队，待配置后排水
	var remote sync.RemoteStore
	if cfg.RemoteMongoURI != "" {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		mongoRemote, err := sync.NewMongoRemote(ctx, cfg.RemoteMongoURI, cfg.RemoteMongoDB)
		cancel()
		if err != nil {
			log.Printf("warning: remote mirror unavailable, mutations will stay queued: %v", err)
		} else {
			remote = mongoRemote
		}
	}

	outbox := sync.NewOutbox(db.DB, remote)
	outbox.SetDrainInterval(cfg.SyncDrainInterval)
	bridge := sync.NewBridge(db.DB, cfg.UserID, outbox)

	// 启动时做一次账本巡检，缓存偏差自动修复
	if _, err := service.NewXPService(db.DB, cfg.UserID).VerifyIntegrity(); err != nil {
		log.Printf("warning: xp integrity check: %v", err)
	}

	workerCtx, stopWorker := context.WithCancel(context.Background())
	defer stopWorker()
	go outbox.Run(workerCtx)

	api := handler.NewAPI(db.DB, cfg.UserID, bridge)
	r := router.SetupRouter(api)
	if err := r.Run(cfg.ListenAddr); err != nil {
		log.Fatalf("failed to run server: %v", err)
	}
}
