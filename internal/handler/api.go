package handler

import (
	"github.com/habitledger/internal/service"
	"github.com/habitledger/internal/sync"
	"gorm.io/gorm"
)

// API bundles shared dependencies for HTTP handlers.
type API struct {
	db        *gorm.DB
	habits    *service.HabitService
	progress  *service.ProgressService
	streak    *service.StreakService
	xp        *service.XPService
	migration *service.MigrationService
	settings  *service.SettingService
	bridge    *sync.Bridge
}

// NewAPI constructs a handler set with shared services.
// 所有写路径统一走 bridge，读路径直连服务。
func NewAPI(gdb *gorm.DB, userID string, bridge *sync.Bridge) *API {
	return &API{
		db:        gdb,
		habits:    service.NewHabitService(gdb),
		progress:  service.NewProgressService(gdb),
		streak:    service.NewStreakService(gdb, userID),
		xp:        service.NewXPService(gdb, userID),
		migration: service.NewMigrationService(gdb, userID, bridge.Locker()),
		settings:  service.NewSettingService(gdb),
		bridge:    bridge,
	}
}

// DB exposes the underlying gorm instance for legacy paths.
func (a *API) DB() *gorm.DB {
	return a.db
}
