package service

import (
	"errors"
	"fmt"
	"strings"

	"github.com/habitledger/internal/db"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// 双写路由模式：legacy 只写旧版扁平记录，new 只写新模型，
// dual 为过渡期默认：两边都写、读取走新模型。
const (
	RoutingLegacy = "legacy"
	RoutingNew    = "new"
	RoutingDual   = "dual"
)

// ErrInvalidRoutingMode 表示路由模式不在支持范围内。
var ErrInvalidRoutingMode = errors.New("unsupported routing mode")

// SettingService 提供系统键值配置的读取与更新，
// 承载双写路由开关与迁移状态机标记。
type SettingService struct {
	db *gorm.DB
}

// NewSettingService 构造 SettingService
func NewSettingService(gdb *gorm.DB) *SettingService {
	return &SettingService{db: gdb}
}

// Get 读取设置项，未设置时返回空串。
func (s *SettingService) Get(key string) (string, error) {
	var record db.SystemSetting
	err := s.db.Where("key = ?", key).First(&record).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return "", nil
	case err != nil:
		return "", fmt.Errorf("load setting %s: %w", key, err)
	}
	return record.Value, nil
}

// Set 幂等写入设置项。
func (s *SettingService) Set(key, value string) error {
	record := db.SystemSetting{Key: key, Value: value}
	if err := s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
	}).Create(&record).Error; err != nil {
		return fmt.Errorf("save setting %s: %w", key, err)
	}
	return nil
}

// RoutingMode 返回当前路由模式，未设置时默认过渡期的 dual。
func (s *SettingService) RoutingMode() (string, error) {
	value, err := s.Get(db.SettingKeyRoutingMode)
	if err != nil {
		return "", err
	}
	mode := strings.TrimSpace(strings.ToLower(value))
	if mode == "" {
		return RoutingDual, nil
	}
	if !validRoutingMode(mode) {
		return RoutingDual, nil
	}
	return mode, nil
}

// SetRoutingMode 更新路由模式。
func (s *SettingService) SetRoutingMode(mode string) error {
	mode = strings.TrimSpace(strings.ToLower(mode))
	if !validRoutingMode(mode) {
		return fmt.Errorf("%w: %q", ErrInvalidRoutingMode, mode)
	}
	return s.Set(db.SettingKeyRoutingMode, mode)
}

func validRoutingMode(mode string) bool {
	return mode == RoutingLegacy || mode == RoutingNew || mode == RoutingDual
}
