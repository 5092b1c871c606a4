package db

import (
	"time"

	"gorm.io/gorm"
)

// 发件箱条目状态
const (
	OutboxStatusPending   = "pending"
	OutboxStatusDelivered = "delivered"
)

// OutboxEntry 是远端镜像的持久化发件队列。
// 条目与本地写入同一事务落库，崩溃后不会丢失待同步的变更；
// 投递失败只累计 Attempts 并保留 pending，留待下个同步周期。
type OutboxEntry struct {
	gorm.Model
	MutationID  string `gorm:"size:36;uniqueIndex;not null"`
	UserID      string `gorm:"size:64;index"`
	Kind        string `gorm:"size:30;not null"`
	EntityKey   string `gorm:"size:80"`
	Payload     string `gorm:"type:text"`
	Status      string `gorm:"size:20;index;default:pending"`
	Attempts    int
	LastError   string
	DeliveredAt *time.Time
}

// TableName 自定义表名以保持命名一致。
func (OutboxEntry) TableName() string {
	return "outbox_entries"
}
