package sync

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/habitledger/internal/db"
	"gorm.io/gorm"
)

const (
	defaultDrainInterval  = 30 * time.Second
	defaultAttemptTimeout = 5 * time.Second
	// 单个排水周期内对同一条目的最大重试次数；
	// 超出后条目保持 pending，留待下个周期，绝不丢弃
	maxRetriesPerCycle = 4
)

// Outbox 是持久化的发件队列：条目与本地写入同一事务入库，
// 由独立 worker 异步排水投递到远端镜像。
type Outbox struct {
	db             *gorm.DB
	remote         RemoteStore
	drainInterval  time.Duration
	attemptTimeout time.Duration
}

// OutboxStatus 汇报同步队列概况。
type OutboxStatus struct {
	Pending   int64  `json:"pending"`
	Delivered int64  `json:"delivered"`
	LastError string `json:"last_error,omitempty"`
}

// NewOutbox 构造 Outbox。remote 为 nil 时排水空转，条目持续排队。
func NewOutbox(gdb *gorm.DB, remote RemoteStore) *Outbox {
	return &Outbox{
		db:             gdb,
		remote:         remote,
		drainInterval:  defaultDrainInterval,
		attemptTimeout: defaultAttemptTimeout,
	}
}

// SetDrainInterval 覆盖默认排水周期。
func (o *Outbox) SetDrainInterval(d time.Duration) {
	if d > 0 {
		o.drainInterval = d
	}
}

// Enqueue 在给定事务内持久化一条待投递变更。
// 与产生该变更的本地写入共用事务，崩溃后队列不丢。
func (o *Outbox) Enqueue(tx *gorm.DB, m Mutation) error {
	payload, err := m.Encode()
	if err != nil {
		return err
	}

	entry := db.OutboxEntry{
		MutationID: m.ID,
		UserID:     m.UserID,
		Kind:       m.Kind,
		EntityKey:  m.Document.Key,
		Payload:    payload,
		Status:     db.OutboxStatusPending,
	}
	if err := tx.Create(&entry).Error; err != nil {
		return fmt.Errorf("enqueue outbox entry: %w", err)
	}
	return nil
}

// DrainOnce 按入队顺序投递全部 pending 条目。
// 单条失败只累计尝试次数并继续后面的条目。
func (o *Outbox) DrainOnce(ctx context.Context) (int, error) {
	if o.remote == nil {
		return 0, nil
	}

	var entries []db.OutboxEntry
	if err := o.db.Where("status = ?", db.OutboxStatusPending).
		Order("id ASC").Find(&entries).Error; err != nil {
		return 0, fmt.Errorf("list pending outbox entries: %w", err)
	}

	delivered := 0
	for i := range entries {
		if err := ctx.Err(); err != nil {
			return delivered, err
		}
		if err := o.deliver(ctx, &entries[i]); err != nil {
			log.Printf("warning: outbox entry %s still pending: %v", entries[i].MutationID, err)
			continue
		}
		delivered++
	}
	return delivered, nil
}

// deliver 投递单条条目，周期内按有界指数退避重试。
func (o *Outbox) deliver(ctx context.Context, entry *db.OutboxEntry) error {
	m, err := DecodeMutation(entry.Payload)
	if err != nil {
		// 无法解码的条目永远投不出去，标记投递失败原因后保留
		o.markFailure(entry, err)
		return err
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = 200 * time.Millisecond
	policy.MaxInterval = 2 * time.Second
	policy.MaxElapsedTime = 0

	operation := func() error {
		attemptCtx, cancel := context.WithTimeout(ctx, o.attemptTimeout)
		defer cancel()
		return o.remote.Deliver(attemptCtx, m)
	}

	err = backoff.Retry(operation, backoff.WithContext(
		backoff.WithMaxRetries(policy, maxRetriesPerCycle), ctx))
	if err != nil {
		o.markFailure(entry, err)
		return err
	}

	now := time.Now()
	entry.Status = db.OutboxStatusDelivered
	entry.DeliveredAt = &now
	entry.LastError = ""
	if err := o.db.Save(entry).Error; err != nil {
		return fmt.Errorf("mark outbox entry delivered: %w", err)
	}
	return nil
}

func (o *Outbox) markFailure(entry *db.OutboxEntry, cause error) {
	entry.Attempts++
	entry.LastError = cause.Error()
	if err := o.db.Save(entry).Error; err != nil {
		log.Printf("warning: record outbox failure: %v", err)
	}
}

// Run 周期性排水直到上下文取消，worker 独立于调用方运行。
func (o *Outbox) Run(ctx context.Context) {
	ticker := time.NewTicker(o.drainInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := o.DrainOnce(ctx); err != nil && ctx.Err() == nil {
				log.Printf("warning: outbox drain cycle: %v", err)
			}
		}
	}
}

// Status 汇报队列概况。
func (o *Outbox) Status() (*OutboxStatus, error) {
	status := &OutboxStatus{}
	if err := o.db.Model(&db.OutboxEntry{}).
		Where("status = ?", db.OutboxStatusPending).Count(&status.Pending).Error; err != nil {
		return nil, fmt.Errorf("count pending entries: %w", err)
	}
	if err := o.db.Model(&db.OutboxEntry{}).
		Where("status = ?", db.OutboxStatusDelivered).Count(&status.Delivered).Error; err != nil {
		return nil, fmt.Errorf("count delivered entries: %w", err)
	}

	var latest db.OutboxEntry
	err := o.db.Where("status = ? AND last_error <> ''", db.OutboxStatusPending).
		Order("updated_at DESC").First(&latest).Error
	if err == nil {
		status.LastError = latest.LastError
	}
	return status, nil
}
