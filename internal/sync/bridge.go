package sync

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strconv"
	stdsync "sync"
	"time"

	"github.com/habitledger/internal/db"
	"github.com/habitledger/internal/service"
	"gorm.io/gorm"
)

// Bridge 是所有变更的唯一入口：本地写入同步完成（失败即调用失败），
// 远端镜像走持久化发件箱异步尽力投递，远端故障只会让变更停在
// pending，绝不丢写。单用户的全部变更经由同一把锁串行化。
type Bridge struct {
	mu       stdsync.Mutex
	db       *gorm.DB
	userID   string
	settings *service.SettingService
	streak   *service.StreakService
	xp       *service.XPService
	outbox   *Outbox
}

// ProgressMutation 描述一次进度变更请求。
type ProgressMutation struct {
	HabitID    uint
	DateKey    string
	Delta      int
	Set        *int
	Difficulty *int
	Note       string
}

// Result 汇报一次变更的落地结果。
type Result struct {
	Entry         *db.ProgressEntry
	HabitComplete bool
	DayComplete   bool
	AwardedXP     int
	ReversedXP    int
	Streak        *db.GlobalStreakState
	SyncQueued    bool
}

// NewBridge 构造 Bridge
func NewBridge(gdb *gorm.DB, userID string, outbox *Outbox) *Bridge {
	return &Bridge{
		db:       gdb,
		userID:   userID,
		settings: service.NewSettingService(gdb),
		streak:   service.NewStreakService(gdb, userID),
		xp:       service.NewXPService(gdb, userID),
		outbox:   outbox,
	}
}

// Locker 暴露用户级互斥锁，迁移批次借此独占全部变更。
func (b *Bridge) Locker() stdsync.Locker {
	return &b.mu
}

// ApplyProgress 应用一次进度变更并驱动全部派生状态：
// 观察当日完成态的前后转变，未完成→完成记奖励、完成→未完成冲正，
// 然后全量重算连胜，最后把变更排入发件箱。
func (b *Bridge) ApplyProgress(ctx context.Context, m ProgressMutation) (*Result, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	mode, err := b.settings.RoutingMode()
	if err != nil {
		return nil, err
	}

	var habit db.HabitDefinition
	if err := b.db.First(&habit, m.HabitID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, service.ErrHabitNotFound
		}
		return nil, fmt.Errorf("find habit: %w", err)
	}

	if mode == service.RoutingLegacy {
		if err := b.writeLegacy(b.db, habit, m); err != nil {
			return nil, err
		}
		return &Result{}, nil
	}

	dayBefore, err := b.streak.DayComplete(m.DateKey)
	if err != nil {
		return nil, err
	}

	result := &Result{}
	err = b.db.Transaction(func(tx *gorm.DB) error {
		// dual 模式的旧版写入与新模型同一事务，任一失败两边一起回退
		if mode == service.RoutingDual {
			if err := b.writeLegacy(tx, habit, m); err != nil {
				return err
			}
		}

		entry, err := service.NewProgressService(tx).Upsert(service.ProgressInput{
			HabitID:    m.HabitID,
			DateKey:    m.DateKey,
			Delta:      m.Delta,
			Set:        m.Set,
			Difficulty: m.Difficulty,
			Note:       m.Note,
		})
		if err != nil {
			return err
		}
		result.Entry = entry

		// 变更与其发件箱条目同一事务落库，崩溃不会产生未排队的写入
		if err := b.outbox.Enqueue(tx, NewMutation(b.userID, MutationProgressUpsert, progressDocument(entry))); err != nil {
			return err
		}
		result.SyncQueued = true
		return nil
	})
	if err != nil {
		return nil, err
	}

	result.HabitComplete = service.Evaluate(habit, result.Entry)

	dayAfter, err := b.streak.DayComplete(m.DateKey)
	if err != nil {
		return nil, err
	}
	result.DayComplete = dayAfter

	switch {
	case !dayBefore && dayAfter:
		tx, err := b.xp.Award(m.DateKey, service.DailyAwardXP, db.XPReasonDailyComplete)
		if err == nil {
			result.AwardedXP = tx.Delta
			b.enqueueDerived(MutationXPAppend, xpDocument(tx))
		} else if !errors.Is(err, service.ErrDuplicateAward) {
			return nil, err
		}
	case dayBefore && !dayAfter:
		tx, err := b.xp.Reverse(m.DateKey, db.XPReasonDailyReversal)
		if err == nil {
			result.ReversedXP = -tx.Delta
			b.enqueueDerived(MutationXPAppend, xpDocument(tx))
		} else if !errors.Is(err, service.ErrNoAwardToReverse) {
			return nil, err
		}
	}

	state, err := b.streak.Recompute(time.Now())
	if err != nil {
		return nil, err
	}
	result.Streak = state
	b.enqueueDerived(MutationStreakState, streakDocument(state))

	return result, nil
}

// ApplyHabitUpsert 经由桥接器落地习惯定义的创建/更新并排队镜像。
func (b *Bridge) ApplyHabitUpsert(ctx context.Context, id uint, input service.HabitInput) (*db.HabitDefinition, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	habits := service.NewHabitService(b.db)
	var habit *db.HabitDefinition
	var err error
	if id == 0 {
		habit, err = habits.Create(input)
	} else {
		habit, err = habits.Update(id, input)
	}
	if err != nil {
		return nil, err
	}

	b.enqueueDerived(MutationHabitUpsert, habitDocument(habit))
	return habit, nil
}

// ApplyHabitArchive 归档习惯并排队镜像。
func (b *Bridge) ApplyHabitArchive(ctx context.Context, id uint) (*db.HabitDefinition, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	habit, err := service.NewHabitService(b.db).Archive(id)
	if err != nil {
		return nil, err
	}
	b.enqueueDerived(MutationHabitUpsert, habitDocument(habit))
	return habit, nil
}

// ApplyHabitDelete 删除（或归档）习惯并排队删除镜像。
func (b *Bridge) ApplyHabitDelete(ctx context.Context, id uint, purge bool) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err := service.NewHabitService(b.db).Delete(id, purge); err != nil {
		return err
	}
	if purge {
		b.enqueueDerived(MutationHabitDelete, Document{
			Key:       strconv.FormatUint(uint64(id), 10),
			UpdatedAt: time.Now(),
		})
	}
	return nil
}

// SyncStatus 汇报路由模式与发件队列概况。
func (b *Bridge) SyncStatus() (string, *OutboxStatus, error) {
	mode, err := b.settings.RoutingMode()
	if err != nil {
		return "", nil, err
	}
	status, err := b.outbox.Status()
	if err != nil {
		return "", nil, err
	}
	return mode, status, nil
}

// writeLegacy 把进度写入旧版扁平记录的对应日期映射。
// 仅维护与新模型习惯关联的旧记录；Limiting 走使用映射，其余走达成映射。
func (b *Bridge) writeLegacy(tx *gorm.DB, habit db.HabitDefinition, m ProgressMutation) error {
	if habit.LegacyRecordID == nil {
		return nil
	}

	var record db.LegacyHabitRecord
	if err := tx.First(&record, *habit.LegacyRecordID).Error; err != nil {
		return fmt.Errorf("find legacy record: %w", err)
	}

	counts := record.ProgressMap()
	if counts == nil {
		counts = make(map[string]int)
	}
	if habit.Category == db.CategoryLimiting {
		counts = record.UsageMap()
		if counts == nil {
			counts = make(map[string]int)
		}
	}

	if m.Set != nil {
		counts[m.DateKey] = *m.Set
	} else {
		counts[m.DateKey] += m.Delta
	}
	if counts[m.DateKey] < 0 {
		counts[m.DateKey] = 0
	}

	encoded, err := json.Marshal(counts)
	if err != nil {
		return fmt.Errorf("encode legacy counts: %w", err)
	}
	if habit.Category == db.CategoryLimiting {
		record.UsageJSON = string(encoded)
	} else {
		record.ProgressJSON = string(encoded)
	}

	if err := tx.Save(&record).Error; err != nil {
		return fmt.Errorf("save legacy record: %w", err)
	}
	return nil
}

// enqueueDerived 为派生状态排队镜像。派生状态随时可重算，
// 排队失败只记日志，不阻塞已完成的本地写入。
func (b *Bridge) enqueueDerived(kind string, doc Document) {
	if err := b.outbox.Enqueue(b.db, NewMutation(b.userID, kind, doc)); err != nil {
		log.Printf("warning: enqueue %s mirror: %v", kind, err)
	}
}

func progressDocument(entry *db.ProgressEntry) Document {
	doc := Document{
		Key:       fmt.Sprintf("%d/%s", entry.HabitID, entry.DateKey),
		UpdatedAt: time.Now(),
		Metadata:  map[string]string{"origin": entry.Origin},
		Counts:    map[string]int{entry.DateKey: entry.Count},
	}
	if entry.Note != "" {
		doc.Metadata["note"] = entry.Note
	}
	if entry.DifficultyRating != nil {
		doc.Metadata["difficulty"] = strconv.Itoa(*entry.DifficultyRating)
	}
	return doc
}

func habitDocument(habit *db.HabitDefinition) Document {
	return Document{
		Key:       strconv.FormatUint(uint64(habit.ID), 10),
		UpdatedAt: time.Now(),
		Metadata: map[string]string{
			"name":     habit.Name,
			"category": habit.Category,
			"schedule": habit.ScheduleKind,
			"status":   habit.Status,
			"goal":     strconv.Itoa(habit.GoalAmount),
			"baseline": strconv.Itoa(habit.BaselineAmount),
		},
	}
}

func xpDocument(tx *db.XPTransaction) Document {
	return Document{
		Key:       tx.TxID,
		UpdatedAt: time.Now(),
		Metadata: map[string]string{
			"date_key": tx.DateKey,
			"delta":    strconv.Itoa(tx.Delta),
			"reason":   tx.Reason,
		},
	}
}

func streakDocument(state *db.GlobalStreakState) Document {
	return Document{
		Key:       state.UserID,
		UpdatedAt: time.Now(),
		Metadata: map[string]string{
			"current_streak":      strconv.Itoa(state.CurrentStreak),
			"longest_streak":      strconv.Itoa(state.LongestStreak),
			"total_complete_days": strconv.Itoa(state.TotalCompleteDays),
			"last_evaluated":      state.LastEvaluatedDate,
		},
	}
}
