package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/habitledger/internal/db"
	"gorm.io/gorm"
)

// 迁移状态机：NotStarted → DryRunValidated → Migrated → Validated | RolledBack。
const (
	MigrationStateNotStarted = "not_started"
	MigrationStateDryRun     = "dry_run_validated"
	MigrationStateMigrated   = "migrated"
	MigrationStateValidated  = "validated"
	MigrationStateRolledBack = "rolled_back"
)

// 校验问题分级，仅 error/critical 阻塞验收。
const (
	SeverityWarning  = "warning"
	SeverityError    = "error"
	SeverityCritical = "critical"
)

// MigrationSummary 是 dry-run 与正式迁移共用的结果摘要。
type MigrationSummary struct {
	HabitsMigrated          int            `json:"habits_migrated"`
	ProgressRecordsMigrated int            `json:"progress_records_migrated"`
	XPMigrated              int            `json:"xp_migrated"`
	ScheduleParseBreakdown  map[string]int `json:"schedule_parse_breakdown"`
	DurationMs              int64          `json:"duration_ms"`
}

// ValidationIssue 是一条带分级的校验结论。
type ValidationIssue struct {
	Severity string `json:"severity"`
	Message  string `json:"message"`
}

// ValidationReport 是 validate 的整体结论。
type ValidationReport struct {
	Passed bool              `json:"passed"`
	Issues []ValidationIssue `json:"issues"`
}

// LegacyRecordInput 用于导入旧版扁平记录。
type LegacyRecordInput struct {
	Name           string          `json:"name"`
	Kind           string          `json:"kind"`
	ScheduleText   string          `json:"schedule_text"`
	GoalText       string          `json:"goal_text"`
	BaselineAmount int             `json:"baseline_amount"`
	Progress       map[string]int  `json:"progress"`
	Usage          map[string]int  `json:"usage"`
	Completion     map[string]bool `json:"completion"`
	XPTotal        int             `json:"xp_total"`
}

// MigrationService 把旧版扁平记录转换为规范化模型。
// 迁移过程从不修改旧版数据，因此回滚总是完整且安全的；
// 已完成标记先于任何写入检查，部分失败后重跑不会重复建档。
type MigrationService struct {
	db       *gorm.DB
	settings *SettingService
	streak   *StreakService
	xp       *XPService
	userID   string
	locker   sync.Locker
}

// NewMigrationService 构造 MigrationService。
// locker 是与实时变更共用的用户级互斥锁，迁移批次全程独占。
func NewMigrationService(gdb *gorm.DB, userID string, locker sync.Locker) *MigrationService {
	if locker == nil {
		locker = &sync.Mutex{}
	}
	return &MigrationService{
		db:       gdb,
		settings: NewSettingService(gdb),
		streak:   NewStreakService(gdb, userID),
		xp:       NewXPService(gdb, userID),
		userID:   userID,
		locker:   locker,
	}
}

// State 返回迁移状态机当前状态。
func (s *MigrationService) State() (string, error) {
	value, err := s.settings.Get(db.SettingKeyMigrationState)
	if err != nil {
		return "", err
	}
	if value == "" {
		return MigrationStateNotStarted, nil
	}
	return value, nil
}

// StoredSummary 返回最近一次迁移的持久化摘要。
func (s *MigrationService) StoredSummary() (*MigrationSummary, error) {
	raw, err := s.settings.Get(db.SettingKeyMigrationSummary)
	if err != nil || raw == "" {
		return nil, err
	}
	var summary MigrationSummary
	if err := json.Unmarshal([]byte(raw), &summary); err != nil {
		return nil, fmt.Errorf("decode stored migration summary: %w", err)
	}
	return &summary, nil
}

// ImportLegacyRecords 导入旧版扁平记录作为迁移输入。
func (s *MigrationService) ImportLegacyRecords(inputs []LegacyRecordInput) (int, error) {
	created := 0
	err := s.db.Transaction(func(tx *gorm.DB) error {
		for _, input := range inputs {
			record := db.LegacyHabitRecord{
				Name:           input.Name,
				Kind:           input.Kind,
				ScheduleText:   input.ScheduleText,
				GoalText:       input.GoalText,
				BaselineAmount: input.BaselineAmount,
				ProgressJSON:   encodeJSON(input.Progress),
				UsageJSON:      encodeJSON(input.Usage),
				CompletionJSON: encodeJSON(input.Completion),
				XPTotal:        input.XPTotal,
			}
			if err := tx.Create(&record).Error; err != nil {
				return fmt.Errorf("import legacy record %q: %w", input.Name, err)
			}
			created++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return created, nil
}

// DryRun 跑完整转换但不落任何数据，返回与正式迁移相同形状的摘要。
func (s *MigrationService) DryRun(ctx context.Context) (*MigrationSummary, error) {
	s.locker.Lock()
	defer s.locker.Unlock()

	summary, _, err := s.convertAll(ctx)
	if err != nil {
		return nil, err
	}

	if err := s.settings.Set(db.SettingKeyMigrationState, MigrationStateDryRun); err != nil {
		return nil, err
	}
	return summary, nil
}

// Migrate 执行正式迁移。批次整体一个事务，要么全部落库要么全部回退；
// 已迁移标记在任何写入前检查，重跑直接返回上次摘要。
func (s *MigrationService) Migrate(ctx context.Context) (*MigrationSummary, error) {
	s.locker.Lock()
	defer s.locker.Unlock()

	state, err := s.State()
	if err != nil {
		return nil, err
	}
	if state == MigrationStateMigrated || state == MigrationStateValidated {
		return s.StoredSummary()
	}

	start := time.Now()
	err = s.db.Transaction(func(tx *gorm.DB) error {
		summary, converted, convErr := convertRecords(ctx, tx, s.userID)
		if convErr != nil {
			return convErr
		}

		for _, c := range converted {
			habit := c.habit
			if err := tx.Create(&habit).Error; err != nil {
				return fmt.Errorf("create migrated habit %q: %w", habit.Name, err)
			}
			for _, entry := range c.entries {
				entry.HabitID = habit.ID
				if err := tx.Create(&entry).Error; err != nil {
					return fmt.Errorf("create migrated entry %s: %w", entry.DateKey, err)
				}
			}
		}

		if summary.XPMigrated > 0 {
			imported := db.XPTransaction{
				TxID:   migrationTxID(s.userID),
				UserID: s.userID,
				Delta:  summary.XPMigrated,
				Reason: db.XPReasonLegacyImport,
			}
			if err := tx.Create(&imported).Error; err != nil {
				return fmt.Errorf("create imported xp transaction: %w", err)
			}
		}

		summary.DurationMs = time.Since(start).Milliseconds()

		txSettings := NewSettingService(tx)
		if err := txSettings.Set(db.SettingKeyMigrationState, MigrationStateMigrated); err != nil {
			return err
		}
		return txSettings.Set(db.SettingKeyMigrationSummary, encodeJSON(summary))
	})
	if err != nil {
		return nil, err
	}

	// 事务提交后重建派生状态；两者都是幂等的全量重算
	if _, err := s.streak.Recompute(time.Now()); err != nil {
		return nil, err
	}
	if _, err := s.xp.RefreshState(); err != nil {
		return nil, err
	}

	return s.StoredSummary()
}

// Validate 比对新旧两套表示并检查模型不变量。
// 只有迁移完成后才有两套表示可比，其余状态直接拒绝。
func (s *MigrationService) Validate() (*ValidationReport, error) {
	state, err := s.State()
	if err != nil {
		return nil, err
	}
	if state != MigrationStateMigrated && state != MigrationStateValidated {
		return nil, fmt.Errorf("%w: validate requires a completed migration, state is %s", ErrMigrationState, state)
	}

	report := &ValidationReport{}

	var legacyRecords []db.LegacyHabitRecord
	if err := s.db.Find(&legacyRecords).Error; err != nil {
		return nil, fmt.Errorf("list legacy records: %w", err)
	}

	var migratedHabits []db.HabitDefinition
	if err := s.db.Where("legacy_record_id IS NOT NULL").Find(&migratedHabits).Error; err != nil {
		return nil, fmt.Errorf("list migrated habits: %w", err)
	}

	if len(migratedHabits) != len(legacyRecords) {
		report.add(SeverityCritical, fmt.Sprintf(
			"habit count mismatch: %d legacy records, %d migrated habits",
			len(legacyRecords), len(migratedHabits)))
	}

	progress := NewProgressService(s.db)
	habitsByLegacyID := make(map[uint]*db.HabitDefinition, len(migratedHabits))
	for i := range migratedHabits {
		if migratedHabits[i].LegacyRecordID != nil {
			habitsByLegacyID[*migratedHabits[i].LegacyRecordID] = &migratedHabits[i]
		}
	}

	for i := range legacyRecords {
		record := &legacyRecords[i]
		habit, ok := habitsByLegacyID[record.ID]
		if !ok {
			report.add(SeverityError, fmt.Sprintf("legacy record %q has no migrated habit", record.Name))
			continue
		}

		counts := record.ProgressMap()
		if habit.Category == db.CategoryLimiting {
			counts = record.UsageMap()
		}

		var entryCount int64
		if err := s.db.Model(&db.ProgressEntry{}).Where("habit_id = ?", habit.ID).Count(&entryCount).Error; err != nil {
			return nil, fmt.Errorf("count migrated entries: %w", err)
		}
		if int(entryCount) < validDateKeyCount(counts) {
			report.add(SeverityError, fmt.Sprintf(
				"habit %q migrated %d of %d progress records", habit.Name, entryCount, validDateKeyCount(counts)))
		}

		// 旧版手工完成表可能与计数矛盾；新模型以计数推导为准，仅告警
		for dateKey, done := range record.CompletionMap() {
			entry, err := progress.Get(habit.ID, dateKey)
			if err != nil {
				continue
			}
			if Evaluate(*habit, entry) != done {
				report.add(SeverityWarning, fmt.Sprintf(
					"habit %q %s: legacy completion flag disagrees with derived state", habit.Name, dateKey))
			}
		}
	}

	var orphans int64
	if err := s.db.Model(&db.ProgressEntry{}).
		Where("habit_id NOT IN (?)", s.db.Model(&db.HabitDefinition{}).Select("id")).
		Count(&orphans).Error; err != nil {
		return nil, fmt.Errorf("count orphaned entries: %w", err)
	}
	if orphans > 0 {
		report.add(SeverityError, fmt.Sprintf("%d orphaned progress entries", orphans))
	}

	var dateKeys []string
	if err := s.db.Model(&db.ProgressEntry{}).Distinct("date_key").Pluck("date_key", &dateKeys).Error; err != nil {
		return nil, fmt.Errorf("list date keys: %w", err)
	}
	for _, key := range dateKeys {
		if _, err := ParseDateKey(key); err != nil {
			report.add(SeverityCritical, fmt.Sprintf("unparsable date key %q", key))
		}
	}

	streakState, err := s.streak.State()
	if err != nil {
		return nil, err
	}
	if streakState.CurrentStreak > streakState.LongestStreak ||
		streakState.LongestStreak > streakState.TotalCompleteDays {
		report.add(SeverityCritical, fmt.Sprintf(
			"streak invariant violated: current=%d longest=%d total=%d",
			streakState.CurrentStreak, streakState.LongestStreak, streakState.TotalCompleteDays))
	}

	legacyXP := 0
	for i := range legacyRecords {
		legacyXP += legacyRecords[i].XPTotal
	}
	var importedXP int64
	if err := s.db.Model(&db.XPTransaction{}).
		Where("user_id = ? AND reason = ?", s.userID, db.XPReasonLegacyImport).
		Select("COALESCE(SUM(delta), 0)").Scan(&importedXP).Error; err != nil {
		return nil, fmt.Errorf("sum imported xp: %w", err)
	}
	if legacyXP != int(importedXP) {
		report.add(SeverityError, fmt.Sprintf(
			"xp mismatch: legacy total %d, imported %d", legacyXP, importedXP))
	}

	report.Passed = true
	for _, issue := range report.Issues {
		if issue.Severity != SeverityWarning {
			report.Passed = false
			break
		}
	}

	if report.Passed && state == MigrationStateMigrated {
		if err := s.settings.Set(db.SettingKeyMigrationState, MigrationStateValidated); err != nil {
			return nil, err
		}
	}

	return report, nil
}

// Rollback 删除所有由迁移创建的记录。旧版数据在迁移期间从不被修改，
// 因此回滚总是完整的。未完成迁移时没有可回滚的产物，直接拒绝。
func (s *MigrationService) Rollback(ctx context.Context) error {
	s.locker.Lock()
	defer s.locker.Unlock()

	state, err := s.State()
	if err != nil {
		return err
	}
	if state != MigrationStateMigrated && state != MigrationStateValidated {
		return fmt.Errorf("%w: rollback requires a completed migration, state is %s", ErrMigrationState, state)
	}

	err = s.db.Transaction(func(tx *gorm.DB) error {
		var migrated []db.HabitDefinition
		if err := tx.Where("legacy_record_id IS NOT NULL").Find(&migrated).Error; err != nil {
			return fmt.Errorf("list migrated habits: %w", err)
		}

		for i := range migrated {
			if err := ctx.Err(); err != nil {
				return err
			}
			if err := tx.Where("habit_id = ?", migrated[i].ID).
				Unscoped().Delete(&db.ProgressEntry{}).Error; err != nil {
				return fmt.Errorf("delete migrated entries: %w", err)
			}
			if err := tx.Unscoped().Delete(&db.HabitDefinition{}, migrated[i].ID).Error; err != nil {
				return fmt.Errorf("delete migrated habit: %w", err)
			}
		}

		if err := tx.Where("user_id = ? AND reason = ?", s.userID, db.XPReasonLegacyImport).
			Unscoped().Delete(&db.XPTransaction{}).Error; err != nil {
			return fmt.Errorf("delete imported xp: %w", err)
		}

		return NewSettingService(tx).Set(db.SettingKeyMigrationState, MigrationStateRolledBack)
	})
	if err != nil {
		return err
	}

	if _, err := s.streak.Recompute(time.Now()); err != nil {
		return err
	}
	if _, err := s.xp.RefreshState(); err != nil {
		return err
	}
	return nil
}

func (s *MigrationService) convertAll(ctx context.Context) (*MigrationSummary, []convertedRecord, error) {
	return convertRecords(ctx, s.db, s.userID)
}

type convertedRecord struct {
	habit   db.HabitDefinition
	entries []db.ProgressEntry
}

// convertRecords 是 dry-run 与正式迁移共用的转换器。
// 仅在批次条目之间响应取消，保证单条转换不可分割。
func convertRecords(ctx context.Context, gdb *gorm.DB, userID string) (*MigrationSummary, []convertedRecord, error) {
	var records []db.LegacyHabitRecord
	if err := gdb.Find(&records).Error; err != nil {
		return nil, nil, fmt.Errorf("list legacy records: %w", err)
	}

	summary := &MigrationSummary{ScheduleParseBreakdown: make(map[string]int)}
	converted := make([]convertedRecord, 0, len(records))

	for i := range records {
		if err := ctx.Err(); err != nil {
			return nil, nil, fmt.Errorf("migration cancelled: %w", err)
		}

		record := &records[i]
		c := convertRecord(record)

		if parsed := ParseScheduleText(record.ScheduleText); parsed.Fallback {
			summary.ScheduleParseBreakdown["fallback"]++
			log.Printf("warning: unparsable legacy schedule %q for %q, defaulting to daily", record.ScheduleText, record.Name)
		} else {
			summary.ScheduleParseBreakdown[parsed.Schedule.Kind]++
		}

		summary.HabitsMigrated++
		summary.ProgressRecordsMigrated += len(c.entries)
		summary.XPMigrated += record.XPTotal
		converted = append(converted, c)
	}

	return summary, converted, nil
}

// convertRecord 把一条旧版扁平记录转为新模型。
// Limiting 习惯的计数来自使用映射，Formation 来自达成映射；
// 旧版手工完成表在这里被彻底忽略，完成永远由计数推导。
func convertRecord(record *db.LegacyHabitRecord) convertedRecord {
	category := legacyCategory(record.Kind)
	parsedSchedule := ParseScheduleText(record.ScheduleText)
	parsedGoal := ParseGoalText(record.GoalText)
	if parsedGoal.Fallback && record.GoalText != "" {
		log.Printf("warning: unparsable legacy goal %q for %q, defaulting to 1", record.GoalText, record.Name)
	}

	legacyID := record.ID
	habit := db.HabitDefinition{
		Name:           record.Name,
		Category:       category,
		GoalAmount:     parsedGoal.Amount,
		GoalUnit:       parsedGoal.Unit,
		Status:         db.HabitStatusActive,
		LegacyRecordID: &legacyID,
	}
	parsedSchedule.Schedule.ApplyTo(&habit)

	counts := record.ProgressMap()
	if category == db.CategoryLimiting {
		counts = record.UsageMap()
		habit.BaselineAmount = record.BaselineAmount
		if habit.BaselineAmount <= habit.GoalAmount {
			// 旧版基线缺失或矛盾时抬到目标之上，保持不变量成立
			log.Printf("warning: legacy baseline %d <= goal %d for %q, adjusting", record.BaselineAmount, habit.GoalAmount, record.Name)
			habit.BaselineAmount = habit.GoalAmount + 1
		}
	}

	var entries []db.ProgressEntry
	var earliest time.Time
	for dateKey, count := range counts {
		date, err := ParseDateKey(dateKey)
		if err != nil {
			log.Printf("warning: skipping legacy entry with invalid date key %q for %q", dateKey, record.Name)
			continue
		}
		if count <= 0 {
			continue
		}
		if earliest.IsZero() || date.Before(earliest) {
			earliest = date
		}
		entries = append(entries, db.ProgressEntry{
			DateKey: dateKey,
			Count:   count,
			Origin:  db.ProgressOriginMigration,
		})
	}

	// 起算日锚定到最早的历史记录日，让调度覆盖整段旧版历史；
	// 否则历史日期全部落在起算日之前，连胜重算会把它们当休假日跳过
	if !earliest.IsZero() {
		habit.CreatedAt = earliest
	}

	return convertedRecord{habit: habit, entries: entries}
}

func legacyCategory(kind string) string {
	switch kind {
	case "quit", "limit", "avoid", "reduce":
		return db.CategoryLimiting
	default:
		return db.CategoryFormation
	}
}

func validDateKeyCount(counts map[string]int) int {
	n := 0
	for key, count := range counts {
		if count <= 0 {
			continue
		}
		if _, err := ParseDateKey(key); err == nil {
			n++
		}
	}
	return n
}

func migrationTxID(userID string) string {
	return fmt.Sprintf("legacy-import-%s", userID)
}

func (r *ValidationReport) add(severity, message string) {
	r.Issues = append(r.Issues, ValidationIssue{Severity: severity, Message: message})
}

func encodeJSON(v interface{}) string {
	if v == nil {
		return ""
	}
	data, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	return string(data)
}
