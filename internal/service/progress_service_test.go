package service

import (
	"errors"
	"testing"

	"github.com/habitledger/internal/db"
)

func TestProgressUpsertAccumulates(t *testing.T) {
	gdb := setupTestDB(t)
	habit := mustCreateHabit(t, gdb, HabitInput{
		Name:       "喝水",
		Category:   db.CategoryFormation,
		Schedule:   Schedule{Kind: db.ScheduleDaily},
		GoalAmount: 8,
		GoalUnit:   "杯",
	})

	svc := NewProgressService(gdb)

	entry, err := svc.Upsert(ProgressInput{HabitID: habit.ID, DateKey: "2024-05-01", Delta: 2})
	if err != nil {
		t.Fatalf("Upsert returned error: %v", err)
	}
	if entry.Count != 2 {
		t.Fatalf("expected count 2, got %d", entry.Count)
	}
	if entry.Origin != db.ProgressOriginManual {
		t.Fatalf("expected manual origin, got %s", entry.Origin)
	}

	entry, err = svc.Upsert(ProgressInput{HabitID: habit.ID, DateKey: "2024-05-01", Delta: 3})
	if err != nil {
		t.Fatalf("Upsert returned error: %v", err)
	}
	if entry.Count != 5 {
		t.Fatalf("expected count 5 after accumulation, got %d", entry.Count)
	}
	if len(entry.Increments()) != 2 {
		t.Fatalf("expected 2 increment timestamps, got %d", len(entry.Increments()))
	}

	// 同日只有一条记录
	var total int64
	if err := gdb.Model(&db.ProgressEntry{}).Where("habit_id = ?", habit.ID).Count(&total).Error; err != nil {
		t.Fatalf("failed to count entries: %v", err)
	}
	if total != 1 {
		t.Fatalf("expected single entry per day, got %d", total)
	}
}

func TestProgressUpsertSetAndClamp(t *testing.T) {
	gdb := setupTestDB(t)
	habit := mustCreateHabit(t, gdb, HabitInput{
		Name:       "俯卧撑",
		Category:   db.CategoryFormation,
		Schedule:   Schedule{Kind: db.ScheduleDaily},
		GoalAmount: 30,
	})

	svc := NewProgressService(gdb)
	if _, err := svc.Upsert(ProgressInput{HabitID: habit.ID, DateKey: "2024-05-01", Delta: 10}); err != nil {
		t.Fatalf("Upsert returned error: %v", err)
	}

	// Set 覆盖累计值
	set := 25
	entry, err := svc.Upsert(ProgressInput{HabitID: habit.ID, DateKey: "2024-05-01", Set: &set})
	if err != nil {
		t.Fatalf("Upsert set returned error: %v", err)
	}
	if entry.Count != 25 {
		t.Fatalf("expected count 25, got %d", entry.Count)
	}
	// 覆盖不追加递增时间戳
	if len(entry.Increments()) != 1 {
		t.Fatalf("expected 1 increment timestamp, got %d", len(entry.Increments()))
	}

	// 负向变更下限钳制为 0
	entry, err = svc.Upsert(ProgressInput{HabitID: habit.ID, DateKey: "2024-05-01", Delta: -100})
	if err != nil {
		t.Fatalf("Upsert negative returned error: %v", err)
	}
	if entry.Count != 0 {
		t.Fatalf("expected count clamped to 0, got %d", entry.Count)
	}

	difficulty := 4
	entry, err = svc.Upsert(ProgressInput{HabitID: habit.ID, DateKey: "2024-05-01", Delta: 1, Difficulty: &difficulty, Note: "状态不错"})
	if err != nil {
		t.Fatalf("Upsert with annotations returned error: %v", err)
	}
	if entry.DifficultyRating == nil || *entry.DifficultyRating != 4 {
		t.Fatalf("expected difficulty 4, got %+v", entry.DifficultyRating)
	}
	if entry.Note != "状态不错" {
		t.Fatalf("expected note to persist, got %q", entry.Note)
	}
}

func TestProgressUpsertRejectsBadInput(t *testing.T) {
	gdb := setupTestDB(t)
	habit := mustCreateHabit(t, gdb, HabitInput{
		Name:       "阅读",
		Category:   db.CategoryFormation,
		Schedule:   Schedule{Kind: db.ScheduleDaily},
		GoalAmount: 1,
	})

	svc := NewProgressService(gdb)
	if _, err := svc.Upsert(ProgressInput{HabitID: habit.ID, DateKey: "05/01/2024", Delta: 1}); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected validation error for bad date key, got %v", err)
	}
	if _, err := svc.Upsert(ProgressInput{HabitID: 999, DateKey: "2024-05-01", Delta: 1}); !errors.Is(err, ErrHabitNotFound) {
		t.Fatalf("expected ErrHabitNotFound, got %v", err)
	}
}

func TestProgressGetListReset(t *testing.T) {
	gdb := setupTestDB(t)
	habit := mustCreateHabit(t, gdb, HabitInput{
		Name:       "背单词",
		Category:   db.CategoryFormation,
		Schedule:   Schedule{Kind: db.ScheduleDaily},
		GoalAmount: 20,
	})

	svc := NewProgressService(gdb)
	if _, err := svc.Get(habit.ID, "2024-05-01"); !errors.Is(err, ErrProgressNotFound) {
		t.Fatalf("expected ErrProgressNotFound, got %v", err)
	}

	for _, dateKey := range []string{"2024-05-01", "2024-05-02", "2024-05-03"} {
		if _, err := svc.Upsert(ProgressInput{HabitID: habit.ID, DateKey: dateKey, Delta: 20}); err != nil {
			t.Fatalf("Upsert returned error: %v", err)
		}
	}

	entries, err := svc.ListBetween(habit.ID, "2024-05-01", "2024-05-02")
	if err != nil {
		t.Fatalf("ListBetween returned error: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries in closed range, got %d", len(entries))
	}
	if entries[0].DateKey != "2024-05-01" || entries[1].DateKey != "2024-05-02" {
		t.Fatalf("expected ascending date order, got %s, %s", entries[0].DateKey, entries[1].DateKey)
	}

	if err := svc.Reset(habit.ID, "2024-05-02"); err != nil {
		t.Fatalf("Reset returned error: %v", err)
	}
	if _, err := svc.Get(habit.ID, "2024-05-02"); !errors.Is(err, ErrProgressNotFound) {
		t.Fatalf("expected entry to be gone after reset, got %v", err)
	}
}
