package sync

import (
	"context"
	"testing"
	"time"

	"github.com/habitledger/internal/db"
)

func TestOutboxKeepsFailedEntriesPending(t *testing.T) {
	gdb := setupSyncTestDB(t)
	remote := NewMemoryRemote()
	outbox := NewOutbox(gdb, remote)

	m := NewMutation("u1", MutationProgressUpsert, Document{
		Key:       "1/2024-05-01",
		UpdatedAt: time.Now(),
		Counts:    map[string]int{"2024-05-01": 5},
	})
	if err := outbox.Enqueue(gdb, m); err != nil {
		t.Fatalf("Enqueue returned error: %v", err)
	}

	// 远端持续失败：条目保持 pending，绝不丢弃
	remote.FailNext = 100
	delivered, err := outbox.DrainOnce(context.Background())
	if err != nil {
		t.Fatalf("DrainOnce returned error: %v", err)
	}
	if delivered != 0 {
		t.Fatalf("expected no deliveries while remote is down, got %d", delivered)
	}

	status, err := outbox.Status()
	if err != nil {
		t.Fatalf("Status returned error: %v", err)
	}
	if status.Pending != 1 || status.Delivered != 0 {
		t.Fatalf("unexpected status: %+v", status)
	}
	if status.LastError == "" {
		t.Fatal("expected last error to be recorded")
	}

	var entry db.OutboxEntry
	if err := gdb.Where("mutation_id = ?", m.ID).First(&entry).Error; err != nil {
		t.Fatalf("failed to load outbox entry: %v", err)
	}
	if entry.Attempts == 0 {
		t.Fatal("expected attempts to be counted")
	}

	// 远端恢复后下个周期按序补投，且恰好一次
	remote.FailNext = 0
	delivered, err = outbox.DrainOnce(context.Background())
	if err != nil {
		t.Fatalf("DrainOnce returned error: %v", err)
	}
	if delivered != 1 {
		t.Fatalf("expected 1 delivery after recovery, got %d", delivered)
	}
	if remote.Delivers != 1 {
		t.Fatalf("expected exactly one remote delivery, got %d", remote.Delivers)
	}

	doc, ok := remote.Document(MutationProgressUpsert, "1/2024-05-01")
	if !ok {
		t.Fatal("expected document in remote mirror")
	}
	if doc.Counts["2024-05-01"] != 5 {
		t.Fatalf("unexpected mirrored count: %d", doc.Counts["2024-05-01"])
	}

	// 再排水一遍不会重复投递
	delivered, err = outbox.DrainOnce(context.Background())
	if err != nil {
		t.Fatalf("DrainOnce returned error: %v", err)
	}
	if delivered != 0 || remote.Delivers != 1 {
		t.Fatalf("expected idempotent drain, delivered=%d delivers=%d", delivered, remote.Delivers)
	}
}

func TestOutboxDeliversInEnqueueOrder(t *testing.T) {
	gdb := setupSyncTestDB(t)
	remote := NewMemoryRemote()
	outbox := NewOutbox(gdb, remote)

	now := time.Now()
	for i, count := range []int{1, 2, 3} {
		m := NewMutation("u1", MutationProgressUpsert, Document{
			Key:       "1/2024-05-01",
			UpdatedAt: now.Add(time.Duration(i) * time.Second),
			Counts:    map[string]int{"2024-05-01": count},
		})
		if err := outbox.Enqueue(gdb, m); err != nil {
			t.Fatalf("Enqueue returned error: %v", err)
		}
	}

	delivered, err := outbox.DrainOnce(context.Background())
	if err != nil {
		t.Fatalf("DrainOnce returned error: %v", err)
	}
	if delivered != 3 {
		t.Fatalf("expected 3 deliveries, got %d", delivered)
	}

	doc, ok := remote.Document(MutationProgressUpsert, "1/2024-05-01")
	if !ok {
		t.Fatal("expected document in remote mirror")
	}
	if doc.Counts["2024-05-01"] != 3 {
		t.Fatalf("expected final count 3, got %d", doc.Counts["2024-05-01"])
	}
}

func TestOutboxWithoutRemoteKeepsQueueing(t *testing.T) {
	gdb := setupSyncTestDB(t)
	outbox := NewOutbox(gdb, nil)

	m := NewMutation("u1", MutationStreakState, Document{Key: "u1", UpdatedAt: time.Now()})
	if err := outbox.Enqueue(gdb, m); err != nil {
		t.Fatalf("Enqueue returned error: %v", err)
	}

	delivered, err := outbox.DrainOnce(context.Background())
	if err != nil {
		t.Fatalf("DrainOnce returned error: %v", err)
	}
	if delivered != 0 {
		t.Fatalf("expected drain to be a no-op without remote, got %d", delivered)
	}

	status, err := outbox.Status()
	if err != nil {
		t.Fatalf("Status returned error: %v", err)
	}
	if status.Pending != 1 {
		t.Fatalf("expected entry to stay queued, got %+v", status)
	}
}

func TestOutboxMarksUndecodablePayload(t *testing.T) {
	gdb := setupSyncTestDB(t)
	remote := NewMemoryRemote()
	outbox := NewOutbox(gdb, remote)

	entry := db.OutboxEntry{
		MutationID: "broken",
		UserID:     "u1",
		Kind:       MutationProgressUpsert,
		Payload:    "{not json",
		Status:     db.OutboxStatusPending,
	}
	if err := gdb.Create(&entry).Error; err != nil {
		t.Fatalf("failed to seed broken entry: %v", err)
	}

	if _, err := outbox.DrainOnce(context.Background()); err != nil {
		t.Fatalf("DrainOnce returned error: %v", err)
	}

	var reloaded db.OutboxEntry
	if err := gdb.Where("mutation_id = ?", "broken").First(&reloaded).Error; err != nil {
		t.Fatalf("failed to reload entry: %v", err)
	}
	if reloaded.Status != db.OutboxStatusPending {
		t.Fatalf("expected broken entry to stay pending, got %s", reloaded.Status)
	}
	if reloaded.LastError == "" {
		t.Fatal("expected decode failure to be recorded")
	}
}
