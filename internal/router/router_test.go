package router

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/habitledger/internal/db"
	"github.com/habitledger/internal/handler"
	"github.com/habitledger/internal/sync"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func setupRouterTest(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	gdb, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	if err := gdb.AutoMigrate(
		&db.HabitDefinition{},
		&db.ProgressEntry{},
		&db.LegacyHabitRecord{},
		&db.XPTransaction{},
		&db.UserProgressState{},
		&db.GlobalStreakState{},
		&db.OutboxEntry{},
		&db.SystemSetting{},
	); err != nil {
		t.Fatalf("failed to migrate test database: %v", err)
	}
	t.Cleanup(func() {
		sqlDB, err := gdb.DB()
		if err == nil {
			sqlDB.Close()
		}
	})

	bridge := sync.NewBridge(gdb, "u1", sync.NewOutbox(gdb, sync.NewMemoryRemote()))
	return SetupRouter(handler.NewAPI(gdb, "u1", bridge))
}

func doJSON(t *testing.T, r *gin.Engine, method, path string, body interface{}) (*httptest.ResponseRecorder, map[string]interface{}) {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("failed to encode request body: %v", err)
		}
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	var decoded map[string]interface{}
	if w.Body.Len() > 0 {
		if err := json.Unmarshal(w.Body.Bytes(), &decoded); err != nil {
			t.Fatalf("failed to decode response %q: %v", w.Body.String(), err)
		}
	}
	return w, decoded
}

func TestPingRoute(t *testing.T) {
	r := setupRouterTest(t)
	w, body := doJSON(t, r, http.MethodGet, "/ping", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if body["message"] != "pong" {
		t.Fatalf("unexpected body: %v", body)
	}
}

func TestHabitRoutes(t *testing.T) {
	r := setupRouterTest(t)

	w, created := doJSON(t, r, http.MethodPost, "/api/habits", gin.H{
		"name":        "晨跑",
		"category":    "formation",
		"goal_amount": 5,
		"goal_unit":   "公里",
		"schedule":    gin.H{"kind": "daily"},
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %v", w.Code, created)
	}
	id := created["id"].(float64)
	if id == 0 {
		t.Fatal("expected created habit to have id")
	}

	// 类别不变量在 API 边界同样成立
	w, _ = doJSON(t, r, http.MethodPost, "/api/habits", gin.H{
		"name":            "喝奶茶",
		"category":        "limiting",
		"goal_amount":     2,
		"baseline_amount": 1,
		"schedule":        gin.H{"kind": "daily"},
	})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for invalid baseline, got %d", w.Code)
	}

	w, list := doJSON(t, r, http.MethodGet, "/api/habits?status=active", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	habits := list["habits"].([]interface{})
	if len(habits) != 1 {
		t.Fatalf("expected 1 habit, got %d", len(habits))
	}

	w, single := doJSON(t, r, http.MethodGet, fmt.Sprintf("/api/habits/%.0f", id), nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if single["name"] != "晨跑" {
		t.Fatalf("unexpected habit: %v", single)
	}

	w, _ = doJSON(t, r, http.MethodGet, "/api/habits/999", nil)
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for missing habit, got %d", w.Code)
	}
}

func TestProgressAndStatsRoutes(t *testing.T) {
	r := setupRouterTest(t)

	_, created := doJSON(t, r, http.MethodPost, "/api/habits", gin.H{
		"name":        "写日记",
		"category":    "formation",
		"goal_amount": 1,
		"schedule":    gin.H{"kind": "daily"},
	})
	id := created["id"].(float64)
	today := time.Now().Format("2006-01-02")

	// 不带参数的打卡默认今天 +1
	w, result := doJSON(t, r, http.MethodPost, fmt.Sprintf("/api/habits/%.0f/progress", id), gin.H{})
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %v", w.Code, result)
	}
	if result["day_complete"] != true {
		t.Fatalf("expected day complete, got %v", result)
	}
	if result["awarded_xp"].(float64) != 50 {
		t.Fatalf("expected 50 xp awarded, got %v", result["awarded_xp"])
	}

	w, progress := doJSON(t, r, http.MethodGet, fmt.Sprintf("/api/habits/%.0f/progress?start=%s&end=%s", id, today, today), nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	entries := progress["entries"].([]interface{})
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}

	w, streak := doJSON(t, r, http.MethodGet, "/api/streak", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if streak["current_streak"].(float64) != 1 {
		t.Fatalf("expected current streak 1, got %v", streak["current_streak"])
	}

	w, xp := doJSON(t, r, http.MethodGet, "/api/xp", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if xp["total_xp"].(float64) != 50 {
		t.Fatalf("expected total xp 50, got %v", xp["total_xp"])
	}
}

func TestSyncRoutes(t *testing.T) {
	r := setupRouterTest(t)

	w, status := doJSON(t, r, http.MethodGet, "/api/sync/status", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if status["routing_mode"] != "dual" {
		t.Fatalf("expected default dual mode, got %v", status["routing_mode"])
	}

	w, _ = doJSON(t, r, http.MethodPut, "/api/sync/mode", gin.H{"mode": "new"})
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	w, _ = doJSON(t, r, http.MethodPut, "/api/sync/mode", gin.H{"mode": "hybrid"})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for invalid mode, got %d", w.Code)
	}
}

func TestMigrationRoutes(t *testing.T) {
	r := setupRouterTest(t)

	w, imported := doJSON(t, r, http.MethodPost, "/api/migration/legacy", gin.H{
		"records": []gin.H{
			{
				"name":          "晨跑",
				"kind":          "build",
				"schedule_text": "daily",
				"goal_text":     "5 km",
				"progress":      gin.H{"2024-05-01": 5},
				"xp_total":      100,
			},
		},
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %v", w.Code, imported)
	}

	w, summary := doJSON(t, r, http.MethodPost, "/api/migration/dry-run", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if summary["habits_migrated"].(float64) != 1 {
		t.Fatalf("expected 1 habit in dry-run summary, got %v", summary)
	}

	w, _ = doJSON(t, r, http.MethodPost, "/api/migration/migrate", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}

	w, state := doJSON(t, r, http.MethodGet, "/api/migration/status", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if state["state"] != "migrated" {
		t.Fatalf("expected migrated state, got %v", state["state"])
	}
}
