package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/habitledger/internal/db"
	"github.com/habitledger/internal/sync"
)

type progressPayload struct {
	Date       string `json:"date"`
	Delta      int    `json:"delta"`
	Set        *int   `json:"set,omitempty"`
	Difficulty *int   `json:"difficulty,omitempty"`
	Note       string `json:"note"`
}

// LogProgress 应用一次进度变更，返回条目与派生状态。
func (a *API) LogProgress(c *gin.Context) {
	id, err := parseUintParam(c, "id")
	if err != nil {
		respondError(c, http.StatusBadRequest, err.Error())
		return
	}

	var payload progressPayload
	if !bindJSON(c, &payload, "invalid progress payload") {
		return
	}

	date := payload.Date
	if date == "" {
		date = time.Now().Format("2006-01-02")
	}
	if payload.Delta == 0 && payload.Set == nil {
		payload.Delta = 1
	}

	result, err := a.bridge.ApplyProgress(c.Request.Context(), sync.ProgressMutation{
		HabitID:    id,
		DateKey:    date,
		Delta:      payload.Delta,
		Set:        payload.Set,
		Difficulty: payload.Difficulty,
		Note:       payload.Note,
	})
	if err != nil {
		respondServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, resultToResponse(result))
}

// ListProgress 返回指定习惯在闭区间内的进度条目。
func (a *API) ListProgress(c *gin.Context) {
	id, err := parseUintParam(c, "id")
	if err != nil {
		respondError(c, http.StatusBadRequest, err.Error())
		return
	}

	end := c.DefaultQuery("end", time.Now().Format("2006-01-02"))
	start := c.DefaultQuery("start", time.Now().AddDate(0, -1, 0).Format("2006-01-02"))

	entries, err := a.progress.ListBetween(id, start, end)
	if err != nil {
		respondServiceError(c, err)
		return
	}

	items := make([]gin.H, 0, len(entries))
	for i := range entries {
		items = append(items, entryToResponse(&entries[i]))
	}

	c.JSON(http.StatusOK, gin.H{"start": start, "end": end, "entries": items})
}

// ResetProgress 显式清除某习惯某日的条目。
func (a *API) ResetProgress(c *gin.Context) {
	id, err := parseUintParam(c, "id")
	if err != nil {
		respondError(c, http.StatusBadRequest, err.Error())
		return
	}

	date := c.Query("date")
	if date == "" {
		respondError(c, http.StatusBadRequest, "date query parameter is required")
		return
	}

	if err := a.progress.Reset(id, date); err != nil {
		respondServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"reset": true})
}

func resultToResponse(result *sync.Result) gin.H {
	response := gin.H{
		"habit_complete": result.HabitComplete,
		"day_complete":   result.DayComplete,
		"awarded_xp":     result.AwardedXP,
		"reversed_xp":    result.ReversedXP,
		"sync_queued":    result.SyncQueued,
	}
	if result.Entry != nil {
		response["entry"] = entryToResponse(result.Entry)
	}
	if result.Streak != nil {
		response["streak"] = streakToResponse(result.Streak)
	}
	return response
}

func entryToResponse(entry *db.ProgressEntry) gin.H {
	response := gin.H{
		"habit_id": entry.HabitID,
		"date":     entry.DateKey,
		"count":    entry.Count,
		"origin":   entry.Origin,
	}
	if entry.Note != "" {
		response["note"] = entry.Note
	}
	if entry.DifficultyRating != nil {
		response["difficulty"] = *entry.DifficultyRating
	}
	if increments := entry.Increments(); len(increments) > 0 {
		stamps := make([]string, 0, len(increments))
		for _, t := range increments {
			stamps = append(stamps, t.Format(time.RFC3339))
		}
		response["increments"] = stamps
	}
	return response
}
