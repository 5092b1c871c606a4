package handler

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/habitledger/internal/db"
	"github.com/habitledger/internal/service"
)

type schedulePayload struct {
	Kind     string `json:"kind"`
	Weekdays []int  `json:"weekdays,omitempty"`
	Interval int    `json:"interval,omitempty"`
	Target   int    `json:"target,omitempty"`
}

type habitPayload struct {
	Name           string          `json:"name"`
	Description    string          `json:"description"`
	Category       string          `json:"category"`
	Schedule       schedulePayload `json:"schedule"`
	GoalAmount     int             `json:"goal_amount"`
	GoalUnit       string          `json:"goal_unit"`
	BaselineAmount int             `json:"baseline_amount,omitempty"`
	Status         string          `json:"status"`
}

// ListHabits 返回习惯列表 JSON
func (a *API) ListHabits(c *gin.Context) {
	filter := service.HabitFilter{
		Status:   c.Query("status"),
		Category: c.Query("category"),
		Search:   c.Query("search"),
	}

	habits, err := a.habits.List(filter)
	if err != nil {
		respondError(c, http.StatusInternalServerError, "failed to list habits")
		return
	}

	items := make([]gin.H, 0, len(habits))
	for i := range habits {
		items = append(items, habitToResponse(habits[i]))
	}

	c.JSON(http.StatusOK, gin.H{"habits": items})
}

// GetHabit 返回单个习惯，频率型调度附带当前周期配额进度。
func (a *API) GetHabit(c *gin.Context) {
	id, err := parseUintParam(c, "id")
	if err != nil {
		respondError(c, http.StatusBadRequest, err.Error())
		return
	}

	habit, err := a.habits.Get(id)
	if err != nil {
		if errors.Is(err, service.ErrHabitNotFound) {
			respondError(c, http.StatusNotFound, "habit not found")
			return
		}
		respondError(c, http.StatusInternalServerError, "failed to load habit")
		return
	}

	response := habitToResponse(*habit)
	if quota, err := a.habits.Quota(*habit, time.Now()); err == nil && quota != nil {
		response["quota"] = quota
	}

	c.JSON(http.StatusOK, response)
}

// CreateHabit 创建习惯
func (a *API) CreateHabit(c *gin.Context) {
	var payload habitPayload
	if !bindJSON(c, &payload, "invalid habit payload") {
		return
	}

	habit, err := a.bridge.ApplyHabitUpsert(c.Request.Context(), 0, habitInputFromPayload(payload))
	if err != nil {
		respondServiceError(c, err)
		return
	}

	c.JSON(http.StatusCreated, habitToResponse(*habit))
}

// UpdateHabit 更新习惯
func (a *API) UpdateHabit(c *gin.Context) {
	id, err := parseUintParam(c, "id")
	if err != nil {
		respondError(c, http.StatusBadRequest, err.Error())
		return
	}

	var payload habitPayload
	if !bindJSON(c, &payload, "invalid habit payload") {
		return
	}

	habit, err := a.bridge.ApplyHabitUpsert(c.Request.Context(), id, habitInputFromPayload(payload))
	if err != nil {
		respondServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, habitToResponse(*habit))
}

// ArchiveHabit 归档习惯，进度历史完整保留。
func (a *API) ArchiveHabit(c *gin.Context) {
	id, err := parseUintParam(c, "id")
	if err != nil {
		respondError(c, http.StatusBadRequest, err.Error())
		return
	}

	habit, err := a.bridge.ApplyHabitArchive(c.Request.Context(), id)
	if err != nil {
		respondServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, habitToResponse(*habit))
}

// DeleteHabit 删除习惯；默认归档，?purge=true 时硬删除并级联清除进度。
func (a *API) DeleteHabit(c *gin.Context) {
	id, err := parseUintParam(c, "id")
	if err != nil {
		respondError(c, http.StatusBadRequest, err.Error())
		return
	}

	purge := c.Query("purge") == "true"
	if err := a.bridge.ApplyHabitDelete(c.Request.Context(), id, purge); err != nil {
		respondServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"deleted": true, "purged": purge})
}

func respondServiceError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrValidation):
		respondError(c, http.StatusBadRequest, err.Error())
	case errors.Is(err, service.ErrHabitNotFound):
		respondError(c, http.StatusNotFound, "habit not found")
	case errors.Is(err, service.ErrProgressNotFound):
		respondError(c, http.StatusNotFound, "progress entry not found")
	default:
		respondError(c, http.StatusInternalServerError, err.Error())
	}
}

func habitInputFromPayload(payload habitPayload) service.HabitInput {
	weekdays := make([]time.Weekday, 0, len(payload.Schedule.Weekdays))
	for _, wd := range payload.Schedule.Weekdays {
		weekdays = append(weekdays, time.Weekday(wd))
	}

	return service.HabitInput{
		Name:        payload.Name,
		Description: payload.Description,
		Category:    payload.Category,
		Schedule: service.Schedule{
			Kind:     payload.Schedule.Kind,
			Weekdays: weekdays,
			Interval: payload.Schedule.Interval,
			Target:   payload.Schedule.Target,
		},
		GoalAmount:     payload.GoalAmount,
		GoalUnit:       payload.GoalUnit,
		BaselineAmount: payload.BaselineAmount,
		Status:         payload.Status,
	}
}

func habitToResponse(habit db.HabitDefinition) gin.H {
	schedule := service.ScheduleFromHabit(habit)
	weekdays := make([]int, 0, len(schedule.Weekdays))
	for _, wd := range schedule.Weekdays {
		weekdays = append(weekdays, int(wd))
	}

	response := gin.H{
		"id":          habit.ID,
		"name":        habit.Name,
		"description": habit.Description,
		"category":    habit.Category,
		"goal_amount": habit.GoalAmount,
		"goal_unit":   habit.GoalUnit,
		"status":      habit.Status,
		"created_at":  habit.CreatedAt.Format(time.RFC3339),
		"schedule": gin.H{
			"kind":     schedule.Kind,
			"weekdays": weekdays,
			"interval": schedule.Interval,
			"target":   schedule.Target,
		},
	}
	if habit.Category == db.CategoryLimiting {
		response["baseline_amount"] = habit.BaselineAmount
	}
	return response
}
