package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/habitledger/internal/service"
)

// GetSyncStatus 返回路由模式与发件队列概况。
func (a *API) GetSyncStatus(c *gin.Context) {
	mode, status, err := a.bridge.SyncStatus()
	if err != nil {
		respondError(c, http.StatusInternalServerError, "failed to load sync status")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"routing_mode": mode,
		"outbox":       status,
	})
}

// SetSyncMode 切换双写路由模式。
func (a *API) SetSyncMode(c *gin.Context) {
	var payload struct {
		Mode string `json:"mode"`
	}
	if !bindJSON(c, &payload, "invalid sync mode payload") {
		return
	}

	if err := a.settings.SetRoutingMode(payload.Mode); err != nil {
		if errors.Is(err, service.ErrInvalidRoutingMode) {
			respondError(c, http.StatusBadRequest, err.Error())
			return
		}
		respondError(c, http.StatusInternalServerError, "failed to update routing mode")
		return
	}

	c.JSON(http.StatusOK, gin.H{"routing_mode": payload.Mode})
}
