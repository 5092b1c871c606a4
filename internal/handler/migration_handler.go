package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/habitledger/internal/service"
)

// ImportLegacyRecords 导入旧版扁平记录作为迁移输入。
func (a *API) ImportLegacyRecords(c *gin.Context) {
	var payload struct {
		Records []service.LegacyRecordInput `json:"records"`
	}
	if !bindJSON(c, &payload, "invalid legacy records payload") {
		return
	}

	created, err := a.migration.ImportLegacyRecords(payload.Records)
	if err != nil {
		respondError(c, http.StatusInternalServerError, err.Error())
		return
	}

	c.JSON(http.StatusCreated, gin.H{"imported": created})
}

// MigrationDryRun 跑完整转换但不落库。
func (a *API) MigrationDryRun(c *gin.Context) {
	summary, err := a.migration.DryRun(c.Request.Context())
	if err != nil {
		respondError(c, http.StatusInternalServerError, err.Error())
		return
	}

	c.JSON(http.StatusOK, summary)
}

// Migrate 执行正式迁移，重复调用幂等返回上次摘要。
func (a *API) Migrate(c *gin.Context) {
	summary, err := a.migration.Migrate(c.Request.Context())
	if err != nil {
		respondError(c, http.StatusInternalServerError, err.Error())
		return
	}

	c.JSON(http.StatusOK, summary)
}

// ValidateMigration 比对新旧表示并检查模型不变量。
func (a *API) ValidateMigration(c *gin.Context) {
	report, err := a.migration.Validate()
	if err != nil {
		if errors.Is(err, service.ErrMigrationState) {
			respondError(c, http.StatusConflict, err.Error())
			return
		}
		respondError(c, http.StatusInternalServerError, err.Error())
		return
	}

	c.JSON(http.StatusOK, report)
}

// RollbackMigration 删除迁移创建的全部记录，旧版数据保持原样。
func (a *API) RollbackMigration(c *gin.Context) {
	if err := a.migration.Rollback(c.Request.Context()); err != nil {
		if errors.Is(err, service.ErrMigrationState) {
			respondError(c, http.StatusConflict, err.Error())
			return
		}
		respondError(c, http.StatusInternalServerError, err.Error())
		return
	}

	c.JSON(http.StatusOK, gin.H{"rolled_back": true})
}

// MigrationStatus 返回迁移状态机当前状态与最近摘要。
func (a *API) MigrationStatus(c *gin.Context) {
	state, err := a.migration.State()
	if err != nil {
		respondError(c, http.StatusInternalServerError, err.Error())
		return
	}

	response := gin.H{"state": state}
	if summary, err := a.migration.StoredSummary(); err == nil && summary != nil {
		response["summary"] = summary
	}

	c.JSON(http.StatusOK, response)
}
