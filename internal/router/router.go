package router

import (
	"github.com/gin-gonic/gin"
	"github.com/habitledger/internal/handler"
)

// SetupRouter 配置 Gin 引擎和路由
func SetupRouter(api *handler.API) *gin.Engine {
	r := gin.Default()

	r.GET("/ping", func(c *gin.Context) {
		c.JSON(200, gin.H{
			"message": "pong",
		})
	})

	apiGroup := r.Group("/api")
	{
		habits := apiGroup.Group("/habits")
		{
			habits.GET("", api.ListHabits)
			habits.POST("", api.CreateHabit)
			habits.GET("/:id", api.GetHabit)
			habits.PUT("/:id", api.UpdateHabit)
			habits.DELETE("/:id", api.DeleteHabit)
			habits.POST("/:id/archive", api.ArchiveHabit)

			habits.POST("/:id/progress", api.LogProgress)
			habits.GET("/:id/progress", api.ListProgress)
			habits.DELETE("/:id/progress", api.ResetProgress)
		}

		apiGroup.GET("/streak", api.GetStreak)
		apiGroup.GET("/xp", api.GetXP)
		apiGroup.GET("/xp/transactions", api.ListXPTransactions)

		migration := apiGroup.Group("/migration")
		{
			migration.POST("/legacy", api.ImportLegacyRecords)
			migration.POST("/dry-run", api.MigrationDryRun)
			migration.POST("/migrate", api.Migrate)
			migration.POST("/validate", api.ValidateMigration)
			migration.POST("/rollback", api.RollbackMigration)
			migration.GET("/status", api.MigrationStatus)
		}

		syncGroup := apiGroup.Group("/sync")
		{
			syncGroup.GET("/status", api.GetSyncStatus)
			syncGroup.PUT("/mode", api.SetSyncMode)
		}
	}

	return r
}
