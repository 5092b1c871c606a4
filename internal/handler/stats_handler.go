package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/habitledger/internal/db"
)

// GetStreak 返回全局连胜状态。
func (a *API) GetStreak(c *gin.Context) {
	state, err := a.streak.State()
	if err != nil {
		respondError(c, http.StatusInternalServerError, "failed to load streak state")
		return
	}

	c.JSON(http.StatusOK, streakToResponse(state))
}

// GetXP 返回经验值与等级。返回前做一次缓存与流水的比对，
// 偏差会被自动修复，客户端总能看到与账本一致的数值。
func (a *API) GetXP(c *gin.Context) {
	if _, err := a.xp.VerifyIntegrity(); err != nil {
		respondError(c, http.StatusInternalServerError, "failed to verify xp ledger")
		return
	}

	state, err := a.xp.State()
	if err != nil {
		respondError(c, http.StatusInternalServerError, "failed to load xp state")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"total_xp": state.TotalXP,
		"level":    state.Level,
	})
}

// ListXPTransactions 返回最近的经验值流水。
func (a *API) ListXPTransactions(c *gin.Context) {
	txs, err := a.xp.Transactions(100)
	if err != nil {
		respondError(c, http.StatusInternalServerError, "failed to list xp transactions")
		return
	}

	items := make([]gin.H, 0, len(txs))
	for i := range txs {
		items = append(items, gin.H{
			"tx_id":      txs[i].TxID,
			"date_key":   txs[i].DateKey,
			"delta":      txs[i].Delta,
			"reason":     txs[i].Reason,
			"created_at": txs[i].CreatedAt,
		})
	}

	c.JSON(http.StatusOK, gin.H{"transactions": items})
}

func streakToResponse(state *db.GlobalStreakState) gin.H {
	return gin.H{
		"current_streak":      state.CurrentStreak,
		"longest_streak":      state.LongestStreak,
		"total_complete_days": state.TotalCompleteDays,
		"last_evaluated":      state.LastEvaluatedDate,
	}
}
