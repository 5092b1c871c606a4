package service

import (
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/habitledger/internal/db"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// DailyAwardXP 是整日达成时记入账本的奖励值。
const DailyAwardXP = 50

// XPService 维护只追加的经验值流水。
// 每个日期最多存在一笔未冲正的奖励；冲正写入与原奖励等额的负向流水，
// 保证精确抵消而不是按公式重算。totalXP/level 是派生缓存，
// 随时可由流水求和重建，巡检发现偏差时自动修复。

type XPService struct {
	db     *gorm.DB
	userID string
}

// NewXPService 构造 XPService
func NewXPService(gdb *gorm.DB, userID string) *XPService {
	return &XPService{db: gdb, userID: userID}
}

// Award 为指定日期记一笔奖励流水。
// 该日期已有未冲正的奖励时拒绝，保证重复触发不会重复加分。
func (s *XPService) Award(dateKey string, amount int, reason string) (*db.XPTransaction, error) {
	if amount <= 0 {
		return nil, fmt.Errorf("%w: award amount must be positive", ErrValidation)
	}
	if _, err := ParseDateKey(dateKey); err != nil {
		return nil, fmt.Errorf("%w: invalid date key %q", ErrValidation, dateKey)
	}

	outstanding, err := s.outstandingAward(dateKey)
	if err != nil {
		return nil, err
	}
	if outstanding != nil {
		return nil, ErrDuplicateAward
	}

	tx := db.XPTransaction{
		TxID:    uuid.NewString(),
		UserID:  s.userID,
		DateKey: dateKey,
		Delta:   amount,
		Reason:  normalizeReason(reason, db.XPReasonDailyComplete),
	}
	if err := s.db.Create(&tx).Error; err != nil {
		return nil, fmt.Errorf("append xp award: %w", err)
	}

	if _, err := s.RefreshState(); err != nil {
		return nil, err
	}
	return &tx, nil
}

// Reverse 冲正指定日期的奖励：写入与原奖励等额的负向流水。
// 没有未冲正奖励时拒绝。
func (s *XPService) Reverse(dateKey string, reason string) (*db.XPTransaction, error) {
	outstanding, err := s.outstandingAward(dateKey)
	if err != nil {
		return nil, err
	}
	if outstanding == nil {
		return nil, ErrNoAwardToReverse
	}

	tx := db.XPTransaction{
		TxID:    uuid.NewString(),
		UserID:  s.userID,
		DateKey: dateKey,
		Delta:   -outstanding.Delta,
		Reason:  normalizeReason(reason, db.XPReasonDailyReversal),
	}
	if err := s.db.Create(&tx).Error; err != nil {
		return nil, fmt.Errorf("append xp reversal: %w", err)
	}

	if _, err := s.RefreshState(); err != nil {
		return nil, err
	}
	return &tx, nil
}

// AppendImport 为迁移写入一笔历史存量流水。
func (s *XPService) AppendImport(amount int) (*db.XPTransaction, error) {
	if amount <= 0 {
		return nil, fmt.Errorf("%w: import amount must be positive", ErrValidation)
	}

	tx := db.XPTransaction{
		TxID:   uuid.NewString(),
		UserID: s.userID,
		Delta:  amount,
		Reason: db.XPReasonLegacyImport,
	}
	if err := s.db.Create(&tx).Error; err != nil {
		return nil, fmt.Errorf("append xp import: %w", err)
	}

	if _, err := s.RefreshState(); err != nil {
		return nil, err
	}
	return &tx, nil
}

// outstandingAward 返回该日期最近一笔尚未被冲正的奖励。
// 按“每个日期奖励与冲正成对出现”的不变量，净和大于零即存在未冲正奖励。
func (s *XPService) outstandingAward(dateKey string) (*db.XPTransaction, error) {
	var txs []db.XPTransaction
	if err := s.db.Where("user_id = ? AND date_key = ?", s.userID, dateKey).
		Where("reason <> ?", db.XPReasonLegacyImport).
		Order("id ASC").Find(&txs).Error; err != nil {
		return nil, fmt.Errorf("list xp transactions for date: %w", err)
	}

	net := 0
	var lastAward *db.XPTransaction
	for i := range txs {
		net += txs[i].Delta
		if txs[i].Delta > 0 {
			lastAward = &txs[i]
		}
	}
	if net > 0 {
		return lastAward, nil
	}
	return nil, nil
}

// TotalFromLedger 对流水求和，是经验值的权威口径。
func (s *XPService) TotalFromLedger() (int, error) {
	var total int64
	if err := s.db.Model(&db.XPTransaction{}).
		Where("user_id = ?", s.userID).
		Select("COALESCE(SUM(delta), 0)").Scan(&total).Error; err != nil {
		return 0, fmt.Errorf("sum xp ledger: %w", err)
	}
	return int(total), nil
}

// State 返回缓存的进度状态，不存在时返回零值。
func (s *XPService) State() (*db.UserProgressState, error) {
	var state db.UserProgressState
	err := s.db.Where("user_id = ?", s.userID).First(&state).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return &db.UserProgressState{UserID: s.userID, Level: LevelForXP(0)}, nil
	case err != nil:
		return nil, fmt.Errorf("load user progress state: %w", err)
	}
	return &state, nil
}

// RefreshState 由流水重建缓存并落库。
func (s *XPService) RefreshState() (*db.UserProgressState, error) {
	total, err := s.TotalFromLedger()
	if err != nil {
		return nil, err
	}

	state, err := s.State()
	if err != nil {
		return nil, err
	}
	state.UserID = s.userID
	state.TotalXP = total
	state.Level = LevelForXP(total)

	if err := s.db.Save(state).Error; err != nil {
		return nil, fmt.Errorf("save user progress state: %w", err)
	}
	return state, nil
}

// VerifyIntegrity 比对缓存与流水求和，偏差时记录告警并自动修复。
// 返回值表示巡检前缓存是否一致。
func (s *XPService) VerifyIntegrity() (bool, error) {
	total, err := s.TotalFromLedger()
	if err != nil {
		return false, err
	}
	state, err := s.State()
	if err != nil {
		return false, err
	}

	if state.TotalXP == total && state.Level == LevelForXP(total) {
		return true, nil
	}

	log.Printf("warning: xp cache mismatch (cached=%d ledger=%d), repairing from ledger", state.TotalXP, total)
	if _, err := s.RefreshState(); err != nil {
		return false, err
	}
	return false, nil
}

// Transactions 返回最近的流水，limit <= 0 时返回全部。
func (s *XPService) Transactions(limit int) ([]db.XPTransaction, error) {
	query := s.db.Where("user_id = ?", s.userID).Order("id DESC")
	if limit > 0 {
		query = query.Limit(limit)
	}

	var txs []db.XPTransaction
	if err := query.Find(&txs).Error; err != nil {
		return nil, fmt.Errorf("list xp transactions: %w", err)
	}
	return txs, nil
}

// LevelForXP 是经验值到等级的单调阈值函数：
// 升到第 n 级累计需要 50·n·(n-1) 经验。
func LevelForXP(totalXP int) int {
	if totalXP < 0 {
		totalXP = 0
	}
	level := 1
	for 50*(level+1)*level <= totalXP {
		level++
	}
	return level
}

func normalizeReason(reason, fallback string) string {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return fallback
	}
	return reason
}
