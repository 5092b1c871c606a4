package service

import "errors"

var (
	// ErrValidation 表示输入在持久化前未通过校验，调用方不应重试原样输入。
	ErrValidation = errors.New("validation failed")
	// ErrHabitNotFound 在指定习惯不存在时返回。
	ErrHabitNotFound = errors.New("habit not found")
	// ErrProgressNotFound 在指定日期没有进度记录时返回。
	ErrProgressNotFound = errors.New("progress entry not found")
	// ErrDuplicateAward 表示该日期已有未冲正的奖励流水。
	ErrDuplicateAward = errors.New("xp already awarded for date")
	// ErrNoAwardToReverse 表示该日期没有可冲正的奖励流水。
	ErrNoAwardToReverse = errors.New("no outstanding xp award for date")
	// ErrMigrationState 表示迁移操作与当前状态机状态不符。
	ErrMigrationState = errors.New("migration state does not permit operation")
)
