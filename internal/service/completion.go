package service

import "github.com/habitledger/internal/db"

// GoalSpec 以带标签联合的方式表达类别相关的目标配置，
// 让“Limiting 习惯缺失基线”这类非法状态在类型上不可表达。
type GoalSpec interface {
	isGoalSpec()
}

// FormationGoal 表示养成型目标：计数累积到 Amount 即达标。
type FormationGoal struct {
	Amount int
	Unit   string
}

// LimitingGoal 表示限制型目标：计数保持在 Amount 以内即达标，
// Baseline 是习惯养成前的参考用量，恒大于 Amount。
type LimitingGoal struct {
	Amount   int
	Baseline int
	Unit     string
}

func (FormationGoal) isGoalSpec() {}
func (LimitingGoal) isGoalSpec()  {}

// GoalSpecFor 从持久化模型还原目标联合。
// 入库前已由 validateHabitInput 把关，这里不再重复校验。
func GoalSpecFor(h db.HabitDefinition) GoalSpec {
	if h.Category == db.CategoryLimiting {
		return LimitingGoal{Amount: h.GoalAmount, Baseline: h.BaselineAmount, Unit: h.GoalUnit}
	}
	return FormationGoal{Amount: h.GoalAmount, Unit: h.GoalUnit}
}

// Evaluate 是完成判定的唯一代码路径：纯函数、全函数、无 I/O。
// entry 为 nil 表示当日没有任何记录。
// Formation：count >= goal 即完成。
// Limiting：count > 0 且 count <= goal 才算完成。count > 0 的守卫不可省略，
// 没有任何使用记录的一天是“未评估”，不是“成功克制”。
func Evaluate(h db.HabitDefinition, entry *db.ProgressEntry) bool {
	count := 0
	if entry != nil {
		count = entry.Count
	}

	switch goal := GoalSpecFor(h).(type) {
	case FormationGoal:
		return count >= goal.Amount
	case LimitingGoal:
		return count > 0 && count <= goal.Amount
	default:
		return false
	}
}
