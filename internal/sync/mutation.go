package sync

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// 变更类型，决定远端镜像的集合与合并策略。
const (
	MutationHabitUpsert    = "habit_upsert"
	MutationHabitDelete    = "habit_delete"
	MutationProgressUpsert = "progress_upsert"
	MutationXPAppend       = "xp_append"
	MutationStreakState    = "streak_state"
)

// Mutation 是一次待镜像的本地变更。
// ID 为幂等键：远端按它去重，队列重放不会造成重复投递。
type Mutation struct {
	ID       string   `json:"id"`
	UserID   string   `json:"user_id"`
	Kind     string   `json:"kind"`
	Document Document `json:"document"`
}

// Document 是远端镜像中的文档形态。
// Metadata 走按时间戳的最后写入者胜，Counts 走字段级取大合并，
// 避免第二台设备并发记录的进度被整条覆盖丢失。
type Document struct {
	Key       string            `json:"key" bson:"key"`
	UpdatedAt time.Time         `json:"updated_at" bson:"updated_at"`
	Metadata  map[string]string `json:"metadata" bson:"metadata"`
	Counts    map[string]int    `json:"counts" bson:"counts"`
}

// NewMutation 构造带新幂等键的变更。
func NewMutation(userID, kind string, doc Document) Mutation {
	return Mutation{
		ID:       uuid.NewString(),
		UserID:   userID,
		Kind:     kind,
		Document: doc,
	}
}

// Encode 序列化变更负载，入发件箱时使用。
func (m Mutation) Encode() (string, error) {
	data, err := json.Marshal(m)
	if err != nil {
		return "", fmt.Errorf("encode mutation: %w", err)
	}
	return string(data), nil
}

// DecodeMutation 反序列化发件箱负载。
func DecodeMutation(raw string) (Mutation, error) {
	var m Mutation
	if err := json.Unmarshal([]byte(raw), &m); err != nil {
		return Mutation{}, fmt.Errorf("decode mutation: %w", err)
	}
	return m, nil
}
