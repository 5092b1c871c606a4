package sync

// MergeDocuments 按冲突策略合并远端已有文档与本次到达的文档：
// 元数据字段按 UpdatedAt 最后写入者胜；计数字段逐键取大，
// 整体 UpdatedAt 取两者较新值。
//
// 注意：两台离线设备同天编辑 Limiting 习惯用量时取大是否符合产品意图
// 尚未确认，暂按取大处理。
func MergeDocuments(existing, incoming Document) Document {
	merged := Document{
		Key:      incoming.Key,
		Metadata: make(map[string]string),
		Counts:   make(map[string]int),
	}

	newer, older := incoming, existing
	if existing.UpdatedAt.After(incoming.UpdatedAt) {
		newer, older = existing, incoming
	}
	merged.UpdatedAt = newer.UpdatedAt

	for k, v := range older.Metadata {
		merged.Metadata[k] = v
	}
	for k, v := range newer.Metadata {
		merged.Metadata[k] = v
	}

	for k, v := range existing.Counts {
		merged.Counts[k] = v
	}
	for k, v := range incoming.Counts {
		if current, ok := merged.Counts[k]; !ok || v > current {
			merged.Counts[k] = v
		}
	}

	return merged
}
