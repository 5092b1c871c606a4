package sync

import (
	"context"
	"errors"
	stdsync "sync"
)

// ErrRemoteUnavailable 表示远端不可达或拒绝写入。
// 本地写入此时已提交，变更保持 pending 等待重试。
var ErrRemoteUnavailable = errors.New("remote store unavailable")

// RemoteStore 是远端镜像的能力抽象：按用户分片的文档接口。
// Deliver 必须按 Mutation.ID 幂等，重复投递同一变更不得产生副作用。
type RemoteStore interface {
	Deliver(ctx context.Context, m Mutation) error
}

// MemoryRemote 是进程内的远端镜像实现，测试与本地开发使用。
// FailNext 可注入连续失败次数以模拟远端不可达。
type MemoryRemote struct {
	mu       stdsync.Mutex
	docs     map[string]Document
	seen     map[string]struct{}
	FailNext int
	Delivers int
}

// NewMemoryRemote 构造 MemoryRemote
func NewMemoryRemote() *MemoryRemote {
	return &MemoryRemote{
		docs: make(map[string]Document),
		seen: make(map[string]struct{}),
	}
}

// Deliver 按幂等键去重后做读-合并-写。
func (r *MemoryRemote) Deliver(ctx context.Context, m Mutation) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.FailNext > 0 {
		r.FailNext--
		return ErrRemoteUnavailable
	}

	if _, done := r.seen[m.ID]; done {
		return nil
	}
	r.seen[m.ID] = struct{}{}
	r.Delivers++

	key := m.Kind + "/" + m.Document.Key
	if existing, ok := r.docs[key]; ok {
		r.docs[key] = MergeDocuments(existing, m.Document)
	} else {
		r.docs[key] = m.Document
	}
	return nil
}

// Document 返回镜像中的文档副本，测试断言使用。
func (r *MemoryRemote) Document(kind, key string) (Document, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	doc, ok := r.docs[kind+"/"+key]
	return doc, ok
}
