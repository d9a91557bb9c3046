package kvbackend

import (
	"github.com/WuKongIM/wkvr/pkg/vr"
	"github.com/WuKongIM/wkvr/pkg/wklog"
	"github.com/sasha-s/go-deadlock"
	"go.uber.org/atomic"
	"go.uber.org/zap"
)

var _ vr.Backend = (*MemoryBackend)(nil)

// MemoryBackend 内存键值存储
type MemoryBackend struct {
	mu      deadlock.RWMutex
	data    map[string][]byte
	applied []vr.ClientRequest // 最近执行的请求，最多 history 条
	history int
	clients *clientTable

	appliedCount atomic.Uint64 // 执行的请求总数
	skipped      atomic.Uint64 // 重复而跳过的请求数
	wklog.Log
}

func NewMemoryBackend(opt ...Option) (*MemoryBackend, error) {
	opts := NewOptions(opt...)
	clients, err := newClientTable(opts.DedupCacheSize)
	if err != nil {
		return nil, err
	}
	return &MemoryBackend{
		data:    make(map[string][]byte),
		history: opts.AppliedHistory,
		clients: clients,
		Log:     wklog.NewWKLog("memoryBackend"),
	}, nil
}

func (m *MemoryBackend) Apply(req vr.ClientRequest) error {
	cmd, err := DecodeCommand(req.Op)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if req.ClientID != "" {
		last, ok := m.clients.get(req.ClientID)
		if duplicate(last, ok, req.RequestNum) {
			m.skipped.Inc()
			m.Debug("skip duplicate request", zap.String("clientID", req.ClientID), zap.Uint64("requestNum", req.RequestNum), zap.Uint64("last", last))
			return nil
		}
		m.clients.set(req.ClientID, req.RequestNum)
	}

	switch cmd.Type {
	case CmdSet:
		m.data[cmd.Key] = cmd.Value
	case CmdDelete:
		delete(m.data, cmd.Key)
	}
	m.appliedCount.Inc()
	if m.history > 0 {
		if len(m.applied) >= m.history {
			n := copy(m.applied, m.applied[len(m.applied)-m.history+1:])
			m.applied = m.applied[:n]
		}
		m.applied = append(m.applied, req)
	}
	return nil
}

func (m *MemoryBackend) Get(key string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	value, ok := m.data[key]
	if !ok {
		return nil, ErrNotFound
	}
	return value, nil
}

// Applied 按执行顺序返回最近执行的请求
func (m *MemoryBackend) Applied() []vr.ClientRequest {
	m.mu.RLock()
	defer m.mu.RUnlock()
	applied := make([]vr.ClientRequest, len(m.applied))
	copy(applied, m.applied)
	return applied
}

func (m *MemoryBackend) AppliedCount() uint64 {
	return m.appliedCount.Load()
}

// SkippedCount 因请求号重复而没有执行的请求数
func (m *MemoryBackend) SkippedCount() uint64 {
	return m.skipped.Load()
}

func (m *MemoryBackend) Close() error {
	return nil
}
