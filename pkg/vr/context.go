package vr

import (
	"fmt"
	"sort"
	"time"

	"github.com/WuKongIM/wkvr/pkg/wklog"
	"go.uber.org/zap"
)

const DefaultIdleTimeout = time.Millisecond * 2000

// Clock 时间来源，测试时可替换
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// SystemClock 系统单调时钟
var SystemClock Clock = systemClock{}

// Backend 执行已提交的客户端操作
type Backend interface {
	Apply(req ClientRequest) error
}

// Context 副本的复制上下文，同一时刻只属于一个角色
type Context struct {
	Pid          Pid
	NamespaceMgr Pid // 命名空间管理器

	Epoch          uint64
	View           uint64
	Op             uint64 // 已准备的最大日志下标
	CommitNum      uint64 // 已提交的最大日志下标
	Log            []ClientOp
	LastNormalView uint64

	LastReceivedTime time.Time
	IdleTimeout      time.Duration

	OldConfig VersionedReplicas
	NewConfig VersionedReplicas

	Primary                   Pid // 当前 (epoch, view, membership) 下计算出的主节点
	ReconfigurationInProgress bool

	Clock   Clock
	Backend Backend

	logger wklog.Log
}

func NewContext(pid Pid, namespaceMgr Pid, replicas []Pid, optList ...ContextOption) *Context {
	ctx := &Context{
		Pid:          pid,
		NamespaceMgr: namespaceMgr,
		IdleTimeout:  DefaultIdleTimeout,
		Clock:        SystemClock,
		logger:       wklog.NewWKLog(fmt.Sprintf("vrCtx[%s]", pid)),
	}
	for _, opt := range optList {
		opt(ctx)
	}
	ctx.NewConfig = VersionedReplicas{
		Epoch:    ctx.Epoch,
		Replicas: sortedReplicas(replicas),
	}
	ctx.OldConfig = VersionedReplicas{Epoch: ctx.Epoch}
	ctx.LastReceivedTime = ctx.Clock.Now()
	ctx.Primary = ctx.ComputePrimary()
	return ctx
}

type ContextOption func(ctx *Context)

func WithEpoch(epoch uint64) ContextOption {
	return func(ctx *Context) {
		ctx.Epoch = epoch
	}
}

func WithView(view uint64) ContextOption {
	return func(ctx *Context) {
		ctx.View = view
	}
}

func WithIdleTimeout(timeout time.Duration) ContextOption {
	return func(ctx *Context) {
		ctx.IdleTimeout = timeout
	}
}

func WithClock(clock Clock) ContextOption {
	return func(ctx *Context) {
		ctx.Clock = clock
	}
}

func WithBackend(backend Backend) ContextOption {
	return func(ctx *Context) {
		ctx.Backend = backend
	}
}

// ComputePrimary 主节点由 view 和当前配置唯一决定
func (c *Context) ComputePrimary() Pid {
	replicas := c.NewConfig.Replicas
	if len(replicas) == 0 {
		return Pid{}
	}
	return replicas[c.View%uint64(len(replicas))]
}

func (c *Context) IsPrimary() bool {
	return c.ComputePrimary() == c.Pid
}

// IsLeaving 本副本在旧配置中但不在新配置中
func (c *Context) IsLeaving() bool {
	return c.OldConfig.Contains(c.Pid) && !c.NewConfig.Contains(c.Pid)
}

// IdleTimeoutElapsed 距离上次收到主节点消息是否已超时
func (c *Context) IdleTimeoutElapsed() bool {
	return c.Clock.Now().Sub(c.LastReceivedTime) >= c.IdleTimeout
}

// RecomputePrimary 重新计算主节点，变化时通知命名空间管理器
func (c *Context) RecomputePrimary(out *Outbox) {
	primary := c.ComputePrimary()
	if primary == c.Primary {
		return
	}
	c.Primary = primary
	out.Send(c.namespaceEnvelope(Message{
		MsgType: MsgNewPrimary,
		Epoch:   c.Epoch,
		View:    c.View,
		Primary: primary,
	}, 0))
}

func (c *Context) touch() {
	c.LastReceivedTime = c.Clock.Now()
}

// UpdateForNewEpoch 提交了重新配置后切换成员
func (c *Context) UpdateForNewEpoch(op uint64, replicas []Pid) {
	c.LastReceivedTime = c.Clock.Now()
	c.OldConfig = c.NewConfig
	c.NewConfig = VersionedReplicas{
		Epoch:    c.Epoch,
		Op:       op,
		Replicas: sortedReplicas(replicas),
	}
	c.logger.Info("update for new epoch", zap.Uint64("epoch", c.Epoch), zap.Uint64("op", op), zap.Int("replicas", len(replicas)))
}

// ReplicasWithoutSelf 当前配置中除自己以外的副本
func (c *Context) ReplicasWithoutSelf() []Pid {
	peers := make([]Pid, 0, len(c.NewConfig.Replicas))
	for _, r := range c.NewConfig.Replicas {
		if r == c.Pid {
			continue
		}
		peers = append(peers, r)
	}
	return peers
}

// RemovedReplicas 旧配置中被新配置移除的副本
func (c *Context) RemovedReplicas() []Pid {
	var removed []Pid
	for _, r := range c.OldConfig.Replicas {
		if !c.NewConfig.Contains(r) {
			removed = append(removed, r)
		}
	}
	return removed
}

func (c *Context) namespaceEnvelope(m Message, cid CorrelationID) Envelope {
	return Envelope{
		To:   c.NamespaceMgr,
		From: c.Pid,
		Cid:  cid,
		Msg:  m,
	}
}

func (c *Context) checkInvariants() {
	if c.CommitNum > c.Op || c.Op > uint64(len(c.Log)) {
		c.logger.Panic("replication context invariant broken", zap.Uint64("commitNum", c.CommitNum), zap.Uint64("op", c.Op), zap.Int("logLen", len(c.Log)))
	}
}

func sortedReplicas(replicas []Pid) []Pid {
	sorted := make([]Pid, len(replicas))
	copy(sorted, replicas)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].Node != sorted[j].Node {
			return sorted[i].Node < sorted[j].Node
		}
		return sorted[i].Name < sorted[j].Name
	})
	return sorted
}
