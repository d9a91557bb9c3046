package node

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/WuKongIM/wkvr/internal/monitor"
	"github.com/WuKongIM/wkvr/pkg/vr"
	"github.com/WuKongIM/wkvr/pkg/wklog"
	"github.com/bwmarrin/snowflake"
	"github.com/lni/goutils/syncutil"
	"github.com/panjf2000/ants/v2"
	"github.com/sasha-s/go-deadlock"
	"go.uber.org/atomic"
	"go.uber.org/zap"
)

var (
	ErrStopped        = errors.New("node stopped")
	ErrWrongRecipient = errors.New("envelope not addressed to this replica")
)

// Status 副本状态快照
type Status struct {
	Pid            string   `json:"pid"`
	Role           string   `json:"role"`
	Epoch          uint64   `json:"epoch"`
	View           uint64   `json:"view"`
	Op             uint64   `json:"op"`
	CommitNum      uint64   `json:"commit_num"`
	LastNormalView uint64   `json:"last_normal_view"`
	Primary        string   `json:"primary"`
	Replicas       []string `json:"replicas"`
}

// Node 用一个协程驱动副本的状态机，所有状态迁移都在 loop 里串行执行
type Node struct {
	opts     *Options
	state    vr.State
	recvC    chan vr.Envelope
	stopper  *syncutil.Stopper
	sendPool *ants.Pool
	idGen    *snowflake.Node
	monitor  monitor.IMonitor

	stopped atomic.Bool

	mu     deadlock.RWMutex
	status Status
	wklog.Log
}

func New(opts *Options) (*Node, error) {
	n := &Node{
		opts:    opts,
		recvC:   make(chan vr.Envelope, opts.RecvQueueSize),
		stopper: syncutil.NewStopper(),
		monitor: opts.Monitor,
		Log:     wklog.NewWKLog(fmt.Sprintf("node[%s]", opts.Pid)),
	}
	if n.monitor == nil {
		n.monitor = monitor.NewMonitor(false)
	}
	var err error
	n.idGen, err = snowflake.NewNode(opts.WorkerID)
	if err != nil {
		return nil, err
	}
	n.sendPool, err = ants.NewPool(opts.SendPoolSize, ants.WithPanicHandler(func(i interface{}) {
		n.Error("send panic", zap.Any("panic", i), zap.Stack("stack"))
	}))
	if err != nil {
		return nil, err
	}

	peers := opts.Peers
	if peers == nil {
		peers = vr.NewDefaultPeers()
	}
	ctx := vr.NewContext(opts.Pid, opts.NamespaceMgr, opts.Replicas,
		vr.WithEpoch(opts.Epoch),
		vr.WithIdleTimeout(opts.IdleTimeout),
		vr.WithClock(opts.Clock),
		vr.WithBackend(opts.Backend),
	)
	n.state = vr.NewBackup(ctx, peers)
	n.updateStatus()
	n.monitor.RoleChanged(n.state.Role())
	n.monitor.ViewChanged(ctx.Epoch, ctx.View)
	return n, nil
}

func (n *Node) Start() error {
	n.stopper.RunWorker(n.loop)
	n.Info("started", zap.String("primary", n.Status().Primary), zap.Uint64("epoch", n.opts.Epoch))
	return nil
}

func (n *Node) Stop() {
	if !n.stopped.CompareAndSwap(false, true) {
		return
	}
	n.stopper.Stop()
	n.sendPool.Release()
	n.Info("stopped")
}

// Step 投递一条消息，队列满时阻塞直到 ctx 结束
func (n *Node) Step(ctx context.Context, env vr.Envelope) error {
	if env.To != n.opts.Pid {
		return ErrWrongRecipient
	}
	if n.stopped.Load() {
		return ErrStopped
	}
	select {
	case n.recvC <- env:
		return nil
	case <-n.stopper.ShouldStop():
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (n *Node) Status() Status {
	n.mu.RLock()
	defer n.mu.RUnlock()
	st := n.status
	st.Replicas = append([]string(nil), n.status.Replicas...)
	return st
}

func (n *Node) loop() {
	tk := time.NewTicker(n.opts.TickInterval)
	defer tk.Stop()
	for {
		select {
		case <-tk.C:
			cid := vr.CorrelationID(n.idGen.Generate().Int64())
			n.handle(vr.Message{MsgType: vr.MsgTick}, n.opts.Pid, cid)
		case env := <-n.recvC:
			n.handle(env.Msg, env.From, env.Cid)
		case <-n.stopper.ShouldStop():
			return
		}
	}
}

func (n *Node) handle(m vr.Message, from vr.Pid, cid vr.CorrelationID) {
	ctx := n.state.Context()
	prevRole := n.state.Role()
	prevEpoch, prevView := ctx.Epoch, ctx.View
	prevOp, prevCommitNum := ctx.Op, ctx.CommitNum

	var out vr.Outbox
	n.state = n.state.Handle(m, from, cid, &out)

	ctx = n.state.Context()
	role := n.state.Role()
	if ctx.Op > prevOp && m.MsgType == vr.MsgPrepare {
		n.monitor.PrepareAccepted(int(ctx.Op - prevOp))
	}
	if ctx.CommitNum > prevCommitNum {
		n.monitor.OpsCommitted(int(ctx.CommitNum - prevCommitNum))
	}
	if ctx.Op != prevOp || ctx.CommitNum != prevCommitNum {
		n.monitor.CommitNumChanged(ctx.Op, ctx.CommitNum)
	}
	if ctx.Epoch != prevEpoch || ctx.View != prevView {
		n.monitor.ViewChanged(ctx.Epoch, ctx.View)
	}
	if role != prevRole {
		n.Info("role changed", zap.String("from", prevRole.String()), zap.String("to", role.String()), zap.Uint64("epoch", ctx.Epoch), zap.Uint64("view", ctx.View))
		n.monitor.RoleChanged(role)
		switch role {
		case vr.RoleStateTransfer:
			n.monitor.StateTransferStarted()
		case vr.RoleStartViewChange, vr.RoleDoViewChange:
			n.monitor.ViewChangeStarted()
		}
	}
	n.dispatch(out)
	n.updateStatus()
}

func (n *Node) dispatch(out vr.Outbox) {
	for _, env := range out {
		n.monitor.OutboundSent(env.Msg.MsgType.String())
		if env.To == n.opts.NamespaceMgr && n.opts.OnNamespace != nil {
			n.opts.OnNamespace(env)
			continue
		}
		if n.opts.Transport == nil {
			continue
		}
		env := env
		err := n.sendPool.Submit(func() {
			if err := n.opts.Transport.Send(env); err != nil {
				n.Warn("send failed", zap.Error(err), zap.String("to", env.To.String()), zap.String("msgType", env.Msg.MsgType.String()))
			}
		})
		if err != nil {
			n.Error("submit send task failed", zap.Error(err), zap.String("to", env.To.String()))
		}
	}
}

func (n *Node) updateStatus() {
	ctx := n.state.Context()
	replicas := make([]string, 0, len(ctx.NewConfig.Replicas))
	for _, r := range ctx.NewConfig.Replicas {
		replicas = append(replicas, r.String())
	}
	n.mu.Lock()
	n.status = Status{
		Pid:            ctx.Pid.String(),
		Role:           n.state.Role().String(),
		Epoch:          ctx.Epoch,
		View:           ctx.View,
		Op:             ctx.Op,
		CommitNum:      ctx.CommitNum,
		LastNormalView: ctx.LastNormalView,
		Primary:        ctx.Primary.String(),
		Replicas:       replicas,
	}
	n.mu.Unlock()
}
