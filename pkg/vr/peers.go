package vr

import (
	"github.com/google/uuid"
)

// StateTransfer 状态转移协议（拉取缺失的日志）
type StateTransfer interface {
	// StartSameView 在当前 view 内发起状态转移，返回状态转移角色
	StartSameView(ctx *Context, out *Outbox) State
	// NewState 响应 GetState，返回 op 之后的日志
	NewState(ctx *Context, op uint64, to Pid, cid CorrelationID) Envelope
}

// Recovery 恢复协议
type Recovery interface {
	Respond(ctx *Context, to Pid, nonce uuid.UUID, cid CorrelationID) Envelope
}

// Reconfigurer 纪元切换
type Reconfigurer interface {
	// EpochStarted 响应 StartEpoch
	EpochStarted(ctx *Context, to Pid, cid CorrelationID, out *Outbox)
	// BroadcastEpochStarted 通知被移除的副本新纪元已开始
	BroadcastEpochStarted(ctx *Context, out *Outbox)
}

// ViewChange 视图变更，法定人数与日志合并都在实现方
type ViewChange interface {
	StartViewChange(ctx *Context, from Pid, m Message, out *Outbox) State
	DoViewChange(ctx *Context, from Pid, m Message, out *Outbox) State
	// Begin 本地超时后进入发起视图变更的角色
	Begin(ctx *Context) State
}

// Peers 备份节点可以迁移到或委托的其他角色
type Peers struct {
	Primary         func(ctx *Context) State
	Leaving         func(ctx *Context) State
	StateTransfer   StateTransfer
	Recovery        Recovery
	Reconfiguration Reconfigurer
	ViewChange      ViewChange
}

// NewDefaultPeers 协议逻辑不在本仓库的角色都用 Parked 占位，
// 响应类消息（NewState、RecoveryResponse、EpochStarted）直接由上下文构造。
func NewDefaultPeers() *Peers {
	p := &Peers{}
	p.Primary = func(ctx *Context) State { return NewParked(RolePrimary, ctx, p) }
	p.Leaving = func(ctx *Context) State { return NewParked(RoleLeaving, ctx, p) }
	p.StateTransfer = &defaultStateTransfer{peers: p}
	p.Recovery = defaultRecovery{}
	p.Reconfiguration = defaultReconfiguration{}
	p.ViewChange = &defaultViewChange{peers: p}
	return p
}

type defaultStateTransfer struct {
	peers *Peers
}

func (d *defaultStateTransfer) StartSameView(ctx *Context, out *Outbox) State {
	if !ctx.Primary.IsEmpty() && ctx.Primary != ctx.Pid {
		out.Send(Envelope{
			To:   ctx.Primary,
			From: ctx.Pid,
			Msg: Message{
				MsgType: MsgGetState,
				Epoch:   ctx.Epoch,
				View:    ctx.View,
				Op:      ctx.Op,
			},
		})
	}
	return NewParked(RoleStateTransfer, ctx, d.peers)
}

func (d *defaultStateTransfer) NewState(ctx *Context, op uint64, to Pid, cid CorrelationID) Envelope {
	var suffix []ClientOp
	if op < ctx.Op {
		suffix = make([]ClientOp, ctx.Op-op)
		copy(suffix, ctx.Log[op:ctx.Op])
	}
	return Envelope{
		To:   to,
		From: ctx.Pid,
		Cid:  cid,
		Msg: Message{
			MsgType:   MsgNewState,
			Epoch:     ctx.Epoch,
			View:      ctx.View,
			Op:        ctx.Op,
			CommitNum: ctx.CommitNum,
			Log:       suffix,
		},
	}
}

type defaultRecovery struct{}

func (defaultRecovery) Respond(ctx *Context, to Pid, nonce uuid.UUID, cid CorrelationID) Envelope {
	m := Message{
		MsgType: MsgRecoveryResponse,
		Epoch:   ctx.Epoch,
		View:    ctx.View,
		Nonce:   nonce,
		From:    ctx.Pid,
	}
	// 只有主节点的响应携带日志
	if ctx.IsPrimary() {
		m.Op = ctx.Op
		m.CommitNum = ctx.CommitNum
		m.Log = append([]ClientOp(nil), ctx.Log...)
	}
	return Envelope{To: to, From: ctx.Pid, Cid: cid, Msg: m}
}

type defaultReconfiguration struct{}

func (defaultReconfiguration) EpochStarted(ctx *Context, to Pid, cid CorrelationID, out *Outbox) {
	out.Send(Envelope{
		To:   to,
		From: ctx.Pid,
		Cid:  cid,
		Msg:  Message{MsgType: MsgEpochStarted, Epoch: ctx.Epoch, From: ctx.Pid},
	})
}

func (defaultReconfiguration) BroadcastEpochStarted(ctx *Context, out *Outbox) {
	for _, r := range ctx.RemovedReplicas() {
		out.Send(Envelope{
			To:   r,
			From: ctx.Pid,
			Msg:  Message{MsgType: MsgEpochStarted, Epoch: ctx.Epoch, From: ctx.Pid},
		})
	}
}

type defaultViewChange struct {
	peers *Peers
}

func (d *defaultViewChange) StartViewChange(ctx *Context, from Pid, m Message, out *Outbox) State {
	ctx.View = m.View
	ctx.RecomputePrimary(out)
	return NewParked(RoleStartViewChange, ctx, d.peers)
}

func (d *defaultViewChange) DoViewChange(ctx *Context, from Pid, m Message, out *Outbox) State {
	ctx.View = m.View
	ctx.RecomputePrimary(out)
	return NewParked(RoleDoViewChange, ctx, d.peers)
}

func (d *defaultViewChange) Begin(ctx *Context) State {
	return NewParked(RoleStartViewChange, ctx, d.peers)
}
