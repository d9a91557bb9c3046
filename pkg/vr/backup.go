package vr

import (
	"fmt"

	"github.com/WuKongIM/wkvr/pkg/wklog"
	"go.uber.org/zap"
)

// Backup 正常模式下的备份节点
type Backup struct {
	ctx   *Context
	peers *Peers
	wklog.Log
}

func NewBackup(ctx *Context, peers *Peers) *Backup {
	ctx.Primary = ctx.ComputePrimary()
	return newBackup(ctx, peers)
}

func newBackup(ctx *Context, peers *Peers) *Backup {
	return &Backup{
		ctx:   ctx,
		peers: peers,
		Log:   wklog.NewWKLog(fmt.Sprintf("backup[%s]", ctx.Pid)),
	}
}

func (b *Backup) Role() Role {
	return RoleBackup
}

func (b *Backup) Context() *Context {
	return b.ctx
}

func (b *Backup) Handle(m Message, from Pid, cid CorrelationID, out *Outbox) State {
	if b.ctx == nil {
		b.Panic("backup already consumed", zap.String("msgType", m.MsgType.String()))
	}
	switch m.MsgType {
	case MsgPrepare:
		return b.handlePrepare(m, from, cid, out)
	case MsgCommit:
		return b.handleCommit(m, out)
	case MsgStartViewChange:
		return b.handleStartViewChange(m, from, out)
	case MsgDoViewChange:
		return b.handleDoViewChange(m, from, out)
	case MsgStartView:
		return b.handleStartView(m, out)
	case MsgTick:
		return b.handleTick(cid, out)
	case MsgGetState:
		return b.handleGetState(m, from, cid, out)
	case MsgRecovery:
		return b.handleRecovery(m, from, cid, out)
	case MsgStartEpoch:
		return b.handleStartEpoch(from, cid, out)
	}
	return b
}

// take 把上下文交给下一个角色，之后本备份节点不可再用
func (b *Backup) take() *Context {
	ctx := b.ctx
	b.ctx = nil
	return ctx
}

func (b *Backup) sendToPrimary(m Message, cid CorrelationID, out *Outbox) {
	out.Send(Envelope{
		To:   b.ctx.Primary,
		From: b.ctx.Pid,
		Cid:  cid,
		Msg:  m,
	})
}

func (b *Backup) prepareOkMsg() Message {
	return Message{
		MsgType: MsgPrepareOk,
		Epoch:   b.ctx.Epoch,
		View:    b.ctx.View,
		Op:      b.ctx.Op,
		From:    b.ctx.Pid,
	}
}

func (b *Backup) broadcastStartViewChange(cid CorrelationID, out *Outbox) {
	for _, peer := range b.ctx.ReplicasWithoutSelf() {
		out.Send(Envelope{
			To:   peer,
			From: b.ctx.Pid,
			Cid:  cid,
			Msg: Message{
				MsgType: MsgStartViewChange,
				Epoch:   b.ctx.Epoch,
				View:    b.ctx.View,
				Op:      b.ctx.Op,
				From:    b.ctx.Pid,
			},
		})
	}
}

func (b *Backup) announceReconfiguration(out *Outbox) {
	out.Send(b.ctx.namespaceEnvelope(Message{
		MsgType:     MsgReconfigured,
		Epoch:       b.ctx.Epoch,
		Replicas:    b.ctx.NewConfig.Replicas,
		OldReplicas: b.ctx.OldConfig.Replicas,
	}, 0))
}
