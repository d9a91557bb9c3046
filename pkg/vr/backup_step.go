package vr

import (
	"go.uber.org/zap"
)

func (b *Backup) handlePrepare(m Message, from Pid, cid CorrelationID, out *Outbox) State {
	if !isFresh(b.ctx, m) {
		b.Debug("ignore prepare", zap.Uint64("epoch", m.Epoch), zap.Uint64("view", m.View), zap.Uint64("localEpoch", b.ctx.Epoch), zap.Uint64("localView", b.ctx.View))
		return b
	}
	if !m.Entry.Kind.Valid() {
		b.Debug("ignore prepare with invalid entry", zap.Uint64("op", m.Op), zap.String("from", from.String()), zap.Uint8("kind", uint8(m.Entry.Kind)))
		return b
	}
	b.ctx.touch()
	switch {
	case m.Op == b.ctx.Op+1: // 下一条日志
		b.ctx.Log = append(b.ctx.Log[:b.ctx.Op], m.Entry)
		b.ctx.Op++
		b.sendToPrimary(b.prepareOkMsg(), cid, out)
		return b.commit(m.CommitNum, out)
	case m.Op > b.ctx.Op+1: // 中间缺了日志，不缓存，直接状态转移
		b.Info("prepare gap, start state transfer", zap.Uint64("op", m.Op), zap.Uint64("localOp", b.ctx.Op), zap.String("from", from.String()))
		return b.startStateTransfer(out)
	}
	// 重复的旧提议
	return b
}

func (b *Backup) handleCommit(m Message, out *Outbox) State {
	if !isFresh(b.ctx, m) {
		b.Debug("ignore commit", zap.Uint64("epoch", m.Epoch), zap.Uint64("view", m.View), zap.Uint64("localEpoch", b.ctx.Epoch), zap.Uint64("localView", b.ctx.View))
		return b
	}
	b.ctx.touch()
	switch {
	case m.CommitNum <= b.ctx.CommitNum: // 已经是最新，更小的是本视图的旧消息
		return b
	case m.CommitNum == b.ctx.Op:
		return b.commit(m.CommitNum, out)
	}
	b.Info("commit gap, start state transfer", zap.Uint64("commitNum", m.CommitNum), zap.Uint64("localOp", b.ctx.Op), zap.Uint64("localCommitNum", b.ctx.CommitNum))
	return b.startStateTransfer(out)
}

func (b *Backup) handleStartViewChange(m Message, from Pid, out *Outbox) State {
	// 旧的直接忽略；新纪元的也忽略，等选出主节点后再状态转移
	if !isFresh(b.ctx, m) {
		return b
	}
	b.Info("start view change", zap.Uint64("view", m.View), zap.String("from", from.String()))
	return b.peers.ViewChange.StartViewChange(b.take(), from, m, out)
}

func (b *Backup) handleDoViewChange(m Message, from Pid, out *Outbox) State {
	// 没有参与重新配置的副本不知道新纪元的法定人数，不能在这里成为主节点
	if !isFresh(b.ctx, m) {
		return b
	}
	b.Info("do view change", zap.Uint64("view", m.View), zap.String("from", from.String()))
	return b.peers.ViewChange.DoViewChange(b.take(), from, m, out)
}

func (b *Backup) handleStartView(m Message, out *Outbox) State {
	if !isFresh(b.ctx, m) {
		return b
	}
	if !ValidLog(m.Log) {
		b.Debug("ignore start view with invalid log", zap.Uint64("view", m.View), zap.Int("logLen", len(m.Log)))
		return b
	}
	// 纪元更大时通过重放日志学习新配置
	return BecomeBackup(b.take(), b.peers, m.View, m.Op, m.Log, m.CommitNum, out)
}

func (b *Backup) handleTick(cid CorrelationID, out *Outbox) State {
	if !b.ctx.IdleTimeoutElapsed() {
		return b
	}
	b.ctx.touch()
	b.ctx.View++
	b.ctx.RecomputePrimary(out)
	b.Info("primary idle timeout, start view change", zap.Uint64("epoch", b.ctx.Epoch), zap.Uint64("view", b.ctx.View))
	b.broadcastStartViewChange(cid, out)
	return b.peers.ViewChange.Begin(b.take())
}

func (b *Backup) handleGetState(m Message, from Pid, cid CorrelationID, out *Outbox) State {
	if !isFresh(b.ctx, m) {
		return b
	}
	out.Send(b.peers.StateTransfer.NewState(b.ctx, m.Op, from, cid))
	return b
}

func (b *Backup) handleRecovery(m Message, from Pid, cid CorrelationID, out *Outbox) State {
	out.Send(b.peers.Recovery.Respond(b.ctx, from, m.Nonce, cid))
	return b
}

func (b *Backup) handleStartEpoch(from Pid, cid CorrelationID, out *Outbox) State {
	b.peers.Reconfiguration.EpochStarted(b.ctx, from, cid, out)
	return b
}

func (b *Backup) startStateTransfer(out *Outbox) State {
	return b.peers.StateTransfer.StartSameView(b.take(), out)
}
