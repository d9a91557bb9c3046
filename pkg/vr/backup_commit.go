package vr

import (
	"go.uber.org/zap"
)

// BecomeBackup 收到权威的 StartView 后以新视图的日志成为备份节点。
// view、op、log、lastNormalView 一次性替换后再重放已提交的日志。
func BecomeBackup(ctx *Context, peers *Peers, view, op uint64, log []ClientOp, commitNum uint64, out *Outbox) State {
	if op > uint64(len(log)) {
		op = uint64(len(log))
	}
	newLog := make([]ClientOp, len(log))
	copy(newLog, log)

	ctx.touch()
	ctx.View = view
	ctx.Op = op
	ctx.Log = newLog
	ctx.LastNormalView = view

	b := newBackup(ctx, peers)
	if ctx.CommitNum > op {
		b.Warn("start view op behind local commit num", zap.Uint64("op", op), zap.Uint64("commitNum", ctx.CommitNum))
		ctx.CommitNum = op
	}
	b.Info("become backup", zap.Uint64("epoch", ctx.Epoch), zap.Uint64("view", view), zap.Uint64("op", op), zap.Uint64("commitNum", commitNum))
	ctx.RecomputePrimary(out)
	return b.commit(commitNum, out)
}

// commit 按日志顺序提交到 newCommitNum
func (b *Backup) commit(newCommitNum uint64, out *Outbox) State {
	ctx := b.ctx
	if newCommitNum <= ctx.CommitNum {
		return b
	}
	if newCommitNum > ctx.Op {
		b.Warn("commit num beyond prepared op", zap.Uint64("commitNum", newCommitNum), zap.Uint64("op", ctx.Op))
		newCommitNum = ctx.Op
	}
	for i := ctx.CommitNum; i < newCommitNum; i++ {
		entry := ctx.Log[i]
		switch entry.Kind {
		case OpRequest:
			if ctx.Backend == nil {
				continue
			}
			if err := ctx.Backend.Apply(entry.Request); err != nil {
				b.Error("apply request failed", zap.Error(err), zap.Uint64("op", i+1), zap.String("clientID", entry.Request.ClientID), zap.Uint64("requestNum", entry.Request.RequestNum))
			}
		case OpReconfiguration:
			ctx.Epoch = entry.Reconfig.Epoch
			ctx.UpdateForNewEpoch(i+1, entry.Reconfig.Replicas)
			b.announceReconfiguration(out)
			ctx.RecomputePrimary(out)

			// 重新配置不是日志最后一条时说明已经过了切换阶段，不需要再确定角色
			if i+1 == newCommitNum && newCommitNum == uint64(len(ctx.Log)) {
				ctx.CommitNum = newCommitNum
				return b.enterTransitioning(out)
			}
		default:
			// 入口已过滤，这里只记录
			b.Error("skip unknown client op", zap.Uint64("op", i+1), zap.Uint8("kind", uint8(entry.Kind)))
		}
	}
	ctx.CommitNum = newCommitNum
	ctx.checkInvariants()
	return b
}

// enterTransitioning 刚提交了重新配置，确定自己在新纪元中的角色：
// 被移除、新纪元的主节点、或者继续做备份节点。
func (b *Backup) enterTransitioning(out *Outbox) State {
	ctx := b.ctx
	if ctx.IsLeaving() {
		b.Info("leaving after reconfiguration", zap.Uint64("epoch", ctx.Epoch))
		return b.peers.Leaving(b.take())
	}
	// 通知被替换的副本退出
	b.peers.Reconfiguration.BroadcastEpochStarted(ctx, out)
	if ctx.IsPrimary() {
		ctx.ReconfigurationInProgress = false
		b.Info("become primary after reconfiguration", zap.Uint64("epoch", ctx.Epoch), zap.Uint64("view", ctx.View))
		return b.peers.Primary(b.take())
	}
	return b
}
