package vr

// IsFresh 判断一条带 (epoch, view) 的消息是否属于当前可接受的轮次。
// 返回 false 的消息直接丢弃，不改变角色也不产生输出。
func IsFresh(localEpoch, localView, msgEpoch, msgView uint64, kind MsgType) bool {
	switch kind {
	case MsgPrepare, MsgCommit, MsgGetState:
		return msgEpoch == localEpoch && msgView == localView
	case MsgStartViewChange, MsgDoViewChange:
		return msgEpoch == localEpoch && msgView > localView
	case MsgStartView:
		if msgEpoch != localEpoch {
			return msgEpoch > localEpoch
		}
		return msgView > localView
	default:
		// 不带轮次的消息（Tick、Recovery、StartEpoch）
		return true
	}
}

func isFresh(ctx *Context, m Message) bool {
	return IsFresh(ctx.Epoch, ctx.View, m.Epoch, m.View, m.MsgType)
}
