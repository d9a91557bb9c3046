package vr

// Parked 持有上下文的占位角色，用于协议逻辑在外部实现的角色。
// 它只在收到权威的 StartView 时离开，重新成为备份节点。
type Parked struct {
	role  Role
	ctx   *Context
	peers *Peers
}

func NewParked(role Role, ctx *Context, peers *Peers) *Parked {
	return &Parked{
		role:  role,
		ctx:   ctx,
		peers: peers,
	}
}

func (p *Parked) Role() Role {
	return p.role
}

func (p *Parked) Context() *Context {
	return p.ctx
}

func (p *Parked) Handle(m Message, from Pid, cid CorrelationID, out *Outbox) State {
	if m.MsgType != MsgStartView {
		return p
	}
	// 视图变更中 view 已经是目标 view，所以同一 view 的 StartView 也要接受
	if m.Epoch < p.ctx.Epoch || (m.Epoch == p.ctx.Epoch && m.View < p.ctx.View) {
		return p
	}
	if !ValidLog(m.Log) {
		return p
	}
	ctx := p.ctx
	p.ctx = nil
	return BecomeBackup(ctx, p.peers, m.View, m.Op, m.Log, m.CommitNum, out)
}
