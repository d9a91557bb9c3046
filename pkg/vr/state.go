package vr

type Role uint8

const (
	RoleUnknown Role = iota
	// RoleBackup 正常模式下的备份节点
	RoleBackup
	// RolePrimary 主节点
	RolePrimary
	// RoleStateTransfer 状态转移中
	RoleStateTransfer
	// RoleRecovery 恢复中
	RoleRecovery
	// RoleReconfiguration 重新配置中
	RoleReconfiguration
	// RoleLeaving 被新配置移除，准备退出
	RoleLeaving
	// RoleStartViewChange 发起视图变更
	RoleStartViewChange
	// RoleDoViewChange 视图变更投票
	RoleDoViewChange
	// RoleStartView 新视图开始
	RoleStartView
)

func (r Role) String() string {
	switch r {
	case RoleBackup:
		return "backup"
	case RolePrimary:
		return "primary"
	case RoleStateTransfer:
		return "state_transfer"
	case RoleRecovery:
		return "recovery"
	case RoleReconfiguration:
		return "reconfiguration"
	case RoleLeaving:
		return "leaving"
	case RoleStartViewChange:
		return "start_view_change"
	case RoleDoViewChange:
		return "do_view_change"
	case RoleStartView:
		return "start_view"
	default:
		return "unknown"
	}
}

// State 副本当前所处的角色。
// Handle 消费当前角色并返回下一个角色，调用方必须丢弃旧值只使用返回值。
type State interface {
	Role() Role
	Context() *Context
	Handle(m Message, from Pid, cid CorrelationID, out *Outbox) State
}

// Outbox 一次状态迁移产生的出站消息
type Outbox []Envelope

func (o *Outbox) Send(envs ...Envelope) {
	*o = append(*o, envs...)
}

func (o Outbox) Len() int {
	return len(o)
}
