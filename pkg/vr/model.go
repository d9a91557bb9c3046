package vr

import (
	"fmt"

	"github.com/google/uuid"
)

// Pid 副本进程标识
type Pid struct {
	Name string // 副本名
	Node string // 所在节点
}

func (p Pid) String() string {
	return fmt.Sprintf("%s@%s", p.Name, p.Node)
}

func (p Pid) IsEmpty() bool {
	return p.Name == "" && p.Node == ""
}

// CorrelationID 用于把响应和请求对应起来
type CorrelationID uint64

type MsgType uint16

const (
	MsgUnknown          MsgType = iota // 未知
	MsgPrepare                         // 主节点提议日志
	MsgPrepareOk                       // 备份节点确认提议
	MsgCommit                          // 主节点通知提交
	MsgStartViewChange                 // 发起视图变更
	MsgDoViewChange                    // 视图变更投票
	MsgStartView                       // 新视图开始（权威）
	MsgTick                            // 本地定时器
	MsgGetState                        // 状态转移请求
	MsgNewState                        // 状态转移响应
	MsgRecovery                        // 恢复请求
	MsgRecoveryResponse                // 恢复响应
	MsgStartEpoch                      // 开始新纪元
	MsgEpochStarted                    // 新纪元已开始
	MsgNewPrimary                      // 通知命名空间管理器主节点变化
	MsgReconfigured                    // 通知命名空间管理器重新配置已提交
)

func (m MsgType) String() string {
	switch m {
	case MsgUnknown:
		return "MsgUnknown"
	case MsgPrepare:
		return "MsgPrepare"
	case MsgPrepareOk:
		return "MsgPrepareOk"
	case MsgCommit:
		return "MsgCommit"
	case MsgStartViewChange:
		return "MsgStartViewChange"
	case MsgDoViewChange:
		return "MsgDoViewChange"
	case MsgStartView:
		return "MsgStartView"
	case MsgTick:
		return "MsgTick"
	case MsgGetState:
		return "MsgGetState"
	case MsgNewState:
		return "MsgNewState"
	case MsgRecovery:
		return "MsgRecovery"
	case MsgRecoveryResponse:
		return "MsgRecoveryResponse"
	case MsgStartEpoch:
		return "MsgStartEpoch"
	case MsgEpochStarted:
		return "MsgEpochStarted"
	case MsgNewPrimary:
		return "MsgNewPrimary"
	case MsgReconfigured:
		return "MsgReconfigured"
	default:
		return "unknown"
	}
}

// Message 协议消息，字段是否有效取决于 MsgType
type Message struct {
	MsgType        MsgType
	Epoch          uint64
	View           uint64
	Op             uint64
	CommitNum      uint64
	LastNormalView uint64
	Entry          ClientOp   // MsgPrepare 携带的操作
	Log            []ClientOp // MsgStartView / MsgDoViewChange / MsgNewState / MsgRecoveryResponse
	From           Pid        // 发送者（PrepareOk、视图变更等）
	Primary        Pid        // MsgNewPrimary
	Replicas       []Pid      // MsgStartEpoch(新配置) / MsgReconfigured
	OldReplicas    []Pid      // MsgStartEpoch(旧配置)
	Nonce          uuid.UUID  // MsgRecovery / MsgRecoveryResponse
}

// Envelope 带地址的消息
type Envelope struct {
	To   Pid
	From Pid
	Cid  CorrelationID
	Msg  Message
}

type OpKind uint8

const (
	OpRequest OpKind = iota + 1
	OpReconfiguration
)

// Valid 日志条目只能是请求或重新配置
func (k OpKind) Valid() bool {
	return k == OpRequest || k == OpReconfiguration
}

// ValidLog 日志中每个条目都有效
func ValidLog(log []ClientOp) bool {
	for _, e := range log {
		if !e.Kind.Valid() {
			return false
		}
	}
	return true
}

func (k OpKind) String() string {
	switch k {
	case OpRequest:
		return "request"
	case OpReconfiguration:
		return "reconfiguration"
	default:
		return "unknown"
	}
}

// ClientRequest 客户端请求
type ClientRequest struct {
	Op         []byte // 交给后端执行的数据
	ClientID   string
	RequestNum uint64
}

// Reconfiguration 重新配置请求，提交后进入新纪元
type Reconfiguration struct {
	ClientID   string
	RequestNum uint64
	Epoch      uint64
	Replicas   []Pid
}

// ClientOp 日志条目
type ClientOp struct {
	Kind     OpKind
	Request  ClientRequest
	Reconfig Reconfiguration
}

func NewRequestOp(req ClientRequest) ClientOp {
	return ClientOp{Kind: OpRequest, Request: req}
}

func NewReconfigurationOp(rc Reconfiguration) ClientOp {
	return ClientOp{Kind: OpReconfiguration, Reconfig: rc}
}

// VersionedReplicas 某个纪元的副本集合
type VersionedReplicas struct {
	Epoch    uint64
	Op       uint64 // 该配置生效时的日志下标
	Replicas []Pid
}

func (v VersionedReplicas) Contains(pid Pid) bool {
	for _, r := range v.Replicas {
		if r == pid {
			return true
		}
	}
	return false
}
