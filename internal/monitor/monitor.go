package monitor

import (
	"github.com/WuKongIM/wkvr/pkg/vr"
	"github.com/WuKongIM/wkvr/pkg/wkhttp"
)

func NewMonitor(on bool) IMonitor {
	if !on {
		return &monitorEmpty{}
	}
	return NewPrometheus()
}

type IMonitor interface {
	Monitor(c *wkhttp.Context) // 暴露监控接口

	PrepareAccepted(n int)    // 追加到日志的提议数量
	OpsCommitted(n int)       // 提交执行的日志数量
	StateTransferStarted()    // 进入状态转移
	ViewChangeStarted()       // 发起或参与视图变更
	OutboundSent(kind string) // 发出的消息

	RoleChanged(role vr.Role)              // 当前角色
	ViewChanged(epoch, view uint64)        // 当前纪元和视图
	CommitNumChanged(op, commitNum uint64) // 已准备和已提交的日志下标
}

type monitorEmpty struct {
}

func (m *monitorEmpty) Monitor(c *wkhttp.Context) {}

func (m *monitorEmpty) PrepareAccepted(n int)    {}
func (m *monitorEmpty) OpsCommitted(n int)       {}
func (m *monitorEmpty) StateTransferStarted()    {}
func (m *monitorEmpty) ViewChangeStarted()       {}
func (m *monitorEmpty) OutboundSent(kind string) {}

func (m *monitorEmpty) RoleChanged(role vr.Role)              {}
func (m *monitorEmpty) ViewChanged(epoch, view uint64)        {}
func (m *monitorEmpty) CommitNumChanged(op, commitNum uint64) {}
