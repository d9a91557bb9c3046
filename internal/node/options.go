package node

import (
	"time"

	"github.com/WuKongIM/wkvr/internal/monitor"
	"github.com/WuKongIM/wkvr/pkg/vr"
)

// Transport 把消息发给其他副本
type Transport interface {
	Send(env vr.Envelope) error
}

type Options struct {
	Pid          vr.Pid
	NamespaceMgr vr.Pid
	Replicas     []vr.Pid // 初始配置
	Epoch        uint64

	IdleTimeout   time.Duration // 多久没收到主节点消息发起视图变更
	TickInterval  time.Duration // 定时器间隔
	RecvQueueSize int           // 收消息队列长度
	SendPoolSize  int           // 发送协程数量
	WorkerID      int64         // 生成关联 id 的 snowflake 节点号

	Backend   vr.Backend
	Transport Transport
	Monitor   monitor.IMonitor
	Peers     *vr.Peers
	Clock     vr.Clock

	// OnNamespace 发给命名空间管理器的消息（主节点变化、重新配置），为空时和其他消息一样走 Transport
	OnNamespace func(env vr.Envelope)
}

func NewOptions(opt ...Option) *Options {
	o := &Options{
		IdleTimeout:   vr.DefaultIdleTimeout,
		TickInterval:  time.Millisecond * 200,
		RecvQueueSize: 1024,
		SendPoolSize:  64,
		Clock:         vr.SystemClock,
	}
	for _, f := range opt {
		f(o)
	}
	return o
}

type Option func(*Options)

func WithPid(pid vr.Pid) Option {
	return func(o *Options) {
		o.Pid = pid
	}
}

func WithNamespaceMgr(pid vr.Pid) Option {
	return func(o *Options) {
		o.NamespaceMgr = pid
	}
}

func WithReplicas(replicas []vr.Pid) Option {
	return func(o *Options) {
		o.Replicas = replicas
	}
}

func WithEpoch(epoch uint64) Option {
	return func(o *Options) {
		o.Epoch = epoch
	}
}

func WithIdleTimeout(timeout time.Duration) Option {
	return func(o *Options) {
		o.IdleTimeout = timeout
	}
}

func WithTickInterval(interval time.Duration) Option {
	return func(o *Options) {
		o.TickInterval = interval
	}
}

func WithRecvQueueSize(size int) Option {
	return func(o *Options) {
		o.RecvQueueSize = size
	}
}

func WithSendPoolSize(size int) Option {
	return func(o *Options) {
		o.SendPoolSize = size
	}
}

func WithWorkerID(id int64) Option {
	return func(o *Options) {
		o.WorkerID = id
	}
}

func WithBackend(backend vr.Backend) Option {
	return func(o *Options) {
		o.Backend = backend
	}
}

func WithTransport(transport Transport) Option {
	return func(o *Options) {
		o.Transport = transport
	}
}

func WithMonitor(m monitor.IMonitor) Option {
	return func(o *Options) {
		o.Monitor = m
	}
}

func WithPeers(peers *vr.Peers) Option {
	return func(o *Options) {
		o.Peers = peers
	}
}

func WithClock(clock vr.Clock) Option {
	return func(o *Options) {
		o.Clock = clock
	}
}

func WithOnNamespace(f func(env vr.Envelope)) Option {
	return func(o *Options) {
		o.OnNamespace = f
	}
}
