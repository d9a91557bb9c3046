package monitor

import (
	"github.com/WuKongIM/wkvr/pkg/vr"
	"github.com/WuKongIM/wkvr/pkg/wkhttp"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Prometheus struct {
	registry *prometheus.Registry

	prepareCounter       prometheus.Counter
	commitCounter        prometheus.Counter
	stateTransferCounter prometheus.Counter
	viewChangeCounter    prometheus.Counter
	outboundCounter      *prometheus.CounterVec

	roleGauge      *prometheus.GaugeVec // 当前角色为 1，其他为 0
	epochGauge     prometheus.Gauge
	viewGauge      prometheus.Gauge
	opGauge        prometheus.Gauge
	commitNumGauge prometheus.Gauge
}

func NewPrometheus() IMonitor {

	namespace := "wukong"
	subsystem := "vr"

	prepareCounter := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "prepare_accepted_total",
		Help:      "追加到日志的提议数量",
	})
	commitCounter := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "ops_committed_total",
		Help:      "已提交执行的日志数量",
	})
	stateTransferCounter := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "state_transfer_total",
		Help:      "进入状态转移的次数",
	})
	viewChangeCounter := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "view_change_total",
		Help:      "视图变更的次数",
	})
	outboundCounter := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "outbound_messages_total",
		Help:      "发出的消息数量",
	}, []string{"kind"})

	roleGauge := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "role",
		Help:      "副本当前角色",
	}, []string{"role"})
	epochGauge := prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "epoch",
		Help:      "当前纪元",
	})
	viewGauge := prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "view",
		Help:      "当前视图",
	})
	opGauge := prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "op",
		Help:      "已准备的日志下标",
	})
	commitNumGauge := prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "commit_num",
		Help:      "已提交的日志下标",
	})

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		prepareCounter,
		commitCounter,
		stateTransferCounter,
		viewChangeCounter,
		outboundCounter,
		roleGauge,
		epochGauge,
		viewGauge,
		opGauge,
		commitNumGauge,
	)

	return &Prometheus{
		registry:             registry,
		prepareCounter:       prepareCounter,
		commitCounter:        commitCounter,
		stateTransferCounter: stateTransferCounter,
		viewChangeCounter:    viewChangeCounter,
		outboundCounter:      outboundCounter,
		roleGauge:            roleGauge,
		epochGauge:           epochGauge,
		viewGauge:            viewGauge,
		opGauge:              opGauge,
		commitNumGauge:       commitNumGauge,
	}
}

func (p *Prometheus) Monitor(c *wkhttp.Context) {
	promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{}).ServeHTTP(c.Writer, c.Request)
}

func (p *Prometheus) PrepareAccepted(n int) {
	p.prepareCounter.Add(float64(n))
}

func (p *Prometheus) OpsCommitted(n int) {
	p.commitCounter.Add(float64(n))
}

func (p *Prometheus) StateTransferStarted() {
	p.stateTransferCounter.Inc()
}

func (p *Prometheus) ViewChangeStarted() {
	p.viewChangeCounter.Inc()
}

func (p *Prometheus) OutboundSent(kind string) {
	p.outboundCounter.WithLabelValues(kind).Inc()
}

func (p *Prometheus) RoleChanged(role vr.Role) {
	for r := vr.RoleBackup; r <= vr.RoleStartView; r++ {
		v := 0.0
		if r == role {
			v = 1
		}
		p.roleGauge.WithLabelValues(r.String()).Set(v)
	}
}

func (p *Prometheus) ViewChanged(epoch, view uint64) {
	p.epochGauge.Set(float64(epoch))
	p.viewGauge.Set(float64(view))
}

func (p *Prometheus) CommitNumChanged(op, commitNum uint64) {
	p.opGauge.Set(float64(op))
	p.commitNumGauge.Set(float64(commitNum))
}
