package vr_test

import (
	"fmt"
	"time"

	"github.com/WuKongIM/wkvr/pkg/vr"
	"github.com/pkg/errors"
)

var (
	r1    = vr.Pid{Name: "r1", Node: "n1"}
	r2    = vr.Pid{Name: "r2", Node: "n2"}
	r3    = vr.Pid{Name: "r3", Node: "n3"}
	r4    = vr.Pid{Name: "r4", Node: "n4"}
	nsMgr = vr.Pid{Name: "ns", Node: "n0"}
)

type fakeClock struct {
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Unix(1700000000, 0)}
}

func (c *fakeClock) Now() time.Time {
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.now = c.now.Add(d)
}

type recordingBackend struct {
	applied []vr.ClientRequest
	failOn  map[uint64]bool
}

func (r *recordingBackend) Apply(req vr.ClientRequest) error {
	r.applied = append(r.applied, req)
	if r.failOn[req.RequestNum] {
		return errors.New("apply failed")
	}
	return nil
}

func (r *recordingBackend) requestNums() []uint64 {
	nums := make([]uint64, 0, len(r.applied))
	for _, req := range r.applied {
		nums = append(nums, req.RequestNum)
	}
	return nums
}

func request(num uint64) vr.ClientOp {
	return vr.NewRequestOp(vr.ClientRequest{
		Op:         []byte(fmt.Sprintf("op-%d", num)),
		ClientID:   "client1",
		RequestNum: num,
	})
}

func reconfiguration(epoch uint64, replicas ...vr.Pid) vr.ClientOp {
	return vr.NewReconfigurationOp(vr.Reconfiguration{
		ClientID:   "admin",
		RequestNum: 1,
		Epoch:      epoch,
		Replicas:   replicas,
	})
}

// newTestBackup 创建 r1 上的备份节点，配置为 r1 r2 r3，epoch=1 view=1 时主节点是 r2
func newTestBackup(clock *fakeClock, backend *recordingBackend, opLen uint64) (*vr.Backup, *vr.Context) {
	ctx := vr.NewContext(r1, nsMgr, []vr.Pid{r3, r1, r2},
		vr.WithEpoch(1),
		vr.WithView(1),
		vr.WithClock(clock),
		vr.WithBackend(backend),
		vr.WithIdleTimeout(time.Second*5),
	)
	for i := uint64(1); i <= opLen; i++ {
		ctx.Log = append(ctx.Log, request(i))
	}
	ctx.Op = opLen
	return vr.NewBackup(ctx, vr.NewDefaultPeers()), ctx
}

func envelopesOf(out vr.Outbox, msgType vr.MsgType) []vr.Envelope {
	var envs []vr.Envelope
	for _, env := range out {
		if env.Msg.MsgType == msgType {
			envs = append(envs, env)
		}
	}
	return envs
}
