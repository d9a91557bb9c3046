package api

import (
	"context"
	"net/http"
	"time"

	"github.com/WuKongIM/wkvr/pkg/vr"
	"github.com/WuKongIM/wkvr/pkg/wklog"
	"github.com/pkg/errors"
	"github.com/sasha-s/go-deadlock"
	"github.com/sendgrid/rest"
	"go.uber.org/zap"
)

var ErrUnknownPeer = errors.New("unknown peer")

// HTTPTransport 通过 http 把消息发给其他副本的 /vr/message
type HTTPTransport struct {
	mu      deadlock.RWMutex
	addrs   map[vr.Pid]string
	timeout time.Duration
	wklog.Log
}

func NewHTTPTransport(addrs map[vr.Pid]string, timeout time.Duration) *HTTPTransport {
	cp := make(map[vr.Pid]string, len(addrs))
	for pid, addr := range addrs {
		cp[pid] = addr
	}
	return &HTTPTransport{
		addrs:   cp,
		timeout: timeout,
		Log:     wklog.NewWKLog("httpTransport"),
	}
}

// SetAddr 新增或修改一个副本的地址
func (t *HTTPTransport) SetAddr(pid vr.Pid, addr string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.addrs[pid] = addr
}

func (t *HTTPTransport) addr(pid vr.Pid) (string, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	addr, ok := t.addrs[pid]
	return addr, ok
}

func (t *HTTPTransport) Send(env vr.Envelope) error {
	addr, ok := t.addr(env.To)
	if !ok {
		return errors.Wrapf(ErrUnknownPeer, "to %s", env.To)
	}
	request := rest.Request{
		Method:  rest.Method("POST"),
		BaseURL: addr + "/vr/message",
		Headers: map[string]string{
			"Content-Type": "application/octet-stream",
		},
		Body: vr.MarshalEnvelope(env),
	}

	timeoutCtx, cancel := context.WithTimeout(context.Background(), t.timeout)
	defer cancel()
	resp, err := rest.SendWithContext(timeoutCtx, request)
	if err != nil {
		return errors.Wrapf(err, "send %s to %s", env.Msg.MsgType, env.To)
	}
	if resp.StatusCode != http.StatusOK {
		t.Debug("peer rejected message", zap.String("to", env.To.String()), zap.Int("status", resp.StatusCode), zap.String("body", resp.Body))
		return errors.Errorf("send %s to %s: status %d", env.Msg.MsgType, env.To, resp.StatusCode)
	}
	return nil
}
