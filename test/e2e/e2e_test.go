package e2e

import (
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/WuKongIM/wkvr/internal/api"
	"github.com/WuKongIM/wkvr/internal/options"
	"github.com/WuKongIM/wkvr/internal/server"
	"github.com/WuKongIM/wkvr/pkg/kvbackend"
	"github.com/WuKongIM/wkvr/pkg/vr"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

const (
	// 等待服务启动的超时时间
	serverStartTimeout = 5 * time.Second
	// 请求超时时间
	requestTimeout = 2 * time.Second
)

var (
	r1    = vr.Pid{Name: "r1", Node: "n1"}
	r2    = vr.Pid{Name: "r2", Node: "n2"}
	nsMgr = vr.Pid{Name: "ns", Node: "n0"}
)

// peerRecorder 模拟主节点或命名空间管理器，记录收到的消息
type peerRecorder struct {
	mu   sync.Mutex
	envs []vr.Envelope
}

func (p *peerRecorder) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	data, err := io.ReadAll(r.Body)
	if err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	env, err := vr.UnmarshalEnvelope(data)
	if err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	p.mu.Lock()
	p.envs = append(p.envs, env)
	p.mu.Unlock()
	w.WriteHeader(http.StatusOK)
}

func (p *peerRecorder) count(msgType vr.MsgType) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, env := range p.envs {
		if env.Msg.MsgType == msgType {
			n++
		}
	}
	return n
}

func findFreePort() (int, error) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return 0, err
	}
	defer l.Close()
	return l.Addr().(*net.TCPAddr).Port, nil
}

// writeConfig 生成 yaml 配置文件
func writeConfig(t *testing.T, dir string, httpAddr string, primaryURL, nsURL string) string {
	cfg := map[string]interface{}{
		"mode":         "test",
		"rootDir":      dir,
		"name":         r1.Name,
		"node":         r1.Node,
		"httpAddr":     httpAddr,
		"namespaceMgr": fmt.Sprintf("%s@%s@%s", nsMgr.Name, nsMgr.Node, nsURL),
		"cluster": map[string]interface{}{
			"epoch": 1,
			"replicas": []string{
				fmt.Sprintf("r1@n1@http://%s", httpAddr),
				fmt.Sprintf("r2@n2@%s", primaryURL),
				"r3@n3",
			},
		},
		"vr": map[string]interface{}{
			"idleTimeout":  "1h",
			"tickInterval": "20ms",
		},
		"kv": map[string]interface{}{
			"engine": "pebble",
			"sync":   false,
		},
	}
	data, err := yaml.Marshal(cfg)
	require.NoError(t, err)
	path := filepath.Join(dir, "wkvr.yaml")
	require.NoError(t, os.WriteFile(path, data, 0644))
	return path
}

func getVarz(t *testing.T, baseURL string) map[string]interface{} {
	client := http.Client{Timeout: requestTimeout}
	resp, err := client.Get(baseURL + "/varz")
	if err != nil {
		return nil
	}
	defer resp.Body.Close()
	var body struct {
		Data map[string]interface{} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil
	}
	return body.Data
}

func TestBackupReplicatesFromPrimary(t *testing.T) {
	primary := &peerRecorder{}
	primaryServer := httptest.NewServer(primary)
	defer primaryServer.Close()
	ns := &peerRecorder{}
	nsServer := httptest.NewServer(ns)
	defer nsServer.Close()

	port, err := findFreePort()
	require.NoError(t, err)
	httpAddr := fmt.Sprintf("127.0.0.1:%d", port)
	baseURL := "http://" + httpAddr

	dir := t.TempDir()
	vp := viper.New()
	vp.SetConfigFile(writeConfig(t, dir, httpAddr, primaryServer.URL, nsServer.URL))
	require.NoError(t, vp.ReadInConfig())
	opts := options.New()
	opts.ConfigureWithViper(vp)

	s, err := server.New(opts)
	require.NoError(t, err)
	require.NoError(t, s.Start())
	defer s.Stop()

	require.Eventually(t, func() bool {
		return getVarz(t, baseURL) != nil
	}, serverStartTimeout, time.Millisecond*50)

	// 主节点 r2 以视图 1 开始
	transport := api.NewHTTPTransport(map[vr.Pid]string{r1: baseURL}, requestTimeout)
	require.NoError(t, transport.Send(vr.Envelope{
		To: r1, From: r2, Cid: 1,
		Msg: vr.Message{MsgType: vr.MsgStartView, Epoch: 1, View: 1},
	}))
	assert.Eventually(t, func() bool {
		return ns.count(vr.MsgNewPrimary) == 1
	}, serverStartTimeout, time.Millisecond*20)

	cmd := kvbackend.SetCommand("greeting", []byte("hello"))
	require.NoError(t, transport.Send(vr.Envelope{
		To: r1, From: r2, Cid: 2,
		Msg: vr.Message{
			MsgType: vr.MsgPrepare, Epoch: 1, View: 1, Op: 1,
			Entry: vr.NewRequestOp(vr.ClientRequest{Op: cmd.Encode(), ClientID: "c1", RequestNum: 1}),
		},
	}))
	assert.Eventually(t, func() bool {
		return primary.count(vr.MsgPrepareOk) == 1
	}, serverStartTimeout, time.Millisecond*20)

	require.NoError(t, transport.Send(vr.Envelope{
		To: r1, From: r2, Cid: 3,
		Msg: vr.Message{MsgType: vr.MsgCommit, Epoch: 1, View: 1, CommitNum: 1},
	}))
	assert.Eventually(t, func() bool {
		varz := getVarz(t, baseURL)
		return varz != nil && varz["commit_num"] == float64(1)
	}, serverStartTimeout, time.Millisecond*20)

	varz := getVarz(t, baseURL)
	require.NotNil(t, varz)
	assert.Equal(t, "backup", varz["role"])
	assert.Equal(t, r2.String(), varz["primary"])
	assert.Equal(t, "pebble", varz["kv_engine"])
}
