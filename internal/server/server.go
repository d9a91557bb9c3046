package server

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"github.com/WuKongIM/wkvr/internal/api"
	"github.com/WuKongIM/wkvr/internal/monitor"
	"github.com/WuKongIM/wkvr/internal/node"
	"github.com/WuKongIM/wkvr/internal/options"
	"github.com/WuKongIM/wkvr/pkg/kvbackend"
	"github.com/WuKongIM/wkvr/pkg/vr"
	"github.com/WuKongIM/wkvr/pkg/wklog"
	"github.com/WuKongIM/wkvr/version"
	"github.com/judwhite/go-svc"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// backend 状态机后端，可以关闭
type backend interface {
	vr.Backend
	Close() error
}

type Server struct {
	opts      *options.Options
	backend   backend
	monitor   monitor.IMonitor
	transport *api.HTTPTransport
	node      *node.Node
	apiServer *api.Server
	started   bool
	stopped   bool
	wklog.Log
}

func New(opts *options.Options) (*Server, error) {
	s := &Server{
		opts: opts,
		Log:  wklog.NewWKLog("Server"),
	}
	if err := opts.Check(); err != nil {
		return nil, err
	}

	var err error
	s.backend, err = newBackend(opts)
	if err != nil {
		return nil, err
	}

	s.monitor = monitor.NewMonitor(opts.Monitor.On)
	s.transport = api.NewHTTPTransport(opts.PeerAddrs(), opts.VR.SendTimeout)

	nodeOpts := node.NewOptions(
		node.WithPid(opts.Pid()),
		node.WithNamespaceMgr(opts.NamespaceMgr.Pid),
		node.WithReplicas(opts.ReplicaPids()),
		node.WithEpoch(opts.Cluster.Epoch),
		node.WithIdleTimeout(opts.VR.IdleTimeout),
		node.WithTickInterval(opts.VR.TickInterval),
		node.WithSendPoolSize(opts.VR.SendPoolSize),
		node.WithRecvQueueSize(opts.VR.RecvQueueSize),
		node.WithWorkerID(opts.Cluster.WorkerID),
		node.WithBackend(s.backend),
		node.WithTransport(s.transport),
		node.WithMonitor(s.monitor),
	)
	s.node, err = node.New(nodeOpts)
	if err != nil {
		_ = s.backend.Close()
		return nil, err
	}
	s.apiServer = api.New(opts, s.node, s.monitor)
	return s, nil
}

func newBackend(opts *options.Options) (backend, error) {
	kvOpts := []kvbackend.Option{
		kvbackend.WithDir(opts.DataDir),
		kvbackend.WithDedupCacheSize(opts.KV.DedupCacheSize),
		kvbackend.WithSync(opts.KV.Sync),
	}
	switch opts.KV.Engine {
	case options.KVEngineMemory:
		return kvbackend.NewMemoryBackend(kvOpts...)
	case options.KVEnginePebble:
		b, err := kvbackend.NewPebbleBackend(kvOpts...)
		if err != nil {
			return nil, err
		}
		if err := b.Open(); err != nil {
			return nil, errors.Wrap(err, "open pebble backend")
		}
		return b, nil
	}
	return nil, errors.Errorf("unknown kv engine %s", opts.KV.Engine)
}

func (s *Server) Init(env svc.Environment) error {
	if env.IsWindowsService() {
		dir := filepath.Dir(os.Args[0])
		return os.Chdir(dir)
	}
	return nil
}

func (s *Server) Start() error {
	s.Info("wkvr is Starting...")
	s.Info(fmt.Sprintf("  Mode:  %s", s.opts.Mode))
	s.Info(fmt.Sprintf("  Version:  %s", version.Version))
	s.Info(fmt.Sprintf("  Git:  %s", fmt.Sprintf("%s-%s", version.CommitDate, version.Commit)))
	s.Info(fmt.Sprintf("  Go build:  %s", runtime.Version()))
	s.Info(fmt.Sprintf("  Replica:  %s", s.opts.Pid()))
	s.Info(fmt.Sprintf("  DataDir:  %s", s.opts.DataDir))
	s.Info(fmt.Sprintf("  KVEngine:  %s", s.opts.KV.Engine))
	if s.opts.ConfigFileUsed() != "" {
		s.Info(fmt.Sprintf("  Config:  %s", s.opts.ConfigFileUsed()))
	}

	if err := s.node.Start(); err != nil {
		return err
	}
	if err := s.apiServer.Start(); err != nil {
		s.node.Stop()
		return err
	}
	s.started = true
	s.Info("Server is ready", zap.String("httpAddr", s.opts.HTTPAddr))
	return nil
}

func (s *Server) Stop() error {
	if s.stopped {
		return nil
	}
	s.stopped = true
	s.Info("Server is Stoping...")
	defer s.Info("Server is exited")

	if s.started {
		s.started = false
		s.apiServer.Stop()
		s.node.Stop()
	}
	if err := s.backend.Close(); err != nil {
		s.Warn("close backend failed", zap.Error(err))
	}
	return nil
}

// Status 当前副本状态
func (s *Server) Status() node.Status {
	return s.node.Status()
}
