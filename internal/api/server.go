package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/WuKongIM/wkvr/internal/monitor"
	"github.com/WuKongIM/wkvr/internal/node"
	"github.com/WuKongIM/wkvr/internal/options"
	"github.com/WuKongIM/wkvr/pkg/vr"
	"github.com/WuKongIM/wkvr/pkg/wkhttp"
	"github.com/WuKongIM/wkvr/pkg/wklog"
	"github.com/gin-contrib/gzip"
	"github.com/gin-contrib/pprof"
	"go.uber.org/zap"
)

// Replica api 需要的副本能力
type Replica interface {
	Step(ctx context.Context, env vr.Envelope) error
	Status() node.Status
}

type Server struct {
	r       *wkhttp.WKHttp
	opts    *options.Options
	replica Replica
	monitor monitor.IMonitor
	srv     *http.Server
	uptime  time.Time
	wklog.Log
}

func New(opts *options.Options, replica Replica, m monitor.IMonitor) *Server {
	log := wklog.NewWKLog("apiServer")
	r := wkhttp.New(opts.GinMode)
	r.Use(wkhttp.LoggerWithWklog(log))
	r.GetGinRoute().Use(gzip.Gzip(gzip.DefaultCompression, gzip.WithExcludedPaths([]string{"/metrics", "/vr/message"})))
	if opts.PprofOn {
		pprof.Register(r.GetGinRoute()) // 注册pprof
	}
	s := &Server{
		r:       r,
		opts:    opts,
		replica: replica,
		monitor: m,
		uptime:  time.Now(),
		Log:     log,
	}
	s.setRoutes()
	return s
}

func (s *Server) setRoutes() {
	newMessageAPI(s).route(s.r)
	newVarz(s).route(s.r)
	s.r.GET("/metrics", s.monitor.Monitor)
}

// Start 开始
func (s *Server) Start() error {
	s.srv = &http.Server{
		Addr:    s.opts.HTTPAddr,
		Handler: s.r,
	}
	go func() {
		err := s.srv.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.Panic("api server listen failed", zap.Error(err), zap.String("addr", s.opts.HTTPAddr))
		}
	}()
	s.Info("ApiServer started", zap.String("addr", s.opts.HTTPAddr))
	return nil
}

// Stop 停止服务
func (s *Server) Stop() {
	if s.srv == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Second*5)
	defer cancel()
	if err := s.srv.Shutdown(ctx); err != nil {
		s.Warn("api server shutdown", zap.Error(err))
	}
}

// ServeHTTP 测试时直接调用路由
func (s *Server) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	s.r.ServeHTTP(w, req)
}
