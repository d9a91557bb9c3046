package api

import (
	"fmt"
	"runtime"
	"time"

	"github.com/WuKongIM/wkvr/internal/node"
	"github.com/WuKongIM/wkvr/pkg/wkhttp"
	"github.com/WuKongIM/wkvr/version"
)

type varz struct {
	s *Server
}

func newVarz(s *Server) *varz {
	return &varz{s: s}
}

func (v *varz) route(r *wkhttp.WKHttp) {
	r.GET("/varz", v.handleVarz)
}

func (v *varz) handleVarz(c *wkhttp.Context) {
	c.ResponseOKWithData(v.createVarz())
}

func (v *varz) createVarz() *Varz {
	return &Varz{
		Status:     v.s.replica.Status(),
		Version:    version.Version,
		Commit:     version.Commit,
		Uptime:     myUptime(time.Since(v.s.uptime)),
		Goroutine:  runtime.NumGoroutine(),
		HTTPAddr:   v.s.opts.HTTPAddr,
		KVEngine:   string(v.s.opts.KV.Engine),
		ConfigFile: v.s.opts.ConfigFileUsed(),
	}
}

type Varz struct {
	node.Status
	Version    string `json:"version"`
	Commit     string `json:"commit"`
	Uptime     string `json:"uptime"`    // 上线时间
	Goroutine  int    `json:"goroutine"` // goroutine数量
	HTTPAddr   string `json:"http_addr"`
	KVEngine   string `json:"kv_engine"`
	ConfigFile string `json:"config_file,omitempty"`
}

func myUptime(d time.Duration) string {
	// Just use total seconds for uptime, and display days / years
	tsecs := d / time.Second
	tmins := tsecs / 60
	thrs := tmins / 60
	tdays := thrs / 24
	tyrs := tdays / 365

	if tyrs > 0 {
		return fmt.Sprintf("%dy%dd%dh%dm%ds", tyrs, tdays%365, thrs%24, tmins%60, tsecs%60)
	}
	if tdays > 0 {
		return fmt.Sprintf("%dd%dh%dm%ds", tdays, thrs%24, tmins%60, tsecs%60)
	}
	if thrs > 0 {
		return fmt.Sprintf("%dh%dm%ds", thrs, tmins%60, tsecs%60)
	}
	if tmins > 0 {
		return fmt.Sprintf("%dm%ds", tmins, tsecs%60)
	}
	return fmt.Sprintf("%ds", tsecs)
}
