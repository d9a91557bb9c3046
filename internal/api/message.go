package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/WuKongIM/wkvr/internal/node"
	"github.com/WuKongIM/wkvr/pkg/vr"
	"github.com/WuKongIM/wkvr/pkg/wkhttp"
	"github.com/WuKongIM/wkvr/pkg/wklog"
	"github.com/valyala/bytebufferpool"
	"go.uber.org/zap"
)

// 单个消息体最大长度
const maxMessageBodySize = 64 << 20

// messageAPI 接收其他副本和命名空间管理器发来的协议消息
type messageAPI struct {
	s *Server
	wklog.Log
}

func newMessageAPI(s *Server) *messageAPI {
	return &messageAPI{
		s:   s,
		Log: wklog.NewWKLog("messageAPI"),
	}
}

func (m *messageAPI) route(r *wkhttp.WKHttp) {
	r.POST("/vr/message", m.receive)
}

func (m *messageAPI) receive(c *wkhttp.Context) {
	// 解码时会拷贝所有字段，请求体缓冲可以复用
	buf := bytebufferpool.Get()
	defer bytebufferpool.Put(buf)
	if _, err := buf.ReadFrom(c.LimitBody(maxMessageBodySize)); err != nil {
		m.Warn("read body failed", zap.Error(err))
		c.ResponseError(err)
		return
	}
	env, err := vr.UnmarshalEnvelope(buf.B)
	if err != nil {
		m.Warn("decode envelope failed", zap.Error(err), zap.Int("size", buf.Len()))
		c.ResponseError(err)
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), m.s.opts.VR.StepTimeout)
	defer cancel()
	err = m.s.replica.Step(ctx, env)
	if err != nil {
		m.Debug("step failed", zap.Error(err), zap.String("from", env.From.String()), zap.String("msgType", env.Msg.MsgType.String()))
		switch {
		case errors.Is(err, node.ErrWrongRecipient):
			c.ResponseError(err)
		case errors.Is(err, node.ErrStopped), errors.Is(err, context.DeadlineExceeded):
			c.ResponseErrorWithStatus(http.StatusServiceUnavailable, err)
		default:
			c.ResponseErrorWithStatus(http.StatusInternalServerError, err)
		}
		return
	}
	c.ResponseOK()
}
