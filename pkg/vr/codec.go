package vr

import (
	wkproto "github.com/WuKongIM/WuKongIMGoProto"
	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// 编码格式版本，字段变化时递增
const codecVersion uint8 = 1

const (
	minPidSize      = 4 // 两个空字符串的长度前缀
	minClientOpSize = 1 // 只有类型
)

func (p Pid) encode(enc *wkproto.Encoder) {
	enc.WriteString(p.Name)
	enc.WriteString(p.Node)
}

func decodePid(dec *wkproto.Decoder) (Pid, error) {
	var (
		p   Pid
		err error
	)
	if p.Name, err = dec.String(); err != nil {
		return p, err
	}
	if p.Node, err = dec.String(); err != nil {
		return p, err
	}
	return p, nil
}

func encodePids(enc *wkproto.Encoder, pids []Pid) {
	enc.WriteUint16(uint16(len(pids)))
	for _, p := range pids {
		p.encode(enc)
	}
}

func decodePids(dec *wkproto.Decoder) ([]Pid, error) {
	n, err := dec.Uint16()
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, nil
	}
	if int(n)*minPidSize > dec.Len() {
		return nil, errors.Errorf("pid count %d exceeds remaining %d bytes", n, dec.Len())
	}
	pids := make([]Pid, 0, n)
	for i := 0; i < int(n); i++ {
		p, err := decodePid(dec)
		if err != nil {
			return nil, err
		}
		pids = append(pids, p)
	}
	return pids, nil
}

// 负载可能超过 String 的长度上限，用 uint32 记录长度
func writeLargeBytes(enc *wkproto.Encoder, b []byte) {
	enc.WriteUint32(uint32(len(b)))
	if len(b) > 0 {
		enc.WriteBytes(b)
	}
}

func readLargeBytes(dec *wkproto.Decoder) ([]byte, error) {
	n, err := dec.Uint32()
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, nil
	}
	if int(n) > dec.Len() {
		return nil, errors.Errorf("payload length %d exceeds remaining %d", n, dec.Len())
	}
	b, err := dec.Bytes(int(n))
	if err != nil {
		return nil, err
	}
	return append([]byte(nil), b...), nil
}

func (c ClientOp) encode(enc *wkproto.Encoder) {
	enc.WriteUint8(uint8(c.Kind))
	switch c.Kind {
	case OpRequest:
		enc.WriteString(c.Request.ClientID)
		enc.WriteUint64(c.Request.RequestNum)
		writeLargeBytes(enc, c.Request.Op)
	case OpReconfiguration:
		enc.WriteString(c.Reconfig.ClientID)
		enc.WriteUint64(c.Reconfig.RequestNum)
		enc.WriteUint64(c.Reconfig.Epoch)
		encodePids(enc, c.Reconfig.Replicas)
	}
}

func decodeClientOp(dec *wkproto.Decoder) (ClientOp, error) {
	var c ClientOp
	kind, err := dec.Uint8()
	if err != nil {
		return c, err
	}
	c.Kind = OpKind(kind)
	switch c.Kind {
	case OpRequest:
		if c.Request.ClientID, err = dec.String(); err != nil {
			return c, err
		}
		if c.Request.RequestNum, err = dec.Uint64(); err != nil {
			return c, err
		}
		if c.Request.Op, err = readLargeBytes(dec); err != nil {
			return c, err
		}
	case OpReconfiguration:
		if c.Reconfig.ClientID, err = dec.String(); err != nil {
			return c, err
		}
		if c.Reconfig.RequestNum, err = dec.Uint64(); err != nil {
			return c, err
		}
		if c.Reconfig.Epoch, err = dec.Uint64(); err != nil {
			return c, err
		}
		if c.Reconfig.Replicas, err = decodePids(dec); err != nil {
			return c, err
		}
	case 0:
		// 空条目（消息不携带 Entry）
	default:
		return c, errors.Errorf("unknown client op kind %d", kind)
	}
	return c, nil
}

// MarshalClientOp 编码单个日志条目
func MarshalClientOp(c ClientOp) []byte {
	enc := wkproto.NewEncoder()
	defer enc.End()
	c.encode(enc)
	return append([]byte(nil), enc.Bytes()...)
}

func UnmarshalClientOp(data []byte) (ClientOp, error) {
	c, err := decodeClientOp(wkproto.NewDecoder(data))
	if err != nil {
		return c, errors.Wrap(err, "decode client op")
	}
	return c, nil
}

func (m Message) encode(enc *wkproto.Encoder) {
	enc.WriteUint16(uint16(m.MsgType))
	enc.WriteUint64(m.Epoch)
	enc.WriteUint64(m.View)
	enc.WriteUint64(m.Op)
	enc.WriteUint64(m.CommitNum)
	enc.WriteUint64(m.LastNormalView)
	m.Entry.encode(enc)
	enc.WriteUint32(uint32(len(m.Log)))
	for _, e := range m.Log {
		e.encode(enc)
	}
	m.From.encode(enc)
	m.Primary.encode(enc)
	encodePids(enc, m.Replicas)
	encodePids(enc, m.OldReplicas)
	enc.WriteBytes(m.Nonce[:])
}

func decodeMessage(dec *wkproto.Decoder) (Message, error) {
	var (
		m   Message
		err error
	)
	msgType, err := dec.Uint16()
	if err != nil {
		return m, err
	}
	m.MsgType = MsgType(msgType)
	if m.Epoch, err = dec.Uint64(); err != nil {
		return m, err
	}
	if m.View, err = dec.Uint64(); err != nil {
		return m, err
	}
	if m.Op, err = dec.Uint64(); err != nil {
		return m, err
	}
	if m.CommitNum, err = dec.Uint64(); err != nil {
		return m, err
	}
	if m.LastNormalView, err = dec.Uint64(); err != nil {
		return m, err
	}
	if m.Entry, err = decodeClientOp(dec); err != nil {
		return m, err
	}
	if m.MsgType == MsgPrepare && !m.Entry.Kind.Valid() {
		return m, errors.Errorf("prepare without entry, kind %d", m.Entry.Kind)
	}
	logLen, err := dec.Uint32()
	if err != nil {
		return m, err
	}
	if logLen > 0 {
		if uint64(logLen)*minClientOpSize > uint64(dec.Len()) {
			return m, errors.Errorf("log length %d exceeds remaining %d bytes", logLen, dec.Len())
		}
		m.Log = make([]ClientOp, 0, logLen)
		for i := uint32(0); i < logLen; i++ {
			e, err := decodeClientOp(dec)
			if err != nil {
				return m, err
			}
			if !e.Kind.Valid() {
				return m, errors.Errorf("empty log entry at %d", i+1)
			}
			m.Log = append(m.Log, e)
		}
	}
	if m.From, err = decodePid(dec); err != nil {
		return m, err
	}
	if m.Primary, err = decodePid(dec); err != nil {
		return m, err
	}
	if m.Replicas, err = decodePids(dec); err != nil {
		return m, err
	}
	if m.OldReplicas, err = decodePids(dec); err != nil {
		return m, err
	}
	nonce, err := dec.Bytes(len(m.Nonce))
	if err != nil {
		return m, err
	}
	if m.Nonce, err = uuid.FromBytes(nonce); err != nil {
		return m, err
	}
	return m, nil
}

// MarshalEnvelope 编码一条带地址的消息，用于节点之间传输
func MarshalEnvelope(env Envelope) []byte {
	enc := wkproto.NewEncoder()
	defer enc.End()
	enc.WriteUint8(codecVersion)
	env.To.encode(enc)
	env.From.encode(enc)
	enc.WriteUint64(uint64(env.Cid))
	env.Msg.encode(enc)
	return append([]byte(nil), enc.Bytes()...)
}

func UnmarshalEnvelope(data []byte) (Envelope, error) {
	var (
		env Envelope
		err error
	)
	dec := wkproto.NewDecoder(data)
	version, err := dec.Uint8()
	if err != nil {
		return env, errors.Wrap(err, "decode version")
	}
	if version != codecVersion {
		return env, errors.Errorf("unsupported envelope version %d", version)
	}
	if env.To, err = decodePid(dec); err != nil {
		return env, errors.Wrap(err, "decode to")
	}
	if env.From, err = decodePid(dec); err != nil {
		return env, errors.Wrap(err, "decode from")
	}
	cid, err := dec.Uint64()
	if err != nil {
		return env, errors.Wrap(err, "decode cid")
	}
	env.Cid = CorrelationID(cid)
	if env.Msg, err = decodeMessage(dec); err != nil {
		return env, errors.Wrap(err, "decode message")
	}
	return env, nil
}
