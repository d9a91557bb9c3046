package kvbackend

import (
	"encoding/binary"
	"path/filepath"

	"github.com/WuKongIM/wkvr/pkg/vr"
	"github.com/WuKongIM/wkvr/pkg/wklog"
	"github.com/cockroachdb/pebble"
	"github.com/pkg/errors"
	"github.com/sasha-s/go-deadlock"
	"go.uber.org/atomic"
	"go.uber.org/zap"
)

var _ vr.Backend = (*PebbleBackend)(nil)

var (
	dataPrefix     = []byte("d/")
	clientPrefix   = []byte("c/")
	metaAppliedKey = []byte("m/applied")
)

// PebbleBackend 基于 pebble 的键值存储，客户端请求号和数据在同一个 batch 里写入
type PebbleBackend struct {
	db           *pebble.DB
	opts         *Options
	wo           *pebble.WriteOptions
	endian       binary.ByteOrder
	mu           deadlock.RWMutex
	clients      *clientTable
	appliedCount atomic.Uint64
	wklog.Log
}

func NewPebbleBackend(opt ...Option) (*PebbleBackend, error) {
	opts := NewOptions(opt...)
	clients, err := newClientTable(opts.DedupCacheSize)
	if err != nil {
		return nil, err
	}
	wo := pebble.NoSync
	if opts.Sync {
		wo = pebble.Sync
	}
	return &PebbleBackend{
		opts:    opts,
		wo:      wo,
		endian:  binary.BigEndian,
		clients: clients,
		Log:     wklog.NewWKLog("pebbleBackend"),
	}, nil
}

func (p *PebbleBackend) Open() error {
	var err error
	p.db, err = pebble.Open(filepath.Join(p.opts.DataDir, "kv"), &pebble.Options{
		FormatMajorVersion: pebble.FormatNewest,
	})
	if err != nil {
		return errors.Wrap(err, "open pebble")
	}
	value, err := p.get(metaAppliedKey)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return err
	}
	if len(value) == 8 {
		p.appliedCount.Store(p.endian.Uint64(value))
	}
	p.Info("open", zap.String("dir", p.opts.DataDir), zap.Uint64("appliedCount", p.appliedCount.Load()))
	return nil
}

func (p *PebbleBackend) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.db == nil {
		return nil
	}
	err := p.db.Close()
	p.db = nil
	return err
}

func (p *PebbleBackend) Apply(req vr.ClientRequest) error {
	cmd, err := DecodeCommand(req.Op)
	if err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.db == nil {
		return ErrClosed
	}

	batch := p.db.NewBatch()
	defer batch.Close()

	if req.ClientID != "" {
		last, ok, err := p.lastRequestNum(req.ClientID)
		if err != nil {
			return err
		}
		if duplicate(last, ok, req.RequestNum) {
			p.Debug("skip duplicate request", zap.String("clientID", req.ClientID), zap.Uint64("requestNum", req.RequestNum), zap.Uint64("last", last))
			return nil
		}
		if err = batch.Set(clientKey(req.ClientID), p.uint64Bytes(req.RequestNum), p.wo); err != nil {
			return err
		}
	}

	switch cmd.Type {
	case CmdSet:
		err = batch.Set(dataKey(cmd.Key), cmd.Value, p.wo)
	case CmdDelete:
		err = batch.Delete(dataKey(cmd.Key), p.wo)
	}
	if err != nil {
		return err
	}
	if err = batch.Set(metaAppliedKey, p.uint64Bytes(p.appliedCount.Load()+1), p.wo); err != nil {
		return err
	}
	if err = batch.Commit(p.wo); err != nil {
		return errors.Wrap(err, "commit batch")
	}
	if req.ClientID != "" {
		p.clients.set(req.ClientID, req.RequestNum)
	}
	p.appliedCount.Inc()
	return nil
}

func (p *PebbleBackend) Get(key string) ([]byte, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.db == nil {
		return nil, ErrClosed
	}
	return p.get(dataKey(key))
}

func (p *PebbleBackend) AppliedCount() uint64 {
	return p.appliedCount.Load()
}

// lastRequestNum 缓存未命中时从存储里读
func (p *PebbleBackend) lastRequestNum(clientID string) (uint64, bool, error) {
	if last, ok := p.clients.get(clientID); ok {
		return last, true, nil
	}
	value, err := p.get(clientKey(clientID))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return 0, false, nil
		}
		return 0, false, err
	}
	last := p.endian.Uint64(value)
	p.clients.set(clientID, last)
	return last, true, nil
}

func (p *PebbleBackend) get(key []byte) ([]byte, error) {
	value, closer, err := p.db.Get(key)
	if err != nil {
		if errors.Is(err, pebble.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	defer closer.Close()
	return append([]byte(nil), value...), nil
}

func (p *PebbleBackend) uint64Bytes(v uint64) []byte {
	b := make([]byte, 8)
	p.endian.PutUint64(b, v)
	return b
}

func dataKey(key string) []byte {
	return append(append([]byte(nil), dataPrefix...), key...)
}

func clientKey(clientID string) []byte {
	return append(append([]byte(nil), clientPrefix...), clientID...)
}
