package kvbackend_test

import (
	"testing"

	"github.com/WuKongIM/wkvr/pkg/kvbackend"
	"github.com/WuKongIM/wkvr/pkg/vr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func req(clientID string, num uint64, cmd kvbackend.Command) vr.ClientRequest {
	return vr.ClientRequest{
		Op:         cmd.Encode(),
		ClientID:   clientID,
		RequestNum: num,
	}
}

func TestCommandDecode(t *testing.T) {
	cmd := kvbackend.SetCommand("name", []byte("wkvr"))
	got, err := kvbackend.DecodeCommand(cmd.Encode())
	require.NoError(t, err)
	assert.Equal(t, cmd, got)

	_, err = kvbackend.DecodeCommand([]byte{9})
	assert.ErrorIs(t, err, kvbackend.ErrUnknownCommand)

	_, err = kvbackend.DecodeCommand(kvbackend.SetCommand("", nil).Encode())
	assert.ErrorIs(t, err, kvbackend.ErrEmptyKey)

	_, err = kvbackend.DecodeCommand(nil)
	assert.Error(t, err)
}

func TestMemoryBackend(t *testing.T) {
	b, err := kvbackend.NewMemoryBackend()
	require.NoError(t, err)

	require.NoError(t, b.Apply(req("c1", 1, kvbackend.SetCommand("a", []byte("1")))))
	require.NoError(t, b.Apply(req("c1", 2, kvbackend.SetCommand("b", []byte("2")))))
	require.NoError(t, b.Apply(req("c1", 3, kvbackend.DeleteCommand("a"))))

	_, err = b.Get("a")
	assert.ErrorIs(t, err, kvbackend.ErrNotFound)
	value, err := b.Get("b")
	require.NoError(t, err)
	assert.Equal(t, []byte("2"), value)
	assert.Equal(t, uint64(3), b.AppliedCount())
}

// 同一客户端重复的请求号只执行一次
func TestMemoryBackendDedup(t *testing.T) {
	b, err := kvbackend.NewMemoryBackend(kvbackend.WithDedupCacheSize(10))
	require.NoError(t, err)

	require.NoError(t, b.Apply(req("c1", 1, kvbackend.SetCommand("a", []byte("1")))))
	require.NoError(t, b.Apply(req("c1", 1, kvbackend.SetCommand("a", []byte("dup")))))
	require.NoError(t, b.Apply(req("c2", 1, kvbackend.SetCommand("b", []byte("1")))))

	value, err := b.Get("a")
	require.NoError(t, err)
	assert.Equal(t, []byte("1"), value)

	applied := b.Applied()
	require.Len(t, applied, 2)
	assert.Equal(t, "c1", applied[0].ClientID)
	assert.Equal(t, "c2", applied[1].ClientID)
}

// 只保留最近的执行记录，总数不受影响
func TestMemoryBackendAppliedHistory(t *testing.T) {
	b, err := kvbackend.NewMemoryBackend(kvbackend.WithAppliedHistory(3))
	require.NoError(t, err)

	for i := uint64(1); i <= 10; i++ {
		require.NoError(t, b.Apply(req("c1", i, kvbackend.SetCommand("a", []byte("x")))))
	}
	require.NoError(t, b.Apply(req("c1", 10, kvbackend.SetCommand("a", []byte("dup")))))

	applied := b.Applied()
	require.Len(t, applied, 3)
	assert.Equal(t, uint64(8), applied[0].RequestNum)
	assert.Equal(t, uint64(10), applied[2].RequestNum)
	assert.Equal(t, uint64(10), b.AppliedCount())
	assert.Equal(t, uint64(1), b.SkippedCount())

	b, err = kvbackend.NewMemoryBackend(kvbackend.WithAppliedHistory(0))
	require.NoError(t, err)
	require.NoError(t, b.Apply(req("c1", 1, kvbackend.SetCommand("a", []byte("x")))))
	assert.Empty(t, b.Applied())
	assert.Equal(t, uint64(1), b.AppliedCount())
}

func TestMemoryBackendInvalidCommand(t *testing.T) {
	b, err := kvbackend.NewMemoryBackend()
	require.NoError(t, err)
	err = b.Apply(vr.ClientRequest{Op: []byte("bad"), ClientID: "c1", RequestNum: 1})
	assert.Error(t, err)
	assert.Equal(t, uint64(0), b.AppliedCount())
}

func TestPebbleBackend(t *testing.T) {
	dir := t.TempDir()
	b, err := kvbackend.NewPebbleBackend(kvbackend.WithDir(dir))
	require.NoError(t, err)
	require.NoError(t, b.Open())

	require.NoError(t, b.Apply(req("c1", 1, kvbackend.SetCommand("a", []byte("1")))))
	require.NoError(t, b.Apply(req("c1", 2, kvbackend.SetCommand("b", []byte("2")))))
	require.NoError(t, b.Apply(req("c1", 3, kvbackend.DeleteCommand("b"))))
	require.NoError(t, b.Apply(req("c1", 2, kvbackend.SetCommand("b", []byte("dup")))))

	value, err := b.Get("a")
	require.NoError(t, err)
	assert.Equal(t, []byte("1"), value)
	_, err = b.Get("b")
	assert.ErrorIs(t, err, kvbackend.ErrNotFound)
	assert.Equal(t, uint64(3), b.AppliedCount())
	require.NoError(t, b.Close())

	_, err = b.Get("a")
	assert.ErrorIs(t, err, kvbackend.ErrClosed)
}

// 重启后请求号和执行数量仍然有效
func TestPebbleBackendReopen(t *testing.T) {
	dir := t.TempDir()
	b, err := kvbackend.NewPebbleBackend(kvbackend.WithDir(dir))
	require.NoError(t, err)
	require.NoError(t, b.Open())
	require.NoError(t, b.Apply(req("c1", 5, kvbackend.SetCommand("a", []byte("1")))))
	require.NoError(t, b.Close())

	b, err = kvbackend.NewPebbleBackend(kvbackend.WithDir(dir))
	require.NoError(t, err)
	require.NoError(t, b.Open())
	defer b.Close()

	assert.Equal(t, uint64(1), b.AppliedCount())
	require.NoError(t, b.Apply(req("c1", 5, kvbackend.SetCommand("a", []byte("dup")))))
	value, err := b.Get("a")
	require.NoError(t, err)
	assert.Equal(t, []byte("1"), value)
	assert.Equal(t, uint64(1), b.AppliedCount())
}
