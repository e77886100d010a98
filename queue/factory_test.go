package queue

import (
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestFactoryDefaultsToMemory(t *testing.T) {
	q, err := New(Options{}, zap.NewNop())
	require.NoError(t, err)
	defer func() { _ = q.Close() }()
	assert.IsType(t, (*MemoryQueue)(nil), q)
}

func TestFactoryMemoryBackend(t *testing.T) {
	q, err := New(Options{Backend: BackendMemory}, zap.NewNop())
	require.NoError(t, err)
	defer func() { _ = q.Close() }()
	assert.IsType(t, (*MemoryQueue)(nil), q)
}

func TestFactoryRedisBackend(t *testing.T) {
	mr := miniredis.RunT(t)

	q, err := New(Options{Backend: BackendRedis, Redis: RedisOptions{Addr: mr.Addr()}}, zap.NewNop())
	require.NoError(t, err)
	defer func() { _ = q.Close() }()
	assert.IsType(t, (*RedisQueue)(nil), q)
}

func TestFactoryUnknownBackend(t *testing.T) {
	_, err := New(Options{Backend: "etcd"}, zap.NewNop())
	assert.ErrorContains(t, err, "unsupported queue backend")
}
