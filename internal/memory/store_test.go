package memory

import (
	"context"
	"errors"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"portfolio-agent-go/internal/config"
	"portfolio-agent-go/internal/storage"
	"portfolio-agent-go/internal/storage/models"
	"portfolio-agent-go/internal/types"
)

func testLogger() zerolog.Logger {
	return zerolog.Nop()
}

func newMiniRedis(t *testing.T) (*storage.Redis, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return storage.NewRedisFromClient(client), mr
}

func TestRedisStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	r, mr := newMiniRedis(t)
	store, err := NewRedisStore(r, "", "")
	require.NoError(t, err)
	assert.Equal(t, "app:memory:entries:default", store.Key())

	entries, err := store.Load(ctx)
	require.NoError(t, err, "键不存在时返回空列表")
	assert.Empty(t, entries)

	c := NewCache(WithPersister(store))
	_, err = c.Store(ctx, "Tell me about yourself", longAnswer, []types.SectionName{types.SectionSummary})
	require.NoError(t, err)
	assert.True(t, mr.Exists(store.Key()))

	reloaded := NewCache(WithPersister(store))
	require.NoError(t, reloaded.Load(ctx))
	assert.Equal(t, 1, reloaded.Len())
}

func TestRedisStoreCorruptValue(t *testing.T) {
	ctx := context.Background()
	r, mr := newMiniRedis(t)
	store, err := NewRedisStore(r, "custom:key", "ignored")
	require.NoError(t, err)
	require.NoError(t, mr.Set("custom:key", "not-json"))

	_, err = store.Load(ctx)
	require.ErrorIs(t, err, ErrCorruptState)

	c := NewCache(WithPersister(store))
	require.NoError(t, c.Load(ctx))
	assert.Zero(t, c.Len())
}

func TestRedisStoreUnavailable(t *testing.T) {
	r, mr := newMiniRedis(t)
	store, err := NewRedisStore(r, "", "alice")
	require.NoError(t, err)
	assert.Equal(t, "app:memory:entries:alice", store.Key())
	mr.Close()

	c := NewCache(WithPersister(store))
	require.Error(t, c.Load(context.Background()), "后端不可用时返回错误")
	assert.Zero(t, c.Len())
}

type fakeSnapshotDB struct {
	rows map[string]*models.MemorySnapshot
	err  error
}

func (f *fakeSnapshotDB) GetMemorySnapshot(_ context.Context, subject string) (*models.MemorySnapshot, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.rows[subject], nil
}

func (f *fakeSnapshotDB) UpsertMemorySnapshot(_ context.Context, snap *models.MemorySnapshot) error {
	if f.err != nil {
		return f.err
	}
	if f.rows == nil {
		f.rows = make(map[string]*models.MemorySnapshot)
	}
	f.rows[snap.Subject] = snap
	return nil
}

func TestMySQLStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	db := &fakeSnapshotDB{}
	store, err := NewMySQLStore(db, "")
	require.NoError(t, err)

	c := NewCache(WithPersister(store))
	require.NoError(t, c.Load(ctx), "没有记录时以空缓存启动")
	_, err = c.Store(ctx, "Where did you study?", longAnswer, nil)
	require.NoError(t, err)

	row := db.rows["default"]
	require.NotNil(t, row)
	assert.Equal(t, 1, row.EntryCount)

	reloaded := NewCache(WithPersister(store))
	require.NoError(t, reloaded.Load(ctx))
	assert.Equal(t, []string{"Where did you study?"}, questions(reloaded.Entries()))

	db.rows["default"].Entries = []byte("{")
	_, err = store.Load(ctx)
	require.ErrorIs(t, err, ErrCorruptState)

	_, err = NewMySQLStore(nil, "x")
	require.Error(t, err)
}

func TestMySQLStorePropagatesDBErrors(t *testing.T) {
	boom := errors.New("db down")
	store, err := NewMySQLStore(&fakeSnapshotDB{err: boom}, "s")
	require.NoError(t, err)
	_, err = store.Load(context.Background())
	require.ErrorIs(t, err, boom)
	require.ErrorIs(t, store.Save(context.Background(), nil), boom)
}

func TestNewPersister(t *testing.T) {
	cfg := config.DefaultConfig().Memory
	cfg.FilePath = "memory.json"

	p, err := NewPersister(cfg, nil, testLogger())
	require.NoError(t, err)
	assert.IsType(t, &FileStore{}, p)

	cfg.Backend = "none"
	p, err = NewPersister(cfg, nil, testLogger())
	require.NoError(t, err)
	assert.Nil(t, p)

	cfg.Backend = "redis"
	_, err = NewPersister(cfg, nil, testLogger())
	require.Error(t, err, "Redis 未初始化时应报错")

	r, _ := newMiniRedis(t)
	p, err = NewPersister(cfg, &storage.Storage{Redis: r}, testLogger())
	require.NoError(t, err)
	assert.IsType(t, &RedisStore{}, p)

	cfg.Backend = "mysql"
	_, err = NewPersister(cfg, &storage.Storage{}, testLogger())
	require.Error(t, err)

	cfg.Backend = "bolt"
	_, err = NewPersister(cfg, nil, testLogger())
	require.Error(t, err)
}
