package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/devrev/prboard/internal/store"
)

type memKV struct {
	mu   sync.Mutex
	data map[string]string
}

func newMemKV() *memKV { return &memKV{data: make(map[string]string)} }

func (m *memKV) Get(_ context.Context, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.data[key]
	if !ok {
		return "", store.ErrNotFound
	}
	return v, nil
}

func (m *memKV) Set(_ context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = value
	return nil
}

func (m *memKV) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, key)
	return nil
}

func (m *memKV) Ping(context.Context) error { return nil }
func (m *memKV) Close() error               { return nil }

func TestVisitRoundTrip(t *testing.T) {
	svc := NewVisitService(newMemKV(), zap.NewNop())
	now := time.Date(2024, 4, 1, 12, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return now }

	ctx := context.Background()
	require.NoError(t, svc.RecordVisit(ctx, "acme/widgets#42"))

	ms, err := svc.LastVisit(ctx, "acme/widgets#42")
	require.NoError(t, err)
	assert.Equal(t, now.UnixMilli(), ms)
}

func TestLastVisit_NeverVisited(t *testing.T) {
	svc := NewVisitService(newMemKV(), zap.NewNop())
	ms, err := svc.LastVisit(context.Background(), "acme/widgets#1")
	require.NoError(t, err)
	assert.Equal(t, int64(0), ms)
}

func TestLastVisit_CorruptValueSelfHeals(t *testing.T) {
	kv := newMemKV()
	require.NoError(t, kv.Set(context.Background(), "prboard:visit:x", "garbage"))

	svc := NewVisitService(kv, zap.NewNop())
	ms, err := svc.LastVisit(context.Background(), "x")
	require.NoError(t, err)
	assert.Equal(t, int64(0), ms)

	_, err = kv.Get(context.Background(), "prboard:visit:x")
	assert.Equal(t, store.ErrNotFound, err, "corrupt record is purged")
}

func TestFavoritesRoundTrip(t *testing.T) {
	svc := NewVisitService(newMemKV(), zap.NewNop())
	ctx := context.Background()

	favs, err := svc.Favorites(ctx)
	require.NoError(t, err)
	assert.Empty(t, favs)

	require.NoError(t, svc.SetFavorites(ctx, []string{"acme/widgets", "acme/gadgets"}))
	favs, err = svc.Favorites(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"acme/widgets", "acme/gadgets"}, favs)
}

func TestFavorites_CorruptListResets(t *testing.T) {
	kv := newMemKV()
	require.NoError(t, kv.Set(context.Background(), "prboard:favorites", "{{{"))

	svc := NewVisitService(kv, zap.NewNop())
	favs, err := svc.Favorites(context.Background())
	require.NoError(t, err)
	assert.Empty(t, favs)
}
