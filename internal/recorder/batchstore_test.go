package recorder

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/user/llm-gateway-proxy/internal/models"
)

type fakeStore struct {
	mu      sync.Mutex
	entries []*models.RequestLogEntry
}

func (f *fakeStore) Insert(ctx context.Context, entry *models.RequestLogEntry) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.entries = append(f.entries, entry)
	return nil
}

func (f *fakeStore) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.entries)
}

func TestBatchingStore_FlushesOnStop(t *testing.T) {
	inner := &fakeStore{}
	bs := NewBatchingStore(inner, nil)

	require.NoError(t, bs.Insert(context.Background(), &models.RequestLogEntry{RequestID: "r1"}))
	require.NoError(t, bs.Insert(context.Background(), &models.RequestLogEntry{RequestID: "r2"}))

	bs.Stop()
	assert.Equal(t, 2, inner.count())
}

func TestBatchingStore_FlushesOnTicker(t *testing.T) {
	inner := &fakeStore{}
	bs := &BatchingStore{
		inner:         inner,
		queue:         make(chan *models.RequestLogEntry, 10),
		done:          make(chan struct{}),
		batchSize:     100,
		flushInterval: 20 * time.Millisecond,
	}
	bs.wg.Add(1)
	go bs.run()

	require.NoError(t, bs.Insert(context.Background(), &models.RequestLogEntry{RequestID: "r1"}))

	require.Eventually(t, func() bool {
		return inner.count() == 1
	}, time.Second, 5*time.Millisecond)

	bs.Stop()
}

func TestBatchingStore_FlushesOnBatchSizeThreshold(t *testing.T) {
	inner := &fakeStore{}
	bs := &BatchingStore{
		inner:         inner,
		queue:         make(chan *models.RequestLogEntry, 10),
		done:          make(chan struct{}),
		batchSize:     3,
		flushInterval: time.Hour,
	}
	bs.wg.Add(1)
	go bs.run()

	for i := 0; i < 3; i++ {
		require.NoError(t, bs.Insert(context.Background(), &models.RequestLogEntry{RequestID: "r"}))
	}

	require.Eventually(t, func() bool {
		return inner.count() == 3
	}, time.Second, 5*time.Millisecond)

	bs.Stop()
}
