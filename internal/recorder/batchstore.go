package recorder

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/user/llm-gateway-proxy/internal/models"
)

// BatchingStore wraps a Store and coalesces Insert calls into batches,
// flushed every flushInterval or once batchSize entries have queued,
// whichever comes first. A full queue falls back to a synchronous
// Insert rather than blocking the caller (a Recorder's flush goroutine).
type BatchingStore struct {
	inner         Store
	logger        *zap.Logger
	queue         chan *models.RequestLogEntry
	done          chan struct{}
	wg            sync.WaitGroup
	batchSize     int
	flushInterval time.Duration
}

// NewBatchingStore wraps inner with the teacher's default 100-entry /
// 5-second batching policy and starts its background writer.
func NewBatchingStore(inner Store, logger *zap.Logger) *BatchingStore {
	bs := &BatchingStore{
		inner:         inner,
		logger:        logger,
		queue:         make(chan *models.RequestLogEntry, 1000),
		done:          make(chan struct{}),
		batchSize:     100,
		flushInterval: 5 * time.Second,
	}
	bs.wg.Add(1)
	go bs.run()
	return bs
}

// Insert queues entry for the next batch flush, falling back to a
// synchronous insert if the queue is full.
func (bs *BatchingStore) Insert(ctx context.Context, entry *models.RequestLogEntry) error {
	select {
	case bs.queue <- entry:
		return nil
	default:
		if bs.logger != nil {
			bs.logger.Warn("request log queue full, inserting synchronously", zap.String("request_id", entry.RequestID))
		}
		return bs.inner.Insert(ctx, entry)
	}
}

func (bs *BatchingStore) run() {
	defer bs.wg.Done()
	batch := make([]*models.RequestLogEntry, 0, bs.batchSize)
	ticker := time.NewTicker(bs.flushInterval)
	defer ticker.Stop()

	flush := func() {
		if len(batch) == 0 {
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		for _, entry := range batch {
			if err := bs.inner.Insert(ctx, entry); err != nil && bs.logger != nil {
				bs.logger.Error("failed to insert batched request log", zap.String("request_id", entry.RequestID), zap.Error(err))
			}
		}
		batch = batch[:0]
	}

	for {
		select {
		case <-bs.done:
			flush()
			return
		case entry := <-bs.queue:
			batch = append(batch, entry)
			if len(batch) >= bs.batchSize {
				flush()
			}
		case <-ticker.C:
			flush()
		}
	}
}

// Stop flushes any queued entries and halts the background writer. Call
// during graceful shutdown, after Await has returned.
func (bs *BatchingStore) Stop() {
	close(bs.done)
	bs.wg.Wait()
}
