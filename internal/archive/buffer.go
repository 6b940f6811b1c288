package archive

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Buffer accumulates rows and flushes them to the sink when the batch fills
// or the flush interval elapses, whichever comes first. Rows that fail to
// write are logged and dropped; archival never blocks event processing.
type Buffer struct {
	sink      Sink
	batchSize int

	mu   sync.Mutex
	rows []Row

	stop chan struct{}
	done chan struct{}
}

// NewBuffer creates a buffer and starts the periodic flusher.
func NewBuffer(sink Sink, batchSize int, interval time.Duration) *Buffer {
	if batchSize <= 0 {
		batchSize = 50
	}
	if interval <= 0 {
		interval = 10 * time.Second
	}
	b := &Buffer{
		sink:      sink,
		batchSize: batchSize,
		rows:      make([]Row, 0, batchSize),
		stop:      make(chan struct{}),
		done:      make(chan struct{}),
	}
	go b.flushLoop(interval)
	return b
}

// Add appends a row. When the batch is full it is flushed inline; rows added
// concurrently during the flush land in the next batch.
func (b *Buffer) Add(ctx context.Context, row Row) {
	b.mu.Lock()
	b.rows = append(b.rows, row)
	if len(b.rows) < b.batchSize {
		b.mu.Unlock()
		return
	}
	batch := b.swapLocked()
	b.mu.Unlock()

	b.writeBatch(ctx, batch)
}

// Flush writes out whatever is buffered right now.
func (b *Buffer) Flush(ctx context.Context) {
	b.mu.Lock()
	batch := b.swapLocked()
	b.mu.Unlock()

	b.writeBatch(ctx, batch)
}

// Close stops the periodic flusher and flushes any remaining rows. Call
// after the listener has drained so nothing is added afterwards.
func (b *Buffer) Close(ctx context.Context) {
	close(b.stop)
	<-b.done
	b.Flush(ctx)
}

// swapLocked takes the current batch and resets the buffer. Caller holds mu.
func (b *Buffer) swapLocked() []Row {
	if len(b.rows) == 0 {
		return nil
	}
	batch := b.rows
	b.rows = make([]Row, 0, b.batchSize)
	return batch
}

func (b *Buffer) flushLoop(interval time.Duration) {
	defer close(b.done)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			b.Flush(context.Background())
		case <-b.stop:
			return
		}
	}
}

// writeBatch pushes a batch to the sink. Failures are logged, not retried:
// the archive is best-effort and must never hold up acknowledgment.
func (b *Buffer) writeBatch(ctx context.Context, batch []Row) {
	if len(batch) == 0 {
		return
	}

	failed, err := b.sink.Insert(ctx, batch)
	if err != nil {
		zap.L().Error("archive batch write failed",
			zap.Int("rows", len(batch)),
			zap.Error(err),
		)
		return
	}
	for _, f := range failed {
		zap.L().Warn("archive row rejected",
			zap.String("event_id", f.Row.EventID),
			zap.String("event_type", f.Row.EventType),
			zap.Error(f.Err),
		)
	}
	zap.L().Debug("archive batch written",
		zap.Int("rows", len(batch)),
		zap.Int("rejected", len(failed)),
	)
}
