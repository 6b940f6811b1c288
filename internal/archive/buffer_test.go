package archive

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSink struct {
	mu      sync.Mutex
	batches [][]Row
	fail    error
	perRow  []RowError
}

func (f *fakeSink) Insert(_ context.Context, rows []Row) ([]RowError, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail != nil {
		return nil, f.fail
	}
	batch := make([]Row, len(rows))
	copy(batch, rows)
	f.batches = append(f.batches, batch)
	return f.perRow, nil
}

func (f *fakeSink) Close() error { return nil }

func (f *fakeSink) batchSizes() []int {
	f.mu.Lock()
	defer f.mu.Unlock()
	sizes := make([]int, len(f.batches))
	for i, b := range f.batches {
		sizes[i] = len(b)
	}
	return sizes
}

func row(i int) Row {
	return Row{EventID: fmt.Sprintf("e%d", i), EventType: "lead.created"}
}

func TestBuffer_FlushesWhenBatchFills(t *testing.T) {
	sink := &fakeSink{}
	b := NewBuffer(sink, 3, time.Hour)
	defer b.Close(context.Background())

	for i := range 3 {
		b.Add(context.Background(), row(i))
	}

	require.Equal(t, []int{3}, sink.batchSizes())
}

func TestBuffer_BelowBatchSizeWaitsForFlush(t *testing.T) {
	sink := &fakeSink{}
	b := NewBuffer(sink, 10, time.Hour)

	b.Add(context.Background(), row(0))
	b.Add(context.Background(), row(1))
	assert.Empty(t, sink.batchSizes())

	b.Flush(context.Background())
	assert.Equal(t, []int{2}, sink.batchSizes())

	b.Close(context.Background())
	assert.Equal(t, []int{2}, sink.batchSizes(), "close with empty buffer writes nothing")
}

func TestBuffer_CloseFlushesRemainder(t *testing.T) {
	sink := &fakeSink{}
	b := NewBuffer(sink, 10, time.Hour)

	b.Add(context.Background(), row(0))
	b.Close(context.Background())

	assert.Equal(t, []int{1}, sink.batchSizes())
}

func TestBuffer_PeriodicFlusher(t *testing.T) {
	sink := &fakeSink{}
	b := NewBuffer(sink, 100, 20*time.Millisecond)
	defer b.Close(context.Background())

	b.Add(context.Background(), row(0))

	assert.Eventually(t, func() bool {
		return len(sink.batchSizes()) == 1
	}, time.Second, 5*time.Millisecond)
}

func TestBuffer_AddsDuringFlushLandInNextBatch(t *testing.T) {
	sink := &fakeSink{}
	b := NewBuffer(sink, 2, time.Hour)

	b.Add(context.Background(), row(0))
	b.Add(context.Background(), row(1)) // triggers flush of 2
	b.Add(context.Background(), row(2))
	b.Close(context.Background()) // flushes the 1 remaining

	assert.Equal(t, []int{2, 1}, sink.batchSizes())
}

func TestBuffer_SinkErrorDropsBatch(t *testing.T) {
	sink := &fakeSink{fail: errors.New("warehouse down")}
	b := NewBuffer(sink, 2, time.Hour)

	b.Add(context.Background(), row(0))
	b.Add(context.Background(), row(1))
	b.Close(context.Background())

	// Best-effort: the failed batch is logged and dropped, nothing retries.
	assert.Empty(t, sink.batchSizes())
}

func TestBuffer_ConcurrentAdds(t *testing.T) {
	sink := &fakeSink{}
	b := NewBuffer(sink, 10, time.Hour)

	var wg sync.WaitGroup
	for i := range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			b.Add(context.Background(), row(i))
		}()
	}
	wg.Wait()
	b.Close(context.Background())

	total := 0
	for _, n := range sink.batchSizes() {
		assert.LessOrEqual(t, n, 10)
		total += n
	}
	assert.Equal(t, 50, total, "every row lands in exactly one batch")
}
