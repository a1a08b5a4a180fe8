package cache

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestMetrics_Snapshot(t *testing.T) {
	m := NewMetrics()

	m.RecordHit(100, 2*time.Millisecond)
	m.RecordHit(50, 4*time.Millisecond)
	m.RecordMiss(0)
	m.RecordPut(300, 300, time.Millisecond)
	m.RecordPut(200, 450, 3*time.Millisecond)
	m.RecordPut(10, 120, time.Millisecond)
	m.RecordEviction(300)
	m.RecordRejected()
	m.RecordCorrupted()
	m.RecordError()

	s := m.Snapshot()
	assert.Equal(t, int64(2), s.Hits)
	assert.Equal(t, int64(1), s.Misses)
	assert.InDelta(t, 2.0/3.0, s.HitRate, 1e-9)
	assert.Equal(t, int64(3), s.Puts)
	assert.Equal(t, int64(1), s.Evictions)
	assert.Equal(t, int64(1), s.Rejected)
	assert.Equal(t, int64(1), s.Corrupted)
	assert.Equal(t, int64(1), s.Errors)
	assert.Equal(t, int64(150), s.BytesServed)
	assert.Equal(t, int64(510), s.BytesWritten)
	assert.Equal(t, int64(300), s.BytesEvicted)
	assert.Equal(t, int64(450), s.PeakUsedBytes)
	assert.Equal(t, 2*time.Millisecond, s.AverageGetLatency)
	assert.Equal(t, 5*time.Millisecond/3, s.AveragePutLatency)
}

func TestMetrics_Empty(t *testing.T) {
	s := NewMetrics().Snapshot()
	assert.Zero(t, s.HitRate)
	assert.Zero(t, s.AverageGetLatency)
	assert.Zero(t, s.TimeSinceLastEviction)
}

func TestMetrics_Concurrent(t *testing.T) {
	m := NewMetrics()
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				m.RecordHit(1, time.Microsecond)
				m.RecordMiss(time.Microsecond)
				_ = m.Snapshot()
			}
		}()
	}
	wg.Wait()

	s := m.Snapshot()
	assert.Equal(t, int64(1000), s.Hits)
	assert.Equal(t, int64(1000), s.Misses)
}
