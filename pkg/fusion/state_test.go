package fusion

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teslashibe/go-rangegate/pkg/frame"
	"github.com/teslashibe/go-rangegate/pkg/rangefinder"
)

func TestSharedState_Empty(t *testing.T) {
	s := NewSharedState()
	f, d, ok := s.Snapshot()
	assert.Nil(t, f)
	assert.Zero(t, d)
	assert.False(t, ok)
}

func TestSharedState_LatestWins(t *testing.T) {
	s := NewSharedState()

	for i := 1; i <= 3; i++ {
		f := frame.New(2, 2)
		f.Seq = uint64(i)
		s.PublishFrame(f)
		s.PublishDistance(rangefinder.Reading{DistanceCM: i * 10})
	}

	f, d, ok := s.Snapshot()
	require.NotNil(t, f)
	assert.Equal(t, uint64(3), f.Seq)
	assert.Equal(t, 30, d)
	assert.True(t, ok)

	frames, distances := s.Counts()
	assert.Equal(t, uint64(3), frames)
	assert.Equal(t, uint64(3), distances)
}

func TestSharedState_PublishCopiesFrame(t *testing.T) {
	s := NewSharedState()
	f := frame.New(1, 1)
	s.PublishFrame(f)

	f.Data[0] = 0xAA

	got, _, _ := s.Snapshot()
	assert.Zero(t, got.Data[0], "producer reuse of its buffer must not leak into the state")
}

func TestSharedState_Reset(t *testing.T) {
	s := NewSharedState()
	s.PublishFrame(frame.New(1, 1))
	s.PublishDistance(rangefinder.Reading{DistanceCM: 5})

	s.Reset()

	f, _, ok := s.Snapshot()
	assert.Nil(t, f)
	assert.False(t, ok)
}

func TestSharedState_ConcurrentProducers(t *testing.T) {
	s := NewSharedState()
	var wg sync.WaitGroup

	wg.Add(3)
	go func() {
		defer wg.Done()
		for i := 0; i < 500; i++ {
			s.PublishFrame(frame.New(4, 4))
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < 500; i++ {
			s.PublishDistance(rangefinder.Reading{DistanceCM: i})
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < 500; i++ {
			if f, _, _ := s.Snapshot(); f != nil {
				assert.True(t, f.Valid())
			}
		}
	}()
	wg.Wait()

	_, d, _ := s.Snapshot()
	assert.Equal(t, 499, d)
}
