package topics

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lsst-ts/salobj-go/internal/envelope"
)

// newTestReadTopic builds a ReadTopic with no live Kafka client, for
// exercising queue/Pop semantics directly via push. The queue bound is
// always defaultQueueCapacity; maxHistory never affects it.
func newTestReadTopic() *ReadTopic {
	return &ReadTopic{
		name:   "test",
		signal: make(chan struct{}),
	}
}

func sampleWithSeq(seq int32) Sample {
	return Sample{Envelope: envelope.Envelope{PrivateSeqNum: seq}}
}

func TestPushDropsOldestOverCapacity(t *testing.T) {
	rt := newTestReadTopic()
	for seq := int32(1); seq <= defaultQueueCapacity+1; seq++ {
		rt.push(sampleWithSeq(seq))
	}

	require.Len(t, rt.queue, defaultQueueCapacity)
	assert.EqualValues(t, 2, rt.queue[0].Envelope.PrivateSeqNum)
	assert.EqualValues(t, defaultQueueCapacity+1, rt.queue[len(rt.queue)-1].Envelope.PrivateSeqNum)
}

func TestPopFrontReturnsOldestQueued(t *testing.T) {
	rt := newTestReadTopic()
	rt.push(sampleWithSeq(1))
	rt.push(sampleWithSeq(2))

	s, ok, err := rt.PopFront(context.Background(), false, time.Second)
	require.NoError(t, err)
	require.True(t, ok)
	assert.EqualValues(t, 1, s.Envelope.PrivateSeqNum)

	assert.True(t, rt.HasData())
}

func TestPopBackReturnsNewestQueued(t *testing.T) {
	rt := newTestReadTopic()
	rt.push(sampleWithSeq(1))
	rt.push(sampleWithSeq(2))

	s, ok, err := rt.PopBack(context.Background(), false, time.Second)
	require.NoError(t, err)
	require.True(t, ok)
	assert.EqualValues(t, 2, s.Envelope.PrivateSeqNum)
}

func TestPopFrontFlushDiscardsBacklog(t *testing.T) {
	rt := newTestReadTopic()
	rt.push(sampleWithSeq(1))

	_, ok, err := rt.PopFront(context.Background(), true, 50*time.Millisecond)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestPopFrontTimesOutWhenEmpty(t *testing.T) {
	rt := newTestReadTopic()
	start := time.Now()
	s, ok, err := rt.PopFront(context.Background(), false, 30*time.Millisecond)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, Sample{}, s)
	assert.GreaterOrEqual(t, time.Since(start), 30*time.Millisecond)
}

func TestPopFrontWakesOnArrival(t *testing.T) {
	rt := newTestReadTopic()
	go func() {
		time.Sleep(20 * time.Millisecond)
		rt.push(sampleWithSeq(7))
	}()

	s, ok, err := rt.PopFront(context.Background(), false, time.Second)
	require.NoError(t, err)
	require.True(t, ok)
	assert.EqualValues(t, 7, s.Envelope.PrivateSeqNum)
}

func TestFlushClearsQueueWithoutAffectingHasData(t *testing.T) {
	rt := newTestReadTopic()
	rt.push(sampleWithSeq(1))
	rt.Flush()

	assert.Empty(t, rt.queue)
	assert.True(t, rt.HasData())
}

func TestGetReturnsNewestWithoutRemoving(t *testing.T) {
	rt := newTestReadTopic()
	rt.push(sampleWithSeq(1))
	rt.push(sampleWithSeq(2))

	s, ok := rt.Get()
	require.True(t, ok)
	assert.EqualValues(t, 2, s.Envelope.PrivateSeqNum)
	assert.Len(t, rt.queue, 2)
}
