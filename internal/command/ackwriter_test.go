package command

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lsst-ts/salobj-go/internal/envelope"
)

// fakeAckWriteTopic records every write, and every sequence-number
// reservation, in the order the drain loop made them.
type fakeAckWriteTopic struct {
	mu       sync.Mutex
	reserved []int32
	written  []ackWireRecord
}

func (f *fakeAckWriteTopic) ReserveSeqNum(n int32) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reserved = append(f.reserved, n)
}

func (f *fakeAckWriteTopic) WriteTyped(ctx context.Context, requestedSeq int32, payload any) (int32, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.written = append(f.written, payload.(ackWireRecord))
	return requestedSeq, nil
}

func (f *fakeAckWriteTopic) snapshot() []ackWireRecord {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]ackWireRecord(nil), f.written...)
}

func TestAckWriterDrainsInArrivalOrder(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	fake := &fakeAckWriteTopic{}
	aw := newAckWriter(ctx, fake, logrus.NewEntry(logrus.New()))

	aw.Enqueue(envelope.CommandAck{Ack: envelope.InProgress, SeqNum: 1})
	aw.Enqueue(envelope.CommandAck{Ack: envelope.Complete, SeqNum: 1})

	require.Eventually(t, func() bool {
		return len(fake.snapshot()) == 2
	}, time.Second, 5*time.Millisecond)

	written := fake.snapshot()
	assert.Equal(t, envelope.InProgress.WireValue(), written[0].Ack)
	assert.Equal(t, envelope.Complete.WireValue(), written[1].Ack)
}

func TestAckWriterReservesSeqNumBeforeWriting(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	fake := &fakeAckWriteTopic{}
	aw := newAckWriter(ctx, fake, logrus.NewEntry(logrus.New()))

	aw.Enqueue(envelope.CommandAck{Ack: envelope.Complete, SeqNum: 42, Result: "done"})

	require.Eventually(t, func() bool {
		fake.mu.Lock()
		defer fake.mu.Unlock()
		return len(fake.reserved) == 1
	}, time.Second, 5*time.Millisecond)

	assert.EqualValues(t, 42, fake.reserved[0])
}
