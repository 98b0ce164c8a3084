package command

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/lsst-ts/salobj-go/internal/envelope"
	"github.com/lsst-ts/salobj-go/internal/topics"
)

// ackWriterCapacity is the bounded channel depth every AckWriter uses;
// SPEC_FULL.md §5 requires capacity >= 32.
const ackWriterCapacity = 32

// ackWireRecord is the Avro-shaped payload written to ackcmd, mirroring
// the Command Ack fields of SPEC_FULL.md §3 that sit alongside the
// envelope rather than inside it.
type ackWireRecord struct {
	Ack      int32   `json:"ack"`
	Error    int32   `json:"error"`
	Result   string  `json:"result"`
	Identity string  `json:"identity"`
	Origin   int32   `json:"origin"`
	CmdType  int32   `json:"cmdtype"`
	Timeout  float64 `json:"timeout"`
}

// ackWriteTopic is the slice of *topics.WriteTopic an AckWriter needs,
// narrowed to an interface so the drain loop can be tested without a
// live broker connection.
type ackWriteTopic interface {
	ReserveSeqNum(n int32)
	WriteTyped(ctx context.Context, requestedSeq int32, payload any) (int32, error)
}

// AckWriter is the single serialization point for every ack a Controller
// publishes: concurrent command handlers enqueue acks; one goroutine
// drains the channel and writes to ackcmd in arrival order.
type AckWriter struct {
	writeTopic ackWriteTopic
	queue      chan envelope.CommandAck
	log        *logrus.Entry
}

// NewAckWriter starts the draining goroutine immediately. Cancelling ctx
// stops it.
func NewAckWriter(ctx context.Context, writeTopic *topics.WriteTopic, log *logrus.Entry) *AckWriter {
	return newAckWriter(ctx, writeTopic, log)
}

func newAckWriter(ctx context.Context, writeTopic ackWriteTopic, log *logrus.Entry) *AckWriter {
	aw := &AckWriter{
		writeTopic: writeTopic,
		queue:      make(chan envelope.CommandAck, ackWriterCapacity),
		log:        log,
	}
	go aw.run(ctx)
	return aw
}

// Enqueue submits an ack for writing. Blocks if the queue is full,
// applying backpressure to the handler that produced it.
func (aw *AckWriter) Enqueue(ack envelope.CommandAck) {
	aw.queue <- ack
}

func (aw *AckWriter) run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case ack := <-aw.queue:
			aw.write(ctx, ack)
		}
	}
}

func (aw *AckWriter) write(ctx context.Context, ack envelope.CommandAck) {
	aw.writeTopic.ReserveSeqNum(ack.SeqNum)
	record := ackWireRecord{
		Ack:      ack.Ack.WireValue(),
		Error:    ack.Error,
		Result:   ack.Result,
		Identity: ack.Identity,
		Origin:   ack.Origin,
		CmdType:  ack.CmdType,
		Timeout:  ack.Timeout,
	}
	if _, err := aw.writeTopic.WriteTyped(ctx, ack.SeqNum, record); err != nil {
		aw.log.WithError(err).WithField("seqNum", ack.SeqNum).Error("failed to write ack")
	}
}
