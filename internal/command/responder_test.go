package command

import (
	"context"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lsst-ts/salobj-go/internal/envelope"
	"github.com/lsst-ts/salobj-go/internal/topics"
)

// fakeEnqueuer records every ack handed to it, standing in for AckWriter.
type fakeEnqueuer struct {
	acks []envelope.CommandAck
}

func (f *fakeEnqueuer) Enqueue(ack envelope.CommandAck) {
	f.acks = append(f.acks, ack)
}

func TestDispatchWritesFailedAckForUnregisteredHandler(t *testing.T) {
	cat := testCatalog(t)
	enqueuer := &fakeEnqueuer{}
	r := NewResponder(cat, enqueuer, logrus.NewEntry(logrus.New()))

	sample := topics.Sample{Envelope: envelope.Envelope{PrivateOrigin: 1, PrivateIdentity: "me@host", PrivateSeqNum: 9}}
	r.dispatch(context.Background(), "command_start", sample)

	require.Len(t, enqueuer.acks, 1)
	ack := enqueuer.acks[0]
	assert.Equal(t, envelope.Failed, ack.Ack)
	assert.Equal(t, "Command start not implemented.", ack.Result)
	assert.EqualValues(t, 1, ack.Origin)
	assert.Equal(t, "me@host", ack.Identity)
	assert.EqualValues(t, 9, ack.SeqNum)
}

func TestDispatchInvokesRegisteredHandler(t *testing.T) {
	cat := testCatalog(t)
	enqueuer := &fakeEnqueuer{}
	r := NewResponder(cat, enqueuer, logrus.NewEntry(logrus.New()))

	var gotFields map[string]any
	var gotCtx Context
	r.Handle("command_start", func(ctx context.Context, fields map[string]any, cmdCtx Context) envelope.CommandAck {
		gotFields = fields
		gotCtx = cmdCtx
		return envelope.CommandAck{Ack: envelope.Complete}
	})

	sample := topics.Sample{
		Envelope: envelope.Envelope{PrivateOrigin: 7, PrivateIdentity: "a@b", PrivateSeqNum: 3},
		Fields:   map[string]any{"configurationOverride": "x"},
	}
	r.dispatch(context.Background(), "command_start", sample)

	assert.Equal(t, "x", gotFields["configurationOverride"])
	assert.EqualValues(t, 7, gotCtx.Origin)
	assert.EqualValues(t, 0, gotCtx.CmdType)

	require.Len(t, enqueuer.acks, 1)
	ack := enqueuer.acks[0]
	assert.Equal(t, envelope.Complete, ack.Ack)
	assert.EqualValues(t, 3, ack.SeqNum)
	assert.Equal(t, "a@b", ack.Identity)
}

func TestEmitAckFillsCorrelationFields(t *testing.T) {
	enqueuer := &fakeEnqueuer{}
	cmdCtx := Context{Origin: 4, Identity: "x@y", SeqNum: 11, CmdType: 2}

	cmdCtx.EmitAck(enqueuer, envelope.CommandAck{Ack: envelope.InProgress, Timeout: 5})

	require.Len(t, enqueuer.acks, 1)
	ack := enqueuer.acks[0]
	assert.EqualValues(t, 4, ack.Origin)
	assert.Equal(t, "x@y", ack.Identity)
	assert.EqualValues(t, 11, ack.SeqNum)
	assert.EqualValues(t, 2, ack.CmdType)
	assert.Equal(t, 5.0, ack.Timeout)
}
