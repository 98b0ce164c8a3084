package command

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lsst-ts/salobj-go/internal/catalog"
	"github.com/lsst-ts/salobj-go/internal/envelope"
	"github.com/lsst-ts/salobj-go/internal/topics"
)

// fakeWriter is a minimal commandWriter that records what it was asked
// to publish and returns a fixed sequence number.
type fakeWriter struct {
	seqNum   int32
	origin   int32
	identity string
	written  []map[string]any
}

func (w *fakeWriter) Write(ctx context.Context, fields map[string]any) (int32, error) {
	w.written = append(w.written, fields)
	return w.seqNum, nil
}
func (w *fakeWriter) Origin() int32    { return w.origin }
func (w *fakeWriter) Identity() string { return w.identity }

// fakeAckSource serves a scripted sequence of PopBack results.
type fakeAckSource struct {
	samples []topics.Sample
	flushed bool
}

func (a *fakeAckSource) Flush() { a.flushed = true }
func (a *fakeAckSource) PopBack(ctx context.Context, flush bool, timeout time.Duration) (topics.Sample, bool, error) {
	if len(a.samples) == 0 {
		return topics.Sample{}, false, nil
	}
	s := a.samples[0]
	a.samples = a.samples[1:]
	return s, true, nil
}

func testCatalog(t *testing.T) *catalog.Catalog {
	t.Helper()
	root := t.TempDir()
	writeTestSchemas(t, root)
	cat, err := catalog.Load(root, "Test", "sal")
	require.NoError(t, err)
	return cat
}

// writeTestSchemas lays down the minimal schema directory catalog.Load
// needs: a heartbeat event and one command, plus a hash table.
func writeTestSchemas(t *testing.T, root string) {
	t.Helper()
	dir := root + "/Test"
	require.NoError(t, os.MkdirAll(dir, 0o755))

	heartbeat := `{"type":"record","name":"logevent_heartbeat","fields":[]}`
	start := `{"type":"record","name":"command_start","fields":[{"name":"configurationOverride","type":"string","default":""}]}`
	hash := `{"logevent_heartbeat":"r1","command_start":"r1"}`

	require.NoError(t, os.WriteFile(dir+"/Test_logevent_heartbeat.json", []byte(heartbeat), 0o644))
	require.NoError(t, os.WriteFile(dir+"/Test_command_start.json", []byte(start), 0o644))
	require.NoError(t, os.WriteFile(dir+"/Test_hash_table.json", []byte(hash), 0o644))
}

func ackSample(origin int32, identity string, seqNum int32, ack envelope.AckCode, result string) topics.Sample {
	return topics.Sample{
		Envelope: envelope.Envelope{PrivateSeqNum: seqNum},
		Fields: map[string]any{
			"ack":      ack.WireValue(),
			"error":    int32(0),
			"result":   result,
			"identity": identity,
			"origin":   origin,
			"cmdtype":  int32(0),
			"timeout":  0.0,
		},
	}
}

func TestRunRejectsUnknownCommand(t *testing.T) {
	cat := testCatalog(t)
	issuer := newIssuer("bogus", cat, &fakeWriter{}, &fakeAckSource{})

	ack, err := issuer.Run(context.Background(), nil, time.Second, true)
	require.NoError(t, err)
	assert.Equal(t, envelope.Failed, ack.Ack)
	assert.Contains(t, ack.Result, "not a known command")
}

func TestRunReturnsNoAckOnTimeout(t *testing.T) {
	cat := testCatalog(t)
	writer := &fakeWriter{seqNum: 1, origin: 42, identity: "me@host"}
	issuer := newIssuer("command_start", cat, writer, &fakeAckSource{})

	ack, err := issuer.Run(context.Background(), map[string]any{}, 10*time.Millisecond, true)
	require.NoError(t, err)
	assert.Equal(t, envelope.NoAck, ack.Ack)
}

func TestRunDiscardsUnrelatedAcks(t *testing.T) {
	cat := testCatalog(t)
	writer := &fakeWriter{seqNum: 5, origin: 42, identity: "me@host"}
	source := &fakeAckSource{samples: []topics.Sample{
		ackSample(1, "other@host", 99, envelope.Complete, "unrelated"),
		ackSample(42, "me@host", 5, envelope.Complete, "ok"),
	}}
	issuer := newIssuer("command_start", cat, writer, source)

	ack, err := issuer.Run(context.Background(), map[string]any{}, time.Second, true)
	require.NoError(t, err)
	assert.Equal(t, envelope.Complete, ack.Ack)
	assert.True(t, ack.Ack.IsGood())
}

func TestRunReturnsImmediatelyWhenNotWaitDone(t *testing.T) {
	cat := testCatalog(t)
	writer := &fakeWriter{seqNum: 5, origin: 42, identity: "me@host"}
	source := &fakeAckSource{samples: []topics.Sample{
		ackSample(42, "me@host", 5, envelope.InProgress, ""),
	}}
	issuer := newIssuer("command_start", cat, writer, source)

	ack, err := issuer.Run(context.Background(), map[string]any{}, time.Second, false)
	require.NoError(t, err)
	assert.Equal(t, envelope.InProgress, ack.Ack)
}

func TestRunKeepsWaitingThroughNonFinalAcks(t *testing.T) {
	cat := testCatalog(t)
	writer := &fakeWriter{seqNum: 5, origin: 42, identity: "me@host"}
	source := &fakeAckSource{samples: []topics.Sample{
		ackSample(42, "me@host", 5, envelope.InProgress, ""),
		ackSample(42, "me@host", 5, envelope.Complete, "done"),
	}}
	issuer := newIssuer("command_start", cat, writer, source)

	ack, err := issuer.Run(context.Background(), map[string]any{}, time.Second, true)
	require.NoError(t, err)
	assert.Equal(t, envelope.Complete, ack.Ack)
}

func TestRunFlushesAckReaderBeforeWriting(t *testing.T) {
	cat := testCatalog(t)
	writer := &fakeWriter{seqNum: 5, origin: 42, identity: "me@host"}
	source := &fakeAckSource{}
	issuer := newIssuer("command_start", cat, writer, source)

	_, _ = issuer.Run(context.Background(), map[string]any{}, 10*time.Millisecond, true)
	assert.True(t, source.flushed)
}
