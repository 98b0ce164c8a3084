package topics

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/twmb/franz-go/pkg/kgo"

	"github.com/lsst-ts/salobj-go/internal/envelope"
	"github.com/lsst-ts/salobj-go/internal/salerr"
	"github.com/lsst-ts/salobj-go/internal/wire"
)

// WriteTopic publishes stamped, Avro-framed samples to one Kafka topic.
// It shares its *kgo.Client with every other Write Topic (event,
// telemetry, command and ackcmd writers) of the same Controller or Remote,
// per SPEC_FULL.md §4.D: one producer connection per Controller or Remote,
// not one per topic. Writes are serialized, so sequence numbers and
// publications on one Write Topic follow the same order.
type WriteTopic struct {
	name    string
	client  *kgo.Client
	codec   *wire.Codec
	stamper *envelope.Stamper

	mu sync.Mutex // guards stamper and orders publications
}

// NewWriteTopic binds topicName to a shared client, the codec this
// process registered its schema id under, and a fresh sequence-number
// stamper.
func NewWriteTopic(client *kgo.Client, topicName string, codec *wire.Codec, stamper *envelope.Stamper) *WriteTopic {
	return &WriteTopic{
		name:    topicName,
		client:  client,
		codec:   codec,
		stamper: stamper,
	}
}

// Write stamps fields with an auto-assigned sequence number and publishes
// them, returning the sequence number that was assigned.
func (wt *WriteTopic) Write(ctx context.Context, fields map[string]any) (int32, error) {
	return wt.writeInternal(ctx, fields, 0)
}

// WriteTyped converts payload (a Go struct or anything json.Marshal
// accepts) to the generic field map and publishes it the same way Write
// does. requestedSeq, when non-zero, reserves a specific sequence number
// (used by a Command Responder replaying an ack under the command's own
// sequence number); it must match the topic's next expected value.
func (wt *WriteTopic) WriteTyped(ctx context.Context, requestedSeq int32, payload any) (int32, error) {
	fields, err := structToMap(payload)
	if err != nil {
		return 0, err
	}
	return wt.writeInternal(ctx, fields, requestedSeq)
}

// Origin returns the process id this topic stamps as private_origin.
func (wt *WriteTopic) Origin() int32 { return wt.stamper.Origin() }

// Identity returns the identity this topic stamps as private_identity.
func (wt *WriteTopic) Identity() string { return wt.stamper.Identity() }

// NextSeqNum returns the sequence number the next unreserved write will
// assign.
func (wt *WriteTopic) NextSeqNum() int32 {
	wt.mu.Lock()
	defer wt.mu.Unlock()
	return wt.stamper.NextSeqNum()
}

// ReserveSeqNum pins the next write's sequence number, used by the shared
// ack writer so an ack's private_seqNum equals the command's.
func (wt *WriteTopic) ReserveSeqNum(n int32) {
	wt.mu.Lock()
	defer wt.mu.Unlock()
	wt.stamper.SetNextSeqNum(n)
}

func (wt *WriteTopic) writeInternal(ctx context.Context, fields map[string]any, requestedSeq int32) (int32, error) {
	wt.mu.Lock()
	defer wt.mu.Unlock()

	env, err := wt.stamper.Stamp(requestedSeq)
	if err != nil {
		return 0, err
	}

	merged := make(map[string]any, len(fields)+9)
	for k, v := range fields {
		merged[k] = v
	}
	for k, v := range env.ToMap() {
		merged[k] = v
	}

	framed, err := wt.codec.Encode(merged)
	if err != nil {
		return 0, err
	}

	result := wt.client.ProduceSync(ctx, &kgo.Record{Topic: wt.name, Value: framed})
	if err := result.FirstErr(); err != nil {
		return 0, fmt.Errorf("publishing to %s: %v: %w", wt.name, err, salerr.Transport)
	}

	return env.PrivateSeqNum, nil
}

// structToMap converts a typed payload to the generic field map an Avro
// record encodes from, bridging through JSON so ordinary Go field tags
// (and zero-value omission) apply without hand-writing an Avro-specific
// reflector for every command and event type.
func structToMap(payload any) (map[string]any, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshaling payload: %v: %w", err, salerr.Protocol)
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("unmarshaling payload to field map: %v: %w", err, salerr.Protocol)
	}
	return m, nil
}
