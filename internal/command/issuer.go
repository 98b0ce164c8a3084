// Package command implements the Command Issuer (Remote side) and
// Command Responder (Controller side) halves of the request/response
// protocol layered over a command's Write Topic and the shared ackcmd
// topic. See SPEC_FULL.md §4.E and §4.F.
package command

import (
	"context"
	"fmt"
	"time"

	"github.com/lsst-ts/salobj-go/internal/catalog"
	"github.com/lsst-ts/salobj-go/internal/envelope"
	"github.com/lsst-ts/salobj-go/internal/topics"
)

// commandWriter is the slice of *topics.WriteTopic an Issuer needs,
// narrowed to an interface so tests can exercise the correlation/timeout
// logic below without a live broker connection.
type commandWriter interface {
	Write(ctx context.Context, fields map[string]any) (int32, error)
	Origin() int32
	Identity() string
}

// ackSource is the slice of *topics.ReadTopic an Issuer needs.
type ackSource interface {
	Flush()
	PopBack(ctx context.Context, flush bool, timeout time.Duration) (topics.Sample, bool, error)
}

// Issuer sends one command and correlates the resulting ack stream. One
// Issuer owns one command's Write Topic; the ackcmd Read Topic is shared
// across every command of a Remote.
type Issuer struct {
	commandName string
	catalog     *catalog.Catalog
	writeTopic  commandWriter
	ackReader   ackSource
}

// NewIssuer binds a command name to its Write Topic and the component's
// shared ackcmd Read Topic.
func NewIssuer(commandName string, cat *catalog.Catalog, writeTopic *topics.WriteTopic, ackReader *topics.ReadTopic) *Issuer {
	return newIssuer(commandName, cat, writeTopic, ackReader)
}

func newIssuer(commandName string, cat *catalog.Catalog, writeTopic commandWriter, ackReader ackSource) *Issuer {
	return &Issuer{
		commandName: commandName,
		catalog:     cat,
		writeTopic:  writeTopic,
		ackReader:   ackReader,
	}
}

// Run writes the command and waits for its ack(s). If waitDone is false
// it returns as soon as any ack for this command arrives; if true it
// keeps waiting through non-final acks (e.g. InProgress) until a final
// ack is received or timeout elapses between any two acks.
//
// The returned error reports a transport/context failure in driving the
// exchange; it is nil whenever an ack (successful or not) was obtained.
// Callers distinguish success from a rejection ack via ack.Ack.IsGood().
func (i *Issuer) Run(ctx context.Context, parameters map[string]any, timeout time.Duration, waitDone bool) (envelope.CommandAck, error) {
	if _, err := i.catalog.CommandIndex(i.commandName); err != nil {
		return envelope.FailedAck(fmt.Sprintf("Command %s is not a known command.", i.commandName)), nil
	}

	i.ackReader.Flush()

	seqNum, err := i.writeTopic.Write(ctx, parameters)
	if err != nil {
		return envelope.CommandAck{}, err
	}
	origin := i.writeTopic.Origin()
	identity := i.writeTopic.Identity()

	for {
		sample, ok, err := i.ackReader.PopBack(ctx, false, timeout)
		if err != nil {
			return envelope.CommandAck{}, err
		}
		if !ok {
			return synthesizedNoAck(i.commandName, timeout), nil
		}

		ack := decodeAck(sample)
		if !ack.Matches(origin, identity, seqNum) {
			continue
		}

		if !waitDone {
			return ack, nil
		}
		if ack.Ack.IsFinal() {
			return ack, nil
		}
		// Non-final (e.g. InProgress): keep waiting, with the same
		// per-wait timeout budget.
	}
}

func synthesizedNoAck(commandName string, timeout time.Duration) envelope.CommandAck {
	return envelope.CommandAck{
		Ack:    envelope.NoAck,
		Error:  1,
		Result: fmt.Sprintf("No ack received for command %s within %s.", commandName, timeout),
	}
}

func decodeAck(s topics.Sample) envelope.CommandAck {
	return envelope.CommandAck{
		Ack:      envelope.AckCodeFromWireValue(envelope.IntField(s.Fields, "ack")),
		Error:    envelope.IntField(s.Fields, "error"),
		Result:   envelope.StringField(s.Fields, "result"),
		Identity: envelope.StringField(s.Fields, "identity"),
		Origin:   envelope.IntField(s.Fields, "origin"),
		CmdType:  envelope.IntField(s.Fields, "cmdtype"),
		Timeout:  envelope.FloatField(s.Fields, "timeout"),
		SeqNum:   s.Envelope.PrivateSeqNum,
	}
}
