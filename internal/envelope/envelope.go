// Package envelope defines the fixed metadata fields attached to every
// topic (SPEC_FULL.md §3) and the stamping rules applied on write
// (SPEC_FULL.md §4.B).
package envelope

import (
	"fmt"
	"time"

	"github.com/lsst-ts/salobj-go/internal/salerr"
)

// Envelope carries the mandatory fields every topic adds to its payload.
type Envelope struct {
	PrivateOrigin   int32   `json:"private_origin"`
	PrivateIdentity string  `json:"private_identity"`
	PrivateSeqNum   int32   `json:"private_seqNum"`
	PrivateSndStamp float64 `json:"private_sndStamp"`
	PrivateEfdStamp float64 `json:"private_efdStamp"`
	PrivateKafkaStamp float64 `json:"private_kafkaStamp"`
	PrivateRcvStamp float64 `json:"private_rcvStamp,omitempty"`
	PrivateRevCode  string  `json:"private_revCode"`
	// SalIndex is a pointer so it can be omitted entirely for a
	// non-indexed component rather than encoded as a colliding zero.
	SalIndex *int32 `json:"salIndex,omitempty"`
}

// Stamper owns the per-writer sequence counter and the identity fields that
// get stamped onto every outbound envelope. One Stamper belongs to exactly
// one Write Topic.
type Stamper struct {
	origin   int32
	identity string
	revCode  string
	index    *int32
	nextSeq  int32 // protected by caller; Write Topic serializes access
}

// NewStamper constructs a Stamper. initialSeq should be randomized by the
// caller per SPEC_FULL.md §4.D so that a restarted process doesn't replay
// sequence numbers a still-connected Remote has already seen.
func NewStamper(origin int32, identity, revCode string, index *int32, initialSeq int32) *Stamper {
	return &Stamper{
		origin:   origin,
		identity: identity,
		revCode:  revCode,
		index:    index,
		nextSeq:  initialSeq,
	}
}

// NextSeqNum returns the sequence number that the next Stamp call will
// assign if the caller passes requestedSeq=0.
func (s *Stamper) NextSeqNum() int32 { return s.nextSeq }

// Origin returns the process id stamped as private_origin.
func (s *Stamper) Origin() int32 { return s.origin }

// Identity returns the identity stamped as private_identity.
func (s *Stamper) Identity() string { return s.identity }

// Index returns the salIndex stamped on every envelope, or nil for a
// non-indexed component.
func (s *Stamper) Index() *int32 { return s.index }

// SetNextSeqNum reserves a specific next sequence number. Used by the ack
// writer so an ack's private_seqNum equals the command's.
func (s *Stamper) SetNextSeqNum(n int32) { s.nextSeq = n }

// Stamp assigns and advances the sequence counter, then fills in the
// timestamp triple, origin, identity, revCode and (if indexed) salIndex.
//
// requestedSeq of 0 means "assign the next sequence number". Any other
// value must match nextSeq exactly (the caller reserved it, e.g. for an
// ack correlated to a specific command) or Stamp fails with a Protocol
// error.
func (s *Stamper) Stamp(requestedSeq int32) (Envelope, error) {
	var assigned int32
	if requestedSeq == 0 {
		assigned = s.nextSeq
	} else if requestedSeq == s.nextSeq {
		assigned = requestedSeq
	} else {
		return Envelope{}, fmt.Errorf("requested seqNum %d does not match next expected %d: %w", requestedSeq, s.nextSeq, salerr.Protocol)
	}

	s.nextSeq = wrapIncrement(assigned)

	now := float64(time.Now().UnixNano()) / 1e9

	env := Envelope{
		PrivateOrigin:     s.origin,
		PrivateIdentity:   s.identity,
		PrivateSeqNum:     assigned,
		PrivateSndStamp:   now,
		PrivateEfdStamp:   now,
		PrivateKafkaStamp: now,
		PrivateRevCode:    s.revCode,
	}
	if s.index != nil {
		idx := *s.index
		env.SalIndex = &idx
	}
	return env, nil
}

// wrapIncrement advances a sequence number, wrapping at int32 max back to 1
// (0 is reserved to mean "assign the next sequence number").
func wrapIncrement(n int32) int32 {
	if n == 1<<31-1 {
		return 1
	}
	return n + 1
}
