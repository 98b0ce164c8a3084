// Package salerr defines the error-kind taxonomy shared across salobj-go.
//
// Errors are not modeled as a type hierarchy. Each kind is a sentinel that
// call sites wrap with fmt.Errorf("...: %w", kind) so that callers can test
// the kind with errors.Is without string matching, while the message still
// carries whatever local context produced it.
package salerr

import "errors"

var (
	// Configuration errors are fatal at construction time: missing env
	// vars, missing schema directories, malformed hash tables.
	Configuration = errors.New("configuration error")

	// Protocol errors are returned to the caller as an error ack or a
	// result-error: sequence number mismatches, unknown command names.
	Protocol = errors.New("protocol error")

	// Transport errors surface broker or registry failures to the caller
	// of the operation that triggered them. There is no automatic
	// reconnect at this layer.
	Transport = errors.New("transport error")

	// Timeout is returned when an operation's deadline elapses without a
	// matching ack or message. Most call sites prefer to return a zero
	// value rather than wrap this, but it is available for cases that
	// need to distinguish a timeout from other transport failures.
	Timeout = errors.New("timeout")

	// State errors indicate a command was rejected by the lifecycle state
	// machine.
	State = errors.New("state error")
)
