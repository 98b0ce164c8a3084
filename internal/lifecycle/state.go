// Package lifecycle implements the standard 5-state (+Invalid)
// Commandable Component lifecycle and the transition planner used by the
// set_summary_state reference CLI. See SPEC_FULL.md §4.H.
package lifecycle

import (
	"fmt"

	"github.com/lsst-ts/salobj-go/internal/salerr"
)

// State is one summary state of a Commandable Component.
type State int32

const (
	Invalid State = iota
	Offline
	Standby
	Disabled
	Enabled
	Fault
)

// wireValues mirrors the historical SAL summaryState numeric codes
// published on logevent_summaryState (see seed scenarios S1, S3, S4, S6).
var wireValues = map[State]int32{
	Offline:  4,
	Standby:  5,
	Disabled: 1,
	Enabled:  2,
	Fault:    3,
}

var stateNames = map[State]string{
	Offline:  "Offline",
	Standby:  "Standby",
	Disabled: "Disabled",
	Enabled:  "Enabled",
	Fault:    "Fault",
	Invalid:  "Invalid",
}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return fmt.Sprintf("State(%d)", int32(s))
}

// WireValue returns the numeric summaryState code stamped onto the wire.
func (s State) WireValue() int32 { return wireValues[s] }

// wireToState is the reverse of wireValues, built once at package init.
var wireToState = func() map[int32]State {
	m := make(map[int32]State, len(wireValues))
	for state, value := range wireValues {
		m[value] = state
	}
	return m
}()

// StateFromWireValue maps a decoded logevent_summaryState record's numeric
// code back to its State, returning Invalid if unrecognized.
func StateFromWireValue(v int32) State {
	return wireToState[v]
}

// ParseState maps a command-line/config state name (as used by the
// set_summary_state CLI) to its State, or an error if unrecognized.
func ParseState(name string) (State, error) {
	for state, stateName := range stateNames {
		if stateName == name && state != Invalid {
			return state, nil
		}
	}
	return Invalid, fmt.Errorf("unrecognized state %q: %w", name, salerr.Configuration)
}

// Command is a lifecycle command name.
type Command string

const (
	EnterControl Command = "enterControl"
	ExitControl  Command = "exitControl"
	Start        Command = "start"
	StandbyCmd   Command = "standby"
	Enable       Command = "enable"
	Disable      Command = "disable"
	FaultCmd     Command = "fault"
)

// edge is one allowed (state, command) -> state transition.
type edge struct {
	from State
	cmd  Command
	to   State
}

var edges = []edge{
	{Offline, EnterControl, Standby},
	{Standby, ExitControl, Offline},
	{Standby, Start, Disabled},
	{Disabled, StandbyCmd, Standby},
	{Disabled, Enable, Enabled},
	{Enabled, Disable, Disabled},
	{Enabled, FaultCmd, Fault},
	{Offline, FaultCmd, Fault},
	{Standby, FaultCmd, Fault},
	{Disabled, FaultCmd, Fault},
	{Fault, StandbyCmd, Standby},
}

// Apply returns the state reached by issuing cmd while in from, or an
// error if that (state, command) pair is not an allowed transition.
func Apply(from State, cmd Command) (State, error) {
	for _, e := range edges {
		if e.from == from && e.cmd == cmd {
			return e.to, nil
		}
	}
	return Invalid, fmt.Errorf("no transition for command %q in state %s: %w", cmd, from, salerr.State)
}

// AcceptsDomainCommands reports whether a component-specific (non-lifecycle)
// command may be dispatched while in this state. Only Enabled accepts them.
func (s State) AcceptsDomainCommands() bool { return s == Enabled }

// RejectionMessage builds the literal result string for a domain command
// rejected because the component is not Enabled (SPEC_FULL.md §4.H,
// Testable Property 7).
func RejectionMessage(commandName string, s State) string {
	return fmt.Sprintf("Command %s not allowed in %s.", commandName, s)
}

// InvalidTransitionMessage builds the literal result string for a
// lifecycle command rejected because the (from, to) pair has no edge.
func InvalidTransitionMessage(from, to State) string {
	return fmt.Sprintf("Invalid state transition %s -> %s.", from, to)
}
