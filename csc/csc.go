// Package csc composes a Controller with the standard lifecycle state
// machine: it dispatches the seven lifecycle commands itself, gates
// component-specific ("domain") commands on the current state, publishes
// logevent_summaryState on every successful transition, and runs a
// fixed-cadence heartbeat task. See SPEC_FULL.md §4.H.
package csc

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/lsst-ts/salobj-go/internal/catalog"
	"github.com/lsst-ts/salobj-go/internal/command"
	"github.com/lsst-ts/salobj-go/internal/envelope"
	"github.com/lsst-ts/salobj-go/internal/lifecycle"
)

// heartbeatInterval is the fixed publication cadence SPEC_FULL.md §4.H
// asks for ("order of 1 Hz").
const heartbeatInterval = time.Second

const summaryStateTopic = "logevent_summaryState"

// controller is the slice of *salobj.Controller a CSC needs. Narrowed to
// an interface so the lifecycle/dispatch logic can be tested without a
// live broker.
type controller interface {
	Handle(commandName string, handler command.Handler)
	WriteEvent(ctx context.Context, name string, value any) (int32, error)
	Close()
}

// DomainHandler processes one domain (component-specific) command while
// the CSC is Enabled. It is only ever invoked in that state: the CSC
// rejects the command itself otherwise.
type DomainHandler func(ctx context.Context, fields map[string]any, cmdCtx command.Context) envelope.CommandAck

// summaryStateRecord is the payload of logevent_summaryState.
type summaryStateRecord struct {
	SummaryState int32 `json:"summaryState"`
}

// CSC is a Commandable Component State Machine: a Controller plus the
// standard 5-state lifecycle and a registry of domain command handlers.
type CSC struct {
	ctrl  controller
	state atomic.Int32

	mu             sync.RWMutex
	domainHandlers map[string]DomainHandler

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New wraps ctrl with a CSC starting in initialState, registering handlers
// for all seven lifecycle commands. Call Start to begin serving traffic.
func New(ctrl controller, initialState lifecycle.State) *CSC {
	c := &CSC{
		ctrl:           ctrl,
		domainHandlers: make(map[string]DomainHandler),
	}
	c.state.Store(int32(initialState))

	for cmdName, lifecycleCmd := range lifecycleCommandTopics {
		cmd := lifecycleCmd
		c.ctrl.Handle(cmdName, func(ctx context.Context, _ map[string]any, cmdCtx command.Context) envelope.CommandAck {
			return c.transition(ctx, cmd)
		})
	}

	return c
}

// lifecycleCommandTopics maps every lifecycle command's topic name to its
// lifecycle.Command value.
var lifecycleCommandTopics = map[string]lifecycle.Command{
	"command_enterControl": lifecycle.EnterControl,
	"command_exitControl":  lifecycle.ExitControl,
	"command_start":        lifecycle.Start,
	"command_standby":      lifecycle.StandbyCmd,
	"command_enable":       lifecycle.Enable,
	"command_disable":      lifecycle.Disable,
	"command_fault":        lifecycle.FaultCmd,
}

// HandleDomainCommand registers handler for a component-specific command.
// The CSC itself enforces that it only runs while Enabled; handler never
// observes any other state.
func (c *CSC) HandleDomainCommand(topicName string, handler DomainHandler) {
	c.mu.Lock()
	c.domainHandlers[topicName] = handler
	c.mu.Unlock()

	c.ctrl.Handle(topicName, func(ctx context.Context, fields map[string]any, cmdCtx command.Context) envelope.CommandAck {
		return c.dispatchDomain(ctx, topicName, fields, cmdCtx)
	})
}

func (c *CSC) dispatchDomain(ctx context.Context, topicName string, fields map[string]any, cmdCtx command.Context) envelope.CommandAck {
	state := c.State()
	if !state.AcceptsDomainCommands() {
		return envelope.FailedAck(lifecycle.RejectionMessage(catalog.ShortName(topicName), state))
	}

	c.mu.RLock()
	handler, ok := c.domainHandlers[topicName]
	c.mu.RUnlock()
	if !ok {
		return envelope.FailedAck(fmt.Sprintf("Command %s not implemented.", catalog.ShortName(topicName)))
	}
	return handler(ctx, fields, cmdCtx)
}

func (c *CSC) transition(ctx context.Context, cmd lifecycle.Command) envelope.CommandAck {
	from := c.State()
	to, err := lifecycle.Apply(from, cmd)
	if err != nil {
		target := targetOf(from, cmd)
		return envelope.FailedAck(lifecycle.InvalidTransitionMessage(from, target))
	}

	c.state.Store(int32(to))

	if _, err := c.ctrl.WriteEvent(ctx, summaryStateTopic, summaryStateRecord{SummaryState: to.WireValue()}); err != nil {
		return envelope.CommandAck{Ack: envelope.Failed, Error: 1, Result: err.Error()}
	}

	return envelope.CommandAck{Ack: envelope.Complete}
}

// targetOf reports the state a rejected command would have reached had it
// been legal, for the literal error-message format
// InvalidTransitionMessage expects: each lifecycle command maps to its
// fixed target state regardless of from. Only an unrecognized command
// repeats the current state.
func targetOf(from State, cmd lifecycle.Command) State {
	switch cmd {
	case lifecycle.EnterControl:
		return lifecycle.Standby
	case lifecycle.ExitControl:
		return lifecycle.Offline
	case lifecycle.Start:
		return lifecycle.Disabled
	case lifecycle.StandbyCmd:
		return lifecycle.Standby
	case lifecycle.Enable:
		return lifecycle.Enabled
	case lifecycle.Disable:
		return lifecycle.Disabled
	case lifecycle.FaultCmd:
		return lifecycle.Fault
	default:
		return from
	}
}

// State is an alias so callers outside this package don't need to import
// internal/lifecycle directly just to spell the type.
type State = lifecycle.State

// State returns the CSC's current summary state.
func (c *CSC) State() State { return State(c.state.Load()) }

// Start publishes the initial summaryState event and launches the
// heartbeat task. It does not block.
func (c *CSC) Start(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel

	if _, err := c.ctrl.WriteEvent(runCtx, summaryStateTopic, summaryStateRecord{SummaryState: c.State().WireValue()}); err != nil {
		cancel()
		return err
	}

	c.wg.Add(1)
	go c.heartbeatLoop(runCtx)

	return nil
}

func (c *CSC) heartbeatLoop(ctx context.Context) {
	defer c.wg.Done()
	ticker := time.NewTicker(heartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := c.ctrl.WriteEvent(ctx, "logevent_heartbeat", struct{}{}); err != nil {
				return
			}
		}
	}
}

// Close stops the heartbeat task and closes the underlying Controller.
func (c *CSC) Close() {
	if c.cancel != nil {
		c.cancel()
	}
	c.wg.Wait()
	c.ctrl.Close()
}
