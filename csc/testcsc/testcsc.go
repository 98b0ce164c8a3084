// Package testcsc implements the reference Test component: a minimal CSC
// exercising the scalars/wait command surface used by seed scenarios
// S1-S6 (SPEC_FULL.md §8). It is the Go analogue of the original
// implementation's Test CSC (scalars, arrays, wait topics).
package testcsc

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	salobj "github.com/lsst-ts/salobj-go"
	"github.com/lsst-ts/salobj-go/csc"
	"github.com/lsst-ts/salobj-go/internal/command"
	"github.com/lsst-ts/salobj-go/internal/domain"
	"github.com/lsst-ts/salobj-go/internal/envelope"
	"github.com/lsst-ts/salobj-go/internal/lifecycle"
)

// ComponentName is the schema-directory name this component loads its
// catalog from.
const ComponentName = "Test"

// telemetryInterval is the cadence of the scalars telemetry publication.
const telemetryInterval = time.Second

// waitTimeoutMultiplier sets a wait command's ack timeout comfortably
// above its own duration, per seed scenario S5 ("timeout >= 4.0" for a
// duration of 2.0).
const waitTimeoutMultiplier = 2.0

// scalars is the field shape shared by command_setScalars and the
// scalars telemetry topic.
type scalars struct {
	Boolean0       bool    `json:"boolean0"`
	Byte0          int32   `json:"byte0"`
	Short0         int32   `json:"short0"`
	Int0           int32   `json:"int0"`
	Long0          int32   `json:"long0"`
	LongLong0      int64   `json:"longLong0"`
	UnsignedShort0 int32   `json:"unsignedShort0"`
	UnsignedInt0   int64   `json:"unsignedInt0"`
	Float0         float32 `json:"float0"`
	Double0        float64 `json:"double0"`
	String0        string  `json:"string0"`
}

func scalarsFromFields(fields map[string]any) scalars {
	return scalars{
		Boolean0:       envelope.BoolField(fields, "boolean0"),
		Byte0:          envelope.IntField(fields, "byte0"),
		Short0:         envelope.IntField(fields, "short0"),
		Int0:           envelope.IntField(fields, "int0"),
		Long0:          envelope.IntField(fields, "long0"),
		LongLong0:      envelope.Int64Field(fields, "longLong0"),
		UnsignedShort0: envelope.IntField(fields, "unsignedShort0"),
		UnsignedInt0:   envelope.Int64Field(fields, "unsignedInt0"),
		Float0:         float32(envelope.FloatField(fields, "float0")),
		Double0:        envelope.FloatField(fields, "double0"),
		String0:        envelope.StringField(fields, "string0"),
	}
}

// Component is the Test CSC: a Controller, its lifecycle wrapper, and the
// mutable scalars state setScalars writes and the telemetry loop reads.
type Component struct {
	ctrl *salobj.Controller
	csc  *csc.CSC

	mu      sync.Mutex
	scalars scalars
}

// New constructs the Test component's Controller and registers its domain
// command handlers. The component starts in Standby, matching seed
// scenario S1.
func New(ctx context.Context, dom *domain.Domain, index int32, log *logrus.Entry) (*Component, error) {
	ctrl, err := salobj.NewController(ctx, dom, ComponentName, index, log)
	if err != nil {
		return nil, err
	}

	c := &Component{ctrl: ctrl}
	c.csc = csc.New(ctrl, lifecycle.Standby)
	c.csc.HandleDomainCommand("command_setScalars", c.handleSetScalars)
	c.csc.HandleDomainCommand("command_wait", c.handleWait)

	return c, nil
}

// Start publishes the initial summaryState, launches the heartbeat task,
// and launches the scalars telemetry loop.
func (c *Component) Start(ctx context.Context) error {
	if err := c.csc.Start(ctx); err != nil {
		return err
	}
	go c.telemetryLoop(ctx)
	return nil
}

// State returns the component's current summary state.
func (c *Component) State() lifecycle.State { return c.csc.State() }

// Close stops every background task and the underlying Controller.
func (c *Component) Close() { c.csc.Close() }

func (c *Component) handleSetScalars(ctx context.Context, fields map[string]any, cmdCtx command.Context) envelope.CommandAck {
	rec := scalarsFromFields(fields)
	c.mu.Lock()
	c.scalars = rec
	c.mu.Unlock()
	return envelope.CommandAck{Ack: envelope.Complete}
}

// handleWait returns InProgress immediately and completes asynchronously
// after duration seconds, matching seed scenario S5. The background
// completion is not cancelled by a state transition; only cancelling ctx
// stops it.
func (c *Component) handleWait(ctx context.Context, fields map[string]any, cmdCtx command.Context) envelope.CommandAck {
	duration := envelope.FloatField(fields, "duration")

	go func() {
		timer := time.NewTimer(time.Duration(duration * float64(time.Second)))
		defer timer.Stop()
		select {
		case <-timer.C:
			c.ctrl.EmitAck(cmdCtx, envelope.CommandAck{Ack: envelope.Complete})
		case <-ctx.Done():
		}
	}()

	return inProgressWaitAck(duration)
}

// inProgressWaitAck builds the synchronous ack handleWait returns before
// its background completion fires.
func inProgressWaitAck(duration float64) envelope.CommandAck {
	return envelope.CommandAck{Ack: envelope.InProgress, Timeout: duration * waitTimeoutMultiplier}
}

func (c *Component) telemetryLoop(ctx context.Context) {
	ticker := time.NewTicker(telemetryInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.mu.Lock()
			rec := c.scalars
			c.mu.Unlock()
			if _, err := c.ctrl.WriteTelemetry(ctx, "scalars", rec); err != nil {
				return
			}
		}
	}
}
