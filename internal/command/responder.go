package command

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/lsst-ts/salobj-go/internal/catalog"
	"github.com/lsst-ts/salobj-go/internal/envelope"
	"github.com/lsst-ts/salobj-go/internal/topics"
)

// commandPollTimeout bounds each PopFront wait on a command channel so the
// worker loop rechecks ctx.Done() promptly on shutdown.
const commandPollTimeout = time.Second

// Context carries the correlation fields a handler needs to address a
// follow-up ack at the command that triggered it.
type Context struct {
	Origin   int32
	Identity string
	SeqNum   int32
	CmdType  int32
}

// ackEnqueuer is the slice of *AckWriter a Context needs, narrowed to an
// interface so dispatch logic can be tested without a live ack-draining
// goroutine.
type ackEnqueuer interface {
	Enqueue(ack envelope.CommandAck)
}

// EmitAck reports a handler-produced ack, filling in this command's
// correlation fields.
func (c Context) EmitAck(aw ackEnqueuer, ack envelope.CommandAck) {
	ack.Origin = c.Origin
	ack.Identity = c.Identity
	ack.SeqNum = c.SeqNum
	ack.CmdType = c.CmdType
	aw.Enqueue(ack)
}

// Handler processes one command invocation's parameters and returns the
// ack to publish synchronously. A handler that needs to do background
// work returns an InProgress ack immediately and later calls
// cmdCtx.EmitAck with the completion ack from its own goroutine.
type Handler func(ctx context.Context, fields map[string]any, cmdCtx Context) envelope.CommandAck

// Responder dispatches commands for every command name a component
// supports, writing every resulting ack through one shared AckWriter.
type Responder struct {
	catalog   *catalog.Catalog
	ackWriter ackEnqueuer
	log       *logrus.Entry

	mu       sync.RWMutex
	handlers map[string]Handler
	channels map[string]*topics.ReadTopic

	wg sync.WaitGroup
}

// NewResponder constructs a Responder with no command channels or
// handlers registered yet; call AddChannel/Handle before Start.
func NewResponder(cat *catalog.Catalog, ackWriter ackEnqueuer, log *logrus.Entry) *Responder {
	return &Responder{
		catalog:   cat,
		ackWriter: ackWriter,
		log:       log,
		handlers:  make(map[string]Handler),
		channels:  make(map[string]*topics.ReadTopic),
	}
}

// AddChannel registers the Read Topic a command's worker polls.
func (r *Responder) AddChannel(commandName string, channel *topics.ReadTopic) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.channels[commandName] = channel
}

// Handle registers the handler invoked for a command name. Handle may be
// called before or after Start; the worker looks up the handler fresh on
// every dispatch, so handlers may be (re)registered while the Responder
// runs.
func (r *Responder) Handle(commandName string, handler Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[commandName] = handler
}

// Start launches one worker goroutine per registered command channel.
// It returns immediately; workers run until ctx is cancelled.
func (r *Responder) Start(ctx context.Context) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for name, channel := range r.channels {
		r.wg.Add(1)
		go r.worker(ctx, name, channel)
	}
}

// Wait blocks until every worker goroutine has returned (i.e. until ctx
// passed to Start is cancelled and workers drain).
func (r *Responder) Wait() {
	r.wg.Wait()
}

func (r *Responder) worker(ctx context.Context, commandName string, channel *topics.ReadTopic) {
	defer r.wg.Done()
	for {
		sample, ok, err := channel.PopFront(ctx, false, commandPollTimeout)
		if ctx.Err() != nil {
			return
		}
		if err != nil {
			r.log.WithError(err).WithField("command", commandName).Warn("command channel read error")
			continue
		}
		if !ok {
			continue
		}
		r.dispatch(ctx, commandName, sample)
	}
}

func (r *Responder) dispatch(ctx context.Context, commandName string, sample topics.Sample) {
	cmdType, err := r.catalog.CommandIndex(commandName)
	if err != nil {
		cmdType = -1
	}

	cmdCtx := Context{
		Origin:   sample.Envelope.PrivateOrigin,
		Identity: sample.Envelope.PrivateIdentity,
		SeqNum:   sample.Envelope.PrivateSeqNum,
		CmdType:  int32(cmdType),
	}

	r.mu.RLock()
	handler, ok := r.handlers[commandName]
	r.mu.RUnlock()

	var ack envelope.CommandAck
	if !ok {
		ack = envelope.FailedAck(fmt.Sprintf("Command %s not implemented.", catalog.ShortName(commandName)))
	} else {
		ack = handler(ctx, sample.Fields, cmdCtx)
	}

	cmdCtx.EmitAck(r.ackWriter, ack)
}
