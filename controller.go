// Package salobj implements a middleware client library for observatory
// control components: a Controller (server role, owns commands and
// publishes events/telemetry) and a Remote (client role, issues commands
// and reads events/telemetry) built over a durable event-streaming bus
// with a central schema registry. See SPEC_FULL.md §4.G.
package salobj

import (
	"context"
	"fmt"
	"math/rand"
	"sync"

	"github.com/sirupsen/logrus"
	"github.com/twmb/franz-go/pkg/kgo"

	"github.com/lsst-ts/salobj-go/internal/broker"
	"github.com/lsst-ts/salobj-go/internal/catalog"
	"github.com/lsst-ts/salobj-go/internal/command"
	"github.com/lsst-ts/salobj-go/internal/domain"
	"github.com/lsst-ts/salobj-go/internal/envelope"
	"github.com/lsst-ts/salobj-go/internal/salerr"
	"github.com/lsst-ts/salobj-go/internal/topics"
	"github.com/lsst-ts/salobj-go/internal/wire"
)

// ackCmdTopicName is the singleton command-ack topic every component's
// interface carries.
const ackCmdTopicName = "ackcmd"

// commandChannelHistory is a command channel's Read Topic replay depth:
// none, a late-starting Controller must not replay stale commands.
const commandChannelHistory = 0

// Controller owns a component instance's commands and publishes its
// events and telemetry. One Controller serves exactly one (componentName,
// index) pair.
type Controller struct {
	componentName string
	index         int32
	catalog       *catalog.Catalog
	dom           *domain.Domain
	log           *logrus.Entry

	client   *kgo.Client
	registry *wire.Registry

	events    map[string]*topics.WriteTopic
	telemetry map[string]*topics.WriteTopic
	responder *command.Responder
	ackWriter *command.AckWriter

	cancel context.CancelFunc
	mu     sync.Mutex
	closed bool
}

// NewController builds the Schema Catalog for componentName, ensures
// every topic exists on the broker, and instantiates Write Topics for
// every event and telemetry topic plus a Command Responder for every
// command, sharing one ack writer. index must be 0 for a non-indexed
// component.
func NewController(ctx context.Context, dom *domain.Domain, componentName string, index int32, log *logrus.Entry) (*Controller, error) {
	cat, err := catalog.Load(dom.SchemaPath(), componentName, dom.TopicSubname())
	if err != nil {
		return nil, err
	}
	if err := cat.CheckIndex(index); err != nil {
		return nil, err
	}

	log = log.WithField("component", componentName).WithField("index", index)

	client, err := broker.NewClient(ctx, dom.BrokerAddrs(), fmt.Sprintf("%s-controller-%d", componentName, index))
	if err != nil {
		return nil, err
	}

	registry, err := wire.NewRegistry(dom.RegistryURL())
	if err != nil {
		client.Close()
		return nil, err
	}

	runCtx, cancel := context.WithCancel(ctx)
	ctrl := &Controller{
		componentName: componentName,
		index:         index,
		catalog:       cat,
		dom:           dom,
		log:           log,
		client:        client,
		registry:      registry,
		events:        make(map[string]*topics.WriteTopic),
		telemetry:     make(map[string]*topics.WriteTopic),
		cancel:        cancel,
	}

	var idxPtr *int32
	if cat.Indexed() {
		idxPtr = &index
	}

	for _, name := range cat.EventNames() {
		wt, err := ctrl.newWriteTopic(runCtx, name, idxPtr)
		if err != nil {
			cancel()
			return nil, err
		}
		ctrl.events[name] = wt
	}
	for _, name := range cat.TelemetryNames() {
		wt, err := ctrl.newWriteTopic(runCtx, name, idxPtr)
		if err != nil {
			cancel()
			return nil, err
		}
		ctrl.telemetry[name] = wt
	}

	ackWriteTopic, err := ctrl.newWriteTopic(runCtx, ackCmdTopicName, idxPtr)
	if err != nil {
		cancel()
		return nil, err
	}
	ctrl.ackWriter = command.NewAckWriter(runCtx, ackWriteTopic, log.WithField("worker", "ackwriter"))
	ctrl.responder = command.NewResponder(cat, ctrl.ackWriter, log.WithField("worker", "responder"))

	for _, name := range cat.CommandNames() {
		channel, err := ctrl.newCommandChannel(runCtx, name, idxPtr)
		if err != nil {
			cancel()
			return nil, err
		}
		ctrl.responder.AddChannel(name, channel)
	}

	ctrl.responder.Start(runCtx)

	return ctrl, nil
}

func (c *Controller) newCommandChannel(ctx context.Context, commandName string, index *int32) (*topics.ReadTopic, error) {
	physicalName := c.catalog.SchemaRegistryName(commandName)
	if err := broker.EnsureTopic(ctx, c.dom.BrokerAddrs(), physicalName); err != nil {
		return nil, err
	}
	raw, err := c.catalog.RawSchemaFor(commandName)
	if err != nil {
		return nil, err
	}
	if _, err := c.registry.EnsureSchema(ctx, c.catalog.SubjectName(commandName), raw); err != nil {
		return nil, err
	}
	clientID := fmt.Sprintf("%s-controller-%d-read-%s", c.componentName, c.index, commandName)
	return topics.NewReadTopic(ctx, c.dom.BrokerAddrs(), clientID, c.registry, physicalName, index, commandChannelHistory, c.log.WithField("channel", commandName))
}

func (c *Controller) newWriteTopic(ctx context.Context, topicName string, index *int32) (*topics.WriteTopic, error) {
	physicalName := c.catalog.SchemaRegistryName(topicName)
	if err := broker.EnsureTopic(ctx, c.dom.BrokerAddrs(), physicalName); err != nil {
		return nil, err
	}

	raw, err := c.catalog.RawSchemaFor(topicName)
	if err != nil {
		return nil, err
	}
	schemaID, err := c.registry.EnsureSchema(ctx, c.catalog.SubjectName(topicName), raw)
	if err != nil {
		return nil, err
	}
	schema, err := c.catalog.SchemaFor(topicName)
	if err != nil {
		return nil, err
	}
	revCode, err := c.catalog.RevCodeFor(topicName)
	if err != nil {
		return nil, err
	}

	stamper := envelope.NewStamper(c.dom.PID(), c.dom.Identity(), revCode, index, randomInitialSeq())
	codec := wire.NewCodec(schema, schemaID)
	return topics.NewWriteTopic(c.client, physicalName, codec, stamper), nil
}

// randomInitialSeq returns a randomized starting sequence number, so a
// restarted process doesn't replay sequence numbers a still-connected
// Remote has already seen (SPEC_FULL.md §4.D).
func randomInitialSeq() int32 {
	return rand.Int31n(1<<30) + 1
}

// WriteEvent publishes value on the named event topic.
func (c *Controller) WriteEvent(ctx context.Context, name string, value any) (int32, error) {
	wt, ok := c.events[name]
	if !ok {
		return 0, fmt.Errorf("unknown event %q: %w", name, salerr.Configuration)
	}
	return wt.WriteTyped(ctx, 0, value)
}

// WriteTelemetry publishes value on the named telemetry topic.
func (c *Controller) WriteTelemetry(ctx context.Context, name string, value any) (int32, error) {
	wt, ok := c.telemetry[name]
	if !ok {
		return 0, fmt.Errorf("unknown telemetry %q: %w", name, salerr.Configuration)
	}
	return wt.WriteTyped(ctx, 0, value)
}

// Handle registers the handler for a command name. Must be called before
// traffic is expected, but is safe to call after construction since the
// Responder re-reads its handler map on every dispatch.
func (c *Controller) Handle(commandName string, handler command.Handler) {
	c.responder.Handle(commandName, handler)
}

// EmitAck publishes a follow-up ack for a command outside its original
// synchronous Handler call, e.g. the eventual Complete after a Handler
// returned InProgress. cmdCtx must be the Context the originating
// dispatch passed to the Handler.
func (c *Controller) EmitAck(cmdCtx command.Context, ack envelope.CommandAck) {
	cmdCtx.EmitAck(c.ackWriter, ack)
}

// Index is the component instance index this Controller serves.
func (c *Controller) Index() int32 { return c.index }

// ComponentName is the component this Controller serves.
func (c *Controller) ComponentName() string { return c.componentName }

// Catalog exposes the component's Schema Catalog for callers (e.g. the
// CSC layer) that need command/event name lists.
func (c *Controller) Catalog() *catalog.Catalog { return c.catalog }

// Log returns the logger this Controller and its subordinate workers use.
func (c *Controller) Log() *logrus.Entry { return c.log }

// Close stops every background worker (command channels, ack writer) and
// closes the shared broker client.
func (c *Controller) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	c.cancel()
	c.responder.Wait()
	c.client.Close()
}
