package salobj

import (
	"context"
	"fmt"
	"sync"
	"time"

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

// defaultEventHistory is max_history for an event Read Topic: being
// non-zero, it makes a late subscriber start at the earliest retained
// offset and replay the retained history (bounded by the Read Topic's
// queue capacity), not only the most recent event.
const defaultEventHistory = 1

// defaultTelemetryHistory is max_history for a telemetry Read Topic: no
// replay, telemetry is only meaningful as it arrives.
const defaultTelemetryHistory = 0

// ackHistory is max_history for the shared ackcmd Read Topic.
const ackHistory = 100

// ReadOnly constructs a Remote with no command Write Topics or Issuers, for
// callers that only observe events and telemetry.
const ReadOnly = false

// WriteCommands constructs a Remote with a full command Issuer per command,
// able to drive the component through run_command.
const WriteCommands = true

// Remote subscribes to a component's events and telemetry and, unless
// constructed read-only, can issue its commands.
type Remote struct {
	componentName string
	index         int32
	catalog       *catalog.Catalog
	dom           *domain.Domain
	log           *logrus.Entry

	client   *kgo.Client
	registry *wire.Registry

	events    map[string]*topics.ReadTopic
	telemetry map[string]*topics.ReadTopic
	issuers   map[string]*command.Issuer
	ackReader *topics.ReadTopic

	cancel context.CancelFunc
	mu     sync.Mutex
	closed bool
}

// NewRemote builds the Schema Catalog for componentName, ensures every
// topic exists, and instantiates Read Topics for every event and telemetry
// topic. When withCommands is true it also instantiates Write Topics and
// one Issuer per command, sharing the ackcmd Read Topic.
func NewRemote(ctx context.Context, dom *domain.Domain, componentName string, index int32, withCommands bool, log *logrus.Entry) (*Remote, error) {
	cat, err := catalog.Load(dom.SchemaPath(), componentName, dom.TopicSubname())
	if err != nil {
		return nil, err
	}
	if err := cat.CheckIndex(index); err != nil {
		return nil, err
	}

	log = log.WithField("component", componentName).WithField("index", index).WithField("role", "remote")

	client, err := broker.NewClient(ctx, dom.BrokerAddrs(), fmt.Sprintf("%s-remote-%d", componentName, index))
	if err != nil {
		return nil, err
	}

	registry, err := wire.NewRegistry(dom.RegistryURL())
	if err != nil {
		client.Close()
		return nil, err
	}

	runCtx, cancel := context.WithCancel(ctx)
	rem := &Remote{
		componentName: componentName,
		index:         index,
		catalog:       cat,
		dom:           dom,
		log:           log,
		client:        client,
		registry:      registry,
		events:        make(map[string]*topics.ReadTopic),
		telemetry:     make(map[string]*topics.ReadTopic),
		issuers:       make(map[string]*command.Issuer),
		cancel:        cancel,
	}

	var idxPtr *int32
	if cat.Indexed() {
		idxPtr = &index
	}

	for _, name := range cat.EventNames() {
		rt, err := rem.newReadTopic(runCtx, name, idxPtr, defaultEventHistory)
		if err != nil {
			cancel()
			return nil, err
		}
		rem.events[name] = rt
	}
	for _, name := range cat.TelemetryNames() {
		rt, err := rem.newReadTopic(runCtx, name, idxPtr, defaultTelemetryHistory)
		if err != nil {
			cancel()
			return nil, err
		}
		rem.telemetry[name] = rt
	}

	if !withCommands {
		return rem, nil
	}

	ackReader, err := rem.newReadTopic(runCtx, ackCmdTopicName, idxPtr, ackHistory)
	if err != nil {
		cancel()
		return nil, err
	}
	rem.ackReader = ackReader

	for _, name := range cat.CommandNames() {
		wt, err := rem.newCommandWriteTopic(runCtx, name, idxPtr)
		if err != nil {
			cancel()
			return nil, err
		}
		rem.issuers[name] = command.NewIssuer(name, cat, wt, ackReader)
	}

	return rem, nil
}

func (r *Remote) newReadTopic(ctx context.Context, topicName string, index *int32, maxHistory int) (*topics.ReadTopic, error) {
	physicalName := r.catalog.SchemaRegistryName(topicName)
	if err := broker.EnsureTopic(ctx, r.dom.BrokerAddrs(), physicalName); err != nil {
		return nil, err
	}
	raw, err := r.catalog.RawSchemaFor(topicName)
	if err != nil {
		return nil, err
	}
	if _, err := r.registry.EnsureSchema(ctx, r.catalog.SubjectName(topicName), raw); err != nil {
		return nil, err
	}
	clientID := fmt.Sprintf("%s-remote-%d-read-%s", r.componentName, r.index, topicName)
	return topics.NewReadTopic(ctx, r.dom.BrokerAddrs(), clientID, r.registry, physicalName, index, maxHistory, r.log.WithField("channel", topicName))
}

func (r *Remote) newCommandWriteTopic(ctx context.Context, topicName string, index *int32) (*topics.WriteTopic, error) {
	physicalName := r.catalog.SchemaRegistryName(topicName)
	if err := broker.EnsureTopic(ctx, r.dom.BrokerAddrs(), physicalName); err != nil {
		return nil, err
	}

	raw, err := r.catalog.RawSchemaFor(topicName)
	if err != nil {
		return nil, err
	}
	schemaID, err := r.registry.EnsureSchema(ctx, r.catalog.SubjectName(topicName), raw)
	if err != nil {
		return nil, err
	}
	schema, err := r.catalog.SchemaFor(topicName)
	if err != nil {
		return nil, err
	}
	revCode, err := r.catalog.RevCodeFor(topicName)
	if err != nil {
		return nil, err
	}

	stamper := envelope.NewStamper(r.dom.PID(), r.dom.Identity(), revCode, index, randomInitialSeq())
	codec := wire.NewCodec(schema, schemaID)
	return topics.NewWriteTopic(r.client, physicalName, codec, stamper), nil
}

// RunCommand issues commandName with parameters and waits for its ack(s) per
// waitDone, as described in SPEC_FULL.md §4.E.
func (r *Remote) RunCommand(ctx context.Context, commandName string, parameters map[string]any, timeout time.Duration, waitDone bool) (envelope.CommandAck, error) {
	issuer, ok := r.issuers[commandName]
	if !ok {
		return envelope.CommandAck{}, fmt.Errorf("remote for %s was not constructed with command support, or %q is unknown: %w", r.componentName, commandName, salerr.Configuration)
	}
	return issuer.Run(ctx, parameters, timeout, waitDone)
}

// PopEventFront pops the oldest queued sample of the named event.
func (r *Remote) PopEventFront(ctx context.Context, name string, flush bool, timeout time.Duration) (topics.Sample, bool, error) {
	rt, err := r.eventTopic(name)
	if err != nil {
		return topics.Sample{}, false, err
	}
	return rt.PopFront(ctx, flush, timeout)
}

// PopEventBack pops the newest queued sample of the named event.
func (r *Remote) PopEventBack(ctx context.Context, name string, flush bool, timeout time.Duration) (topics.Sample, bool, error) {
	rt, err := r.eventTopic(name)
	if err != nil {
		return topics.Sample{}, false, err
	}
	return rt.PopBack(ctx, flush, timeout)
}

// PopTelemetryFront pops the oldest queued sample of the named telemetry
// topic.
func (r *Remote) PopTelemetryFront(ctx context.Context, name string, flush bool, timeout time.Duration) (topics.Sample, bool, error) {
	rt, err := r.telemetryTopic(name)
	if err != nil {
		return topics.Sample{}, false, err
	}
	return rt.PopFront(ctx, flush, timeout)
}

// PopTelemetryBack pops the newest queued sample of the named telemetry
// topic.
func (r *Remote) PopTelemetryBack(ctx context.Context, name string, flush bool, timeout time.Duration) (topics.Sample, bool, error) {
	rt, err := r.telemetryTopic(name)
	if err != nil {
		return topics.Sample{}, false, err
	}
	return rt.PopBack(ctx, flush, timeout)
}

func (r *Remote) eventTopic(name string) (*topics.ReadTopic, error) {
	rt, ok := r.events[name]
	if !ok {
		return nil, fmt.Errorf("unknown event %q: %w", name, salerr.Configuration)
	}
	return rt, nil
}

func (r *Remote) telemetryTopic(name string) (*topics.ReadTopic, error) {
	rt, ok := r.telemetry[name]
	if !ok {
		return nil, fmt.Errorf("unknown telemetry %q: %w", name, salerr.Configuration)
	}
	return rt, nil
}

// Catalog exposes the component's Schema Catalog.
func (r *Remote) Catalog() *catalog.Catalog { return r.catalog }

// Log returns the logger this Remote and its Read Topics use.
func (r *Remote) Log() *logrus.Entry { return r.log }

// Close stops every Read Topic's background goroutine and closes the
// shared broker client.
func (r *Remote) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}
	r.closed = true
	for _, rt := range r.events {
		rt.Close()
	}
	for _, rt := range r.telemetry {
		rt.Close()
	}
	if r.ackReader != nil {
		r.ackReader.Close()
	}
	r.cancel()
	r.client.Close()
}
