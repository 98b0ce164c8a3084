// Package topics implements the Read Topic and Write Topic components:
// the per-topic facades a Controller or Remote uses to consume and
// publish stamped, Avro-framed samples. See SPEC_FULL.md §4.C and §4.D.
package topics

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/twmb/franz-go/pkg/kgo"

	"github.com/lsst-ts/salobj-go/internal/broker"
	"github.com/lsst-ts/salobj-go/internal/envelope"
	"github.com/lsst-ts/salobj-go/internal/wire"
)

// defaultQueueCapacity bounds the in-memory backlog a Read Topic retains
// between Pop calls before it starts dropping the oldest sample.
const defaultQueueCapacity = 100

// Sample is one decoded message: its stamped envelope plus the
// topic-specific fields, already split apart by envelope.FromMap.
type Sample struct {
	Envelope envelope.Envelope
	Fields   map[string]any
}

// ReadTopic continuously drains one Kafka topic into a bounded,
// drop-oldest FIFO queue, independent of every other Read Topic: each
// owns its own, exclusively-consuming client (no consumer group) and
// reads from either the earliest or the latest offset depending on
// maxHistory, so a late-starting Remote or Controller either replays
// history or observes only what arrives from here on.
type ReadTopic struct {
	name     string
	client   *kgo.Client
	registry *wire.Registry
	index    *int32
	log      *logrus.Entry

	mu      sync.Mutex
	queue   []Sample
	hasData bool
	signal  chan struct{}

	cancel context.CancelFunc
	done   chan struct{}
}

// NewReadTopic dials a dedicated consumer client for topicName and starts
// background consumption immediately. index, when non-nil, restricts
// delivered samples to that salIndex. maxHistory selects the offset
// policy only: maxHistory > 0 starts at the earliest retained offset
// (replaying history on catch-up), maxHistory == 0 starts at the latest
// offset (live-only). The in-memory queue is always bounded at
// defaultQueueCapacity regardless of maxHistory.
func NewReadTopic(ctx context.Context, brokerAddrs []string, clientID string, registry *wire.Registry, topicName string, index *int32, maxHistory int, log *logrus.Entry) (*ReadTopic, error) {
	offset := kgo.NewOffset().AtEnd()
	if maxHistory > 0 {
		offset = kgo.NewOffset().AtStart()
	}

	client, err := broker.NewClient(ctx, brokerAddrs, clientID,
		kgo.ConsumeTopics(topicName),
		kgo.ConsumeResetOffset(offset),
	)
	if err != nil {
		return nil, err
	}

	runCtx, cancel := context.WithCancel(ctx)
	rt := &ReadTopic{
		name:     topicName,
		client:   client,
		registry: registry,
		index:    index,
		log:      log.WithField("topic", topicName),
		signal:   make(chan struct{}),
		cancel:   cancel,
		done:     make(chan struct{}),
	}

	go rt.run(runCtx)
	return rt, nil
}

// Close stops background consumption and closes this Read Topic's own
// dedicated consumer client.
func (rt *ReadTopic) Close() {
	rt.cancel()
	<-rt.done
	rt.client.Close()
}

func (rt *ReadTopic) run(ctx context.Context) {
	defer close(rt.done)
	for {
		fetches := rt.client.PollFetches(ctx)
		if ctx.Err() != nil {
			return
		}
		fetches.EachError(func(topic string, partition int32, err error) {
			rt.log.WithError(err).WithField("partition", partition).Warn("fetch error")
		})
		fetches.EachRecord(func(rec *kgo.Record) {
			rt.ingest(ctx, rec)
		})
	}
}

func (rt *ReadTopic) ingest(ctx context.Context, rec *kgo.Record) {
	if rec.Topic != rt.name {
		return
	}

	var decoded map[string]any
	if err := wire.Decode(ctx, rt.registry, rec.Value, &decoded); err != nil {
		rt.log.WithError(err).Warn("dropping undecodable message")
		return
	}
	env, fields := envelope.FromMap(decoded)
	env = env.StampRcvStamp()

	if rt.index != nil && (env.SalIndex == nil || *env.SalIndex != *rt.index) {
		return
	}

	rt.push(Sample{Envelope: env, Fields: fields})
}

func (rt *ReadTopic) push(s Sample) {
	rt.mu.Lock()
	defer rt.mu.Unlock()

	rt.queue = append(rt.queue, s)
	if len(rt.queue) > defaultQueueCapacity {
		rt.queue = rt.queue[len(rt.queue)-defaultQueueCapacity:]
	}
	rt.hasData = true

	close(rt.signal)
	rt.signal = make(chan struct{})
}

// HasData reports whether at least one sample has ever been received.
func (rt *ReadTopic) HasData() bool {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	return rt.hasData
}

// Flush discards every queued sample without affecting HasData.
func (rt *ReadTopic) Flush() {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	rt.queue = nil
}

// Get returns the most recently queued sample without removing it, or
// false if none has arrived yet.
func (rt *ReadTopic) Get() (Sample, bool) {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	if len(rt.queue) == 0 {
		return Sample{}, false
	}
	return rt.queue[len(rt.queue)-1], true
}

// PopFront removes and returns the oldest queued sample, optionally
// discarding the existing backlog first (flush), and waiting up to
// timeout for a sample to arrive if none is queued. A non-positive
// timeout means wait forever.
func (rt *ReadTopic) PopFront(ctx context.Context, flush bool, timeout time.Duration) (Sample, bool, error) {
	if flush {
		rt.Flush()
	}
	return rt.waitAndPop(ctx, timeout, true)
}

// PopBack removes and returns the newest queued sample and discards every
// older queued sample with it, optionally discarding the existing backlog
// before waiting. Unlike the reference
// implementation's full poll-cycle-per-call semantics, this reads from
// the continuously maintained queue directly: if a sample is already
// queued it is returned immediately as "freshest currently available",
// otherwise PopBack waits up to timeout for the first arrival.
func (rt *ReadTopic) PopBack(ctx context.Context, flush bool, timeout time.Duration) (Sample, bool, error) {
	if flush {
		rt.Flush()
	}
	return rt.waitAndPop(ctx, timeout, false)
}

func (rt *ReadTopic) waitAndPop(ctx context.Context, timeout time.Duration, front bool) (Sample, bool, error) {
	for {
		rt.mu.Lock()
		if len(rt.queue) > 0 {
			var s Sample
			if front {
				s, rt.queue = rt.queue[0], rt.queue[1:]
			} else {
				s, rt.queue = rt.queue[len(rt.queue)-1], nil
			}
			rt.mu.Unlock()
			return s, true, nil
		}
		signal := rt.signal
		rt.mu.Unlock()

		if timeout <= 0 {
			select {
			case <-signal:
				continue
			case <-ctx.Done():
				return Sample{}, false, ctx.Err()
			}
		}

		timer := time.NewTimer(timeout)
		select {
		case <-signal:
			timer.Stop()
			continue
		case <-timer.C:
			return Sample{}, false, nil
		case <-ctx.Done():
			timer.Stop()
			return Sample{}, false, ctx.Err()
		}
	}
}
