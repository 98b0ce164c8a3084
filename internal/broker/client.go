package broker

import (
	"context"
	"fmt"

	"github.com/twmb/franz-go/pkg/kgo"

	"github.com/lsst-ts/salobj-go/internal/salerr"
)

// NewClient dials brokerAddrs and pings the cluster before returning,
// so a Controller or Remote fails fast at construction rather than on
// its first publish. extraOpts is appended after the seed/client-id
// options, letting callers add e.g. ConsumeTopics/ConsumeResetOffset for
// a dedicated per-topic consumer client.
func NewClient(ctx context.Context, brokerAddrs []string, clientID string, extraOpts ...kgo.Opt) (*kgo.Client, error) {
	opts := append([]kgo.Opt{
		kgo.SeedBrokers(brokerAddrs...),
		kgo.ClientID(clientID),
	}, extraOpts...)

	client, err := kgo.NewClient(opts...)
	if err != nil {
		return nil, fmt.Errorf("constructing kafka client: %v: %w", err, salerr.Configuration)
	}

	if err := client.Ping(ctx); err != nil {
		client.Close()
		return nil, fmt.Errorf("pinging brokers %v: %v: %w", brokerAddrs, err, salerr.Transport)
	}

	return client, nil
}
