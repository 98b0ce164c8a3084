// Package broker ensures topics exist on the Kafka cluster before a
// Controller or Remote starts reading or writing them. SPEC_FULL.md §4.G
// step 2: create with a single partition, single replica, if missing.
package broker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/twmb/franz-go/pkg/kadm"
	"github.com/twmb/franz-go/pkg/kerr"
	"github.com/twmb/franz-go/pkg/kgo"

	"github.com/lsst-ts/salobj-go/internal/salerr"
)

const (
	createTimeout = 5 * time.Second
	createRetries = 5

	topicPartitions        = 1
	topicReplicationFactor = 1
)

// EnsureTopic creates topicName with a single partition and a single
// replica if it does not already exist. It is idempotent: a
// TopicAlreadyExists response is treated as success. It dials its own
// short-lived client rather than reusing a Controller/Remote's shared
// one, so kadm's Close doesn't tear down a connection still needed for
// publishing or consuming.
func EnsureTopic(ctx context.Context, brokerAddrs []string, topicName string) error {
	client, err := kgo.NewClient(kgo.SeedBrokers(brokerAddrs...))
	if err != nil {
		return fmt.Errorf("constructing admin client for topic %s: %v: %w", topicName, err, salerr.Configuration)
	}
	defer client.Close()

	admin := kadm.NewClient(client)
	defer admin.Close()

	var lastErr error
	for attempt := 0; attempt < createRetries; attempt++ {
		reqCtx, cancel := context.WithTimeout(ctx, createTimeout)
		err := createOnce(reqCtx, admin, topicName)
		cancel()
		if err == nil {
			return nil
		}
		lastErr = err
	}
	return fmt.Errorf("creating topic %s after %d attempts: %v: %w", topicName, createRetries, lastErr, salerr.Transport)
}

func createOnce(ctx context.Context, admin *kadm.Client, topicName string) error {
	resp, err := admin.CreateTopic(ctx, topicPartitions, topicReplicationFactor, nil, topicName)
	if err != nil {
		return err
	}
	if resp.Err == nil || errors.Is(resp.Err, kerr.TopicAlreadyExists) {
		return nil
	}
	return resp.Err
}
