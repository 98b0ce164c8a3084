// Package brokertest provides an in-process fake Kafka broker and schema
// registry so unit tests can exercise a real Controller or Remote without
// a live Redpanda cluster. See SPEC_FULL.md §8; grounded on the
// kfake.NewCluster pattern used for exactly this purpose by the pack's own
// grafana-tempo ingest tests.
package brokertest

import (
	"testing"

	"github.com/twmb/franz-go/pkg/kfake"
)

// Environment bundles a fake single-broker Kafka cluster and a fake schema
// registry, the two external services a Controller or Remote dials at
// construction.
type Environment struct {
	Cluster  *kfake.Cluster
	Registry *FakeRegistry
}

// New starts a fake broker and a fake schema registry, registering cleanup
// with t so both are torn down when the test ends.
func New(t *testing.T) *Environment {
	t.Helper()

	cluster, err := kfake.NewCluster(kfake.NumBrokers(1))
	if err != nil {
		t.Fatalf("starting fake broker: %v", err)
	}
	t.Cleanup(cluster.Close)

	registry := newFakeRegistry()
	t.Cleanup(registry.Close)

	return &Environment{Cluster: cluster, Registry: registry}
}

// BrokerAddr returns the fake broker's host:port.
func (e *Environment) BrokerAddr() string {
	return e.Cluster.ListenAddrs()[0]
}

// RegistryURL returns the fake schema registry's base URL.
func (e *Environment) RegistryURL() string {
	return e.Registry.URL()
}

// Setenv points the domain environment variables (SPEC_FULL.md §6) at this
// environment's fake broker and registry, using t.Setenv so the change is
// undone automatically when the test ends.
func (e *Environment) Setenv(t *testing.T, schemaPath, topicSubname string) {
	t.Helper()
	t.Setenv("LSST_SCHEMA_PATH", schemaPath)
	t.Setenv("LSST_TOPIC_SUBNAME", topicSubname)
	t.Setenv("LSST_KAFKA_BROKER_ADDR", e.BrokerAddr())
	t.Setenv("LSST_SCHEMA_REGISTRY_URL", e.RegistryURL())
}
