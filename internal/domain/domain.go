// Package domain holds the process-wide identity and environment
// configuration injected into every envelope this process writes.
//
// A Domain is read once at construction and cached; there is no other
// ambient state (see SPEC_FULL.md §9 "Global state").
package domain

import (
	"fmt"
	"os"
	"os/user"
	"strings"

	"github.com/lsst-ts/salobj-go/internal/salerr"
)

const (
	envSchemaPath    = "LSST_SCHEMA_PATH"
	envTopicSubname  = "LSST_TOPIC_SUBNAME"
	envBrokerAddr    = "LSST_KAFKA_BROKER_ADDR"
	envRegistryURL   = "LSST_SCHEMA_REGISTRY_URL"
	defaultBroker    = "localhost:9092"
	defaultRegistry  = "http://127.0.0.1:8081"
)

// Domain is the process-wide identity and environment configuration shared
// by every Controller and Remote constructed in this process.
type Domain struct {
	pid          int32
	identity     string
	schemaPath   string
	topicSubname string
	brokerAddrs  []string
	registryURL  string
}

// New reads the environment variables spec.md §6 names and returns a Domain.
// LSST_SCHEMA_PATH and LSST_TOPIC_SUBNAME are required; LSST_KAFKA_BROKER_ADDR
// and LSST_SCHEMA_REGISTRY_URL fall back to their documented defaults.
func New() (*Domain, error) {
	schemaPath := os.Getenv(envSchemaPath)
	if schemaPath == "" {
		return nil, fmt.Errorf("%s not set: %w", envSchemaPath, salerr.Configuration)
	}

	topicSubname := os.Getenv(envTopicSubname)
	if topicSubname == "" {
		return nil, fmt.Errorf("%s not set: %w", envTopicSubname, salerr.Configuration)
	}

	brokerAddr := os.Getenv(envBrokerAddr)
	if brokerAddr == "" {
		brokerAddr = defaultBroker
	}

	registryURL := os.Getenv(envRegistryURL)
	if registryURL == "" {
		registryURL = defaultRegistry
	}

	return &Domain{
		pid:          int32(os.Getpid()),
		identity:     defaultIdentity(),
		schemaPath:   schemaPath,
		topicSubname: topicSubname,
		brokerAddrs:  strings.Split(brokerAddr, ","),
		registryURL:  registryURL,
	}, nil
}

func defaultIdentity() string {
	u, err := user.Current()
	username := "unknown"
	if err == nil && u.Username != "" {
		username = u.Username
	}
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "localhost"
	}
	return username + "@" + host
}

// PID is the publisher process id stamped into every envelope as
// private_origin.
func (d *Domain) PID() int32 { return d.pid }

// Identity is the "user@host" (or component identity override) stamped into
// every envelope as private_identity.
func (d *Domain) Identity() string { return d.identity }

// WithIdentity returns a shallow copy of d with identity overridden. Used by
// CSCs that want to publish under a component identity rather than the
// process's own user@host.
func (d *Domain) WithIdentity(identity string) *Domain {
	clone := *d
	clone.identity = identity
	return &clone
}

// SchemaPath is the root directory containing per-component schema
// subdirectories (LSST_SCHEMA_PATH).
func (d *Domain) SchemaPath() string { return d.schemaPath }

// TopicSubname is spliced into schema_registry_name (LSST_TOPIC_SUBNAME).
func (d *Domain) TopicSubname() string { return d.topicSubname }

// BrokerAddrs is the comma-separated host:port list from
// LSST_KAFKA_BROKER_ADDR (or its default), already split.
func (d *Domain) BrokerAddrs() []string { return d.brokerAddrs }

// RegistryURL is the schema registry base URL (LSST_SCHEMA_REGISTRY_URL or
// its default).
func (d *Domain) RegistryURL() string { return d.registryURL }
