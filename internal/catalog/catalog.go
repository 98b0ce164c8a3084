// Package catalog discovers a component's schema directory and builds the
// immutable, read-only-after-construction runtime catalog of typed topics
// (commands, command acknowledgements, events, telemetry) that every Read
// Topic, Write Topic, Command Issuer and Command Responder consults.
//
// See SPEC_FULL.md §4.A.
package catalog

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/hamba/avro/v2"

	"github.com/lsst-ts/salobj-go/internal/salerr"
)

// TopicKind classifies a topic by its name prefix.
type TopicKind int

const (
	KindAckCmd TopicKind = iota
	KindCommand
	KindEvent
	KindTelemetry
)

func (k TopicKind) String() string {
	switch k {
	case KindAckCmd:
		return "ackcmd"
	case KindCommand:
		return "command"
	case KindEvent:
		return "event"
	case KindTelemetry:
		return "telemetry"
	default:
		return "unknown"
	}
}

const (
	ackCmdTopicName   = "ackcmd"
	commandPrefix     = "command_"
	eventPrefix       = "logevent_"
	heartbeatTopic    = "logevent_heartbeat"
	salIndexFieldName = "salIndex"
)

// topicEntry is everything the catalog knows about one topic.
type topicEntry struct {
	kind     TopicKind
	rawJSON  string
	schema   avro.Schema
	revCode  string
}

// Catalog is the parsed, immutable view of one component's schema directory.
// It is safe for concurrent use: nothing in it is ever mutated after Load
// returns.
type Catalog struct {
	componentName string
	topicSubname  string
	indexed       bool

	topics map[string]topicEntry

	commandNames   []string
	eventNames     []string
	telemetryNames []string
}

// Load enumerates <schemaRoot>/<componentName>'s schema files, parses its
// hash table, and classifies every topic. A missing schema directory,
// missing component subdirectory, missing hash table, missing heartbeat
// schema, or unparseable JSON is a fatal Configuration error.
func Load(schemaRoot, componentName, topicSubname string) (*Catalog, error) {
	componentDir := filepath.Join(schemaRoot, componentName)
	info, err := os.Stat(componentDir)
	if err != nil || !info.IsDir() {
		return nil, fmt.Errorf("no schema directory for component %q at %s: %w", componentName, componentDir, salerr.Configuration)
	}

	entries, err := os.ReadDir(componentDir)
	if err != nil {
		return nil, fmt.Errorf("reading schema directory %s: %w", componentDir, salerr.Configuration)
	}

	hashTablePath := filepath.Join(componentDir, componentName+"_hash_table.json")
	hashTable, err := loadHashTable(hashTablePath)
	if err != nil {
		return nil, err
	}

	topics := make(map[string]topicEntry, len(entries))
	prefix := componentName + "_"

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if !strings.HasSuffix(name, ".json") {
			continue
		}
		if isNonTopicFile(name) {
			continue
		}
		if !strings.HasPrefix(name, prefix) {
			continue
		}

		topicName := strings.TrimSuffix(strings.TrimPrefix(name, prefix), ".json")

		raw, err := os.ReadFile(filepath.Join(componentDir, name))
		if err != nil {
			return nil, fmt.Errorf("reading schema file %s: %w", name, salerr.Configuration)
		}

		schema, err := avro.Parse(string(raw))
		if err != nil {
			return nil, fmt.Errorf("parsing schema %s: %v: %w", name, err, salerr.Configuration)
		}

		revCode, ok := hashTable[topicName]
		if !ok {
			return nil, fmt.Errorf("hash table %s has no entry for topic %q: %w", hashTablePath, topicName, salerr.Configuration)
		}

		topics[topicName] = topicEntry{
			kind:    classify(topicName),
			rawJSON: string(raw),
			schema:  schema,
			revCode: revCode,
		}
	}

	heartbeat, ok := topics[heartbeatTopic]
	if !ok {
		return nil, fmt.Errorf("component %q has no %s schema: %w", componentName, heartbeatTopic, salerr.Configuration)
	}

	cat := &Catalog{
		componentName: componentName,
		topicSubname:  topicSubname,
		indexed:       schemaHasField(heartbeat.schema, salIndexFieldName),
		topics:        topics,
	}

	for name, entry := range topics {
		switch entry.kind {
		case KindCommand:
			cat.commandNames = append(cat.commandNames, name)
		case KindEvent:
			cat.eventNames = append(cat.eventNames, name)
		case KindTelemetry:
			cat.telemetryNames = append(cat.telemetryNames, name)
		}
	}
	sort.Strings(cat.commandNames)
	sort.Strings(cat.eventNames)
	sort.Strings(cat.telemetryNames)

	return cat, nil
}

func loadHashTable(path string) (map[string]string, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("no hash table at %s: %w", path, salerr.Configuration)
	}
	var table map[string]string
	if err := json.Unmarshal(raw, &table); err != nil {
		return nil, fmt.Errorf("parsing hash table %s: %v: %w", path, err, salerr.Configuration)
	}
	return table, nil
}

func isNonTopicFile(basename string) bool {
	return strings.Contains(basename, "field_enums") ||
		strings.Contains(basename, "global_enums") ||
		strings.Contains(basename, "hash_table")
}

func classify(topicName string) TopicKind {
	switch {
	case topicName == ackCmdTopicName:
		return KindAckCmd
	case strings.HasPrefix(topicName, commandPrefix):
		return KindCommand
	case strings.HasPrefix(topicName, eventPrefix):
		return KindEvent
	default:
		return KindTelemetry
	}
}

// schemaHasField reports whether an Avro record schema declares a field with
// the given name. Used to decide whether a component is indexed by
// inspecting its logevent_heartbeat schema.
func schemaHasField(schema avro.Schema, fieldName string) bool {
	rec, ok := schema.(*avro.RecordSchema)
	if !ok {
		return false
	}
	for _, f := range rec.Fields() {
		if f.Name() == fieldName {
			return true
		}
	}
	return false
}

// ComponentName returns the component this catalog was built for.
func (c *Catalog) ComponentName() string { return c.componentName }

// Indexed reports whether the component supports multiple concurrently
// running instances distinguished by salIndex.
func (c *Catalog) Indexed() bool { return c.indexed }

// CheckIndex returns a Configuration error if index != 0 is requested for a
// non-indexed component.
func (c *Catalog) CheckIndex(index int32) error {
	if index != 0 && !c.indexed {
		return fmt.Errorf("index=%d requested but component %q is not indexed: %w", index, c.componentName, salerr.Configuration)
	}
	return nil
}

// CommandNames returns the ordered set of command topic names.
func (c *Catalog) CommandNames() []string { return append([]string(nil), c.commandNames...) }

// EventNames returns the ordered set of event topic names.
func (c *Catalog) EventNames() []string { return append([]string(nil), c.eventNames...) }

// TelemetryNames returns the ordered set of telemetry topic names.
func (c *Catalog) TelemetryNames() []string { return append([]string(nil), c.telemetryNames...) }

// Kind returns which of ackcmd/command/event/telemetry a topic belongs to.
func (c *Catalog) Kind(topicName string) (TopicKind, error) {
	entry, ok := c.topics[topicName]
	if !ok {
		return 0, fmt.Errorf("unknown topic %q: %w", topicName, salerr.Configuration)
	}
	return entry.kind, nil
}

// SchemaFor returns the parsed Avro schema for a topic.
func (c *Catalog) SchemaFor(topicName string) (avro.Schema, error) {
	entry, ok := c.topics[topicName]
	if !ok {
		return nil, fmt.Errorf("no schema for topic %q: %w", topicName, salerr.Configuration)
	}
	return entry.schema, nil
}

// RawSchemaFor returns the unparsed JSON Avro schema text for a topic, the
// shape that gets registered with the schema registry.
func (c *Catalog) RawSchemaFor(topicName string) (string, error) {
	entry, ok := c.topics[topicName]
	if !ok {
		return "", fmt.Errorf("no schema for topic %q: %w", topicName, salerr.Configuration)
	}
	return entry.rawJSON, nil
}

// RevCodeFor returns the non-empty revision code for a topic.
func (c *Catalog) RevCodeFor(topicName string) (string, error) {
	entry, ok := c.topics[topicName]
	if !ok {
		return "", fmt.Errorf("no rev code for topic %q: %w", topicName, salerr.Configuration)
	}
	return entry.revCode, nil
}

// SalName builds "<Component>_<topic_name>", the historical identifier.
func (c *Catalog) SalName(topicName string) string {
	return c.componentName + "_" + topicName
}

// ShortName strips the command_ topic prefix, e.g. "command_setScalars" ->
// "setScalars", for human-facing ack messages. Non-command topic names are
// returned unchanged.
func ShortName(topicName string) string {
	return strings.TrimPrefix(topicName, commandPrefix)
}

// SchemaRegistryName builds "lsst.<topic_subname>.<Component>.<topic_name>".
func (c *Catalog) SchemaRegistryName(topicName string) string {
	return fmt.Sprintf("lsst.%s.%s.%s", c.topicSubname, c.componentName, topicName)
}

// SubjectName builds the schema-registry subject name: the
// schema-registry name with the component segment stripped, suffixed with
// "-value".
func (c *Catalog) SubjectName(topicName string) string {
	registryName := c.SchemaRegistryName(topicName)
	stripped := strings.Replace(registryName, "."+c.componentName+".", ".", 1)
	return stripped + "-value"
}

// CommandIndex returns the position of commandName in the lexicographic
// list of commands, used as the ack's cmdtype.
func (c *Catalog) CommandIndex(commandName string) (int, error) {
	i := sort.SearchStrings(c.commandNames, commandName)
	if i >= len(c.commandNames) || c.commandNames[i] != commandName {
		return 0, fmt.Errorf("unknown command %q: %w", commandName, salerr.Configuration)
	}
	return i, nil
}
