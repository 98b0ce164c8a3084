package wire

import (
	"context"
	"encoding/binary"
	"fmt"

	"github.com/hamba/avro/v2"

	"github.com/lsst-ts/salobj-go/internal/salerr"
)

// magicByte is the Confluent wire-format framing marker: byte 0 of every
// message produced against a schema registry.
const magicByte = 0x00

// frameHeaderLen is 1 magic byte + 4 big-endian schema-id bytes.
const frameHeaderLen = 5

// Codec encodes and decodes one topic's Avro payloads using a fixed schema
// id (the id this process registered at startup for that topic).
type Codec struct {
	schema   avro.Schema
	schemaID int
}

// NewCodec binds an Avro schema to the wire schema id it was registered
// under.
func NewCodec(schema avro.Schema, schemaID int) *Codec {
	return &Codec{schema: schema, schemaID: schemaID}
}

// Encode serializes value (a Go struct or map[string]any shaped like the
// Avro schema) into the framed wire format: magic byte, big-endian schema
// id, Avro binary payload.
func (c *Codec) Encode(value any) ([]byte, error) {
	body, err := avro.Marshal(c.schema, value)
	if err != nil {
		return nil, fmt.Errorf("avro encode: %v: %w", err, salerr.Transport)
	}

	out := make([]byte, frameHeaderLen+len(body))
	out[0] = magicByte
	binary.BigEndian.PutUint32(out[1:5], uint32(c.schemaID))
	copy(out[5:], body)
	return out, nil
}

// Decode unframes data and decodes its Avro payload into out, using the
// schema registered under the wire schema id embedded in the frame (not
// necessarily c.schemaID: a topic may be decoded against an older or newer
// compatible schema than the one this process last registered).
func Decode(ctx context.Context, registry *Registry, data []byte, out any) error {
	if len(data) < frameHeaderLen {
		return fmt.Errorf("message too short (%d bytes) for schema-registry framing: %w", len(data), salerr.Transport)
	}
	if data[0] != magicByte {
		return fmt.Errorf("unexpected magic byte 0x%02x: %w", data[0], salerr.Transport)
	}

	id := int(binary.BigEndian.Uint32(data[1:5]))
	schema, err := registry.SchemaByID(ctx, id)
	if err != nil {
		return err
	}

	if err := avro.Unmarshal(schema, data[frameHeaderLen:], out); err != nil {
		return fmt.Errorf("avro decode (schema id %d): %v: %w", id, err, salerr.Transport)
	}
	return nil
}

// SchemaID returns the wire schema id this codec stamps on encode.
func (c *Codec) SchemaID() int { return c.schemaID }

// Schema returns the Avro schema this codec encodes against.
func (c *Codec) Schema() avro.Schema { return c.schema }
