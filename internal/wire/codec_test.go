package wire

import (
	"context"
	"testing"

	"github.com/hamba/avro/v2"
	"github.com/stretchr/testify/require"
)

const testSchema = `{
  "type": "record",
  "name": "scalars",
  "namespace": "lsst.sal.kafka-Test",
  "fields": [
    {"name": "int0", "type": "int", "default": 0},
    {"name": "double0", "type": "double", "default": 0.0}
  ]
}`

func TestEncodeDecodeRoundTrip(t *testing.T) {
	schema, err := avro.Parse(testSchema)
	require.NoError(t, err)

	codec := NewCodec(schema, 42)

	type scalars struct {
		Int0    int32   `avro:"int0"`
		Double0 float64 `avro:"double0"`
	}

	framed, err := codec.Encode(scalars{Int0: 7, Double0: 3.5})
	require.NoError(t, err)
	require.Equal(t, byte(0x00), framed[0])

	registry := &Registry{byID: map[int]avro.Schema{42: schema}}

	var decoded scalars
	err = Decode(context.Background(), registry, framed, &decoded)
	require.NoError(t, err)
	require.Equal(t, int32(7), decoded.Int0)
	require.Equal(t, 3.5, decoded.Double0)
}

func TestDecodeRejectsBadMagicByte(t *testing.T) {
	registry := &Registry{byID: map[int]avro.Schema{}}
	bad := []byte{0x01, 0, 0, 0, 1}
	var out map[string]any
	err := Decode(context.Background(), registry, bad, &out)
	require.Error(t, err)
}

func TestDecodeRejectsShortMessage(t *testing.T) {
	registry := &Registry{byID: map[int]avro.Schema{}}
	var out map[string]any
	err := Decode(context.Background(), registry, []byte{0x00, 0, 0}, &out)
	require.Error(t, err)
}
