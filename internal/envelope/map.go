package envelope

import "time"

// envelopeKeys is the set of field names ToMap/FromMap treat as envelope
// metadata rather than topic-specific payload.
var envelopeKeys = []string{
	"private_origin", "private_identity", "private_seqNum",
	"private_sndStamp", "private_efdStamp", "private_kafkaStamp",
	"private_rcvStamp", "private_revCode", "salIndex",
}

// ToMap flattens an Envelope into the generic field map a Write Topic
// merges with its caller-supplied payload before encoding.
func (e Envelope) ToMap() map[string]any {
	m := map[string]any{
		"private_origin":     e.PrivateOrigin,
		"private_identity":   e.PrivateIdentity,
		"private_seqNum":     e.PrivateSeqNum,
		"private_sndStamp":   e.PrivateSndStamp,
		"private_efdStamp":   e.PrivateEfdStamp,
		"private_kafkaStamp": e.PrivateKafkaStamp,
		"private_revCode":    e.PrivateRevCode,
	}
	if e.PrivateRcvStamp != 0 {
		m["private_rcvStamp"] = e.PrivateRcvStamp
	}
	if e.SalIndex != nil {
		m["salIndex"] = *e.SalIndex
	}
	return m
}

// FromMap splits a decoded Avro record into its Envelope fields and the
// remaining topic-specific fields. Missing fields are left at their zero
// value; this function never errors, since a reader must not reject a
// message for leaving private_rcvStamp (or, per the union-typed salIndex
// branch) unset.
func FromMap(decoded map[string]any) (Envelope, map[string]any) {
	env := Envelope{
		PrivateOrigin:     asInt32(decoded["private_origin"]),
		PrivateIdentity:   asString(decoded["private_identity"]),
		PrivateSeqNum:     asInt32(decoded["private_seqNum"]),
		PrivateSndStamp:   asFloat64(decoded["private_sndStamp"]),
		PrivateEfdStamp:   asFloat64(decoded["private_efdStamp"]),
		PrivateKafkaStamp: asFloat64(decoded["private_kafkaStamp"]),
		PrivateRcvStamp:   asFloat64(decoded["private_rcvStamp"]),
		PrivateRevCode:    asString(decoded["private_revCode"]),
	}
	if idx, ok := asOptionalInt32(decoded["salIndex"]); ok {
		env.SalIndex = &idx
	}

	fields := make(map[string]any, len(decoded))
	for k, v := range decoded {
		fields[k] = v
	}
	for _, key := range envelopeKeys {
		delete(fields, key)
	}
	return env, fields
}

// StampRcvStamp returns a copy of env with private_rcvStamp set to the
// current wall-clock time. Readers MAY populate this at dequeue time.
func (e Envelope) StampRcvStamp() Envelope {
	e.PrivateRcvStamp = float64(time.Now().UnixNano()) / 1e9
	return e
}

// IntField reads a 32-bit integer out of a decoded Avro field map,
// tolerating the numeric types the JSON/Avro bridge may produce.
func IntField(m map[string]any, key string) int32 { return asInt32(m[key]) }

// FloatField reads a float64 out of a decoded Avro field map.
func FloatField(m map[string]any, key string) float64 { return asFloat64(m[key]) }

// StringField reads a string out of a decoded Avro field map.
func StringField(m map[string]any, key string) string { return asString(m[key]) }

// BoolField reads a boolean out of a decoded Avro field map.
func BoolField(m map[string]any, key string) bool { return asBool(m[key]) }

// Int64Field reads a 64-bit integer out of a decoded Avro field map.
func Int64Field(m map[string]any, key string) int64 { return asInt64(m[key]) }

func asBool(v any) bool {
	b, _ := v.(bool)
	return b
}

func asInt64(v any) int64 {
	switch n := v.(type) {
	case int64:
		return n
	case int32:
		return int64(n)
	case int:
		return int64(n)
	case float64:
		return int64(n)
	default:
		return 0
	}
}

func asInt32(v any) int32 {
	switch n := v.(type) {
	case int32:
		return n
	case int64:
		return int32(n)
	case int:
		return int32(n)
	case float64:
		return int32(n)
	default:
		return 0
	}
}

func asFloat64(v any) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case float32:
		return float64(n)
	case int64:
		return float64(n)
	case int32:
		return float64(n)
	default:
		return 0
	}
}

func asString(v any) string {
	s, _ := v.(string)
	return s
}

// asOptionalInt32 unwraps a union-typed field (either a bare value or an
// Avro union map such as {"int": 5}) and reports whether it was present.
func asOptionalInt32(v any) (int32, bool) {
	if v == nil {
		return 0, false
	}
	if m, ok := v.(map[string]any); ok {
		for _, inner := range m {
			return asInt32(inner), true
		}
		return 0, false
	}
	return asInt32(v), true
}
