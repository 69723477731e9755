package persist

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Value tags used to round-trip kinds that plain JSON flattens.
const (
	tagKey     = "$type"
	tagFloat32 = "float32"
	tagFloat64 = "float64"
	tagInt     = "int"
	tagBytes   = "bytes"
	tagStrings = "strings"
	tagTime    = "time"
)

// CodecOption configures a Codec.
type CodecOption func(*Codec)

// WithMigration registers a migration from an older envelope version.
func WithMigration(from int, fn Migration) CodecOption {
	return func(c *Codec) {
		if fn == nil {
			return
		}
		if c.migrations == nil {
			c.migrations = map[int]Migration{}
		}
		c.migrations[from] = fn
	}
}

// Codec encodes and decodes versioned envelopes.
type Codec struct {
	migrations map[int]Migration
}

// NewCodec constructs a codec with the supplied migrations.
func NewCodec(opts ...CodecOption) *Codec {
	c := &Codec{}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c
}

type wireEnvelope struct {
	State      json.RawMessage `json:"state"`
	Version    int             `json:"version"`
	Timestamp  time.Time       `json:"timestamp"`
	SnapshotID string          `json:"snapshotId,omitempty"`
}

// Encode serialises the envelope. Zero Version and Timestamp fields default
// to the current codec version and wall clock.
func (c *Codec) Encode(env Envelope) ([]byte, error) {
	state, err := json.Marshal(encodeValue(env.State))
	if err != nil {
		return nil, fmt.Errorf("persist: encode state: %w", err)
	}
	wire := wireEnvelope{
		State:      state,
		Version:    env.Version,
		Timestamp:  env.Timestamp,
		SnapshotID: env.SnapshotID,
	}
	if wire.Version == 0 {
		wire.Version = Version
	}
	if wire.Timestamp.IsZero() {
		wire.Timestamp = time.Now()
	}
	return json.Marshal(wire)
}

// Decode parses payload, migrates the state to the current version and
// reconstructs tagged value kinds. Malformed payloads return ErrCorrupt;
// versions without a migration path return ErrVersion. The input is never
// partially applied anywhere.
func (c *Codec) Decode(payload []byte) (Envelope, error) {
	var wire wireEnvelope
	if err := json.Unmarshal(payload, &wire); err != nil {
		return Envelope{}, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	if len(wire.State) == 0 {
		return Envelope{}, fmt.Errorf("%w: missing state", ErrCorrupt)
	}

	dec := json.NewDecoder(bytes.NewReader(wire.State))
	dec.UseNumber()
	var raw any
	if err := dec.Decode(&raw); err != nil {
		return Envelope{}, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	decoded, err := decodeValue(raw)
	if err != nil {
		return Envelope{}, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	state, ok := decoded.(map[string]any)
	if !ok {
		return Envelope{}, fmt.Errorf("%w: state is not a mapping", ErrCorrupt)
	}

	version := wire.Version
	if version > Version {
		return Envelope{}, fmt.Errorf("%w: %d", ErrVersion, version)
	}
	for version < Version {
		migrate := c.migrations[version]
		if migrate == nil {
			return Envelope{}, fmt.Errorf("%w: no migration from %d", ErrVersion, version)
		}
		state, err = migrate(state)
		if err != nil {
			return Envelope{}, fmt.Errorf("persist: migrate from %d: %w", version, err)
		}
		version++
	}

	return Envelope{
		State:      state,
		Version:    Version,
		Timestamp:  wire.Timestamp,
		SnapshotID: wire.SnapshotID,
	}, nil
}

// encodeValue maps Go value kinds onto their JSON wire form, tagging the
// kinds that a plain decode would flatten into generic arrays or strings.
func encodeValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		encoded := make(map[string]any, len(val))
		for key, item := range val {
			encoded[key] = encodeValue(item)
		}
		return encoded
	case []any:
		encoded := make([]any, len(val))
		for i, item := range val {
			encoded[i] = encodeValue(item)
		}
		return encoded
	case []float32:
		data := make([]float64, len(val))
		for i, n := range val {
			data[i] = float64(n)
		}
		return map[string]any{tagKey: tagFloat32, "data": data}
	case []float64:
		return map[string]any{tagKey: tagFloat64, "data": append([]float64(nil), val...)}
	case []int:
		return map[string]any{tagKey: tagInt, "data": append([]int(nil), val...)}
	case []byte:
		return map[string]any{tagKey: tagBytes, "data": base64.StdEncoding.EncodeToString(val)}
	case []string:
		return map[string]any{tagKey: tagStrings, "data": append([]string(nil), val...)}
	case time.Time:
		return map[string]any{tagKey: tagTime, "value": val.Format(time.RFC3339Nano)}
	default:
		return v
	}
}

func decodeValue(raw any) (any, error) {
	switch val := raw.(type) {
	case map[string]any:
		if tag, ok := val[tagKey].(string); ok {
			return decodeTagged(tag, val)
		}
		decoded := make(map[string]any, len(val))
		for key, item := range val {
			inner, err := decodeValue(item)
			if err != nil {
				return nil, err
			}
			decoded[key] = inner
		}
		return decoded, nil
	case []any:
		decoded := make([]any, len(val))
		for i, item := range val {
			inner, err := decodeValue(item)
			if err != nil {
				return nil, err
			}
			decoded[i] = inner
		}
		return decoded, nil
	case json.Number:
		return decodeNumber(val)
	default:
		return raw, nil
	}
}

func decodeTagged(tag string, val map[string]any) (any, error) {
	switch tag {
	case tagFloat32:
		numbers, err := numberSlice(val["data"])
		if err != nil {
			return nil, fmt.Errorf("%s buffer: %w", tag, err)
		}
		buffer := make([]float32, len(numbers))
		for i, n := range numbers {
			buffer[i] = float32(n)
		}
		return buffer, nil
	case tagFloat64:
		return numberSlice(val["data"])
	case tagInt:
		numbers, err := numberSlice(val["data"])
		if err != nil {
			return nil, fmt.Errorf("%s buffer: %w", tag, err)
		}
		buffer := make([]int, len(numbers))
		for i, n := range numbers {
			buffer[i] = int(n)
		}
		return buffer, nil
	case tagBytes:
		encoded, ok := val["data"].(string)
		if !ok {
			return nil, fmt.Errorf("bytes buffer: data is not a string")
		}
		return base64.StdEncoding.DecodeString(encoded)
	case tagStrings:
		items, ok := val["data"].([]any)
		if !ok {
			return nil, fmt.Errorf("string sequence: data is not an array")
		}
		buffer := make([]string, len(items))
		for i, item := range items {
			s, ok := item.(string)
			if !ok {
				return nil, fmt.Errorf("string sequence: element %d is %T", i, item)
			}
			buffer[i] = s
		}
		return buffer, nil
	case tagTime:
		encoded, ok := val["value"].(string)
		if !ok {
			return nil, fmt.Errorf("timestamp: value is not a string")
		}
		return time.Parse(time.RFC3339Nano, encoded)
	default:
		return nil, fmt.Errorf("unknown value tag %q", tag)
	}
}

func numberSlice(raw any) ([]float64, error) {
	items, ok := raw.([]any)
	if !ok {
		return nil, fmt.Errorf("data is not an array")
	}
	numbers := make([]float64, len(items))
	for i, item := range items {
		n, ok := item.(json.Number)
		if !ok {
			return nil, fmt.Errorf("element %d is %T", i, item)
		}
		f, err := n.Float64()
		if err != nil {
			return nil, err
		}
		numbers[i] = f
	}
	return numbers, nil
}

// decodeNumber keeps integral JSON numbers as int and everything else as
// float64, so defaults that use int fields survive a round trip.
func decodeNumber(n json.Number) (any, error) {
	s := n.String()
	if !strings.ContainsAny(s, ".eE") {
		if i, err := n.Int64(); err == nil {
			return int(i), nil
		}
	}
	return n.Float64()
}
