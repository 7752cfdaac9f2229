// Package codec encodes arbitrary session field values as flat,
// non-empty strings suitable for storage in a key-value table that
// cannot represent null values, empty strings, or nested structures.
//
// Three sentinel forms cover the values the table cannot hold natively:
//
//	__UNDEF__          a nil value
//	__EMPTY__          an empty string
//	__SERIALIZED__:…   any non-string value, serialized (JSON by default)
//
// Any other non-empty string is stored unchanged. A literal string that
// happens to equal a sentinel form is indistinguishable from its
// sentinel meaning and will decode as such. This ambiguity is accepted
// and documented rather than escaped away: escaping would break
// compatibility with rows already written by existing deployments.
package codec

import (
	"encoding/json"
	"strings"

	"github.com/jjeffery/errors"
)

const (
	undefinedSentinel = "__UNDEF__"
	emptySentinel     = "__EMPTY__"
	serializedPrefix  = "__SERIALIZED__:"
)

// defaultSerializer is used for encoding non-string values if
// Codec.Serializer is nil.
var defaultSerializer = JSONSerializer{}

// Serializer provides an interface for supplying a custom serialization
// of structured (non-string) values.
type Serializer interface {
	Serialize(v interface{}) ([]byte, error)
	Deserialize(data []byte) (interface{}, error)
}

// JSONSerializer is the default Serializer. It round-trips values with
// encoding/json semantics, so numbers decode as float64 and maps as
// map[string]interface{}.
type JSONSerializer struct{}

// Serialize implements the Serializer interface.
func (JSONSerializer) Serialize(v interface{}) ([]byte, error) {
	return json.Marshal(v)
}

// Deserialize implements the Serializer interface.
func (JSONSerializer) Deserialize(data []byte) (interface{}, error) {
	var v interface{}
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, err
	}
	return v, nil
}

// Codec encodes and decodes single field values. The zero value is
// ready to use and serializes structured values as JSON.
type Codec struct {
	Serializer Serializer
}

// Encode converts a field value into its stored string form.
func (c *Codec) Encode(v interface{}) (string, error) {
	if v == nil {
		return undefinedSentinel, nil
	}
	s, ok := v.(string)
	if !ok {
		data, err := c.serializer().Serialize(v)
		if err != nil {
			return "", errors.Wrap(err, "cannot serialize value")
		}
		return serializedPrefix + string(data), nil
	}
	if s == "" {
		return emptySentinel, nil
	}
	return s, nil
}

// Decode converts a stored string back into the field value it encodes.
// Checks are applied in the same priority order as Encode.
func (c *Codec) Decode(s string) (interface{}, error) {
	if strings.HasPrefix(s, serializedPrefix) {
		v, err := c.serializer().Deserialize([]byte(strings.TrimPrefix(s, serializedPrefix)))
		if err != nil {
			return nil, errors.Wrap(err, "cannot deserialize value")
		}
		return v, nil
	}
	if s == undefinedSentinel {
		return nil, nil
	}
	if s == emptySentinel {
		return "", nil
	}
	return s, nil
}

func (c *Codec) serializer() Serializer {
	if c.Serializer != nil {
		return c.Serializer
	}
	return defaultSerializer
}
