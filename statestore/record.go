package statestore

import (
	"github.com/jjeffery/errors"

	"github.com/jjeffery/states/kv"
)

// Record is one persisted session state record.
type Record struct {
	Key     string                 // unique, non-empty record key
	Expires int64                  // epoch seconds; zero means never expires
	Fields  map[string]interface{} // session data payload
}

// toItem assembles the flat table row for a record: the key attribute,
// the expiration attribute (omitted when the record never expires), and
// one encoded attribute per data field.
func (s *Store) toItem(rec *Record) (kv.Item, error) {
	item := make(kv.Item, len(rec.Fields)+2)
	item[s.keyField] = rec.Key
	if rec.Expires > 0 {
		item[s.expirationField] = rec.Expires
	}
	for name, value := range rec.Fields {
		if name == s.keyField || name == s.expirationField {
			return nil, errors.New("field name collides with reserved attribute").
				With("field", name, "key", rec.Key)
		}
		encoded, err := s.codec.Encode(value)
		if err != nil {
			return nil, errors.With("field", name, "key", rec.Key).
				Wrap(err, "cannot encode field")
		}
		item[name] = encoded
	}
	return item, nil
}

// fromItem disassembles a table row into a record, removing the
// reserved attributes and decoding every data field. The caller owns
// the expiry decision.
func (s *Store) fromItem(item kv.Item) (*Record, error) {
	key, _ := item[s.keyField].(string)
	rec := &Record{
		Key:    key,
		Fields: make(map[string]interface{}, len(item)),
	}
	if v, ok := item[s.expirationField]; ok {
		rec.Expires = toUnix(v)
	}
	for name, value := range item {
		if name == s.keyField || name == s.expirationField {
			continue
		}
		encoded, ok := value.(string)
		if !ok {
			return nil, errors.New("non-string data attribute").
				With("field", name, "key", key)
		}
		decoded, err := s.codec.Decode(encoded)
		if err != nil {
			return nil, errors.With("field", name, "key", key).
				Wrap(err, "cannot decode field")
		}
		rec.Fields[name] = decoded
	}
	return rec, nil
}

// toUnix coerces an expiration attribute to epoch seconds. Backends
// unmarshal numbers differently: dynamodb yields float64, postgres and
// memory yield int64.
func toUnix(v interface{}) int64 {
	switch n := v.(type) {
	case int64:
		return n
	case int:
		return int64(n)
	case float64:
		return int64(n)
	}
	return 0
}
