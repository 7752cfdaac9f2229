package statestore

import (
	"context"
	"time"

	"github.com/jjeffery/errors"

	"github.com/jjeffery/states/codec"
	"github.com/jjeffery/states/kv"
)

const (
	// DefaultKeyField is used if Options.KeyField is blank.
	DefaultKeyField = "key"

	// DefaultExpirationField is used if Options.ExpirationField is blank.
	DefaultExpirationField = "expiration"
)

// nowFunc returns the current time, and can be replaced during testing
var nowFunc = time.Now

// Options configure a Store. The zero value gives the default attribute
// names, strongly consistent reads and JSON serialization of structured
// field values.
type Options struct {
	// KeyField is the reserved attribute name holding the record key.
	KeyField string

	// ExpirationField is the reserved attribute name holding the
	// epoch-seconds expiration deadline.
	ExpirationField string

	// EventuallyConsistent requests eventually consistent point reads
	// instead of the default strongly consistent reads.
	EventuallyConsistent bool

	// Serializer encodes structured field values. Nil means JSON.
	Serializer codec.Serializer
}

// Store reads and writes session state records through a kv.DB. Every
// operation is a fresh round trip to the table: the store keeps no
// per-session state in process and is safe for concurrent use provided
// the kv.DB is.
type Store struct {
	db              kv.DB
	keyField        string
	expirationField string
	consistentRead  bool
	codec           codec.Codec
}

// New creates a Store persisting through db. The reserved attribute
// names in opts must match the names the db was configured with.
func New(db kv.DB, opts Options) *Store {
	if opts.KeyField == "" {
		opts.KeyField = DefaultKeyField
	}
	if opts.ExpirationField == "" {
		opts.ExpirationField = DefaultExpirationField
	}
	return &Store{
		db:              db,
		keyField:        opts.KeyField,
		expirationField: opts.ExpirationField,
		consistentRead:  !opts.EventuallyConsistent,
		codec:           codec.Codec{Serializer: opts.Serializer},
	}
}

// Set writes the record for key, completely replacing any existing
// record. A non-zero expiresIn sets the expiration deadline relative to
// the current time; zero stores a record that never expires. A field
// name that collides with a reserved attribute name is an error.
func (s *Store) Set(ctx context.Context, key string, fields map[string]interface{}, expiresIn time.Duration) error {
	rec := &Record{
		Key:    key,
		Fields: fields,
	}
	if expiresIn != 0 {
		rec.Expires = nowFunc().Add(expiresIn).Unix()
	}
	item, err := s.toItem(rec)
	if err != nil {
		return err
	}
	return s.db.PutItem(ctx, item)
}

// Get returns the data fields of the record for key, or nil if there is
// no record. A record whose expiration deadline has passed is deleted
// before Get returns nil: expired data is never returned to the caller.
func (s *Store) Get(ctx context.Context, key string) (map[string]interface{}, error) {
	item, err := s.db.GetItem(ctx, key, nil, s.consistentRead)
	if err != nil {
		return nil, err
	}
	if item == nil {
		// no session
		return nil, nil
	}
	rec, err := s.fromItem(item)
	if err != nil {
		return nil, err
	}
	if rec.Expires > 0 && rec.Expires < nowFunc().Unix() {
		// lazy expiration: delete on first read access
		if err := s.Remove(ctx, key); err != nil {
			return nil, err
		}
		return nil, nil
	}
	return rec.Fields, nil
}

// Remove deletes the record for key. Removing an absent key is not an
// error.
func (s *Store) Remove(ctx context.Context, key string) error {
	return s.db.DeleteItem(ctx, key)
}

// ReapExpired deletes every record whose expiration deadline has
// passed. It scans the whole table for expired keys, then issues one
// bulk delete; an empty sweep is a successful no-op. An error in either
// phase aborts the sweep with no partial-progress tracking.
//
// A record renewed by a concurrent Set after the scan observed it but
// before the delete executes is deleted anyway. Closing that race would
// require per-key conditional deletes; the bulk protocol is kept
// deliberately.
func (s *Store) ReapExpired(ctx context.Context) error {
	filter := kv.Filter{
		Field:  s.expirationField,
		Before: nowFunc().Unix(),
	}
	var keys []string
	err := s.db.Scan(ctx, []string{s.keyField}, filter, func(item kv.Item) error {
		if key, ok := item[s.keyField].(string); ok && key != "" {
			keys = append(keys, key)
		}
		return nil
	})
	if err != nil {
		return errors.Wrap(err, "cannot scan for expired records")
	}
	if len(keys) == 0 {
		return nil
	}
	if err := s.db.BatchDelete(ctx, keys); err != nil {
		return errors.With("count", len(keys)).Wrap(err, "cannot delete expired records")
	}
	return nil
}
