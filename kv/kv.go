// Package kv defines the narrow contract that the session state store
// requires of a remote key-value table: point write, point read, point
// delete, filtered scan and bulk delete. Implementations are in the
// dynamodb, postgres and memory sub-packages.
package kv

import "context"

// Item is one flat table row: attribute name to scalar value. Values
// are strings, except for numeric attributes (such as an expiration
// timestamp) which may be any integer or float type depending on the
// backend's unmarshalling.
type Item map[string]interface{}

// Clone returns a shallow copy of the item. Cloning a nil item
// returns nil.
func (item Item) Clone() Item {
	if item == nil {
		return nil
	}
	cpy := make(Item, len(item))
	for k, v := range item {
		cpy[k] = v
	}
	return cpy
}

// Project returns a copy of the item restricted to the named
// attributes. A nil or empty projection returns the item unchanged.
func (item Item) Project(projection []string) Item {
	if len(projection) == 0 {
		return item
	}
	projected := make(Item, len(projection))
	for _, name := range projection {
		if v, ok := item[name]; ok {
			projected[name] = v
		}
	}
	return projected
}

// Filter is a scan predicate: rows match when the named attribute is
// present and its numeric value is less than Before.
type Filter struct {
	Field  string
	Before int64
}

// DB is the interface used by the state store for persisting session
// records to a remote key-value table. Implementations are constructed
// with the table name and reserved attribute names, and must be safe
// for concurrent use by multiple goroutines.
type DB interface {
	// PutItem writes the item, unconditionally replacing any existing
	// row with the same key.
	PutItem(ctx context.Context, item Item) error

	// GetItem returns the row with the given key, or nil if no row
	// exists. A non-empty projection restricts the attributes returned.
	// When consistent is true the read reflects the most recent
	// successful write.
	GetItem(ctx context.Context, key string, projection []string, consistent bool) (Item, error)

	// DeleteItem removes the row with the given key. It is not an error
	// if the row does not exist.
	DeleteItem(ctx context.Context, key string) error

	// Scan calls each once for every row matching the filter,
	// projecting only the named attributes. Scanning stops at the first
	// error returned by each.
	Scan(ctx context.Context, projection []string, filter Filter, each func(item Item) error) error

	// BatchDelete removes every row named in keys.
	BatchDelete(ctx context.Context, keys []string) error
}
