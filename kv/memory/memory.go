// Package memory has a memory-backed kv.DB implementation for testing
// purposes. It performs no expiry of its own: deciding when a row is
// expired is the state store's job, not the table's.
package memory

import (
	"context"
	"sync"

	"github.com/jjeffery/states/kv"
)

// DefaultKeyField is used if Config.KeyField is blank.
const DefaultKeyField = "key"

// Config describes the table layout.
type Config struct {
	KeyField string
}

// DB implements the kv.DB interface using a map. It is intended for
// testing.
type DB struct {
	keyField string

	mutex sync.RWMutex
	m     map[string]kv.Item
}

var _ kv.DB = (*DB)(nil)

// New creates a new memory-backed DB.
func New(cfg Config) *DB {
	if cfg.KeyField == "" {
		cfg.KeyField = DefaultKeyField
	}
	return &DB{
		keyField: cfg.KeyField,
	}
}

// PutItem implements the kv.DB interface.
func (db *DB) PutItem(ctx context.Context, item kv.Item) error {
	key, _ := item[db.keyField].(string)
	db.mutex.Lock()
	defer db.mutex.Unlock()
	if db.m == nil {
		db.m = make(map[string]kv.Item)
	}
	db.m[key] = item.Clone()
	return nil
}

// GetItem implements the kv.DB interface.
func (db *DB) GetItem(ctx context.Context, key string, projection []string, consistent bool) (kv.Item, error) {
	db.mutex.RLock()
	item := db.m[key].Clone()
	db.mutex.RUnlock()
	if item == nil {
		return nil, nil
	}
	return item.Project(projection), nil
}

// DeleteItem implements the kv.DB interface.
func (db *DB) DeleteItem(ctx context.Context, key string) error {
	db.mutex.Lock()
	delete(db.m, key)
	db.mutex.Unlock()
	return nil
}

// Scan implements the kv.DB interface.
func (db *DB) Scan(ctx context.Context, projection []string, filter kv.Filter, each func(item kv.Item) error) error {
	db.mutex.RLock()
	items := make([]kv.Item, 0, len(db.m))
	for _, item := range db.m {
		if matches(item, filter) {
			items = append(items, item.Clone().Project(projection))
		}
	}
	db.mutex.RUnlock()

	for _, item := range items {
		if err := each(item); err != nil {
			return err
		}
	}
	return nil
}

// BatchDelete implements the kv.DB interface.
func (db *DB) BatchDelete(ctx context.Context, keys []string) error {
	db.mutex.Lock()
	for _, key := range keys {
		delete(db.m, key)
	}
	db.mutex.Unlock()
	return nil
}

func matches(item kv.Item, filter kv.Filter) bool {
	v, ok := item[filter.Field]
	if !ok {
		return false
	}
	switch n := v.(type) {
	case int64:
		return n < filter.Before
	case int:
		return int64(n) < filter.Before
	case float64:
		return int64(n) < filter.Before
	}
	return false
}
