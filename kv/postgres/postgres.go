// Package postgres has a kv.DB implementation that uses a PostgreSQL
// database table.
//
// The database table is expected to have the following structure:
//
//	create table <table_name>(
//	  id character varying(255) primary key,
//	  expires_at bigint null,
//	  attributes jsonb null
//	)
//
// The reserved key and expiration attributes map to the id and
// expires_at columns; the remaining (already codec-encoded) data
// attributes are stored together in the attributes column.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/jjeffery/errors"
	"github.com/lib/pq"

	"github.com/jjeffery/states/kv"
)

const (
	// DefaultTableName is used if Config.TableName is blank.
	DefaultTableName = "sessions"

	// DefaultKeyField is used if Config.KeyField is blank.
	DefaultKeyField = "key"

	// DefaultExpirationField is used if Config.ExpirationField is blank.
	DefaultExpirationField = "expiration"
)

// Config describes the table layout. Blank fields take the package
// defaults.
type Config struct {
	TableName       string
	KeyField        string
	ExpirationField string
}

// DB provides storage for session state using a PostgreSQL table.
// It implements the kv.DB interface.
type DB struct {
	db              *sql.DB
	tableName       string
	keyField        string
	expirationField string
}

var _ kv.DB = (*DB)(nil)

// New creates a new DB given a database handle.
func New(db *sql.DB, cfg Config) *DB {
	if cfg.TableName == "" {
		cfg.TableName = DefaultTableName
	}
	if cfg.KeyField == "" {
		cfg.KeyField = DefaultKeyField
	}
	if cfg.ExpirationField == "" {
		cfg.ExpirationField = DefaultExpirationField
	}
	return &DB{
		db:              db,
		tableName:       cfg.TableName,
		keyField:        cfg.KeyField,
		expirationField: cfg.ExpirationField,
	}
}

// CreateTable creates the database table.
func (db *DB) CreateTable(ctx context.Context) error {
	errors := errors.With("table", db.tableName)
	queryFmt := `create table if not exists %s(` +
		`id character varying(255) primary key,` +
		` expires_at bigint null,` +
		` attributes jsonb null)`
	query := fmt.Sprintf(queryFmt, db.tableName)
	if _, err := db.db.ExecContext(ctx, query); err != nil {
		return errors.Wrap(err, "cannot create table")
	}
	return nil
}

// DropTable deletes the database table.
func (db *DB) DropTable(ctx context.Context) error {
	errors := errors.With("table", db.tableName)
	query := fmt.Sprintf(`drop table if exists %s`, db.tableName)
	if _, err := db.db.ExecContext(ctx, query); err != nil {
		return errors.Wrap(err, "cannot drop table")
	}
	return nil
}

// PutItem implements the kv.DB interface.
func (db *DB) PutItem(ctx context.Context, item kv.Item) error {
	key, _ := item[db.keyField].(string)
	errors := errors.With("key", key, "table", db.tableName)
	if key == "" {
		return errors.New("item has no key attribute")
	}

	var expires sql.NullInt64
	if v, ok := item[db.expirationField]; ok {
		expires.Valid = true
		expires.Int64 = toInt64(v)
	}

	attributes := make(map[string]interface{}, len(item))
	for name, v := range item {
		if name == db.keyField || name == db.expirationField {
			continue
		}
		attributes[name] = v
	}
	attributesJSON, err := json.Marshal(attributes)
	if err != nil {
		return errors.Wrap(err, "cannot marshal to JSON")
	}

	tx, err := db.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "cannot begin tx")
	}
	defer tx.Rollback()

	queryFmt := `insert into %s(id, expires_at, attributes) values($1, $2, $3)` +
		` on conflict(id) do update set expires_at = $2, attributes = $3`
	query := fmt.Sprintf(queryFmt, db.tableName)
	if _, err := tx.ExecContext(ctx, query, key, expires, attributesJSON); err != nil {
		return errors.Wrap(err, "cannot upsert row")
	}
	if err := tx.Commit(); err != nil {
		return errors.Wrap(err, "cannot commit tx")
	}

	return nil
}

// GetItem implements the kv.DB interface. SQL point reads are always
// consistent, so the consistent flag is ignored.
func (db *DB) GetItem(ctx context.Context, key string, projection []string, consistent bool) (kv.Item, error) {
	errors := errors.With("key", key, "table", db.tableName)

	var expires sql.NullInt64
	var attributesJSON []byte

	query := fmt.Sprintf("select expires_at, attributes from %s where id = $1", db.tableName)
	err := db.db.QueryRowContext(ctx, query, key).Scan(&expires, &attributesJSON)
	if err == sql.ErrNoRows {
		// not found
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "cannot get row")
	}

	item := kv.Item{
		db.keyField: key,
	}
	if expires.Valid {
		item[db.expirationField] = expires.Int64
	}
	if len(attributesJSON) > 0 {
		var attributes map[string]interface{}
		if err := json.Unmarshal(attributesJSON, &attributes); err != nil {
			return nil, errors.Wrap(err, "invalid JSON in attributes")
		}
		for name, v := range attributes {
			item[name] = v
		}
	}
	return item.Project(projection), nil
}

// DeleteItem implements the kv.DB interface.
func (db *DB) DeleteItem(ctx context.Context, key string) error {
	errors := errors.With("key", key, "table", db.tableName)
	query := fmt.Sprintf("delete from %s where id = $1", db.tableName)
	if _, err := db.db.ExecContext(ctx, query, key); err != nil {
		return errors.Wrap(err, "cannot delete row")
	}
	return nil
}

// Scan implements the kv.DB interface. Only filters on the expiration
// attribute are supported, matching the expires_at column.
func (db *DB) Scan(ctx context.Context, projection []string, filter kv.Filter, each func(item kv.Item) error) error {
	errors := errors.With("table", db.tableName)
	if filter.Field != db.expirationField {
		return errors.New("unsupported scan filter field").With("field", filter.Field)
	}

	query := fmt.Sprintf("select id, expires_at from %s where expires_at < $1", db.tableName)
	rows, err := db.db.QueryContext(ctx, query, filter.Before)
	if err != nil {
		return errors.Wrap(err, "cannot scan table")
	}
	defer rows.Close()

	for rows.Next() {
		var key string
		var expires int64
		if err := rows.Scan(&key, &expires); err != nil {
			return errors.Wrap(err, "cannot scan row")
		}
		item := kv.Item{
			db.keyField:        key,
			db.expirationField: expires,
		}
		if err := each(item.Project(projection)); err != nil {
			return err
		}
	}
	if err := rows.Err(); err != nil {
		return errors.Wrap(err, "cannot scan table")
	}
	return nil
}

// BatchDelete implements the kv.DB interface.
func (db *DB) BatchDelete(ctx context.Context, keys []string) error {
	errors := errors.With("table", db.tableName)
	query := fmt.Sprintf("delete from %s where id = any($1)", db.tableName)
	if _, err := db.db.ExecContext(ctx, query, pq.Array(keys)); err != nil {
		return errors.Wrap(err, "cannot batch delete rows")
	}
	return nil
}

func toInt64(v interface{}) int64 {
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
