package testhelper

import (
	"context"
	"reflect"
	"testing"
	"time"

	"github.com/jjeffery/states/kv"
	"github.com/jjeffery/states/statestore"
)

// StateStoreTest runs a set of common lifecycle tests against a kv.DB
// implementation. The implementation must be configured with the
// default key and expiration attribute names.
func StateStoreTest(t *testing.T, newDB func() kv.DB) {
	tests := []struct {
		name string
		fn   func(t *testing.T, db kv.DB, store *statestore.Store)
	}{
		{name: "set get consistency", fn: setGetTest},
		{name: "unknown key", fn: unknownKeyTest},
		{name: "expiry enforcement", fn: expiryTest},
		{name: "overwrite semantics", fn: overwriteTest},
		{name: "remove idempotence", fn: removeTest},
		{name: "reap sweep", fn: reapTest},
		{name: "null and empty fields", fn: nullEmptyTest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db := newDB()
			tt.fn(t, db, statestore.New(db, statestore.Options{}))
		})
	}
}

func setGetTest(t *testing.T, db kv.DB, store *statestore.Store) {
	ctx := context.Background()
	fields := map[string]interface{}{
		"a": float64(1),
		"s": "plain string",
	}
	wantNoError(t, store.Set(ctx, "set-get-key", fields, 0))
	got, err := store.Get(ctx, "set-get-key")
	wantNoError(t, err)
	if want := fields; !reflect.DeepEqual(got, want) {
		t.Fatalf("got=%#v, want=%#v", got, want)
	}
}

func unknownKeyTest(t *testing.T, db kv.DB, store *statestore.Store) {
	ctx := context.Background()
	got, err := store.Get(ctx, "nonexistent")
	wantNoError(t, err)
	if got != nil {
		t.Fatalf("got=%#v, want=nil", got)
	}
}

func expiryTest(t *testing.T, db kv.DB, store *statestore.Store) {
	ctx := context.Background()
	const key = "expired-key"
	fields := map[string]interface{}{"a": float64(1)}
	wantNoError(t, store.Set(ctx, key, fields, -5*time.Second))

	got, err := store.Get(ctx, key)
	wantNoError(t, err)
	if got != nil {
		t.Fatalf("got=%#v, want=nil", got)
	}

	// lazy expiration must have deleted the row itself
	item, err := db.GetItem(ctx, key, nil, true)
	wantNoError(t, err)
	if item != nil {
		t.Fatalf("got=%#v, want=nil", item)
	}
}

func overwriteTest(t *testing.T, db kv.DB, store *statestore.Store) {
	ctx := context.Background()
	const key = "overwrite-key"
	wantNoError(t, store.Set(ctx, key, map[string]interface{}{"a": float64(1)}, 0))
	wantNoError(t, store.Set(ctx, key, map[string]interface{}{"b": float64(2)}, 0))
	got, err := store.Get(ctx, key)
	wantNoError(t, err)
	// field "a" must be gone: a set is a full overwrite, not a merge
	want := map[string]interface{}{"b": float64(2)}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got=%#v, want=%#v", got, want)
	}
}

func removeTest(t *testing.T, db kv.DB, store *statestore.Store) {
	ctx := context.Background()
	const key = "remove-key"

	// removing a key that does not exist is not an error
	wantNoError(t, store.Remove(ctx, key))

	wantNoError(t, store.Set(ctx, key, map[string]interface{}{"a": "x"}, 0))
	wantNoError(t, store.Remove(ctx, key))

	got, err := store.Get(ctx, key)
	wantNoError(t, err)
	if got != nil {
		t.Fatalf("got=%#v, want=nil", got)
	}

	// second remove should succeed, even though the record is gone
	wantNoError(t, store.Remove(ctx, key))
}

func reapTest(t *testing.T, db kv.DB, store *statestore.Store) {
	ctx := context.Background()
	fields := map[string]interface{}{"a": "x"}
	wantNoError(t, store.Set(ctx, "reap-expired-1", fields, -time.Minute))
	wantNoError(t, store.Set(ctx, "reap-expired-2", fields, -time.Minute))
	wantNoError(t, store.Set(ctx, "reap-live", fields, time.Hour))

	wantNoError(t, store.ReapExpired(ctx))

	for _, key := range []string{"reap-expired-1", "reap-expired-2"} {
		item, err := db.GetItem(ctx, key, nil, true)
		wantNoError(t, err)
		if item != nil {
			t.Fatalf("%s: got=%#v, want=nil", key, item)
		}
	}

	got, err := store.Get(ctx, "reap-live")
	wantNoError(t, err)
	if !reflect.DeepEqual(got, fields) {
		t.Fatalf("got=%#v, want=%#v", got, fields)
	}
}

func nullEmptyTest(t *testing.T, db kv.DB, store *statestore.Store) {
	ctx := context.Background()
	const key = "null-empty-key"
	fields := map[string]interface{}{
		"x": nil,
		"y": "",
	}
	wantNoError(t, store.Set(ctx, key, fields, 0))
	got, err := store.Get(ctx, key)
	wantNoError(t, err)
	if !reflect.DeepEqual(got, fields) {
		t.Fatalf("got=%#v, want=%#v", got, fields)
	}
}

func wantNoError(t *testing.T, err error) {
	t.Helper()
	if err != nil {
		t.Fatalf("got=%v, want=nil", err)
	}
}
