package statestore

import (
	"reflect"
	"testing"

	"github.com/jjeffery/states/kv"
	"github.com/jjeffery/states/kv/memory"
)

func TestToItem(t *testing.T) {
	store := New(memory.New(memory.Config{}), Options{})

	rec := &Record{
		Key:     "id1",
		Expires: 1500000000,
		Fields: map[string]interface{}{
			"plain":  "hello",
			"number": 42,
			"empty":  "",
			"null":   nil,
		},
	}
	item, err := store.toItem(rec)
	if err != nil {
		t.Fatalf("got=%v, want=nil", err)
	}
	want := kv.Item{
		"key":        "id1",
		"expiration": int64(1500000000),
		"plain":      "hello",
		"number":     "__SERIALIZED__:42",
		"empty":      "__EMPTY__",
		"null":       "__UNDEF__",
	}
	if !reflect.DeepEqual(item, want) {
		t.Fatalf("got=%#v, want=%#v", item, want)
	}
}

func TestToItemNoExpiry(t *testing.T) {
	store := New(memory.New(memory.Config{}), Options{})

	item, err := store.toItem(&Record{Key: "id1", Fields: nil})
	if err != nil {
		t.Fatalf("got=%v, want=nil", err)
	}
	if _, ok := item["expiration"]; ok {
		// records that never expire must not carry the attribute
		t.Fatalf("got=%#v, want no expiration attribute", item)
	}
}

func TestToItemReservedCollision(t *testing.T) {
	store := New(memory.New(memory.Config{}), Options{})

	for _, field := range []string{"key", "expiration"} {
		rec := &Record{
			Key:    "id1",
			Fields: map[string]interface{}{field: "x"},
		}
		if _, err := store.toItem(rec); err == nil {
			t.Errorf("%s: got=nil, want error", field)
		}
	}
}

func TestFromItem(t *testing.T) {
	store := New(memory.New(memory.Config{}), Options{})

	// expiration arrives as float64 from backends that unmarshal
	// numbers via JSON
	item := kv.Item{
		"key":        "id1",
		"expiration": float64(1500000000),
		"plain":      "hello",
		"number":     "__SERIALIZED__:42",
		"empty":      "__EMPTY__",
		"null":       "__UNDEF__",
	}
	rec, err := store.fromItem(item)
	if err != nil {
		t.Fatalf("got=%v, want=nil", err)
	}
	if got, want := rec.Key, "id1"; got != want {
		t.Errorf("got=%v, want=%v", got, want)
	}
	if got, want := rec.Expires, int64(1500000000); got != want {
		t.Errorf("got=%v, want=%v", got, want)
	}
	wantFields := map[string]interface{}{
		"plain":  "hello",
		"number": float64(42),
		"empty":  "",
		"null":   nil,
	}
	if !reflect.DeepEqual(rec.Fields, wantFields) {
		t.Fatalf("got=%#v, want=%#v", rec.Fields, wantFields)
	}
}

func TestFromItemNonString(t *testing.T) {
	store := New(memory.New(memory.Config{}), Options{})

	item := kv.Item{
		"key":    "id1",
		"broken": 42,
	}
	if _, err := store.fromItem(item); err == nil {
		t.Fatal("got=nil, want error")
	}
}
