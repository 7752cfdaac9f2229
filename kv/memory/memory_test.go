package memory

import (
	"context"
	"reflect"
	"testing"

	"github.com/jjeffery/states/internal/testhelper"
	"github.com/jjeffery/states/kv"
)

func TestMemoryDB(t *testing.T) {
	newDB := func() kv.DB {
		return New(Config{})
	}
	testhelper.StateStoreTest(t, newDB)
}

func TestScanFilter(t *testing.T) {
	ctx := context.Background()
	db := New(Config{})

	items := []kv.Item{
		{"key": "a", "expiration": int64(100)},
		{"key": "b", "expiration": int64(200)},
		{"key": "c"},
	}
	for _, item := range items {
		if err := db.PutItem(ctx, item); err != nil {
			t.Fatalf("got=%v, want=nil", err)
		}
	}

	var keys []string
	filter := kv.Filter{Field: "expiration", Before: 150}
	err := db.Scan(ctx, []string{"key"}, filter, func(item kv.Item) error {
		keys = append(keys, item["key"].(string))
		// projection must have removed the filter attribute
		if _, ok := item["expiration"]; ok {
			t.Errorf("got=%#v, want key only", item)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("got=%v, want=nil", err)
	}
	if want := []string{"a"}; !reflect.DeepEqual(keys, want) {
		t.Fatalf("got=%v, want=%v", keys, want)
	}
}

func TestGetItemIsolation(t *testing.T) {
	ctx := context.Background()
	db := New(Config{})

	if err := db.PutItem(ctx, kv.Item{"key": "a", "v": "1"}); err != nil {
		t.Fatalf("got=%v, want=nil", err)
	}
	item, err := db.GetItem(ctx, "a", nil, true)
	if err != nil {
		t.Fatalf("got=%v, want=nil", err)
	}
	item["v"] = "mutated"

	item, err = db.GetItem(ctx, "a", nil, true)
	if err != nil {
		t.Fatalf("got=%v, want=nil", err)
	}
	if got, want := item["v"], "1"; got != want {
		t.Fatalf("got=%v, want=%v", got, want)
	}
}
