package statestore

import (
	"context"
	"reflect"
	"testing"
	"time"

	"github.com/jjeffery/errors"

	"github.com/jjeffery/states/kv"
	"github.com/jjeffery/states/kv/memory"
)

func TestLazyExpiration(t *testing.T) {
	ctx := context.Background()
	now := time.Now()
	nowFunc = func() time.Time { return now }
	defer func() { nowFunc = time.Now }()

	db := memory.New(memory.Config{})
	store := New(db, Options{})

	fields := map[string]interface{}{"a": "x"}
	if err := store.Set(ctx, "id1", fields, 10*time.Second); err != nil {
		t.Fatalf("got=%v, want=nil", err)
	}

	got, err := store.Get(ctx, "id1")
	if err != nil {
		t.Fatalf("got=%v, want=nil", err)
	}
	if !reflect.DeepEqual(got, fields) {
		t.Fatalf("got=%#v, want=%#v", got, fields)
	}

	now = now.Add(11 * time.Second)

	got, err = store.Get(ctx, "id1")
	if err != nil {
		t.Fatalf("got=%v, want=nil", err)
	}
	if got != nil {
		t.Fatalf("got=%#v, want=nil", got)
	}

	// the expired row must have been deleted, not just suppressed
	item, err := db.GetItem(ctx, "id1", nil, true)
	if err != nil {
		t.Fatalf("got=%v, want=nil", err)
	}
	if item != nil {
		t.Fatalf("got=%#v, want=nil", item)
	}
}

func TestReapExpired(t *testing.T) {
	ctx := context.Background()
	now := time.Now()
	nowFunc = func() time.Time { return now }
	defer func() { nowFunc = time.Now }()

	db := memory.New(memory.Config{})
	store := New(db, Options{})

	fields := map[string]interface{}{"a": "x"}
	for key, expiresIn := range map[string]time.Duration{
		"stale-1": 10 * time.Second,
		"stale-2": 20 * time.Second,
		"fresh":   time.Hour,
		"forever": 0,
	} {
		if err := store.Set(ctx, key, fields, expiresIn); err != nil {
			t.Fatalf("%s: got=%v, want=nil", key, err)
		}
	}

	now = now.Add(30 * time.Second)

	if err := store.ReapExpired(ctx); err != nil {
		t.Fatalf("got=%v, want=nil", err)
	}

	for key, want := range map[string]bool{
		"stale-1": false,
		"stale-2": false,
		"fresh":   true,
		"forever": true,
	} {
		item, err := db.GetItem(ctx, key, nil, true)
		if err != nil {
			t.Fatalf("%s: got=%v, want=nil", key, err)
		}
		if got := item != nil; got != want {
			t.Errorf("%s: present=%v, want=%v", key, got, want)
		}
	}
}

func TestReapExpiredEmpty(t *testing.T) {
	ctx := context.Background()
	store := New(memory.New(memory.Config{}), Options{})
	if err := store.ReapExpired(ctx); err != nil {
		t.Fatalf("got=%v, want=nil", err)
	}
}

// faultyDB wraps a kv.DB and fails selected operations, recording
// whether the bulk delete was ever attempted.
type faultyDB struct {
	kv.DB
	putErr      error
	getErr      error
	deleteErr   error
	scanErr     error
	batchErr    error
	batchCalled bool
}

func (db *faultyDB) PutItem(ctx context.Context, item kv.Item) error {
	if db.putErr != nil {
		return db.putErr
	}
	return db.DB.PutItem(ctx, item)
}

func (db *faultyDB) GetItem(ctx context.Context, key string, projection []string, consistent bool) (kv.Item, error) {
	if db.getErr != nil {
		return nil, db.getErr
	}
	return db.DB.GetItem(ctx, key, projection, consistent)
}

func (db *faultyDB) DeleteItem(ctx context.Context, key string) error {
	if db.deleteErr != nil {
		return db.deleteErr
	}
	return db.DB.DeleteItem(ctx, key)
}

func (db *faultyDB) Scan(ctx context.Context, projection []string, filter kv.Filter, each func(item kv.Item) error) error {
	if db.scanErr != nil {
		return db.scanErr
	}
	return db.DB.Scan(ctx, projection, filter, each)
}

func (db *faultyDB) BatchDelete(ctx context.Context, keys []string) error {
	db.batchCalled = true
	if db.batchErr != nil {
		return db.batchErr
	}
	return db.DB.BatchDelete(ctx, keys)
}

func TestOperationErrors(t *testing.T) {
	ctx := context.Background()
	errStub := errors.New("stub failure")
	fields := map[string]interface{}{"a": "x"}

	// every transport error is fatal to the operation that hit it
	db := &faultyDB{DB: memory.New(memory.Config{}), putErr: errStub}
	store := New(db, Options{})
	if got, want := store.Set(ctx, "id1", fields, 0), errStub; got != want {
		t.Errorf("Set: got=%v, want=%v", got, want)
	}

	db = &faultyDB{DB: memory.New(memory.Config{}), getErr: errStub}
	store = New(db, Options{})
	if _, got := store.Get(ctx, "id1"); got != errStub {
		t.Errorf("Get: got=%v, want=%v", got, errStub)
	}

	db = &faultyDB{DB: memory.New(memory.Config{}), deleteErr: errStub}
	store = New(db, Options{})
	if got, want := store.Remove(ctx, "id1"), errStub; got != want {
		t.Errorf("Remove: got=%v, want=%v", got, want)
	}
}

func TestReapExpiredScanError(t *testing.T) {
	ctx := context.Background()
	db := &faultyDB{DB: memory.New(memory.Config{}), scanErr: errors.New("stub failure")}
	store := New(db, Options{})

	if err := store.Set(ctx, "stale", map[string]interface{}{"a": "x"}, -time.Minute); err != nil {
		t.Fatalf("got=%v, want=nil", err)
	}

	if err := store.ReapExpired(ctx); err == nil {
		t.Fatal("got=nil, want error")
	}
	// a failed scan aborts the sweep before any delete is issued
	if db.batchCalled {
		t.Fatal("batch delete was attempted after scan failure")
	}
	item, err := db.GetItem(ctx, "stale", nil, true)
	if err != nil {
		t.Fatalf("got=%v, want=nil", err)
	}
	if item == nil {
		t.Fatal("got=nil, want row intact")
	}
}

func TestReapExpiredDeleteError(t *testing.T) {
	ctx := context.Background()
	db := &faultyDB{DB: memory.New(memory.Config{}), batchErr: errors.New("stub failure")}
	store := New(db, Options{})

	if err := store.Set(ctx, "stale", map[string]interface{}{"a": "x"}, -time.Minute); err != nil {
		t.Fatalf("got=%v, want=nil", err)
	}

	if err := store.ReapExpired(ctx); err == nil {
		t.Fatal("got=nil, want error")
	}
	// a failed bulk delete leaves the matched rows in place
	item, err := db.GetItem(ctx, "stale", nil, true)
	if err != nil {
		t.Fatalf("got=%v, want=nil", err)
	}
	if item == nil {
		t.Fatal("got=nil, want row intact")
	}
}

// recordingDB wraps a kv.DB and records the consistent flag of the
// most recent point read.
type recordingDB struct {
	kv.DB
	consistent bool
}

func (db *recordingDB) GetItem(ctx context.Context, key string, projection []string, consistent bool) (kv.Item, error) {
	db.consistent = consistent
	return db.DB.GetItem(ctx, key, projection, consistent)
}

func TestConsistentReads(t *testing.T) {
	ctx := context.Background()
	tests := []struct {
		options Options
		want    bool
	}{
		{options: Options{}, want: true},
		{options: Options{EventuallyConsistent: true}, want: false},
	}
	for tn, tt := range tests {
		db := &recordingDB{DB: memory.New(memory.Config{})}
		store := New(db, tt.options)
		if _, err := store.Get(ctx, "id1"); err != nil {
			t.Fatalf("%d: got=%v, want=nil", tn, err)
		}
		if got := db.consistent; got != tt.want {
			t.Errorf("%d: got=%v, want=%v", tn, got, tt.want)
		}
	}
}
