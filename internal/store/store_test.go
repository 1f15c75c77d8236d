package store

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
)

// testStorePath returns a temporary path for test databases
func testStorePath(t *testing.T) string {
	tmpDir := t.TempDir()
	return filepath.Join(tmpDir, "test.db")
}

// openTestStore opens a store with a minimal one-partition schema
func openTestStore(t *testing.T) *Store {
	t.Helper()
	st, err := Open(testStorePath(t), 1, func(tx *Tx, oldVersion, newVersion int) error {
		if err := tx.CreatePartition(Partition{Name: "garments"}); err != nil {
			return err
		}
		return tx.CreatePartition(Partition{
			Name:          "events",
			AutoIncrement: true,
			Indexes: []IndexSpec{
				{Name: "by-kind", Fields: []string{"kind"}},
			},
		})
	})
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	return st
}

// TestOpen_Success tests store creation and schema setup
func TestOpen_Success(t *testing.T) {
	path := testStorePath(t)
	st, err := Open(path, 1, func(tx *Tx, oldVersion, newVersion int) error {
		if oldVersion != 0 {
			t.Errorf("oldVersion = %d, want 0", oldVersion)
		}
		if newVersion != 1 {
			t.Errorf("newVersion = %d, want 1", newVersion)
		}
		return tx.CreatePartition(Partition{Name: "garments"})
	})
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	defer st.Close()

	if st.Version() != 1 {
		t.Errorf("Version() = %d, want 1", st.Version())
	}
	if _, ok := st.partitions["garments"]; !ok {
		t.Error("partition 'garments' not registered")
	}
}

// TestOpen_UpgradeRuns tests that reopening at a higher version runs only the
// missing upgrade steps and preserves existing data
func TestOpen_UpgradeRuns(t *testing.T) {
	ctx := context.Background()
	path := testStorePath(t)

	st, err := Open(path, 1, func(tx *Tx, oldVersion, newVersion int) error {
		return tx.CreatePartition(Partition{Name: "garments"})
	})
	if err != nil {
		t.Fatalf("Open() v1 failed: %v", err)
	}
	if err := st.Put(ctx, "garments", "g1", map[string]string{"name": "blazer"}); err != nil {
		t.Fatalf("Put() failed: %v", err)
	}
	if err := st.Close(); err != nil {
		t.Fatalf("Close() failed: %v", err)
	}

	st, err = Open(path, 2, func(tx *Tx, oldVersion, newVersion int) error {
		if oldVersion != 1 {
			t.Errorf("oldVersion = %d, want 1", oldVersion)
		}
		return tx.CreatePartition(Partition{
			Name:          "pending",
			AutoIncrement: true,
			Indexes:       []IndexSpec{{Name: "by-synced", Fields: []string{"synced"}}},
		})
	})
	if err != nil {
		t.Fatalf("Open() v2 failed: %v", err)
	}
	defer st.Close()

	// v1 data survives the upgrade
	raw, err := st.Get(ctx, "garments", "g1")
	if err != nil {
		t.Fatalf("Get() failed: %v", err)
	}
	if raw == nil {
		t.Fatal("v1 entry lost across upgrade")
	}

	// New partition and index exist
	var count int
	err = st.conn.QueryRow(
		`SELECT COUNT(*) FROM sqlite_master WHERE type='index' AND name='idx_p_pending_by_synced'`,
	).Scan(&count)
	if err != nil {
		t.Fatalf("Failed to query index: %v", err)
	}
	if count != 1 {
		t.Error("index idx_p_pending_by_synced does not exist")
	}
}

// TestOpen_NoDowngrade tests that opening at a lower version fails
func TestOpen_NoDowngrade(t *testing.T) {
	path := testStorePath(t)

	st, err := Open(path, 3, func(tx *Tx, oldVersion, newVersion int) error {
		return nil
	})
	if err != nil {
		t.Fatalf("Open() v3 failed: %v", err)
	}
	st.Close()

	_, err = Open(path, 2, func(tx *Tx, oldVersion, newVersion int) error {
		return nil
	})
	if err == nil {
		t.Fatal("Open() at lower version should fail")
	}
}

// TestOpen_UpgradeFailureRollsBack tests that a failed upgrade leaves the
// version untouched
func TestOpen_UpgradeFailureRollsBack(t *testing.T) {
	path := testStorePath(t)

	_, err := Open(path, 1, func(tx *Tx, oldVersion, newVersion int) error {
		return fmt.Errorf("boom")
	})
	if err == nil {
		t.Fatal("Open() should propagate upgrade failure")
	}

	// A later open sees version 0 and retries the upgrade
	ran := false
	st, err := Open(path, 1, func(tx *Tx, oldVersion, newVersion int) error {
		ran = true
		if oldVersion != 0 {
			t.Errorf("oldVersion = %d, want 0 after rollback", oldVersion)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Open() retry failed: %v", err)
	}
	defer st.Close()
	if !ran {
		t.Error("upgrade did not re-run after rollback")
	}
}

// TestPutGet_RoundTrip tests basic keyed storage
func TestPutGet_RoundTrip(t *testing.T) {
	ctx := context.Background()
	st := openTestStore(t)

	type garment struct {
		Name  string  `json:"name"`
		Price float64 `json:"price"`
	}

	if err := st.Put(ctx, "garments", "g1", garment{Name: "kurta", Price: 49.5}); err != nil {
		t.Fatalf("Put() failed: %v", err)
	}

	raw, err := st.Get(ctx, "garments", "g1")
	if err != nil {
		t.Fatalf("Get() failed: %v", err)
	}
	var got garment
	if err := json.Unmarshal(raw, &got); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}
	if got.Name != "kurta" || got.Price != 49.5 {
		t.Errorf("got %+v, want {kurta 49.5}", got)
	}
}

// TestGet_Missing tests that a missing key returns nil without error
func TestGet_Missing(t *testing.T) {
	ctx := context.Background()
	st := openTestStore(t)

	raw, err := st.Get(ctx, "garments", "nope")
	if err != nil {
		t.Fatalf("Get() failed: %v", err)
	}
	if raw != nil {
		t.Errorf("Get() = %s, want nil", raw)
	}
}

// TestPut_Overwrite tests upsert semantics for duplicate keys
func TestPut_Overwrite(t *testing.T) {
	ctx := context.Background()
	st := openTestStore(t)

	if err := st.Put(ctx, "garments", "g1", map[string]int{"v": 1}); err != nil {
		t.Fatalf("Put() failed: %v", err)
	}
	if err := st.Put(ctx, "garments", "g1", map[string]int{"v": 2}); err != nil {
		t.Fatalf("Put() overwrite failed: %v", err)
	}

	n, err := st.Count(ctx, "garments")
	if err != nil {
		t.Fatalf("Count() failed: %v", err)
	}
	if n != 1 {
		t.Errorf("Count() = %d, want 1", n)
	}

	raw, _ := st.Get(ctx, "garments", "g1")
	var got map[string]int
	if err := json.Unmarshal(raw, &got); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}
	if got["v"] != 2 {
		t.Errorf("v = %d, want 2", got["v"])
	}
}

// TestAppend_AssignsIDs tests auto-increment id assignment and injection
func TestAppend_AssignsIDs(t *testing.T) {
	ctx := context.Background()
	st := openTestStore(t)

	id1, err := st.Append(ctx, "events", map[string]any{"kind": "scan"})
	if err != nil {
		t.Fatalf("Append() failed: %v", err)
	}
	id2, err := st.Append(ctx, "events", map[string]any{"kind": "signup"})
	if err != nil {
		t.Fatalf("Append() failed: %v", err)
	}
	if id2 <= id1 {
		t.Errorf("ids not increasing: %d then %d", id1, id2)
	}

	// The assigned id is injected into the stored value
	rows, err := st.GetAll(ctx, "events")
	if err != nil {
		t.Fatalf("GetAll() failed: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("GetAll() returned %d rows, want 2", len(rows))
	}
	var first struct {
		ID   int64  `json:"id"`
		Kind string `json:"kind"`
	}
	if err := json.Unmarshal(rows[0], &first); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}
	if first.ID != id1 {
		t.Errorf("injected id = %d, want %d", first.ID, id1)
	}
}

// TestGetAllByIndex_Filters tests secondary index lookups
func TestGetAllByIndex_Filters(t *testing.T) {
	ctx := context.Background()
	st := openTestStore(t)

	for _, kind := range []string{"scan", "scan", "signup"} {
		if _, err := st.Append(ctx, "events", map[string]any{"kind": kind}); err != nil {
			t.Fatalf("Append() failed: %v", err)
		}
	}

	rows, err := st.GetAllByIndex(ctx, "events", "by-kind", "scan")
	if err != nil {
		t.Fatalf("GetAllByIndex() failed: %v", err)
	}
	if len(rows) != 2 {
		t.Errorf("GetAllByIndex() returned %d rows, want 2", len(rows))
	}
}

// TestGetAllByIndex_WrongKeyCount tests key arity validation
func TestGetAllByIndex_WrongKeyCount(t *testing.T) {
	ctx := context.Background()
	st := openTestStore(t)

	_, err := st.GetAllByIndex(ctx, "events", "by-kind", "scan", "extra")
	if err == nil {
		t.Fatal("GetAllByIndex() with wrong key count should fail")
	}
}

// TestUnknownPartition tests that unregistered partitions are rejected
func TestUnknownPartition(t *testing.T) {
	ctx := context.Background()
	st := openTestStore(t)

	if err := st.Put(ctx, "ghosts", "k", "v"); err == nil {
		t.Fatal("Put() on unknown partition should fail")
	}
	if !IsSchemaError(st.Put(ctx, "ghosts", "k", "v")) {
		t.Error("expected a schema error")
	}
}

// TestUpdate_Rollback tests that a failed transaction leaves no writes behind
func TestUpdate_Rollback(t *testing.T) {
	ctx := context.Background()
	st := openTestStore(t)

	err := st.Update(ctx, func(tx *Tx) error {
		if err := tx.Put(ctx, "garments", "g1", map[string]int{"v": 1}); err != nil {
			return err
		}
		return fmt.Errorf("abort")
	})
	if err == nil {
		t.Fatal("Update() should propagate the callback error")
	}

	raw, err := st.Get(ctx, "garments", "g1")
	if err != nil {
		t.Fatalf("Get() failed: %v", err)
	}
	if raw != nil {
		t.Error("write survived a rolled-back transaction")
	}
}

// TestConcurrentPuts tests that concurrent writers to one partition all land
func TestConcurrentPuts(t *testing.T) {
	ctx := context.Background()
	st := openTestStore(t)

	const writers = 10
	var wg sync.WaitGroup
	errs := make(chan error, writers)

	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			key := fmt.Sprintf("g%d", n)
			errs <- st.Put(ctx, "garments", key, map[string]int{"n": n})
		}(i)
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		if err != nil {
			t.Fatalf("concurrent Put() failed: %v", err)
		}
	}

	n, err := st.Count(ctx, "garments")
	if err != nil {
		t.Fatalf("Count() failed: %v", err)
	}
	if n != writers {
		t.Errorf("Count() = %d, want %d", n, writers)
	}
}

// TestConcurrentPuts_SameKey tests that racing writers to one key leave
// exactly one writer's value, never a blend or a lost row
func TestConcurrentPuts_SameKey(t *testing.T) {
	ctx := context.Background()
	st := openTestStore(t)

	const writers = 10
	var wg sync.WaitGroup
	errs := make(chan error, writers)

	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			errs <- st.Put(ctx, "garments", "g1", map[string]int{"n": n})
		}(i)
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		if err != nil {
			t.Fatalf("concurrent Put() failed: %v", err)
		}
	}

	raw, err := st.Get(ctx, "garments", "g1")
	if err != nil {
		t.Fatalf("Get() failed: %v", err)
	}
	var got struct {
		N int `json:"n"`
	}
	if err := json.Unmarshal(raw, &got); err != nil {
		t.Fatalf("stored value is not valid JSON: %v", err)
	}
	if got.N < 0 || got.N >= writers {
		t.Errorf("stored value n = %d, not written by any writer", got.N)
	}

	n, err := st.Count(ctx, "garments")
	if err != nil {
		t.Fatalf("Count() failed: %v", err)
	}
	if n != 1 {
		t.Errorf("Count() = %d, want 1", n)
	}
}

// TestAppend_IDNeverObservedUnset tests that a reader scanning during
// concurrent appends never sees a row before its assigned id is recorded
// in the stored JSON
func TestAppend_IDNeverObservedUnset(t *testing.T) {
	ctx := context.Background()
	st := openTestStore(t)

	const appends = 20
	done := make(chan struct{})
	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		defer close(done)
		for i := 0; i < appends; i++ {
			if _, err := st.Append(ctx, "events", map[string]any{"kind": "scan"}); err != nil {
				t.Errorf("Append() failed: %v", err)
				return
			}
		}
	}()

	for {
		rows, err := st.GetAll(ctx, "events")
		if err != nil {
			t.Fatalf("GetAll() failed: %v", err)
		}
		for _, raw := range rows {
			var got struct {
				ID int64 `json:"id"`
			}
			if err := json.Unmarshal(raw, &got); err != nil {
				t.Fatalf("stored value is not valid JSON: %v", err)
			}
			if got.ID == 0 {
				t.Fatal("observed an appended row with no id recorded")
			}
		}
		select {
		case <-done:
			wg.Wait()
			rows, err := st.GetAll(ctx, "events")
			if err != nil {
				t.Fatalf("GetAll() failed: %v", err)
			}
			if len(rows) != appends {
				t.Errorf("GetAll() returned %d rows, want %d", len(rows), appends)
			}
			return
		default:
		}
	}
}

// TestClearAndDelete tests removal operations
func TestClearAndDelete(t *testing.T) {
	ctx := context.Background()
	st := openTestStore(t)

	for i := 0; i < 3; i++ {
		if err := st.Put(ctx, "garments", fmt.Sprintf("g%d", i), map[string]int{"n": i}); err != nil {
			t.Fatalf("Put() failed: %v", err)
		}
	}

	if err := st.Delete(ctx, "garments", "g0"); err != nil {
		t.Fatalf("Delete() failed: %v", err)
	}
	n, _ := st.Count(ctx, "garments")
	if n != 2 {
		t.Errorf("Count() after Delete = %d, want 2", n)
	}

	if err := st.Clear(ctx, "garments"); err != nil {
		t.Fatalf("Clear() failed: %v", err)
	}
	n, _ = st.Count(ctx, "garments")
	if n != 0 {
		t.Errorf("Count() after Clear = %d, want 0", n)
	}
}

// TestPartitionNameValidation tests that hostile partition names are rejected
func TestPartitionNameValidation(t *testing.T) {
	path := testStorePath(t)

	_, err := Open(path, 1, func(tx *Tx, oldVersion, newVersion int) error {
		return tx.CreatePartition(Partition{Name: `x"; DROP TABLE _partitions; --`})
	})
	if err == nil {
		t.Fatal("CreatePartition() with hostile name should fail")
	}
}
