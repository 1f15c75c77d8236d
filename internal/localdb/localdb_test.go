package localdb

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/popclozet/popclozet/internal/store"
)

// storeOpenV1 opens the store pinned at schema v1, as an old installation
// would have left it.
func storeOpenV1(path string) (*store.Store, error) {
	return store.Open(path, 1, Upgrade)
}

// TestOpen_CreatesAllPartitions tests that a fresh store carries the full
// storefront schema
func TestOpen_CreatesAllPartitions(t *testing.T) {
	ctx := context.Background()
	st, err := Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	defer st.Close()

	if st.Version() != Version {
		t.Errorf("Version() = %d, want %d", st.Version(), Version)
	}

	partitions := []string{
		PartitionProducts,
		PartitionCart,
		PartitionWishlist,
		PartitionQueue,
		PartitionPreferences,
		PartitionSOPs,
	}
	for _, p := range partitions {
		if _, err := st.Count(ctx, p); err != nil {
			t.Errorf("partition %s missing: %v", p, err)
		}
	}
}

// TestOpen_V1ToV2Upgrade tests that a store created at v1 gains the v2
// partitions on reopen
func TestOpen_V1ToV2Upgrade(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "test.db")

	// Simulate an installation that stopped at v1
	st, err := storeOpenV1(path)
	if err != nil {
		t.Fatalf("open v1 failed: %v", err)
	}
	if err := st.Put(ctx, PartitionCart, "p1", map[string]int{"quantity": 1}); err != nil {
		t.Fatalf("Put() failed: %v", err)
	}
	if err := st.Close(); err != nil {
		t.Fatalf("Close() failed: %v", err)
	}

	st, err = Open(path)
	if err != nil {
		t.Fatalf("Open() at v2 failed: %v", err)
	}
	defer st.Close()

	// v1 data survives
	raw, err := st.Get(ctx, PartitionCart, "p1")
	if err != nil {
		t.Fatalf("Get() failed: %v", err)
	}
	if raw == nil {
		t.Error("cart entry lost across v1->v2 upgrade")
	}

	// v2 partitions exist
	if _, err := st.Count(ctx, PartitionQueue); err != nil {
		t.Errorf("offline_queue missing after upgrade: %v", err)
	}
	if _, err := st.Count(ctx, PartitionSOPs); err != nil {
		t.Errorf("sops missing after upgrade: %v", err)
	}
}
