// Package localdb defines the PopClozet local database schema: the partitions
// every component shares, and the versioned upgrade that creates them.
//
// Schema history:
//   - v1: products mirror (with gender and gender+event indexes), cart,
//     wishlist, preferences
//   - v2: offline_queue (auto-increment, by-synced index), sops
package localdb

import (
	"github.com/popclozet/popclozet/internal/store"
)

// Version is the current schema version requested on Open.
const Version = 2

// Partition names shared across components.
const (
	PartitionProducts    = "products"
	PartitionCart        = "cart"
	PartitionWishlist    = "wishlist"
	PartitionQueue       = "offline_queue"
	PartitionPreferences = "preferences"
	PartitionSOPs        = "sops"
)

// Index names on the partitions above.
const (
	IndexByGender      = "by-gender"
	IndexByGenderEvent = "by-gender-event"
	IndexBySynced      = "by-synced"
)

// Open opens the store at path with the current schema.
func Open(path string) (*store.Store, error) {
	return store.Open(path, Version, Upgrade)
}

// Upgrade brings the store from oldVersion up to newVersion. CreatePartition
// is idempotent, so each version step only needs to add what it introduced.
func Upgrade(tx *store.Tx, oldVersion, newVersion int) error {
	if oldVersion < 1 {
		if err := tx.CreatePartition(store.Partition{
			Name: PartitionProducts,
			Indexes: []store.IndexSpec{
				{Name: IndexByGender, Fields: []string{"gender"}},
				{Name: IndexByGenderEvent, Fields: []string{"gender", "event_category"}},
			},
		}); err != nil {
			return err
		}
		if err := tx.CreatePartition(store.Partition{Name: PartitionCart}); err != nil {
			return err
		}
		if err := tx.CreatePartition(store.Partition{Name: PartitionWishlist}); err != nil {
			return err
		}
		if err := tx.CreatePartition(store.Partition{Name: PartitionPreferences}); err != nil {
			return err
		}
	}

	if oldVersion < 2 {
		if err := tx.CreatePartition(store.Partition{
			Name:          PartitionQueue,
			AutoIncrement: true,
			Indexes: []store.IndexSpec{
				{Name: IndexBySynced, Fields: []string{"synced"}},
			},
		}); err != nil {
			return err
		}
		if err := tx.CreatePartition(store.Partition{Name: PartitionSOPs}); err != nil {
			return err
		}
	}

	return nil
}
