// Package migrate imports the legacy flat key-value state left behind by
// earlier app versions into the partitioned store.
//
// The import is explicitly invoked (never a side effect of opening the
// store), gated by a preference flag so it runs at most once per
// installation, and best-effort per item: a bad entry is logged and skipped,
// never fatal.
package migrate

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/popclozet/popclozet/internal/localdb"
	"github.com/popclozet/popclozet/internal/store"
)

// migratedKey is the preference flag that marks a completed import.
const migratedKey = "legacy_migrated"

// legacyState is the flat JSON export of the pre-partitioned storage:
// a cart quantity map, a wishlist id list, and a theme preference.
type legacyState struct {
	Cart     map[string]int `json:"cart"`
	Wishlist []string       `json:"wishlist"`
	Theme    string         `json:"theme"`
}

// cartItem is the partitioned shape of one cart line.
type cartItem struct {
	ProductID string    `json:"product_id"`
	Quantity  int       `json:"quantity"`
	AddedAt   time.Time `json:"added_at"`
}

// wishlistItem is the partitioned shape of one wishlist line.
type wishlistItem struct {
	ProductID string    `json:"product_id"`
	AddedAt   time.Time `json:"added_at"`
}

// Result reports what an import did.
type Result struct {
	// Skipped is true when the migration flag was already set.
	Skipped bool

	CartItems     int
	WishlistItems int
	Preferences   int
	Errors        []string
}

// FromLegacy imports the legacy export at path into st.
//
// A missing file is treated as "nothing to migrate": the flag is still set so
// the check never runs again. Returns an error only when the store itself is
// unusable; individual bad entries are recorded in Result.Errors.
func FromLegacy(ctx context.Context, st *store.Store, path string, logger *log.Logger) (*Result, error) {
	if logger == nil {
		logger = log.New(os.Stderr, "[migrate] ", log.LstdFlags)
	}
	result := &Result{}

	flag, err := st.Get(ctx, localdb.PartitionPreferences, migratedKey)
	if err != nil {
		return nil, fmt.Errorf("failed to read migration flag: %w", err)
	}
	if flag != nil {
		result.Skipped = true
		return result, nil
	}

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		logger.Printf("No legacy state at %s; marking migration done", path)
		return result, setMigrated(ctx, st)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read legacy state: %w", err)
	}

	var legacy legacyState
	if err := json.Unmarshal(data, &legacy); err != nil {
		// An unparseable export cannot be retried into a better outcome.
		logger.Printf("WARNING: legacy state unparseable, skipping import: %v", err)
		result.Errors = append(result.Errors, fmt.Sprintf("unparseable legacy state: %v", err))
		return result, setMigrated(ctx, st)
	}

	now := time.Now().UTC()

	for productID, qty := range legacy.Cart {
		if productID == "" || qty <= 0 {
			result.Errors = append(result.Errors, fmt.Sprintf("bad cart entry %q (qty=%d)", productID, qty))
			continue
		}
		item := cartItem{ProductID: productID, Quantity: qty, AddedAt: now}
		if err := st.Put(ctx, localdb.PartitionCart, productID, item); err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("cart %s: %v", productID, err))
			continue
		}
		result.CartItems++
	}

	for _, productID := range legacy.Wishlist {
		if productID == "" {
			result.Errors = append(result.Errors, "empty wishlist entry")
			continue
		}
		item := wishlistItem{ProductID: productID, AddedAt: now}
		if err := st.Put(ctx, localdb.PartitionWishlist, productID, item); err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("wishlist %s: %v", productID, err))
			continue
		}
		result.WishlistItems++
	}

	if legacy.Theme != "" {
		if err := st.Put(ctx, localdb.PartitionPreferences, "theme", legacy.Theme); err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("theme preference: %v", err))
		} else {
			result.Preferences++
		}
	}

	logger.Printf("Legacy import complete: cart=%d wishlist=%d prefs=%d errors=%d",
		result.CartItems, result.WishlistItems, result.Preferences, len(result.Errors))

	return result, setMigrated(ctx, st)
}

func setMigrated(ctx context.Context, st *store.Store) error {
	if err := st.Put(ctx, localdb.PartitionPreferences, migratedKey, true); err != nil {
		return fmt.Errorf("failed to set migration flag: %w", err)
	}
	return nil
}
