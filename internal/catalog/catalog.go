// Package catalog is the product entity cache: a unified read surface over
// "remote if reachable, local mirror otherwise".
//
// Reads always try the backend first. A successful response refreshes the
// mirror (a full, unfiltered listing replaces it outright; filtered results
// merge by key) before being returned. Any remote failure falls through to
// whatever the mirror holds, which may be stale or empty — callers must
// tolerate staleness.
//
// The mirror is a cache, never an authority: a remote error never erases it,
// while a remote success with an empty result genuinely empties it. Mirror
// writes are best-effort; a failed cache write is logged, not surfaced,
// in contrast with the mutation queue's hard-error policy.
package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/popclozet/popclozet/internal/localdb"
	"github.com/popclozet/popclozet/internal/models"
	"github.com/popclozet/popclozet/internal/remote"
	"github.com/popclozet/popclozet/internal/store"
)

// lastSyncKey is the preferences entry recording the last full mirror refresh.
const lastSyncKey = "products_last_sync"

// Cache mirrors the remote product catalog into the products partition.
type Cache struct {
	store  *store.Store
	remote remote.Client
	logger *log.Logger
}

// New creates a Cache over the injected store and backend client.
// If logger is nil, a default stderr logger is used.
func New(st *store.Store, rc remote.Client, logger *log.Logger) *Cache {
	if logger == nil {
		logger = log.New(os.Stderr, "[catalog] ", log.LstdFlags)
	}
	return &Cache{store: st, remote: rc, logger: logger}
}

// GetAll returns the products matching filter.
//
// On remote success the mirror is refreshed and the remote rows returned; an
// empty result is a valid success and, for an unfiltered listing, empties the
// mirror. On remote failure the call falls back to the mirror, served from
// the gender/gender+event indexes when the filter allows.
func (c *Cache) GetAll(ctx context.Context, filter remote.ProductFilter) ([]models.Product, error) {
	products, err := c.remote.ListProducts(ctx, filter)
	if err != nil {
		c.logger.Printf("Remote list failed, serving mirror: %v", err)
		return c.localList(ctx, filter)
	}

	unfiltered := filter.Gender == "" && filter.Event == "" && !filter.OnlyAvailable
	if unfiltered {
		c.replaceMirror(ctx, products)
	} else {
		c.mergeMirror(ctx, products)
	}
	return products, nil
}

// GetByID returns a single product or nil if it does not exist.
//
// A remote not-found is authoritative: the stale mirror entry (if any) is
// dropped and (nil, nil) returned. Any other remote failure falls back to the
// mirror.
func (c *Cache) GetByID(ctx context.Context, id string) (*models.Product, error) {
	p, err := c.remote.GetProduct(ctx, id)
	if err == nil {
		c.cachePut(ctx, *p)
		return p, nil
	}
	if errors.Is(err, remote.ErrNotFound) {
		if derr := c.store.Delete(ctx, localdb.PartitionProducts, id); derr != nil {
			c.logger.Printf("WARNING: failed to drop stale mirror entry %s: %v", id, derr)
		}
		return nil, nil
	}

	c.logger.Printf("Remote get %s failed, serving mirror: %v", id, err)
	raw, gerr := c.store.Get(ctx, localdb.PartitionProducts, id)
	if gerr != nil {
		return nil, gerr
	}
	if raw == nil {
		return nil, nil
	}
	var cached models.Product
	if uerr := json.Unmarshal(raw, &cached); uerr != nil {
		return nil, fmt.Errorf("corrupt mirror entry %s: %w", id, uerr)
	}
	return &cached, nil
}

// GetByGender lists products for one gender category, falling back to the
// by-gender index.
func (c *Cache) GetByGender(ctx context.Context, gender models.Gender) ([]models.Product, error) {
	return c.GetAll(ctx, remote.ProductFilter{Gender: gender})
}

// GetByGenderEvent lists products for a gender and event pairing, falling
// back to the composite by-gender-event index.
func (c *Cache) GetByGenderEvent(ctx context.Context, gender models.Gender, event models.EventCategory) ([]models.Product, error) {
	return c.GetAll(ctx, remote.ProductFilter{Gender: gender, Event: event})
}

// Put writes a product into the mirror only. It does not reach the backend;
// callers pair it with an explicit remote write (or a queue entry when
// offline) for durability beyond this device.
func (c *Cache) Put(ctx context.Context, p models.Product) error {
	if err := p.Validate(); err != nil {
		return fmt.Errorf("invalid product: %w", err)
	}
	p.CachedAt = time.Now().UTC()
	if err := c.store.Put(ctx, localdb.PartitionProducts, p.ID, p); err != nil {
		return fmt.Errorf("failed to cache product %s: %w", p.ID, err)
	}
	return nil
}

// EvictOlderThan removes mirror entries whose CachedAt is older than maxAge
// and reports how many were removed. This is an explicit maintenance sweep;
// nothing evicts in the background.
func (c *Cache) EvictOlderThan(ctx context.Context, maxAge time.Duration) (int, error) {
	cutoff := time.Now().UTC().Add(-maxAge)
	evicted := 0

	err := c.store.Update(ctx, func(tx *store.Tx) error {
		values, err := tx.GetAll(ctx, localdb.PartitionProducts)
		if err != nil {
			return err
		}
		for _, v := range values {
			var p models.Product
			if err := json.Unmarshal(v, &p); err != nil {
				continue
			}
			if p.CachedAt.Before(cutoff) {
				if err := tx.Delete(ctx, localdb.PartitionProducts, p.ID); err != nil {
					return err
				}
				evicted++
			}
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("failed to evict stale entries: %w", err)
	}

	if evicted > 0 {
		c.logger.Printf("Evicted %d stale mirror entries (older than %v)", evicted, maxAge)
	}
	return evicted, nil
}

// Size returns the number of mirrored products.
func (c *Cache) Size(ctx context.Context) (int, error) {
	return c.store.Count(ctx, localdb.PartitionProducts)
}

// replaceMirror atomically swaps the whole mirror for the remote listing.
// Failures are logged and tolerated: the cache is best-effort.
func (c *Cache) replaceMirror(ctx context.Context, products []models.Product) {
	now := time.Now().UTC()
	err := c.store.Update(ctx, func(tx *store.Tx) error {
		if err := tx.Clear(ctx, localdb.PartitionProducts); err != nil {
			return err
		}
		for i := range products {
			p := products[i]
			p.CachedAt = now
			if err := tx.Put(ctx, localdb.PartitionProducts, p.ID, p); err != nil {
				return err
			}
		}
		return tx.Put(ctx, localdb.PartitionPreferences, lastSyncKey, now)
	})
	if err != nil {
		c.logger.Printf("WARNING: failed to refresh mirror: %v", err)
	}
}

// mergeMirror upserts a filtered remote result into the mirror without
// touching rows outside the filter.
func (c *Cache) mergeMirror(ctx context.Context, products []models.Product) {
	for i := range products {
		c.cachePut(ctx, products[i])
	}
}

// cachePut is the lossy-on-failure single-row mirror write.
func (c *Cache) cachePut(ctx context.Context, p models.Product) {
	p.CachedAt = time.Now().UTC()
	if err := c.store.Put(ctx, localdb.PartitionProducts, p.ID, p); err != nil {
		c.logger.Printf("WARNING: failed to cache product %s: %v", p.ID, err)
	}
}

// localList serves a filter from the mirror, using the secondary indexes
// where they match the filter shape.
func (c *Cache) localList(ctx context.Context, filter remote.ProductFilter) ([]models.Product, error) {
	var (
		values []json.RawMessage
		err    error
	)
	switch {
	case filter.Gender != "" && filter.Event != "":
		values, err = c.store.GetAllByIndex(ctx, localdb.PartitionProducts,
			localdb.IndexByGenderEvent, string(filter.Gender), string(filter.Event))
	case filter.Gender != "":
		values, err = c.store.GetAllByIndex(ctx, localdb.PartitionProducts,
			localdb.IndexByGender, string(filter.Gender))
	default:
		values, err = c.store.GetAll(ctx, localdb.PartitionProducts)
	}
	if err != nil {
		return nil, err
	}

	products := make([]models.Product, 0, len(values))
	for _, v := range values {
		var p models.Product
		if err := json.Unmarshal(v, &p); err != nil {
			c.logger.Printf("WARNING: skipping corrupt mirror entry: %v", err)
			continue
		}
		// Filter dimensions the indexes do not cover
		if filter.Event != "" && filter.Gender == "" && p.Event != filter.Event {
			continue
		}
		if filter.OnlyAvailable && !p.IsAvailable {
			continue
		}
		products = append(products, p)
	}
	return products, nil
}
