// Package queue is the append-only log of local mutations awaiting remote
// confirmation.
//
// Every action a user takes while the backend is unreachable lands here
// first. Entries keep their insertion order and a synced flag; the sync
// engine is the only component that flips synced and prunes entries, so the
// queue itself never decides when an action is done.
//
// Unlike the catalog mirror, queue writes are never best-effort: a failed
// enqueue is surfaced to the caller as a hard error, because a dropped entry
// is a lost user action.
package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"sort"
	"time"

	"github.com/popclozet/popclozet/internal/localdb"
	"github.com/popclozet/popclozet/internal/models"
	"github.com/popclozet/popclozet/internal/store"
)

// Action is the closed set of replayable mutation kinds.
type Action string

const (
	ActionAddToCart          Action = "add_to_cart"
	ActionRemoveFromCart     Action = "remove_from_cart"
	ActionAddToWishlist      Action = "add_to_wishlist"
	ActionRemoveFromWishlist Action = "remove_from_wishlist"
	ActionEmailSignup        Action = "email_signup"
	ActionQRScan             Action = "qr_scan"
)

// Entry is one queued mutation. ID is assigned by the store on insert and
// never reused; Synced transitions false -> true exactly once.
type Entry struct {
	ID        int64           `json:"id"`
	Action    Action          `json:"action"`
	Data      json.RawMessage `json:"data"`
	Timestamp time.Time       `json:"timestamp"`
	Synced    bool            `json:"synced"`
}

// CartData is the payload for cart actions.
type CartData struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity,omitempty"`
}

// WishlistData is the payload for wishlist actions.
type WishlistData struct {
	ProductID string `json:"product_id"`
}

// SignupData is the payload for email signups.
type SignupData struct {
	Email string `json:"email"`
}

// Queue is the mutation log over the offline_queue partition.
type Queue struct {
	store  *store.Store
	logger *log.Logger
}

// New creates a Queue over st. If logger is nil, a default stderr logger is
// used.
func New(st *store.Store, logger *log.Logger) *Queue {
	if logger == nil {
		logger = log.New(os.Stderr, "[queue] ", log.LstdFlags)
	}
	return &Queue{store: st, logger: logger}
}

// Enqueue validates and appends a mutation, returning the assigned id.
//
// Storage failures are returned to the caller, never swallowed: the queue's
// contract is that an accepted action cannot be lost short of losing the
// database file itself.
func (q *Queue) Enqueue(ctx context.Context, action Action, data any) (int64, error) {
	payload, err := encodePayload(action, data)
	if err != nil {
		return 0, fmt.Errorf("invalid %s payload: %w", action, err)
	}

	entry := Entry{
		Action:    action,
		Data:      payload,
		Timestamp: time.Now().UTC(),
	}
	id, err := q.store.Append(ctx, localdb.PartitionQueue, entry)
	if err != nil {
		return 0, fmt.Errorf("failed to enqueue %s: %w", action, err)
	}

	q.logger.Printf("Queued %s (id=%d)", action, id)
	return id, nil
}

// ListUnsynced returns pending entries in FIFO replay order: timestamp
// ascending, insertion id breaking ties. Replay order matters because later
// entries may depend on earlier ones (add then remove of the same key).
func (q *Queue) ListUnsynced(ctx context.Context) ([]Entry, error) {
	values, err := q.store.GetAllByIndex(ctx, localdb.PartitionQueue, localdb.IndexBySynced, 0)
	if err != nil {
		return nil, fmt.Errorf("failed to list unsynced entries: %w", err)
	}

	entries := make([]Entry, 0, len(values))
	for _, v := range values {
		var e Entry
		if err := json.Unmarshal(v, &e); err != nil {
			// A corrupt row must not wedge the whole queue.
			q.logger.Printf("WARNING: skipping corrupt queue entry: %v", err)
			continue
		}
		entries = append(entries, e)
	}

	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Timestamp.Equal(entries[j].Timestamp) {
			return entries[i].ID < entries[j].ID
		}
		return entries[i].Timestamp.Before(entries[j].Timestamp)
	})
	return entries, nil
}

// MarkSynced records remote confirmation of an entry. Marking an already
// synced or nonexistent id is a no-op, not an error, so replays across crash
// boundaries stay harmless.
func (q *Queue) MarkSynced(ctx context.Context, id int64) error {
	return q.store.Update(ctx, func(tx *store.Tx) error {
		raw, err := tx.GetID(ctx, localdb.PartitionQueue, id)
		if err != nil {
			return err
		}
		if raw == nil {
			return nil
		}
		var e Entry
		if err := json.Unmarshal(raw, &e); err != nil {
			return fmt.Errorf("corrupt queue entry %d: %w", id, err)
		}
		if e.Synced {
			return nil
		}
		e.Synced = true
		return tx.PutID(ctx, localdb.PartitionQueue, id, e)
	})
}

// PruneSynced deletes all confirmed entries and returns how many were
// removed. Entries enqueued concurrently are unaffected: only rows already
// carrying synced=true go away.
func (q *Queue) PruneSynced(ctx context.Context) (int, error) {
	pruned := 0
	err := q.store.Update(ctx, func(tx *store.Tx) error {
		values, err := tx.GetAllByIndex(ctx, localdb.PartitionQueue, localdb.IndexBySynced, 1)
		if err != nil {
			return err
		}
		for _, v := range values {
			var e Entry
			if err := json.Unmarshal(v, &e); err != nil {
				continue
			}
			if err := tx.DeleteID(ctx, localdb.PartitionQueue, e.ID); err != nil {
				return err
			}
			pruned++
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("failed to prune synced entries: %w", err)
	}
	return pruned, nil
}

// Depth returns the number of pending (unsynced) entries.
func (q *Queue) Depth(ctx context.Context) (int, error) {
	entries, err := q.ListUnsynced(ctx)
	if err != nil {
		return 0, err
	}
	return len(entries), nil
}

// encodePayload marshals and validates data against the action's schema.
// Payloads are checked at the boundary so nothing loosely shaped travels
// through the replay pipeline.
func encodePayload(action Action, data any) (json.RawMessage, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}

	switch action {
	case ActionAddToCart, ActionRemoveFromCart:
		var d CartData
		if err := json.Unmarshal(raw, &d); err != nil {
			return nil, err
		}
		if d.ProductID == "" {
			return nil, fmt.Errorf("product_id is required")
		}
	case ActionAddToWishlist, ActionRemoveFromWishlist:
		var d WishlistData
		if err := json.Unmarshal(raw, &d); err != nil {
			return nil, err
		}
		if d.ProductID == "" {
			return nil, fmt.Errorf("product_id is required")
		}
	case ActionEmailSignup:
		var d SignupData
		if err := json.Unmarshal(raw, &d); err != nil {
			return nil, err
		}
		if d.Email == "" {
			return nil, fmt.Errorf("email is required")
		}
	case ActionQRScan:
		var d models.ScanLog
		if err := json.Unmarshal(raw, &d); err != nil {
			return nil, err
		}
		if err := d.Validate(); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("unknown action %q", action)
	}

	return raw, nil
}
