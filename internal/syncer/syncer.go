// Package syncer converts queued local actions into confirmed remote state.
//
// The drainer is a two-state machine: Idle, and Draining for the duration of
// one pass over the unsynced queue snapshot. Entering Draining is triggered
// by an offline-to-online transition (or an explicit Drain call); re-entrant
// triggers while a drain is in flight coalesce into a no-op. There is no
// persistent failure state — a failed entry simply stays queued for the next
// cycle.
package syncer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"sync/atomic"
	"time"

	"github.com/popclozet/popclozet/internal/models"
	"github.com/popclozet/popclozet/internal/netmon"
	"github.com/popclozet/popclozet/internal/queue"
	"github.com/popclozet/popclozet/internal/remote"
)

// Summary reports one drain cycle for user-facing feedback.
type Summary struct {
	// Attempted is the size of the unsynced snapshot this cycle replayed.
	Attempted int

	// Confirmed is how many entries were marked synced.
	Confirmed int

	// Pruned is how many confirmed entries were deleted afterwards.
	Pruned int

	// Duration is the wall time of the cycle.
	Duration time.Duration
}

// Drainer replays the mutation queue against the backend.
type Drainer struct {
	queue  *queue.Queue
	remote remote.Client
	logger *log.Logger

	// draining guards against overlapping drains of the same queue.
	draining atomic.Bool

	// OnSummary, when set, receives the summary of every completed drain
	// cycle (the dashboard hooks in here). Called synchronously at the
	// end of the cycle.
	OnSummary func(Summary)
}

// New creates a Drainer. If logger is nil, a default stderr logger is used.
func New(q *queue.Queue, rc remote.Client, logger *log.Logger) *Drainer {
	if logger == nil {
		logger = log.New(os.Stderr, "[sync] ", log.LstdFlags)
	}
	return &Drainer{queue: q, remote: rc, logger: logger}
}

// Watch subscribes to the connectivity monitor and starts a drain on every
// offline-to-online transition. The monitor's initial-state callback does not
// trigger a drain; only observed transitions do. The returned function
// cancels the subscription.
func (d *Drainer) Watch(ctx context.Context, m *netmon.Monitor) (unsubscribe func()) {
	first := true
	return m.Subscribe(func(online bool) {
		if first {
			first = false
			return
		}
		if !online {
			return
		}
		go func() {
			if _, started := d.TryDrain(ctx); !started {
				d.logger.Printf("Reconnect observed while drain in flight; coalesced")
			}
		}()
	})
}

// TryDrain runs a drain cycle unless one is already in flight, in which case
// it reports started=false without touching the queue. New entries enqueued
// during a running cycle are not injected into it; they wait for the next
// trigger.
func (d *Drainer) TryDrain(ctx context.Context) (Summary, bool) {
	if !d.draining.CompareAndSwap(false, true) {
		return Summary{}, false
	}
	defer d.draining.Store(false)

	summary, err := d.drain(ctx)
	if err != nil {
		d.logger.Printf("Drain cycle failed: %v", err)
	}
	return summary, true
}

// Drain runs one cycle, waiting out any in-flight cycle's guard by failing
// fast: callers wanting coalescing semantics use TryDrain. Intended for
// explicit CLI invocation.
func (d *Drainer) Drain(ctx context.Context) (Summary, error) {
	if !d.draining.CompareAndSwap(false, true) {
		return Summary{}, fmt.Errorf("drain already in flight")
	}
	defer d.draining.Store(false)
	return d.drain(ctx)
}

// drain is one full pass: snapshot, FIFO replay, mark, prune, report.
func (d *Drainer) drain(ctx context.Context) (Summary, error) {
	start := time.Now()

	entries, err := d.queue.ListUnsynced(ctx)
	if err != nil {
		return Summary{}, fmt.Errorf("failed to read queue: %w", err)
	}
	if len(entries) == 0 {
		return Summary{}, nil
	}

	d.logger.Printf("Draining %d queued actions", len(entries))
	summary := Summary{Attempted: len(entries)}

	for _, e := range entries {
		if err := d.replay(ctx, e); err != nil {
			// One failing entry never blocks the rest of the batch.
			d.logger.Printf("WARNING: failed to replay %s (id=%d): %v", e.Action, e.ID, err)
			continue
		}
		if err := d.queue.MarkSynced(ctx, e.ID); err != nil {
			d.logger.Printf("WARNING: failed to mark entry %d synced: %v", e.ID, err)
			continue
		}
		summary.Confirmed++
	}

	pruned, err := d.queue.PruneSynced(ctx)
	if err != nil {
		// Synced-but-unpruned entries are skipped by the next cycle.
		d.logger.Printf("WARNING: failed to prune synced entries: %v", err)
	}
	summary.Pruned = pruned
	summary.Duration = time.Since(start)

	d.logger.Printf("Drain complete: attempted=%d confirmed=%d pruned=%d in %v",
		summary.Attempted, summary.Confirmed, summary.Pruned,
		summary.Duration.Round(time.Millisecond))

	if d.OnSummary != nil {
		d.OnSummary(summary)
	}
	return summary, nil
}

// replay dispatches one entry to its action-specific routine. Returning nil
// means the action's remote effect is confirmed (or needs none).
func (d *Drainer) replay(ctx context.Context, e queue.Entry) error {
	switch e.Action {
	case queue.ActionAddToCart, queue.ActionRemoveFromCart,
		queue.ActionAddToWishlist, queue.ActionRemoveFromWishlist:
		// Cart and wishlist state is authoritative on the client; the
		// durable local write already happened, so nothing to replay.
		return nil

	case queue.ActionEmailSignup:
		var data queue.SignupData
		if err := json.Unmarshal(e.Data, &data); err != nil {
			return fmt.Errorf("corrupt signup payload: %w", err)
		}
		err := d.remote.InsertSignup(ctx, data.Email)
		if errors.Is(err, remote.ErrConflict) {
			// Already signed up, possibly from a replay. Done.
			return nil
		}
		return err

	case queue.ActionQRScan:
		var scan models.ScanLog
		if err := json.Unmarshal(e.Data, &scan); err != nil {
			return fmt.Errorf("corrupt scan payload: %w", err)
		}
		now := time.Now().UTC()
		scan.SyncedAt = &now
		err := d.remote.InsertScanLog(ctx, &scan)
		switch {
		case errors.Is(err, remote.ErrConflict):
			// Scan id already recorded by an earlier partial drain.
			return nil
		case errors.Is(err, remote.ErrNotFound):
			// The scanned product was deleted remotely while this scan
			// waited in the queue. Retiring the entry beats retrying a
			// write that can never land.
			d.logger.Printf("WARNING: scan %s targets a product gone remotely; retiring", scan.ID)
			return nil
		}
		return err

	default:
		return fmt.Errorf("unknown action %q", e.Action)
	}
}
