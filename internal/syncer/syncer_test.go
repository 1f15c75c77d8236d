package syncer

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/popclozet/popclozet/internal/localdb"
	"github.com/popclozet/popclozet/internal/models"
	"github.com/popclozet/popclozet/internal/netmon"
	"github.com/popclozet/popclozet/internal/queue"
	"github.com/popclozet/popclozet/internal/remote"
	"github.com/popclozet/popclozet/internal/scan"
)

// recordingRemote records replayed writes in arrival order and can be
// scripted to fail specific payloads.
type recordingRemote struct {
	mu      sync.Mutex
	signups []string
	scans   []string

	failSignup   map[string]error
	failScan     map[string]error
	blockScans   chan struct{} // when set, InsertScanLog waits here
	scanAttempts int
}

func (r *recordingRemote) ListProducts(ctx context.Context, f remote.ProductFilter) ([]models.Product, error) {
	return nil, nil
}
func (r *recordingRemote) GetProduct(ctx context.Context, id string) (*models.Product, error) {
	return nil, remote.ErrNotFound
}
func (r *recordingRemote) UpsertProduct(ctx context.Context, p *models.Product) error { return nil }
func (r *recordingRemote) InsertSOP(ctx context.Context, rec *models.SOPRecord) error { return nil }

func (r *recordingRemote) InsertSignup(ctx context.Context, email string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err, ok := r.failSignup[email]; ok {
		return err
	}
	r.signups = append(r.signups, email)
	return nil
}

func (r *recordingRemote) InsertScanLog(ctx context.Context, l *models.ScanLog) error {
	if r.blockScans != nil {
		<-r.blockScans
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.scanAttempts++
	if err, ok := r.failScan[l.QRCodeData]; ok {
		return err
	}
	r.scans = append(r.scans, l.QRCodeData)
	return nil
}

func newTestDrainer(t *testing.T, rc remote.Client) (*Drainer, *queue.Queue) {
	t.Helper()
	st, err := localdb.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	q := queue.New(st, nil)
	return New(q, rc, nil), q
}

func enqueueScan(t *testing.T, q *queue.Queue, qrData string) {
	t.Helper()
	_, err := q.Enqueue(context.Background(), queue.ActionQRScan, &models.ScanLog{
		ID:            "scan-" + qrData,
		QRCodeData:    qrData,
		ScanTimestamp: time.Now().UTC(),
	})
	require.NoError(t, err)
}

// TestDrain_ReplaysInOrder tests FIFO replay of the queue snapshot.
func TestDrain_ReplaysInOrder(t *testing.T) {
	ctx := context.Background()
	rc := &recordingRemote{}
	d, q := newTestDrainer(t, rc)

	for _, qr := range []string{"first", "second", "third"} {
		enqueueScan(t, q, qr)
	}

	summary, err := d.Drain(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, summary.Attempted)
	assert.Equal(t, 3, summary.Confirmed)
	assert.Equal(t, 3, summary.Pruned)
	assert.Equal(t, []string{"first", "second", "third"}, rc.scans)

	depth, err := q.Depth(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, depth)
}

// TestDrain_PartialFailureKeepsFailedEntries tests that one failing entry
// neither blocks the batch nor gets lost.
func TestDrain_PartialFailureKeepsFailedEntries(t *testing.T) {
	ctx := context.Background()
	rc := &recordingRemote{
		failScan: map[string]error{
			"bad": remote.Transient(fmt.Errorf("flaky backend")),
		},
	}
	d, q := newTestDrainer(t, rc)

	enqueueScan(t, q, "ok1")
	enqueueScan(t, q, "bad")
	enqueueScan(t, q, "ok2")

	summary, err := d.Drain(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, summary.Attempted)
	assert.Equal(t, 2, summary.Confirmed)
	assert.Equal(t, []string{"ok1", "ok2"}, rc.scans)

	// The failed entry stays queued and succeeds next cycle
	entries, err := q.ListUnsynced(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 1)

	rc.failScan = nil
	summary, err = d.Drain(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Confirmed)
	assert.Equal(t, []string{"ok1", "ok2", "bad"}, rc.scans)
}

// TestDrain_CartActionsAreLocalAuthoritative tests that cart and wishlist
// entries confirm without any remote write.
func TestDrain_CartActionsAreLocalAuthoritative(t *testing.T) {
	ctx := context.Background()
	rc := &recordingRemote{}
	d, q := newTestDrainer(t, rc)

	_, err := q.Enqueue(ctx, queue.ActionAddToCart, queue.CartData{ProductID: "p1", Quantity: 2})
	require.NoError(t, err)
	_, err = q.Enqueue(ctx, queue.ActionRemoveFromWishlist, queue.WishlistData{ProductID: "p2"})
	require.NoError(t, err)

	summary, err := d.Drain(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, summary.Confirmed)
	assert.Equal(t, 2, summary.Pruned)
	assert.Empty(t, rc.scans)
	assert.Empty(t, rc.signups)
}

// TestDrain_ConflictCountsAsConfirmed tests that an already-applied write is
// retired, not retried forever.
func TestDrain_ConflictCountsAsConfirmed(t *testing.T) {
	ctx := context.Background()
	rc := &recordingRemote{
		failSignup: map[string]error{"dup@x.y": remote.ErrConflict},
	}
	d, q := newTestDrainer(t, rc)

	_, err := q.Enqueue(ctx, queue.ActionEmailSignup, queue.SignupData{Email: "dup@x.y"})
	require.NoError(t, err)

	summary, err := d.Drain(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Confirmed)

	depth, err := q.Depth(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, depth)
}

// TestDrain_RetiresScanForDeletedProduct tests that a scan whose product is
// gone remotely is retired instead of retried.
func TestDrain_RetiresScanForDeletedProduct(t *testing.T) {
	ctx := context.Background()
	rc := &recordingRemote{
		failScan: map[string]error{"orphan": remote.ErrNotFound},
	}
	d, q := newTestDrainer(t, rc)

	enqueueScan(t, q, "orphan")

	summary, err := d.Drain(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Confirmed)

	depth, err := q.Depth(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, depth)
}

// TestTryDrain_CoalescesOverlappingTriggers tests that a second trigger
// during a running drain is a no-op rather than a second pass.
func TestTryDrain_CoalescesOverlappingTriggers(t *testing.T) {
	ctx := context.Background()
	rc := &recordingRemote{blockScans: make(chan struct{})}
	d, q := newTestDrainer(t, rc)

	enqueueScan(t, q, "slow")

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, started := d.TryDrain(ctx)
		assert.True(t, started)
	}()

	// Wait for the first drain to be inside the remote call
	require.Eventually(t, func() bool {
		rc.mu.Lock()
		defer rc.mu.Unlock()
		return d.draining.Load()
	}, time.Second, 5*time.Millisecond)

	_, started := d.TryDrain(ctx)
	assert.False(t, started, "overlapping drain should coalesce")

	close(rc.blockScans)
	wg.Wait()

	rc.mu.Lock()
	attempts := rc.scanAttempts
	rc.mu.Unlock()
	assert.Equal(t, 1, attempts, "entry should be replayed exactly once")
}

// TestWatch_DrainsOnReconnect tests reconnect-triggered drains end to end:
// a scan recorded offline reaches the backend after the transition.
func TestWatch_DrainsOnReconnect(t *testing.T) {
	ctx := context.Background()
	rc := &recordingRemote{}
	d, q := newTestDrainer(t, rc)

	monitor := netmon.New(false)
	tracker := scan.New(rc, q, monitor, nil)

	logged, err := tracker.LogScan(ctx, "qr-offline", "p1", nil)
	require.NoError(t, err)
	assert.Nil(t, logged.SyncedAt, "offline scan should be queued, not pushed")

	unsubscribe := d.Watch(ctx, monitor)
	defer unsubscribe()

	// Going online triggers exactly one drain
	monitor.Set(true)

	require.Eventually(t, func() bool {
		depth, err := q.Depth(ctx)
		return err == nil && depth == 0
	}, 2*time.Second, 10*time.Millisecond)

	rc.mu.Lock()
	defer rc.mu.Unlock()
	assert.Equal(t, []string{"qr-offline"}, rc.scans)
}

// TestWatch_InitialOnlineStateDoesNotDrain tests that subscribing while
// already online replays nothing until a real transition happens.
func TestWatch_InitialOnlineStateDoesNotDrain(t *testing.T) {
	ctx := context.Background()
	rc := &recordingRemote{}
	d, q := newTestDrainer(t, rc)

	enqueueScan(t, q, "waiting")

	monitor := netmon.New(true)
	unsubscribe := d.Watch(ctx, monitor)
	defer unsubscribe()

	time.Sleep(50 * time.Millisecond)
	depth, err := q.Depth(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, depth, "initial state must not trigger a drain")
}
