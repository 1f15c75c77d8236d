// Package scan records QR scan events against garments.
//
// A scan taken while online goes straight to the backend's scan-log table; a
// scan taken offline, or one whose insert fails, is queued for the sync
// engine. Either way the event is never lost.
package scan

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/popclozet/popclozet/internal/models"
	"github.com/popclozet/popclozet/internal/netmon"
	"github.com/popclozet/popclozet/internal/queue"
	"github.com/popclozet/popclozet/internal/remote"
)

// Tracker logs scan events with offline fallback.
type Tracker struct {
	remote  remote.Client
	queue   *queue.Queue
	monitor *netmon.Monitor
	logger  *log.Logger

	// UserAgent identifies the scanning device in logged events.
	UserAgent string
}

// New creates a Tracker. If logger is nil, a default stderr logger is used.
func New(rc remote.Client, q *queue.Queue, m *netmon.Monitor, logger *log.Logger) *Tracker {
	if logger == nil {
		logger = log.New(os.Stderr, "[scan] ", log.LstdFlags)
	}
	return &Tracker{remote: rc, queue: q, monitor: m, logger: logger}
}

// LogScan records one scan of qrData, optionally tied to a product. The
// returned event has SyncedAt set when the backend confirmed it directly;
// a nil SyncedAt means it is queued for the next drain.
//
// The scan id is generated client-side so a replay of the same event is
// recognizable as a duplicate by the backend.
func (t *Tracker) LogScan(ctx context.Context, qrData, productID string, metadata map[string]string) (*models.ScanLog, error) {
	scan := &models.ScanLog{
		ID:            uuid.NewString(),
		ProductID:     productID,
		QRCodeData:    qrData,
		ScanTimestamp: time.Now().UTC(),
		UserAgent:     t.UserAgent,
		IsOnline:      t.monitor.Online(),
		Metadata:      metadata,
	}

	if scan.IsOnline && t.remote != nil {
		now := time.Now().UTC()
		scan.SyncedAt = &now
		err := t.remote.InsertScanLog(ctx, scan)
		if err == nil {
			return scan, nil
		}
		// The insert failing does not make the scan droppable.
		t.logger.Printf("Scan insert failed, queueing for sync: %v", err)
		scan.SyncedAt = nil
	}

	if _, err := t.queue.Enqueue(ctx, queue.ActionQRScan, scan); err != nil {
		return nil, fmt.Errorf("failed to queue scan event: %w", err)
	}
	return scan, nil
}
