package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// ScanLog is a QR scan event destined for the backend's scan-log table.
// Scans taken offline carry IsOnline=false and are replayed by the sync
// engine; SyncedAt records when the backend confirmed the row.
type ScanLog struct {
	ID            string            `json:"id"`
	ProductID     string            `json:"product_id,omitempty"`
	QRCodeData    string            `json:"qr_code_data"`
	ScanTimestamp time.Time         `json:"scan_timestamp"`
	UserAgent     string            `json:"user_agent,omitempty"`
	IsOnline      bool              `json:"is_online"`
	SyncedAt      *time.Time        `json:"synced_at,omitempty"`
	Metadata      map[string]string `json:"metadata,omitempty"`
}

// Validate checks the fields a scan-log insert requires.
func (s *ScanLog) Validate() error {
	if s.QRCodeData == "" {
		return fmt.Errorf("qr_code_data is required")
	}
	if s.ScanTimestamp.IsZero() {
		return fmt.Errorf("scan_timestamp is required")
	}
	return nil
}

// SOPRecord is a generated hygiene procedure stored remotely and mirrored in
// the sops partition. Body holds the procedure document as produced by the
// sop package.
type SOPRecord struct {
	ID         string          `json:"id"`
	ProductID  string          `json:"product_id,omitempty"`
	FabricType string          `json:"fabric_type"`
	Body       json.RawMessage `json:"body"`
	CreatedAt  time.Time       `json:"created_at"`
}
