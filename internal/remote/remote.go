// Package remote is the client for the hosted PopClozet backend.
//
// The backend is a PostgREST-style service: tables are exposed under
// /rest/v1/<table> and rows travel as JSON. This package only defines the
// client contract and an HTTP implementation; the offline engine treats it as
// an external collaborator and never assumes a call will succeed.
package remote

import (
	"context"

	"github.com/popclozet/popclozet/internal/models"
)

// ProductFilter narrows ListProducts. Zero-value fields are not applied.
type ProductFilter struct {
	Gender        models.Gender
	Event         models.EventCategory
	OnlyAvailable bool
}

// Client is the backend surface the offline engine consumes.
//
// Implementations must map failures onto the package's error taxonomy:
// ErrNotFound, ErrConflict, ErrPermission, and transient errors recognized by
// IsTransient. Write operations are expected to be safe to replay (upsert
// semantics) because the mutation queue only guarantees at-least-once
// delivery.
type Client interface {
	// ListProducts returns the catalog rows matching filter.
	ListProducts(ctx context.Context, filter ProductFilter) ([]models.Product, error)

	// GetProduct returns a single product or ErrNotFound.
	GetProduct(ctx context.Context, id string) (*models.Product, error)

	// UpsertProduct inserts or replaces a product row.
	UpsertProduct(ctx context.Context, p *models.Product) error

	// InsertScanLog records a QR scan event. Replaying the same scan id
	// must not create a duplicate row.
	InsertScanLog(ctx context.Context, log *models.ScanLog) error

	// InsertSignup records an email signup. A duplicate email returns
	// ErrConflict.
	InsertSignup(ctx context.Context, email string) error

	// InsertSOP stores a generated hygiene procedure.
	InsertSOP(ctx context.Context, rec *models.SOPRecord) error
}
