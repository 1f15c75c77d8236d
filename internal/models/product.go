// Package models defines the records shared between the local mirror, the
// mutation queue, and the remote backend client.
package models

import (
	"fmt"
	"time"
)

// Gender is the storefront's gender category.
type Gender string

const (
	GenderMens   Gender = "mens"
	GenderWomens Gender = "womens"
	GenderUnisex Gender = "unisex"
)

// EventCategory is the occasion a garment is rented for.
type EventCategory string

const (
	EventCasual   EventCategory = "casual"
	EventParty    EventCategory = "party"
	EventCocktail EventCategory = "cocktail"
	EventFormal   EventCategory = "formal"
	EventStreet   EventCategory = "street"
	EventVacation EventCategory = "vacation"
	EventWedding  EventCategory = "wedding"
	EventOffice   EventCategory = "office"
)

// Product is a rental catalog record. The same shape is stored in the local
// mirror and exchanged with the backend; CachedAt is only meaningful locally.
type Product struct {
	ID          string  `json:"id"`
	Name        string  `json:"name"`
	Description string  `json:"description,omitempty"`
	Price       float64 `json:"price"`
	RentalPrice float64 `json:"rental_price,omitempty"`

	Gender Gender        `json:"gender"`
	Event  EventCategory `json:"event_category"`

	ImageURL string   `json:"image_url,omitempty"`
	VideoURL string   `json:"video_url,omitempty"`
	Color    string   `json:"color,omitempty"`
	Sizes    []string `json:"sizes,omitempty"`

	Rating        float64 `json:"rating,omitempty"`
	StockQuantity int     `json:"stock_quantity,omitempty"`
	IsAvailable   bool    `json:"is_available"`

	// Hygiene tracking
	FabricType      string     `json:"fabric_type,omitempty"`
	FabricHint      string     `json:"fabric_hint,omitempty"`
	HygieneSOPID    string     `json:"hygiene_sop_id,omitempty"`
	RentalCount     int        `json:"rental_count,omitempty"`
	LastCleanedAt   *time.Time `json:"last_cleaned_at,omitempty"`
	ConditionStatus string     `json:"condition_status,omitempty"`

	CreatedAt time.Time `json:"created_at,omitempty"`
	UpdatedAt time.Time `json:"updated_at,omitempty"`

	// CachedAt is the local mirror's staleness stamp. It is set on every
	// cache write and never sent to the backend.
	CachedAt time.Time `json:"cached_at,omitempty"`
}

// Validate checks the fields every catalog write requires.
func (p *Product) Validate() error {
	if p.ID == "" {
		return fmt.Errorf("id is required")
	}
	if p.Name == "" {
		return fmt.Errorf("name is required")
	}
	if p.Price < 0 {
		return fmt.Errorf("price must not be negative (got %v)", p.Price)
	}
	switch p.Gender {
	case GenderMens, GenderWomens, GenderUnisex:
	default:
		return fmt.Errorf("unknown gender category %q", p.Gender)
	}
	if p.Event == "" {
		return fmt.Errorf("event_category is required")
	}
	return nil
}
