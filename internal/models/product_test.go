package models

import (
	"strings"
	"testing"
)

// TestProductValidate tests the fields every catalog write requires
func TestProductValidate(t *testing.T) {
	valid := func() Product {
		return Product{
			ID:     "prod-1",
			Name:   "Velvet Blazer",
			Price:  120,
			Gender: GenderMens,
			Event:  EventFormal,
		}
	}

	tests := []struct {
		name    string
		mutate  func(*Product)
		wantErr string
	}{
		{"valid", func(p *Product) {}, ""},
		{"missing id", func(p *Product) { p.ID = "" }, "id is required"},
		{"missing name", func(p *Product) { p.Name = "" }, "name is required"},
		{"negative price", func(p *Product) { p.Price = -1 }, "price must not be negative"},
		{"unknown gender", func(p *Product) { p.Gender = "kids" }, "unknown gender category"},
		{"missing event", func(p *Product) { p.Event = "" }, "event_category is required"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := valid()
			tt.mutate(&p)
			err := p.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("Validate() failed: %v", err)
				}
				return
			}
			if err == nil {
				t.Fatal("Validate() should have failed")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() error = %q, want substring %q", err, tt.wantErr)
			}
		})
	}
}
