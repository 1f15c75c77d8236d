package remote

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/popclozet/popclozet/internal/models"
)

func testClient(t *testing.T, handler http.HandlerFunc) *HTTPClient {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewHTTPClient(HTTPConfig{BaseURL: srv.URL, APIKey: "test-key"})
}

// TestListProducts_BuildsFilterQuery tests the query syntax sent upstream
func TestListProducts_BuildsFilterQuery(t *testing.T) {
	var gotQuery map[string][]string
	client := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.Query()
		if r.Header.Get("apikey") != "test-key" {
			t.Errorf("apikey header = %q, want test-key", r.Header.Get("apikey"))
		}
		if r.Header.Get("Authorization") != "Bearer test-key" {
			t.Errorf("Authorization header = %q", r.Header.Get("Authorization"))
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[{"id":"p1","name":"Blazer","price":100,"gender":"mens","event_category":"formal","is_available":true}]`))
	})

	products, err := client.ListProducts(context.Background(), ProductFilter{
		Gender:        models.GenderMens,
		Event:         models.EventFormal,
		OnlyAvailable: true,
	})
	if err != nil {
		t.Fatalf("ListProducts() failed: %v", err)
	}
	if len(products) != 1 || products[0].ID != "p1" {
		t.Errorf("products = %+v, want one with id p1", products)
	}

	checks := map[string]string{
		"gender":         "eq.mens",
		"event_category": "eq.formal",
		"is_available":   "eq.true",
	}
	for k, want := range checks {
		if got := gotQuery[k]; len(got) != 1 || got[0] != want {
			t.Errorf("query %s = %v, want %q", k, got, want)
		}
	}
}

// TestGetProduct_EmptyResultIsNotFound tests the empty-array not-found case
func TestGetProduct_EmptyResultIsNotFound(t *testing.T) {
	client := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[]`))
	})

	_, err := client.GetProduct(context.Background(), "ghost")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

// TestStatusError_Mapping tests mapping of HTTP statuses onto the error
// taxonomy
func TestStatusError_Mapping(t *testing.T) {
	tests := []struct {
		status    int
		sentinel  error
		transient bool
	}{
		{http.StatusNotFound, ErrNotFound, false},
		{http.StatusNotAcceptable, ErrNotFound, false},
		{http.StatusConflict, ErrConflict, false},
		{http.StatusUnauthorized, ErrPermission, false},
		{http.StatusForbidden, ErrPermission, false},
		{http.StatusInternalServerError, nil, true},
		{http.StatusServiceUnavailable, nil, true},
	}

	for _, tt := range tests {
		client := testClient(t, func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "nope", tt.status)
		})

		err := client.InsertSignup(context.Background(), "a@b.c")
		if err == nil {
			t.Fatalf("status %d: expected error", tt.status)
		}
		if tt.sentinel != nil && !errors.Is(err, tt.sentinel) {
			t.Errorf("status %d: err = %v, want %v", tt.status, err, tt.sentinel)
		}
		if IsTransient(err) != tt.transient {
			t.Errorf("status %d: IsTransient = %v, want %v", tt.status, IsTransient(err), tt.transient)
		}
	}
}

// TestDo_NetworkErrorIsTransient tests that connection failures are retryable
func TestDo_NetworkErrorIsTransient(t *testing.T) {
	client := NewHTTPClient(HTTPConfig{
		BaseURL: "http://127.0.0.1:1", // nothing listens here
		APIKey:  "k",
		Timeout: 500 * time.Millisecond,
	})

	err := client.InsertSignup(context.Background(), "a@b.c")
	if err == nil {
		t.Fatal("expected error")
	}
	if !IsTransient(err) {
		t.Errorf("network error should be transient, got %v", err)
	}
}

// TestUpsertProduct_SendsMergePrefer tests the duplicate-safe write header
func TestUpsertProduct_SendsMergePrefer(t *testing.T) {
	var gotPrefer string
	client := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotPrefer = r.Header.Get("Prefer")
		w.WriteHeader(http.StatusCreated)
	})

	p := &models.Product{ID: "p1", Name: "Blazer", Price: 100, Gender: models.GenderMens, Event: models.EventFormal}
	if err := client.UpsertProduct(context.Background(), p); err != nil {
		t.Fatalf("UpsertProduct() failed: %v", err)
	}
	if gotPrefer != "resolution=merge-duplicates" {
		t.Errorf("Prefer = %q, want resolution=merge-duplicates", gotPrefer)
	}
}

// TestPing tests reachability checks
func TestPing(t *testing.T) {
	ok := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	if err := ok.Ping(context.Background()); err != nil {
		t.Errorf("Ping() against healthy backend failed: %v", err)
	}

	down := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})
	if err := down.Ping(context.Background()); err == nil {
		t.Error("Ping() against 5xx backend should fail")
	}
}
