package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/popclozet/popclozet/internal/models"
)

// Table names on the backend.
const (
	tableProducts = "products"
	tableScanLogs = "qr_scan_logs"
	tableSignups  = "email_signups"
	tableSOPs     = "hygiene_sops"
)

// HTTPClient talks to a PostgREST-style backend over HTTP.
type HTTPClient struct {
	baseURL string
	apiKey  string
	http    *http.Client
}

// HTTPConfig configures NewHTTPClient.
type HTTPConfig struct {
	// BaseURL is the backend root, e.g. https://xyz.popclozet.example
	BaseURL string

	// APIKey is sent as both the apikey header and bearer token.
	APIKey string

	// Timeout bounds every request (default: 15s). A timed-out call is
	// reported as a transient error.
	Timeout time.Duration
}

// NewHTTPClient creates a backend client. The returned client is safe for
// concurrent use.
func NewHTTPClient(cfg HTTPConfig) *HTTPClient {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &HTTPClient{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:  cfg.APIKey,
		http:    &http.Client{Timeout: timeout},
	}
}

// ListProducts implements Client.ListProducts.
func (c *HTTPClient) ListProducts(ctx context.Context, filter ProductFilter) ([]models.Product, error) {
	q := url.Values{}
	q.Set("select", "*")
	if filter.Gender != "" {
		q.Set("gender", "eq."+string(filter.Gender))
	}
	if filter.Event != "" {
		q.Set("event_category", "eq."+string(filter.Event))
	}
	if filter.OnlyAvailable {
		q.Set("is_available", "eq.true")
	}

	var products []models.Product
	if err := c.do(ctx, http.MethodGet, tableProducts, q, nil, &products); err != nil {
		return nil, err
	}
	return products, nil
}

// GetProduct implements Client.GetProduct.
func (c *HTTPClient) GetProduct(ctx context.Context, id string) (*models.Product, error) {
	q := url.Values{}
	q.Set("select", "*")
	q.Set("id", "eq."+id)

	var products []models.Product
	if err := c.do(ctx, http.MethodGet, tableProducts, q, nil, &products); err != nil {
		return nil, err
	}
	if len(products) == 0 {
		return nil, fmt.Errorf("product %s: %w", id, ErrNotFound)
	}
	return &products[0], nil
}

// UpsertProduct implements Client.UpsertProduct.
func (c *HTTPClient) UpsertProduct(ctx context.Context, p *models.Product) error {
	if err := p.Validate(); err != nil {
		return fmt.Errorf("invalid product: %w", err)
	}
	return c.do(ctx, http.MethodPost, tableProducts, nil, p, nil)
}

// InsertScanLog implements Client.InsertScanLog.
func (c *HTTPClient) InsertScanLog(ctx context.Context, log *models.ScanLog) error {
	if err := log.Validate(); err != nil {
		return fmt.Errorf("invalid scan log: %w", err)
	}
	return c.do(ctx, http.MethodPost, tableScanLogs, nil, log, nil)
}

// InsertSignup implements Client.InsertSignup.
func (c *HTTPClient) InsertSignup(ctx context.Context, email string) error {
	body := map[string]string{"email": email}
	return c.do(ctx, http.MethodPost, tableSignups, nil, body, nil)
}

// InsertSOP implements Client.InsertSOP.
func (c *HTTPClient) InsertSOP(ctx context.Context, rec *models.SOPRecord) error {
	return c.do(ctx, http.MethodPost, tableSOPs, nil, rec, nil)
}

// Ping checks backend reachability with a cheap request. Used by the
// connectivity probe; any error means unreachable.
func (c *HTTPClient) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, c.baseURL+"/rest/v1/", nil)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("apikey", c.apiKey)
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return Transient(err)
	}
	resp.Body.Close()

	if resp.StatusCode >= 500 {
		return Transient(fmt.Errorf("backend returned %s", resp.Status))
	}
	return nil
}

// do performs one request and maps the response onto the error taxonomy.
func (c *HTTPClient) do(ctx context.Context, method, table string, query url.Values, body, out any) error {
	u := c.baseURL + "/rest/v1/" + table
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request body: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, reader)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("apikey", c.apiKey)
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
		// Replays of queued writes must not create duplicate rows.
		req.Header.Set("Prefer", "resolution=merge-duplicates")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return Transient(err)
	}
	defer resp.Body.Close()

	if err := statusError(resp); err != nil {
		return err
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("failed to decode %s response: %w", table, err)
		}
	}
	return nil
}

// statusError maps non-2xx responses onto the error taxonomy.
func statusError(resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}

	// Read a bounded amount for the error message
	snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))

	switch {
	case resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusNotAcceptable:
		return fmt.Errorf("%w: %s", ErrNotFound, snippet)
	case resp.StatusCode == http.StatusConflict:
		return fmt.Errorf("%w: %s", ErrConflict, snippet)
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return fmt.Errorf("%w: %s", ErrPermission, snippet)
	case resp.StatusCode >= 500:
		return Transient(fmt.Errorf("backend returned %s: %s", resp.Status, snippet))
	default:
		return fmt.Errorf("backend returned %s: %s", resp.Status, snippet)
	}
}
