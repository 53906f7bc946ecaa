package catalog

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/go-querystring/query"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/giantswarm/descope-store-mcp/instrumentation"
)

// DefaultTimeout bounds every store API call.
const DefaultTimeout = 10 * time.Second

// maxResponseSize bounds decoded response bodies.
const maxResponseSize = 8 << 20

// ErrNotFound is returned when the store API answers 404.
var ErrNotFound = errors.New("not found")

// APIError is a non-2xx store API response other than 404.
type APIError struct {
	Operation  string
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("store API %s failed with status %d: %s", e.Operation, e.StatusCode, e.Body)
}

// Config configures the store API client.
type Config struct {
	// BaseURL is the store API origin, e.g. https://store.example.com.
	BaseURL string

	// APIKey is sent as a bearer token when set.
	APIKey string

	// Timeout bounds each call. Default: DefaultTimeout.
	Timeout time.Duration

	// HTTPClient overrides the transport. Its Timeout is replaced by Timeout.
	HTTPClient *http.Client

	Logger *slog.Logger
}

// Client talks to the store API.
type Client struct {
	baseURL    *url.URL
	apiKey     string
	httpClient *http.Client
	logger     *slog.Logger

	tracer  trace.Tracer
	metrics *instrumentation.Metrics
}

// New creates a store API client.
func New(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, errors.New("store API base URL is required")
	}
	base, err := url.Parse(strings.TrimSuffix(cfg.BaseURL, "/"))
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("invalid store API base URL %q", cfg.BaseURL)
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	httpClient := &http.Client{Timeout: timeout}
	if cfg.HTTPClient != nil {
		c := *cfg.HTTPClient
		c.Timeout = timeout
		httpClient = &c
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Client{
		baseURL:    base,
		apiKey:     cfg.APIKey,
		httpClient: httpClient,
		logger:     logger,
		tracer:     noop.NewTracerProvider().Tracer("catalog"),
	}, nil
}

// SetInstrumentation enables tracing and metrics for store API calls.
func (c *Client) SetInstrumentation(inst *instrumentation.Instrumentation) {
	if inst == nil {
		return
	}
	c.tracer = inst.Tracer("catalog")
	c.metrics = inst.Metrics()
}

// SearchOptions are the query parameters of GET /api/products.
type SearchOptions struct {
	Query    string `url:"query,omitempty"`
	Category string `url:"category,omitempty"`
}

// SearchProducts lists products. The API may ignore the parameters, so
// callers that need exact semantics filter the result with FilterProducts.
func (c *Client) SearchProducts(ctx context.Context, opts SearchOptions) ([]Product, error) {
	params, err := query.Values(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to encode search parameters: %w", err)
	}

	var raw json.RawMessage
	if err := c.do(ctx, "search_products", http.MethodGet, "/api/products", params, nil, &raw); err != nil {
		return nil, err
	}
	return decodeProductList(raw)
}

// decodeProductList accepts a bare array or an object wrapping it in
// "products".
func decodeProductList(raw json.RawMessage) ([]Product, error) {
	raw = bytes.TrimSpace(raw)
	var products []Product
	if len(raw) > 0 && raw[0] == '[' {
		if err := json.Unmarshal(raw, &products); err != nil {
			return nil, fmt.Errorf("failed to decode products: %w", err)
		}
		return products, nil
	}

	var wrapped struct {
		Products []Product `json:"products"`
	}
	if err := json.Unmarshal(raw, &wrapped); err != nil {
		return nil, fmt.Errorf("failed to decode products: %w", err)
	}
	return wrapped.Products, nil
}

// GetProduct fetches a product by ID. It returns ErrNotFound for unknown IDs.
func (c *Client) GetProduct(ctx context.Context, id string) (*Product, error) {
	if strings.TrimSpace(id) == "" {
		return nil, fmt.Errorf("product id is required")
	}

	var raw json.RawMessage
	if err := c.do(ctx, "get_product", http.MethodGet, "/api/products/"+url.PathEscape(id), nil, nil, &raw); err != nil {
		return nil, err
	}

	var wrapped struct {
		Product *Product `json:"product"`
	}
	if err := json.Unmarshal(raw, &wrapped); err == nil && wrapped.Product != nil {
		return wrapped.Product, nil
	}
	var product Product
	if err := json.Unmarshal(raw, &product); err != nil {
		return nil, fmt.Errorf("failed to decode product: %w", err)
	}
	return &product, nil
}

// CreateOrder places an order.
func (c *Client) CreateOrder(ctx context.Context, req OrderRequest) (*Order, error) {
	var raw json.RawMessage
	if err := c.do(ctx, "create_order", http.MethodPost, "/api/orders", nil, req, &raw); err != nil {
		return nil, err
	}

	var wrapped struct {
		Order *Order `json:"order"`
	}
	if err := json.Unmarshal(raw, &wrapped); err == nil && wrapped.Order != nil {
		return wrapped.Order, nil
	}
	var order Order
	if err := json.Unmarshal(raw, &order); err != nil {
		return nil, fmt.Errorf("failed to decode order: %w", err)
	}
	return &order, nil
}

func (c *Client) do(ctx context.Context, operation, method, path string, params url.Values, body, out any) (err error) {
	ctx, span := c.tracer.Start(ctx, "catalog."+operation)
	defer span.End()
	span.SetAttributes(attribute.String("http.method", method), attribute.String("catalog.operation", operation))

	start := time.Now()
	status := 0
	defer func() {
		if c.metrics != nil {
			c.metrics.RecordCatalogAPICall(ctx, operation, status, float64(time.Since(start).Microseconds())/1000)
		}
		if err != nil && !errors.Is(err, ErrNotFound) {
			instrumentation.RecordError(span, err)
		}
	}()

	endpoint := c.baseURL.JoinPath(path)
	if len(params) > 0 {
		endpoint.RawQuery = params.Encode()
	}

	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode %s request: %w", operation, err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint.String(), reqBody)
	if err != nil {
		return fmt.Errorf("failed to build %s request: %w", operation, err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("store API %s request failed: %w", operation, err)
	}
	defer func() { _ = resp.Body.Close() }()
	status = resp.StatusCode

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return fmt.Errorf("failed to read store API %s response: %w", operation, err)
	}

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return ErrNotFound
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return &APIError{Operation: operation, StatusCode: resp.StatusCode, Body: truncateBody(data)}
	}

	c.logger.Debug("Store API call succeeded",
		"operation", operation,
		"status", resp.StatusCode,
		"duration_ms", time.Since(start).Milliseconds())

	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to decode store API %s response: %w", operation, err)
	}
	return nil
}

func truncateBody(data []byte) string {
	const limit = 256
	s := strings.TrimSpace(string(data))
	if len(s) > limit {
		return s[:limit] + "..."
	}
	return s
}
