package tools

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/giantswarm/descope-store-mcp/catalog"
	"github.com/giantswarm/descope-store-mcp/oauth"
	"github.com/giantswarm/descope-store-mcp/providers"
	"github.com/giantswarm/descope-store-mcp/server"
)

type fakeCatalog struct {
	mu       sync.Mutex
	products map[string]*catalog.Product
	orders   []catalog.OrderRequest

	searchErr error
	getErr    error
	orderErr  error
	lastOpts  catalog.SearchOptions
}

func price(v float64) *catalog.Price {
	p := catalog.Price(v)
	return &p
}

func newFakeCatalog() *fakeCatalog {
	return &fakeCatalog{products: map[string]*catalog.Product{
		"1": {ID: "1", Title: "Trail Running Shoe", Description: "Grippy outsole", Price: price(89.5), Type: "shoes", InventoryQty: 4},
		"2": {ID: "2", Title: "Road Shoe", Description: "Light and fast", Price: price(120), Type: "shoes"},
		"3": {ID: "3", Title: "Rain Jacket", Description: "Good on the trail", Type: "outerwear",
			Variants: []catalog.Variant{{ID: "31", Title: "M", Price: 150, InventoryQty: 2}}},
	}}
}

func (f *fakeCatalog) SearchProducts(_ context.Context, opts catalog.SearchOptions) ([]catalog.Product, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastOpts = opts
	if f.searchErr != nil {
		return nil, f.searchErr
	}
	// Like the real API, ignore the parameters and return everything.
	var out []catalog.Product
	for _, id := range []string{"1", "2", "3"} {
		out = append(out, *f.products[id])
	}
	return out, nil
}

func (f *fakeCatalog) GetProduct(_ context.Context, id string) (*catalog.Product, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getErr != nil {
		return nil, f.getErr
	}
	p, ok := f.products[id]
	if !ok {
		return nil, catalog.ErrNotFound
	}
	return p, nil
}

func (f *fakeCatalog) CreateOrder(_ context.Context, req catalog.OrderRequest) (*catalog.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.orderErr != nil {
		return nil, f.orderErr
	}
	f.orders = append(f.orders, req)
	return &catalog.Order{ID: "9001", CustomerEmail: req.CustomerEmail, Status: "pending", TotalPrice: 179}, nil
}

func newTestTools(t *testing.T, opts Options) (*Tools, *fakeCatalog) {
	t.Helper()
	fc := newFakeCatalog()
	return New(fc, opts, slog.New(slog.NewTextHandler(io.Discard, nil))), fc
}

func callTool(t *testing.T, tools *Tools, ctx context.Context, name string, args map[string]any) *mcp.CallToolResult {
	t.Helper()
	var tool *mcpserver.ServerTool
	for _, st := range tools.ServerTools() {
		if st.Tool.Name == name {
			tool = &st
		}
	}
	require.NotNil(t, tool, "tool %s not registered", name)

	request := mcp.CallToolRequest{}
	request.Params.Name = name
	request.Params.Arguments = args
	result, err := tool.Handler(ctx, request)
	require.NoError(t, err)
	require.NotNil(t, result)
	return result
}

func resultText(t *testing.T, result *mcp.CallToolResult) string {
	t.Helper()
	require.NotEmpty(t, result.Content)
	text, ok := mcp.AsTextContent(result.Content[0])
	require.True(t, ok)
	return text.Text
}

func userContext(email string, scopes ...string) context.Context {
	ctx := oauth.ContextWithTokenInfo(context.Background(), &oauth.TokenInfo{ClientID: "mcp_client_x", Scopes: scopes})
	if email != "" {
		ctx = oauth.ContextWithUserInfo(ctx, &providers.UserInfo{ID: "u1", Email: email})
	}
	return ctx
}

func TestServerTools(t *testing.T) {
	tools, _ := newTestTools(t, Options{})

	var names []string
	for _, st := range tools.ServerTools() {
		names = append(names, st.Tool.Name)
		assert.NotEmpty(t, st.Tool.Description, st.Tool.Name)
	}
	assert.Equal(t, []string{ToolSearchProducts, ToolGetProduct, ToolCompareProducts, ToolCreateOrder}, names)

	// Registration must not panic.
	tools.Register(mcpserver.NewMCPServer("test", "0.0.0", mcpserver.WithToolCapabilities(false)))
}

func TestSearchProducts(t *testing.T) {
	tools, fc := newTestTools(t, Options{})
	ctx := context.Background()

	result := callTool(t, tools, ctx, ToolSearchProducts, map[string]any{"query": "trail", "category": "shoes"})
	require.False(t, result.IsError)
	text := resultText(t, result)
	assert.Contains(t, text, "Found 1 product(s)")
	assert.Contains(t, text, "Trail Running Shoe")
	assert.NotContains(t, text, "Rain Jacket")
	assert.Equal(t, catalog.SearchOptions{Query: "trail", Category: "shoes"}, fc.lastOpts)

	result = callTool(t, tools, ctx, ToolSearchProducts, map[string]any{"query": "trail"})
	text = resultText(t, result)
	assert.Contains(t, text, "Found 2 product(s)")
	assert.Contains(t, text, "$150.00", "variant price is shown when the product has none")

	result = callTool(t, tools, ctx, ToolSearchProducts, map[string]any{"query": "bicycle"})
	assert.Equal(t, `No products found matching "bicycle".`, resultText(t, result))

	result = callTool(t, tools, ctx, ToolSearchProducts, map[string]any{})
	assert.Contains(t, resultText(t, result), "Found 3 product(s)")
}

func TestGetProduct(t *testing.T) {
	tools, fc := newTestTools(t, Options{})
	ctx := context.Background()

	result := callTool(t, tools, ctx, ToolGetProduct, map[string]any{"id": "3"})
	require.False(t, result.IsError)
	text := resultText(t, result)
	assert.Contains(t, text, "# Rain Jacket")
	assert.Contains(t, text, "| M | 31 | $150.00 | 2 |")

	result = callTool(t, tools, ctx, ToolGetProduct, map[string]any{"id": "404"})
	assert.True(t, result.IsError)
	assert.Equal(t, "product 404 not found", resultText(t, result))

	result = callTool(t, tools, ctx, ToolGetProduct, map[string]any{})
	assert.True(t, result.IsError)

	fc.getErr = errors.New("dial tcp 10.0.0.7:443: connection refused")
	result = callTool(t, tools, ctx, ToolGetProduct, map[string]any{"id": "1"})
	assert.True(t, result.IsError)
	assert.Equal(t, upstreamFailureMessage, resultText(t, result))
	assert.NotContains(t, resultText(t, result), "10.0.0.7")
}

func TestCompareProducts(t *testing.T) {
	tools, _ := newTestTools(t, Options{})
	ctx := context.Background()

	result := callTool(t, tools, ctx, ToolCompareProducts, map[string]any{"product_ids": []any{"2", "1"}})
	require.False(t, result.IsError)
	text := resultText(t, result)
	assert.Contains(t, text, "| | Road Shoe | Trail Running Shoe |")
	assert.Contains(t, text, "| **Price** | $120.00 | $89.50 |")
	assert.Contains(t, text, "**Recommendation:** Road Shoe ($120.00)")

	result = callTool(t, tools, ctx, ToolCompareProducts, map[string]any{"product_ids": []any{"1"}})
	assert.True(t, result.IsError)

	result = callTool(t, tools, ctx, ToolCompareProducts, map[string]any{"product_ids": []any{"1", "nope"}})
	assert.True(t, result.IsError)
	assert.Equal(t, "product nope not found", resultText(t, result))
}

func TestCreateOrder(t *testing.T) {
	tools, fc := newTestTools(t, Options{EnforceScopes: true})
	ctx := userContext("buyer@example.com", server.ScopeProductsRead, server.ScopeOrdersWrite)

	result := callTool(t, tools, ctx, ToolCreateOrder, map[string]any{
		"items": []any{
			map[string]any{"product_id": "1", "quantity": 2},
			map[string]any{"product_id": 3, "variant_id": "31", "quantity": 1},
		},
	})
	require.False(t, result.IsError, resultText(t, result))
	assert.Contains(t, resultText(t, result), "**Order ID:** 9001")

	require.Len(t, fc.orders, 1)
	order := fc.orders[0]
	assert.Equal(t, "buyer@example.com", order.CustomerEmail, "email defaults to the signed-in user")
	assert.Equal(t, []catalog.OrderItem{
		{ProductID: "1", Quantity: 2},
		{ProductID: "3", VariantID: "31", Quantity: 1},
	}, order.Items)

	result = callTool(t, tools, ctx, ToolCreateOrder, map[string]any{
		"customer_email": "gift@example.com",
		"items":          []any{map[string]any{"product_id": "2", "quantity": 1}},
	})
	require.False(t, result.IsError)
	assert.Equal(t, "gift@example.com", fc.orders[1].CustomerEmail)
}

func TestCreateOrder_Validation(t *testing.T) {
	ctx := userContext("buyer@example.com", server.ScopeOrdersWrite)

	tests := []struct {
		name    string
		ctx     context.Context
		args    map[string]any
		wantMsg string
	}{
		{
			name:    "no items",
			args:    map[string]any{"items": []any{}},
			wantMsg: "an order needs at least one item",
		},
		{
			name:    "zero quantity",
			args:    map[string]any{"items": []any{map[string]any{"product_id": "1", "quantity": 0}}},
			wantMsg: "item 1: quantity must be at least 1",
		},
		{
			name:    "missing product id",
			args:    map[string]any{"items": []any{map[string]any{"quantity": 1}}},
			wantMsg: "item 1 has no product_id",
		},
		{
			name:    "unknown product",
			args:    map[string]any{"items": []any{map[string]any{"product_id": "1", "quantity": 1}, map[string]any{"product_id": "77", "quantity": 1}}},
			wantMsg: "product 77 not found",
		},
		{
			name:    "no email anywhere",
			ctx:     userContext("", server.ScopeOrdersWrite),
			args:    map[string]any{"items": []any{map[string]any{"product_id": "1", "quantity": 1}}},
			wantMsg: "customer_email is required",
		},
		{
			name:    "invalid email",
			args:    map[string]any{"customer_email": "not-an-email", "items": []any{map[string]any{"product_id": "1", "quantity": 1}}},
			wantMsg: `"not-an-email" is not a valid email address`,
		},
		{
			name:    "missing scope",
			ctx:     userContext("buyer@example.com", server.ScopeProductsRead),
			args:    map[string]any{"items": []any{map[string]any{"product_id": "1", "quantity": 1}}},
			wantMsg: "This action requires the orders:write scope.",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tools, fc := newTestTools(t, Options{EnforceScopes: true})
			callCtx := ctx
			if tt.ctx != nil {
				callCtx = tt.ctx
			}
			result := callTool(t, tools, callCtx, ToolCreateOrder, tt.args)
			assert.True(t, result.IsError)
			assert.Equal(t, tt.wantMsg, resultText(t, result))
			assert.Empty(t, fc.orders, "no order may be placed")
		})
	}
}

func TestCreateOrder_UpstreamFailure(t *testing.T) {
	tools, fc := newTestTools(t, Options{})
	fc.orderErr = &catalog.APIError{Operation: "create_order", StatusCode: 502, Body: "internal stack trace"}

	result := callTool(t, tools, context.Background(), ToolCreateOrder, map[string]any{
		"customer_email": "buyer@example.com",
		"items":          []any{map[string]any{"product_id": "1", "quantity": 1}},
	})
	assert.True(t, result.IsError)
	assert.Equal(t, upstreamFailureMessage, resultText(t, result))
}

func TestEnforceScopes(t *testing.T) {
	tools, _ := newTestTools(t, Options{EnforceScopes: true})

	result := callTool(t, tools, context.Background(), ToolSearchProducts, map[string]any{})
	assert.True(t, result.IsError, "no token on the context")

	result = callTool(t, tools, userContext("", server.ScopeProductsRead), ToolSearchProducts, map[string]any{})
	assert.False(t, result.IsError)

	result = callTool(t, tools, userContext("", server.ScopeOrdersWrite), ToolGetProduct, map[string]any{"id": "1"})
	assert.True(t, result.IsError)
	assert.Equal(t, "This action requires the products:read scope.", resultText(t, result))
}
