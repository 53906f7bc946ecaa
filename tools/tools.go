package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/giantswarm/descope-store-mcp/catalog"
	"github.com/giantswarm/descope-store-mcp/instrumentation"
	"github.com/giantswarm/descope-store-mcp/oauth"
	"github.com/giantswarm/descope-store-mcp/server"
)

// Tool names.
const (
	ToolSearchProducts  = "search_products"
	ToolGetProduct      = "get_product"
	ToolCompareProducts = "compare_products"
	ToolCreateOrder     = "create_order"
)

// upstreamFailureMessage is the only detail callers get about store API
// failures.
const upstreamFailureMessage = "The store is unavailable right now. Please try again later."

// Catalog is the store API as seen by the tools.
type Catalog interface {
	SearchProducts(ctx context.Context, opts catalog.SearchOptions) ([]catalog.Product, error)
	GetProduct(ctx context.Context, id string) (*catalog.Product, error)
	CreateOrder(ctx context.Context, req catalog.OrderRequest) (*catalog.Order, error)
}

// Options configures the tool set.
type Options struct {
	// EnforceScopes requires a bearer token with the tool's scope on the
	// request context. Enable it whenever tools are served behind the OAuth
	// gate; stdio serving has no token and leaves it off.
	EnforceScopes bool
}

// Tools holds the store tool handlers.
type Tools struct {
	catalog Catalog
	logger  *slog.Logger
	metrics *instrumentation.Metrics
	opts    Options
}

// New creates the tool set.
func New(c Catalog, opts Options, logger *slog.Logger) *Tools {
	if logger == nil {
		logger = slog.Default()
	}
	return &Tools{catalog: c, logger: logger, opts: opts}
}

// SetInstrumentation enables tool call metrics.
func (t *Tools) SetInstrumentation(inst *instrumentation.Instrumentation) {
	if inst != nil {
		t.metrics = inst.Metrics()
	}
}

// Register adds every store tool to s.
func (t *Tools) Register(s *mcpserver.MCPServer) {
	s.AddTools(t.ServerTools()...)
}

// ServerTools returns the store tools with their scoped, instrumented
// handlers.
func (t *Tools) ServerTools() []mcpserver.ServerTool {
	searchTool := mcp.NewTool(ToolSearchProducts,
		mcp.WithDescription("Search the store catalog. Matches the query against product titles and descriptions, optionally restricted to a category."),
		mcp.WithString("query",
			mcp.Description("Text to look for in product titles and descriptions"),
		),
		mcp.WithString("category",
			mcp.Description("Product type to restrict results to, e.g. shoes"),
		),
	)

	getTool := mcp.NewTool(ToolGetProduct,
		mcp.WithDescription("Get the full details of a product by its ID"),
		mcp.WithString("id",
			mcp.Required(),
			mcp.Description("Product ID"),
		),
	)

	compareTool := mcp.NewTool(ToolCompareProducts,
		mcp.WithDescription("Compare two or more products side by side"),
		mcp.WithArray("product_ids",
			mcp.Required(),
			mcp.Description("IDs of the products to compare (at least two)"),
			mcp.WithStringItems(),
		),
	)

	orderTool := mcp.NewTool(ToolCreateOrder,
		mcp.WithDescription("Place an order. The customer email defaults to the signed-in user's email."),
		mcp.WithString("customer_email",
			mcp.Description("Email address for the order confirmation"),
		),
		mcp.WithArray("items",
			mcp.Required(),
			mcp.Description("Order lines"),
			mcp.Items(map[string]any{
				"type": "object",
				"properties": map[string]any{
					"product_id": map[string]any{"type": "string", "description": "Product ID"},
					"variant_id": map[string]any{"type": "string", "description": "Variant ID, when the product has variants"},
					"quantity":   map[string]any{"type": "integer", "minimum": 1, "description": "Quantity, at least 1"},
				},
				"required": []string{"product_id", "quantity"},
			}),
		),
	)

	return []mcpserver.ServerTool{
		{Tool: searchTool, Handler: t.instrumented(ToolSearchProducts, server.ScopeProductsRead, t.handleSearchProducts)},
		{Tool: getTool, Handler: t.instrumented(ToolGetProduct, server.ScopeProductsRead, t.handleGetProduct)},
		{Tool: compareTool, Handler: t.instrumented(ToolCompareProducts, server.ScopeProductsRead, t.handleCompareProducts)},
		{Tool: orderTool, Handler: t.instrumented(ToolCreateOrder, server.ScopeOrdersWrite, t.handleCreateOrder)},
	}
}

// instrumented enforces the tool scope and records the call.
func (t *Tools) instrumented(name, scope string, fn mcpserver.ToolHandlerFunc) mcpserver.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		start := time.Now()

		if t.opts.EnforceScopes {
			info, ok := oauth.TokenInfoFromContext(ctx)
			if !ok || !info.HasScope(scope) {
				t.logger.Warn("Tool call without required scope", "tool", name, "scope", scope)
				t.recordToolCall(ctx, name, false, start)
				return mcp.NewToolResultError(fmt.Sprintf("This action requires the %s scope.", scope)), nil
			}
		}

		result, err := fn(ctx, request)
		t.recordToolCall(ctx, name, err == nil && result != nil && !result.IsError, start)
		return result, err
	}
}

func (t *Tools) recordToolCall(ctx context.Context, name string, success bool, start time.Time) {
	if t.metrics == nil {
		return
	}
	t.metrics.RecordToolCall(ctx, name, success, float64(time.Since(start).Microseconds())/1000)
}

// upstreamError logs err and returns the generic tool error. Unknown
// products are reported by ID instead.
func (t *Tools) upstreamError(tool string, productID string, err error) *mcp.CallToolResult {
	if errors.Is(err, catalog.ErrNotFound) && productID != "" {
		return mcp.NewToolResultError(fmt.Sprintf("product %s not found", productID))
	}
	t.logger.Error("Store API call failed", "tool", tool, "product_id", productID, "error", err)
	return mcp.NewToolResultError(upstreamFailureMessage)
}

// bindArguments decodes the tool arguments into v.
func bindArguments(request mcp.CallToolRequest, v any) error {
	data, err := json.Marshal(request.GetArguments())
	if err != nil {
		return err
	}
	return json.Unmarshal(data, v)
}
