package tools

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"golang.org/x/sync/errgroup"

	"github.com/giantswarm/descope-store-mcp/catalog"
)

// maxParallelFetches bounds concurrent product lookups per tool call.
const maxParallelFetches = 4

func (t *Tools) handleSearchProducts(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	queryText := strings.TrimSpace(request.GetString("query", ""))
	category := strings.TrimSpace(request.GetString("category", ""))

	products, err := t.catalog.SearchProducts(ctx, catalog.SearchOptions{Query: queryText, Category: category})
	if err != nil {
		return t.upstreamError(ToolSearchProducts, "", err), nil
	}
	products = catalog.FilterProducts(products, queryText, category)

	return mcp.NewToolResultText(formatProductList(products, queryText, category)), nil
}

func (t *Tools) handleGetProduct(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := request.RequireString("id")
	if err != nil || strings.TrimSpace(id) == "" {
		return mcp.NewToolResultError("id is required"), nil
	}
	id = strings.TrimSpace(id)

	product, err := t.catalog.GetProduct(ctx, id)
	if err != nil {
		return t.upstreamError(ToolGetProduct, id, err), nil
	}
	return mcp.NewToolResultText(formatProduct(product)), nil
}

func (t *Tools) handleCompareProducts(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var ids []string
	for _, id := range request.GetStringSlice("product_ids", nil) {
		if id = strings.TrimSpace(id); id != "" {
			ids = append(ids, id)
		}
	}
	if len(ids) < 2 {
		return mcp.NewToolResultError("at least two product_ids are required to compare"), nil
	}

	products, failedID, err := t.fetchProducts(ctx, ids)
	if err != nil {
		return t.upstreamError(ToolCompareProducts, failedID, err), nil
	}
	return mcp.NewToolResultText(formatComparison(products)), nil
}

// fetchProducts looks up ids concurrently, preserving order. On failure it
// returns the ID whose lookup failed first.
func (t *Tools) fetchProducts(ctx context.Context, ids []string) ([]*catalog.Product, string, error) {
	products := make([]*catalog.Product, len(ids))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxParallelFetches)

	for i, id := range ids {
		g.Go(func() error {
			p, err := t.catalog.GetProduct(gctx, id)
			if err != nil {
				return &productFetchError{id: id, err: err}
			}
			products[i] = p
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		var fetchErr *productFetchError
		if errors.As(err, &fetchErr) {
			return nil, fetchErr.id, fetchErr.err
		}
		return nil, "", err
	}
	return products, "", nil
}

type productFetchError struct {
	id  string
	err error
}

func (e *productFetchError) Error() string {
	return fmt.Sprintf("product %s: %v", e.id, e.err)
}

func (e *productFetchError) Unwrap() error {
	return e.err
}
