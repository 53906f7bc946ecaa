package tools

import (
	"context"
	"fmt"
	"net/mail"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/giantswarm/descope-store-mcp/catalog"
	"github.com/giantswarm/descope-store-mcp/oauth"
)

type orderArguments struct {
	CustomerEmail string `json:"customer_email"`
	Items         []struct {
		ProductID catalog.ID `json:"product_id"`
		VariantID catalog.ID `json:"variant_id"`
		Quantity  int        `json:"quantity"`
	} `json:"items"`
}

func (t *Tools) handleCreateOrder(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var args orderArguments
	if err := bindArguments(request, &args); err != nil {
		return mcp.NewToolResultError("invalid order: items must be a list of {product_id, variant_id?, quantity}"), nil
	}
	if len(args.Items) == 0 {
		return mcp.NewToolResultError("an order needs at least one item"), nil
	}

	email := strings.TrimSpace(args.CustomerEmail)
	if email == "" {
		if user, ok := oauth.UserInfoFromContext(ctx); ok {
			email = user.Email
		}
	}
	if email == "" {
		return mcp.NewToolResultError("customer_email is required"), nil
	}
	if _, err := mail.ParseAddress(email); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("%q is not a valid email address", email)), nil
	}

	req := catalog.OrderRequest{CustomerEmail: email}
	ids := make([]string, 0, len(args.Items))
	for i, item := range args.Items {
		if strings.TrimSpace(string(item.ProductID)) == "" {
			return mcp.NewToolResultError(fmt.Sprintf("item %d has no product_id", i+1)), nil
		}
		if item.Quantity < 1 {
			return mcp.NewToolResultError(fmt.Sprintf("item %d: quantity must be at least 1", i+1)), nil
		}
		req.Items = append(req.Items, catalog.OrderItem{
			ProductID: item.ProductID,
			VariantID: item.VariantID,
			Quantity:  item.Quantity,
		})
		ids = append(ids, string(item.ProductID))
	}

	// Every product must exist before the order is placed.
	if _, failedID, err := t.fetchProducts(ctx, ids); err != nil {
		return t.upstreamError(ToolCreateOrder, failedID, err), nil
	}

	order, err := t.catalog.CreateOrder(ctx, req)
	if err != nil {
		return t.upstreamError(ToolCreateOrder, "", err), nil
	}

	t.logger.Info("Order created",
		"order_id", string(order.ID),
		"items", len(req.Items))
	return mcp.NewToolResultText(formatOrder(order)), nil
}
