package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.Handler) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	c, err := New(Config{BaseURL: srv.URL + "/", APIKey: "store-key"})
	require.NoError(t, err)
	return c
}

func TestNew(t *testing.T) {
	_, err := New(Config{})
	assert.Error(t, err)

	_, err = New(Config{BaseURL: "not a url"})
	assert.Error(t, err)

	c, err := New(Config{BaseURL: "https://store.example.com"})
	require.NoError(t, err)
	assert.Equal(t, DefaultTimeout, c.httpClient.Timeout)

	c, err = New(Config{BaseURL: "https://store.example.com", Timeout: time.Second, HTTPClient: &http.Client{}})
	require.NoError(t, err)
	assert.Equal(t, time.Second, c.httpClient.Timeout)
}

func TestSearchProducts(t *testing.T) {
	var gotQuery, gotAuth string
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/products", r.URL.Path)
		gotQuery = r.URL.RawQuery
		gotAuth = r.Header.Get("Authorization")
		_, _ = w.Write([]byte(`[
			{"id": 101, "title": "Trail Shoe", "description": "Grippy", "price": "89.50", "type": "shoes"},
			{"id": "p-2", "title": "Rain Jacket", "variants": [{"id": 7, "title": "M", "price": 120}]}
		]`))
	}))

	products, err := c.SearchProducts(context.Background(), SearchOptions{Query: "trail run", Category: "shoes"})
	require.NoError(t, err)
	require.Len(t, products, 2)

	assert.Equal(t, "category=shoes&query=trail+run", gotQuery)
	assert.Equal(t, "Bearer store-key", gotAuth)

	assert.Equal(t, ID("101"), products[0].ID)
	price, ok := products[0].DisplayPrice()
	assert.True(t, ok)
	assert.Equal(t, "89.50", price.String())

	assert.Equal(t, ID("p-2"), products[1].ID)
	price, ok = products[1].DisplayPrice()
	assert.True(t, ok)
	assert.Equal(t, Price(120), price)
	assert.Equal(t, ID("7"), products[1].Variants[0].ID)
}

func TestSearchProducts_WrappedAndEmptyQuery(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Empty(t, r.URL.RawQuery)
		_, _ = w.Write([]byte(`{"products": [{"id": "a", "title": "A"}]}`))
	}))

	products, err := c.SearchProducts(context.Background(), SearchOptions{})
	require.NoError(t, err)
	require.Len(t, products, 1)
	assert.Equal(t, "A", products[0].Title)
}

func TestGetProduct(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/products/42":
			_, _ = w.Write([]byte(`{"id": 42, "title": "Mug", "price": 12}`))
		case "/api/products/wrapped":
			_, _ = w.Write([]byte(`{"product": {"id": "wrapped", "title": "Cap"}}`))
		case "/api/products/broken":
			w.WriteHeader(http.StatusBadGateway)
			_, _ = w.Write([]byte("upstream exploded"))
		default:
			http.NotFound(w, r)
		}
	}))
	ctx := context.Background()

	p, err := c.GetProduct(ctx, "42")
	require.NoError(t, err)
	assert.Equal(t, "Mug", p.Title)

	p, err = c.GetProduct(ctx, "wrapped")
	require.NoError(t, err)
	assert.Equal(t, "Cap", p.Title)

	_, err = c.GetProduct(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = c.GetProduct(ctx, "broken")
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusBadGateway, apiErr.StatusCode)
	assert.Equal(t, "get_product", apiErr.Operation)

	_, err = c.GetProduct(ctx, " ")
	assert.Error(t, err)
}

func TestCreateOrder(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/orders", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var req OrderRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "buyer@example.com", req.CustomerEmail)
		require.Len(t, req.Items, 1)
		assert.Equal(t, ID("42"), req.Items[0].ProductID)
		assert.Equal(t, 2, req.Items[0].Quantity)

		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"id": 9001, "customer_email": "buyer@example.com", "status": "pending", "total_price": "24.00",
			"items": [{"product_id": 42, "quantity": 2, "price": 12}]}`))
	}))

	order, err := c.CreateOrder(context.Background(), OrderRequest{
		CustomerEmail: "buyer@example.com",
		Items:         []OrderItem{{ProductID: "42", Quantity: 2}},
	})
	require.NoError(t, err)
	assert.Equal(t, ID("9001"), order.ID)
	assert.Equal(t, "pending", order.Status)
	assert.Equal(t, Price(24), order.TotalPrice)
}

func TestTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	t.Cleanup(srv.Close)

	c, err := New(Config{BaseURL: srv.URL, Timeout: 50 * time.Millisecond})
	require.NoError(t, err)

	_, err = c.GetProduct(context.Background(), "slow")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrNotFound)
}

func TestPriceUnmarshal(t *testing.T) {
	tests := []struct {
		in      string
		want    Price
		wantErr bool
	}{
		{in: `12`, want: 12},
		{in: `"19.99"`, want: 19.99},
		{in: `""`, want: 0},
		{in: `null`, want: 0},
		{in: `"free"`, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			var p Price
			err := json.Unmarshal([]byte(tt.in), &p)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.InDelta(t, float64(tt.want), float64(p), 1e-9)
		})
	}
}

func TestFilterProducts(t *testing.T) {
	products := []Product{
		{ID: "1", Title: "Trail Running Shoe", Type: "Shoes"},
		{ID: "2", Title: "Rain Jacket", Description: "Great for trail hikes", Category: "outerwear"},
		{ID: "3", Title: "Coffee Mug", Type: "kitchen"},
	}

	ids := func(ps []Product) []ID {
		var out []ID
		for _, p := range ps {
			out = append(out, p.ID)
		}
		return out
	}

	assert.Equal(t, []ID{"1", "2"}, ids(FilterProducts(products, "TRAIL", "")))
	assert.Equal(t, []ID{"1"}, ids(FilterProducts(products, "trail", "shoes")))
	assert.Equal(t, []ID{"2"}, ids(FilterProducts(products, "", "Outerwear")))
	assert.Len(t, FilterProducts(products, "", ""), 3)
	assert.Empty(t, FilterProducts(products, "bicycle", ""))
}
