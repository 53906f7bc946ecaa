package catalog

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

// ID is a product, variant or order identifier. The store API emits both
// numeric and string identifiers; both decode to their decimal text.
type ID string

// UnmarshalJSON implements json.Unmarshaler.
func (id *ID) UnmarshalJSON(data []byte) error {
	if bytes.Equal(data, []byte("null")) {
		*id = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = ID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("invalid identifier %s: %w", data, err)
	}
	*id = ID(n.String())
	return nil
}

// Price is an amount in the store currency. It decodes from a JSON number or
// a decimal string ("19.99").
type Price float64

// UnmarshalJSON implements json.Unmarshaler.
func (p *Price) UnmarshalJSON(data []byte) error {
	if bytes.Equal(data, []byte("null")) {
		*p = 0
		return nil
	}
	raw := string(data)
	if len(data) > 0 && data[0] == '"' {
		if err := json.Unmarshal(data, &raw); err != nil {
			return err
		}
		if raw == "" {
			*p = 0
			return nil
		}
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return fmt.Errorf("invalid price %s: %w", data, err)
	}
	*p = Price(v)
	return nil
}

// String formats the price with two decimals.
func (p Price) String() string {
	return strconv.FormatFloat(float64(p), 'f', 2, 64)
}

// Variant is a purchasable option of a product.
type Variant struct {
	ID             ID     `json:"id"`
	Title          string `json:"title"`
	Price          Price  `json:"price"`
	CompareAtPrice *Price `json:"compare_at_price,omitempty"`
	SKU            string `json:"sku,omitempty"`
	InventoryQty   int    `json:"inventory_qty"`
}

// Product is a catalog entry.
type Product struct {
	ID             ID        `json:"id"`
	Title          string    `json:"title"`
	Description    string    `json:"description"`
	Body           string    `json:"body,omitempty"` // HTML
	Price          *Price    `json:"price,omitempty"`
	CompareAtPrice *Price    `json:"compare_at_price,omitempty"`
	Variants       []Variant `json:"variants,omitempty"`
	ImageURL       string    `json:"image_url,omitempty"`
	InventoryQty   int       `json:"inventory_qty"`
	Tags           []string  `json:"tags,omitempty"`
	Vendor         string    `json:"vendor,omitempty"`
	Type           string    `json:"type,omitempty"`
	Category       string    `json:"category,omitempty"`
	Handle         string    `json:"handle,omitempty"`
	SKU            string    `json:"sku,omitempty"`
	CreatedAt      string    `json:"created_at,omitempty"`
	UpdatedAt      string    `json:"updated_at,omitempty"`
}

// DisplayPrice returns the product price, falling back to the first variant.
func (p *Product) DisplayPrice() (Price, bool) {
	if p.Price != nil {
		return *p.Price, true
	}
	if len(p.Variants) > 0 {
		return p.Variants[0].Price, true
	}
	return 0, false
}

// Kind returns the product type, or the category when the API sends that
// field instead.
func (p *Product) Kind() string {
	if p.Type != "" {
		return p.Type
	}
	return p.Category
}

// OrderItem is one line of an order request.
type OrderItem struct {
	ProductID ID  `json:"product_id"`
	VariantID ID  `json:"variant_id,omitempty"`
	Quantity  int `json:"quantity"`
}

// OrderRequest is the body of POST /api/orders.
type OrderRequest struct {
	CustomerEmail string      `json:"customer_email"`
	Items         []OrderItem `json:"items"`
}

// OrderLine is an item of a created order.
type OrderLine struct {
	ProductID ID     `json:"product_id"`
	VariantID ID     `json:"variant_id,omitempty"`
	Title     string `json:"title,omitempty"`
	Quantity  int    `json:"quantity"`
	Price     Price  `json:"price"`
}

// Order is a created order.
type Order struct {
	ID            ID          `json:"id"`
	CustomerEmail string      `json:"customer_email"`
	Status        string      `json:"status"`
	TotalPrice    Price       `json:"total_price"`
	Items         []OrderLine `json:"items"`
	CreatedAt     string      `json:"created_at,omitempty"`
}
