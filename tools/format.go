package tools

import (
	"fmt"
	"strings"

	"github.com/giantswarm/descope-store-mcp/catalog"
)

func priceText(p *catalog.Product) string {
	price, ok := p.DisplayPrice()
	if !ok {
		return "n/a"
	}
	return "$" + price.String()
}

func stockText(p *catalog.Product) string {
	qty := p.InventoryQty
	for _, v := range p.Variants {
		qty += v.InventoryQty
	}
	if qty > 0 {
		return fmt.Sprintf("%d in stock", qty)
	}
	return "out of stock"
}

// cell makes s safe inside a Markdown table cell.
func cell(s string) string {
	s = strings.ReplaceAll(s, "|", `\|`)
	s = strings.ReplaceAll(s, "\n", " ")
	if s == "" {
		return "-"
	}
	return s
}

func formatProductList(products []catalog.Product, queryText, category string) string {
	var b strings.Builder

	criteria := []string{}
	if queryText != "" {
		criteria = append(criteria, fmt.Sprintf("matching %q", queryText))
	}
	if category != "" {
		criteria = append(criteria, fmt.Sprintf("in category %q", category))
	}
	suffix := ""
	if len(criteria) > 0 {
		suffix = " " + strings.Join(criteria, " ")
	}

	if len(products) == 0 {
		fmt.Fprintf(&b, "No products found%s.", suffix)
		return b.String()
	}

	fmt.Fprintf(&b, "## Found %d product(s)%s\n\n", len(products), suffix)
	for i := range products {
		p := &products[i]
		fmt.Fprintf(&b, "### %s\n", p.Title)
		fmt.Fprintf(&b, "- **ID:** %s\n", p.ID)
		fmt.Fprintf(&b, "- **Price:** %s\n", priceText(p))
		if kind := p.Kind(); kind != "" {
			fmt.Fprintf(&b, "- **Category:** %s\n", kind)
		}
		fmt.Fprintf(&b, "- **Availability:** %s\n", stockText(p))
		if p.Description != "" {
			fmt.Fprintf(&b, "\n%s\n", p.Description)
		}
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

func formatProduct(p *catalog.Product) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\n", p.Title)
	fmt.Fprintf(&b, "- **ID:** %s\n", p.ID)
	fmt.Fprintf(&b, "- **Price:** %s", priceText(p))
	if p.CompareAtPrice != nil {
		fmt.Fprintf(&b, " (was $%s)", p.CompareAtPrice.String())
	}
	b.WriteString("\n")
	if p.Vendor != "" {
		fmt.Fprintf(&b, "- **Vendor:** %s\n", p.Vendor)
	}
	if kind := p.Kind(); kind != "" {
		fmt.Fprintf(&b, "- **Category:** %s\n", kind)
	}
	if p.SKU != "" {
		fmt.Fprintf(&b, "- **SKU:** %s\n", p.SKU)
	}
	fmt.Fprintf(&b, "- **Availability:** %s\n", stockText(p))
	if len(p.Tags) > 0 {
		fmt.Fprintf(&b, "- **Tags:** %s\n", strings.Join(p.Tags, ", "))
	}
	if p.ImageURL != "" {
		fmt.Fprintf(&b, "\n![%s](%s)\n", p.Title, p.ImageURL)
	}
	if p.Description != "" {
		fmt.Fprintf(&b, "\n%s\n", p.Description)
	}

	if len(p.Variants) > 0 {
		b.WriteString("\n## Variants\n\n| Variant | ID | Price | Stock |\n|---|---|---|---|\n")
		for _, v := range p.Variants {
			fmt.Fprintf(&b, "| %s | %s | $%s | %d |\n", cell(v.Title), v.ID, v.Price.String(), v.InventoryQty)
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

// formatComparison renders a side-by-side table. The first product is the
// recommendation; there is no ranking.
func formatComparison(products []*catalog.Product) string {
	var b strings.Builder
	fmt.Fprintf(&b, "## Comparing %d products\n\n", len(products))

	b.WriteString("| |")
	for _, p := range products {
		fmt.Fprintf(&b, " %s |", cell(p.Title))
	}
	b.WriteString("\n|---|")
	for range products {
		b.WriteString("---|")
	}
	b.WriteString("\n")

	rows := []struct {
		label string
		value func(*catalog.Product) string
	}{
		{"ID", func(p *catalog.Product) string { return string(p.ID) }},
		{"Price", priceText},
		{"Category", func(p *catalog.Product) string { return p.Kind() }},
		{"Vendor", func(p *catalog.Product) string { return p.Vendor }},
		{"Availability", stockText},
		{"Tags", func(p *catalog.Product) string { return strings.Join(p.Tags, ", ") }},
	}
	for _, row := range rows {
		fmt.Fprintf(&b, "| **%s** |", row.label)
		for _, p := range products {
			fmt.Fprintf(&b, " %s |", cell(row.value(p)))
		}
		b.WriteString("\n")
	}

	fmt.Fprintf(&b, "\n**Recommendation:** %s (%s)", products[0].Title, priceText(products[0]))
	return b.String()
}

func formatOrder(o *catalog.Order) string {
	var b strings.Builder
	b.WriteString("## Order placed\n\n")
	fmt.Fprintf(&b, "- **Order ID:** %s\n", o.ID)
	if o.Status != "" {
		fmt.Fprintf(&b, "- **Status:** %s\n", o.Status)
	}
	fmt.Fprintf(&b, "- **Confirmation sent to:** %s\n", o.CustomerEmail)
	fmt.Fprintf(&b, "- **Total:** $%s\n", o.TotalPrice.String())

	if len(o.Items) > 0 {
		b.WriteString("\n| Product | Quantity | Price |\n|---|---|---|\n")
		for _, item := range o.Items {
			name := item.Title
			if name == "" {
				name = string(item.ProductID)
			}
			fmt.Fprintf(&b, "| %s | %d | $%s |\n", cell(name), item.Quantity, item.Price.String())
		}
	}
	return strings.TrimRight(b.String(), "\n")
}
