package catalog

import "strings"

// FilterProducts keeps products whose title or description contains query
// (case-insensitive) and whose type equals category (case-insensitive).
// Empty criteria match everything.
func FilterProducts(products []Product, queryText, category string) []Product {
	q := strings.ToLower(strings.TrimSpace(queryText))
	cat := strings.TrimSpace(category)

	out := make([]Product, 0, len(products))
	for _, p := range products {
		if q != "" &&
			!strings.Contains(strings.ToLower(p.Title), q) &&
			!strings.Contains(strings.ToLower(p.Description), q) {
			continue
		}
		if cat != "" && !strings.EqualFold(p.Kind(), cat) {
			continue
		}
		out = append(out, p)
	}
	return out
}
