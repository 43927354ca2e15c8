package services

import (
	domain "github.com/nitu-designer/lehangas/internal/domain"
	"github.com/nitu-designer/lehangas/internal/platform/textutil"
)

// FilterProducts returns the products in category whose match field contains term, ignoring case.
// "All" (or an empty category) matches every category and an empty term matches every product.
// Input order is preserved and the input slice is never modified.
func FilterProducts(products []Product, category, term string) []Product {
	filtered := make([]Product, 0, len(products))
	for _, product := range products {
		if !inCategory(product, category) {
			continue
		}
		if !textutil.ContainsFold(matchField(product), term) {
			continue
		}
		filtered = append(filtered, product)
	}
	return filtered
}

func inCategory(product Product, category string) bool {
	return category == "" || category == domain.AllCategoryName || product.Category == category
}

// matchField is what shoppers search against: the image URL, which carries the uploaded file name.
func matchField(product Product) string {
	if product.ImageURL != "" {
		return product.ImageURL
	}
	return product.Name
}
