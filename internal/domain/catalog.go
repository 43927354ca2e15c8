package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// AllCategoryName is the synthetic category that matches every product.
const AllCategoryName = "All"

// AllCategoryID identifies the synthetic "All" category. It is never persisted.
const AllCategoryID = "all"

// Product is a single catalog image entry.
type Product struct {
	ID string
	// Name is the opaque unique identifier of the upload. Legacy entries encode "<category>--<file>".
	Name             string
	Category         string
	ImageURL         string
	OriginalFileName string
	FileSize         int64
	FileType         string
	UploadedAt       time.Time
	UploadedBy       string
	Description      string
	Price            *decimal.Decimal
}

// Key returns the identifier a shopper uses to select or favorite the product.
func (p Product) Key() string {
	if p.ImageURL != "" {
		return p.ImageURL
	}
	return p.Name
}

// MatchesKey reports whether key addresses this product by image URL or name.
func (p Product) MatchesKey(key string) bool {
	return key != "" && (key == p.ImageURL || key == p.Name)
}

// Category groups products by label.
type Category struct {
	ID   string
	Name string
}

// AllCategory returns the synthetic category placed first in every category list.
func AllCategory() Category {
	return Category{ID: AllCategoryID, Name: AllCategoryName}
}

// AdminContact is the WhatsApp recipient for share links.
type AdminContact struct {
	UserID string
	Phone  string
}
