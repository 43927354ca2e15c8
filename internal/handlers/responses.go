package handlers

import (
	"time"

	"github.com/nitu-designer/lehangas/internal/services"
)

type productResponse struct {
	ID               string `json:"id"`
	Name             string `json:"name"`
	Key              string `json:"key"`
	Category         string `json:"category"`
	ImageURL         string `json:"imageUrl"`
	OriginalFileName string `json:"originalFileName,omitempty"`
	FileSize         int64  `json:"fileSize,omitempty"`
	FileType         string `json:"fileType,omitempty"`
	UploadedAt       string `json:"uploadedAt,omitempty"`
	UploadedBy       string `json:"uploadedBy,omitempty"`
	Description      string `json:"description,omitempty"`
	Price            string `json:"price,omitempty"`
	Selected         *bool  `json:"selected,omitempty"`
	Favorite         *bool  `json:"favorite,omitempty"`
}

func newProductResponse(p services.Product) productResponse {
	resp := productResponse{
		ID:               p.ID,
		Name:             p.Name,
		Key:              p.Key(),
		Category:         p.Category,
		ImageURL:         p.ImageURL,
		OriginalFileName: p.OriginalFileName,
		FileSize:         p.FileSize,
		FileType:         p.FileType,
		UploadedBy:       p.UploadedBy,
		Description:      p.Description,
	}
	if !p.UploadedAt.IsZero() {
		resp.UploadedAt = formatTime(p.UploadedAt)
	}
	if p.Price != nil {
		resp.Price = p.Price.StringFixed(2)
	}
	return resp
}

func newProductResponses(products []services.Product) []productResponse {
	out := make([]productResponse, 0, len(products))
	for _, p := range products {
		out = append(out, newProductResponse(p))
	}
	return out
}

type categoryResponse struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

func newCategoryResponses(categories []services.Category) []categoryResponse {
	out := make([]categoryResponse, 0, len(categories))
	for _, c := range categories {
		out = append(out, categoryResponse{ID: c.ID, Name: c.Name})
	}
	return out
}

type shareLinkResponse struct {
	Kind      string   `json:"kind"`
	Keys      []string `json:"keys"`
	ShareURLs []string `json:"shareUrls"`
	Message   string   `json:"message"`
	Phone     string   `json:"phone"`
	URL       string   `json:"url"`
}

func newShareLinkResponse(link services.ShareLink) shareLinkResponse {
	return shareLinkResponse{
		Kind:      string(link.Kind),
		Keys:      link.Keys,
		ShareURLs: link.ShareURLs,
		Message:   link.Message,
		Phone:     link.Phone,
		URL:       link.URL,
	}
}

type migrationItemResponse struct {
	Kind        string `json:"kind"`
	Source      string `json:"source"`
	Destination string `json:"destination"`
	State       string `json:"state"`
}

type migrationResponse struct {
	ID         string                  `json:"id"`
	CategoryID string                  `json:"categoryId"`
	From       string                  `json:"from"`
	TargetID   string                  `json:"targetId"`
	To         string                  `json:"to"`
	State      string                  `json:"state"`
	Cursor     int                     `json:"cursor"`
	Committed  int                     `json:"committedItems"`
	Items      []migrationItemResponse `json:"items"`
	Error      string                  `json:"error,omitempty"`
	CreatedAt  string                  `json:"createdAt"`
	UpdatedAt  string                  `json:"updatedAt"`
}

func newMigrationResponse(m services.CategoryMigration) migrationResponse {
	items := make([]migrationItemResponse, 0, len(m.Items))
	for _, item := range m.Items {
		items = append(items, migrationItemResponse{
			Kind:        string(item.Kind),
			Source:      item.Source,
			Destination: item.Destination,
			State:       string(item.State),
		})
	}
	return migrationResponse{
		ID:         m.ID,
		CategoryID: m.CategoryID,
		From:       m.CategoryName,
		TargetID:   m.TargetID,
		To:         m.TargetName,
		State:      string(m.State),
		Cursor:     m.Cursor,
		Committed:  m.CommittedItems(),
		Items:      items,
		Error:      m.Error,
		CreatedAt:  formatTime(m.CreatedAt),
		UpdatedAt:  formatTime(m.UpdatedAt),
	}
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}
