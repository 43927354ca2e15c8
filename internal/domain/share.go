package domain

import "time"

// ShareKind describes what was shared.
type ShareKind string

const (
	ShareKindSingle     ShareKind = "single"
	ShareKindMulti      ShareKind = "multi"
	ShareKindSharedPage ShareKind = "shared_page"
)

// ShareLink is a ready-to-open WhatsApp deep link.
type ShareLink struct {
	Kind      ShareKind
	Keys      []string
	ShareURLs []string
	Message   string
	Phone     string
	URL       string
}

// ShareEvent is the analytics record appended for every share. It is never read back by the service.
type ShareEvent struct {
	ID        string    `json:"id"`
	Kind      ShareKind `json:"kind"`
	Keys      []string  `json:"keys"`
	ShareURLs []string  `json:"shareUrls"`
	// Name is set for single and shared-page events.
	Name     string    `json:"name,omitempty"`
	SharedAt time.Time `json:"sharedAt"`
}
