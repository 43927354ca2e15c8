package firestore

import (
	"context"
	"errors"
	"strings"
	"time"

	domain "github.com/nitu-designer/lehangas/internal/domain"
	pfirestore "github.com/nitu-designer/lehangas/internal/platform/firestore"
	"github.com/nitu-designer/lehangas/internal/repositories"
)

const defaultShareCollection = "shares"

// shareDocument keeps the field names existing share analytics already use.
type shareDocument struct {
	Type      string    `firestore:"type"`
	URLs      []string  `firestore:"urls,omitempty"`
	ShareURLs []string  `firestore:"shareUrls,omitempty"`
	URL       string    `firestore:"url,omitempty"`
	ShareURL  string    `firestore:"shareUrl,omitempty"`
	Name      string    `firestore:"name,omitempty"`
	SharedAt  time.Time `firestore:"sharedAt"`
}

// ShareEventRepository appends share analytics to Firestore.
type ShareEventRepository struct {
	base *pfirestore.BaseRepository[domain.ShareEvent]
}

var _ repositories.ShareEventRepository = (*ShareEventRepository)(nil)

// NewShareEventRepository binds the repository to collection (defaults to "shares").
func NewShareEventRepository(provider *pfirestore.Provider, collection string) (*ShareEventRepository, error) {
	if provider == nil {
		return nil, errors.New("share event repository requires firestore provider")
	}
	if strings.TrimSpace(collection) == "" {
		collection = defaultShareCollection
	}
	base := pfirestore.NewBaseRepository[domain.ShareEvent](provider, collection, encodeShareEvent, nil)
	return &ShareEventRepository{base: base}, nil
}

// Append writes the event under its id, or a generated id when empty.
func (r *ShareEventRepository) Append(ctx context.Context, event domain.ShareEvent) error {
	if strings.TrimSpace(event.ID) == "" {
		_, err := r.base.Create(ctx, event)
		return err
	}
	return r.base.Set(ctx, event.ID, event)
}

func encodeShareEvent(_ context.Context, event domain.ShareEvent) (any, error) {
	doc := shareDocument{
		Type:     string(event.Kind),
		Name:     event.Name,
		SharedAt: event.SharedAt.UTC(),
	}
	switch event.Kind {
	case domain.ShareKindMulti:
		doc.URLs = event.Keys
		doc.ShareURLs = event.ShareURLs
	default:
		if len(event.Keys) > 0 {
			doc.URL = event.Keys[0]
		}
		if len(event.ShareURLs) > 0 {
			doc.ShareURL = event.ShareURLs[0]
		}
	}
	return doc, nil
}
