package firestore

import (
	"context"
	"errors"

	"cloud.google.com/go/firestore"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	domain "github.com/nitu-designer/lehangas/internal/domain"
	pfirestore "github.com/nitu-designer/lehangas/internal/platform/firestore"
	"github.com/nitu-designer/lehangas/internal/repositories"
)

const (
	userCollection = "users"
	adminRole      = "ADMIN"
)

type userDocument struct {
	Role   string `firestore:"role"`
	Number string `firestore:"number"`
}

// AdminContactRepository finds the admin user whose number receives WhatsApp shares.
type AdminContactRepository struct {
	base *pfirestore.BaseRepository[userDocument]
}

var _ repositories.AdminContactRepository = (*AdminContactRepository)(nil)

func NewAdminContactRepository(provider *pfirestore.Provider) (*AdminContactRepository, error) {
	if provider == nil {
		return nil, errors.New("admin contact repository requires firestore provider")
	}
	return &AdminContactRepository{
		base: pfirestore.NewBaseRepository[userDocument](provider, userCollection, nil, nil),
	}, nil
}

// FindAdmin returns the first user with role ADMIN.
func (r *AdminContactRepository) FindAdmin(ctx context.Context) (domain.AdminContact, error) {
	docs, err := r.base.Query(ctx, func(q firestore.Query) firestore.Query {
		return q.Where("role", "==", adminRole).Limit(1)
	})
	if err != nil {
		return domain.AdminContact{}, err
	}
	if len(docs) == 0 {
		return domain.AdminContact{}, pfirestore.WrapError("users.findAdmin", status.Error(codes.NotFound, "no admin user"))
	}
	return domain.AdminContact{UserID: docs[0].ID, Phone: docs[0].Data.Number}, nil
}
