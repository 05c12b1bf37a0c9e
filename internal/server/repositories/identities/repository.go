package identities

import (
	"context"

	"github.com/nodesk/idvault/internal/server/models"
)

type Repository interface {
	Create(ctx context.Context, identity *models.Identity) (*models.Identity, error)
	GetByID(ctx context.Context, id int64) (*models.Identity, error)

	// List returns every identity in id order. Encrypted fields cannot be
	// indexed, so equality lookups are full scans over this result.
	List(ctx context.Context) ([]*models.Identity, error)

	// ListPage returns identities newest-first for paged listings.
	ListPage(ctx context.Context, limit, offset int) ([]*models.Identity, error)

	Update(ctx context.Context, identity *models.Identity) (*models.Identity, error)

	// Delete removes the identity row and reports whether it existed.
	Delete(ctx context.Context, id int64) (bool, error)
}
