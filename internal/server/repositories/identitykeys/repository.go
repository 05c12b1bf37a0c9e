package identitykeys

import (
	"context"

	"github.com/nodesk/idvault/internal/server/models"
)

type Repository interface {
	Create(ctx context.Context, key *models.IdentityKey) (*models.IdentityKey, error)
	GetByIdentityID(ctx context.Context, identityID int64) (*models.IdentityKey, error)

	// DeleteByIdentityID removes the key row and reports whether one
	// existed. Deleting the key is the crypto-shred: the identity's
	// ciphertext becomes permanently unreadable.
	DeleteByIdentityID(ctx context.Context, identityID int64) (bool, error)
}
