package roles

import (
	"context"

	"github.com/nodesk/idvault/internal/server/models"
)

type Repository interface {
	GetByID(ctx context.Context, id int64) (*models.Role, error)
	GetByName(ctx context.Context, name string) (*models.Role, error)
}
