package roles

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/nodesk/idvault/internal/common"
	"github.com/nodesk/idvault/internal/dbx"
	"github.com/nodesk/idvault/internal/server/models"
)

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) GetByID(ctx context.Context, id int64) (*models.Role, error) {

	query := `SELECT role_id, role_name FROM roles WHERE role_id = $1`

	role := &models.Role{}
	err := r.db.QueryRowContext(ctx, query, id).Scan(&role.ID, &role.Name)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}

	return role, nil
}

func (r *PostgresRepository) GetByName(ctx context.Context, name string) (*models.Role, error) {

	query := `SELECT role_id, role_name FROM roles WHERE role_name = $1`

	role := &models.Role{}
	err := r.db.QueryRowContext(ctx, query, name).Scan(&role.ID, &role.Name)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}

	return role, nil
}
