package identitykeys

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/nodesk/idvault/internal/common"
	"github.com/nodesk/idvault/internal/dbx"
	"github.com/nodesk/idvault/internal/server/models"
)

const uniqueViolation = "23505"

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Create(ctx context.Context, key *models.IdentityKey) (*models.IdentityKey, error) {

	query :=
		`INSERT INTO identity_keys (identity_id, key_b64, iv_b64, algorithm)
		 VALUES ($1, $2, $3, $4)
		 RETURNING id, created_at
		 `

	err := r.db.QueryRowContext(ctx, query,
		key.IdentityID, key.KeyB64, key.IVB64, key.Algorithm).
		Scan(&key.ID, &key.CreatedAt)

	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			// identity_id is unique: at most one key per identity.
			return nil, common.ErrConflict
		}
		return nil, fmt.Errorf("db error: %w", err)
	}

	return key, nil
}

func (r *PostgresRepository) GetByIdentityID(ctx context.Context, identityID int64) (*models.IdentityKey, error) {

	query :=
		`SELECT id, identity_id, key_b64, iv_b64, algorithm, created_at
		   FROM identity_keys
		  WHERE identity_id = $1
		 `

	key := &models.IdentityKey{}
	err := r.db.QueryRowContext(ctx, query, identityID).Scan(
		&key.ID, &key.IdentityID, &key.KeyB64, &key.IVB64, &key.Algorithm, &key.CreatedAt)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}

	return key, nil
}

func (r *PostgresRepository) DeleteByIdentityID(ctx context.Context, identityID int64) (bool, error) {

	query := `DELETE FROM identity_keys WHERE identity_id = $1`

	res, err := r.db.ExecContext(ctx, query, identityID)
	if err != nil {
		return false, fmt.Errorf("db error: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("db error: %w", err)
	}

	return n > 0, nil
}
