package identities

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

const identityColumns = `id, email_ct, cpf_ct, full_name_ct, phone_ct, password_hash,
	        vip, active, role_id, created_by_id, updated_by_id, created_at, updated_at`

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Create(ctx context.Context, identity *models.Identity) (*models.Identity, error) {

	query :=
		`INSERT INTO identities (email_ct, cpf_ct, full_name_ct, phone_ct, password_hash, vip, active, role_id, created_by_id, updated_by_id)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		 RETURNING id, created_at, updated_at
		 `

	err := r.db.QueryRowContext(ctx, query,
		identity.EmailCT, identity.CPFCT, identity.FullNameCT, identity.PhoneCT,
		identity.PasswordHash, identity.VIP, identity.Active, identity.RoleID,
		identity.CreatedByID, identity.UpdatedByID).
		Scan(&identity.ID, &identity.CreatedAt, &identity.UpdatedAt)

	if err != nil {
		if isUniqueViolation(err) {
			return nil, common.ErrConflict
		}
		return nil, fmt.Errorf("db error: %w", err)
	}

	return identity, nil
}

func (r *PostgresRepository) GetByID(ctx context.Context, id int64) (*models.Identity, error) {

	query := `SELECT ` + identityColumns + ` FROM identities WHERE id = $1`

	identity := &models.Identity{}
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&identity.ID, &identity.EmailCT, &identity.CPFCT, &identity.FullNameCT,
		&identity.PhoneCT, &identity.PasswordHash, &identity.VIP, &identity.Active,
		&identity.RoleID, &identity.CreatedByID, &identity.UpdatedByID,
		&identity.CreatedAt, &identity.UpdatedAt)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}

	return identity, nil
}

func (r *PostgresRepository) List(ctx context.Context) ([]*models.Identity, error) {

	query := `SELECT ` + identityColumns + ` FROM identities ORDER BY id`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	return scanIdentities(rows)
}

func (r *PostgresRepository) ListPage(ctx context.Context, limit, offset int) ([]*models.Identity, error) {

	query := `SELECT ` + identityColumns + ` FROM identities ORDER BY created_at DESC LIMIT $1 OFFSET $2`

	rows, err := r.db.QueryContext(ctx, query, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	return scanIdentities(rows)
}

func (r *PostgresRepository) Update(ctx context.Context, identity *models.Identity) (*models.Identity, error) {

	query :=
		`UPDATE identities
		    SET email_ct = $2, cpf_ct = $3, full_name_ct = $4, phone_ct = $5,
		        password_hash = $6, vip = $7, active = $8, role_id = $9,
		        updated_by_id = $10, updated_at = now()
		  WHERE id = $1
		  RETURNING updated_at
		 `

	err := r.db.QueryRowContext(ctx, query,
		identity.ID, identity.EmailCT, identity.CPFCT, identity.FullNameCT,
		identity.PhoneCT, identity.PasswordHash, identity.VIP, identity.Active,
		identity.RoleID, identity.UpdatedByID).
		Scan(&identity.UpdatedAt)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrNotFound
		}
		if isUniqueViolation(err) {
			return nil, common.ErrConflict
		}
		return nil, fmt.Errorf("db error: %w", err)
	}

	return identity, nil
}

func (r *PostgresRepository) Delete(ctx context.Context, id int64) (bool, error) {

	query := `DELETE FROM identities WHERE id = $1`

	res, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return false, fmt.Errorf("db error: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("db error: %w", err)
	}

	return n > 0, nil
}

func scanIdentities(rows *sql.Rows) ([]*models.Identity, error) {
	var result []*models.Identity
	for rows.Next() {
		identity := &models.Identity{}
		err := rows.Scan(
			&identity.ID, &identity.EmailCT, &identity.CPFCT, &identity.FullNameCT,
			&identity.PhoneCT, &identity.PasswordHash, &identity.VIP, &identity.Active,
			&identity.RoleID, &identity.CreatedByID, &identity.UpdatedByID,
			&identity.CreatedAt, &identity.UpdatedAt)
		if err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}
		result = append(result, identity)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return result, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}
