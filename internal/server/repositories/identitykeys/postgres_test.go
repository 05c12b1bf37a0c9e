package identitykeys

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/nodesk/idvault/internal/common"
	"github.com/nodesk/idvault/internal/server/models"
)

func newRepoWithMock(t *testing.T) (*PostgresRepository, sqlmock.Sqlmock, *sql.DB) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("sqlmock.New error: %v", err)
	}
	return NewPostgresRepository(db), mock, db
}

const (
	insertQ = `(?s)^INSERT\s+INTO\s+identity_keys\s*\(identity_id,\s*key_b64,\s*iv_b64,\s*algorithm\)\s*VALUES\s*\(\$1,\s*\$2,\s*\$3,\s*\$4\)\s*RETURNING\s+id,\s*created_at\s*$`
	getQ    = `(?s)^SELECT\s+id,\s*identity_id,\s*key_b64,\s*iv_b64,\s*algorithm,\s*created_at\s+FROM\s+identity_keys\s+WHERE\s+identity_id\s*=\s*\$1\s*$`
	deleteQ = `(?s)^DELETE\s+FROM\s+identity_keys\s+WHERE\s+identity_id\s*=\s*\$1\s*$`
)

func TestCreate_Success(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	now := time.Now()
	rows := sqlmock.NewRows([]string{"id", "created_at"}).AddRow(int64(5), now)
	mock.ExpectQuery(insertQ).
		WithArgs(int64(7), "key-b64", "iv-b64", models.AlgorithmAES256CBC).
		WillReturnRows(rows)

	got, err := repo.Create(context.Background(), &models.IdentityKey{
		IdentityID: 7, KeyB64: "key-b64", IVB64: "iv-b64", Algorithm: models.AlgorithmAES256CBC,
	})
	if err != nil {
		t.Fatalf("Create error: %v", err)
	}
	if got.ID != 5 || !got.CreatedAt.Equal(now) {
		t.Fatalf("unexpected key: %+v", got)
	}
}

func TestCreate_DuplicateIdentity(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectQuery(insertQ).
		WillReturnError(&pgconn.PgError{Code: "23505"})

	_, err := repo.Create(context.Background(), &models.IdentityKey{IdentityID: 7, KeyB64: "k", IVB64: "i"})
	if !errors.Is(err, common.ErrConflict) {
		t.Fatalf("want common.ErrConflict, got %v", err)
	}
}

func TestCreate_DBError(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectQuery(insertQ).
		WillReturnError(errors.New("db down"))

	_, err := repo.Create(context.Background(), &models.IdentityKey{IdentityID: 7, KeyB64: "k", IVB64: "i"})
	if err == nil || !regexp.MustCompile(`db error: .*db down`).MatchString(err.Error()) {
		t.Fatalf("expected wrapped db error, got %v", err)
	}
}

func TestGetByIdentityID_Found(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	now := time.Now()
	rows := sqlmock.NewRows([]string{"id", "identity_id", "key_b64", "iv_b64", "algorithm", "created_at"}).
		AddRow(int64(5), int64(7), "key-b64", "iv-b64", models.AlgorithmAES256CBC, now)
	mock.ExpectQuery(getQ).
		WithArgs(int64(7)).
		WillReturnRows(rows)

	got, err := repo.GetByIdentityID(context.Background(), 7)
	if err != nil {
		t.Fatalf("GetByIdentityID error: %v", err)
	}
	if got.IdentityID != 7 || got.KeyB64 != "key-b64" || got.IVB64 != "iv-b64" {
		t.Fatalf("unexpected key: %+v", got)
	}
}

func TestGetByIdentityID_NotFound(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectQuery(getQ).
		WithArgs(int64(404)).
		WillReturnError(sql.ErrNoRows)

	_, err := repo.GetByIdentityID(context.Background(), 404)
	if !errors.Is(err, common.ErrNotFound) {
		t.Fatalf("want common.ErrNotFound, got %v", err)
	}
}

func TestDeleteByIdentityID_Existing(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectExec(deleteQ).
		WithArgs(int64(7)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	deleted, err := repo.DeleteByIdentityID(context.Background(), 7)
	if err != nil {
		t.Fatalf("DeleteByIdentityID error: %v", err)
	}
	if !deleted {
		t.Fatal("want deleted=true")
	}
}

func TestDeleteByIdentityID_Missing(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectExec(deleteQ).
		WithArgs(int64(404)).
		WillReturnResult(sqlmock.NewResult(0, 0))

	deleted, err := repo.DeleteByIdentityID(context.Background(), 404)
	if err != nil {
		t.Fatalf("DeleteByIdentityID error: %v", err)
	}
	if deleted {
		t.Fatal("want deleted=false")
	}
}

func TestDeleteByIdentityID_DBError(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectExec(deleteQ).
		WithArgs(int64(7)).
		WillReturnError(errors.New("db down"))

	_, err := repo.DeleteByIdentityID(context.Background(), 7)
	if err == nil || !regexp.MustCompile(`db error: .*db down`).MatchString(err.Error()) {
		t.Fatalf("expected wrapped db error, got %v", err)
	}
}
