package services

import (
	"context"
	"database/sql"
	"io"
	"log/slog"
	"sort"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"

	"github.com/nodesk/idvault/internal/common"
	"github.com/nodesk/idvault/internal/cryptox"
	"github.com/nodesk/idvault/internal/dbx"
	"github.com/nodesk/idvault/internal/logging"
	"github.com/nodesk/idvault/internal/server/auth"
	"github.com/nodesk/idvault/internal/server/models"
	"github.com/nodesk/idvault/internal/server/repositories/identities"
	"github.com/nodesk/idvault/internal/server/repositories/identitykeys"
	"github.com/nodesk/idvault/internal/server/repositories/roles"
)

// memStore is an in-memory stand-in for the Postgres tables. The fake
// repositories ignore the DBTX handle, so transactional semantics are not
// simulated; sqlmock covers the Begin/Commit/Rollback traffic.
type memStore struct {
	identities map[int64]*models.Identity
	keys       map[int64]*models.IdentityKey // by identity id
	roles      map[string]*models.Role
	nextID     int64
	now        time.Time
}

func newMemStore() *memStore {
	return &memStore{
		identities: make(map[int64]*models.Identity),
		keys:       make(map[int64]*models.IdentityKey),
		roles: map[string]*models.Role{
			"viewer": {ID: 1, Name: "viewer"},
			"admin":  {ID: 2, Name: "admin"},
		},
		now: time.Now().UTC(),
	}
}

func copyIdentity(i *models.Identity) *models.Identity {
	c := *i
	return &c
}

type fakeIdentityRepo struct{ s *memStore }

func (f *fakeIdentityRepo) Create(ctx context.Context, identity *models.Identity) (*models.Identity, error) {
	f.s.nextID++
	identity.ID = f.s.nextID
	f.s.now = f.s.now.Add(time.Second)
	identity.CreatedAt = f.s.now
	identity.UpdatedAt = f.s.now
	f.s.identities[identity.ID] = copyIdentity(identity)
	return identity, nil
}

func (f *fakeIdentityRepo) GetByID(ctx context.Context, id int64) (*models.Identity, error) {
	identity, ok := f.s.identities[id]
	if !ok {
		return nil, common.ErrNotFound
	}
	return copyIdentity(identity), nil
}

func (f *fakeIdentityRepo) List(ctx context.Context) ([]*models.Identity, error) {
	out := make([]*models.Identity, 0, len(f.s.identities))
	for _, identity := range f.s.identities {
		out = append(out, copyIdentity(identity))
	}
	sort.Slice(out, func(a, b int) bool { return out[a].ID < out[b].ID })
	return out, nil
}

func (f *fakeIdentityRepo) ListPage(ctx context.Context, limit, offset int) ([]*models.Identity, error) {
	all, _ := f.List(ctx)
	sort.Slice(all, func(a, b int) bool { return all[a].CreatedAt.After(all[b].CreatedAt) })
	if offset >= len(all) {
		return nil, nil
	}
	all = all[offset:]
	if limit > 0 && limit < len(all) {
		all = all[:limit]
	}
	return all, nil
}

func (f *fakeIdentityRepo) Update(ctx context.Context, identity *models.Identity) (*models.Identity, error) {
	if _, ok := f.s.identities[identity.ID]; !ok {
		return nil, common.ErrNotFound
	}
	f.s.now = f.s.now.Add(time.Second)
	identity.UpdatedAt = f.s.now
	f.s.identities[identity.ID] = copyIdentity(identity)
	return identity, nil
}

func (f *fakeIdentityRepo) Delete(ctx context.Context, id int64) (bool, error) {
	if _, ok := f.s.identities[id]; !ok {
		return false, nil
	}
	delete(f.s.identities, id)
	return true, nil
}

type fakeKeyRepo struct{ s *memStore }

func (f *fakeKeyRepo) Create(ctx context.Context, key *models.IdentityKey) (*models.IdentityKey, error) {
	if _, exists := f.s.keys[key.IdentityID]; exists {
		return nil, common.ErrConflict
	}
	f.s.nextID++
	key.ID = f.s.nextID
	key.CreatedAt = f.s.now
	f.s.keys[key.IdentityID] = key
	return key, nil
}

func (f *fakeKeyRepo) GetByIdentityID(ctx context.Context, identityID int64) (*models.IdentityKey, error) {
	key, ok := f.s.keys[identityID]
	if !ok {
		return nil, common.ErrNotFound
	}
	return key, nil
}

func (f *fakeKeyRepo) DeleteByIdentityID(ctx context.Context, identityID int64) (bool, error) {
	if _, ok := f.s.keys[identityID]; !ok {
		return false, nil
	}
	delete(f.s.keys, identityID)
	return true, nil
}

type fakeRoleRepo struct{ s *memStore }

func (f *fakeRoleRepo) GetByID(ctx context.Context, id int64) (*models.Role, error) {
	for _, r := range f.s.roles {
		if r.ID == id {
			return r, nil
		}
	}
	return nil, common.ErrNotFound
}

func (f *fakeRoleRepo) GetByName(ctx context.Context, name string) (*models.Role, error) {
	r, ok := f.s.roles[name]
	if !ok {
		return nil, common.ErrNotFound
	}
	return r, nil
}

type fakeRepoManager struct{ s *memStore }

func (m *fakeRepoManager) RunMigrations(context.Context, *sql.DB) error { return nil }
func (m *fakeRepoManager) Identities(db dbx.DBTX) identities.Repository {
	return &fakeIdentityRepo{s: m.s}
}
func (m *fakeRepoManager) IdentityKeys(db dbx.DBTX) identitykeys.Repository {
	return &fakeKeyRepo{s: m.s}
}
func (m *fakeRepoManager) Roles(db dbx.DBTX) roles.Repository { return &fakeRoleRepo{s: m.s} }

// testArgon2Params keeps hashing fast in tests.
var testArgon2Params = auth.Argon2Params{Memory: 8 * 1024, Time: 1, Parallelism: 1, SaltLen: 16, KeyLen: 32}

type testEnv struct {
	db      *sql.DB
	mock    sqlmock.Sqlmock
	store   *memStore
	scanner *Scanner
	vault   *VaultService
	auth    *AuthService
	hasher  *auth.Argon2Hasher
	issuer  *auth.JWTIssuer
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	mock.MatchExpectationsInOrder(false)

	store := newMemStore()
	repos := &fakeRepoManager{s: store}
	logger := logging.NewSlogLogger(slog.New(slog.NewJSONHandler(io.Discard, nil)))
	cipher := cryptox.AESFieldCipher{}
	keys := cryptox.RandKeyManager{}
	hasher := auth.NewArgon2Hasher(testArgon2Params)
	issuer := auth.NewJWTIssuer([]byte("test-secret"), time.Hour)

	scanner := NewScanner(db, repos, cipher, logger)
	vault := NewVaultService(db, repos, scanner, cipher, keys, logger)
	authSvc := NewAuthService(db, repos, scanner, cipher, hasher, issuer, logger)

	return &testEnv{
		db:      db,
		mock:    mock,
		store:   store,
		scanner: scanner,
		vault:   vault,
		auth:    authSvc,
		hasher:  hasher,
		issuer:  issuer,
	}
}

// expectTx queues n Begin/Commit pairs for operations that run in a
// transaction.
func (e *testEnv) expectTx(n int) {
	for i := 0; i < n; i++ {
		e.mock.ExpectBegin()
		e.mock.ExpectCommit()
	}
}

func (e *testEnv) expectRollback() {
	e.mock.ExpectBegin()
	e.mock.ExpectRollback()
}

func (e *testEnv) mustCreate(t *testing.T, email, cpf, password string, opts ...func(*CreateIdentityParams)) *models.PlainIdentity {
	t.Helper()

	hash, err := e.hasher.Hash(password)
	require.NoError(t, err)

	p := CreateIdentityParams{Email: email, CPF: cpf, PasswordHash: hash}
	for _, o := range opts {
		o(&p)
	}

	e.expectTx(1)
	identity, err := e.vault.CreateIdentity(context.Background(), p)
	require.NoError(t, err)
	return identity
}
