package services

import (
	"context"
	"database/sql"
	"errors"

	"github.com/nodesk/idvault/internal/common"
	"github.com/nodesk/idvault/internal/logging"
	"github.com/nodesk/idvault/internal/normalize"
	"github.com/nodesk/idvault/internal/server/repositories/repomanager"
)

// AuthResult is the bundle returned for a successful login.
type AuthResult struct {
	Token string
	ID    int64
	Name  *string
	Email string
}

// AuthService turns (email, password) into an issued token or a
// rejection. There is no indexed lookup by email: candidates are located
// through the decrypt scan.
type AuthService struct {
	db      *sql.DB
	repos   repomanager.RepositoryManager
	scanner *Scanner
	cipher  FieldCipher
	hasher  PasswordHasher
	issuer  TokenIssuer
	logger  logging.Logger
}

func NewAuthService(db *sql.DB, repos repomanager.RepositoryManager, scanner *Scanner, cipher FieldCipher, hasher PasswordHasher, issuer TokenIssuer, logger logging.Logger) *AuthService {
	return &AuthService{
		db:      db,
		repos:   repos,
		scanner: scanner,
		cipher:  cipher,
		hasher:  hasher,
		issuer:  issuer,
		logger:  logger.With("module", "auth"),
	}
}

// Authenticate locates the identity whose decrypted, normalized email
// matches, verifies the password, and issues a token. Unknown account,
// shredded identity, inactive identity, and wrong password all return
// common.ErrUnauthorized identically: no oracle distinguishes them.
func (s *AuthService) Authenticate(ctx context.Context, email, password string) (*AuthResult, error) {

	normalized := normalize.Email(email)

	identity, err := s.scanner.FindByNormalizedField(ctx, ScanEmail, normalized, 0)
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			return nil, common.ErrUnauthorized
		}
		return nil, err
	}

	if !identity.Active {
		return nil, common.ErrUnauthorized
	}

	if !s.hasher.Verify(password, identity.PasswordHash) {
		return nil, common.ErrUnauthorized
	}

	key, err := s.repos.IdentityKeys(s.db).GetByIdentityID(ctx, identity.ID)
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			// Shredded between scan and claim construction.
			return nil, common.ErrUnauthorized
		}
		return nil, err
	}

	plainEmail, err := s.cipher.Decrypt(&identity.EmailCT, key.KeyB64, key.IVB64)
	if err != nil {
		return nil, common.ErrUnauthorized
	}
	fullName, err := s.cipher.Decrypt(identity.FullNameCT, key.KeyB64, key.IVB64)
	if err != nil {
		return nil, common.ErrUnauthorized
	}

	var name string
	if fullName != nil {
		name = *fullName
	}

	token, err := s.issuer.Issue(identity.ID, name, normalize.Email(*plainEmail))
	if err != nil {
		s.logger.Error(ctx, "token issue failed", "identity_id", identity.ID, "error", err.Error())
		return nil, common.ErrInternal
	}

	s.logger.Info(ctx, "authentication succeeded", "identity_id", identity.ID)

	return &AuthResult{
		Token: token,
		ID:    identity.ID,
		Name:  fullName,
		Email: normalize.Email(*plainEmail),
	}, nil
}
