package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/nodesk/idvault/internal/common"
	"github.com/nodesk/idvault/internal/dbx"
	"github.com/nodesk/idvault/internal/logging"
	"github.com/nodesk/idvault/internal/normalize"
	"github.com/nodesk/idvault/internal/server/models"
	"github.com/nodesk/idvault/internal/server/repositories/repomanager"
)

// VaultService orchestrates the identity lifecycle: create, update,
// crypto-shred, hard delete, and decrypted reads. Every sensitive field
// is encrypted under the identity's own key/IV; deleting that key row is
// the only supported way to make the PII unrecoverable.
type VaultService struct {
	db      *sql.DB
	repos   repomanager.RepositoryManager
	scanner *Scanner
	cipher  FieldCipher
	keys    KeyManager
	logger  logging.Logger
}

func NewVaultService(db *sql.DB, repos repomanager.RepositoryManager, scanner *Scanner, cipher FieldCipher, keys KeyManager, logger logging.Logger) *VaultService {
	return &VaultService{
		db:      db,
		repos:   repos,
		scanner: scanner,
		cipher:  cipher,
		keys:    keys,
		logger:  logger.With("module", "vault"),
	}
}

// CreateIdentityParams carries the plaintext inputs for a new identity.
// PasswordHash is already hashed by the credential adapter; the vault
// never sees raw passwords.
type CreateIdentityParams struct {
	Email        string
	CPF          string
	FullName     *string
	Phone        *string
	PasswordHash string
	VIP          bool
	RoleID       *int64
	CreatedByID  *int64
}

// UpdatePatch lists the fields an update may change. nil means "leave
// unchanged".
type UpdatePatch struct {
	Email        *string
	CPF          *string
	FullName     *string
	Phone        *string
	PasswordHash *string
	VIP          *bool
	Active       *bool
	RoleID       *int64
	UpdatedByID  *int64
}

// CreateIdentity normalizes and validates the inputs, rejects duplicates
// of the normalized email or CPF, generates a fresh key/IV, encrypts the
// sensitive fields, and persists the identity and its key row as one
// transaction.
//
// The uniqueness scan and the insert are not one serializable unit: two
// concurrent creates with the same normalized email can both pass the
// scan before either commits. Closing that window (serializable isolation
// or an advisory lock keyed on the normalized value) is a deliberate
// deployment decision, left open here.
func (s *VaultService) CreateIdentity(ctx context.Context, p CreateIdentityParams) (*models.PlainIdentity, error) {

	email := normalize.Email(p.Email)
	cpf := normalize.CPF(p.CPF)
	if !normalize.ValidCPF(cpf) {
		return nil, fmt.Errorf("%w: cpf must contain %d digits", common.ErrValidation, normalize.CPFLength)
	}

	if err := s.checkUnique(ctx, email, cpf, 0); err != nil {
		return nil, err
	}

	keyB64, ivB64, err := s.keys.GenerateKeyIV()
	if err != nil {
		return nil, fmt.Errorf("key generation: %w", err)
	}

	emailCT, err := s.cipher.Encrypt(&email, keyB64, ivB64)
	if err != nil {
		return nil, err
	}
	cpfCT, err := s.cipher.Encrypt(&cpf, keyB64, ivB64)
	if err != nil {
		return nil, err
	}
	fullNameCT, err := s.cipher.Encrypt(p.FullName, keyB64, ivB64)
	if err != nil {
		return nil, err
	}
	phoneCT, err := s.cipher.Encrypt(p.Phone, keyB64, ivB64)
	if err != nil {
		return nil, err
	}

	identity := &models.Identity{
		EmailCT:      *emailCT,
		CPFCT:        *cpfCT,
		FullNameCT:   fullNameCT,
		PhoneCT:      phoneCT,
		PasswordHash: p.PasswordHash,
		VIP:          p.VIP,
		Active:       true,
		RoleID:       p.RoleID,
		CreatedByID:  p.CreatedByID,
	}

	// Identity and key row commit together or not at all: a storage-level
	// conflict on the key row undoes the identity insert too.
	err = dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		if _, err := s.repos.Identities(tx).Create(ctx, identity); err != nil {
			return err
		}

		_, err := s.repos.IdentityKeys(tx).Create(ctx, &models.IdentityKey{
			IdentityID: identity.ID,
			KeyB64:     keyB64,
			IVB64:      ivB64,
			Algorithm:  models.AlgorithmAES256CBC,
		})
		return err
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info(ctx, "identity created", "id", identity.ID)

	// Echo the plaintext inputs back; no need to re-decrypt what we just
	// encrypted.
	return &models.PlainIdentity{
		ID:        identity.ID,
		Email:     email,
		CPF:       cpf,
		FullName:  p.FullName,
		Phone:     p.Phone,
		VIP:       identity.VIP,
		Active:    identity.Active,
		RoleID:    identity.RoleID,
		CreatedAt: identity.CreatedAt,
		UpdatedAt: identity.UpdatedAt,
	}, nil
}

// UpdateIdentity applies a partial update. A missing identity or key row
// yields common.ErrNotFound: a crypto-shredded identity is no longer
// mutable. Changed email/CPF values are re-checked for uniqueness against
// every other identity, and sensitive fields are re-encrypted under the
// identity's existing key/IV.
func (s *VaultService) UpdateIdentity(ctx context.Context, id int64, patch UpdatePatch) (*models.PlainIdentity, error) {

	identity, err := s.repos.Identities(s.db).GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	key, err := s.repos.IdentityKeys(s.db).GetByIdentityID(ctx, id)
	if err != nil {
		return nil, err
	}

	current, err := s.decryptIdentity(identity, key)
	if err != nil {
		return nil, err
	}

	if patch.Email != nil {
		email := normalize.Email(*patch.Email)
		if email != current.Email {
			if err := s.findConflict(ctx, ScanEmail, email, id); err != nil {
				return nil, err
			}
		}
		ct, err := s.cipher.Encrypt(&email, key.KeyB64, key.IVB64)
		if err != nil {
			return nil, err
		}
		identity.EmailCT = *ct
		current.Email = email
	}

	if patch.CPF != nil {
		cpf := normalize.CPF(*patch.CPF)
		if !normalize.ValidCPF(cpf) {
			return nil, fmt.Errorf("%w: cpf must contain %d digits", common.ErrValidation, normalize.CPFLength)
		}
		if cpf != current.CPF {
			if err := s.findConflict(ctx, ScanCPF, cpf, id); err != nil {
				return nil, err
			}
		}
		ct, err := s.cipher.Encrypt(&cpf, key.KeyB64, key.IVB64)
		if err != nil {
			return nil, err
		}
		identity.CPFCT = *ct
		current.CPF = cpf
	}

	if patch.FullName != nil {
		ct, err := s.cipher.Encrypt(patch.FullName, key.KeyB64, key.IVB64)
		if err != nil {
			return nil, err
		}
		identity.FullNameCT = ct
		current.FullName = patch.FullName
	}

	if patch.Phone != nil {
		ct, err := s.cipher.Encrypt(patch.Phone, key.KeyB64, key.IVB64)
		if err != nil {
			return nil, err
		}
		identity.PhoneCT = ct
		current.Phone = patch.Phone
	}

	if patch.PasswordHash != nil {
		identity.PasswordHash = *patch.PasswordHash
	}
	if patch.VIP != nil {
		identity.VIP = *patch.VIP
		current.VIP = *patch.VIP
	}
	if patch.Active != nil {
		identity.Active = *patch.Active
		current.Active = *patch.Active
	}
	if patch.RoleID != nil {
		identity.RoleID = patch.RoleID
		current.RoleID = patch.RoleID
	}
	if patch.UpdatedByID != nil {
		identity.UpdatedByID = patch.UpdatedByID
	}

	err = dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		_, err := s.repos.Identities(tx).Update(ctx, identity)
		return err
	})
	if err != nil {
		return nil, err
	}

	current.UpdatedAt = identity.UpdatedAt
	return current, nil
}

// GetDecrypted returns the plaintext view of an identity. A missing key
// row makes the identity behave as not-found even though its row still
// exists; that is the externally observable effect of crypto-shredding,
// independent of any storage-side `active` trigger.
func (s *VaultService) GetDecrypted(ctx context.Context, id int64) (*models.PlainIdentity, error) {

	identity, err := s.repos.Identities(s.db).GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	key, err := s.repos.IdentityKeys(s.db).GetByIdentityID(ctx, id)
	if err != nil {
		return nil, err
	}

	return s.decryptIdentity(identity, key)
}

// ListIdentities returns decrypted views, newest first. Shredded and
// undecryptable identities are skipped.
func (s *VaultService) ListIdentities(ctx context.Context, limit, offset int) ([]*models.PlainIdentity, error) {

	page, err := s.repos.Identities(s.db).ListPage(ctx, limit, offset)
	if err != nil {
		return nil, err
	}

	keyRepo := s.repos.IdentityKeys(s.db)

	result := make([]*models.PlainIdentity, 0, len(page))
	for _, identity := range page {
		key, err := keyRepo.GetByIdentityID(ctx, identity.ID)
		if err != nil {
			if errors.Is(err, common.ErrNotFound) {
				continue
			}
			return nil, err
		}
		plain, err := s.decryptIdentity(identity, key)
		if err != nil {
			s.logger.Warn(ctx, "skipping undecryptable identity in listing",
				"identity_id", identity.ID, "error", err.Error())
			continue
		}
		result = append(result, plain)
	}

	return result, nil
}

// CryptoShred deletes only the identity's key row, making its ciphertext
// permanently unrecoverable while leaving the identity row in place.
// Returns false when no key row existed (already shredded or unknown id);
// "already gone" is an expected outcome, not an error.
func (s *VaultService) CryptoShred(ctx context.Context, id int64) (bool, error) {

	deleted, err := s.repos.IdentityKeys(s.db).DeleteByIdentityID(ctx, id)
	if err != nil {
		return false, err
	}
	if deleted {
		s.logger.Info(ctx, "identity crypto-shredded", "id", id)
	}
	return deleted, nil
}

// HardDelete removes the key row (if any) and the identity row in one
// transaction. Returns false when the identity did not exist.
func (s *VaultService) HardDelete(ctx context.Context, id int64) (bool, error) {

	var existed bool
	err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		if _, err := s.repos.IdentityKeys(tx).DeleteByIdentityID(ctx, id); err != nil {
			return err
		}
		var err error
		existed, err = s.repos.Identities(tx).Delete(ctx, id)
		return err
	})
	if err != nil {
		return false, err
	}

	if existed {
		s.logger.Info(ctx, "identity hard-deleted", "id", id)
	}
	return existed, nil
}

// RoleByName resolves a role for callers that address roles by name.
func (s *VaultService) RoleByName(ctx context.Context, name string) (*models.Role, error) {
	return s.repos.Roles(s.db).GetByName(ctx, name)
}

func (s *VaultService) checkUnique(ctx context.Context, email, cpf string, excludeID int64) error {
	if err := s.findConflict(ctx, ScanEmail, email, excludeID); err != nil {
		return err
	}
	return s.findConflict(ctx, ScanCPF, cpf, excludeID)
}

func (s *VaultService) findConflict(ctx context.Context, field ScanField, normalized string, excludeID int64) error {
	_, err := s.scanner.FindByNormalizedField(ctx, field, normalized, excludeID)
	if err == nil {
		return fmt.Errorf("%w: %s already in use", common.ErrConflict, field)
	}
	if errors.Is(err, common.ErrNotFound) {
		return nil
	}
	return err
}

func (s *VaultService) decryptIdentity(identity *models.Identity, key *models.IdentityKey) (*models.PlainIdentity, error) {

	email, err := s.cipher.Decrypt(&identity.EmailCT, key.KeyB64, key.IVB64)
	if err != nil {
		return nil, err
	}
	cpf, err := s.cipher.Decrypt(&identity.CPFCT, key.KeyB64, key.IVB64)
	if err != nil {
		return nil, err
	}
	fullName, err := s.cipher.Decrypt(identity.FullNameCT, key.KeyB64, key.IVB64)
	if err != nil {
		return nil, err
	}
	phone, err := s.cipher.Decrypt(identity.PhoneCT, key.KeyB64, key.IVB64)
	if err != nil {
		return nil, err
	}

	return &models.PlainIdentity{
		ID:        identity.ID,
		Email:     *email,
		CPF:       *cpf,
		FullName:  fullName,
		Phone:     phone,
		VIP:       identity.VIP,
		Active:    identity.Active,
		RoleID:    identity.RoleID,
		CreatedAt: identity.CreatedAt,
		UpdatedAt: identity.UpdatedAt,
	}, nil
}
