package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/nodesk/idvault/internal/common"
	"github.com/nodesk/idvault/internal/logging"
	"github.com/nodesk/idvault/internal/normalize"
	"github.com/nodesk/idvault/internal/server/models"
	"github.com/nodesk/idvault/internal/server/repositories/repomanager"
)

// ScanField selects which encrypted field a lookup targets.
type ScanField string

const (
	ScanEmail ScanField = "email"
	ScanCPF   ScanField = "cpf"
)

// Scanner performs equality lookups over encrypted fields. Each identity
// carries its own key/IV, so equal plaintexts produce different ciphertext
// across rows and no index can serve these lookups: the scanner loads
// every identity, decrypts the targeted field with that identity's key,
// and compares normalized values. Cost is O(N) decrypts per call; this is
// the accepted bound, not a bug.
type Scanner struct {
	db     *sql.DB
	repos  repomanager.RepositoryManager
	cipher FieldCipher
	logger logging.Logger
}

func NewScanner(db *sql.DB, repos repomanager.RepositoryManager, cipher FieldCipher, logger logging.Logger) *Scanner {
	return &Scanner{
		db:     db,
		repos:  repos,
		cipher: cipher,
		logger: logger.With("module", "scanner"),
	}
}

// FindByNormalizedField returns the first identity whose decrypted,
// normalized field equals normalized. excludeID > 0 skips that identity
// (used by update-time uniqueness checks). Identities without a key row
// (crypto-shredded) and identities whose field fails to decrypt are
// skipped, not reported as errors: one broken record must not poison
// uniqueness checks or login for everyone else. Returns
// common.ErrNotFound when nothing matches.
func (s *Scanner) FindByNormalizedField(ctx context.Context, field ScanField, normalized string, excludeID int64) (*models.Identity, error) {

	identityRepo := s.repos.Identities(s.db)
	keyRepo := s.repos.IdentityKeys(s.db)

	all, err := identityRepo.List(ctx)
	if err != nil {
		return nil, err
	}

	for _, identity := range all {
		if excludeID > 0 && identity.ID == excludeID {
			continue
		}

		key, err := keyRepo.GetByIdentityID(ctx, identity.ID)
		if err != nil {
			if errors.Is(err, common.ErrNotFound) {
				// Shredded: permanently unreadable, never a match.
				continue
			}
			return nil, err
		}

		value, err := s.decryptField(identity, field, key)
		if err != nil {
			s.logger.Warn(ctx, "skipping undecryptable identity during scan",
				"identity_id", identity.ID, "field", string(field), "error", err.Error())
			continue
		}

		if value == normalized {
			return identity, nil
		}
	}

	return nil, common.ErrNotFound
}

func (s *Scanner) decryptField(identity *models.Identity, field ScanField, key *models.IdentityKey) (string, error) {
	var ct string
	switch field {
	case ScanEmail:
		ct = identity.EmailCT
	case ScanCPF:
		ct = identity.CPFCT
	default:
		return "", fmt.Errorf("unsupported scan field %q", field)
	}

	plain, err := s.cipher.Decrypt(&ct, key.KeyB64, key.IVB64)
	if err != nil {
		return "", err
	}

	switch field {
	case ScanEmail:
		return normalize.Email(*plain), nil
	default:
		return normalize.CPF(*plain), nil
	}
}
