package repomanager

import (
	"context"
	"database/sql"

	"github.com/nodesk/idvault/internal/dbx"
	"github.com/nodesk/idvault/internal/server/repositories/identities"
	"github.com/nodesk/idvault/internal/server/repositories/identitykeys"
	"github.com/nodesk/idvault/internal/server/repositories/roles"
)

// RepositoryManager hands out repositories bound to a handle, which lets
// services run the same repository code against the pool or inside a
// transaction.
type RepositoryManager interface {
	RunMigrations(context.Context, *sql.DB) error
	Identities(db dbx.DBTX) identities.Repository
	IdentityKeys(db dbx.DBTX) identitykeys.Repository
	Roles(db dbx.DBTX) roles.Repository
}
