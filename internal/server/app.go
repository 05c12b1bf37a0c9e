// Package server wires the vault together: configuration, logging,
// storage with migrations, and the services. The daemon exposes no
// transport of its own; routing is an external collaborator layered on
// top of the service surface.
package server

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/nodesk/idvault/internal/cryptox"
	"github.com/nodesk/idvault/internal/logging"
	"github.com/nodesk/idvault/internal/server/auth"
	"github.com/nodesk/idvault/internal/server/config"
	"github.com/nodesk/idvault/internal/server/repositories/repomanager"
	"github.com/nodesk/idvault/internal/server/services"
)

type App struct {
	config *config.Config
	logger logging.Logger
	db     *sql.DB
	vault  *services.VaultService
	auth   *services.AuthService
}

// BuildServices constructs the service graph over an open database
// handle. Shared by the daemon and the operator CLI.
func BuildServices(db *sql.DB, cfg *config.Config, logger logging.Logger) (*services.VaultService, *services.AuthService) {
	repos := repomanager.NewPostgresRepositoryManager()
	cipher := cryptox.AESFieldCipher{}
	keys := cryptox.RandKeyManager{}
	hasher := auth.NewArgon2Hasher(auth.DefaultArgon2Params)
	issuer := auth.NewJWTIssuer([]byte(cfg.SecretKey), cfg.TokenValidityDuration)

	scanner := services.NewScanner(db, repos, cipher, logger)
	vault := services.NewVaultService(db, repos, scanner, cipher, keys, logger)
	authSvc := services.NewAuthService(db, repos, scanner, cipher, hasher, issuer, logger)
	return vault, authSvc
}

// OpenDatabase opens the pgx connection pool and applies pending
// migrations.
func OpenDatabase(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("db open error: %w", err)
	}

	m := repomanager.NewPostgresRepositoryManager()
	if err := m.RunMigrations(ctx, db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migration error: %w", err)
	}

	return db, nil
}

func NewApp(ctx context.Context, cfg *config.Config) (*App, error) {
	logger := logging.NewSlogLogger(slog.New(slog.NewJSONHandler(os.Stdout, nil)))

	db, err := OpenDatabase(ctx, cfg.DatabaseDSN)
	if err != nil {
		return nil, err
	}

	vault, authSvc := BuildServices(db, cfg, logger)

	return &App{config: cfg, logger: logger, db: db, vault: vault, auth: authSvc}, nil
}

func (app *App) Vault() *services.VaultService { return app.vault }
func (app *App) Auth() *services.AuthService   { return app.auth }

func (app *App) initSignalHandler(cancelFunc context.CancelFunc) {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		<-sigs
		cancelFunc()
	}()
}

// Run blocks until the context is cancelled or a termination signal
// arrives, then closes the database.
func (app *App) Run(ctx context.Context) {
	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	app.logger.Info(ctx, "vault ready", "addr", app.config.EndpointAddr)

	app.initSignalHandler(cancelFunc)
	<-ctx.Done()

	app.logger.Info(ctx, "shutting down")
	if err := app.db.Close(); err != nil {
		app.logger.Error(ctx, "db close error", "error", err.Error())
	}
}
