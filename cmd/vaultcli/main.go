// Command vaultcli is the operator CLI for the identity vault. It talks
// to the database directly through the same services the daemon uses.
//
// Usage:
//
//	vaultcli [config flags] <command> [command flags]
//
// Commands: create, show, list, shred, delete, login.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"

	"golang.org/x/term"

	"log/slog"

	"github.com/nodesk/idvault/internal/logging"
	"github.com/nodesk/idvault/internal/server"
	"github.com/nodesk/idvault/internal/server/auth"
	"github.com/nodesk/idvault/internal/server/config"
	"github.com/nodesk/idvault/internal/server/models"
	"github.com/nodesk/idvault/internal/server/services"
)

// readPassword is a test seam for term.ReadPassword.
var readPassword = term.ReadPassword

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func run() error {
	args := commandArgs(os.Args[1:])
	if len(args) == 0 {
		return fmt.Errorf("usage: vaultcli <create|show|list|shred|delete|login> [flags]")
	}

	ctx := context.Background()
	cfg := config.LoadConfig()

	logger := logging.NewSlogLogger(slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn})))

	db, err := server.OpenDatabase(ctx, cfg.DatabaseDSN)
	if err != nil {
		return err
	}
	defer db.Close()

	vault, authSvc := server.BuildServices(db, cfg, logger)

	switch cmd, rest := args[0], args[1:]; cmd {
	case "create":
		return runCreate(ctx, vault, rest)
	case "show":
		return runShow(ctx, vault, rest)
	case "list":
		return runList(ctx, vault, rest)
	case "shred":
		return runShred(ctx, vault, rest)
	case "delete":
		return runDelete(ctx, vault, rest)
	case "login":
		return runLogin(ctx, authSvc, rest)
	default:
		return fmt.Errorf("unknown command %q", cmd)
	}
}

// commandArgs strips the shared config flags so subcommand flag sets only
// see their own arguments.
func commandArgs(args []string) []string {
	skip := map[string]bool{"-c": true, "-config": true, "-a": true, "-d": true, "-s": true, "-t": true}
	var out []string
	for i := 0; i < len(args); i++ {
		arg := args[i]
		if idx := strings.Index(arg, "="); idx > 0 && skip[arg[:idx]] {
			continue
		}
		if skip[arg] {
			i++ // skip the value too
			continue
		}
		out = append(out, arg)
	}
	return out
}

func runCreate(ctx context.Context, vault *services.VaultService, args []string) error {
	fs := flag.NewFlagSet("create", flag.ExitOnError)
	email := fs.String("email", "", "e-mail address (required)")
	cpf := fs.String("cpf", "", "CPF (required)")
	fullName := fs.String("name", "", "full name")
	phone := fs.String("phone", "", "phone number")
	role := fs.String("role", "", "role name")
	vip := fs.Bool("vip", false, "VIP flag")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *email == "" || *cpf == "" {
		return fmt.Errorf("create: -email and -cpf are required")
	}

	password, err := promptPassword()
	if err != nil {
		return err
	}

	hasher := auth.NewArgon2Hasher(auth.DefaultArgon2Params)
	hash, err := hasher.Hash(password)
	if err != nil {
		return err
	}

	params := services.CreateIdentityParams{
		Email:        *email,
		CPF:          *cpf,
		FullName:     optional(*fullName),
		Phone:        optional(*phone),
		PasswordHash: hash,
		VIP:          *vip,
	}

	if *role != "" {
		r, err := vault.RoleByName(ctx, *role)
		if err != nil {
			return fmt.Errorf("role %q: %w", *role, err)
		}
		params.RoleID = &r.ID
	}

	identity, err := vault.CreateIdentity(ctx, params)
	if err != nil {
		return err
	}

	printIdentity(identity)
	return nil
}

func runShow(ctx context.Context, vault *services.VaultService, args []string) error {
	id, err := idArg("show", args)
	if err != nil {
		return err
	}

	identity, err := vault.GetDecrypted(ctx, id)
	if err != nil {
		return err
	}

	printIdentity(identity)
	return nil
}

func runList(ctx context.Context, vault *services.VaultService, args []string) error {
	fs := flag.NewFlagSet("list", flag.ExitOnError)
	limit := fs.Int("limit", 50, "max identities to show")
	offset := fs.Int("offset", 0, "identities to skip")
	if err := fs.Parse(args); err != nil {
		return err
	}

	identities, err := vault.ListIdentities(ctx, *limit, *offset)
	if err != nil {
		return err
	}

	for _, identity := range identities {
		printIdentity(identity)
	}
	return nil
}

func runShred(ctx context.Context, vault *services.VaultService, args []string) error {
	id, err := idArg("shred", args)
	if err != nil {
		return err
	}

	shredded, err := vault.CryptoShred(ctx, id)
	if err != nil {
		return err
	}
	if !shredded {
		fmt.Println("no key material found (already shredded or unknown id)")
		return nil
	}
	fmt.Println("key material destroyed; identity data is now unrecoverable")
	return nil
}

func runDelete(ctx context.Context, vault *services.VaultService, args []string) error {
	id, err := idArg("delete", args)
	if err != nil {
		return err
	}

	existed, err := vault.HardDelete(ctx, id)
	if err != nil {
		return err
	}
	if !existed {
		fmt.Println("identity not found")
		return nil
	}
	fmt.Println("identity deleted")
	return nil
}

func runLogin(ctx context.Context, authSvc *services.AuthService, args []string) error {
	fs := flag.NewFlagSet("login", flag.ExitOnError)
	email := fs.String("email", "", "e-mail address (required)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *email == "" {
		return fmt.Errorf("login: -email is required")
	}

	password, err := promptPassword()
	if err != nil {
		return err
	}

	result, err := authSvc.Authenticate(ctx, *email, password)
	if err != nil {
		return err
	}

	fmt.Println(result.Token)
	return nil
}

func promptPassword() (string, error) {
	fmt.Fprint(os.Stderr, "Enter password: ")
	pw, err := readPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", err
	}
	return string(pw), nil
}

func idArg(cmd string, args []string) (int64, error) {
	if len(args) != 1 {
		return 0, fmt.Errorf("usage: vaultcli %s <id>", cmd)
	}
	id, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid id %q", cmd, args[0])
	}
	return id, nil
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func printIdentity(identity *models.PlainIdentity) {
	name, phone := "-", "-"
	if identity.FullName != nil {
		name = *identity.FullName
	}
	if identity.Phone != nil {
		phone = *identity.Phone
	}
	fmt.Printf("id=%d email=%s cpf=%s name=%s phone=%s vip=%t active=%t\n",
		identity.ID, identity.Email, identity.CPF, name, phone, identity.VIP, identity.Active)
}
