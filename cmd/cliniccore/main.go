// Clinic Core - Session & Authorization Gateway
//
// This is the main entry point for the Clinic Core application: the
// multi-tenant session gateway fronting the Novadent clinic platform.
// It terminates authentication, evaluates route access per request,
// and propagates refreshed session credentials onto every response.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	_ "github.com/novadent/clinic-core/migrations"

	"github.com/novadent/clinic-core/internal/api"
	"github.com/novadent/clinic-core/internal/audit"
	"github.com/novadent/clinic-core/internal/gateway"
	"github.com/novadent/clinic-core/internal/identity"
	"github.com/novadent/clinic-core/internal/infrastructure/config"
	"github.com/novadent/clinic-core/internal/infrastructure/database"
	"github.com/novadent/clinic-core/internal/infrastructure/logging"
	"github.com/novadent/clinic-core/internal/profile"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"     // Semantic version (e.g., "1.0.0")
	commit  = "unknown" // Git commit hash
	date    = "unknown" // Build date
)

// Default configuration file path
const defaultConfigPath = "configs/config.yaml"

func main() {
	// Cancel on interrupt signals (Ctrl+C, SIGTERM) for graceful shutdown
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the actual application logic, separated from main for testability.
func run(ctx context.Context) error {
	// Use default logger until config is loaded
	log := logging.Default()
	log.Info("starting Clinic Core",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	configPath := getConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log.Info("configuration loaded", "path", configPath)

	// Reinitialise logger with config settings
	log = logging.New(cfg.Logging, version)
	log.Info("logger initialised",
		"level", cfg.Logging.Level,
		"format", cfg.Logging.Format,
	)

	db, err := database.Open(database.Config{
		Path:        cfg.Database.Path,
		WALMode:     cfg.Database.WALMode,
		BusyTimeout: cfg.Database.BusyTimeout,
	})
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer func() {
		log.Info("closing database")
		if closeErr := db.Close(); closeErr != nil {
			log.Error("error closing database", "error", closeErr)
		}
	}()
	log.Info("database connected", "path", cfg.Database.Path)

	if migrateErr := db.Migrate(ctx); migrateErr != nil {
		return fmt.Errorf("running migrations: %w", migrateErr)
	}
	if applied, pending, statusErr := db.GetMigrationStatus(ctx); statusErr == nil {
		log.Info("database migrations complete",
			"applied", len(applied),
			"pending", len(pending),
		)
	} else {
		log.Warn("could not read migration status", "error", statusErr)
	}

	// Identity and tenancy stores
	accounts := identity.NewAccountRepository(db.DB)
	tokens := identity.NewTokenRepository(db.DB)
	profiles := profile.NewRepository(db.DB)
	tenants := profile.NewTenantRepository(db.DB)
	auditRepo := audit.NewSQLiteRepository(db.DB)

	provider, err := identity.NewLocalProvider(identity.LocalProviderConfig{
		Accounts:   accounts,
		Tokens:     tokens,
		Secret:     cfg.Session.Secret,
		AccessTTL:  cfg.Session.AccessTokenLifetime(),
		RefreshTTL: cfg.Session.RefreshTokenLifetime(),
	})
	if err != nil {
		return fmt.Errorf("creating identity provider: %w", err)
	}

	if seedErr := seedFirstAdmin(ctx, log, accounts, tenants, profiles); seedErr != nil {
		return fmt.Errorf("seeding first admin: %w", seedErr)
	}

	// Session gateway
	gw, err := gateway.New(gateway.Deps{
		Routes:   cfg.Routes,
		Session:  cfg.Session,
		Provider: provider,
		Profiles: profiles,
		Audit:    auditRepo,
		Logger:   log,
		Metrics:  gateway.NewMetrics(nil),
	})
	if err != nil {
		return fmt.Errorf("creating gateway: %w", err)
	}

	// HTTP server
	server, err := api.New(api.Deps{
		Config:   cfg.Server,
		Session:  cfg.Session,
		Logger:   log,
		Gateway:  gw,
		Provider: provider,
		Accounts: accounts,
		Profiles: profiles,
		Tenants:  tenants,
		Audit:    auditRepo,
		Version:  version,
	})
	if err != nil {
		return fmt.Errorf("creating server: %w", err)
	}
	if startErr := server.Start(ctx); startErr != nil {
		return fmt.Errorf("starting server: %w", startErr)
	}
	defer func() {
		if closeErr := server.Close(); closeErr != nil {
			log.Error("error closing server", "error", closeErr)
		}
	}()
	log.Info("server started", "host", cfg.Server.Host, "port", cfg.Server.Port)

	log.Info("initialisation complete, waiting for shutdown signal")

	<-ctx.Done()

	log.Info("shutdown signal received, cleaning up")
	log.Info("Clinic Core stopped")
	return nil
}

// seedFirstAdmin bootstraps the first clinic and admin account on an
// empty database. Controlled by CLINICCORE_ADMIN_EMAIL and
// CLINICCORE_ADMIN_PASSWORD; skipped when accounts already exist or the
// variables are unset.
func seedFirstAdmin(
	ctx context.Context,
	log *logging.Logger,
	accounts identity.AccountRepository,
	tenants profile.TenantRepository,
	profiles profile.Repository,
) error {
	email := os.Getenv("CLINICCORE_ADMIN_EMAIL")
	password := os.Getenv("CLINICCORE_ADMIN_PASSWORD")
	if email == "" || password == "" {
		return nil
	}

	count, err := accounts.Count(ctx)
	if err != nil {
		return fmt.Errorf("counting accounts: %w", err)
	}
	if count > 0 {
		return nil
	}

	if !identity.IsValidEmail(email) {
		return fmt.Errorf("invalid admin email %q", email)
	}
	if !identity.IsValidPassword(password) {
		return fmt.Errorf("admin password too short")
	}

	hash, err := identity.HashPassword(password)
	if err != nil {
		return fmt.Errorf("hashing admin password: %w", err)
	}

	tenantName := os.Getenv("CLINICCORE_TENANT_NAME")
	if tenantName == "" {
		tenantName = "Default Clinic"
	}
	tenant := &profile.Tenant{Name: tenantName}
	if err := tenants.Create(ctx, tenant); err != nil {
		return fmt.Errorf("creating tenant: %w", err)
	}

	account := &identity.Account{Email: email, PasswordHash: hash, IsActive: true}
	if err := accounts.Create(ctx, account); err != nil {
		return fmt.Errorf("creating admin account: %w", err)
	}

	if err := profiles.Create(ctx, &profile.Profile{
		SubjectID:   account.ID,
		TenantID:    tenant.ID,
		Role:        profile.RoleAdmin,
		DisplayName: "Administrator",
	}); err != nil {
		return fmt.Errorf("creating admin profile: %w", err)
	}

	log.Info("seeded first admin account", "email", email, "tenant", tenantName)
	return nil
}

// getConfigPath returns the configuration file path.
// Uses CLINICCORE_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("CLINICCORE_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}
