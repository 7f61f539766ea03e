// Command migrate applies the schema and seeds the permission catalogue and
// default workflow roles. With -legacy-fixup it also rewrites status strings
// imported from the pre-migration system onto the closed enum.
package main

import (
	"context"
	"flag"
	"os"
	"time"

	"github.com/rs/zerolog"

	"github.com/itam-hq/be-procurement/internal/platform/config"
	"github.com/itam-hq/be-procurement/internal/platform/database"
	"github.com/itam-hq/be-procurement/internal/platform/logger"
	"github.com/itam-hq/be-procurement/internal/repository"
)

// defaultRoles maps each built-in role to the permissions it grants.
var defaultRoles = map[string][]repository.PermissionCode{
	"department_manager": {repository.PermApproveTeam},
	"it_consultant":      {repository.PermConsultIT},
	"finance_reviewer":   {repository.PermReviewFinance},
	"director":           {repository.PermApproveDirector},
	"purchasing":         {repository.PermExecutePurchase},
	"accounting":         {repository.PermExecuteAccounting},
	"warehouse":          {repository.PermConfirmDelivery},
}

func main() {
	schemaPath := flag.String("schema", "migrations/schema.sql", "path to the schema file")
	legacyFixup := flag.Bool("legacy-fixup", false, "rewrite imported legacy status strings onto the status enum")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		bootLog := zerolog.New(os.Stderr)
		bootLog.Fatal().Err(err).Msg("failed to load config")
	}

	log := logger.New(logger.Config{
		Level:       "info",
		Environment: cfg.Service.Environment,
		ServiceName: "be-procurement-migrate",
		Version:     cfg.Service.Version,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	db, err := database.New(ctx, database.Config{
		Host:     cfg.Database.Host,
		Port:     cfg.Database.Port,
		User:     cfg.Database.User,
		Password: cfg.Database.Password,
		Database: cfg.Database.Database,
		SSLMode:  cfg.Database.SSLMode,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer db.Close()

	if err := applySchema(ctx, db, *schemaPath); err != nil {
		log.Fatal().Err(err).Str("schema", *schemaPath).Msg("failed to apply schema")
	}
	log.Info().Str("schema", *schemaPath).Msg("schema applied")

	if err := seedPermissions(ctx, db); err != nil {
		log.Fatal().Err(err).Msg("failed to seed permissions")
	}
	if err := seedRoles(ctx, db); err != nil {
		log.Fatal().Err(err).Msg("failed to seed roles")
	}
	log.Info().Int("permissions", len(repository.PermissionCatalogue())).Int("roles", len(defaultRoles)).Msg("catalogue seeded")

	if *legacyFixup {
		n, err := fixupLegacyStatuses(ctx, db)
		if err != nil {
			log.Fatal().Err(err).Msg("legacy status fixup failed")
		}
		log.Info().Int64("rows", n).Msg("legacy statuses rewritten")
	}
}

func applySchema(ctx context.Context, db *database.DB, path string) error {
	ddl, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	_, err = db.Exec(ctx, string(ddl))
	return err
}

func seedPermissions(ctx context.Context, db *database.DB) error {
	for _, p := range repository.PermissionCatalogue() {
		_, err := db.Exec(ctx, `
			INSERT INTO permissions (code, name) VALUES ($1, $2)
			ON CONFLICT (code) DO UPDATE SET name = EXCLUDED.name`,
			string(p.Code), p.Name)
		if err != nil {
			return err
		}
	}
	return nil
}

func seedRoles(ctx context.Context, db *database.DB) error {
	for name, perms := range defaultRoles {
		var roleID string
		err := db.QueryRow(ctx, `
			INSERT INTO roles (name) VALUES ($1)
			ON CONFLICT (name) DO UPDATE SET name = EXCLUDED.name
			RETURNING id`, name).Scan(&roleID)
		if err != nil {
			return err
		}
		for _, code := range perms {
			_, err := db.Exec(ctx, `
				INSERT INTO role_permissions (role_id, permission_code) VALUES ($1, $2)
				ON CONFLICT DO NOTHING`, roleID, string(code))
			if err != nil {
				return err
			}
		}
	}
	return nil
}

// fixupLegacyStatuses rewrites rows imported with free-form status strings.
// Imports land the raw value in a staging column; anything already on the
// enum is untouched.
func fixupLegacyStatuses(ctx context.Context, db *database.DB) (int64, error) {
	var total int64
	for legacy, status := range repository.LegacyStatusMapping() {
		tag, err := db.Exec(ctx, `
			UPDATE config_proposals
			SET status = $1, updated_at = NOW()
			WHERE legacy_status = $2`,
			string(status), legacy)
		if err != nil {
			return total, err
		}
		total += tag.RowsAffected()
	}
	return total, nil
}
