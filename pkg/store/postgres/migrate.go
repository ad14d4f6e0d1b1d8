package postgres

import (
	"context"
	"database/sql"
	_ "embed"

	"github.com/AccelByte/extend-questboard-common/pkg/errors"
)

//go:embed schema.sql
var schemaSQL string

// ChangeChannel is the LISTEN/NOTIFY channel the schema triggers publish on.
const ChangeChannel = "questboard_changes"

// Schema returns the DDL applied by Migrate.
func Schema() string {
	return schemaSQL
}

// Migrate applies the schema. It is idempotent.
func Migrate(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, schemaSQL); err != nil {
		return errors.ErrUpstreamUnavailable("migrate schema", err)
	}
	return nil
}
