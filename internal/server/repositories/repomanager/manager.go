package repomanager

import (
	"context"
	"database/sql"

	"github.com/dmitrijs2005/securebox/internal/dbx"
	"github.com/dmitrijs2005/securebox/internal/server/repositories/audit"
	"github.com/dmitrijs2005/securebox/internal/server/repositories/files"
)

// RepositoryManager vends repositories bound to a DBTX, so the same
// repository code runs against a plain connection or inside a transaction.
type RepositoryManager interface {
	RunMigrations(ctx context.Context, db *sql.DB) error
	Files(db dbx.DBTX) files.Repository
	Audit(db dbx.DBTX) audit.Repository
}
