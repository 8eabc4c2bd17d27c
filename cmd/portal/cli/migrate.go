package cli

import (
	"context"
	"io/fs"
	"log/slog"

	"github.com/odyssey-erp/procurement-portal/internal/platform/db"
)

// Migrate connects to dsn and applies every pending migration in files.
func Migrate(ctx context.Context, dsn string, files fs.FS, logger *slog.Logger) error {
	pool, err := db.New(ctx, dsn)
	if err != nil {
		return err
	}
	defer pool.Close()

	if err := db.Migrate(ctx, pool, files); err != nil {
		return err
	}
	logger.Info("migrations applied")
	return nil
}
