package db

import (
	"context"
	"database/sql"
	"time"

	"go.uber.org/zap"
)

// StartDeletedCredentialPurge hard-deletes soft-deleted credentials past the
// retention window, on an interval.
func StartDeletedCredentialPurge(
	ctx context.Context,
	db *sql.DB,
	interval time.Duration,
	retention time.Duration,
	log *zap.Logger,
) {
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				cutoff := time.Now().Add(-retention).Unix()
				res, err := db.ExecContext(ctx, `
                    DELETE FROM credentials
                     WHERE deleted = true
                       AND deleted_at < $1
                `, cutoff)
				if err != nil {
					log.Error("failed to purge deleted credentials", zap.Error(err))
					continue
				}
				if rows, _ := res.RowsAffected(); rows > 0 {
					log.Info("purged deleted credentials", zap.Int64("removed", rows))
				}
			}
		}
	}()
}
