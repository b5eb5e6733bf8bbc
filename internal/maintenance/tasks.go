package maintenance

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
)

const (
	ResyncTask = "resync"
	PurgeTask  = "purge_game_states"
)

// Reloader is the tournament store's full reload.
type Reloader interface {
	Reload(ctx context.Context) error
}

// Resync reloads the view on a schedule to catch NOTIFY events missed while
// the listener was down. It runs once per tick and never retries.
func Resync(spec string, r Reloader) Task {
	return Task{Name: ResyncTask, Spec: spec, Run: r.Reload}
}

// Execer runs a statement, normally a pgxpool.Pool.
type Execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// PurgeGameStates deletes snapshots of tournaments completed more than
// retention ago.
func PurgeGameStates(spec string, db Execer, retention time.Duration, logger *slog.Logger) Task {
	return Task{
		Name: PurgeTask,
		Spec: spec,
		Run: func(ctx context.Context) error {
			tag, err := db.Exec(ctx, `
				DELETE FROM game_states gs
				USING tournaments t
				WHERE t.id = gs.tournament_id
				  AND t.status = 'completed'
				  AND t.updated_at < NOW() - make_interval(secs => $1)`,
				retention.Seconds())
			if err != nil {
				return fmt.Errorf("purge game states: %w", err)
			}
			if tag.RowsAffected() > 0 {
				logger.Info("Purged game states of completed tournaments", "count", tag.RowsAffected())
			}
			return nil
		},
	}
}
