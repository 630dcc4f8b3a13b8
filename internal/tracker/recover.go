package tracker

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/groblegark/tempo/internal/store"
)

// CloseOrphanedSession closes a session left open by an unclean shutdown.
// The daemon calls it once at startup, before tracking begins, so a stale
// session cannot shadow the next Start or the active-session dump.
func (t *Tracker) CloseOrphanedSession(ctx context.Context) error {
	sess, err := t.store.GetActiveSession(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("find active session: %w", err)
	}
	if sess == nil {
		return nil
	}

	now := t.now()
	err = t.store.RunInTransaction(ctx, func(tx store.Store) error {
		brk, err := tx.GetOpenBreak(ctx, sess.ID)
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("find open break: %w", err)
		}
		if brk != nil {
			if err := tx.EndBreak(ctx, brk.ID, now); err != nil {
				return fmt.Errorf("end break %s: %w", brk.ID, err)
			}
		}
		return tx.EndSession(ctx, sess.ID, now)
	})
	if err != nil {
		return fmt.Errorf("close orphaned session %s: %w", sess.ID, err)
	}
	t.logger.Warn("closed session left open by a previous run", "session", sess.ID)
	return nil
}
