package states

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// ForceAdvance drives the timeout policy for one hangout: if the current
// round's deadline has passed, outstanding selections or votes are forced
// for the holdouts and the quorum transition is probed so the round
// advances. Safe to race with client actions; every guard re-checks under
// the transaction.
func (m *Machine) ForceAdvance(ctx context.Context, hangoutID string) {
	phase, err := m.CurrentPhase(ctx, hangoutID)
	if err != nil {
		m.log.Warn("force advance: resolve phase",
			zap.String("hangout_id", hangoutID), zap.Error(err))
		return
	}
	target, ok := QuorumTarget(phase)
	if !ok {
		return
	}
	req := Request{HangoutID: hangoutID, Action: ActionTimeout}
	forced := m.TryTransition(ctx, phase, "", req)
	advanced := m.TryTransition(ctx, phase, target, req)
	if forced.Kind == KindSuccess || advanced.Kind == KindSuccess {
		m.log.Info("forced stalled round forward",
			zap.String("hangout_id", hangoutID),
			zap.String("phase", string(phase)),
			zap.String("forced", string(forced.Kind)),
			zap.String("advanced", string(advanced.Kind)))
	}
}

// RunSweeper periodically scans for games stuck past their round deadline
// and force-advances them. Blocks until ctx is done.
func (m *Machine) RunSweeper(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			ids, err := m.store.ExpiredHangouts(ctx, m.now())
			if err != nil {
				m.log.Warn("sweep: list expired hangouts", zap.Error(err))
				continue
			}
			for _, id := range ids {
				m.ForceAdvance(ctx, id)
			}
		}
	}
}
