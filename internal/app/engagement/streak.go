package engagement

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/vibe-dev/academy/internal/domain"
	"github.com/vibe-dev/academy/internal/infra/logging"
	"github.com/vibe-dev/academy/internal/infra/metrics"
)

// StreakConfig sets the consecutive-day bonus: min(streak × PerDayBonus, BonusCap).
type StreakConfig struct {
	PerDayBonus int64
	BonusCap    int64
}

// DefaultStreakConfig returns 5 XP per day capped at 50.
func DefaultStreakConfig() StreakConfig {
	return StreakConfig{PerDayBonus: 5, BonusCap: 50}
}

// Bonus returns the XP for reaching streak days.
func (c StreakConfig) Bonus(streak int) int64 {
	return min(int64(streak)*c.PerDayBonus, c.BonusCap)
}

// StreakTransition is the branch taken by a check-in.
type StreakTransition string

const (
	StreakUnchanged StreakTransition = "unchanged"
	StreakIncrement StreakTransition = "increment"
	StreakReset     StreakTransition = "reset"
)

// NextStreak applies the three-way rule. A zero lastLogin counts as the
// epoch, so a first check-in always resets to 1.
//
//	< 24h        unchanged
//	[24h, 48h)   +1 with bonus
//	>= 48h       reset to 1
func NextStreak(current int, lastLogin, now time.Time, cfg StreakConfig) (int, StreakTransition, int64) {
	if lastLogin.IsZero() {
		lastLogin = time.Unix(0, 0)
	}
	elapsed := now.Sub(lastLogin)
	switch {
	case elapsed < 24*time.Hour:
		return current, StreakUnchanged, 0
	case elapsed < 48*time.Hour:
		next := current + 1
		return next, StreakIncrement, cfg.Bonus(next)
	default:
		return 1, StreakReset, 0
	}
}

// StreakResult describes one check-in.
type StreakResult struct {
	Previous   int              `json:"previous"`
	Streak     int              `json:"streak"`
	Transition StreakTransition `json:"transition"`
	Bonus      int64            `json:"bonus"`
	Grant      *Grant           `json:"grant,omitempty"` // nil when there was no bonus or it failed
	BonusErr   error            `json:"-"`               // why a due bonus was not granted
}

// StreakTracker runs the per-login streak update.
type StreakTracker struct {
	store  domain.ProfileStore
	ledger *Ledger
	cfg    StreakConfig
	log    *zap.Logger
	now    Clock
}

// NewStreakTracker creates a streak tracker.
func NewStreakTracker(store domain.ProfileStore, ledger *Ledger, cfg StreakConfig, log *zap.Logger) *StreakTracker {
	return &StreakTracker{store: store, ledger: ledger, cfg: cfg, log: logging.OrNop(log), now: time.Now}
}

// Config returns the bonus settings.
func (s *StreakTracker) Config() StreakConfig { return s.cfg }

// UpdateStreak applies the transition rule and always writes the streak and
// lastLogin=now, whichever branch is taken. On increment the bonus is granted
// through the ledger; a failed bonus is reported in BonusErr, not as an error,
// since the streak itself was stored.
func (s *StreakTracker) UpdateStreak(ctx context.Context, uid string) (*StreakResult, error) {
	if err := ValidateUserID(uid); err != nil {
		return nil, err
	}
	p, err := s.store.GetProfile(ctx, uid)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	next, transition, bonus := NextStreak(p.StreakDays, p.LastLogin, now, s.cfg)
	if err := s.store.UpdateStreak(ctx, uid, next, now); err != nil {
		return nil, fmt.Errorf("write streak: %w", err)
	}
	metrics.StreakTransitions.WithLabelValues(string(transition)).Inc()

	res := &StreakResult{Previous: p.StreakDays, Streak: next, Transition: transition, Bonus: bonus}
	if bonus > 0 {
		g, err := s.ledger.AwardXP(ctx, uid, bonus, fmt.Sprintf("%d-day streak bonus", next), domain.XPMetadata{})
		if err != nil {
			s.log.Warn("streak bonus not granted", zap.String("uid", uid), zap.Error(err))
			res.BonusErr = err
		} else {
			res.Grant = g
		}
	}
	return res, nil
}
