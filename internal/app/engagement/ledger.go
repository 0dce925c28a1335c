package engagement

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/vibe-dev/academy/internal/domain"
	"github.com/vibe-dev/academy/internal/infra/logging"
	"github.com/vibe-dev/academy/internal/infra/metrics"
)

// Clock returns the current time. Injected for tests.
type Clock func() time.Time

// SyncReason is the audit reason used when local XP is pushed upstream.
const SyncReason = "offline sync"

// LedgerConfig tunes retries and input bounds.
type LedgerConfig struct {
	MaxRetries int           // total attempts per grant
	BaseDelay  time.Duration // backoff = attempt × BaseDelay
	OpTimeout  time.Duration // per-attempt deadline
	Limits     Limits
}

// DefaultLedgerConfig returns the stock retry policy.
func DefaultLedgerConfig() LedgerConfig {
	return LedgerConfig{
		MaxRetries: 3,
		BaseDelay:  500 * time.Millisecond,
		OpTimeout:  5 * time.Second,
		Limits:     DefaultLimits(),
	}
}

// Grant is the result of a committed XP grant.
type Grant struct {
	TransactionID string           `json:"transaction_id"`
	UserID        string           `json:"uid"`
	Amount        int64            `json:"amount"`
	Reason        string           `json:"reason"`
	NewXP         int64            `json:"new_xp"`
	OldLevel      domain.LevelInfo `json:"old_level"`
	NewLevel      domain.LevelInfo `json:"new_level"`
	LeveledUp     bool             `json:"leveled_up"` // the stored level was raised by this grant
}

// Ledger records XP grants. Each grant is an audit append plus an atomic
// increment, retried with linear backoff; level-up detection follows.
// The ledger never falls back to the local mirror; callers do.
type Ledger struct {
	store  domain.ProfileStore
	levels *LevelTable
	cfg    LedgerConfig
	log    *zap.Logger
	now    Clock
	sleep  func(ctx context.Context, d time.Duration) error
}

// NewLedger creates a ledger over store.
func NewLedger(store domain.ProfileStore, levels *LevelTable, cfg LedgerConfig, log *zap.Logger) *Ledger {
	if cfg.MaxRetries < 1 {
		cfg.MaxRetries = 1
	}
	return &Ledger{
		store:  store,
		levels: levels,
		cfg:    cfg,
		log:    logging.OrNop(log),
		now:    time.Now,
		sleep:  sleepCtx,
	}
}

// Limits returns the configured input bounds.
func (l *Ledger) Limits() Limits { return l.cfg.Limits }

// AwardXP validates and commits a grant.
//
// Validation failures return immediately with nothing written. A missing
// profile is surfaced without retry. Transient failures are retried; once
// the budget is spent the error wraps domain.ErrRetriesExhausted.
func (l *Ledger) AwardXP(ctx context.Context, uid string, amount int64, reason string, meta domain.XPMetadata) (*Grant, error) {
	if err := ValidateGrant(uid, amount, reason, l.cfg.Limits); err != nil {
		return nil, err
	}
	return l.commit(ctx, "", uid, amount, reason, meta)
}

// AwardCombined commits a debounced batch. The per-grant ceiling was
// enforced when each grant was queued, so only the reason bound applies.
func (l *Ledger) AwardCombined(ctx context.Context, uid string, amount int64, reason string) (*Grant, error) {
	if err := ValidateGrant(uid, amount, reason, Limits{ReasonMaxLen: l.cfg.Limits.ReasonMaxLen}); err != nil {
		return nil, err
	}
	return l.commit(ctx, "", uid, amount, reason, domain.XPMetadata{})
}

// SyncXP pushes an offline XP delta under txID. It skips the per-grant
// ceiling since the delta is a sum of grants that were each validated
// locally. Replaying a txID the store already holds adds nothing.
func (l *Ledger) SyncXP(ctx context.Context, uid, txID string, amount int64) (*Grant, error) {
	if err := ValidateGrant(uid, amount, SyncReason, Limits{}); err != nil {
		return nil, err
	}
	return l.commit(ctx, txID, uid, amount, SyncReason, domain.XPMetadata{})
}

func (l *Ledger) commit(ctx context.Context, txID, uid string, amount int64, reason string, meta domain.XPMetadata) (*Grant, error) {
	start := time.Now()
	defer func() { metrics.XPGrantLatency.Observe(time.Since(start).Seconds()) }()

	// One ID for every attempt: the store ignores a replayed ID, so a
	// commit whose ack was lost is not counted twice.
	if txID == "" {
		txID = uuid.NewString()
	}
	tx := domain.XPTransaction{
		ID:        txID,
		UserID:    uid,
		Amount:    amount,
		Reason:    reason,
		Timestamp: l.now().UTC(),
		Metadata:  meta,
	}

	var lastErr error
	for attempt := 1; attempt <= l.cfg.MaxRetries; attempt++ {
		lastErr = l.attempt(ctx, tx)
		if lastErr == nil {
			break
		}
		if !domain.IsRetryable(lastErr) {
			return nil, lastErr
		}
		if attempt == l.cfg.MaxRetries {
			break
		}

		metrics.XPGrantRetries.Inc()
		l.log.Debug("xp grant attempt failed, retrying",
			zap.String("uid", uid),
			zap.Int("attempt", attempt),
			zap.Error(lastErr))

		if err := l.sleep(ctx, time.Duration(attempt)*l.cfg.BaseDelay); err != nil {
			lastErr = err
			break
		}
	}
	if lastErr != nil {
		metrics.XPGrantFailures.Inc()
		return nil, fmt.Errorf("%w: %v", domain.ErrRetriesExhausted, lastErr)
	}

	metrics.XPAwarded.Add(float64(amount))
	g := &Grant{TransactionID: tx.ID, UserID: uid, Amount: amount, Reason: reason}
	l.detectLevelUp(ctx, g)
	return g, nil
}

func (l *Ledger) attempt(ctx context.Context, tx domain.XPTransaction) error {
	opCtx, cancel := context.WithTimeout(ctx, l.cfg.OpTimeout)
	defer cancel()
	err := l.store.ApplyXPGrant(opCtx, tx)
	if err != nil && errors.Is(opCtx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", domain.ErrStoreUnavailable, err)
	}
	return err
}

// detectLevelUp re-reads XP and raises the stored level when it lags.
// The write is conditional, so only the grant that actually moves the
// stored level reports LeveledUp. Failures here leave the grant intact.
func (l *Ledger) detectLevelUp(ctx context.Context, g *Grant) {
	opCtx, cancel := context.WithTimeout(ctx, l.cfg.OpTimeout)
	defer cancel()

	p, err := l.store.GetProfile(opCtx, g.UserID)
	if err != nil {
		l.log.Warn("level check skipped: profile re-read failed", zap.String("uid", g.UserID), zap.Error(err))
		return
	}
	g.NewXP = p.XP
	g.NewLevel = l.levels.LevelForXP(p.XP)
	if old, ok := l.levels.ByNumber(p.Level); ok {
		g.OldLevel = old
	} else {
		g.OldLevel = l.levels.LevelForXP(p.XP - g.Amount)
	}

	if g.NewLevel.Level <= p.Level {
		return
	}
	changed, err := l.store.SetLevelIfHigher(opCtx, g.UserID, g.NewLevel.Level)
	if err != nil {
		l.log.Warn("level persist failed", zap.String("uid", g.UserID), zap.Error(err))
		return
	}
	if changed {
		g.LeveledUp = true
		metrics.LevelUps.Inc()
		l.log.Info("level up",
			zap.String("uid", g.UserID),
			zap.Int("level", g.NewLevel.Level),
			zap.String("title", g.NewLevel.Title))
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
