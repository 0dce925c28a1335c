package engagement

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/vibe-dev/academy/internal/domain"
	"github.com/vibe-dev/academy/internal/infra/catalog"
	"github.com/vibe-dev/academy/internal/infra/logging"
	"github.com/vibe-dev/academy/internal/infra/metrics"
)

// ChallengeResult describes one completion attempt.
type ChallengeResult struct {
	Challenge domain.DailyChallenge `json:"challenge"`
	Date      string                `json:"date"`
	Duplicate bool                  `json:"duplicate"` // already completed today; nothing was granted
	Grant     *Grant                `json:"grant,omitempty"`
}

// Challenges tracks daily challenge completions, once per UTC day.
type Challenges struct {
	store  domain.RemoteStore
	ledger *Ledger
	cat    *catalog.Catalog
	log    *zap.Logger
	now    Clock
}

// NewChallenges creates the daily challenge tracker.
func NewChallenges(store domain.RemoteStore, ledger *Ledger, cat *catalog.Catalog, log *zap.Logger) *Challenges {
	return &Challenges{store: store, ledger: ledger, cat: cat, log: logging.OrNop(log), now: time.Now}
}

// Complete grants the challenge reward unless a record for
// (uid, challenge, today) exists, then records today's completion.
func (c *Challenges) Complete(ctx context.Context, uid, challengeID string) (*ChallengeResult, error) {
	if err := ValidateUserID(uid); err != nil {
		return nil, err
	}
	ch, err := ValidateChallengeID(c.cat, challengeID)
	if err != nil {
		return nil, err
	}

	now := c.now().UTC()
	today := domain.DayKey(now)
	res := &ChallengeResult{Challenge: *ch, Date: today}

	existing, err := c.store.FindChallengeCompletions(ctx, domain.ChallengeQuery{
		UserID: uid, ChallengeID: challengeID, Date: today,
	})
	if err != nil {
		return nil, fmt.Errorf("query completions: %w", err)
	}
	if len(existing) > 0 {
		res.Duplicate = true
		return res, nil
	}

	g, err := c.ledger.AwardXP(ctx, uid, ch.XPReward, "Daily challenge: "+ch.Title,
		domain.XPMetadata{ChallengeID: ch.ID})
	if err != nil {
		return nil, err
	}
	res.Grant = g

	err = c.store.AppendChallengeCompletion(ctx, domain.DailyChallengeProgress{
		ID:          uuid.NewString(),
		UserID:      uid,
		ChallengeID: ch.ID,
		CompletedAt: now,
		XPAwarded:   ch.XPReward,
		Date:        today,
	})
	if err != nil {
		return res, fmt.Errorf("record completion: %w", err)
	}

	metrics.ChallengesCompleted.WithLabelValues(ch.ID).Inc()
	return res, nil
}

// List returns the catalog annotated with today's completion. If the
// query fails every challenge is reported incomplete.
func (c *Challenges) List(ctx context.Context, uid string) []domain.ChallengeStatus {
	out := make([]domain.ChallengeStatus, len(c.cat.Challenges))
	for i, ch := range c.cat.Challenges {
		out[i] = domain.ChallengeStatus{DailyChallenge: ch}
	}

	done := BestEffort(c.log, "list_challenges", func() (map[string]bool, error) {
		if err := ValidateUserID(uid); err != nil {
			return nil, err
		}
		recs, err := c.store.FindChallengeCompletions(ctx, domain.ChallengeQuery{
			UserID: uid, Date: domain.DayKey(c.now()),
		})
		if err != nil {
			return nil, err
		}
		m := make(map[string]bool, len(recs))
		for _, r := range recs {
			m[r.ChallengeID] = true
		}
		return m, nil
	})

	for i := range out {
		out[i].Completed = done[out[i].ID]
	}
	return out
}
