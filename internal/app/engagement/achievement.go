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

// Unlock is one newly unlocked achievement and the XP grant it produced.
// Grant is nil when the reward could not be committed; RewardErr says why.
type Unlock struct {
	Achievement domain.Achievement `json:"achievement"`
	Grant       *Grant             `json:"grant,omitempty"`
	RewardErr   error              `json:"-"`
}

// UnlockError reports the step at which an unlock stopped.
type UnlockError struct {
	AchievementID string
	Step          string
	Err           error
}

func (e *UnlockError) Error() string {
	return fmt.Sprintf("unlock %s at %s: %v", e.AchievementID, e.Step, e.Err)
}

func (e *UnlockError) Unwrap() error { return e.Err }

// Evaluator checks the achievement catalog against a profile and unlocks
// what is newly satisfied.
type Evaluator struct {
	store  domain.RemoteStore
	ledger *Ledger
	cat    *catalog.Catalog
	log    *zap.Logger
	now    Clock
	// satisfies is swapped in tests to count predicate evaluations.
	satisfies func(domain.Requirement, domain.ActionContext, *domain.UserProfile) bool
}

// NewEvaluator creates an evaluator over the catalog.
func NewEvaluator(store domain.RemoteStore, ledger *Ledger, cat *catalog.Catalog, log *zap.Logger) *Evaluator {
	return &Evaluator{
		store:     store,
		ledger:    ledger,
		cat:       cat,
		log:       logging.OrNop(log),
		now:       time.Now,
		satisfies: Satisfies,
	}
}

// CheckAchievements evaluates the achievements relevant to actx and unlocks
// the satisfied ones. It never fails: any top-level error yields an empty
// result, and a failed unlock is skipped without aborting the rest.
func (e *Evaluator) CheckAchievements(ctx context.Context, uid string, actx domain.ActionContext) []Unlock {
	return BestEffort(e.log, "check_achievements", func() ([]Unlock, error) {
		return e.check(ctx, uid, actx)
	})
}

func (e *Evaluator) check(ctx context.Context, uid string, actx domain.ActionContext) ([]Unlock, error) {
	if err := ValidateUserID(uid); err != nil {
		return nil, err
	}
	p, err := e.store.GetProfile(ctx, uid)
	if err != nil {
		return nil, fmt.Errorf("load profile: %w", err)
	}

	var unlocked []Unlock
	for _, a := range e.Satisfied(actx, p) {
		u, err := e.UnlockAchievement(ctx, uid, a.ID)
		if u != nil && u.RewardErr != nil {
			// The flag landed; the caller decides where the reward goes.
			unlocked = append(unlocked, *u)
			continue
		}
		if err != nil {
			e.log.Warn("achievement unlock failed",
				zap.String("uid", uid),
				zap.String("achievement", a.ID),
				zap.Error(err))
			continue
		}
		if u != nil {
			unlocked = append(unlocked, *u)
		}
	}
	return unlocked, nil
}

// Satisfied returns the catalog entries relevant to actx that p has not
// unlocked yet and whose requirement now holds. Pure.
func (e *Evaluator) Satisfied(actx domain.ActionContext, p *domain.UserProfile) []domain.Achievement {
	var out []domain.Achievement
	for _, a := range e.cat.Achievements {
		if !actx.Type.Matches(a.Requirement.Type()) {
			continue
		}
		if p.HasAchievement(a.ID) {
			continue
		}
		if e.satisfies(a.Requirement, actx, p) {
			out = append(out, a)
		}
	}
	return out
}

// Satisfies evaluates one requirement against the action context and the
// profile. Context counters win when present; counts take the larger of
// the two sources.
func Satisfies(req domain.Requirement, actx domain.ActionContext, p *domain.UserProfile) bool {
	switch r := req.(type) {
	case domain.LessonComplete:
		n := int64(p.CompletedLessonCount(r.CourseID))
		if actx.LessonCount != nil && (r.CourseID == "" || r.CourseID == actx.CourseID) {
			n = max(n, *actx.LessonCount)
		}
		return n >= r.Value

	case domain.CourseComplete:
		if r.CourseID != "" {
			if actx.CourseCompleted && actx.CourseID == r.CourseID {
				return true
			}
			c := p.Course(r.CourseID)
			return c != nil && c.CourseCompleted
		}
		n := int64(p.CompletedCourseCount())
		if actx.CourseCompleted {
			n = max(n, 1)
		}
		return n >= r.Value

	case domain.StreakRequirement:
		return orProfile(actx.Streak, int64(p.StreakDays)) >= r.Value

	case domain.XPTotal:
		return orProfile(actx.TotalXP, p.XP) >= r.Value

	case domain.ProjectCount:
		return orProfile(actx.Projects, int64(len(p.SavedProjects))) >= r.Value

	case domain.LikeCount:
		return orProfile(actx.Likes, int64(len(p.LikedProjects))) >= r.Value
	}
	// Requirement is sealed; reaching here means a variant was added
	// without a case above.
	panic(fmt.Sprintf("engagement: unhandled requirement %T", req))
}

func orProfile(v *int64, fallback int64) int64 {
	if v != nil {
		return *v
	}
	return fallback
}

// ─── Unlock ─────────────────────────────────────────────────────────────────

// unlockStep orders the three effects of an unlock. They are separate
// writes; the cursor records how far a given unlock got.
type unlockStep int

const (
	stepAddFlag unlockStep = iota
	stepGrantXP
	stepAudit
	stepDone
)

func (s unlockStep) String() string {
	switch s {
	case stepAddFlag:
		return "add_flag"
	case stepGrantXP:
		return "grant_xp"
	case stepAudit:
		return "audit"
	}
	return "done"
}

type unlockPlan struct {
	uid    string
	a      domain.Achievement
	cursor unlockStep
	grant  *Grant
	at     time.Time
}

func (p *unlockPlan) fail(err error) error {
	return &UnlockError{AchievementID: p.a.ID, Step: p.cursor.String(), Err: err}
}

// UnlockAchievement unlocks id for uid. Returns (nil, nil) when it was
// already unlocked: no XP, no audit record. If the flag was written but the
// reward failed, both an Unlock carrying RewardErr and the error return.
func (e *Evaluator) UnlockAchievement(ctx context.Context, uid, id string) (*Unlock, error) {
	if err := ValidateUserID(uid); err != nil {
		return nil, err
	}
	a, err := ValidateAchievementID(e.cat, id)
	if err != nil {
		return nil, err
	}

	p, err := e.store.GetProfile(ctx, uid)
	if err != nil {
		return nil, err
	}
	if p.HasAchievement(id) {
		return nil, nil
	}

	plan := &unlockPlan{uid: uid, a: *a, at: e.now().UTC()}
	if err := e.run(ctx, plan); err != nil {
		if plan.cursor == stepGrantXP {
			metrics.AchievementsUnlocked.WithLabelValues(id).Inc()
			return &Unlock{Achievement: *a, RewardErr: err}, err
		}
		return nil, err
	}
	if plan.cursor != stepDone {
		// Lost the race on the set union; someone else unlocked it.
		return nil, nil
	}

	metrics.AchievementsUnlocked.WithLabelValues(id).Inc()
	e.log.Info("achievement unlocked",
		zap.String("uid", uid),
		zap.String("achievement", id),
		zap.Int64("xp", a.XPReward))
	return &Unlock{Achievement: *a, Grant: plan.grant}, nil
}

// run advances the plan until done or the first failure. A plan that
// stopped on an error can be resumed by calling run again.
func (e *Evaluator) run(ctx context.Context, p *unlockPlan) error {
	for p.cursor < stepDone {
		switch p.cursor {
		case stepAddFlag:
			added, err := e.store.AddUnlockedAchievement(ctx, p.uid, p.a.ID)
			if err != nil {
				return p.fail(err)
			}
			if !added {
				return nil
			}

		case stepGrantXP:
			g, err := e.ledger.AwardXP(ctx, p.uid, p.a.XPReward,
				"Achievement unlocked: "+p.a.Title,
				domain.XPMetadata{AchievementID: p.a.ID})
			if err != nil {
				return p.fail(err)
			}
			p.grant = g

		case stepAudit:
			err := e.store.AppendAchievementUnlock(ctx, domain.AchievementUnlock{
				ID:            uuid.NewString(),
				UserID:        p.uid,
				AchievementID: p.a.ID,
				UnlockedAt:    p.at,
				XPAwarded:     p.a.XPReward,
			})
			if err != nil {
				// Flag and reward are in; a missing audit row is not worth
				// failing the unlock over.
				e.log.Warn("unlock audit append failed",
					zap.String("uid", p.uid),
					zap.String("achievement", p.a.ID),
					zap.Error(err))
			}
		}
		p.cursor++
	}
	return nil
}
