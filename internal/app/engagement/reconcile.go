package engagement

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/vibe-dev/academy/internal/domain"
	"github.com/vibe-dev/academy/internal/infra/catalog"
	"github.com/vibe-dev/academy/internal/infra/logging"
	"github.com/vibe-dev/academy/internal/infra/metrics"
)

// ReconcileConfig sets the sync cadence.
type ReconcileConfig struct {
	Interval time.Duration
	Timeout  time.Duration // bound on one Reconcile call
}

// DefaultReconcileConfig syncs every 30s with a 10s bound.
func DefaultReconcileConfig() ReconcileConfig {
	return ReconcileConfig{Interval: 30 * time.Second, Timeout: 10 * time.Second}
}

// ReconcileResult reports what one pass pushed.
type ReconcileResult struct {
	UserID       string   `json:"uid"`
	PushedXP     int64    `json:"pushed_xp"`
	Lessons      int      `json:"lessons"`
	Courses      int      `json:"courses"`
	Achievements int      `json:"achievements"`
	Streak       bool     `json:"streak"`
	Grant        *Grant   `json:"grant,omitempty"`
	Unlocks      []Unlock `json:"unlocks,omitempty"` // from the follow-up achievement pass
}

// Reconciler pushes local mirrors back to the remote store. Every step
// is persisted to the mirror as soon as it lands, so an interrupted pass
// resumes without pushing anything twice.
type Reconciler struct {
	remote    domain.RemoteStore
	mirror    *Mirror
	ledger    *Ledger
	evaluator *Evaluator
	cat       *catalog.Catalog
	cfg       ReconcileConfig
	log       *zap.Logger
	now       Clock

	sched gocron.Scheduler
}

// NewReconciler creates a reconciler.
func NewReconciler(remote domain.RemoteStore, mirror *Mirror, ledger *Ledger, ev *Evaluator,
	cat *catalog.Catalog, cfg ReconcileConfig, log *zap.Logger) *Reconciler {
	return &Reconciler{
		remote:    remote,
		mirror:    mirror,
		ledger:    ledger,
		evaluator: ev,
		cat:       cat,
		cfg:       cfg,
		log:       logging.OrNop(log),
		now:       time.Now,
	}
}

// Reconcile pushes uid's mirror. Mirrored fields merge into the remote
// profile: sets by union, XP by the unsynced delta, streak by the later
// check-in. A clean mirror only probes connectivity.
func (r *Reconciler) Reconcile(ctx context.Context, uid string) (res *ReconcileResult, err error) {
	if err := ValidateUserID(uid); err != nil {
		return nil, err
	}
	if r.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.cfg.Timeout)
		defer cancel()
	}
	defer func() {
		result := "ok"
		if err != nil {
			result = "error"
		}
		metrics.ReconcileRuns.WithLabelValues(result).Inc()
	}()

	res = &ReconcileResult{UserID: uid}
	rec, err := r.mirror.Load(uid)
	if err != nil {
		return nil, err
	}
	if rec == nil || !rec.Dirty() {
		if err := r.remote.Ping(ctx); err != nil {
			return nil, fmt.Errorf("%w: %v", domain.ErrStoreUnavailable, err)
		}
		if rec != nil {
			if _, err := r.mirror.Update(uid, nil, func(rec *domain.LocalFallbackRecord) error {
				rec.LastSync = r.now().UTC()
				return nil
			}); err != nil {
				return nil, err
			}
		}
		return res, nil
	}

	remote, err := r.ensureProfile(ctx, uid)
	if err != nil {
		return nil, err
	}

	steps := []func(context.Context, *domain.LocalFallbackRecord, *domain.UserProfile, *ReconcileResult) error{
		r.pushAchievements,
		r.pushLessons,
		r.pushCourses,
		r.pushXP,
		r.pushStreak,
	}
	for _, step := range steps {
		if err := step(ctx, rec, remote, res); err != nil {
			return res, err
		}
	}

	if _, err := r.mirror.Update(uid, nil, func(rec *domain.LocalFallbackRecord) error {
		rec.LastSync = r.now().UTC()
		return nil
	}); err != nil {
		return res, err
	}

	r.log.Info("local mirror reconciled",
		zap.String("uid", uid),
		zap.Int64("xp", res.PushedXP),
		zap.Int("lessons", res.Lessons),
		zap.Int("courses", res.Courses),
		zap.Int("achievements", res.Achievements))

	res.Unlocks = r.evaluator.CheckAchievements(ctx, uid, domain.ActionContext{Type: domain.ActionAll})
	return res, nil
}

func (r *Reconciler) ensureProfile(ctx context.Context, uid string) (*domain.UserProfile, error) {
	p, err := r.remote.GetProfile(ctx, uid)
	if errors.Is(err, domain.ErrProfileNotFound) {
		if err := r.remote.CreateProfile(ctx, domain.UserProfile{UID: uid, Level: 1}); err != nil {
			return nil, fmt.Errorf("create profile: %w", err)
		}
		p, err = r.remote.GetProfile(ctx, uid)
	}
	if err != nil {
		return nil, fmt.Errorf("load profile: %w", err)
	}
	return p, nil
}

// pushAchievements unions local unlocks. An unlock that is already remote
// takes its reward back out of the pending delta.
func (r *Reconciler) pushAchievements(ctx context.Context, rec *domain.LocalFallbackRecord, _ *domain.UserProfile, res *ReconcileResult) error {
	for _, id := range rec.PendingAchievements {
		a := r.cat.Achievement(id)
		added, err := r.remote.AddUnlockedAchievement(ctx, rec.UserID, id)
		if err != nil {
			return fmt.Errorf("push achievement %s: %w", id, err)
		}
		if added && a != nil {
			err := r.remote.AppendAchievementUnlock(ctx, domain.AchievementUnlock{
				ID: uuid.NewString(), UserID: rec.UserID, AchievementID: id,
				UnlockedAt: r.now().UTC(), XPAwarded: a.XPReward,
			})
			if err != nil {
				r.log.Warn("unlock audit append failed", zap.String("uid", rec.UserID), zap.String("achievement", id), zap.Error(err))
			}
		}
		if added {
			res.Achievements++
		}

		_, err = r.mirror.Update(rec.UserID, nil, func(m *domain.LocalFallbackRecord) error {
			m.PendingAchievements = removeString(m.PendingAchievements, id)
			if !added && a != nil {
				m.PendingXP = max(m.PendingXP-a.XPReward, 0)
			}
			return nil
		})
		if err != nil {
			return err
		}
	}
	return nil
}

func (r *Reconciler) pushLessons(ctx context.Context, rec *domain.LocalFallbackRecord, _ *domain.UserProfile, res *ReconcileResult) error {
	for _, l := range rec.CompletedLessons {
		if l.Synced {
			continue
		}
		added, err := r.remote.AddCompletedLesson(ctx, rec.UserID, l.CourseID, l.LessonID, l.CompletedAt)
		if err != nil {
			return fmt.Errorf("push lesson %s/%s: %w", l.CourseID, l.LessonID, err)
		}
		if added {
			res.Lessons++
		}

		_, err = r.mirror.Update(rec.UserID, nil, func(m *domain.LocalFallbackRecord) error {
			for i := range m.CompletedLessons {
				ml := &m.CompletedLessons[i]
				if ml.CourseID == l.CourseID && ml.LessonID == l.LessonID && !ml.Synced {
					ml.Synced = true
					if !added {
						m.PendingXP = max(m.PendingXP-ml.XP, 0)
					}
				}
			}
			return nil
		})
		if err != nil {
			return err
		}
	}
	return nil
}

func (r *Reconciler) pushCourses(ctx context.Context, rec *domain.LocalFallbackRecord, _ *domain.UserProfile, res *ReconcileResult) error {
	for _, c := range rec.CompletedCourses {
		if c.Synced {
			continue
		}
		added, err := r.remote.MarkCourseCompleted(ctx, rec.UserID, c.CourseID, c.CompletedAt)
		if err != nil {
			return fmt.Errorf("push course %s: %w", c.CourseID, err)
		}
		if added {
			res.Courses++
		}

		_, err = r.mirror.Update(rec.UserID, nil, func(m *domain.LocalFallbackRecord) error {
			for i := range m.CompletedCourses {
				mc := &m.CompletedCourses[i]
				if mc.CourseID == c.CourseID && !mc.Synced {
					mc.Synced = true
					if !added {
						m.PendingXP = max(m.PendingXP-mc.XP, 0)
					}
				}
			}
			return nil
		})
		if err != nil {
			return err
		}
	}
	return nil
}

// pushXP sends the pending delta as one "offline sync" grant. The grant's
// transaction ID and amount are saved to the mirror before the push, and
// an interrupted push is retried under that same ID, which the store
// applies at most once.
func (r *Reconciler) pushXP(ctx context.Context, rec *domain.LocalFallbackRecord, _ *domain.UserProfile, res *ReconcileResult) error {
	cur, err := r.mirror.Update(rec.UserID, nil, func(m *domain.LocalFallbackRecord) error {
		if m.SyncTxID == "" && m.PendingXP > 0 {
			m.SyncTxID = uuid.NewString()
			m.SyncXP = m.PendingXP
		}
		return nil
	})
	if err != nil {
		return err
	}
	if cur.SyncTxID == "" {
		return nil
	}
	txID, delta := cur.SyncTxID, cur.SyncXP

	g, err := r.ledger.SyncXP(ctx, rec.UserID, txID, delta)
	if err != nil {
		return fmt.Errorf("push xp: %w", err)
	}
	res.PushedXP = delta
	res.Grant = g

	_, err = r.mirror.Update(rec.UserID, nil, func(m *domain.LocalFallbackRecord) error {
		if m.SyncTxID != txID {
			return nil
		}
		m.PendingXP = max(m.PendingXP-delta, 0)
		m.SyncTxID, m.SyncXP = "", 0
		if g.NewXP > 0 {
			m.XP = g.NewXP + m.PendingXP
			m.Level = max(m.Level, g.NewLevel.Level)
		}
		return nil
	})
	return err
}

// pushStreak writes the local check-in unless the remote one is newer.
func (r *Reconciler) pushStreak(ctx context.Context, rec *domain.LocalFallbackRecord, remote *domain.UserProfile, res *ReconcileResult) error {
	if !rec.StreakDirty {
		return nil
	}
	if rec.LastLogin.After(remote.LastLogin) {
		if err := r.remote.UpdateStreak(ctx, rec.UserID, rec.Streak, rec.LastLogin); err != nil {
			return fmt.Errorf("push streak: %w", err)
		}
		res.Streak = true
	}
	_, err := r.mirror.Update(rec.UserID, nil, func(m *domain.LocalFallbackRecord) error {
		if !m.LastLogin.After(rec.LastLogin) {
			m.StreakDirty = false
		}
		return nil
	})
	return err
}

// ─── Periodic Sync ──────────────────────────────────────────────────────────

// Start registers a singleton gocron job that reconciles, every interval,
// each user with a dirty mirror plus whatever extra lists. onSynced runs
// after each successful pass.
func (r *Reconciler) Start(extra func() []string, onSynced func(uid string, res *ReconcileResult)) error {
	if r.sched != nil {
		return nil
	}
	sched, err := gocron.NewScheduler()
	if err != nil {
		return fmt.Errorf("create scheduler: %w", err)
	}
	_, err = sched.NewJob(
		gocron.DurationJob(r.cfg.Interval),
		gocron.NewTask(func() { r.RunOnce(context.Background(), extra, onSynced) }),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
		gocron.WithName("reconcile-local-mirrors"),
	)
	if err != nil {
		_ = sched.Shutdown()
		return fmt.Errorf("schedule reconcile: %w", err)
	}
	sched.Start()
	r.sched = sched
	r.log.Info("reconciler started", zap.Duration("interval", r.cfg.Interval))
	return nil
}

// RunOnce performs one sweep. Failures leave the mirror for the next tick.
func (r *Reconciler) RunOnce(ctx context.Context, extra func() []string, onSynced func(uid string, res *ReconcileResult)) {
	users, err := r.mirror.DirtyUsers()
	if err != nil {
		r.log.Warn("list dirty mirrors failed", zap.Error(err))
	}
	if extra != nil {
		users = append(users, extra()...)
	}

	seen := make(map[string]bool, len(users))
	for _, uid := range users {
		if seen[uid] {
			continue
		}
		seen[uid] = true

		res, err := r.Reconcile(ctx, uid)
		if err != nil {
			r.log.Debug("reconcile deferred", zap.String("uid", uid), zap.Error(err))
			continue
		}
		if onSynced != nil {
			onSynced(uid, res)
		}
	}
}

// Stop shuts the scheduler down.
func (r *Reconciler) Stop() error {
	if r.sched == nil {
		return nil
	}
	err := r.sched.Shutdown()
	r.sched = nil
	return err
}

func removeString(s []string, v string) []string {
	out := s[:0]
	for _, x := range s {
		if x != v {
			out = append(out, x)
		}
	}
	return out
}
