package engagement

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/vibe-dev/academy/internal/domain"
	"github.com/vibe-dev/academy/internal/infra/catalog"
	"github.com/vibe-dev/academy/internal/infra/logging"
	"github.com/vibe-dev/academy/internal/infra/metrics"
)

// Rewards for progress actions that are not lessons.
const (
	CourseCompletionXP int64 = 200
	ProjectUploadXP    int64 = 75
)

// Config collects the engine's tunables.
type Config struct {
	Ledger    LedgerConfig
	Streak    StreakConfig
	Batch     BatchConfig
	Notify    DispatchConfig
	Reconcile ReconcileConfig
}

// DefaultConfig returns stock settings.
func DefaultConfig() Config {
	return Config{
		Ledger:    DefaultLedgerConfig(),
		Streak:    DefaultStreakConfig(),
		Batch:     DefaultBatchConfig(),
		Notify:    DefaultDispatchConfig(),
		Reconcile: DefaultReconcileConfig(),
	}
}

// ─── Engine ─────────────────────────────────────────────────────────────────

// Engine owns the shared, stateless services and the open sessions.
type Engine struct {
	remote  domain.RemoteStore
	catalog *catalog.Catalog
	levels  *LevelTable
	cfg     Config
	log     *zap.Logger
	now     Clock

	Ledger     *Ledger
	Evaluator  *Evaluator
	Streaks    *StreakTracker
	Challenges *Challenges
	Mirror     *Mirror
	Reconciler *Reconciler

	mu       sync.Mutex
	sessions map[string]*Session
}

// NewEngine wires the services over the two stores.
func NewEngine(remote domain.RemoteStore, local domain.LocalStore, cat *catalog.Catalog, cfg Config, log *zap.Logger) (*Engine, error) {
	log = logging.OrNop(log)
	if cat == nil {
		cat = catalog.Default()
	}
	if err := cat.Validate(); err != nil {
		return nil, fmt.Errorf("catalog: %w", err)
	}
	if err := cat.ValidateRewards(cfg.Ledger.Limits.MaxGrant); err != nil {
		return nil, fmt.Errorf("catalog: %w", err)
	}
	levels, err := NewLevelTable(cat.Levels)
	if err != nil {
		return nil, err
	}

	e := &Engine{
		remote:   remote,
		catalog:  cat,
		levels:   levels,
		cfg:      cfg,
		log:      log,
		now:      time.Now,
		sessions: make(map[string]*Session),
	}
	e.Ledger = NewLedger(remote, levels, cfg.Ledger, log.Named("ledger"))
	e.Evaluator = NewEvaluator(remote, e.Ledger, cat, log.Named("achievements"))
	e.Streaks = NewStreakTracker(remote, e.Ledger, cfg.Streak, log.Named("streak"))
	e.Challenges = NewChallenges(remote, e.Ledger, cat, log.Named("challenges"))
	e.Mirror = NewMirror(local, levels, cfg.Streak)
	e.Reconciler = NewReconciler(remote, e.Mirror, e.Ledger, e.Evaluator, cat, cfg.Reconcile, log.Named("reconcile"))
	return e, nil
}

// Catalog returns the static catalogs.
func (e *Engine) Catalog() *catalog.Catalog { return e.catalog }

// Now returns the engine clock's current time.
func (e *Engine) Now() time.Time { return e.now() }

// Levels returns the level table.
func (e *Engine) Levels() *LevelTable { return e.levels }

// SetClock replaces the time source of every service. Tests only.
func (e *Engine) SetClock(now Clock) {
	e.now = now
	e.Ledger.now = now
	e.Evaluator.now = now
	e.Streaks.now = now
	e.Challenges.now = now
	e.Mirror.now = now
	e.Reconciler.now = now
}

// Start begins periodic reconciliation.
func (e *Engine) Start() error {
	return e.Reconciler.Start(e.localModeUsers, e.onSynced)
}

// ReconcileNow runs one reconciliation sweep synchronously.
func (e *Engine) ReconcileNow(ctx context.Context) {
	e.Reconciler.RunOnce(ctx, e.localModeUsers, e.onSynced)
}

// Close closes every session and stops the scheduler.
func (e *Engine) Close(ctx context.Context) error {
	e.mu.Lock()
	sessions := make([]*Session, 0, len(e.sessions))
	for _, s := range e.sessions {
		sessions = append(sessions, s)
	}
	e.mu.Unlock()

	var errs []error
	for _, s := range sessions {
		if err := s.Close(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	if err := e.Reconciler.Stop(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// Session returns the open session for uid.
func (e *Engine) Session(uid string) (*Session, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	s, ok := e.sessions[uid]
	return s, ok
}

// OpenSession returns the session for uid, opening it on first use. The
// profile is created on first login. If the remote store is unreachable
// the session opens in local mode.
func (e *Engine) OpenSession(ctx context.Context, uid string) (*Session, error) {
	if err := ValidateUserID(uid); err != nil {
		return nil, err
	}

	e.mu.Lock()
	if s, ok := e.sessions[uid]; ok {
		e.mu.Unlock()
		return s, nil
	}
	e.mu.Unlock()

	sctx, cancel := context.WithCancel(context.Background())
	s := &Session{
		e:      e,
		uid:    uid,
		log:    e.log.With(zap.String("uid", uid)),
		ctx:    sctx,
		cancel: cancel,
	}
	s.dispatcher = NewDispatcher(e.cfg.Notify, s.log.Named("notify"))
	s.batcher = NewBatcher(e.cfg.Batch, e.cfg.Ledger.Limits.ReasonMaxLen, s.flushBatch, func(err error) {
		s.log.Warn("debounced xp flush failed", zap.Error(err))
	})

	p, err := e.loadOrCreate(ctx, uid)
	switch {
	case err == nil:
		s.snapshot = p
		s.subscribe()
	case domain.IsRetryable(err):
		s.log.Warn("remote store unreachable, opening in local mode", zap.Error(err))
		s.enterLocal()
	default:
		cancel()
		s.dispatcher.Close()
		return nil, err
	}

	e.mu.Lock()
	if existing, ok := e.sessions[uid]; ok {
		e.mu.Unlock()
		cancel()
		s.dispatcher.Close()
		if s.local {
			metrics.LocalModeSessions.Dec()
		}
		return existing, nil
	}
	e.sessions[uid] = s
	e.mu.Unlock()
	return s, nil
}

func (e *Engine) loadOrCreate(ctx context.Context, uid string) (*domain.UserProfile, error) {
	opCtx, cancel := context.WithTimeout(ctx, e.cfg.Ledger.OpTimeout)
	defer cancel()

	p, err := e.remote.GetProfile(opCtx, uid)
	if errors.Is(err, domain.ErrProfileNotFound) {
		if err := e.remote.CreateProfile(opCtx, domain.UserProfile{UID: uid, Level: 1}); err != nil {
			return nil, err
		}
		e.log.Info("profile created", zap.String("uid", uid))
		p, err = e.remote.GetProfile(opCtx, uid)
	}
	return p, err
}

func (e *Engine) forget(s *Session) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.sessions[s.uid] == s {
		delete(e.sessions, s.uid)
	}
}

func (e *Engine) localModeUsers() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	var out []string
	for uid, s := range e.sessions {
		if s.InLocalMode() {
			out = append(out, uid)
		}
	}
	return out
}

func (e *Engine) onSynced(uid string, res *ReconcileResult) {
	if s, ok := e.Session(uid); ok {
		s.synced(res)
	}
}

// ─── Session ────────────────────────────────────────────────────────────────

// Outcome describes what a progress action did. The action itself has
// succeeded whenever Outcome is returned; XP may have gone to the mirror.
type Outcome struct {
	Granted   int64                `json:"granted"`
	Local     bool                 `json:"local"`
	Duplicate bool                 `json:"duplicate"`
	LeveledUp bool                 `json:"leveled_up"`
	Level     *domain.LevelInfo    `json:"level,omitempty"`
	Streak    *StreakResult        `json:"streak,omitempty"`
	Challenge *ChallengeResult     `json:"challenge,omitempty"`
	Unlocked  []domain.Achievement `json:"unlocked,omitempty"`
}

func (o *Outcome) levelUp(l domain.LevelInfo) {
	o.LeveledUp = true
	o.Level = &l
}

// Snapshot is the in-memory display state of a session.
type Snapshot struct {
	UserID       string            `json:"uid"`
	XP           int64             `json:"xp"`
	Level        domain.LevelInfo  `json:"level"`
	Progress     domain.Progress   `json:"progress"`
	NextLevel    *domain.LevelInfo `json:"next_level,omitempty"`
	StreakDays   int               `json:"streak_days"`
	Achievements []string          `json:"unlocked_achievements"`
	LocalMode    bool              `json:"local_mode"`
	PendingXP    int64             `json:"pending_xp"`
	LastSync     time.Time         `json:"last_sync,omitzero"`
}

// Session is one user's gamification context: the local-mode flag, the
// notification queue, the XP debouncer and the live profile view all live
// here and die with Close.
type Session struct {
	e          *Engine
	uid        string
	log        *zap.Logger
	dispatcher *Dispatcher
	batcher    *Batcher
	ctx        context.Context // lives until Close
	cancel     context.CancelFunc

	opMu  sync.Mutex // serializes this user's operations
	subMu sync.Mutex // serializes change-feed subscription

	mu       sync.Mutex
	snapshot *domain.UserProfile
	local    bool
	closed   bool
	watching bool
}

// UserID returns the session's user.
func (s *Session) UserID() string { return s.uid }

// InLocalMode reports whether writes currently go to the mirror.
func (s *Session) InLocalMode() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.local
}

// Dispatcher exposes the session's notification dispatcher.
func (s *Session) Dispatcher() *Dispatcher { return s.dispatcher }

// Subscribe registers a presentation listener.
func (s *Session) Subscribe(fn Listener) func() { return s.dispatcher.Subscribe(fn) }

// Profile returns the last known profile merged with the local mirror.
func (s *Session) Profile() *domain.UserProfile {
	s.mu.Lock()
	base := s.snapshot
	local := s.local
	s.mu.Unlock()

	rec, err := s.e.Mirror.Load(s.uid)
	if err != nil || rec == nil || (!local && !rec.Dirty()) {
		if base == nil {
			return &domain.UserProfile{UID: s.uid, Level: 1}
		}
		return Overlay(base, nil)
	}
	return Overlay(base, rec)
}

// Snapshot returns the current display state.
func (s *Session) Snapshot() Snapshot {
	p := s.Profile()
	lvl := s.e.levels.LevelForXP(p.XP)
	snap := Snapshot{
		UserID:       s.uid,
		XP:           p.XP,
		Level:        lvl,
		Progress:     s.e.levels.ProgressWithinLevel(p.XP),
		StreakDays:   p.StreakDays,
		Achievements: p.UnlockedAchievements,
		LocalMode:    s.InLocalMode(),
	}
	if next, ok := s.e.levels.NextLevel(p.XP); ok {
		snap.NextLevel = &next
	}
	if rec, err := s.e.Mirror.Load(s.uid); err == nil && rec != nil {
		snap.PendingXP = rec.PendingXP
		snap.LastSync = rec.LastSync
	}
	return snap
}

// Close flushes queued XP synchronously and tears the session down.
func (s *Session) Close(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	err := s.batcher.Close(ctx)
	s.cancel()
	s.dispatcher.Close()

	s.mu.Lock()
	if s.local {
		s.local = false
		metrics.LocalModeSessions.Dec()
	}
	s.mu.Unlock()

	s.e.forget(s)
	return err
}

func (s *Session) begin() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return domain.ErrSessionClosed
	}
	return nil
}

// subscribe attaches the session to the remote change feed unless it is
// already attached. A session opened in local mode attaches on its first
// successful sync.
func (s *Session) subscribe() {
	s.subMu.Lock()
	defer s.subMu.Unlock()

	s.mu.Lock()
	skip := s.watching || s.closed
	s.mu.Unlock()
	if skip {
		return
	}

	ch, err := s.e.remote.Subscribe(s.ctx, s.uid)
	if err != nil {
		s.log.Warn("profile subscription unavailable", zap.Error(err))
		return
	}
	s.mu.Lock()
	s.watching = true
	s.mu.Unlock()
	go s.watch(ch)
}

func (s *Session) watch(ch <-chan domain.UserProfile) {
	for p := range ch {
		s.replaceSnapshot(&p)
	}
	s.mu.Lock()
	s.watching = false
	s.mu.Unlock()
}

// replaceSnapshot installs p as the cached profile. XP, level and the
// unlock set only grow in the store, so a notification that was in flight
// while a newer write landed cannot roll them back.
func (s *Session) replaceSnapshot(p *domain.UserProfile) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if cur := s.snapshot; cur != nil {
		p.XP = max(p.XP, cur.XP)
		p.Level = max(p.Level, cur.Level)
		for _, id := range cur.UnlockedAchievements {
			if !p.HasAchievement(id) {
				p.UnlockedAchievements = append(p.UnlockedAchievements, id)
			}
		}
	}
	s.snapshot = p
}

func (s *Session) base() *domain.UserProfile {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshot
}

func (s *Session) setSnapshotXP(g *Grant) {
	if g == nil || g.NewXP == 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.snapshot != nil && g.NewXP > s.snapshot.XP {
		s.snapshot.XP = g.NewXP
		s.snapshot.Level = max(s.snapshot.Level, g.NewLevel.Level)
	}
}

// markUnlocked adds a remotely unlocked ID to the cached profile ahead of
// the subscription update.
func (s *Session) markUnlocked(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.snapshot != nil && !s.snapshot.HasAchievement(id) {
		s.snapshot.UnlockedAchievements = append(s.snapshot.UnlockedAchievements, id)
	}
}

func (s *Session) refresh(ctx context.Context) {
	opCtx, cancel := context.WithTimeout(ctx, s.e.cfg.Ledger.OpTimeout)
	defer cancel()
	if p, err := s.e.remote.GetProfile(opCtx, s.uid); err == nil {
		s.replaceSnapshot(p)
	}
}

func (s *Session) enterLocal() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.local {
		s.local = true
		metrics.LocalModeSessions.Inc()
		s.log.Warn("entering local mode")
	}
}

func (s *Session) synced(res *ReconcileResult) {
	s.mu.Lock()
	wasLocal := s.local
	if s.local {
		s.local = false
		metrics.LocalModeSessions.Dec()
	}
	s.mu.Unlock()

	if wasLocal {
		s.log.Info("left local mode")
	}
	if res != nil {
		for _, u := range res.Unlocks {
			s.notifyUnlock(context.Background(), u, &Outcome{})
		}
		if res.Grant != nil && res.Grant.LeveledUp {
			s.dispatcher.NotifyLevelUp(s.uid, res.Grant.NewLevel)
		}
	}
	s.subscribe()
	s.refresh(context.Background())
}

// isRemoteFailure reports whether err should flip the session to local mode.
func isRemoteFailure(err error) bool {
	return errors.Is(err, domain.ErrRetriesExhausted) || domain.IsRetryable(err)
}

// ─── XP ─────────────────────────────────────────────────────────────────────

// AwardXP grants XP immediately. Validation errors and a missing profile
// are returned; store outages divert the grant to the mirror.
func (s *Session) AwardXP(ctx context.Context, amount int64, reason string, meta domain.XPMetadata) (*Outcome, error) {
	if err := s.begin(); err != nil {
		return nil, err
	}
	if err := ValidateGrant(s.uid, amount, reason, s.e.cfg.Ledger.Limits); err != nil {
		return nil, err
	}
	s.opMu.Lock()
	defer s.opMu.Unlock()

	out := &Outcome{}
	if err := s.grant(ctx, amount, reason, meta, out); err != nil {
		return nil, err
	}
	return out, nil
}

// QueueXP debounces a grant; it is committed with its neighbours.
func (s *Session) QueueXP(amount int64, reason string) error {
	if err := s.begin(); err != nil {
		return err
	}
	if err := ValidateGrant(s.uid, amount, reason, s.e.cfg.Ledger.Limits); err != nil {
		return err
	}
	return s.batcher.Enqueue(amount, reason)
}

// FlushXP commits any debounced grants now.
func (s *Session) FlushXP(ctx context.Context) error {
	return s.batcher.Flush(ctx)
}

func (s *Session) flushBatch(ctx context.Context, amount int64, reason string) error {
	s.opMu.Lock()
	defer s.opMu.Unlock()

	out := &Outcome{}
	if !s.InLocalMode() {
		g, err := s.e.Ledger.AwardCombined(ctx, s.uid, amount, reason)
		if err == nil {
			s.granted(ctx, g, out)
			return nil
		}
		if !isRemoteFailure(err) {
			return err
		}
		s.enterLocal()
	}
	return s.grantLocal(ctx, amount, reason, out)
}

// grant commits XP remotely, or to the mirror when the store is down.
// Caller holds opMu.
func (s *Session) grant(ctx context.Context, amount int64, reason string, meta domain.XPMetadata, out *Outcome) error {
	if !s.InLocalMode() {
		g, err := s.e.Ledger.AwardXP(ctx, s.uid, amount, reason, meta)
		if err == nil {
			s.granted(ctx, g, out)
			return nil
		}
		if !isRemoteFailure(err) {
			return err
		}
		s.log.Warn("xp grant failed, falling back to local mirror", zap.Int64("amount", amount), zap.Error(err))
		s.enterLocal()
	}
	return s.grantLocal(ctx, amount, reason, out)
}

func (s *Session) granted(ctx context.Context, g *Grant, out *Outcome) {
	out.Granted += g.Amount
	s.setSnapshotXP(g)
	s.dispatcher.NotifyXPGain(s.uid, g.Amount, g.Reason)
	if g.LeveledUp {
		out.levelUp(g.NewLevel)
		s.dispatcher.NotifyLevelUp(s.uid, g.NewLevel)
	}
	if g.NewXP > 0 {
		s.checkRemote(ctx, domain.ActionContext{Type: domain.ActionXP, TotalXP: domain.Int64(g.NewXP)}, out)
	}
}

func (s *Session) grantLocal(ctx context.Context, amount int64, reason string, out *Outcome) error {
	ch, err := s.e.Mirror.AddXP(s.uid, s.base(), amount)
	if err != nil {
		return err
	}
	s.mirrored(ctx, ch, reason, out)
	s.checkLocal(domain.ActionContext{Type: domain.ActionXP}, out)
	return nil
}

func (s *Session) mirrored(_ context.Context, ch *MirrorChange, reason string, out *Outcome) {
	out.Local = true
	if ch.XP > 0 {
		out.Granted += ch.XP
		s.dispatcher.NotifyXPGain(s.uid, ch.XP, reason)
	}
	if ch.LeveledUp {
		out.levelUp(ch.Level)
		s.dispatcher.NotifyLevelUp(s.uid, ch.Level)
	}
}

// ─── Achievements ───────────────────────────────────────────────────────────

// CheckAchievements runs a best-effort evaluation and notifies unlocks.
func (s *Session) CheckAchievements(ctx context.Context, actx domain.ActionContext) []domain.Achievement {
	if s.begin() != nil {
		return nil
	}
	s.opMu.Lock()
	defer s.opMu.Unlock()

	out := &Outcome{}
	if s.InLocalMode() {
		s.checkLocal(actx, out)
	} else {
		s.checkRemote(ctx, actx, out)
	}
	return out.Unlocked
}

// UnlockAchievement unlocks one catalog entry directly.
func (s *Session) UnlockAchievement(ctx context.Context, id string) (*Outcome, error) {
	if err := s.begin(); err != nil {
		return nil, err
	}
	a, err := ValidateAchievementID(s.e.catalog, id)
	if err != nil {
		return nil, err
	}
	s.opMu.Lock()
	defer s.opMu.Unlock()

	out := &Outcome{}
	if !s.InLocalMode() {
		u, err := s.e.Evaluator.UnlockAchievement(ctx, s.uid, id)
		switch {
		case u != nil && u.RewardErr != nil:
			if !isRemoteFailure(u.RewardErr) {
				return nil, err
			}
			s.notifyUnlock(ctx, *u, out)
			return out, nil
		case err == nil && u == nil:
			out.Duplicate = true
			return out, nil
		case err == nil:
			s.notifyUnlock(ctx, *u, out)
			if u.Grant != nil && u.Grant.NewXP > 0 {
				s.checkRemote(ctx, domain.ActionContext{Type: domain.ActionXP, TotalXP: domain.Int64(u.Grant.NewXP)}, out)
			}
			return out, nil
		case !isRemoteFailure(err):
			return nil, err
		}
		s.enterLocal()
	}

	ch, err := s.e.Mirror.UnlockAchievement(s.uid, s.base(), *a)
	if err != nil {
		return nil, err
	}
	if !ch.Added {
		out.Duplicate = true
		return out, nil
	}
	out.Unlocked = append(out.Unlocked, *a)
	s.dispatcher.NotifyAchievementUnlock(s.uid, *a)
	s.mirrored(ctx, ch, "Achievement unlocked: "+a.Title, out)
	return out, nil
}

// checkRemote evaluates and unlocks, repeating while unlock rewards keep
// unlocking XP achievements. Each achievement unlocks at most once, so
// the loop is bounded by the catalog size.
func (s *Session) checkRemote(ctx context.Context, actx domain.ActionContext, out *Outcome) {
	for range len(s.e.catalog.Achievements) + 1 {
		unlocks := s.e.Evaluator.CheckAchievements(ctx, s.uid, actx)
		if len(unlocks) == 0 {
			return
		}
		var lastXP int64
		for _, u := range unlocks {
			s.notifyUnlock(ctx, u, out)
			if u.Grant != nil && u.Grant.NewXP > lastXP {
				lastXP = u.Grant.NewXP
			}
		}
		if lastXP == 0 {
			return
		}
		actx = domain.ActionContext{Type: domain.ActionXP, TotalXP: domain.Int64(lastXP)}
	}
}

func (s *Session) notifyUnlock(ctx context.Context, u Unlock, out *Outcome) {
	out.Unlocked = append(out.Unlocked, u.Achievement)
	s.markUnlocked(u.Achievement.ID)
	s.dispatcher.NotifyAchievementUnlock(s.uid, u.Achievement)
	switch {
	case u.Grant != nil:
		out.Granted += u.Grant.Amount
		s.setSnapshotXP(u.Grant)
		s.dispatcher.NotifyXPGain(s.uid, u.Grant.Amount, u.Grant.Reason)
		if u.Grant.LeveledUp {
			out.levelUp(u.Grant.NewLevel)
			s.dispatcher.NotifyLevelUp(s.uid, u.Grant.NewLevel)
		}
	case u.RewardErr != nil && isRemoteFailure(u.RewardErr):
		// The flag is remote already; only the reward goes to the mirror.
		s.enterLocal()
		if err := s.grantLocal(ctx, u.Achievement.XPReward, "Achievement unlocked: "+u.Achievement.Title, out); err != nil {
			s.log.Warn("achievement reward lost", zap.String("achievement", u.Achievement.ID), zap.Error(err))
		}
	}
}

// checkLocal evaluates against the offline view and records unlocks in
// the mirror. Best-effort like its remote counterpart.
func (s *Session) checkLocal(actx domain.ActionContext, out *Outcome) {
	BestEffort(s.log, "check_achievements_local", func() (struct{}, error) {
		for range len(s.e.catalog.Achievements) + 1 {
			rec, err := s.e.Mirror.Load(s.uid)
			if err != nil {
				return struct{}{}, err
			}
			view := Overlay(s.base(), rec)
			found := s.e.Evaluator.Satisfied(actx, view)
			if len(found) == 0 {
				return struct{}{}, nil
			}
			for _, a := range found {
				ch, err := s.e.Mirror.UnlockAchievement(s.uid, s.base(), a)
				if err != nil {
					return struct{}{}, err
				}
				if !ch.Added {
					continue
				}
				out.Unlocked = append(out.Unlocked, a)
				s.dispatcher.NotifyAchievementUnlock(s.uid, a)
				s.mirrored(context.Background(), ch, "Achievement unlocked: "+a.Title, out)
			}
			actx = domain.ActionContext{Type: domain.ActionXP}
		}
		return struct{}{}, nil
	})
}

// ─── Sync ───────────────────────────────────────────────────────────────────

// Sync reconciles the mirror now and leaves local mode on success.
func (s *Session) Sync(ctx context.Context) (*ReconcileResult, error) {
	if err := s.begin(); err != nil {
		return nil, err
	}
	if err := s.batcher.Flush(ctx); err != nil {
		s.log.Warn("flush before sync failed", zap.Error(err))
	}
	s.opMu.Lock()
	res, err := s.e.Reconciler.Reconcile(ctx, s.uid)
	s.opMu.Unlock()
	if err != nil {
		return res, err
	}
	s.synced(res)
	return res, nil
}
