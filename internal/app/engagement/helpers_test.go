package engagement

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/vibe-dev/academy/internal/domain"
	"github.com/vibe-dev/academy/internal/infra/catalog"
	"github.com/vibe-dev/academy/internal/infra/localstore"
	"github.com/vibe-dev/academy/internal/infra/sqlite"
)

var errFlaky = errors.New("connection reset by peer")

// flakyStore wraps the SQLite store and fails writes on demand.
type flakyStore struct {
	*sqlite.DB

	mu         sync.Mutex
	down       bool // every call fails
	failGrants int  // fail this many ApplyXPGrant calls; -1 = all
	lostAcks   int  // commit this many ApplyXPGrant calls, then report failure
	grantCalls int
}

func (f *flakyStore) setDown(down bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.down = down
}

func (f *flakyStore) failNextGrants(n int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failGrants = n
}

func (f *flakyStore) loseNextAcks(n int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lostAcks = n
}

func (f *flakyStore) grants() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.grantCalls
}

func (f *flakyStore) check() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.down {
		return errFlaky
	}
	return nil
}

func (f *flakyStore) GetProfile(ctx context.Context, uid string) (*domain.UserProfile, error) {
	if err := f.check(); err != nil {
		return nil, err
	}
	return f.DB.GetProfile(ctx, uid)
}

func (f *flakyStore) ApplyXPGrant(ctx context.Context, tx domain.XPTransaction) error {
	f.mu.Lock()
	f.grantCalls++
	fail := f.down || f.failGrants != 0
	if f.failGrants > 0 {
		f.failGrants--
	}
	lose := !fail && f.lostAcks > 0
	if lose {
		f.lostAcks--
	}
	f.mu.Unlock()
	if fail {
		return errFlaky
	}
	if err := f.DB.ApplyXPGrant(ctx, tx); err != nil {
		return err
	}
	if lose {
		return errFlaky
	}
	return nil
}

func (f *flakyStore) UpdateStreak(ctx context.Context, uid string, days int, lastLogin time.Time) error {
	if err := f.check(); err != nil {
		return err
	}
	return f.DB.UpdateStreak(ctx, uid, days, lastLogin)
}

func (f *flakyStore) AddUnlockedAchievement(ctx context.Context, uid, id string) (bool, error) {
	if err := f.check(); err != nil {
		return false, err
	}
	return f.DB.AddUnlockedAchievement(ctx, uid, id)
}

func (f *flakyStore) AddCompletedLesson(ctx context.Context, uid, courseID, lessonID string, at time.Time) (bool, error) {
	if err := f.check(); err != nil {
		return false, err
	}
	return f.DB.AddCompletedLesson(ctx, uid, courseID, lessonID, at)
}

func (f *flakyStore) MarkCourseCompleted(ctx context.Context, uid, courseID string, at time.Time) (bool, error) {
	if err := f.check(); err != nil {
		return false, err
	}
	return f.DB.MarkCourseCompleted(ctx, uid, courseID, at)
}

func (f *flakyStore) AddSavedProject(ctx context.Context, uid, projectID string) (bool, error) {
	if err := f.check(); err != nil {
		return false, err
	}
	return f.DB.AddSavedProject(ctx, uid, projectID)
}

func (f *flakyStore) AddLikedProject(ctx context.Context, uid, projectID string) (bool, error) {
	if err := f.check(); err != nil {
		return false, err
	}
	return f.DB.AddLikedProject(ctx, uid, projectID)
}

func (f *flakyStore) FindChallengeCompletions(ctx context.Context, q domain.ChallengeQuery) ([]domain.DailyChallengeProgress, error) {
	if err := f.check(); err != nil {
		return nil, err
	}
	return f.DB.FindChallengeCompletions(ctx, q)
}

func (f *flakyStore) Ping(ctx context.Context) error {
	if err := f.check(); err != nil {
		return err
	}
	return f.DB.Ping(ctx)
}

// ─── Fixtures ───────────────────────────────────────────────────────────────

func newTestStore(t *testing.T) *flakyStore {
	t.Helper()
	db, err := sqlite.Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return &flakyStore{DB: db}
}

func seed(t *testing.T, s *flakyStore, uid string, xp int64) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, s.DB.CreateProfile(ctx, domain.UserProfile{UID: uid, Level: 1}))
	if xp > 0 {
		require.NoError(t, s.DB.ApplyXPGrant(ctx, domain.XPTransaction{
			ID: "seed-" + uid, UserID: uid, Amount: xp, Reason: "seed", Timestamp: time.Now(),
		}))
		_, err := s.DB.SetLevelIfHigher(ctx, uid, LevelForXP(xp).Level)
		require.NoError(t, err)
	}
}

func profile(t *testing.T, s *flakyStore, uid string) *domain.UserProfile {
	t.Helper()
	p, err := s.DB.GetProfile(context.Background(), uid)
	require.NoError(t, err)
	return p
}

func testLedgerConfig() LedgerConfig {
	cfg := DefaultLedgerConfig()
	cfg.BaseDelay = time.Millisecond
	cfg.OpTimeout = 2 * time.Second
	return cfg
}

func newTestLedger(s domain.ProfileStore) *Ledger {
	l := NewLedger(s, DefaultLevels(), testLedgerConfig(), zap.NewNop())
	l.sleep = func(context.Context, time.Duration) error { return nil }
	return l
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.Ledger = testLedgerConfig()
	cfg.Batch.Debounce = time.Hour // tests flush explicitly
	cfg.Notify.MinSpacing = 0
	cfg.Reconcile.Interval = time.Hour
	return cfg
}

func newTestEngine(t *testing.T) (*Engine, *flakyStore) {
	t.Helper()
	s := newTestStore(t)
	e, err := NewEngine(s, localstore.NewMemory(), catalog.Default(), testConfig(), zap.NewNop())
	require.NoError(t, err)
	e.Ledger.sleep = func(context.Context, time.Duration) error { return nil }
	t.Cleanup(func() { e.Close(context.Background()) })
	return e, s
}

// fixedClock is a settable test clock.
type fixedClock struct {
	mu sync.Mutex
	t  time.Time
}

func newClock(t time.Time) *fixedClock { return &fixedClock{t: t} }

func (c *fixedClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fixedClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

// recorder collects delivered events.
type recorder struct {
	mu     sync.Mutex
	events []domain.Event
}

func (r *recorder) listen(ev domain.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *recorder) count(kind domain.EventKind) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, ev := range r.events {
		if ev.Kind == kind {
			n++
		}
	}
	return n
}

func (r *recorder) all() []domain.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]domain.Event(nil), r.events...)
}
