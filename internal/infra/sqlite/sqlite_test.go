package sqlite

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vibe-dev/academy/internal/domain"
)

func newTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func seedProfile(t *testing.T, db *DB, uid string) {
	t.Helper()
	require.NoError(t, db.CreateProfile(context.Background(), domain.UserProfile{UID: uid, DisplayName: uid}))
}

// ─── Database Lifecycle ─────────────────────────────────────────────────────

func TestOpen_CreatesDatabase(t *testing.T) {
	dir := t.TempDir()
	db, err := Open(dir)
	require.NoError(t, err)
	defer db.Close()

	_, err = os.Stat(filepath.Join(dir, "gamification.db"))
	assert.NoError(t, err, "gamification.db should exist")
	assert.NoError(t, db.Ping(context.Background()))
}

func TestOpen_MigrationsIdempotent(t *testing.T) {
	dir := t.TempDir()
	db, err := Open(dir)
	require.NoError(t, err)
	db.Close()

	db, err = Open(dir)
	require.NoError(t, err)
	db.Close()
}

// ─── Profile Document ───────────────────────────────────────────────────────

func TestGetProfile_Missing(t *testing.T) {
	db := newTestDB(t)
	_, err := db.GetProfile(context.Background(), "nobody")
	assert.ErrorIs(t, err, domain.ErrProfileNotFound)
}

func TestCreateProfile_Defaults(t *testing.T) {
	db := newTestDB(t)
	seedProfile(t, db, "u1")

	p, err := db.GetProfile(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, int64(0), p.XP)
	assert.Equal(t, 1, p.Level)
	assert.True(t, p.LastLogin.IsZero())
	assert.Empty(t, p.UnlockedAchievements)
	assert.Empty(t, p.CourseProgress)
}

func TestCreateProfile_ExistingLeftAlone(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	seedProfile(t, db, "u1")
	require.NoError(t, db.ApplyXPGrant(ctx, domain.XPTransaction{ID: "t1", UserID: "u1", Amount: 40, Reason: "x", Timestamp: time.Now()}))

	require.NoError(t, db.CreateProfile(ctx, domain.UserProfile{UID: "u1"}))
	p, err := db.GetProfile(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, int64(40), p.XP)
}

func TestApplyXPGrant_AppendsAndIncrements(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	seedProfile(t, db, "u1")

	for i, amt := range []int64{10, 25} {
		tx := domain.XPTransaction{
			ID: []string{"a", "b"}[i], UserID: "u1", Amount: amt, Reason: "lesson",
			Timestamp: time.Now(), Metadata: domain.XPMetadata{CourseID: "c1", LessonID: "l1"},
		}
		require.NoError(t, db.ApplyXPGrant(ctx, tx))
	}

	p, err := db.GetProfile(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, int64(35), p.XP)

	txs, err := db.XPTransactions(ctx, "u1", 0)
	require.NoError(t, err)
	require.Len(t, txs, 2)
	assert.Equal(t, "c1", txs[0].Metadata.CourseID)
}

func TestApplyXPGrant_MissingProfileWritesNothing(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	err := db.ApplyXPGrant(ctx, domain.XPTransaction{ID: "t1", UserID: "ghost", Amount: 5, Reason: "x", Timestamp: time.Now()})
	assert.ErrorIs(t, err, domain.ErrProfileNotFound)

	txs, err := db.XPTransactions(ctx, "ghost", 0)
	require.NoError(t, err)
	assert.Empty(t, txs)
}

func TestApplyXPGrant_ReplayedIDIsNoOp(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	seedProfile(t, db, "u1")

	tx := domain.XPTransaction{ID: "dup", UserID: "u1", Amount: 5, Reason: "x", Timestamp: time.Now()}
	require.NoError(t, db.ApplyXPGrant(ctx, tx))
	require.NoError(t, db.ApplyXPGrant(ctx, tx))

	p, err := db.GetProfile(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, int64(5), p.XP, "replay must not increment")

	txs, err := db.XPTransactions(ctx, "u1", 0)
	require.NoError(t, err)
	assert.Len(t, txs, 1)
}

func TestSetLevelIfHigher_Monotonic(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	seedProfile(t, db, "u1")

	changed, err := db.SetLevelIfHigher(ctx, "u1", 3)
	require.NoError(t, err)
	assert.True(t, changed)

	changed, err = db.SetLevelIfHigher(ctx, "u1", 3)
	require.NoError(t, err)
	assert.False(t, changed)

	changed, err = db.SetLevelIfHigher(ctx, "u1", 2)
	require.NoError(t, err)
	assert.False(t, changed)

	p, _ := db.GetProfile(ctx, "u1")
	assert.Equal(t, 3, p.Level)
}

func TestUpdateStreak(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	seedProfile(t, db, "u1")

	at := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	require.NoError(t, db.UpdateStreak(ctx, "u1", 4, at))

	p, _ := db.GetProfile(ctx, "u1")
	assert.Equal(t, 4, p.StreakDays)
	assert.True(t, p.LastLogin.Equal(at))

	assert.ErrorIs(t, db.UpdateStreak(ctx, "ghost", 1, at), domain.ErrProfileNotFound)
}

func TestSets_UnionSemantics(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	seedProfile(t, db, "u1")

	added, err := db.AddUnlockedAchievement(ctx, "u1", "first_lesson")
	require.NoError(t, err)
	assert.True(t, added)
	added, err = db.AddUnlockedAchievement(ctx, "u1", "first_lesson")
	require.NoError(t, err)
	assert.False(t, added)

	_, err = db.AddSavedProject(ctx, "u1", "p1")
	require.NoError(t, err)
	_, err = db.AddLikedProject(ctx, "u1", "p2")
	require.NoError(t, err)
	_, err = db.AddLikedProject(ctx, "u1", "p2")
	require.NoError(t, err)

	p, _ := db.GetProfile(ctx, "u1")
	assert.Equal(t, []string{"first_lesson"}, p.UnlockedAchievements)
	assert.Equal(t, []string{"p1"}, p.SavedProjects)
	assert.Equal(t, []string{"p2"}, p.LikedProjects)

	_, err = db.AddSavedProject(ctx, "ghost", "p1")
	assert.ErrorIs(t, err, domain.ErrProfileNotFound)
}

func TestCourseProgress_LessonsAndCompletion(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	seedProfile(t, db, "u1")
	now := time.Now()

	added, err := db.AddCompletedLesson(ctx, "u1", "go101", "l1", now)
	require.NoError(t, err)
	assert.True(t, added)
	added, err = db.AddCompletedLesson(ctx, "u1", "go101", "l1", now)
	require.NoError(t, err)
	assert.False(t, added)
	_, err = db.AddCompletedLesson(ctx, "u1", "go101", "l2", now)
	require.NoError(t, err)

	done, err := db.MarkCourseCompleted(ctx, "u1", "go101", now)
	require.NoError(t, err)
	assert.True(t, done)
	done, err = db.MarkCourseCompleted(ctx, "u1", "go101", now)
	require.NoError(t, err)
	assert.False(t, done)

	p, _ := db.GetProfile(ctx, "u1")
	c := p.Course("go101")
	require.NotNil(t, c)
	assert.Equal(t, []string{"l1", "l2"}, c.CompletedLessons)
	assert.True(t, c.CourseCompleted)
	assert.Equal(t, 2, p.CompletedLessonCount(""))
	assert.Equal(t, 1, p.CompletedCourseCount())
}

// ─── Audit ──────────────────────────────────────────────────────────────────

func TestChallengeCompletions_Filter(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	now := time.Now()

	recs := []domain.DailyChallengeProgress{
		{ID: "1", UserID: "u1", ChallengeID: "daily_login", Date: "2026-03-01", CompletedAt: now, XPAwarded: 10},
		{ID: "2", UserID: "u1", ChallengeID: "daily_login", Date: "2026-03-02", CompletedAt: now, XPAwarded: 10},
		{ID: "3", UserID: "u2", ChallengeID: "daily_login", Date: "2026-03-02", CompletedAt: now, XPAwarded: 10},
	}
	for _, r := range recs {
		require.NoError(t, db.AppendChallengeCompletion(ctx, r))
	}

	got, err := db.FindChallengeCompletions(ctx, domain.ChallengeQuery{UserID: "u1", Date: "2026-03-02"})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "2", got[0].ID)

	got, err = db.FindChallengeCompletions(ctx, domain.ChallengeQuery{ChallengeID: "daily_login"})
	require.NoError(t, err)
	assert.Len(t, got, 3)
}

func TestAchievementUnlocks_Append(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	require.NoError(t, db.AppendAchievementUnlock(ctx, domain.AchievementUnlock{
		ID: "x", UserID: "u1", AchievementID: "first_lesson", UnlockedAt: time.Now(), XPAwarded: 50,
	}))
	got, err := db.AchievementUnlocks(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, int64(50), got[0].XPAwarded)
}

// ─── Subscriptions ──────────────────────────────────────────────────────────

func TestSubscribe_ReceivesSnapshots(t *testing.T) {
	db := newTestDB(t)
	seedProfile(t, db, "u1")

	ctx, cancel := context.WithCancel(context.Background())
	ch, err := db.Subscribe(ctx, "u1")
	require.NoError(t, err)

	require.NoError(t, db.ApplyXPGrant(context.Background(),
		domain.XPTransaction{ID: "t", UserID: "u1", Amount: 7, Reason: "x", Timestamp: time.Now()}))

	select {
	case p := <-ch:
		assert.Equal(t, int64(7), p.XP)
	case <-time.After(2 * time.Second):
		t.Fatal("no snapshot delivered")
	}

	cancel()
	assert.Eventually(t, func() bool { return !db.hub.has("u1") }, time.Second, 10*time.Millisecond)
}

func TestSubscribe_MissingProfile(t *testing.T) {
	db := newTestDB(t)
	_, err := db.Subscribe(context.Background(), "ghost")
	assert.ErrorIs(t, err, domain.ErrProfileNotFound)
}
