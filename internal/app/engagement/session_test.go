package engagement

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vibe-dev/academy/internal/domain"
)

func openSession(t *testing.T, e *Engine, uid string) *Session {
	t.Helper()
	s, err := e.OpenSession(context.Background(), uid)
	require.NoError(t, err)
	return s
}

func TestOpenSession_CreatesProfileAndReuses(t *testing.T) {
	e, store := newTestEngine(t)

	s1 := openSession(t, e, "u1")
	s2 := openSession(t, e, "u1")
	assert.Same(t, s1, s2)
	assert.False(t, s1.InLocalMode())

	p := profile(t, store, "u1")
	assert.Equal(t, 1, p.Level)
	assert.Zero(t, p.XP)

	_, err := e.OpenSession(context.Background(), "not valid")
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestOpenSession_StoreDownOpensLocal(t *testing.T) {
	e, store := newTestEngine(t)
	store.setDown(true)

	s := openSession(t, e, "u1")
	assert.True(t, s.InLocalMode())

	out, err := s.AwardXP(context.Background(), 20, "offline quiz", domain.XPMetadata{})
	require.NoError(t, err)
	assert.True(t, out.Local)
	assert.Equal(t, int64(20), s.Snapshot().XP)
}

func TestSession_LabLessonScenario(t *testing.T) {
	e, store := newTestEngine(t)
	s := openSession(t, e, "u1")
	ctx := context.Background()

	out, err := s.CompleteLesson(ctx, "vibe-coding-basics", "intro-lab", domain.LessonLab)
	require.NoError(t, err)
	assert.False(t, out.Local)
	require.Len(t, out.Unlocked, 1)
	assert.Equal(t, "first_lesson", out.Unlocked[0].ID)
	assert.Equal(t, int64(100), out.Granted, "50 for the lab plus the bronze unlock")

	p := profile(t, store, "u1")
	assert.Equal(t, int64(100), p.XP)
	assert.True(t, p.Course("vibe-coding-basics").HasLesson("intro-lab"))

	again, err := s.CompleteLesson(ctx, "vibe-coding-basics", "intro-lab", domain.LessonLab)
	require.NoError(t, err)
	assert.True(t, again.Duplicate)
	assert.Zero(t, again.Granted)
	assert.Equal(t, int64(100), profile(t, store, "u1").XP)
}

func TestSession_LevelUpNotifiedOnce(t *testing.T) {
	e, store := newTestEngine(t)
	seed(t, store, "u1", 95)
	s := openSession(t, e, "u1")

	rec := &recorder{}
	s.Subscribe(rec.listen)

	out, err := s.AwardXP(context.Background(), 10, "quiz", domain.XPMetadata{})
	require.NoError(t, err)
	assert.True(t, out.LeveledUp)
	assert.Equal(t, 2, out.Level.Level)
	assert.Equal(t, 2, profile(t, store, "u1").Level)

	require.Eventually(t, func() bool { return rec.count(domain.EventLevelUp) == 1 }, time.Second, 5*time.Millisecond)
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, 1, rec.count(domain.EventLevelUp))
	assert.Equal(t, 1, rec.count(domain.EventXPGained))
}

func TestSession_ValidationDoesNotFallBack(t *testing.T) {
	e, _ := newTestEngine(t)
	s := openSession(t, e, "u1")

	_, err := s.AwardXP(context.Background(), -5, "nope", domain.XPMetadata{})
	assert.ErrorIs(t, err, domain.ErrValidation)
	_, err = s.CompleteLesson(context.Background(), "c1", "l1", "podcast")
	assert.ErrorIs(t, err, domain.ErrValidation)
	assert.False(t, s.InLocalMode())
}

func TestSession_RetriesExhaustedThenReconciles(t *testing.T) {
	e, store := newTestEngine(t)
	s := openSession(t, e, "u1")
	ctx := context.Background()

	store.failNextGrants(-1)
	out, err := s.AwardXP(ctx, 40, "quiz", domain.XPMetadata{})
	require.NoError(t, err)
	assert.True(t, out.Local)
	assert.Equal(t, int64(40), out.Granted)
	assert.True(t, s.InLocalMode())

	snap := s.Snapshot()
	assert.Equal(t, int64(40), snap.XP)
	assert.Equal(t, int64(40), snap.PendingXP)
	assert.True(t, snap.LocalMode)
	assert.Zero(t, profile(t, store, "u1").XP)

	// Still local: the next grant goes straight to the mirror.
	_, err = s.AwardXP(ctx, 5, "video", domain.XPMetadata{})
	require.NoError(t, err)

	store.failNextGrants(0)
	res, err := s.Sync(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(45), res.PushedXP)
	assert.False(t, s.InLocalMode())
	assert.Equal(t, int64(45), profile(t, store, "u1").XP)

	res, err = s.Sync(ctx)
	require.NoError(t, err)
	assert.Zero(t, res.PushedXP)
	assert.Equal(t, int64(45), profile(t, store, "u1").XP, "nothing counted twice")
	assert.Zero(t, s.Snapshot().PendingXP)
}

func TestSession_OfflineLessonUnlocksLocally(t *testing.T) {
	e, store := newTestEngine(t)
	s := openSession(t, e, "u1")
	ctx := context.Background()

	store.setDown(true)
	out, err := s.CompleteLesson(ctx, "c1", "l1", domain.LessonQuiz)
	require.NoError(t, err)
	assert.True(t, out.Local)
	require.Len(t, out.Unlocked, 1)
	assert.Equal(t, "first_lesson", out.Unlocked[0].ID)
	assert.Equal(t, int64(75), out.Granted)

	dup, err := s.CompleteLesson(ctx, "c1", "l1", domain.LessonQuiz)
	require.NoError(t, err)
	assert.True(t, dup.Duplicate)

	store.setDown(false)
	_, err = s.Sync(ctx)
	require.NoError(t, err)

	p := profile(t, store, "u1")
	assert.Equal(t, int64(75), p.XP)
	assert.True(t, p.HasAchievement("first_lesson"))
	assert.True(t, p.Course("c1").HasLesson("l1"))

	audit, err := store.DB.AchievementUnlocks(ctx, "u1")
	require.NoError(t, err)
	assert.Len(t, audit, 1)
}

func TestSession_UnlockRewardFallsBack(t *testing.T) {
	e, store := newTestEngine(t)
	s := openSession(t, e, "u1")
	ctx := context.Background()

	store.failNextGrants(-1)
	out, err := s.UnlockAchievement(ctx, "streak_3")
	require.NoError(t, err)
	require.Len(t, out.Unlocked, 1)
	assert.True(t, out.Local)
	assert.True(t, profile(t, store, "u1").HasAchievement("streak_3"))

	store.failNextGrants(0)
	_, err = s.Sync(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(50), profile(t, store, "u1").XP)

	dup, err := s.UnlockAchievement(ctx, "streak_3")
	require.NoError(t, err)
	assert.True(t, dup.Duplicate)
}

func TestSession_QueueXPBatches(t *testing.T) {
	e, store := newTestEngine(t)
	s := openSession(t, e, "u1")
	ctx := context.Background()

	require.NoError(t, s.QueueXP(10, "video"))
	require.NoError(t, s.QueueXP(15, "reading"))
	require.NoError(t, s.FlushXP(ctx))

	assert.Equal(t, int64(25), profile(t, store, "u1").XP)
	txs, err := store.DB.XPTransactions(ctx, "u1", 10)
	require.NoError(t, err)
	require.Len(t, txs, 1)
	assert.Equal(t, "Batched 2 grants: video, reading", txs[0].Reason)

	assert.ErrorIs(t, s.QueueXP(0, "zero"), domain.ErrValidation)
}

func TestSession_CloseFlushes(t *testing.T) {
	e, store := newTestEngine(t)
	s := openSession(t, e, "u1")

	require.NoError(t, s.QueueXP(5, "late"))
	require.NoError(t, s.Close(context.Background()))
	assert.Equal(t, int64(5), profile(t, store, "u1").XP)

	_, ok := e.Session("u1")
	assert.False(t, ok)
	_, err := s.AwardXP(context.Background(), 5, "x", domain.XPMetadata{})
	assert.ErrorIs(t, err, domain.ErrSessionClosed)
	assert.NoError(t, s.Close(context.Background()))

	// A fresh session replaces the closed one.
	assert.NotSame(t, s, openSession(t, e, "u1"))
}

func TestSession_LoginStreaks(t *testing.T) {
	e, store := newTestEngine(t)
	clock := newClock(time.Date(2026, 8, 1, 7, 0, 0, 0, time.UTC))
	e.SetClock(clock.Now)
	s := openSession(t, e, "u1")
	ctx := context.Background()

	rec := &recorder{}
	s.Subscribe(rec.listen)

	out, err := s.Login(ctx)
	require.NoError(t, err)
	assert.Equal(t, StreakReset, out.Streak.Transition)

	clock.Advance(25 * time.Hour)
	out, err = s.Login(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, out.Streak.Streak)
	assert.Equal(t, int64(10), out.Granted)

	clock.Advance(26 * time.Hour)
	out, err = s.Login(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, out.Streak.Streak)
	require.Len(t, out.Unlocked, 1)
	assert.Equal(t, "streak_3", out.Unlocked[0].ID)

	assert.Equal(t, int64(10+15+50), profile(t, store, "u1").XP)
	require.Eventually(t, func() bool { return rec.count(domain.EventStreakUpdated) == 3 }, time.Second, 5*time.Millisecond)

	clock.Advance(time.Hour)
	out, err = s.Login(ctx)
	require.NoError(t, err)
	assert.Equal(t, StreakUnchanged, out.Streak.Transition)
	assert.Zero(t, out.Granted)
}

func TestSession_LoginOffline(t *testing.T) {
	e, store := newTestEngine(t)
	clock := newClock(time.Date(2026, 8, 1, 7, 0, 0, 0, time.UTC))
	e.SetClock(clock.Now)
	s := openSession(t, e, "u1")
	ctx := context.Background()

	store.setDown(true)
	out, err := s.Login(ctx)
	require.NoError(t, err)
	assert.True(t, s.InLocalMode())
	assert.Equal(t, 1, out.Streak.Streak)

	store.setDown(false)
	_, err = s.Sync(ctx)
	require.NoError(t, err)
	p := profile(t, store, "u1")
	assert.Equal(t, 1, p.StreakDays)
	assert.True(t, p.LastLogin.Equal(clock.Now()))
}

func TestSession_Projects(t *testing.T) {
	e, store := newTestEngine(t)
	s := openSession(t, e, "u1")
	ctx := context.Background()

	out, err := s.UploadProject(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, ProjectUploadXP+50, out.Granted, "upload reward plus first_project")

	dup, err := s.UploadProject(ctx, "p1")
	require.NoError(t, err)
	assert.True(t, dup.Duplicate)

	like, err := s.LikeProject(ctx, "p9")
	require.NoError(t, err)
	assert.Zero(t, like.Granted)
	assert.Equal(t, []string{"p9"}, profile(t, store, "u1").LikedProjects)

	store.setDown(true)
	_, err = s.UploadProject(ctx, "p2")
	assert.Error(t, err, "project writes have no local mode")
}

func TestSession_CompleteCourse(t *testing.T) {
	e, store := newTestEngine(t)
	s := openSession(t, e, "u1")
	ctx := context.Background()

	out, err := s.CompleteCourse(ctx, "prompt-engineering")
	require.NoError(t, err)
	ids := make([]string, 0, len(out.Unlocked))
	for _, a := range out.Unlocked {
		ids = append(ids, a.ID)
	}
	assert.ElementsMatch(t, []string{"first_course", "prompt_engineering_done"}, ids)
	assert.Equal(t, CourseCompletionXP+100+250, profile(t, store, "u1").XP)

	dup, err := s.CompleteCourse(ctx, "prompt-engineering")
	require.NoError(t, err)
	assert.True(t, dup.Duplicate)
}

func TestSession_Challenges(t *testing.T) {
	e, store := newTestEngine(t)
	s := openSession(t, e, "u1")
	ctx := context.Background()

	out, err := s.CompleteChallenge(ctx, "daily_login")
	require.NoError(t, err)
	assert.Equal(t, int64(10), out.Granted)

	dup, err := s.CompleteChallenge(ctx, "daily_login")
	require.NoError(t, err)
	assert.True(t, dup.Duplicate)
	assert.Equal(t, int64(10), profile(t, store, "u1").XP)

	for _, st := range s.Challenges(ctx) {
		assert.Equal(t, st.ID == "daily_login", st.Completed)
	}

	_, err = s.CompleteChallenge(ctx, "nope")
	assert.ErrorIs(t, err, domain.ErrUnknownChallenge)
}

func TestEngine_ReconcileNowLeavesLocalMode(t *testing.T) {
	e, store := newTestEngine(t)
	s := openSession(t, e, "u1")
	ctx := context.Background()

	store.failNextGrants(-1)
	_, err := s.AwardXP(ctx, 30, "quiz", domain.XPMetadata{})
	require.NoError(t, err)
	require.True(t, s.InLocalMode())

	store.failNextGrants(0)
	e.ReconcileNow(ctx)
	assert.False(t, s.InLocalMode())
	assert.Equal(t, int64(30), profile(t, store, "u1").XP)
}

func TestSession_LocalOpenSubscribesAfterSync(t *testing.T) {
	e, store := newTestEngine(t)
	seed(t, store, "u1", 0)
	ctx := context.Background()

	store.setDown(true)
	s := openSession(t, e, "u1")
	require.True(t, s.InLocalMode())

	store.setDown(false)
	e.ReconcileNow(ctx)
	require.False(t, s.InLocalMode())

	// A grant from another device reaches the open session.
	require.NoError(t, store.DB.ApplyXPGrant(ctx, domain.XPTransaction{
		ID: "other-device", UserID: "u1", Amount: 50, Reason: "mobile quiz", Timestamp: time.Now(),
	}))
	require.Eventually(t, func() bool { return s.Snapshot().XP == 50 }, time.Second, 5*time.Millisecond)

	// A second sync does not attach twice.
	e.ReconcileNow(ctx)
	s.mu.Lock()
	watching := s.watching
	s.mu.Unlock()
	assert.True(t, watching)
}
