package engagement

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vibe-dev/academy/internal/domain"
	"github.com/vibe-dev/academy/internal/infra/catalog"
	"github.com/vibe-dev/academy/internal/infra/localstore"
)

func newTestMirror(clock *fixedClock) (*Mirror, *localstore.Memory) {
	store := localstore.NewMemory()
	m := NewMirror(store, DefaultLevels(), DefaultStreakConfig())
	if clock != nil {
		m.now = clock.Now
	}
	return m, store
}

func TestMirror_AddXPSeedsFromBase(t *testing.T) {
	m, _ := newTestMirror(nil)
	base := &domain.UserProfile{UID: "u1", XP: 95, Level: 1, StreakDays: 2, UnlockedAchievements: []string{"first_lesson"}}

	ch, err := m.AddXP("u1", base, 10)
	require.NoError(t, err)
	assert.True(t, ch.LeveledUp)
	assert.Equal(t, 2, ch.Level.Level)

	rec, err := m.Load("u1")
	require.NoError(t, err)
	assert.Equal(t, int64(105), rec.XP)
	assert.Equal(t, int64(10), rec.PendingXP)
	assert.Equal(t, 2, rec.Streak)
	assert.True(t, rec.HasAchievement("first_lesson"))
	assert.True(t, rec.Dirty())
}

func TestMirror_LoadMissing(t *testing.T) {
	m, _ := newTestMirror(nil)
	rec, err := m.Load("nobody")
	require.NoError(t, err)
	assert.Nil(t, rec)
}

func TestMirror_CompleteLessonIdempotent(t *testing.T) {
	m, _ := newTestMirror(nil)
	base := &domain.UserProfile{UID: "u1", CourseProgress: []domain.CourseProgress{
		{CourseID: "c1", CompletedLessons: []string{"remote-lesson"}},
	}}

	ch, err := m.CompleteLesson("u1", base, "c1", "l1", 25)
	require.NoError(t, err)
	assert.True(t, ch.Added)
	assert.Equal(t, int64(25), ch.XP)

	ch, err = m.CompleteLesson("u1", base, "c1", "l1", 25)
	require.NoError(t, err)
	assert.False(t, ch.Added)

	ch, err = m.CompleteLesson("u1", base, "c1", "remote-lesson", 25)
	require.NoError(t, err)
	assert.False(t, ch.Added, "already complete remotely")

	rec, err := m.Load("u1")
	require.NoError(t, err)
	assert.Equal(t, int64(25), rec.PendingXP)
	require.Len(t, rec.CompletedLessons, 1)
	assert.Equal(t, int64(25), rec.CompletedLessons[0].XP)
}

func TestMirror_CompleteCourseAndUnlock(t *testing.T) {
	m, _ := newTestMirror(nil)
	a := *catalog.Default().Achievement("first_course")

	ch, err := m.CompleteCourse("u1", nil, "c1", 200)
	require.NoError(t, err)
	assert.True(t, ch.Added)
	ch, err = m.CompleteCourse("u1", nil, "c1", 200)
	require.NoError(t, err)
	assert.False(t, ch.Added)

	ch, err = m.UnlockAchievement("u1", nil, a)
	require.NoError(t, err)
	assert.True(t, ch.Added)
	assert.Equal(t, a.XPReward, ch.XP)
	ch, err = m.UnlockAchievement("u1", nil, a)
	require.NoError(t, err)
	assert.False(t, ch.Added)

	rec, err := m.Load("u1")
	require.NoError(t, err)
	assert.Equal(t, 200+a.XPReward, rec.PendingXP)
	assert.Equal(t, []string{"first_course"}, rec.PendingAchievements)
}

func TestMirror_CheckIn(t *testing.T) {
	clock := newClock(time.Date(2026, 6, 1, 8, 0, 0, 0, time.UTC))
	m, _ := newTestMirror(clock)
	base := &domain.UserProfile{UID: "u1", StreakDays: 4, LastLogin: clock.Now().Add(-30 * time.Hour)}

	res, ch, err := m.CheckIn("u1", base)
	require.NoError(t, err)
	assert.Equal(t, StreakIncrement, res.Transition)
	assert.Equal(t, 5, res.Streak)
	assert.Equal(t, int64(25), ch.XP)

	clock.Advance(2 * time.Hour)
	res, ch, err = m.CheckIn("u1", base)
	require.NoError(t, err)
	assert.Equal(t, StreakUnchanged, res.Transition)
	assert.Zero(t, ch.XP)

	rec, err := m.Load("u1")
	require.NoError(t, err)
	assert.True(t, rec.StreakDirty)
	assert.Equal(t, 5, rec.Streak)
}

func TestMirror_DirtyUsersAndClear(t *testing.T) {
	m, store := newTestMirror(nil)
	_, err := m.AddXP("u1", nil, 5)
	require.NoError(t, err)
	_, err = m.AddXP("u2", nil, 5)
	require.NoError(t, err)
	require.NoError(t, store.Set("unrelated", []byte("x")))

	users, err := m.DirtyUsers()
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"u1", "u2"}, users)

	require.NoError(t, m.Clear("u1"))
	users, err = m.DirtyUsers()
	require.NoError(t, err)
	assert.Equal(t, []string{"u2"}, users)
}

func TestMirror_CorruptRecord(t *testing.T) {
	m, store := newTestMirror(nil)
	require.NoError(t, store.Set(LocalKey("u1"), []byte("{not json")))
	_, err := m.Load("u1")
	assert.ErrorIs(t, err, domain.ErrLocalStore)
}

func TestOverlay(t *testing.T) {
	p := &domain.UserProfile{
		UID: "u1", XP: 100, Level: 2, StreakDays: 1,
		LastLogin:            time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC),
		UnlockedAchievements: []string{"first_lesson"},
		CourseProgress:       []domain.CourseProgress{{CourseID: "c1", CompletedLessons: []string{"l1"}}},
	}
	rec := &domain.LocalFallbackRecord{
		UserID: "u1", XP: 175, PendingXP: 75, Level: 2, Streak: 2,
		LastLogin:            time.Date(2026, 6, 2, 0, 0, 0, 0, time.UTC),
		UnlockedAchievements: []string{"first_lesson", "first_project"},
		CompletedLessons:     []domain.LocalLesson{{CourseID: "c1", LessonID: "l2"}, {CourseID: "c2", LessonID: "l1"}},
		CompletedCourses:     []domain.LocalCourse{{CourseID: "c1"}},
	}

	v := Overlay(p, rec)
	assert.Equal(t, int64(175), v.XP)
	assert.Equal(t, 2, v.StreakDays)
	assert.ElementsMatch(t, []string{"first_lesson", "first_project"}, v.UnlockedAchievements)
	assert.Equal(t, 3, v.CompletedLessonCount(""))
	assert.Equal(t, 1, v.CompletedCourseCount())

	// The base profile is not modified.
	assert.Len(t, p.CourseProgress[0].CompletedLessons, 1)
	assert.Len(t, p.UnlockedAchievements, 1)

	assert.Equal(t, int64(175), Overlay(nil, rec).XP)
}
