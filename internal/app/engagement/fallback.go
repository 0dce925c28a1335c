package engagement

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/vibe-dev/academy/internal/domain"
)

// LocalKeyPrefix namespaces mirror records in the local store.
const LocalKeyPrefix = "vibe_gamification_"

// LocalKey returns the local store key for uid.
func LocalKey(uid string) string { return LocalKeyPrefix + uid }

// keyLister is implemented by local stores that can enumerate keys.
type keyLister interface {
	Keys(prefix string) ([]string, error)
}

// Mirror is the device-local copy of XP, level, streak, lessons and
// achievements used while the remote store is unreachable. Records are
// created lazily and never expire; only Clear removes them.
type Mirror struct {
	mu     sync.Mutex
	store  domain.LocalStore
	levels *LevelTable
	streak StreakConfig
	now    Clock
}

// NewMirror creates a mirror over a local store.
func NewMirror(store domain.LocalStore, levels *LevelTable, streak StreakConfig) *Mirror {
	return &Mirror{store: store, levels: levels, streak: streak, now: time.Now}
}

// Load returns the stored record, or nil if none exists.
func (m *Mirror) Load(uid string) (*domain.LocalFallbackRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.load(uid)
}

func (m *Mirror) load(uid string) (*domain.LocalFallbackRecord, error) {
	data, err := m.store.Get(LocalKey(uid))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrLocalStore, err)
	}
	if data == nil {
		return nil, nil
	}
	var rec domain.LocalFallbackRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("%w: decode %s: %v", domain.ErrLocalStore, uid, err)
	}
	return &rec, nil
}

func (m *Mirror) save(rec *domain.LocalFallbackRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	if err := m.store.Set(LocalKey(rec.UserID), data); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrLocalStore, err)
	}
	return nil
}

// Update loads (or seeds) the record for uid, applies fn and writes it back.
// base seeds a missing record from the last known remote profile.
func (m *Mirror) Update(uid string, base *domain.UserProfile, fn func(*domain.LocalFallbackRecord) error) (*domain.LocalFallbackRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, err := m.load(uid)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		rec = seedRecord(uid, base)
	}
	if err := fn(rec); err != nil {
		return nil, err
	}
	if err := m.save(rec); err != nil {
		return nil, err
	}
	return rec, nil
}

func seedRecord(uid string, p *domain.UserProfile) *domain.LocalFallbackRecord {
	rec := &domain.LocalFallbackRecord{UserID: uid, Level: 1}
	if p != nil {
		rec.XP = p.XP
		rec.Level = max(p.Level, 1)
		rec.Streak = p.StreakDays
		rec.LastLogin = p.LastLogin
		rec.UnlockedAchievements = append([]string(nil), p.UnlockedAchievements...)
	}
	return rec
}

// MirrorChange is what a local mutation did.
type MirrorChange struct {
	Record    *domain.LocalFallbackRecord
	Added     bool // false: idempotent no-op
	XP        int64
	LeveledUp bool
	Level     domain.LevelInfo
}

// addXP raises XP and pending XP and recomputes the level monotonically.
func (m *Mirror) addXP(rec *domain.LocalFallbackRecord, amount int64, ch *MirrorChange) {
	rec.XP += amount
	rec.PendingXP += amount
	ch.XP += amount
	lvl := m.levels.LevelForXP(rec.XP)
	if lvl.Level > rec.Level {
		rec.Level = lvl.Level
		ch.LeveledUp = true
	}
	ch.Level = lvl
}

// AddXP records a grant made while offline.
func (m *Mirror) AddXP(uid string, base *domain.UserProfile, amount int64) (*MirrorChange, error) {
	ch := &MirrorChange{Added: true}
	rec, err := m.Update(uid, base, func(rec *domain.LocalFallbackRecord) error {
		m.addXP(rec, amount, ch)
		return nil
	})
	if err != nil {
		return nil, err
	}
	ch.Record = rec
	return ch, nil
}

// CompleteLesson records a lesson and its reward unless the lesson is
// already in the local list or in base.
func (m *Mirror) CompleteLesson(uid string, base *domain.UserProfile, courseID, lessonID string, xp int64) (*MirrorChange, error) {
	ch := &MirrorChange{}
	if base != nil {
		if c := base.Course(courseID); c != nil && c.HasLesson(lessonID) {
			return ch, nil
		}
	}
	rec, err := m.Update(uid, base, func(rec *domain.LocalFallbackRecord) error {
		if rec.HasLesson(courseID, lessonID) {
			return nil
		}
		rec.CompletedLessons = append(rec.CompletedLessons, domain.LocalLesson{
			CourseID: courseID, LessonID: lessonID, CompletedAt: m.now().UTC(), XP: xp,
		})
		ch.Added = true
		m.addXP(rec, xp, ch)
		return nil
	})
	if err != nil {
		return nil, err
	}
	ch.Record = rec
	return ch, nil
}

// CompleteCourse records a finished course and its reward once.
func (m *Mirror) CompleteCourse(uid string, base *domain.UserProfile, courseID string, xp int64) (*MirrorChange, error) {
	ch := &MirrorChange{}
	if base != nil {
		if c := base.Course(courseID); c != nil && c.CourseCompleted {
			return ch, nil
		}
	}
	rec, err := m.Update(uid, base, func(rec *domain.LocalFallbackRecord) error {
		if rec.HasCourse(courseID) {
			return nil
		}
		rec.CompletedCourses = append(rec.CompletedCourses, domain.LocalCourse{
			CourseID: courseID, CompletedAt: m.now().UTC(), XP: xp,
		})
		ch.Added = true
		m.addXP(rec, xp, ch)
		return nil
	})
	if err != nil {
		return nil, err
	}
	ch.Record = rec
	return ch, nil
}

// UnlockAchievement records a local unlock and its reward once.
func (m *Mirror) UnlockAchievement(uid string, base *domain.UserProfile, a domain.Achievement) (*MirrorChange, error) {
	ch := &MirrorChange{}
	if base != nil && base.HasAchievement(a.ID) {
		return ch, nil
	}
	rec, err := m.Update(uid, base, func(rec *domain.LocalFallbackRecord) error {
		if rec.HasAchievement(a.ID) {
			return nil
		}
		rec.UnlockedAchievements = append(rec.UnlockedAchievements, a.ID)
		rec.PendingAchievements = append(rec.PendingAchievements, a.ID)
		ch.Added = true
		m.addXP(rec, a.XPReward, ch)
		return nil
	})
	if err != nil {
		return nil, err
	}
	ch.Record = rec
	return ch, nil
}

// CheckIn applies the streak rule to the local record. The bonus, if any,
// is added to pending XP.
func (m *Mirror) CheckIn(uid string, base *domain.UserProfile) (*StreakResult, *MirrorChange, error) {
	var res StreakResult
	ch := &MirrorChange{Added: true}
	rec, err := m.Update(uid, base, func(rec *domain.LocalFallbackRecord) error {
		now := m.now().UTC()
		next, transition, bonus := NextStreak(rec.Streak, rec.LastLogin, now, m.streak)
		res = StreakResult{Previous: rec.Streak, Streak: next, Transition: transition, Bonus: bonus}
		rec.Streak = next
		rec.LastLogin = now
		rec.StreakDirty = true
		if bonus > 0 {
			m.addXP(rec, bonus, ch)
		}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	ch.Record = rec
	return &res, ch, nil
}

// Clear removes the record for uid. Administrative only.
func (m *Mirror) Clear(uid string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.store.Remove(LocalKey(uid)); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrLocalStore, err)
	}
	return nil
}

// DirtyUsers lists users whose records still hold unsynced changes. Stores
// that cannot enumerate keys report none.
func (m *Mirror) DirtyUsers() ([]string, error) {
	kl, ok := m.store.(keyLister)
	if !ok {
		return nil, nil
	}
	keys, err := kl.Keys(LocalKeyPrefix)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrLocalStore, err)
	}

	var out []string
	for _, k := range keys {
		uid := strings.TrimPrefix(k, LocalKeyPrefix)
		rec, err := m.Load(uid)
		if err != nil || rec == nil {
			continue
		}
		if rec.Dirty() {
			out = append(out, uid)
		}
	}
	return out, nil
}

// Overlay merges the local record into a copy of p, giving the view the
// user sees while offline.
func Overlay(p *domain.UserProfile, rec *domain.LocalFallbackRecord) *domain.UserProfile {
	var v domain.UserProfile
	if p != nil {
		v = *p
		v.UnlockedAchievements = append([]string(nil), p.UnlockedAchievements...)
		v.CourseProgress = make([]domain.CourseProgress, len(p.CourseProgress))
		for i, c := range p.CourseProgress {
			c.CompletedLessons = append([]string(nil), c.CompletedLessons...)
			v.CourseProgress[i] = c
		}
	}
	if rec == nil {
		return &v
	}

	v.UID = rec.UserID
	if p != nil {
		v.XP = p.XP + rec.PendingXP
	} else {
		v.XP = rec.XP
	}
	v.Level = max(v.Level, rec.Level)
	if rec.LastLogin.After(v.LastLogin) {
		v.StreakDays = rec.Streak
		v.LastLogin = rec.LastLogin
	}
	for _, id := range rec.UnlockedAchievements {
		if !v.HasAchievement(id) {
			v.UnlockedAchievements = append(v.UnlockedAchievements, id)
		}
	}
	for _, l := range rec.CompletedLessons {
		c := v.Course(l.CourseID)
		if c == nil {
			v.CourseProgress = append(v.CourseProgress, domain.CourseProgress{CourseID: l.CourseID, LastPlayed: l.CompletedAt})
			c = &v.CourseProgress[len(v.CourseProgress)-1]
		}
		if !c.HasLesson(l.LessonID) {
			c.CompletedLessons = append(c.CompletedLessons, l.LessonID)
		}
	}
	for _, lc := range rec.CompletedCourses {
		c := v.Course(lc.CourseID)
		if c == nil {
			v.CourseProgress = append(v.CourseProgress, domain.CourseProgress{CourseID: lc.CourseID, LastPlayed: lc.CompletedAt})
			c = &v.CourseProgress[len(v.CourseProgress)-1]
		}
		c.CourseCompleted = true
	}
	return &v
}
