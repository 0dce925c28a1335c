// Package domain holds the gamification types shared by every layer.
// The engagement engine turns learner activity (lessons, courses, projects,
// logins, daily challenges) into XP, levels, achievements and streaks.
package domain

import (
	"math"
	"time"
)

// ─── Profile ────────────────────────────────────────────────────────────────

// UserProfile is the remote per-user document.
// Level is denormalized from XP and re-synced on XP change.
type UserProfile struct {
	UID                  string           `json:"uid"`
	DisplayName          string           `json:"display_name,omitempty"`
	XP                   int64            `json:"xp"`
	Level                int              `json:"level"`
	StreakDays           int              `json:"streak_days"`
	LastLogin            time.Time        `json:"last_login"`
	UnlockedAchievements []string         `json:"unlocked_achievements"`
	CourseProgress       []CourseProgress `json:"course_progress"`
	SavedProjects        []string         `json:"saved_projects"`
	LikedProjects        []string         `json:"liked_projects"`
	CreatedAt            time.Time        `json:"created_at"`
	UpdatedAt            time.Time        `json:"updated_at"`
}

// HasAchievement reports whether id is in the unlocked set.
func (p *UserProfile) HasAchievement(id string) bool {
	for _, a := range p.UnlockedAchievements {
		if a == id {
			return true
		}
	}
	return false
}

// Course returns the progress record for courseID, or nil.
func (p *UserProfile) Course(courseID string) *CourseProgress {
	for i := range p.CourseProgress {
		if p.CourseProgress[i].CourseID == courseID {
			return &p.CourseProgress[i]
		}
	}
	return nil
}

// CompletedLessonCount counts distinct completed lessons.
// An empty courseID counts across every course.
func (p *UserProfile) CompletedLessonCount(courseID string) int {
	if courseID != "" {
		if c := p.Course(courseID); c != nil {
			return len(c.CompletedLessons)
		}
		return 0
	}
	n := 0
	for _, c := range p.CourseProgress {
		n += len(c.CompletedLessons)
	}
	return n
}

// CompletedCourseCount counts courses flagged complete.
func (p *UserProfile) CompletedCourseCount() int {
	n := 0
	for _, c := range p.CourseProgress {
		if c.CourseCompleted {
			n++
		}
	}
	return n
}

// CourseProgress is embedded in UserProfile, one per enrolled course.
// CompletedLessons only grows; CourseCompleted flips false→true once.
type CourseProgress struct {
	CourseID         string    `json:"course_id"`
	CompletedLessons []string  `json:"completed_lessons"`
	CompletedModules []string  `json:"completed_modules,omitempty"` // legacy
	CourseCompleted  bool      `json:"course_completed"`
	LastPlayed       time.Time `json:"last_played"`
}

// HasLesson reports whether lessonID is already completed.
func (c *CourseProgress) HasLesson(lessonID string) bool {
	for _, l := range c.CompletedLessons {
		if l == lessonID {
			return true
		}
	}
	return false
}

// ─── Audit Records ──────────────────────────────────────────────────────────

// XPMetadata links a grant to the thing that earned it.
type XPMetadata struct {
	CourseID      string `json:"course_id,omitempty"`
	LessonID      string `json:"lesson_id,omitempty"`
	AchievementID string `json:"achievement_id,omitempty"`
	ProjectID     string `json:"project_id,omitempty"`
	ChallengeID   string `json:"challenge_id,omitempty"`
}

// XPTransaction is a write-once audit entry, one per grant.
type XPTransaction struct {
	ID        string     `json:"id"`
	UserID    string     `json:"user_id"`
	Amount    int64      `json:"amount"`
	Reason    string     `json:"reason"`
	Timestamp time.Time  `json:"timestamp"`
	Metadata  XPMetadata `json:"metadata"`
}

// AchievementUnlock is the write-once audit record of an unlock.
type AchievementUnlock struct {
	ID            string    `json:"id"`
	UserID        string    `json:"user_id"`
	AchievementID string    `json:"achievement_id"`
	UnlockedAt    time.Time `json:"unlocked_at"`
	XPAwarded     int64     `json:"xp_awarded"`
}

// ─── Achievements ───────────────────────────────────────────────────────────

// Tier ranks achievements; each tier has a baseline XP reward.
type Tier string

const (
	TierBronze   Tier = "bronze"
	TierSilver   Tier = "silver"
	TierGold     Tier = "gold"
	TierPlatinum Tier = "platinum"
	TierDiamond  Tier = "diamond"
)

// BaselineXP returns the default reward for the tier.
func (t Tier) BaselineXP() int64 {
	switch t {
	case TierBronze:
		return 50
	case TierSilver:
		return 100
	case TierGold:
		return 250
	case TierPlatinum:
		return 500
	case TierDiamond:
		return 1000
	}
	return 0
}

// Valid reports whether t is a known tier.
func (t Tier) Valid() bool { return t.BaselineXP() > 0 }

// AchievementCategory groups achievements for display.
type AchievementCategory string

const (
	CatLearning   AchievementCategory = "learning"
	CatDedication AchievementCategory = "dedication"
	CatProgress   AchievementCategory = "progress"
	CatCommunity  AchievementCategory = "community"
	CatMastery    AchievementCategory = "mastery"
)

// Achievement is a static catalog entry, immutable at runtime.
// Secret only affects presentation.
type Achievement struct {
	ID          string              `json:"id"`
	Title       string              `json:"title"`
	Description string              `json:"description"`
	Tier        Tier                `json:"tier"`
	XPReward    int64               `json:"xp_reward"`
	Category    AchievementCategory `json:"category"`
	Requirement Requirement         `json:"-"`
	Secret      bool                `json:"secret"`
}

// ─── Levels ─────────────────────────────────────────────────────────────────

// Unbounded is the MaxXP of the top level.
const Unbounded int64 = math.MaxInt64

// LevelInfo is one row of the ascending level table.
// A level covers XP in [MinXP, MaxXP).
type LevelInfo struct {
	Level int      `json:"level"`
	Title string   `json:"title"`
	MinXP int64    `json:"min_xp"`
	MaxXP int64    `json:"max_xp"`
	Perks []string `json:"perks,omitempty"`
}

// IsTop reports whether this is the open-ended last level.
func (l LevelInfo) IsTop() bool { return l.MaxXP == Unbounded }

// Contains reports whether xp falls inside the level's range.
func (l LevelInfo) Contains(xp int64) bool {
	return xp >= l.MinXP && xp < l.MaxXP
}

// Progress describes how far a learner is into the current level.
type Progress struct {
	Current    int64   `json:"current"`
	Needed     int64   `json:"needed"`
	Percentage float64 `json:"percentage"`
}

// ─── Lessons ────────────────────────────────────────────────────────────────

// LessonType determines the XP a lesson is worth.
type LessonType string

const (
	LessonVideo   LessonType = "video"
	LessonReading LessonType = "reading"
	LessonQuiz    LessonType = "quiz"
	LessonLab     LessonType = "lab"
	LessonProject LessonType = "project"
)

// RewardXP returns the XP for completing a lesson of this type.
func (t LessonType) RewardXP() int64 {
	switch t {
	case LessonVideo:
		return 10
	case LessonReading:
		return 15
	case LessonQuiz:
		return 25
	case LessonLab:
		return 50
	case LessonProject:
		return 100
	}
	return 0
}

// ─── Daily Challenges ───────────────────────────────────────────────────────

// DailyChallenge is a repeatable task completable once per UTC day.
type DailyChallenge struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description"`
	XPReward    int64  `json:"xp_reward"`
}

// DailyChallengeProgress is an append-only completion record.
// Idempotency key: (UserID, ChallengeID, Date).
type DailyChallengeProgress struct {
	ID          string    `json:"id"`
	UserID      string    `json:"user_id"`
	ChallengeID string    `json:"challenge_id"`
	CompletedAt time.Time `json:"completed_at"`
	XPAwarded   int64     `json:"xp_awarded"`
	Date        string    `json:"date"` // YYYY-MM-DD, UTC
}

// ChallengeQuery is an equality filter over completion records.
// Empty fields are not filtered on.
type ChallengeQuery struct {
	UserID      string
	ChallengeID string
	Date        string
}

// ChallengeStatus annotates a catalog entry with today's completion.
type ChallengeStatus struct {
	DailyChallenge
	Completed bool `json:"completed"`
}

// DayKey formats t as the UTC calendar day used by challenge records.
func DayKey(t time.Time) string {
	return t.UTC().Format("2006-01-02")
}

// ─── Local Fallback ─────────────────────────────────────────────────────────

// LocalLesson is a lesson completed while offline. XP is the reward that
// was added to PendingXP for it.
type LocalLesson struct {
	CourseID    string    `json:"course_id"`
	LessonID    string    `json:"lesson_id"`
	CompletedAt time.Time `json:"completed_at"`
	XP          int64     `json:"xp"`
	Synced      bool      `json:"synced"`
}

// LocalCourse is a course finished while offline.
type LocalCourse struct {
	CourseID    string    `json:"course_id"`
	CompletedAt time.Time `json:"completed_at"`
	XP          int64     `json:"xp"`
	Synced      bool      `json:"synced"`
}

// LocalFallbackRecord mirrors part of UserProfile on the device.
// PendingXP is the portion of XP not yet pushed to the remote store;
// PendingAchievements are local unlocks whose rewards are inside it.
type LocalFallbackRecord struct {
	UserID               string        `json:"user_id"`
	XP                   int64         `json:"xp"`
	PendingXP            int64         `json:"pending_xp"`
	Level                int           `json:"level"`
	Streak               int           `json:"streak"`
	LastLogin            time.Time     `json:"last_login"`
	StreakDirty          bool          `json:"streak_dirty"`
	UnlockedAchievements []string      `json:"unlocked_achievements"`
	PendingAchievements  []string      `json:"pending_achievements,omitempty"`
	CompletedLessons     []LocalLesson `json:"completed_lessons"`
	CompletedCourses     []LocalCourse `json:"completed_courses,omitempty"`
	LastSync             time.Time     `json:"last_sync"`

	// An XP push in flight: the transaction ID is fixed before the push
	// so a pass interrupted after the remote commit replays the same ID.
	SyncTxID string `json:"sync_tx_id,omitempty"`
	SyncXP   int64  `json:"sync_xp,omitempty"`
}

// HasAchievement reports whether id is in the local unlocked set.
func (r *LocalFallbackRecord) HasAchievement(id string) bool {
	for _, a := range r.UnlockedAchievements {
		if a == id {
			return true
		}
	}
	return false
}

// HasCourse reports whether the course was finished locally.
func (r *LocalFallbackRecord) HasCourse(courseID string) bool {
	for _, c := range r.CompletedCourses {
		if c.CourseID == courseID {
			return true
		}
	}
	return false
}

// HasLesson reports whether the lesson is already in the local list.
func (r *LocalFallbackRecord) HasLesson(courseID, lessonID string) bool {
	for _, l := range r.CompletedLessons {
		if l.CourseID == courseID && l.LessonID == lessonID {
			return true
		}
	}
	return false
}

// Dirty reports whether anything still needs pushing.
func (r *LocalFallbackRecord) Dirty() bool {
	if r.PendingXP > 0 || r.SyncTxID != "" || r.StreakDirty || len(r.PendingAchievements) > 0 {
		return true
	}
	for _, l := range r.CompletedLessons {
		if !l.Synced {
			return true
		}
	}
	for _, c := range r.CompletedCourses {
		if !c.Synced {
			return true
		}
	}
	return false
}

// ─── Events ─────────────────────────────────────────────────────────────────

// EventKind categorizes presentation events.
type EventKind string

const (
	EventXPGained            EventKind = "xp_gained"
	EventLevelUp             EventKind = "level_up"
	EventAchievementUnlocked EventKind = "achievement_unlocked"
	EventStreakUpdated       EventKind = "streak_updated"
)

// Event is delivered to presentation listeners.
type Event struct {
	Kind        EventKind    `json:"kind"`
	UserID      string       `json:"user_id"`
	Amount      int64        `json:"amount,omitempty"`
	Reason      string       `json:"reason,omitempty"`
	Level       *LevelInfo   `json:"level,omitempty"`
	Achievement *Achievement `json:"achievement,omitempty"`
	Streak      int          `json:"streak,omitempty"`
	At          time.Time    `json:"at"`
}
