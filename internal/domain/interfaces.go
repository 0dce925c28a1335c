package domain

import (
	"context"
	"time"
)

// ─── Store Interfaces ───────────────────────────────────────────────────────
// These interfaces define boundaries between layers.
// Infrastructure implements them; application layer depends on them.

// ProfileStore is the document side of the remote store.
type ProfileStore interface {
	// GetProfile loads the full document. Missing → ErrProfileNotFound.
	GetProfile(ctx context.Context, uid string) (*UserProfile, error)

	// CreateProfile inserts a fresh document; existing documents are left alone.
	CreateProfile(ctx context.Context, p UserProfile) error

	// ApplyXPGrant appends tx and increments the profile XP by tx.Amount
	// in one batch. Either both happen or neither.
	ApplyXPGrant(ctx context.Context, tx XPTransaction) error

	// SetLevelIfHigher raises the stored level; returns false when the
	// stored level is already >= level.
	SetLevelIfHigher(ctx context.Context, uid string, level int) (bool, error)

	// UpdateStreak writes streak days and last login.
	UpdateStreak(ctx context.Context, uid string, days int, lastLogin time.Time) error

	// AddUnlockedAchievement unions id into the unlocked set and reports
	// whether it was newly added.
	AddUnlockedAchievement(ctx context.Context, uid, achievementID string) (bool, error)

	// AddCompletedLesson unions lessonID into the course's completed set.
	AddCompletedLesson(ctx context.Context, uid, courseID, lessonID string, at time.Time) (bool, error)

	// MarkCourseCompleted sets the course flag; false if it was already set.
	MarkCourseCompleted(ctx context.Context, uid, courseID string, at time.Time) (bool, error)

	// AddSavedProject and AddLikedProject union into the project sets.
	AddSavedProject(ctx context.Context, uid, projectID string) (bool, error)
	AddLikedProject(ctx context.Context, uid, projectID string) (bool, error)

	// Subscribe streams profile snapshots after every change until ctx ends.
	Subscribe(ctx context.Context, uid string) (<-chan UserProfile, error)
}

// AuditStore holds the append-only collections.
type AuditStore interface {
	AppendAchievementUnlock(ctx context.Context, u AchievementUnlock) error
	AppendChallengeCompletion(ctx context.Context, p DailyChallengeProgress) error
	FindChallengeCompletions(ctx context.Context, q ChallengeQuery) ([]DailyChallengeProgress, error)
}

// RemoteStore is the full remote document store contract.
type RemoteStore interface {
	ProfileStore
	AuditStore
	Ping(ctx context.Context) error
}

// LocalStore is a synchronous device-local key-value store.
// Get returns (nil, nil) for a missing key.
type LocalStore interface {
	Get(key string) ([]byte, error)
	Set(key string, value []byte) error
	Remove(key string) error
}

// Notifier receives presentation events. Calls must never block.
type Notifier interface {
	NotifyXPGain(uid string, amount int64, reason string)
	NotifyLevelUp(uid string, level LevelInfo)
	NotifyAchievementUnlock(uid string, a Achievement)
	NotifyStreakUpdate(uid string, streak int)
}
