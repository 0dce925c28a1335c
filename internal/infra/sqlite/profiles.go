package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/vibe-dev/academy/internal/domain"
)

// ─── Profile Document ───────────────────────────────────────────────────────

// CreateProfile inserts a profile if none exists for p.UID.
func (d *DB) CreateProfile(ctx context.Context, p domain.UserProfile) error {
	now := d.now()
	if p.Level < 1 {
		p.Level = 1
	}
	_, err := d.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO profiles (uid, display_name, xp, level, streak_days, last_login, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		p.UID, p.DisplayName, p.XP, p.Level, p.StreakDays, nullableMillis(p.LastLogin),
		toMillis(now), toMillis(now),
	)
	return err
}

// GetProfile assembles the full profile document.
func (d *DB) GetProfile(ctx context.Context, uid string) (*domain.UserProfile, error) {
	row := d.db.QueryRowContext(ctx,
		`SELECT uid, display_name, xp, level, streak_days, last_login, created_at, updated_at
		 FROM profiles WHERE uid = ?`, uid,
	)
	p, err := scanProfile(row)
	if err != nil {
		return nil, err
	}

	if p.UnlockedAchievements, err = d.stringSet(ctx,
		`SELECT achievement_id FROM profile_achievements WHERE uid = ? ORDER BY added_at, rowid`, uid); err != nil {
		return nil, fmt.Errorf("load achievements: %w", err)
	}
	if p.SavedProjects, err = d.stringSet(ctx,
		`SELECT project_id FROM saved_projects WHERE uid = ? ORDER BY added_at, rowid`, uid); err != nil {
		return nil, fmt.Errorf("load saved projects: %w", err)
	}
	if p.LikedProjects, err = d.stringSet(ctx,
		`SELECT project_id FROM liked_projects WHERE uid = ? ORDER BY added_at, rowid`, uid); err != nil {
		return nil, fmt.Errorf("load liked projects: %w", err)
	}
	if p.CourseProgress, err = d.courseProgress(ctx, uid); err != nil {
		return nil, fmt.Errorf("load course progress: %w", err)
	}
	return p, nil
}

// ApplyXPGrant appends the transaction and increments XP in one SQL
// transaction. Replaying a transaction ID that is already recorded is a
// no-op, so a retry after a lost commit ack does not count twice.
func (d *DB) ApplyXPGrant(ctx context.Context, t domain.XPTransaction) error {
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		`INSERT INTO xp_transactions (id, user_id, amount, reason, timestamp, course_id, lesson_id, achievement_id, project_id, challenge_id)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO NOTHING`,
		t.ID, t.UserID, t.Amount, t.Reason, toMillis(t.Timestamp),
		t.Metadata.CourseID, t.Metadata.LessonID, t.Metadata.AchievementID,
		t.Metadata.ProjectID, t.Metadata.ChallengeID,
	)
	if err != nil {
		return fmt.Errorf("append xp transaction: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil
	}

	res, err = tx.ExecContext(ctx,
		`UPDATE profiles SET xp = xp + ?, updated_at = ? WHERE uid = ?`,
		t.Amount, toMillis(d.now()), t.UserID,
	)
	if err != nil {
		return fmt.Errorf("increment xp: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrProfileNotFound
	}

	if err := tx.Commit(); err != nil {
		return err
	}
	d.changed(ctx, t.UserID)
	return nil
}

// SetLevelIfHigher raises the stored level monotonically.
func (d *DB) SetLevelIfHigher(ctx context.Context, uid string, level int) (bool, error) {
	res, err := d.db.ExecContext(ctx,
		`UPDATE profiles SET level = ?, updated_at = ? WHERE uid = ? AND level < ?`,
		level, toMillis(d.now()), uid, level,
	)
	if err != nil {
		return false, err
	}
	n, _ := res.RowsAffected()
	if n > 0 {
		d.changed(ctx, uid)
	}
	return n > 0, nil
}

// UpdateStreak writes the streak counter and last login time.
func (d *DB) UpdateStreak(ctx context.Context, uid string, days int, lastLogin time.Time) error {
	res, err := d.db.ExecContext(ctx,
		`UPDATE profiles SET streak_days = ?, last_login = ?, updated_at = ? WHERE uid = ?`,
		days, toMillis(lastLogin), toMillis(d.now()), uid,
	)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrProfileNotFound
	}
	d.changed(ctx, uid)
	return nil
}

// AddUnlockedAchievement unions the ID into the profile's unlocked set.
func (d *DB) AddUnlockedAchievement(ctx context.Context, uid, achievementID string) (bool, error) {
	return d.addToSet(ctx, uid,
		`INSERT OR IGNORE INTO profile_achievements (uid, achievement_id, added_at) VALUES (?, ?, ?)`,
		uid, achievementID, toMillis(d.now()),
	)
}

// AddSavedProject unions projectID into saved projects.
func (d *DB) AddSavedProject(ctx context.Context, uid, projectID string) (bool, error) {
	return d.addToSet(ctx, uid,
		`INSERT OR IGNORE INTO saved_projects (uid, project_id, added_at) VALUES (?, ?, ?)`,
		uid, projectID, toMillis(d.now()),
	)
}

// AddLikedProject unions projectID into liked projects.
func (d *DB) AddLikedProject(ctx context.Context, uid, projectID string) (bool, error) {
	return d.addToSet(ctx, uid,
		`INSERT OR IGNORE INTO liked_projects (uid, project_id, added_at) VALUES (?, ?, ?)`,
		uid, projectID, toMillis(d.now()),
	)
}

// AddCompletedLesson unions the lesson into the course's completed set,
// creating the course record on first use.
func (d *DB) AddCompletedLesson(ctx context.Context, uid, courseID, lessonID string, at time.Time) (bool, error) {
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return false, err
	}
	defer tx.Rollback()

	if err := ensureCourse(ctx, tx, uid, courseID, at); err != nil {
		return false, err
	}

	res, err := tx.ExecContext(ctx,
		`INSERT OR IGNORE INTO completed_lessons (uid, course_id, lesson_id, completed_at) VALUES (?, ?, ?, ?)`,
		uid, courseID, lessonID, toMillis(at),
	)
	if err != nil {
		return false, fmt.Errorf("insert lesson: %w", err)
	}
	added, _ := res.RowsAffected()

	if err := tx.Commit(); err != nil {
		return false, err
	}
	if added > 0 {
		d.changed(ctx, uid)
	}
	return added > 0, nil
}

// MarkCourseCompleted flips the course flag false→true exactly once.
func (d *DB) MarkCourseCompleted(ctx context.Context, uid, courseID string, at time.Time) (bool, error) {
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return false, err
	}
	defer tx.Rollback()

	if err := ensureCourse(ctx, tx, uid, courseID, at); err != nil {
		return false, err
	}

	res, err := tx.ExecContext(ctx,
		`UPDATE course_progress SET course_completed = 1, last_played = ?
		 WHERE uid = ? AND course_id = ? AND course_completed = 0`,
		toMillis(at), uid, courseID,
	)
	if err != nil {
		return false, err
	}
	n, _ := res.RowsAffected()

	if err := tx.Commit(); err != nil {
		return false, err
	}
	if n > 0 {
		d.changed(ctx, uid)
	}
	return n > 0, nil
}

// Subscribe streams profile snapshots after each change until ctx ends.
func (d *DB) Subscribe(ctx context.Context, uid string) (<-chan domain.UserProfile, error) {
	if err := d.exists(ctx, uid); err != nil {
		return nil, err
	}
	return d.hub.add(ctx, uid), nil
}

// ─── Internals ──────────────────────────────────────────────────────────────

// changed publishes a fresh snapshot to subscribers, if any.
func (d *DB) changed(ctx context.Context, uid string) {
	if !d.hub.has(uid) {
		return
	}
	p, err := d.GetProfile(context.WithoutCancel(ctx), uid)
	if err != nil {
		return
	}
	d.hub.publish(*p)
}

func (d *DB) exists(ctx context.Context, uid string) error {
	var one int
	err := d.db.QueryRowContext(ctx, `SELECT 1 FROM profiles WHERE uid = ?`, uid).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.ErrProfileNotFound
	}
	return err
}

func (d *DB) addToSet(ctx context.Context, uid, query string, args ...any) (bool, error) {
	if err := d.exists(ctx, uid); err != nil {
		return false, err
	}
	res, err := d.db.ExecContext(ctx, query, args...)
	if err != nil {
		return false, err
	}
	n, _ := res.RowsAffected()
	if n > 0 {
		d.changed(ctx, uid)
	}
	return n > 0, nil
}

func ensureCourse(ctx context.Context, tx *sql.Tx, uid, courseID string, at time.Time) error {
	var one int
	err := tx.QueryRowContext(ctx, `SELECT 1 FROM profiles WHERE uid = ?`, uid).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.ErrProfileNotFound
	}
	if err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx,
		`INSERT INTO course_progress (uid, course_id, course_completed, last_played) VALUES (?, ?, 0, ?)
		 ON CONFLICT(uid, course_id) DO UPDATE SET last_played = MAX(last_played, excluded.last_played)`,
		uid, courseID, toMillis(at),
	)
	if err != nil {
		return fmt.Errorf("ensure course: %w", err)
	}
	return nil
}

func (d *DB) stringSet(ctx context.Context, query, uid string) ([]string, error) {
	rows, err := d.db.QueryContext(ctx, query, uid)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []string{}
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func (d *DB) courseProgress(ctx context.Context, uid string) ([]domain.CourseProgress, error) {
	rows, err := d.db.QueryContext(ctx,
		`SELECT course_id, course_completed, last_played FROM course_progress
		 WHERE uid = ? ORDER BY course_id`, uid,
	)
	if err != nil {
		return nil, err
	}

	var courses []domain.CourseProgress
	for rows.Next() {
		var c domain.CourseProgress
		var lastPlayed int64
		if err := rows.Scan(&c.CourseID, &c.CourseCompleted, &lastPlayed); err != nil {
			rows.Close()
			return nil, err
		}
		c.LastPlayed = fromMillis(lastPlayed)
		courses = append(courses, c)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	rows.Close()

	// Single connection: the course rows must be closed before these queries.
	for i := range courses {
		lessons, err := d.stringSetArgs(ctx,
			`SELECT lesson_id FROM completed_lessons WHERE uid = ? AND course_id = ? ORDER BY completed_at, rowid`,
			uid, courses[i].CourseID)
		if err != nil {
			return nil, err
		}
		courses[i].CompletedLessons = lessons

		modules, err := d.stringSetArgs(ctx,
			`SELECT module_id FROM completed_modules WHERE uid = ? AND course_id = ? ORDER BY module_id`,
			uid, courses[i].CourseID)
		if err != nil {
			return nil, err
		}
		if len(modules) > 0 {
			courses[i].CompletedModules = modules
		}
	}
	return courses, nil
}

func (d *DB) stringSetArgs(ctx context.Context, query string, args ...any) ([]string, error) {
	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []string{}
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func scanProfile(s scanner) (*domain.UserProfile, error) {
	var p domain.UserProfile
	var lastLogin sql.NullInt64
	var createdAt, updatedAt int64

	err := s.Scan(&p.UID, &p.DisplayName, &p.XP, &p.Level, &p.StreakDays,
		&lastLogin, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrProfileNotFound
	}
	if err != nil {
		return nil, err
	}

	if lastLogin.Valid {
		p.LastLogin = fromMillis(lastLogin.Int64)
	}
	p.CreatedAt = fromMillis(createdAt)
	p.UpdatedAt = fromMillis(updatedAt)
	return &p, nil
}
