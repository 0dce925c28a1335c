package sqlite

import (
	"context"
	"strings"

	"github.com/vibe-dev/academy/internal/domain"
)

// ─── Append-only Audit Collections ──────────────────────────────────────────

// AppendAchievementUnlock records an unlock.
func (d *DB) AppendAchievementUnlock(ctx context.Context, u domain.AchievementUnlock) error {
	_, err := d.db.ExecContext(ctx,
		`INSERT INTO achievement_unlocks (id, user_id, achievement_id, unlocked_at, xp_awarded)
		 VALUES (?, ?, ?, ?, ?)`,
		u.ID, u.UserID, u.AchievementID, toMillis(u.UnlockedAt), u.XPAwarded,
	)
	return err
}

// AppendChallengeCompletion records a daily challenge completion.
func (d *DB) AppendChallengeCompletion(ctx context.Context, p domain.DailyChallengeProgress) error {
	_, err := d.db.ExecContext(ctx,
		`INSERT INTO daily_challenge_progress (id, user_id, challenge_id, completed_at, xp_awarded, date)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		p.ID, p.UserID, p.ChallengeID, toMillis(p.CompletedAt), p.XPAwarded, p.Date,
	)
	return err
}

// FindChallengeCompletions returns completion records matching every
// non-empty field of q, oldest first.
func (d *DB) FindChallengeCompletions(ctx context.Context, q domain.ChallengeQuery) ([]domain.DailyChallengeProgress, error) {
	var where []string
	var args []any
	if q.UserID != "" {
		where = append(where, "user_id = ?")
		args = append(args, q.UserID)
	}
	if q.ChallengeID != "" {
		where = append(where, "challenge_id = ?")
		args = append(args, q.ChallengeID)
	}
	if q.Date != "" {
		where = append(where, "date = ?")
		args = append(args, q.Date)
	}

	query := `SELECT id, user_id, challenge_id, completed_at, xp_awarded, date FROM daily_challenge_progress`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY completed_at, rowid"

	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.DailyChallengeProgress
	for rows.Next() {
		var p domain.DailyChallengeProgress
		var completedAt int64
		if err := rows.Scan(&p.ID, &p.UserID, &p.ChallengeID, &completedAt, &p.XPAwarded, &p.Date); err != nil {
			return nil, err
		}
		p.CompletedAt = fromMillis(completedAt)
		out = append(out, p)
	}
	return out, rows.Err()
}

// XPTransactions lists a user's grants, newest first.
func (d *DB) XPTransactions(ctx context.Context, uid string, limit int) ([]domain.XPTransaction, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := d.db.QueryContext(ctx,
		`SELECT id, user_id, amount, reason, timestamp, course_id, lesson_id, achievement_id, project_id, challenge_id
		 FROM xp_transactions WHERE user_id = ? ORDER BY timestamp DESC, rowid DESC LIMIT ?`,
		uid, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.XPTransaction
	for rows.Next() {
		var t domain.XPTransaction
		var ts int64
		if err := rows.Scan(&t.ID, &t.UserID, &t.Amount, &t.Reason, &ts,
			&t.Metadata.CourseID, &t.Metadata.LessonID, &t.Metadata.AchievementID,
			&t.Metadata.ProjectID, &t.Metadata.ChallengeID); err != nil {
			return nil, err
		}
		t.Timestamp = fromMillis(ts)
		out = append(out, t)
	}
	return out, rows.Err()
}

// AchievementUnlocks lists a user's unlock records, oldest first.
func (d *DB) AchievementUnlocks(ctx context.Context, uid string) ([]domain.AchievementUnlock, error) {
	rows, err := d.db.QueryContext(ctx,
		`SELECT id, user_id, achievement_id, unlocked_at, xp_awarded
		 FROM achievement_unlocks WHERE user_id = ? ORDER BY unlocked_at, rowid`, uid,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.AchievementUnlock
	for rows.Next() {
		var u domain.AchievementUnlock
		var at int64
		if err := rows.Scan(&u.ID, &u.UserID, &u.AchievementID, &at, &u.XPAwarded); err != nil {
			return nil, err
		}
		u.UnlockedAt = fromMillis(at)
		out = append(out, u)
	}
	return out, rows.Err()
}
