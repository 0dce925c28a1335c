package engagement

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/vibe-dev/academy/internal/domain"
	"github.com/vibe-dev/academy/internal/infra/metrics"
)

// ─── Progress Actions ───────────────────────────────────────────────────────

// Login runs the streak check-in.
func (s *Session) Login(ctx context.Context) (*Outcome, error) {
	if err := s.begin(); err != nil {
		return nil, err
	}
	s.opMu.Lock()
	defer s.opMu.Unlock()

	out := &Outcome{}
	if !s.InLocalMode() {
		res, err := s.e.Streaks.UpdateStreak(ctx, s.uid)
		if err == nil {
			out.Streak = res
			s.refresh(ctx)
			if res.Transition != StreakUnchanged {
				s.dispatcher.NotifyStreakUpdate(s.uid, res.Streak)
			}
			switch {
			case res.Grant != nil:
				s.granted(ctx, res.Grant, out)
			case res.Bonus > 0 && isRemoteFailure(res.BonusErr):
				s.enterLocal()
				if err := s.grantLocal(ctx, res.Bonus, fmt.Sprintf("%d-day streak bonus", res.Streak), out); err != nil {
					s.log.Warn("streak bonus lost", zap.Error(err))
				}
			}
			s.checkRemote(ctx, domain.ActionContext{Type: domain.ActionStreak, Streak: domain.Int64(int64(res.Streak))}, out)
			return out, nil
		}
		if !isRemoteFailure(err) {
			return nil, err
		}
		s.enterLocal()
	}

	res, ch, err := s.e.Mirror.CheckIn(s.uid, s.base())
	if err != nil {
		return nil, err
	}
	metrics.StreakTransitions.WithLabelValues(string(res.Transition)).Inc()
	out.Streak = res
	if res.Transition != StreakUnchanged {
		s.dispatcher.NotifyStreakUpdate(s.uid, res.Streak)
	}
	s.mirrored(ctx, ch, fmt.Sprintf("%d-day streak bonus", res.Streak), out)
	s.checkLocal(domain.ActionContext{Type: domain.ActionStreak, Streak: domain.Int64(int64(res.Streak))}, out)
	return out, nil
}

// CompleteLesson records a lesson and grants its reward once.
func (s *Session) CompleteLesson(ctx context.Context, courseID, lessonID string, t domain.LessonType) (*Outcome, error) {
	if err := s.begin(); err != nil {
		return nil, err
	}
	if err := ValidateLessonRef(s.uid, courseID, lessonID, t); err != nil {
		return nil, err
	}
	s.opMu.Lock()
	defer s.opMu.Unlock()

	out := &Outcome{}
	xp := t.RewardXP()
	reason := fmt.Sprintf("Completed %s lesson %s", t, lessonID)

	if !s.InLocalMode() {
		added, err := s.e.remote.AddCompletedLesson(ctx, s.uid, courseID, lessonID, s.e.now().UTC())
		if err == nil {
			if !added {
				out.Duplicate = true
				return out, nil
			}
			s.refresh(ctx)
			if err := s.grant(ctx, xp, reason, domain.XPMetadata{CourseID: courseID, LessonID: lessonID}, out); err != nil {
				return nil, err
			}
			s.afterLesson(ctx, courseID, out)
			return out, nil
		}
		if !isRemoteFailure(err) {
			return nil, err
		}
		s.log.Warn("lesson write failed, falling back to local mirror", zap.Error(err))
		s.enterLocal()
	}

	ch, err := s.e.Mirror.CompleteLesson(s.uid, s.base(), courseID, lessonID, xp)
	if err != nil {
		return nil, err
	}
	if !ch.Added {
		out.Duplicate = true
		return out, nil
	}
	s.mirrored(ctx, ch, reason, out)
	s.afterLesson(ctx, courseID, out)
	return out, nil
}

func (s *Session) afterLesson(ctx context.Context, courseID string, out *Outcome) {
	p := s.Profile()
	actx := domain.ActionContext{
		Type:        domain.ActionLesson,
		CourseID:    courseID,
		LessonCount: domain.Int64(int64(p.CompletedLessonCount(courseID))),
	}
	if s.InLocalMode() {
		s.checkLocal(actx, out)
		return
	}
	s.checkRemote(ctx, actx, out)
}

// CompleteCourse flags a course complete and grants its reward once.
func (s *Session) CompleteCourse(ctx context.Context, courseID string) (*Outcome, error) {
	if err := s.begin(); err != nil {
		return nil, err
	}
	if err := ValidateCourseRef(s.uid, courseID); err != nil {
		return nil, err
	}
	s.opMu.Lock()
	defer s.opMu.Unlock()

	out := &Outcome{}
	reason := "Completed course " + courseID
	actx := domain.ActionContext{Type: domain.ActionCourse, CourseID: courseID, CourseCompleted: true}

	if !s.InLocalMode() {
		added, err := s.e.remote.MarkCourseCompleted(ctx, s.uid, courseID, s.e.now().UTC())
		if err == nil {
			if !added {
				out.Duplicate = true
				return out, nil
			}
			s.refresh(ctx)
			if err := s.grant(ctx, CourseCompletionXP, reason, domain.XPMetadata{CourseID: courseID}, out); err != nil {
				return nil, err
			}
			if s.InLocalMode() {
				s.checkLocal(actx, out)
			} else {
				s.checkRemote(ctx, actx, out)
			}
			return out, nil
		}
		if !isRemoteFailure(err) {
			return nil, err
		}
		s.enterLocal()
	}

	ch, err := s.e.Mirror.CompleteCourse(s.uid, s.base(), courseID, CourseCompletionXP)
	if err != nil {
		return nil, err
	}
	if !ch.Added {
		out.Duplicate = true
		return out, nil
	}
	s.mirrored(ctx, ch, reason, out)
	s.checkLocal(actx, out)
	return out, nil
}

// UploadProject records a saved project. The project write itself must
// reach the remote store; only its XP may fall back.
func (s *Session) UploadProject(ctx context.Context, projectID string) (*Outcome, error) {
	if err := s.begin(); err != nil {
		return nil, err
	}
	if err := ValidateProjectRef(s.uid, projectID); err != nil {
		return nil, err
	}
	s.opMu.Lock()
	defer s.opMu.Unlock()

	added, err := s.e.remote.AddSavedProject(ctx, s.uid, projectID)
	if err != nil {
		return nil, fmt.Errorf("save project: %w", err)
	}
	out := &Outcome{}
	if !added {
		out.Duplicate = true
		return out, nil
	}
	s.refresh(ctx)
	if err := s.grant(ctx, ProjectUploadXP, "Uploaded project "+projectID, domain.XPMetadata{ProjectID: projectID}, out); err != nil {
		return nil, err
	}
	p := s.Profile()
	actx := domain.ActionContext{Type: domain.ActionProject, Projects: domain.Int64(int64(len(p.SavedProjects)))}
	if s.InLocalMode() {
		s.checkLocal(actx, out)
	} else {
		s.checkRemote(ctx, actx, out)
	}
	return out, nil
}

// LikeProject records a like. Likes grant no XP of their own.
func (s *Session) LikeProject(ctx context.Context, projectID string) (*Outcome, error) {
	if err := s.begin(); err != nil {
		return nil, err
	}
	if err := ValidateProjectRef(s.uid, projectID); err != nil {
		return nil, err
	}
	s.opMu.Lock()
	defer s.opMu.Unlock()

	added, err := s.e.remote.AddLikedProject(ctx, s.uid, projectID)
	if err != nil {
		return nil, fmt.Errorf("like project: %w", err)
	}
	out := &Outcome{}
	if !added {
		out.Duplicate = true
		return out, nil
	}
	s.refresh(ctx)
	p := s.Profile()
	s.checkRemote(ctx, domain.ActionContext{Type: domain.ActionLike, Likes: domain.Int64(int64(len(p.LikedProjects)))}, out)
	return out, nil
}

// ─── Daily Challenges ───────────────────────────────────────────────────────

// CompleteChallenge completes a daily challenge. Completion records need
// the remote idempotency query, so this path has no local fallback.
func (s *Session) CompleteChallenge(ctx context.Context, challengeID string) (*Outcome, error) {
	if err := s.begin(); err != nil {
		return nil, err
	}
	s.opMu.Lock()
	defer s.opMu.Unlock()

	res, err := s.e.Challenges.Complete(ctx, s.uid, challengeID)
	if err != nil && (res == nil || res.Grant == nil) {
		return nil, err
	}
	out := &Outcome{Challenge: res, Duplicate: res.Duplicate}
	if res.Grant != nil {
		s.granted(ctx, res.Grant, out)
	}
	if err != nil {
		s.log.Warn("challenge granted but completion record failed", zap.String("challenge", challengeID), zap.Error(err))
	}
	return out, nil
}

// Challenges lists today's challenges with completion flags.
func (s *Session) Challenges(ctx context.Context) []domain.ChallengeStatus {
	return s.e.Challenges.List(ctx, s.uid)
}
