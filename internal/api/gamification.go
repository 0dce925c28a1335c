package api

import (
	"encoding/json"
	"net/http"
	"slices"

	"github.com/go-chi/chi/v5"

	"github.com/vibe-dev/academy/internal/app/engagement"
	"github.com/vibe-dev/academy/internal/domain"
)

// ─── Requests ───────────────────────────────────────────────────────────────

type awardRequest struct {
	Amount int64             `json:"amount"`
	Reason string            `json:"reason"`
	Queued bool              `json:"queued"`
	Meta   domain.XPMetadata `json:"metadata"`
}

type lessonRequest struct {
	CourseID string            `json:"course_id"`
	LessonID string            `json:"lesson_id"`
	Type     domain.LessonType `json:"type"`
}

type projectRequest struct {
	ProjectID string `json:"project_id"`
}

type checkRequest struct {
	Type     domain.ActionType `json:"type"`
	CourseID string            `json:"course_id"`
}

type achievementView struct {
	domain.Achievement
	Unlocked bool `json:"unlocked"`
}

// decode reads an optional JSON body. An empty body leaves v untouched.
func decode(r *http.Request, v any) error {
	if r.ContentLength == 0 {
		return nil
	}
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return domain.Invalid("body", "%v", err)
	}
	return nil
}

// session opens (or reuses) the engine session for the {uid} path param.
func (s *Server) session(w http.ResponseWriter, r *http.Request) (*engagement.Session, bool) {
	sess, err := s.engine.OpenSession(r.Context(), chi.URLParam(r, "uid"))
	if err != nil {
		s.writeEngineError(w, r, err)
		return nil, false
	}
	return sess, true
}

// ─── Profile ────────────────────────────────────────────────────────────────

func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, sess.Snapshot())
}

func (s *Server) handleCloseSession(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.engine.Session(chi.URLParam(r, "uid"))
	if !ok {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	if err := sess.Close(r.Context()); err != nil {
		s.writeEngineError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	out, err := sess.Login(r.Context())
	s.writeOutcome(w, r, sess, out, err)
}

// ─── XP & Progress ──────────────────────────────────────────────────────────

func (s *Server) handleAwardXP(w http.ResponseWriter, r *http.Request) {
	var req awardRequest
	if err := decode(r, &req); err != nil {
		s.writeEngineError(w, r, err)
		return
	}
	sess, ok := s.session(w, r)
	if !ok {
		return
	}

	if req.Queued {
		if err := sess.QueueXP(req.Amount, req.Reason); err != nil {
			s.writeEngineError(w, r, err)
			return
		}
		writeJSON(w, http.StatusAccepted, map[string]any{"queued": true})
		return
	}
	out, err := sess.AwardXP(r.Context(), req.Amount, req.Reason, req.Meta)
	s.writeOutcome(w, r, sess, out, err)
}

func (s *Server) handleCompleteLesson(w http.ResponseWriter, r *http.Request) {
	var req lessonRequest
	if err := decode(r, &req); err != nil {
		s.writeEngineError(w, r, err)
		return
	}
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	out, err := sess.CompleteLesson(r.Context(), req.CourseID, req.LessonID, req.Type)
	s.writeOutcome(w, r, sess, out, err)
}

func (s *Server) handleCompleteCourse(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	out, err := sess.CompleteCourse(r.Context(), chi.URLParam(r, "courseID"))
	s.writeOutcome(w, r, sess, out, err)
}

func (s *Server) handleUploadProject(w http.ResponseWriter, r *http.Request) {
	var req projectRequest
	if err := decode(r, &req); err != nil {
		s.writeEngineError(w, r, err)
		return
	}
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	out, err := sess.UploadProject(r.Context(), req.ProjectID)
	s.writeOutcome(w, r, sess, out, err)
}

func (s *Server) handleLikeProject(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	out, err := sess.LikeProject(r.Context(), chi.URLParam(r, "projectID"))
	s.writeOutcome(w, r, sess, out, err)
}

// ─── Achievements ───────────────────────────────────────────────────────────

// handleAchievements lists the catalog with the learner's unlocks. Secret
// achievements are hidden until unlocked.
func (s *Server) handleAchievements(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	unlocked := sess.Snapshot().Achievements

	views := make([]achievementView, 0, len(s.engine.Catalog().Achievements))
	for _, a := range s.engine.Catalog().Achievements {
		has := slices.Contains(unlocked, a.ID)
		if a.Secret && !has {
			continue
		}
		views = append(views, achievementView{Achievement: a, Unlocked: has})
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"achievements": views,
		"unlocked":     len(unlocked),
	})
}

func (s *Server) handleCheckAchievements(w http.ResponseWriter, r *http.Request) {
	req := checkRequest{Type: domain.ActionAll}
	if err := decode(r, &req); err != nil {
		s.writeEngineError(w, r, err)
		return
	}
	if !req.Type.Valid() {
		writeError(w, http.StatusBadRequest, "unknown action type "+string(req.Type))
		return
	}
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	unlocked := sess.CheckAchievements(r.Context(), domain.ActionContext{Type: req.Type, CourseID: req.CourseID})
	if unlocked == nil {
		unlocked = []domain.Achievement{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"unlocked": unlocked,
		"profile":  sess.Snapshot(),
	})
}

// ─── Daily Challenges ───────────────────────────────────────────────────────

func (s *Server) handleChallenges(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"date":       domain.DayKey(s.engine.Now()),
		"challenges": sess.Challenges(r.Context()),
	})
}

func (s *Server) handleCompleteChallenge(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	out, err := sess.CompleteChallenge(r.Context(), chi.URLParam(r, "challengeID"))
	s.writeOutcome(w, r, sess, out, err)
}

// ─── Sync ───────────────────────────────────────────────────────────────────

func (s *Server) handleSync(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	res, err := sess.Sync(r.Context())
	if err != nil {
		s.writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"result":  res,
		"profile": sess.Snapshot(),
	})
}

// ─── Catalog ────────────────────────────────────────────────────────────────

func (s *Server) handleCatalogLevels(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"levels": s.engine.Catalog().Levels})
}

func (s *Server) handleCatalogAchievements(w http.ResponseWriter, r *http.Request) {
	public := make([]domain.Achievement, 0, len(s.engine.Catalog().Achievements))
	for _, a := range s.engine.Catalog().Achievements {
		if !a.Secret {
			public = append(public, a)
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"achievements": public})
}

func (s *Server) handleCatalogChallenges(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"challenges": s.engine.Catalog().Challenges})
}

// writeOutcome writes an action result together with the fresh snapshot.
func (s *Server) writeOutcome(w http.ResponseWriter, r *http.Request, sess *engagement.Session, out *engagement.Outcome, err error) {
	if err != nil {
		s.writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"outcome": out,
		"profile": sess.Snapshot(),
	})
}
