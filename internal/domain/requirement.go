package domain

import "fmt"

// RequirementType tags the requirement variants.
type RequirementType string

const (
	ReqLessonComplete RequirementType = "lesson_complete"
	ReqCourseComplete RequirementType = "course_complete"
	ReqStreak         RequirementType = "streak"
	ReqXPTotal        RequirementType = "xp_total"
	ReqProjects       RequirementType = "projects"
	ReqLikes          RequirementType = "likes"
)

// Requirement is a closed set of unlock predicates. Only the variants in
// this file implement it; callers switch on the concrete type.
type Requirement interface {
	Type() RequirementType
	Threshold() int64
	requirement()
}

// LessonComplete is satisfied by completing Value distinct lessons,
// inside CourseID when set.
type LessonComplete struct {
	Value    int64
	CourseID string
}

// CourseComplete is satisfied by finishing CourseID, or Value courses
// when CourseID is empty.
type CourseComplete struct {
	Value    int64
	CourseID string
}

// StreakRequirement is satisfied by a login streak of Value days.
type StreakRequirement struct{ Value int64 }

// XPTotal is satisfied by cumulative XP of Value.
type XPTotal struct{ Value int64 }

// ProjectCount is satisfied by Value uploaded projects.
type ProjectCount struct{ Value int64 }

// LikeCount is satisfied by Value project likes.
type LikeCount struct{ Value int64 }

func (LessonComplete) Type() RequirementType    { return ReqLessonComplete }
func (CourseComplete) Type() RequirementType    { return ReqCourseComplete }
func (StreakRequirement) Type() RequirementType { return ReqStreak }
func (XPTotal) Type() RequirementType           { return ReqXPTotal }
func (ProjectCount) Type() RequirementType      { return ReqProjects }
func (LikeCount) Type() RequirementType         { return ReqLikes }

func (r LessonComplete) Threshold() int64    { return r.Value }
func (r CourseComplete) Threshold() int64    { return r.Value }
func (r StreakRequirement) Threshold() int64 { return r.Value }
func (r XPTotal) Threshold() int64           { return r.Value }
func (r ProjectCount) Threshold() int64      { return r.Value }
func (r LikeCount) Threshold() int64         { return r.Value }

func (LessonComplete) requirement()    {}
func (CourseComplete) requirement()    {}
func (StreakRequirement) requirement() {}
func (XPTotal) requirement()           {}
func (ProjectCount) requirement()      {}
func (LikeCount) requirement()         {}

// NewRequirement builds a variant from its tag. Used by catalog loaders.
func NewRequirement(t RequirementType, value int64, courseID string) (Requirement, error) {
	if value <= 0 {
		return nil, fmt.Errorf("requirement %s: value must be positive, got %d", t, value)
	}
	switch t {
	case ReqLessonComplete:
		return LessonComplete{Value: value, CourseID: courseID}, nil
	case ReqCourseComplete:
		return CourseComplete{Value: value, CourseID: courseID}, nil
	case ReqStreak:
		return StreakRequirement{Value: value}, nil
	case ReqXPTotal:
		return XPTotal{Value: value}, nil
	case ReqProjects:
		return ProjectCount{Value: value}, nil
	case ReqLikes:
		return LikeCount{Value: value}, nil
	}
	return nil, fmt.Errorf("unknown requirement type %q", t)
}

// ─── Action Context ─────────────────────────────────────────────────────────

// ActionType says what just happened; it scopes achievement evaluation.
type ActionType string

const (
	ActionLesson  ActionType = "lesson"
	ActionCourse  ActionType = "course"
	ActionStreak  ActionType = "streak"
	ActionXP      ActionType = "xp"
	ActionProject ActionType = "project"
	ActionLike    ActionType = "like"
	ActionAll     ActionType = "all"
)

// Valid reports whether a is a known action type.
func (a ActionType) Valid() bool {
	switch a {
	case ActionLesson, ActionCourse, ActionStreak, ActionXP, ActionProject, ActionLike, ActionAll:
		return true
	}
	return false
}

// Matches reports whether requirements of type t are relevant to a.
func (a ActionType) Matches(t RequirementType) bool {
	switch a {
	case ActionAll:
		return true
	case ActionLesson:
		return t == ReqLessonComplete
	case ActionCourse:
		return t == ReqCourseComplete
	case ActionStreak:
		return t == ReqStreak
	case ActionXP:
		return t == ReqXPTotal
	case ActionProject:
		return t == ReqProjects
	case ActionLike:
		return t == ReqLikes
	}
	return false
}

// ActionContext carries the counters of the action being evaluated.
// Nil pointers mean "not provided"; the profile value is used instead.
type ActionContext struct {
	Type            ActionType
	CourseID        string
	LessonCount     *int64
	CourseCompleted bool
	Streak          *int64
	TotalXP         *int64
	Projects        *int64
	Likes           *int64
}

// Int64 returns a pointer to v, for filling ActionContext counters.
func Int64(v int64) *int64 { return &v }
