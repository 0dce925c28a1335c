package engagement

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/go-playground/validator/v10"

	"github.com/vibe-dev/academy/internal/domain"
	"github.com/vibe-dev/academy/internal/infra/catalog"
)

// ─── Validation Layer ───────────────────────────────────────────────────────
// Pure guards run before any I/O. Every failure is a *domain.ValidationError.

// Limits bounds grant inputs.
type Limits struct {
	MaxGrant     int64 // sanity ceiling for a single grant
	ReasonMaxLen int   // in runes
}

// DefaultLimits returns the stock bounds.
func DefaultLimits() Limits {
	return Limits{MaxGrant: 10000, ReasonMaxLen: 200}
}

var identPattern = regexp.MustCompile(`^[A-Za-z0-9_.:\-]+$`)

var validate = newValidate()

func newValidate() *validator.Validate {
	v := validator.New()
	_ = v.RegisterValidation("ident", func(fl validator.FieldLevel) bool {
		return identPattern.MatchString(fl.Field().String())
	})
	return v
}

type userRef struct {
	UserID string `validate:"required,max=128,ident"`
}

type lessonRef struct {
	UserID   string            `validate:"required,max=128,ident"`
	CourseID string            `validate:"required,max=128,ident"`
	LessonID string            `validate:"required,max=128,ident"`
	Type     domain.LessonType `validate:"required,oneof=video reading quiz lab project"`
}

type projectRef struct {
	UserID    string `validate:"required,max=128,ident"`
	ProjectID string `validate:"required,max=128,ident"`
}

type courseRef struct {
	UserID   string `validate:"required,max=128,ident"`
	CourseID string `validate:"required,max=128,ident"`
}

type grantInput struct {
	UserID string `validate:"required,max=128,ident"`
	Amount int64  `validate:"gt=0"`
	Reason string `validate:"required"`
}

// ValidateUserID checks a user identifier.
func ValidateUserID(uid string) error {
	return check(userRef{UserID: uid})
}

// ValidateGrant checks an XP grant request against lim.
func ValidateGrant(uid string, amount int64, reason string, lim Limits) error {
	if err := check(grantInput{UserID: uid, Amount: amount, Reason: strings.TrimSpace(reason)}); err != nil {
		return err
	}
	if lim.MaxGrant > 0 && amount > lim.MaxGrant {
		return domain.Invalid("amount", "%d exceeds the per-grant ceiling of %d", amount, lim.MaxGrant)
	}
	if lim.ReasonMaxLen > 0 && utf8.RuneCountInString(reason) > lim.ReasonMaxLen {
		return domain.Invalid("reason", "longer than %d characters", lim.ReasonMaxLen)
	}
	return nil
}

// ValidateLessonRef checks a lesson completion request.
func ValidateLessonRef(uid, courseID, lessonID string, t domain.LessonType) error {
	return check(lessonRef{UserID: uid, CourseID: courseID, LessonID: lessonID, Type: t})
}

// ValidateProjectRef checks a project action.
func ValidateProjectRef(uid, projectID string) error {
	return check(projectRef{UserID: uid, ProjectID: projectID})
}

// ValidateCourseRef checks a course completion request.
func ValidateCourseRef(uid, courseID string) error {
	return check(courseRef{UserID: uid, CourseID: courseID})
}

// ValidateAchievementID resolves id against the catalog.
func ValidateAchievementID(cat *catalog.Catalog, id string) (*domain.Achievement, error) {
	if strings.TrimSpace(id) == "" {
		return nil, domain.Invalid("achievement_id", "required")
	}
	a := cat.Achievement(id)
	if a == nil {
		return nil, fmt.Errorf("%w: %s", domain.ErrUnknownAchievement, id)
	}
	return a, nil
}

// ValidateChallengeID resolves id against the catalog.
func ValidateChallengeID(cat *catalog.Catalog, id string) (*domain.DailyChallenge, error) {
	if strings.TrimSpace(id) == "" {
		return nil, domain.Invalid("challenge_id", "required")
	}
	c := cat.Challenge(id)
	if c == nil {
		return nil, fmt.Errorf("%w: %s", domain.ErrUnknownChallenge, id)
	}
	return c, nil
}

// check runs struct validation and maps the first failure to a
// domain.ValidationError.
func check(s any) error {
	err := validate.Struct(s)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return domain.Invalid("input", "%v", err)
	}
	fe := verrs[0]
	return domain.Invalid(snake(fe.Field()), "must satisfy %s", describeTag(fe))
}

func describeTag(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "required (non-empty)"
	case "ident":
		return "identifier charset [A-Za-z0-9_.:-]"
	case "gt":
		return "positive value"
	}
	if fe.Param() != "" {
		return fe.Tag() + "=" + fe.Param()
	}
	return fe.Tag()
}

// snake converts "UserID" style field names to "user_id".
func snake(s string) string {
	var b strings.Builder
	for i, r := range s {
		upper := r >= 'A' && r <= 'Z'
		if upper && i > 0 {
			prevLower := s[i-1] >= 'a' && s[i-1] <= 'z'
			nextLower := i+1 < len(s) && s[i+1] >= 'a' && s[i+1] <= 'z'
			if prevLower || nextLower {
				b.WriteByte('_')
			}
		}
		if upper {
			r += 'a' - 'A'
		}
		b.WriteRune(r)
	}
	return b.String()
}
