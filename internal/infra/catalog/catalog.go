// Package catalog holds the static gamification catalogs: the level table,
// the achievement list and the daily challenges. They are load-time
// constants; a YAML file may replace any of the three lists at startup.
package catalog

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/vibe-dev/academy/internal/domain"
)

// Catalog bundles the three static lists.
type Catalog struct {
	Levels       []domain.LevelInfo
	Achievements []domain.Achievement
	Challenges   []domain.DailyChallenge
}

// Default returns a fresh copy of the built-in catalogs.
func Default() *Catalog {
	c := &Catalog{
		Levels:       append([]domain.LevelInfo(nil), Levels...),
		Achievements: append([]domain.Achievement(nil), Achievements...),
		Challenges:   append([]domain.DailyChallenge(nil), Challenges...),
	}
	c.applyTierBaselines()
	return c
}

// Achievement finds an achievement by ID. Returns nil if not found.
func (c *Catalog) Achievement(id string) *domain.Achievement {
	for i := range c.Achievements {
		if c.Achievements[i].ID == id {
			return &c.Achievements[i]
		}
	}
	return nil
}

// Challenge finds a daily challenge by ID. Returns nil if not found.
func (c *Catalog) Challenge(id string) *domain.DailyChallenge {
	for i := range c.Challenges {
		if c.Challenges[i].ID == id {
			return &c.Challenges[i]
		}
	}
	return nil
}

// Validate checks every list for internal consistency.
func (c *Catalog) Validate() error {
	if err := ValidateLevels(c.Levels); err != nil {
		return err
	}

	seen := make(map[string]bool)
	for _, a := range c.Achievements {
		switch {
		case a.ID == "":
			return fmt.Errorf("achievement with empty id")
		case seen[a.ID]:
			return fmt.Errorf("duplicate achievement %q", a.ID)
		case !a.Tier.Valid():
			return fmt.Errorf("achievement %q: unknown tier %q", a.ID, a.Tier)
		case a.Requirement == nil:
			return fmt.Errorf("achievement %q: missing requirement", a.ID)
		case a.XPReward <= 0:
			return fmt.Errorf("achievement %q: reward must be positive", a.ID)
		}
		seen[a.ID] = true
	}

	seen = make(map[string]bool)
	for _, ch := range c.Challenges {
		switch {
		case ch.ID == "":
			return fmt.Errorf("challenge with empty id")
		case seen[ch.ID]:
			return fmt.Errorf("duplicate challenge %q", ch.ID)
		case ch.XPReward <= 0:
			return fmt.Errorf("challenge %q: reward must be positive", ch.ID)
		}
		seen[ch.ID] = true
	}
	return nil
}

// ValidateRewards rejects achievement and challenge rewards above the
// per-grant ceiling; such a reward could never be granted.
func (c *Catalog) ValidateRewards(maxGrant int64) error {
	if maxGrant <= 0 {
		return nil
	}
	for _, a := range c.Achievements {
		if a.XPReward > maxGrant {
			return fmt.Errorf("achievement %q: reward %d exceeds the per-grant ceiling of %d", a.ID, a.XPReward, maxGrant)
		}
	}
	for _, ch := range c.Challenges {
		if ch.XPReward > maxGrant {
			return fmt.Errorf("challenge %q: reward %d exceeds the per-grant ceiling of %d", ch.ID, ch.XPReward, maxGrant)
		}
	}
	return nil
}

// ValidateLevels checks that levels partition [0, ∞): the first starts at
// 0, each MinXP equals the previous MaxXP, and only the last is unbounded.
func ValidateLevels(levels []domain.LevelInfo) error {
	if len(levels) == 0 {
		return fmt.Errorf("%w: empty", domain.ErrInvalidLevelTable)
	}
	if levels[0].MinXP != 0 {
		return fmt.Errorf("%w: first level starts at %d", domain.ErrInvalidLevelTable, levels[0].MinXP)
	}
	for i, l := range levels {
		if l.MaxXP <= l.MinXP {
			return fmt.Errorf("%w: level %d has empty range", domain.ErrInvalidLevelTable, l.Level)
		}
		if i > 0 {
			prev := levels[i-1]
			if l.MinXP != prev.MaxXP {
				return fmt.Errorf("%w: gap or overlap between level %d and %d", domain.ErrInvalidLevelTable, prev.Level, l.Level)
			}
			if l.Level <= prev.Level {
				return fmt.Errorf("%w: level numbers must ascend", domain.ErrInvalidLevelTable)
			}
		}
	}
	if !levels[len(levels)-1].IsTop() {
		return fmt.Errorf("%w: last level must be unbounded", domain.ErrInvalidLevelTable)
	}
	return nil
}

func (c *Catalog) applyTierBaselines() {
	for i := range c.Achievements {
		if c.Achievements[i].XPReward == 0 {
			c.Achievements[i].XPReward = c.Achievements[i].Tier.BaselineXP()
		}
	}
}

// ─── YAML Overrides ─────────────────────────────────────────────────────────

type fileLevel struct {
	Level int      `yaml:"level"`
	Title string   `yaml:"title"`
	MinXP int64    `yaml:"min_xp"`
	MaxXP *int64   `yaml:"max_xp"` // omitted on the top level
	Perks []string `yaml:"perks"`
}

type fileRequirement struct {
	Type     domain.RequirementType `yaml:"type"`
	Value    int64                  `yaml:"value"`
	CourseID string                 `yaml:"course_id"`
}

type fileAchievement struct {
	ID          string                     `yaml:"id"`
	Title       string                     `yaml:"title"`
	Description string                     `yaml:"description"`
	Tier        domain.Tier                `yaml:"tier"`
	XPReward    int64                      `yaml:"xp_reward"`
	Category    domain.AchievementCategory `yaml:"category"`
	Requirement fileRequirement            `yaml:"requirement"`
	Secret      bool                       `yaml:"secret"`
}

type fileChallenge struct {
	ID          string `yaml:"id"`
	Title       string `yaml:"title"`
	Description string `yaml:"description"`
	XPReward    int64  `yaml:"xp_reward"`
}

type file struct {
	Levels       []fileLevel       `yaml:"levels"`
	Achievements []fileAchievement `yaml:"achievements"`
	Challenges   []fileChallenge   `yaml:"challenges"`
}

// LoadFile starts from the defaults and replaces every list the YAML file
// provides. An empty path returns the defaults.
func LoadFile(path string) (*Catalog, error) {
	c := Default()
	if path == "" {
		return c, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}
	if err := c.merge(data); err != nil {
		return nil, fmt.Errorf("catalog %s: %w", path, err)
	}
	return c, nil
}

// Parse decodes a YAML document over the defaults.
func Parse(data []byte) (*Catalog, error) {
	c := Default()
	if err := c.merge(data); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Catalog) merge(data []byte) error {
	var f file
	if err := yaml.Unmarshal(data, &f); err != nil {
		return fmt.Errorf("parse yaml: %w", err)
	}

	if len(f.Levels) > 0 {
		c.Levels = c.Levels[:0:0]
		for _, l := range f.Levels {
			maxXP := domain.Unbounded
			if l.MaxXP != nil {
				maxXP = *l.MaxXP
			}
			c.Levels = append(c.Levels, domain.LevelInfo{
				Level: l.Level, Title: l.Title, MinXP: l.MinXP, MaxXP: maxXP, Perks: l.Perks,
			})
		}
	}

	if len(f.Achievements) > 0 {
		c.Achievements = c.Achievements[:0:0]
		for _, a := range f.Achievements {
			req, err := domain.NewRequirement(a.Requirement.Type, a.Requirement.Value, a.Requirement.CourseID)
			if err != nil {
				return fmt.Errorf("achievement %q: %w", a.ID, err)
			}
			c.Achievements = append(c.Achievements, domain.Achievement{
				ID: a.ID, Title: a.Title, Description: a.Description, Tier: a.Tier,
				XPReward: a.XPReward, Category: a.Category, Requirement: req, Secret: a.Secret,
			})
		}
		c.applyTierBaselines()
	}

	if len(f.Challenges) > 0 {
		c.Challenges = c.Challenges[:0:0]
		for _, ch := range f.Challenges {
			c.Challenges = append(c.Challenges, domain.DailyChallenge(ch))
		}
	}

	return c.Validate()
}
