package engagement

import (
	"github.com/vibe-dev/academy/internal/domain"
	"github.com/vibe-dev/academy/internal/infra/catalog"
)

// TopLevelSpan is the synthetic XP span used for progress on the
// open-ended top level, so its percentage saturates at 100.
const TopLevelSpan int64 = 10000

// LevelTable is a validated, ascending level table. All methods are pure.
type LevelTable struct {
	levels []domain.LevelInfo
}

// NewLevelTable validates levels and wraps them.
func NewLevelTable(levels []domain.LevelInfo) (*LevelTable, error) {
	if err := catalog.ValidateLevels(levels); err != nil {
		return nil, err
	}
	return &LevelTable{levels: append([]domain.LevelInfo(nil), levels...)}, nil
}

// DefaultLevels is the built-in table.
func DefaultLevels() *LevelTable {
	t, err := NewLevelTable(catalog.Levels)
	if err != nil {
		panic("engagement: built-in level table invalid: " + err.Error())
	}
	return t
}

// Levels returns a copy of the table.
func (t *LevelTable) Levels() []domain.LevelInfo {
	return append([]domain.LevelInfo(nil), t.levels...)
}

// index returns the position of the level containing xp.
// Negative XP clamps to the first level.
func (t *LevelTable) index(xp int64) int {
	if xp < 0 {
		return 0
	}
	// Tables are short; binary search buys nothing here.
	for i, l := range t.levels {
		if l.Contains(xp) {
			return i
		}
	}
	return len(t.levels) - 1
}

// LevelForXP returns the unique level with MinXP <= xp < MaxXP.
func (t *LevelTable) LevelForXP(xp int64) domain.LevelInfo {
	return t.levels[t.index(xp)]
}

// ProgressWithinLevel reports progress through the current level.
// Percentage is in [0, 100] and is 0 at each level's MinXP.
func (t *LevelTable) ProgressWithinLevel(xp int64) domain.Progress {
	if xp < 0 {
		xp = 0
	}
	l := t.LevelForXP(xp)
	needed := l.MaxXP - l.MinXP
	if l.IsTop() {
		needed = TopLevelSpan
	}
	current := xp - l.MinXP

	pct := float64(current) / float64(needed) * 100
	if pct > 100 {
		pct = 100
	}
	return domain.Progress{Current: current, Needed: needed, Percentage: pct}
}

// NextLevel returns the level after the one containing xp, or false at the top.
func (t *LevelTable) NextLevel(xp int64) (domain.LevelInfo, bool) {
	i := t.index(xp)
	if i+1 >= len(t.levels) {
		return domain.LevelInfo{}, false
	}
	return t.levels[i+1], true
}

// ByNumber returns the table entry with the given level number.
func (t *LevelTable) ByNumber(level int) (domain.LevelInfo, bool) {
	for _, l := range t.levels {
		if l.Level == level {
			return l, true
		}
	}
	return domain.LevelInfo{}, false
}

// ─── Package-level helpers over the built-in table ──────────────────────────

var defaultTable = DefaultLevels()

// LevelForXP looks xp up in the built-in table.
func LevelForXP(xp int64) domain.LevelInfo { return defaultTable.LevelForXP(xp) }

// ProgressWithinLevel computes progress against the built-in table.
func ProgressWithinLevel(xp int64) domain.Progress { return defaultTable.ProgressWithinLevel(xp) }

// NextLevel returns the next built-in level, or false at the top.
func NextLevel(xp int64) (domain.LevelInfo, bool) { return defaultTable.NextLevel(xp) }
