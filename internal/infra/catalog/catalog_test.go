package catalog

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vibe-dev/academy/internal/domain"
)

func TestDefault_Valid(t *testing.T) {
	c := Default()
	require.NoError(t, c.Validate())
	assert.Len(t, c.Levels, 8)
	assert.NotEmpty(t, c.Achievements)
	assert.Len(t, c.Challenges, 5)
}

func TestDefault_TierBaselines(t *testing.T) {
	c := Default()
	a := c.Achievement("first_lesson")
	require.NotNil(t, a)
	assert.Equal(t, int64(50), a.XPReward)

	// The package-level list stays untouched.
	assert.Equal(t, int64(0), Achievements[0].XPReward)
}

func TestLookup(t *testing.T) {
	c := Default()
	assert.Nil(t, c.Achievement("nope"))
	assert.Nil(t, c.Challenge("nope"))
	require.NotNil(t, c.Challenge("daily_login"))
	assert.Equal(t, int64(10), c.Challenge("daily_login").XPReward)
}

func TestValidateLevels(t *testing.T) {
	ok := []domain.LevelInfo{
		{Level: 1, MinXP: 0, MaxXP: 10},
		{Level: 2, MinXP: 10, MaxXP: domain.Unbounded},
	}
	require.NoError(t, ValidateLevels(ok))

	cases := map[string][]domain.LevelInfo{
		"empty":       nil,
		"not zero":    {{Level: 1, MinXP: 5, MaxXP: domain.Unbounded}},
		"gap":         {{Level: 1, MinXP: 0, MaxXP: 10}, {Level: 2, MinXP: 11, MaxXP: domain.Unbounded}},
		"overlap":     {{Level: 1, MinXP: 0, MaxXP: 10}, {Level: 2, MinXP: 9, MaxXP: domain.Unbounded}},
		"bounded top": {{Level: 1, MinXP: 0, MaxXP: 10}, {Level: 2, MinXP: 10, MaxXP: 20}},
		"descending":  {{Level: 2, MinXP: 0, MaxXP: 10}, {Level: 1, MinXP: 10, MaxXP: domain.Unbounded}},
	}
	for name, levels := range cases {
		t.Run(name, func(t *testing.T) {
			assert.ErrorIs(t, ValidateLevels(levels), domain.ErrInvalidLevelTable)
		})
	}
}

func TestParse_ReplacesProvidedLists(t *testing.T) {
	doc := `
levels:
  - {level: 1, title: Zero, min_xp: 0, max_xp: 50}
  - {level: 2, title: One, min_xp: 50}
achievements:
  - id: streak_2
    title: Two Days
    tier: gold
    category: dedication
    requirement: {type: streak, value: 2}
`
	c, err := Parse([]byte(doc))
	require.NoError(t, err)

	require.Len(t, c.Levels, 2)
	assert.True(t, c.Levels[1].IsTop())

	require.Len(t, c.Achievements, 1)
	assert.Equal(t, int64(250), c.Achievements[0].XPReward)
	assert.Equal(t, domain.StreakRequirement{Value: 2}, c.Achievements[0].Requirement)

	// Challenges were not provided, so defaults remain.
	assert.Len(t, c.Challenges, 5)
}

func TestParse_Rejects(t *testing.T) {
	_, err := Parse([]byte(`achievements: [{id: x, tier: bronze, requirement: {type: bogus, value: 1}}]`))
	assert.Error(t, err)

	_, err = Parse([]byte(`levels: [{level: 1, min_xp: 0, max_xp: 10}]`))
	assert.ErrorIs(t, err, domain.ErrInvalidLevelTable)

	_, err = Parse([]byte(`challenges: [{id: a, xp_reward: 5}, {id: a, xp_reward: 5}]`))
	assert.Error(t, err)
}

func TestValidateRewards(t *testing.T) {
	c := Default()
	assert.NoError(t, c.ValidateRewards(10000))
	assert.NoError(t, c.ValidateRewards(0), "no ceiling")

	c, err := Parse([]byte("challenges:\n  - {id: jackpot, title: Jackpot, xp_reward: 20000}\n"))
	require.NoError(t, err)
	assert.ErrorContains(t, c.ValidateRewards(10000), `challenge "jackpot"`)

	c, err = Parse([]byte(`achievements: [{id: whale, tier: gold, xp_reward: 20000, requirement: {type: xp_total, value: 1}}]`))
	require.NoError(t, err)
	assert.ErrorContains(t, c.ValidateRewards(10000), `achievement "whale"`)
}

func TestLoadFile(t *testing.T) {
	c, err := LoadFile("")
	require.NoError(t, err)
	assert.Len(t, c.Levels, 8)

	path := filepath.Join(t.TempDir(), "catalog.yaml")
	require.NoError(t, os.WriteFile(path, []byte("challenges:\n  - {id: solo, title: Solo, xp_reward: 15}\n"), 0644))
	c, err = LoadFile(path)
	require.NoError(t, err)
	require.Len(t, c.Challenges, 1)
	assert.Equal(t, "solo", c.Challenges[0].ID)

	_, err = LoadFile(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
