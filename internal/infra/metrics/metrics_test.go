package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func gatheredNames(t *testing.T) map[string]bool {
	t.Helper()
	families, err := prometheus.DefaultGatherer.Gather()
	require.NoError(t, err)
	names := make(map[string]bool)
	for _, f := range families {
		names[f.GetName()] = true
	}
	return names
}

func TestLedgerMetrics_Registered(t *testing.T) {
	XPAwarded.Add(10)
	XPGrantRetries.Inc()
	XPGrantFailures.Inc()
	XPGrantLatency.Observe(0.2)
	LevelUps.Inc()

	names := gatheredNames(t)
	for _, want := range []string{
		"vibe_xp_awarded_total",
		"vibe_xp_grant_retries_total",
		"vibe_xp_grant_failures_total",
		"vibe_xp_grant_duration_seconds",
		"vibe_level_ups_total",
	} {
		assert.True(t, names[want], "%s not found in gathered metrics", want)
	}
}

func TestLabeledCounters(t *testing.T) {
	// Vec metrics only appear once a label set is observed.
	AchievementsUnlocked.WithLabelValues("first_lesson").Inc()
	StreakTransitions.WithLabelValues("increment").Inc()
	ChallengesCompleted.WithLabelValues("daily_login").Inc()
	ReconcileRuns.WithLabelValues("ok").Inc()
	NotificationsDelivered.WithLabelValues("xp_gained").Inc()
	BestEffortFailures.WithLabelValues("check_achievements").Inc()
	NotificationsDropped.Inc()
	LocalModeSessions.Set(1)

	names := gatheredNames(t)
	for _, want := range []string{
		"vibe_achievements_unlocked_total",
		"vibe_streak_transitions_total",
		"vibe_daily_challenges_completed_total",
		"vibe_reconcile_runs_total",
		"vibe_notifications_delivered_total",
		"vibe_notifications_dropped_total",
		"vibe_besteffort_failures_total",
		"vibe_local_mode_sessions",
	} {
		assert.True(t, names[want], "%s not found in gathered metrics", want)
	}
}
