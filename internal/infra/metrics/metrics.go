// Package metrics provides Prometheus metrics for the gamification engine.
// Counters and gauges for XP grants, levels, achievements, streaks,
// daily challenges, local mode, and notifications.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// ─── XP Ledger ──────────────────────────────────────────────────────────────

// XPAwarded tracks XP committed to the remote store.
var XPAwarded = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "vibe",
	Name:      "xp_awarded_total",
	Help:      "Total XP committed to the remote store.",
})

// XPGrantRetries tracks retried grant attempts.
var XPGrantRetries = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "vibe",
	Name:      "xp_grant_retries_total",
	Help:      "Total XP grant attempts that were retried.",
})

// XPGrantFailures tracks grants that exhausted their retry budget.
var XPGrantFailures = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "vibe",
	Name:      "xp_grant_failures_total",
	Help:      "Total XP grants that failed after all retries.",
})

// XPGrantLatency tracks the duration of a full grant including retries.
var XPGrantLatency = promauto.NewHistogram(prometheus.HistogramOpts{
	Namespace: "vibe",
	Name:      "xp_grant_duration_seconds",
	Help:      "XP grant duration in seconds, including retries.",
	Buckets:   []float64{0.005, 0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10},
})

// LevelUps tracks persisted level increases.
var LevelUps = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "vibe",
	Name:      "level_ups_total",
	Help:      "Total level-ups persisted.",
})

// ─── Achievements & Streaks ─────────────────────────────────────────────────

// AchievementsUnlocked tracks unlocks by achievement ID.
var AchievementsUnlocked = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "vibe",
	Name:      "achievements_unlocked_total",
	Help:      "Total achievements unlocked.",
}, []string{"achievement"})

// StreakTransitions tracks streak outcomes: unchanged, increment, reset.
var StreakTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "vibe",
	Name:      "streak_transitions_total",
	Help:      "Streak tracker transitions by outcome.",
}, []string{"transition"})

// ChallengesCompleted tracks daily challenge completions.
var ChallengesCompleted = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "vibe",
	Name:      "daily_challenges_completed_total",
	Help:      "Total daily challenge completions.",
}, []string{"challenge"})

// ─── Local Mode ─────────────────────────────────────────────────────────────

// LocalModeSessions tracks sessions currently writing to the local mirror.
var LocalModeSessions = promauto.NewGauge(prometheus.GaugeOpts{
	Namespace: "vibe",
	Name:      "local_mode_sessions",
	Help:      "Sessions currently in local mode.",
})

// ReconcileRuns tracks reconciliation attempts by result.
var ReconcileRuns = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "vibe",
	Name:      "reconcile_runs_total",
	Help:      "Reconciliation attempts by result.",
}, []string{"result"})

// ─── Notifications ──────────────────────────────────────────────────────────

// NotificationsDelivered tracks events handed to listeners.
var NotificationsDelivered = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "vibe",
	Name:      "notifications_delivered_total",
	Help:      "Notifications delivered to listeners.",
}, []string{"kind"})

// NotificationsDropped tracks events evicted from a full queue.
var NotificationsDropped = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "vibe",
	Name:      "notifications_dropped_total",
	Help:      "Notifications dropped because the queue was full.",
})

// BestEffortFailures tracks errors swallowed by fail-open paths.
var BestEffortFailures = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "vibe",
	Name:      "besteffort_failures_total",
	Help:      "Errors swallowed by best-effort operations.",
}, []string{"operation"})
