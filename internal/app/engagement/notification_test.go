package engagement

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/vibe-dev/academy/internal/domain"
)

func TestDispatcher_DeliversInOrder(t *testing.T) {
	d := NewDispatcher(DispatchConfig{QueueSize: 8}, zap.NewNop())
	defer d.Close()

	rec := &recorder{}
	d.Subscribe(rec.listen)

	d.NotifyXPGain("u1", 10, "lesson")
	d.NotifyLevelUp("u1", LevelForXP(100))
	d.NotifyAchievementUnlock("u1", domain.Achievement{ID: "first_lesson"})
	d.NotifyStreakUpdate("u1", 3)

	require.Eventually(t, func() bool { return len(rec.all()) == 4 }, time.Second, 5*time.Millisecond)
	evs := rec.all()
	assert.Equal(t, domain.EventXPGained, evs[0].Kind)
	assert.Equal(t, int64(10), evs[0].Amount)
	assert.Equal(t, domain.EventLevelUp, evs[1].Kind)
	assert.Equal(t, 2, evs[1].Level.Level)
	assert.Equal(t, "first_lesson", evs[2].Achievement.ID)
	assert.Equal(t, 3, evs[3].Streak)
}

func TestDispatcher_MinSpacing(t *testing.T) {
	d := NewDispatcher(DispatchConfig{MinSpacing: 40 * time.Millisecond, QueueSize: 8}, zap.NewNop())
	defer d.Close()

	var times []time.Time
	done := make(chan struct{}, 3)
	d.Subscribe(func(domain.Event) {
		times = append(times, time.Now())
		done <- struct{}{}
	})

	for range 3 {
		d.NotifyStreakUpdate("u1", 1)
	}
	for range 3 {
		select {
		case <-done:
		case <-time.After(time.Second):
			t.Fatal("event not delivered")
		}
	}
	assert.GreaterOrEqual(t, times[1].Sub(times[0]), 40*time.Millisecond)
	assert.GreaterOrEqual(t, times[2].Sub(times[1]), 40*time.Millisecond)
}

func TestDispatcher_DropsOldestWhenFull(t *testing.T) {
	d := NewDispatcher(DispatchConfig{MinSpacing: time.Hour, QueueSize: 2}, zap.NewNop())
	defer d.Close()

	block := make(chan struct{})
	d.Subscribe(func(domain.Event) { <-block })

	d.NotifyStreakUpdate("u1", 1) // taken by the loop, blocks in the listener
	require.Eventually(t, func() bool { return d.Pending() == 0 }, time.Second, time.Millisecond)

	d.NotifyStreakUpdate("u1", 2)
	d.NotifyStreakUpdate("u1", 3)
	d.NotifyStreakUpdate("u1", 4)
	assert.Equal(t, 2, d.Pending())

	d.mu.Lock()
	assert.Equal(t, 3, d.queue[0].Streak, "oldest queued event dropped")
	d.mu.Unlock()
	close(block)
}

func TestDispatcher_ListenerPanicIsContained(t *testing.T) {
	d := NewDispatcher(DispatchConfig{QueueSize: 8}, zap.NewNop())
	defer d.Close()

	rec := &recorder{}
	d.Subscribe(func(domain.Event) { panic("listener bug") })
	d.Subscribe(rec.listen)

	d.NotifyXPGain("u1", 1, "a")
	d.NotifyXPGain("u1", 2, "b")
	require.Eventually(t, func() bool { return rec.count(domain.EventXPGained) == 2 }, time.Second, 5*time.Millisecond)
}

func TestDispatcher_UnsubscribeAndClose(t *testing.T) {
	d := NewDispatcher(DispatchConfig{QueueSize: 8}, zap.NewNop())

	rec := &recorder{}
	unsub := d.Subscribe(rec.listen)
	unsub()
	unsub()

	d.NotifyXPGain("u1", 1, "a")
	require.Eventually(t, func() bool { return d.Pending() == 0 }, time.Second, time.Millisecond)
	assert.Empty(t, rec.all())

	d.Close()
	d.Close()
	assert.NotPanics(t, func() { d.NotifyXPGain("u1", 1, "after close") })
	assert.Zero(t, d.Pending())
}
