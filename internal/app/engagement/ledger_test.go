package engagement

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vibe-dev/academy/internal/domain"
)

func TestAwardXP_CommitsTransactionAndIncrement(t *testing.T) {
	s := newTestStore(t)
	seed(t, s, "u1", 0)
	l := newTestLedger(s)

	g, err := l.AwardXP(context.Background(), "u1", 40, "Completed quiz", domain.XPMetadata{LessonID: "l1"})
	require.NoError(t, err)
	assert.Equal(t, int64(40), g.NewXP)
	assert.False(t, g.LeveledUp)

	txs, err := s.DB.XPTransactions(context.Background(), "u1", 10)
	require.NoError(t, err)
	require.Len(t, txs, 1)
	assert.Equal(t, g.TransactionID, txs[0].ID)
	assert.Equal(t, "l1", txs[0].Metadata.LessonID)
	assert.Equal(t, int64(40), profile(t, s, "u1").XP)
}

func TestAwardXP_LevelUpOnce(t *testing.T) {
	s := newTestStore(t)
	seed(t, s, "u1", 95)
	l := newTestLedger(s)

	g, err := l.AwardXP(context.Background(), "u1", 10, "bonus", domain.XPMetadata{})
	require.NoError(t, err)
	assert.Equal(t, int64(105), g.NewXP)
	assert.True(t, g.LeveledUp)
	assert.Equal(t, 1, g.OldLevel.Level)
	assert.Equal(t, 2, g.NewLevel.Level)
	assert.Equal(t, 2, profile(t, s, "u1").Level)

	// Same level, no second level-up.
	g, err = l.AwardXP(context.Background(), "u1", 10, "bonus", domain.XPMetadata{})
	require.NoError(t, err)
	assert.False(t, g.LeveledUp)
}

func TestAwardXP_ValidationWritesNothing(t *testing.T) {
	s := newTestStore(t)
	seed(t, s, "u1", 0)
	l := newTestLedger(s)

	_, err := l.AwardXP(context.Background(), "u1", -1, "nope", domain.XPMetadata{})
	assert.ErrorIs(t, err, domain.ErrValidation)
	_, err = l.AwardXP(context.Background(), "u1", 10, "", domain.XPMetadata{})
	assert.ErrorIs(t, err, domain.ErrValidation)
	assert.Zero(t, s.grants())
}

func TestAwardXP_MissingProfileNotRetried(t *testing.T) {
	s := newTestStore(t)
	l := newTestLedger(s)

	_, err := l.AwardXP(context.Background(), "ghost", 10, "x", domain.XPMetadata{})
	assert.ErrorIs(t, err, domain.ErrProfileNotFound)
	assert.NotErrorIs(t, err, domain.ErrRetriesExhausted)
	assert.Equal(t, 1, s.grants())
}

func TestAwardXP_RetriesThenSucceeds(t *testing.T) {
	s := newTestStore(t)
	seed(t, s, "u1", 0)
	l := newTestLedger(s)

	var delays []time.Duration
	l.sleep = func(_ context.Context, d time.Duration) error {
		delays = append(delays, d)
		return nil
	}
	s.failNextGrants(2)

	g, err := l.AwardXP(context.Background(), "u1", 25, "retry", domain.XPMetadata{})
	require.NoError(t, err)
	assert.Equal(t, int64(25), g.NewXP)
	assert.Equal(t, 3, s.grants())
	assert.Equal(t, []time.Duration{time.Millisecond, 2 * time.Millisecond}, delays, "linear backoff")
}

func TestAwardXP_RetriesExhausted(t *testing.T) {
	s := newTestStore(t)
	seed(t, s, "u1", 0)
	l := newTestLedger(s)
	s.failNextGrants(-1)

	_, err := l.AwardXP(context.Background(), "u1", 25, "retry", domain.XPMetadata{})
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrRetriesExhausted)
	assert.Equal(t, l.cfg.MaxRetries, s.grants())
	assert.Zero(t, profile(t, s, "u1").XP)
}

func TestAwardXP_CancelledDuringBackoff(t *testing.T) {
	s := newTestStore(t)
	seed(t, s, "u1", 0)
	l := newTestLedger(s)
	l.sleep = sleepCtx
	l.cfg.BaseDelay = time.Hour
	s.failNextGrants(-1)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()
	_, err := l.AwardXP(ctx, "u1", 5, "x", domain.XPMetadata{})
	assert.ErrorIs(t, err, domain.ErrRetriesExhausted)
	assert.True(t, errors.Is(err, domain.ErrRetriesExhausted))
	assert.Equal(t, 1, s.grants())
}

func TestSyncXP_SkipsCeiling(t *testing.T) {
	s := newTestStore(t)
	seed(t, s, "u1", 0)
	l := newTestLedger(s)

	g, err := l.SyncXP(context.Background(), "u1", "sync-1", l.Limits().MaxGrant*3)
	require.NoError(t, err)
	assert.Equal(t, SyncReason, g.Reason)
	assert.Equal(t, 8, g.NewLevel.Level)
}

func TestAwardXP_LostAckCountsOnce(t *testing.T) {
	s := newTestStore(t)
	seed(t, s, "u1", 0)
	l := newTestLedger(s)
	s.loseNextAcks(1)

	g, err := l.AwardXP(context.Background(), "u1", 10, "Completed quiz", domain.XPMetadata{})
	require.NoError(t, err)
	assert.Equal(t, int64(10), g.NewXP)
	assert.Equal(t, 2, s.grants())
	assert.Equal(t, int64(10), profile(t, s, "u1").XP)

	txs, err := s.DB.XPTransactions(context.Background(), "u1", 10)
	require.NoError(t, err)
	require.Len(t, txs, 1)
	assert.Equal(t, g.TransactionID, txs[0].ID)
}

func TestSyncXP_ReplayedIDAddsNothing(t *testing.T) {
	s := newTestStore(t)
	seed(t, s, "u1", 0)
	l := newTestLedger(s)

	_, err := l.SyncXP(context.Background(), "u1", "sync-1", 30)
	require.NoError(t, err)
	g, err := l.SyncXP(context.Background(), "u1", "sync-1", 30)
	require.NoError(t, err)
	assert.Equal(t, int64(30), g.NewXP)
	assert.Equal(t, int64(30), profile(t, s, "u1").XP)
}

func TestSleepCtx(t *testing.T) {
	assert.NoError(t, sleepCtx(context.Background(), time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, sleepCtx(ctx, time.Hour), context.Canceled)
}
