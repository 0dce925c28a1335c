package engagement

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/vibe-dev/academy/internal/domain"
)

// BatchConfig tunes XP debouncing.
type BatchConfig struct {
	Debounce   time.Duration // quiet period before a flush
	MaxPending int           // flush early at this many queued grants; 0 = never
}

// DefaultBatchConfig returns a one-second debounce capped at 25 grants.
func DefaultBatchConfig() BatchConfig {
	return BatchConfig{Debounce: time.Second, MaxPending: 25}
}

// BatchState is the batcher's position in idle → pending → flushing.
type BatchState int

const (
	BatchIdle BatchState = iota
	BatchPending
	BatchFlushing
)

func (s BatchState) String() string {
	switch s {
	case BatchIdle:
		return "idle"
	case BatchPending:
		return "pending"
	case BatchFlushing:
		return "flushing"
	}
	return fmt.Sprintf("BatchState(%d)", int(s))
}

// FlushFunc commits one combined grant.
type FlushFunc func(ctx context.Context, amount int64, reason string) error

type queuedGrant struct {
	amount int64
	reason string
}

// Batcher coalesces rapid XP grants for one user into a single write.
// Flush triggers: the debounce timer, the MaxPending threshold, and an
// explicit Flush or Close.
type Batcher struct {
	cfg       BatchConfig
	flush     FlushFunc
	reasonMax int
	onError   func(error)

	mu     sync.Mutex
	state  BatchState
	queue  []queuedGrant
	timer  *time.Timer
	closed bool

	flushMu sync.Mutex // one flush at a time
}

// NewBatcher creates an idle batcher. reasonMax bounds the combined reason.
func NewBatcher(cfg BatchConfig, reasonMax int, flush FlushFunc, onError func(error)) *Batcher {
	if onError == nil {
		onError = func(error) {}
	}
	return &Batcher{cfg: cfg, flush: flush, reasonMax: reasonMax, onError: onError}
}

// State returns the current state.
func (b *Batcher) State() BatchState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Len returns the number of queued grants.
func (b *Batcher) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.queue)
}

// Enqueue adds a grant and (re)arms the debounce timer.
func (b *Batcher) Enqueue(amount int64, reason string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return domain.ErrSessionClosed
	}

	b.queue = append(b.queue, queuedGrant{amount: amount, reason: reason})
	if b.state == BatchIdle {
		b.state = BatchPending
	}

	if b.cfg.MaxPending > 0 && len(b.queue) >= b.cfg.MaxPending {
		b.stopTimerLocked()
		go b.flushAsync()
		return nil
	}
	if b.state == BatchPending {
		b.armLocked()
	}
	return nil
}

// Flush writes everything queued now and waits for it.
func (b *Batcher) Flush(ctx context.Context) error {
	b.flushMu.Lock()
	defer b.flushMu.Unlock()

	b.mu.Lock()
	b.stopTimerLocked()
	batch := b.queue
	b.queue = nil
	if len(batch) == 0 {
		if b.state != BatchFlushing {
			b.state = BatchIdle
		}
		b.mu.Unlock()
		return nil
	}
	b.state = BatchFlushing
	b.mu.Unlock()

	amount, reason := combine(batch, b.reasonMax)
	err := b.flush(ctx, amount, reason)

	b.mu.Lock()
	if len(b.queue) > 0 {
		b.state = BatchPending
		if !b.closed {
			b.armLocked()
		}
	} else {
		b.state = BatchIdle
	}
	b.mu.Unlock()
	return err
}

// Close flushes synchronously and rejects further grants.
func (b *Batcher) Close(ctx context.Context) error {
	b.mu.Lock()
	b.closed = true
	b.stopTimerLocked()
	b.mu.Unlock()
	return b.Flush(ctx)
}

func (b *Batcher) flushAsync() {
	if err := b.Flush(context.Background()); err != nil {
		b.onError(err)
	}
}

func (b *Batcher) armLocked() {
	if b.timer != nil {
		b.timer.Stop()
	}
	b.timer = time.AfterFunc(b.cfg.Debounce, b.flushAsync)
}

func (b *Batcher) stopTimerLocked() {
	if b.timer != nil {
		b.timer.Stop()
		b.timer = nil
	}
}

// combine sums the batch and joins distinct reasons, bounded to maxLen runes.
func combine(batch []queuedGrant, maxLen int) (int64, string) {
	var total int64
	var reasons []string
	seen := make(map[string]bool)
	for _, g := range batch {
		total += g.amount
		if !seen[g.reason] {
			seen[g.reason] = true
			reasons = append(reasons, g.reason)
		}
	}

	reason := reasons[0]
	if len(reasons) > 1 {
		reason = fmt.Sprintf("Batched %d grants: %s", len(batch), strings.Join(reasons, ", "))
	}
	if maxLen > 3 && utf8.RuneCountInString(reason) > maxLen {
		r := []rune(reason)
		reason = string(r[:maxLen-3]) + "..."
	}
	return total, reason
}
