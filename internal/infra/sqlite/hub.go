package sqlite

import (
	"context"
	"sync"

	"github.com/vibe-dev/academy/internal/domain"
)

// hub fans profile snapshots out to change subscribers.
// Slow subscribers only ever see the latest snapshot.
type hub struct {
	mu     sync.Mutex
	subs   map[string]map[chan domain.UserProfile]struct{}
	closed bool
}

func newHub() *hub {
	return &hub{subs: make(map[string]map[chan domain.UserProfile]struct{})}
}

func (h *hub) add(ctx context.Context, uid string) chan domain.UserProfile {
	ch := make(chan domain.UserProfile, 1)

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		close(ch)
		return ch
	}
	if h.subs[uid] == nil {
		h.subs[uid] = make(map[chan domain.UserProfile]struct{})
	}
	h.subs[uid][ch] = struct{}{}
	h.mu.Unlock()

	go func() {
		<-ctx.Done()
		h.remove(uid, ch)
	}()
	return ch
}

func (h *hub) remove(uid string, ch chan domain.UserProfile) {
	h.mu.Lock()
	defer h.mu.Unlock()
	set, ok := h.subs[uid]
	if !ok {
		return
	}
	if _, ok := set[ch]; !ok {
		return
	}
	delete(set, ch)
	if len(set) == 0 {
		delete(h.subs, uid)
	}
	close(ch)
}

func (h *hub) has(uid string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs[uid]) > 0
}

func (h *hub) publish(p domain.UserProfile) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.subs[p.UID] {
		// Replace a stale pending snapshot rather than block.
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- p:
		default:
		}
	}
}

func (h *hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for uid, set := range h.subs {
		for ch := range set {
			close(ch)
		}
		delete(h.subs, uid)
	}
}
