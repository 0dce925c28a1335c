package engagement

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/vibe-dev/academy/internal/domain"
	"github.com/vibe-dev/academy/internal/infra/logging"
	"github.com/vibe-dev/academy/internal/infra/metrics"
)

// DispatchConfig bounds the notification queue.
type DispatchConfig struct {
	MinSpacing time.Duration // minimum gap between deliveries
	QueueSize  int           // overflow drops the oldest event
}

// DefaultDispatchConfig returns the stock pacing.
func DefaultDispatchConfig() DispatchConfig {
	return DispatchConfig{MinSpacing: 1500 * time.Millisecond, QueueSize: 64}
}

// Listener receives delivered events on the dispatcher goroutine.
type Listener func(domain.Event)

// Dispatcher fans presentation events out to listeners, one at a time and
// at most one per MinSpacing. Notify* calls never block; when the queue is
// full the oldest event is dropped.
type Dispatcher struct {
	cfg DispatchConfig
	log *zap.Logger
	now Clock

	mu        sync.Mutex
	queue     []domain.Event
	listeners map[int]Listener
	nextID    int
	closed    bool

	wake chan struct{}
	done chan struct{}
	exit chan struct{}
}

var _ domain.Notifier = (*Dispatcher)(nil)

// NewDispatcher starts a dispatcher. Close stops it.
func NewDispatcher(cfg DispatchConfig, log *zap.Logger) *Dispatcher {
	if cfg.QueueSize < 1 {
		cfg.QueueSize = 1
	}
	d := &Dispatcher{
		cfg:       cfg,
		log:       logging.OrNop(log),
		now:       time.Now,
		listeners: make(map[int]Listener),
		wake:      make(chan struct{}, 1),
		done:      make(chan struct{}),
		exit:      make(chan struct{}),
	}
	go d.loop()
	return d
}

// Subscribe registers fn and returns a func that removes it.
func (d *Dispatcher) Subscribe(fn Listener) (unsubscribe func()) {
	d.mu.Lock()
	id := d.nextID
	d.nextID++
	d.listeners[id] = fn
	d.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			d.mu.Lock()
			delete(d.listeners, id)
			d.mu.Unlock()
		})
	}
}

// NotifyXPGain queues an XP event.
func (d *Dispatcher) NotifyXPGain(uid string, amount int64, reason string) {
	d.push(domain.Event{Kind: domain.EventXPGained, UserID: uid, Amount: amount, Reason: reason})
}

// NotifyLevelUp queues a level-up event.
func (d *Dispatcher) NotifyLevelUp(uid string, level domain.LevelInfo) {
	d.push(domain.Event{Kind: domain.EventLevelUp, UserID: uid, Level: &level})
}

// NotifyAchievementUnlock queues an unlock event.
func (d *Dispatcher) NotifyAchievementUnlock(uid string, a domain.Achievement) {
	d.push(domain.Event{Kind: domain.EventAchievementUnlocked, UserID: uid, Achievement: &a})
}

// NotifyStreakUpdate queues a streak event.
func (d *Dispatcher) NotifyStreakUpdate(uid string, streak int) {
	d.push(domain.Event{Kind: domain.EventStreakUpdated, UserID: uid, Streak: streak})
}

// Pending returns the number of queued, undelivered events.
func (d *Dispatcher) Pending() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.queue)
}

// Close stops delivery. Queued events are discarded.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	d.queue = nil
	d.mu.Unlock()

	close(d.done)
	<-d.exit
}

func (d *Dispatcher) push(ev domain.Event) {
	ev.At = d.now().UTC()

	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	if len(d.queue) >= d.cfg.QueueSize {
		d.queue = d.queue[1:]
		metrics.NotificationsDropped.Inc()
	}
	d.queue = append(d.queue, ev)
	d.mu.Unlock()

	select {
	case d.wake <- struct{}{}:
	default:
	}
}

func (d *Dispatcher) pop() (domain.Event, []Listener, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.queue) == 0 {
		return domain.Event{}, nil, false
	}
	ev := d.queue[0]
	d.queue = d.queue[1:]
	ls := make([]Listener, 0, len(d.listeners))
	for _, l := range d.listeners {
		ls = append(ls, l)
	}
	return ev, ls, true
}

func (d *Dispatcher) loop() {
	defer close(d.exit)
	for {
		ev, ls, ok := d.pop()
		if !ok {
			select {
			case <-d.wake:
				continue
			case <-d.done:
				return
			}
		}

		for _, l := range ls {
			d.deliver(l, ev)
		}
		metrics.NotificationsDelivered.WithLabelValues(string(ev.Kind)).Inc()

		if d.cfg.MinSpacing > 0 {
			t := time.NewTimer(d.cfg.MinSpacing)
			select {
			case <-t.C:
			case <-d.done:
				t.Stop()
				return
			}
		}
	}
}

func (d *Dispatcher) deliver(l Listener, ev domain.Event) {
	defer func() {
		if r := recover(); r != nil {
			d.log.Error("notification listener panicked", zap.String("kind", string(ev.Kind)), zap.Any("panic", r))
		}
	}()
	l(ev)
}
