package countdown

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

// Countdown strategy: the server sends the time budget with setup and the
// client counts down once per second for display. Reaching zero only fires
// the expiry callback; the server's gameOver is what ends a game.

// TickFunc receives the remaining seconds after every decrement.
type TickFunc func(remaining int)

// Timer is a once-per-second countdown driven by a clockwork.Clock.
type Timer struct {
	clock    clockwork.Clock
	onTick   TickFunc
	onExpire func()

	mu        sync.Mutex
	remaining int
	started   bool

	stopCh   chan struct{}
	stopOnce sync.Once
	done     chan struct{}
}

// New creates a stopped timer starting at seconds. Either callback may be nil.
func New(clock clockwork.Clock, seconds int, onTick TickFunc, onExpire func()) *Timer {
	if seconds < 0 {
		seconds = 0
	}
	return &Timer{
		clock:     clock,
		onTick:    onTick,
		onExpire:  onExpire,
		remaining: seconds,
		stopCh:    make(chan struct{}),
		done:      make(chan struct{}),
	}
}

// Start begins ticking. Calling Start more than once, or after Stop, does nothing.
func (t *Timer) Start() {
	t.mu.Lock()
	defer t.mu.Unlock()

	select {
	case <-t.stopCh:
		return
	default:
	}
	if t.started {
		return
	}
	t.started = true

	if t.remaining == 0 {
		close(t.done)
		return
	}

	ticker := t.clock.NewTicker(time.Second)
	go t.run(ticker)
}

// Stop cancels the countdown. It is safe to call any number of times, from
// any goroutine, including from inside the callbacks.
func (t *Timer) Stop() {
	t.stopOnce.Do(func() {
		close(t.stopCh)
		log.Debug().Int("remaining", t.Remaining()).Msg("countdown stopped")
	})
}

// Remaining returns the seconds left on the countdown.
func (t *Timer) Remaining() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.remaining
}

// Done is closed once the ticking goroutine has exited, or immediately for
// a zero-length countdown.
func (t *Timer) Done() <-chan struct{} {
	return t.done
}

func (t *Timer) run(ticker clockwork.Ticker) {
	defer func() {
		ticker.Stop()
		close(t.done)
	}()

	for {
		select {
		case <-t.stopCh:
			return
		case <-ticker.Chan():
			// A stop racing with a tick wins.
			select {
			case <-t.stopCh:
				return
			default:
			}

			t.mu.Lock()
			t.remaining--
			remaining := t.remaining
			t.mu.Unlock()

			if t.onTick != nil {
				t.onTick(remaining)
			}
			if remaining <= 0 {
				log.Debug().Msg("countdown reached zero")
				if t.onExpire != nil {
					t.onExpire()
				}
				return
			}
		}
	}
}
