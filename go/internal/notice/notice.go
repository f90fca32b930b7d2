package notice

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

// DefaultDelay is how long a message stays up when no delay is configured.
const DefaultDelay = 5 * time.Second

// Board displays at most one transient message that clears itself after a
// fixed delay. Showing a new message replaces the old one and restarts the
// delay.
type Board struct {
	clock clockwork.Clock
	delay time.Duration

	mu      sync.Mutex
	message string
	timer   clockwork.Timer
	seq     uint64

	// OnChange, if set, is called with the new message (empty on clear).
	OnChange func(message string)
}

// NewBoard creates a board that clears messages after delay.
func NewBoard(clock clockwork.Clock, delay time.Duration) *Board {
	if delay <= 0 {
		delay = DefaultDelay
	}
	return &Board{clock: clock, delay: delay}
}

// Show displays message until the delay elapses or another message replaces it.
func (b *Board) Show(message string) {
	b.mu.Lock()
	if b.timer != nil {
		b.timer.Stop()
	}
	b.seq++
	seq := b.seq
	b.message = message
	b.timer = b.clock.AfterFunc(b.delay, func() { b.expire(seq) })
	onChange := b.OnChange
	b.mu.Unlock()

	log.Debug().Str("message", message).Dur("delay", b.delay).Msg("notice shown")
	if onChange != nil {
		onChange(message)
	}
}

// Current returns the message on display, if any.
func (b *Board) Current() (string, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.message, b.message != ""
}

// Clear removes the current message immediately.
func (b *Board) Clear() {
	b.mu.Lock()
	if b.timer != nil {
		b.timer.Stop()
		b.timer = nil
	}
	b.seq++
	had := b.message != ""
	b.message = ""
	onChange := b.OnChange
	b.mu.Unlock()

	if had && onChange != nil {
		onChange("")
	}
}

func (b *Board) expire(seq uint64) {
	b.mu.Lock()
	if seq != b.seq {
		// Replaced or cleared since this timer was armed.
		b.mu.Unlock()
		return
	}
	b.message = ""
	b.timer = nil
	onChange := b.OnChange
	b.mu.Unlock()

	if onChange != nil {
		onChange("")
	}
}
