package chat

import (
	"sync"
	"time"
)

// TypingConfig holds the typing indicator timings.
type TypingConfig struct {
	// Throttle is the minimum gap between two typing signals.
	Throttle time.Duration
	// Idle is the quiet period after which stopped is signalled.
	Idle time.Duration
	// Backstop bounds how long a typing signal stays outstanding while the
	// user keeps typing.
	Backstop time.Duration
}

// DefaultTypingConfig is 500ms throttle, 1s idle and 3s backstop.
var DefaultTypingConfig = TypingConfig{
	Throttle: 500 * time.Millisecond,
	Idle:     time.Second,
	Backstop: 3 * time.Second,
}

// Typist turns input changes into throttled typing and debounced stopped
// signals. emit is called outside the typist lock.
type Typist struct {
	cfg   TypingConfig
	clock Clock
	emit  func(typing bool)

	mu          sync.Mutex
	closed      bool
	outstanding bool
	lastSent    time.Time
	idle        Timer
	backstop    Timer
	idleGen     uint64
	burstGen    uint64
}

// NewTypist creates a typist. Zero timings fall back to DefaultTypingConfig.
func NewTypist(cfg TypingConfig, clock Clock, emit func(typing bool)) *Typist {
	if cfg.Throttle <= 0 {
		cfg.Throttle = DefaultTypingConfig.Throttle
	}
	if cfg.Idle <= 0 {
		cfg.Idle = DefaultTypingConfig.Idle
	}
	if cfg.Backstop <= 0 {
		cfg.Backstop = DefaultTypingConfig.Backstop
	}
	if clock == nil {
		clock = SystemClock{}
	}
	return &Typist{cfg: cfg, clock: clock, emit: emit}
}

// Input records the current content of the input box.
func (t *Typist) Input(text string) {
	if text == "" {
		t.Stop()
		return
	}

	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return
	}
	now := t.clock.Now()
	send := t.lastSent.IsZero() || now.Sub(t.lastSent) >= t.cfg.Throttle
	if send {
		t.outstanding = true
		t.lastSent = now
	}

	t.idleGen++
	idleGen, burstGen := t.idleGen, t.burstGen
	if t.idle != nil {
		t.idle.Stop()
	}
	t.idle = t.clock.AfterFunc(t.cfg.Idle, func() {
		t.expire(func() bool { return t.idleGen == idleGen })
	})
	if t.backstop == nil {
		t.backstop = t.clock.AfterFunc(t.cfg.Backstop, func() {
			t.expire(func() bool { return t.burstGen == burstGen })
		})
	}
	t.mu.Unlock()

	if send {
		t.emit(true)
	}
}

// Stop cancels both timers and signals stopped if a typing signal is
// outstanding. Blur and a successful send call it.
func (t *Typist) Stop() {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return
	}
	send := t.reset()
	t.mu.Unlock()

	if send {
		t.emit(false)
	}
}

// Close cancels the timers. Later calls and late timer callbacks do nothing.
func (t *Typist) Close() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.reset()
	t.closed = true
}

// Outstanding reports whether a typing signal has not yet been followed by
// stopped.
func (t *Typist) Outstanding() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.outstanding
}

// expire runs a timer callback. current reports, under the lock, whether the
// timer still belongs to the live burst.
func (t *Typist) expire(current func() bool) {
	t.mu.Lock()
	if t.closed || !current() {
		t.mu.Unlock()
		return
	}
	send := t.reset()
	t.mu.Unlock()

	if send {
		t.emit(false)
	}
}

// reset stops the timers and reports whether stopped must be signalled.
// Callers hold the lock.
func (t *Typist) reset() bool {
	if t.idle != nil {
		t.idle.Stop()
		t.idle = nil
	}
	if t.backstop != nil {
		t.backstop.Stop()
		t.backstop = nil
	}
	t.idleGen++
	t.burstGen++
	was := t.outstanding
	t.outstanding = false
	return was
}
