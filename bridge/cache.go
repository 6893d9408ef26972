package bridge

import (
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

const (
	DefaultPollInterval = 100 * time.Millisecond
	DefaultPollAttempts = 10
)

// State is what the cache currently knows about the host bridge.
type State int

const (
	NotChecked State = iota
	Absent
	Present
)

func (s State) String() string {
	switch s {
	case NotChecked:
		return "not_checked"
	case Absent:
		return "absent"
	case Present:
		return "present"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// Cache memoizes the bridge handle. A found handle is kept for the life of the
// cache; an absent lookup is recorded but probed again on the next Get.
type Cache struct {
	mu       sync.Mutex
	probe    Probe
	handle   Handle
	state    State
	interval time.Duration
	attempts int
}

type Option func(*Cache)

// WithPollInterval sets the delay between OnReady lookups.
func WithPollInterval(d time.Duration) Option {
	return func(c *Cache) {
		if d > 0 {
			c.interval = d
		}
	}
}

// WithPollAttempts sets how many lookups OnReady makes before giving up.
func WithPollAttempts(n int) Option {
	return func(c *Cache) {
		if n > 0 {
			c.attempts = n
		}
	}
}

// NewCache creates a cache that resolves handles through probe. probe may be nil.
func NewCache(probe Probe, options ...Option) *Cache {
	c := &Cache{
		probe:    probe,
		interval: DefaultPollInterval,
		attempts: DefaultPollAttempts,
	}
	for _, option := range options {
		option(c)
	}
	return c
}

// Get returns the cached handle, probing the environment when none is cached yet.
func (c *Cache) Get() Handle {
	c.mu.Lock()
	if c.state == Present {
		defer c.mu.Unlock()
		return c.handle
	}
	c.mu.Unlock()

	// A browser probe can take seconds, so it runs outside the lock.
	h, ok := c.lookup()
	return c.publish(h, ok)
}

// publish records a lookup result unless another caller found a handle first,
// and returns the handle the cache now holds.
func (c *Cache) publish(h Handle, ok bool) Handle {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == Present {
		return c.handle
	}
	if ok {
		c.handle, c.state = h, Present
		log.Debug().Strs("capabilities", Capabilities(h)).Msg("Host bridge detected")
		return h
	}
	c.state = Absent
	return nil
}

// Set overrides the cached handle. Passing nil marks the bridge absent.
func (c *Cache) Set(h Handle) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handle = h
	if h == nil {
		c.state = Absent
		return
	}
	c.state = Present
}

// State reports what the last lookup found.
func (c *Cache) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// OnReady calls callback exactly once, after the host reports readiness.
//
// With a cached handle the callback is handed to its ready hook (or called
// directly when there is none, or when the hook fails). Without one, the
// environment is polled every interval up to the configured attempts in a
// background goroutine; the callback runs even when no bridge ever shows up.
func (c *Cache) OnReady(callback func()) {
	done := sync.OnceFunc(callback)

	c.mu.Lock()
	h := c.handle
	c.mu.Unlock()

	if h != nil {
		dispatch(h, done)
		return
	}
	go c.poll(done)
}

func (c *Cache) poll(done func()) {
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for attempt := 1; attempt <= c.attempts; attempt++ {
		<-ticker.C
		if h := c.publishFound(c.lookup()); h != nil {
			log.Debug().Int("attempt", attempt).Msg("Host bridge appeared while waiting for readiness")
			dispatch(h, done)
			return
		}
	}

	c.mu.Lock()
	if c.state != Present {
		c.state = Absent
	}
	c.mu.Unlock()

	log.Debug().Int("attempts", c.attempts).Msg("No host bridge found, continuing without it")
	done()
}

// publishFound is publish for the polling loop: a miss leaves the state alone
// until the last attempt.
func (c *Cache) publishFound(h Handle, ok bool) Handle {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == Present {
		return c.handle
	}
	if ok {
		c.handle, c.state = h, Present
		return h
	}
	return nil
}

// lookup runs the probe. It must be called without c.mu held.
func (c *Cache) lookup() (h Handle, ok bool) {
	if c.probe == nil {
		return nil, false
	}
	defer func() {
		if r := recover(); r != nil {
			log.Warn().Interface("panic", r).Msg("Host bridge probe panicked")
			h, ok = nil, false
		}
	}()
	h, ok = c.probe.Lookup()
	if h == nil {
		ok = false
	}
	return h, ok
}

// dispatch hands done to the ready hook of h, falling back to calling it directly.
func dispatch(h Handle, done func()) {
	r, ok := h.(Readier)
	if !ok {
		done()
		return
	}
	defer func() {
		if rec := recover(); rec != nil {
			log.Warn().Interface("panic", rec).Msg("Host bridge ready hook panicked")
			done()
		}
	}()
	if err := r.Ready(done); err != nil {
		log.Warn().Err(err).Msg("Host bridge ready hook failed")
		done()
	}
}
