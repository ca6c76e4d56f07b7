// Package resilience provides the request quota window used to respect an
// upstream rate limit with a fixed cooldown.
package resilience

import (
	"sync"
	"time"
)

// DefaultCooldown is one hour plus a second of slack.
const DefaultCooldown = time.Hour + time.Second

// DefaultQuota is the number of requests allowed per window.
const DefaultQuota = 5000

// SleepFunc blocks for d. time.Sleep is the production implementation; it is
// deliberately not cancellable.
type SleepFunc func(d time.Duration)

// WindowOpts configures a quota window.
type WindowOpts struct {
	// Quota is how many requests fit in one window.
	Quota int
	// Cooldown is how long to pause once the quota is used up.
	Cooldown time.Duration
}

// Window counts requests against a quota and pauses for a cooldown once the
// quota is reached.
type Window struct {
	mu        sync.Mutex
	opts      WindowOpts
	count     int
	cooldowns int
	sleep     SleepFunc
}

// NewWindow creates a quota window. Unset quota and cooldown take the
// defaults. A nil sleep uses time.Sleep.
func NewWindow(opts WindowOpts, sleep SleepFunc) *Window {
	if opts.Quota <= 0 {
		opts.Quota = DefaultQuota
	}
	if opts.Cooldown <= 0 {
		opts.Cooldown = DefaultCooldown
	}
	if sleep == nil {
		sleep = time.Sleep
	}
	return &Window{opts: opts, sleep: sleep}
}

// Record counts one request and reports whether the quota is now used up.
func (w *Window) Record() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.count++
	return w.count >= w.opts.Quota
}

// Cooldown blocks for the configured cooldown and starts a fresh window.
func (w *Window) Cooldown() {
	w.sleep(w.opts.Cooldown)
	w.mu.Lock()
	w.count = 0
	w.cooldowns++
	w.mu.Unlock()
}

// Reset starts a fresh window without sleeping.
func (w *Window) Reset() {
	w.mu.Lock()
	w.count = 0
	w.mu.Unlock()
}

// Count returns the requests recorded in the current window.
func (w *Window) Count() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.count
}

// Cooldowns returns how many cooldowns have been served.
func (w *Window) Cooldowns() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.cooldowns
}

// Opts returns the effective options.
func (w *Window) Opts() WindowOpts { return w.opts }
