// Package clock provides a secure clock using NTS.
//
// The latest NTS reading lives in a lockbox.RWMutex: the poller replaces it
// under a write guard, and any number of callers of Now read it concurrently.
package clock

import (
	"context"
	"errors"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/newgrp/lockbox"
	"github.com/newgrp/lockbox/lockstats"
	"github.com/newgrp/lockbox/sema"
)

// How old NTS measurements are allowed to be.
const defaultStaleThreshold = 6 * time.Hour

var ErrStale = errors.New("NTS time is too stale")

type (
	readingCell  = lockbox.RWMutex[clockReading, lockbox.TimedRWLocker]
	readingGuard = lockbox.Guard[clockReading]
)

type Options struct {
	// NTS servers to try, in order.
	Servers []string
	// Connects to a server. Defaults to DialNTS.
	Dial Dialer
	// Defaults to the standard logrus logger.
	Logger logrus.FieldLogger
	// If set, the reading cell's lock reports to these metrics as "clock".
	Metrics *lockstats.Metrics

	PollPeriod     time.Duration
	RetryPeriod    time.Duration
	StaleThreshold time.Duration
}

// NTS-backed secure clock.
type SecureClock struct {
	cell           *readingCell
	staleThreshold time.Duration
}

// Constructs a new secure clock using the given NTS servers.
//
// The first reading is taken before New returns. After that, the clock polls in
// the background until ctx is done.
func New(ctx context.Context, opts Options) (*SecureClock, error) {
	if opts.Dial == nil {
		opts.Dial = DialNTS
	}
	if opts.Logger == nil {
		opts.Logger = logrus.StandardLogger()
	}
	if opts.PollPeriod <= 0 {
		opts.PollPeriod = defaultPollPeriod
	}
	if opts.RetryPeriod <= 0 {
		opts.RetryPeriod = defaultRetryPeriod
	}
	if opts.StaleThreshold <= 0 {
		opts.StaleThreshold = defaultStaleThreshold
	}

	var lock lockbox.TimedRWLocker = sema.NewRWMutex()
	if opts.Metrics != nil {
		lock = opts.Metrics.RWMutex("clock", lock)
	}

	p := &ntsPoller{
		addrs:       opts.Servers,
		dial:        opts.Dial,
		log:         opts.Logger.WithField("component", "clock"),
		pollPeriod:  opts.PollPeriod,
		retryPeriod: opts.RetryPeriod,
	}

	src, err := p.connect()
	if err != nil {
		return nil, err
	}
	initial, err := readTime(src)
	if err != nil {
		return nil, err
	}
	p.source = src
	p.cell = lockbox.NewRWMutexWith(lock, initial)

	go p.PollLoop(ctx)

	return &SecureClock{cell: p.cell, staleThreshold: opts.StaleThreshold}, nil
}

// Returns a secure estimate of the current time.
//
// Now computes the current time as the last time obtained from the NTS server,
// plus the difference in monotonic clock readings between when Now is called
// and when the NTS response was obtained. When uncertainty arises, Now prefers
// to err on the side of underestimating the current time.
func (c *SecureClock) Now() (time.Time, error) {
	g := c.cell.RLock()
	last := g.Get()
	g.Unlock()

	// time.Since uses the system monotic clock, rather than the realtime clock,
	// so we are not significantly exposed to NTP attacks on the system clock.
	delta := time.Since(last.system)
	if delta >= c.staleThreshold {
		return time.Time{}, ErrStale
	}
	return last.nts.Add(delta), nil
}
