// Package lockstats instruments lockbox lockers with Prometheus metrics.
//
// The wrappers are themselves lockers, so they slot in wherever a cell takes a
// lock:
//
//	metrics := lockstats.NewMetrics(prometheus.DefaultRegisterer)
//	cell := lockbox.NewMutexWith(metrics.Mutex("counter", sema.NewMutex()), 0)
package lockstats

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/newgrp/lockbox"
)

// Lock modes, used as the "mode" label.
const (
	ModeRead  = "read"
	ModeWrite = "write"
)

// Acquisition outcomes, used as the "result" label.
const (
	// Acquired without waiting.
	ResultAcquired = "acquired"
	// Acquired after waiting for another holder.
	ResultWaited = "waited"
	// A non-blocking attempt found the lock taken.
	ResultBusy = "busy"
	// A bounded wait gave up.
	ResultTimeout = "timeout"
)

// Metrics holds the collectors shared by every instrumented lock.
type Metrics struct {
	acquisitions *prometheus.CounterVec
	wait         *prometheus.HistogramVec
	held         *prometheus.GaugeVec
}

// Constructs the lock metrics and registers them with reg. Registering twice
// with the same registerer panics, as with any Prometheus collector.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		acquisitions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "lockbox",
				Subsystem: "lock",
				Name:      "acquisitions_total",
				Help:      "Lock acquisition attempts by lock, mode and result",
			},
			[]string{"lock", "mode", "result"},
		),
		wait: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "lockbox",
				Subsystem: "lock",
				Name:      "wait_seconds",
				Help:      "Time spent waiting for a lock that was eventually acquired",
				Buckets:   prometheus.ExponentialBuckets(1e-6, 4, 12),
			},
			[]string{"lock", "mode"},
		),
		held: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "lockbox",
				Subsystem: "lock",
				Name:      "held",
				Help:      "Number of holders currently inside the lock",
			},
			[]string{"lock", "mode"},
		),
	}
	reg.MustRegister(m.acquisitions, m.wait, m.held)
	return m
}

// Returns a new exclusive lock that reports to m under the given name.
func (m *Metrics) Mutex(name string, inner lockbox.TimedLocker) *Mutex {
	return &Mutex{inner: inner, write: m.mode(name, ModeWrite)}
}

// Returns a new reader/writer lock that reports to m under the given name.
func (m *Metrics) RWMutex(name string, inner lockbox.TimedRWLocker) *RWMutex {
	return &RWMutex{
		inner: inner,
		read:  m.mode(name, ModeRead),
		write: m.mode(name, ModeWrite),
	}
}

func (m *Metrics) mode(name, mode string) *recorder {
	return &recorder{
		acquired: m.acquisitions.WithLabelValues(name, mode, ResultAcquired),
		waited:   m.acquisitions.WithLabelValues(name, mode, ResultWaited),
		busy:     m.acquisitions.WithLabelValues(name, mode, ResultBusy),
		timeout:  m.acquisitions.WithLabelValues(name, mode, ResultTimeout),
		wait:     m.wait.WithLabelValues(name, mode),
		held:     m.held.WithLabelValues(name, mode),
	}
}

// Pre-resolved collectors for one lock in one mode.
type recorder struct {
	acquired prometheus.Counter
	waited   prometheus.Counter
	busy     prometheus.Counter
	timeout  prometheus.Counter
	wait     prometheus.Observer
	held     prometheus.Gauge
}

// Acquires through tryLock, falling back to lock if that fails.
func (r *recorder) lock(tryLock func() bool, lock func()) {
	if tryLock() {
		r.acquired.Inc()
		r.held.Inc()
		return
	}

	start := time.Now()
	lock()
	r.wait.Observe(time.Since(start).Seconds())
	r.waited.Inc()
	r.held.Inc()
}

func (r *recorder) tryLock(tryLock func() bool) bool {
	if !tryLock() {
		r.busy.Inc()
		return false
	}
	r.acquired.Inc()
	r.held.Inc()
	return true
}

// A context that is already done is passed straight through, so the wrapper
// never acquires a lock the inner locker would have refused.
func (r *recorder) lockContext(ctx context.Context, tryLock func() bool, lockContext func(context.Context) error) error {
	if ctx.Err() == nil && tryLock() {
		r.acquired.Inc()
		r.held.Inc()
		return nil
	}

	start := time.Now()
	if err := lockContext(ctx); err != nil {
		r.timeout.Inc()
		return err
	}
	r.wait.Observe(time.Since(start).Seconds())
	r.waited.Inc()
	r.held.Inc()
	return nil
}

func (r *recorder) unlock(unlock func()) {
	r.held.Dec()
	unlock()
}

// An instrumented exclusive lock.
type Mutex struct {
	inner lockbox.TimedLocker
	write *recorder
}

var _ lockbox.TimedLocker = (*Mutex)(nil)

func (m *Mutex) Lock() {
	m.write.lock(m.inner.TryLock, m.inner.Lock)
}

func (m *Mutex) TryLock() bool {
	return m.write.tryLock(m.inner.TryLock)
}

func (m *Mutex) LockContext(ctx context.Context) error {
	return m.write.lockContext(ctx, m.inner.TryLock, m.inner.LockContext)
}

func (m *Mutex) Unlock() {
	m.write.unlock(m.inner.Unlock)
}

// An instrumented reader/writer lock.
type RWMutex struct {
	inner lockbox.TimedRWLocker
	read  *recorder
	write *recorder
}

var _ lockbox.TimedRWLocker = (*RWMutex)(nil)

func (rw *RWMutex) Lock() {
	rw.write.lock(rw.inner.TryLock, rw.inner.Lock)
}

func (rw *RWMutex) TryLock() bool {
	return rw.write.tryLock(rw.inner.TryLock)
}

func (rw *RWMutex) LockContext(ctx context.Context) error {
	return rw.write.lockContext(ctx, rw.inner.TryLock, rw.inner.LockContext)
}

func (rw *RWMutex) Unlock() {
	rw.write.unlock(rw.inner.Unlock)
}

func (rw *RWMutex) RLock() {
	rw.read.lock(rw.inner.TryRLock, rw.inner.RLock)
}

func (rw *RWMutex) TryRLock() bool {
	return rw.read.tryLock(rw.inner.TryRLock)
}

func (rw *RWMutex) RLockContext(ctx context.Context) error {
	return rw.read.lockContext(ctx, rw.inner.TryRLock, rw.inner.RLockContext)
}

func (rw *RWMutex) RUnlock() {
	rw.read.unlock(rw.inner.RUnlock)
}
