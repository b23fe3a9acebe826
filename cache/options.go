package cache

import (
	"time"

	"github.com/sirupsen/logrus"
)

// EvictReason explains why a cached payload was handed to Options.Release.
type EvictReason int

const (
	// EvictExpired: expired tail trimmed on the Put/Get path.
	EvictExpired EvictReason = iota
	// EvictSweep: removed by the periodic background sweep.
	EvictSweep
	// EvictClose: still cached when the cache was closed.
	EvictClose
)

func (r EvictReason) String() string {
	switch r {
	case EvictExpired:
		return "expired"
	case EvictSweep:
		return "sweep"
	case EvictClose:
		return "close"
	default:
		return "unknown"
	}
}

// Metrics exposes cache-level observability hooks.
// A NoopMetrics implementation is provided and used by default.
type Metrics interface {
	Hit()
	Miss()
	Evict(reason EvictReason)
	// Reject is signalled when Put fails because every entry slot is in use.
	Reject()
	Size(entries int)
}

// Clock provides time in nanoseconds; useful for deterministic tests.
// Readings must not go backwards.
type Clock interface{ NowUnixNano() int64 }

// Stopper cancels a pending timer callback.
// Stop reports whether the call prevented the callback from running.
type Stopper interface{ Stop() bool }

// Timer schedules one-shot callbacks. The cache arms it once at Open and
// re-arms it at the end of every sweep. *time.Timer satisfies Stopper.
type Timer interface {
	AfterFunc(d time.Duration, f func()) Stopper
}

// Options configures the cache. Zero values are safe for the optional
// fields; defaults are applied in Open():
//   - nil Timer   => time.AfterFunc
//   - nil Clock   => monotonic time elapsed since Open
//   - nil Metrics => NoopMetrics
//   - nil Logger  => logrus.StandardLogger()
type Options[V any] struct {
	// Capacity is both the number of buckets and the number of entry slots.
	Capacity int

	// KeepAlive is how long an idle payload may stay cached, at most
	// math.MaxInt64/2. The background sweep runs every 2*KeepAlive.
	KeepAlive time.Duration

	// Release disposes of a payload the cache gives up on (expired or
	// drained at Close). It runs without any bucket lock held, possibly on
	// the sweeper goroutine, and is called at most once per payload. It may
	// call Put or Get but must not call Sweep or Close.
	Release func(v V)

	Timer   Timer
	Clock   Clock
	Metrics Metrics
	Logger  logrus.FieldLogger
}

// stdTimer schedules with the runtime timer.
type stdTimer struct{}

func (stdTimer) AfterFunc(d time.Duration, f func()) Stopper { return time.AfterFunc(d, f) }

// monoClock measures elapsed monotonic time from a fixed start.
type monoClock struct{ start time.Time }

func (c monoClock) NowUnixNano() int64 { return int64(time.Since(c.start)) }
