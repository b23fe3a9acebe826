package cache

import (
	"fmt"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/IvanBrykalov/conncache/internal/slab"
	"github.com/IvanBrykalov/conncache/internal/util"
)

// Cache holds idle connections (or any reusable payload V) keyed by peer
// address and connection type, so a sender can reuse them instead of
// reconnecting. It is lossy: anything cached may be released at any time
// once it has sat idle for KeepAlive.
//
// All methods are safe for concurrent use by multiple goroutines. Operations
// on different buckets never wait for each other.
type Cache[V any] struct {
	buckets []bucket[V]
	pool    *slab.Pool[entry[V]]
	keep    int64 // KeepAlive in clock units (ns)

	opt Options[V]
	log logrus.FieldLogger

	closed atomic.Bool

	// sweepMu serializes sweeps against each other and against Close.
	sweepMu sync.Mutex
	timer   Stopper // guarded by sweepMu

	// ---- advisory counters (not read for correctness) ----
	_       util.CacheLinePad
	total   util.PaddedAtomicInt64
	hits    util.PaddedAtomicUint64
	misses  util.PaddedAtomicUint64
	evicts  util.PaddedAtomicUint64
	rejects util.PaddedAtomicUint64
}

// Stats is a snapshot of the advisory counters.
type Stats struct {
	Entries   int
	Hits      uint64
	Misses    uint64
	Evictions uint64
	Rejects   uint64
}

// Open constructs a cache with Capacity buckets and Capacity entry slots and
// arms the background sweep (every 2*KeepAlive).
// Defaults:
//   - nil Timer   -> time.AfterFunc
//   - nil Clock   -> monotonic clock started at Open
//   - nil Metrics -> NoopMetrics
//   - nil Logger  -> logrus.StandardLogger()
func Open[V any](opt Options[V]) (*Cache[V], error) {
	if opt.Capacity <= 0 || opt.Capacity > math.MaxInt32 {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidCapacity, opt.Capacity)
	}
	// The sweep period is 2*KeepAlive and must not overflow.
	if opt.KeepAlive <= 0 || opt.KeepAlive > math.MaxInt64/2 {
		return nil, fmt.Errorf("%w: got %v", ErrInvalidKeepAlive, opt.KeepAlive)
	}
	if opt.Release == nil {
		return nil, ErrNilRelease
	}
	if opt.Timer == nil {
		opt.Timer = stdTimer{}
	}
	if opt.Clock == nil {
		opt.Clock = monoClock{start: time.Now()}
	}
	if opt.Metrics == nil {
		opt.Metrics = NoopMetrics{}
	}
	if opt.Logger == nil {
		opt.Logger = logrus.StandardLogger()
	}

	pool, err := slab.New[entry[V]](opt.Capacity)
	if err != nil {
		return nil, fmt.Errorf("cache: allocate entry pool: %w", err)
	}
	buckets := make([]bucket[V], opt.Capacity)
	for i := range buckets {
		buckets[i].head = slab.Nil
	}

	c := &Cache[V]{
		buckets: buckets,
		pool:    pool,
		keep:    int64(opt.KeepAlive),
		opt:     opt,
		log:     opt.Logger.WithField("component", "conncache"),
	}

	c.sweepMu.Lock()
	c.timer = opt.Timer.AfterFunc(c.sweepPeriod(), c.onTimer)
	c.sweepMu.Unlock()

	c.log.WithFields(logrus.Fields{
		"capacity":  opt.Capacity,
		"keepalive": opt.KeepAlive,
	}).Debug("connection cache opened")
	return c, nil
}

// Put caches v under k. On success ownership of v passes to the cache until
// Get returns it or it expires and is handed to Options.Release.
//
// Put fails with ErrPoolExhausted (wrapped in *OpError) when all entry slots
// are in use, and with ErrClosed after Close; v then still belongs to the
// caller.
func (c *Cache[V]) Put(k Key, v V) error {
	if any(v) == nil {
		return &OpError{Op: "put", Key: k, Err: ErrNilPayload}
	}
	if c.closed.Load() {
		return &OpError{Op: "put", Key: k, Err: ErrClosed}
	}

	i, ok := c.pool.Alloc()
	if !ok {
		c.rejects.Add(1)
		c.opt.Metrics.Reject()
		c.log.WithFields(logrus.Fields{
			"conn":     k.String(),
			"capacity": c.pool.Cap(),
		}).Warn("entry pool exhausted, connection not cached")
		return &OpError{Op: "put", Key: k, Err: ErrPoolExhausted}
	}

	h := c.index(k)
	b := &c.buckets[h]

	id := b.mu.Lock()
	if c.closed.Load() {
		b.mu.Unlock(id)
		c.pool.Free(i)
		return &OpError{Op: "put", Key: k, Err: ErrClosed}
	}
	// Stamp under the lock so timestamps never increase head to tail.
	now := c.now()
	e := c.pool.At(i)
	e.key, e.val, e.ts = k, v, now
	b.pushFront(c.pool, i)
	stale := b.trimFrom(c.pool, e.next, now, c.keep, nil)
	n := b.n
	b.mu.Unlock(id)

	total := c.total.Add(1 - int64(len(stale)))
	if c.tracing() {
		c.log.WithFields(logrus.Fields{
			"conn":        k.String(),
			"bucket":      h,
			"connections": n,
		}).Trace("connection added into cache")
	}

	c.release(stale, EvictExpired, h)
	c.opt.Metrics.Size(int(total))
	return nil
}

// Get removes and returns a live payload cached under k.
//
// The bucket is walked from its newest entry. Meeting an expired entry ends
// the lookup with a miss: that entry and everything older in the bucket are
// released, even if a match for k sat further down. On a hit, any expired
// entries directly behind the match are released too.
func (c *Cache[V]) Get(k Key) (V, bool) {
	var zero V
	if c.closed.Load() {
		c.miss()
		return zero, false
	}

	h := c.index(k)
	b := &c.buckets[h]

	var (
		v     V
		found bool
		stale []V
	)
	id := b.mu.Lock()
	now := c.now()
	hit, old := b.lookup(c.pool, k, now, c.keep)
	switch {
	case old != slab.Nil:
		stale = b.cut(c.pool, old, nil)
	case hit != slab.Nil:
		stale = b.trimFrom(c.pool, c.pool.At(hit).next, now, c.keep, nil)
		v, found = c.pool.At(hit).val, true
		b.unlink(c.pool, hit)
		c.pool.Free(hit)
	}
	n := b.n
	b.mu.Unlock(id)

	removed := int64(len(stale))
	if found {
		removed++
	}
	total := c.total.Add(-removed)
	c.release(stale, EvictExpired, h)
	if removed > 0 {
		c.opt.Metrics.Size(int(total))
	}

	if !found {
		c.miss()
		return zero, false
	}
	c.hits.Add(1)
	c.opt.Metrics.Hit()
	if c.tracing() {
		c.log.WithFields(logrus.Fields{
			"conn":        k.String(),
			"bucket":      h,
			"connections": n,
		}).Trace("connection retrieved from cache")
	}
	return v, true
}

// Sweep releases every expired payload, one bucket at a time, and returns how
// many it released. Only one bucket is locked at any moment. The background
// timer sweeps every 2*KeepAlive; Sweep may also be called directly. It is
// serialized with Close and with the background sweep, and does nothing once
// Close has started.
func (c *Cache[V]) Sweep() int {
	c.sweepMu.Lock()
	defer c.sweepMu.Unlock()

	if c.closed.Load() {
		return 0
	}
	return c.sweep()
}

// sweep does the work of Sweep. Caller holds sweepMu.
func (c *Cache[V]) sweep() int {
	removed := 0
	var stale []V
	for h := range c.buckets {
		b := &c.buckets[h]
		id := b.mu.Lock()
		now := c.now()
		stale = b.cut(c.pool, b.firstExpired(c.pool, now, c.keep), stale[:0])
		b.mu.Unlock(id)

		if len(stale) == 0 {
			continue
		}
		removed += len(stale)
		c.total.Add(-int64(len(stale)))
		c.release(stale, EvictSweep, h)
		clear(stale)
	}

	if removed > 0 {
		c.opt.Metrics.Size(c.Len())
	}
	c.log.WithFields(logrus.Fields{
		"removed":     removed,
		"connections": c.Len(),
	}).Debug("cache swept")
	return removed
}

// onTimer is the timer callback: sweep, then re-arm. It does nothing once
// Close has started, so no sweep touches the buckets after Close returns.
func (c *Cache[V]) onTimer() {
	c.sweepMu.Lock()
	defer c.sweepMu.Unlock()

	if c.closed.Load() {
		return
	}
	c.sweep()
	c.timer = c.opt.Timer.AfterFunc(c.sweepPeriod(), c.onTimer)
}

// Close stops the background sweep, waiting for a sweep in progress to
// finish, then releases every cached payload with reason EvictClose.
// Close on a nil or already closed cache is a no-op.
func (c *Cache[V]) Close() error {
	if c == nil || !c.closed.CompareAndSwap(false, true) {
		return nil
	}

	c.sweepMu.Lock()
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	c.sweepMu.Unlock()

	drained := 0
	var stale []V
	for h := range c.buckets {
		b := &c.buckets[h]
		id := b.mu.Lock()
		stale = b.cut(c.pool, b.head, stale[:0])
		b.mu.Unlock(id)

		if len(stale) == 0 {
			continue
		}
		drained += len(stale)
		c.total.Add(-int64(len(stale)))
		c.release(stale, EvictClose, h)
		clear(stale)
	}

	c.opt.Metrics.Size(0)
	c.log.WithField("released", drained).Debug("connection cache closed")
	return nil
}

// Len returns the advisory number of cached payloads. Under concurrent use it
// may briefly disagree with the buckets; it converges once operations finish.
func (c *Cache[V]) Len() int { return int(c.total.Load()) }

// Cap returns the number of buckets, which is also the number of entry slots.
func (c *Cache[V]) Cap() int { return len(c.buckets) }

// Stats returns a snapshot of the advisory counters.
func (c *Cache[V]) Stats() Stats {
	return Stats{
		Entries:   c.Len(),
		Hits:      c.hits.Load(),
		Misses:    c.misses.Load(),
		Evictions: c.evicts.Load(),
		Rejects:   c.rejects.Load(),
	}
}

// ---- helpers ----

// index picks the bucket for k.
func (c *Cache[V]) index(k Key) int {
	return util.BucketIndex(k.IP, k.Port, uint8(k.Type), len(c.buckets))
}

func (c *Cache[V]) now() int64 { return c.opt.Clock.NowUnixNano() }

func (c *Cache[V]) sweepPeriod() time.Duration { return 2 * c.opt.KeepAlive }

func (c *Cache[V]) miss() {
	c.misses.Add(1)
	c.opt.Metrics.Miss()
}

// release hands payloads removed from bucket h to Options.Release.
// Must be called without any bucket lock held.
func (c *Cache[V]) release(vs []V, reason EvictReason, h int) {
	trace := c.tracing()
	for _, v := range vs {
		c.evicts.Add(1)
		c.opt.Metrics.Evict(reason)
		if trace {
			c.log.WithFields(logrus.Fields{
				"bucket": h,
				"reason": reason.String(),
			}).Trace("connection removed from cache")
		}
		c.opt.Release(v)
	}
}

// tracing reports whether Trace entries would be emitted, so the hot paths
// skip building fields otherwise. Unknown FieldLogger implementations are
// assumed to want everything.
func (c *Cache[V]) tracing() bool {
	switch l := c.opt.Logger.(type) {
	case *logrus.Logger:
		return l.IsLevelEnabled(logrus.TraceLevel)
	case *logrus.Entry:
		return l.Logger.IsLevelEnabled(logrus.TraceLevel)
	}
	return true
}
