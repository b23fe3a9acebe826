// Package cache provides a bucketed, in-process cache of idle connections
// for an RPC sender. A connection is handed to Put after use and taken back
// with Get for the same (peer IP, port, connection type) key, saving a
// reconnect. Idle connections older than the keep-alive window are handed to
// a caller-supplied Release function instead.
//
// Design
//
//   - Buckets: the table has Capacity buckets, fixed at Open. The bucket for a
//     key is (ip>>16 + ip&0xFFFF + port + type) % Capacity. Collisions chain.
//
//   - Locking: every bucket has its own spin lock. Put, Get and each bucket's
//     slice of a sweep hold only that bucket's lock, so operations on
//     different buckets run fully in parallel. No lock covers the whole table.
//
//   - Storage: entries live in a fixed slab of Capacity slots shared by all
//     buckets and are linked by slot index, newest first. Put fails with
//     ErrPoolExhausted when every slot is taken.
//
//   - Expiry: newest-first order means expired entries form a tail. Put trims
//     the tail behind the new entry, Get drops the whole tail from the first
//     expired entry it meets (ending the lookup as a miss), and a background
//     sweep every 2*KeepAlive trims each bucket from its first expired entry.
//
//   - Release: removed payloads are collected under the bucket lock and
//     passed to Options.Release after the lock is dropped. Release runs on
//     whichever goroutine triggered the removal.
//
//   - Close: waits for a running sweep, cancels the timer, then releases
//     everything still cached. No sweep runs after Close returns.
//
//   - Counters: Len and Stats are advisory. They may lag the buckets while
//     operations are in flight and converge once they finish.
//
// Basic usage
//
//	c, err := cache.Open(cache.Options[net.Conn]{
//	    Capacity:  1024,
//	    KeepAlive: 30 * time.Second,
//	    Release:   func(c net.Conn) { _ = c.Close() },
//	})
//	if err != nil {
//	    return err
//	}
//	defer c.Close()
//
//	k, _ := cache.NewKey(netip.MustParseAddrPort("10.0.0.1:6030"), 0)
//	if conn, ok := c.Get(k); ok {
//	    _ = conn // reuse
//	}
//	_ = c.Put(k, conn) // after the request, hand it back
package cache
