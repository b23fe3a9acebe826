package cache

// Store is the connection-reuse contract consumed by senders such as
// package dialer. *Cache satisfies it.
// All methods are safe for concurrent use by multiple goroutines.
type Store[V any] interface {
	// Put hands v over to the cache under k. On success the caller must not
	// use v again unless Get returns it. On error v still belongs to the caller.
	Put(k Key, v V) error

	// Get removes and returns a live payload cached under k.
	// ok is false on a miss; a miss is not an error.
	Get(k Key) (v V, ok bool)

	// Len returns the advisory number of cached payloads.
	Len() int

	// Close stops the background sweep and releases every cached payload.
	Close() error
}

var _ Store[any] = (*Cache[any])(nil)
