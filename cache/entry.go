package cache

// entry is one cached payload, stored in a slab slot and linked into exactly
// one bucket by slot index. Only the goroutine holding that bucket's lock may
// read or write it.
type entry[V any] struct {
	key Key
	val V

	// Insertion time from Options.Clock. Set once in Put, never refreshed.
	ts int64

	// Bucket list links (slab indices, slab.Nil at the ends).
	// Head is the most recently inserted entry.
	prev int32
	next int32
}
