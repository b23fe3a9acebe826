package cache

import (
	"github.com/IvanBrykalov/conncache/internal/slab"
	"github.com/IvanBrykalov/conncache/internal/spin"
	"github.com/IvanBrykalov/conncache/internal/util"
)

// bucket is one independently locked partition of the keyspace: a doubly
// linked list of slab slots, most recently inserted first.
//
// Every method below must be called with mu held. Methods that unlink
// entries free their slots back to the pool and append the released payloads
// to the caller's slice; the payloads are handed to Options.Release only
// after mu is dropped.
type bucket[V any] struct {
	// ---- guarded by mu ----
	mu   spin.Lock
	head int32 // slab.Nil when empty
	n    int   // number of linked entries

	_ util.CacheLinePad
}

// expired reports whether an entry stamped at ts is past keep at now.
// Written as a difference so a large keep cannot overflow.
func expired(ts, now, keep int64) bool { return now-ts >= keep }

// pushFront links slot i as the new head in O(1).
func (b *bucket[V]) pushFront(p *slab.Pool[entry[V]], i int32) {
	e := p.At(i)
	e.prev = slab.Nil
	e.next = b.head
	if b.head != slab.Nil {
		p.At(b.head).prev = i
	}
	b.head = i
	b.n++
}

// unlink detaches slot i in O(1). The slot is not freed.
func (b *bucket[V]) unlink(p *slab.Pool[entry[V]], i int32) {
	e := p.At(i)
	if e.prev != slab.Nil {
		p.At(e.prev).next = e.next
	} else {
		b.head = e.next
	}
	if e.next != slab.Nil {
		p.At(e.next).prev = e.prev
	}
	e.prev, e.next = slab.Nil, slab.Nil
	b.n--
}

// cut removes slot i and every entry after it, freeing their slots and
// appending their payloads to out in list order.
func (b *bucket[V]) cut(p *slab.Pool[entry[V]], i int32, out []V) []V {
	if i == slab.Nil {
		return out
	}
	if prev := p.At(i).prev; prev != slab.Nil {
		p.At(prev).next = slab.Nil
	} else {
		b.head = slab.Nil
	}
	for i != slab.Nil {
		e := p.At(i)
		next := e.next
		out = append(out, e.val)
		p.Free(i)
		b.n--
		i = next
	}
	return out
}

// trimFrom cuts the list at slot i if that entry has expired. Entries after
// an expired one are older, so the whole tail goes with it.
func (b *bucket[V]) trimFrom(p *slab.Pool[entry[V]], i int32, now, keep int64, out []V) []V {
	if i == slab.Nil || !expired(p.At(i).ts, now, keep) {
		return out
	}
	return b.cut(p, i, out)
}

// firstExpired walks from the head to the first expired entry.
func (b *bucket[V]) firstExpired(p *slab.Pool[entry[V]], now, keep int64) int32 {
	for i := b.head; i != slab.Nil; i = p.At(i).next {
		if expired(p.At(i).ts, now, keep) {
			return i
		}
	}
	return slab.Nil
}

// lookup walks from the head until it meets either an entry for k or the
// first expired entry, whichever comes first. At most one result is set.
func (b *bucket[V]) lookup(p *slab.Pool[entry[V]], k Key, now, keep int64) (hit, stale int32) {
	for i := b.head; i != slab.Nil; i = p.At(i).next {
		e := p.At(i)
		if expired(e.ts, now, keep) {
			return slab.Nil, i
		}
		if e.key == k {
			return i, slab.Nil
		}
	}
	return slab.Nil, slab.Nil
}

// length counts the linked entries by walking the list. Tests use it to
// check n.
func (b *bucket[V]) length(p *slab.Pool[entry[V]]) int {
	n := 0
	for i := b.head; i != slab.Nil; i = p.At(i).next {
		n++
	}
	return n
}
