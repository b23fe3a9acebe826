// Package spin implements a compare-and-swap spin lock whose lock word
// records the identity of the current holder.
package spin

import (
	"fmt"
	"runtime"
	"sync/atomic"
)

// yieldEvery is the number of failed CAS attempts between scheduler yields.
const yieldEvery = 100

// Owner identifies one acquisition of a Lock. The zero Owner means unlocked.
type Owner uint64

// owners hands out process-wide unique, non-zero identities.
var owners atomic.Uint64

func nextOwner() Owner { return Owner(owners.Add(1)) }

// Lock is a busy-wait mutual exclusion primitive for short critical sections.
// It is not fair: a goroutine may starve under heavy contention.
//
// The zero value is an unlocked Lock. A Lock must not be copied after first use.
type Lock struct {
	owner atomic.Uint64
}

// Lock spins until the lock is acquired and returns the identity that must be
// passed to Unlock. Every yieldEvery failed attempts it yields the processor.
func (l *Lock) Lock() Owner {
	id := nextOwner()
	for i := 1; !l.owner.CompareAndSwap(0, uint64(id)); i++ {
		if i%yieldEvery == 0 {
			runtime.Gosched()
		}
	}
	return id
}

// TryLock makes a single attempt to acquire the lock.
func (l *Lock) TryLock() (Owner, bool) {
	id := nextOwner()
	if l.owner.CompareAndSwap(0, uint64(id)) {
		return id, true
	}
	return 0, false
}

// Unlock releases the lock held by id. Finding any other owner in the lock
// word means a double release or corrupted state; Unlock panics.
func (l *Lock) Unlock(id Owner) {
	if !l.owner.CompareAndSwap(uint64(id), 0) {
		panic(fmt.Sprintf("spin: unlock by %d, lock held by %d", id, l.owner.Load()))
	}
}

// Locked reports whether the lock is currently held. Diagnostics only.
func (l *Lock) Locked() bool { return l.owner.Load() != 0 }
