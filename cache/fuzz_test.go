//go:build go1.18

package cache

import (
	"net/netip"
	"testing"
	"time"
)

// Fuzz key conversion and Put/Get round trips over arbitrary keys.
func FuzzCache_PutGet(f *testing.F) {
	f.Add(uint32(0), uint16(0), uint8(0))
	f.Add(uint32(0x0A000001), uint16(80), uint8(0))
	f.Add(uint32(0xFFFFFFFF), uint16(0xFFFF), uint8(0xFF))
	f.Add(uint32(0x7F000001), uint16(6030), uint8(1))

	f.Fuzz(func(t *testing.T, ip uint32, port uint16, typ uint8) {
		k := Key{IP: ip, Port: port, Type: ConnType(typ)}

		k2, err := NewKey(k.AddrPort(), k.Type)
		if err != nil || k2 != k {
			t.Fatalf("key round trip: %v -> %v (%v)", k, k2, err)
		}
		if ap := k.AddrPort(); ap.Addr() != netip.AddrFrom4(ap.Addr().As4()) {
			t.Fatalf("AddrPort must be IPv4: %v", ap)
		}

		c, err := Open(Options[string]{
			Capacity:  7,
			KeepAlive: time.Hour,
			Release:   func(string) { t.Fatal("nothing may expire") },
			Timer:     &manualTimer{},
		})
		if err != nil {
			t.Fatal(err)
		}
		defer func() {
			c.opt.Release = func(string) {}
			_ = c.Close()
		}()

		if idx := c.index(k); idx < 0 || idx >= c.Cap() {
			t.Fatalf("bucket %d out of range", idx)
		}
		if err := c.Put(k, "v"); err != nil {
			t.Fatal(err)
		}
		if v, ok := c.Get(k); !ok || v != "v" {
			t.Fatalf("want v, got %q ok=%v", v, ok)
		}
		if _, ok := c.Get(k); ok {
			t.Fatal("second Get must miss")
		}
	})
}
