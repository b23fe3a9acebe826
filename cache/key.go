package cache

import (
	"encoding/binary"
	"fmt"
	"net/netip"
)

// ConnType tags the kind of connection cached under a key (e.g. TCP vs UDP).
type ConnType uint8

// Key identifies interchangeable connections: same peer, same kind.
type Key struct {
	IP   uint32 // IPv4 address, big-endian as on the wire
	Port uint16
	Type ConnType
}

// NewKey builds a Key from an IPv4 (or IPv4-mapped IPv6) address and port.
func NewKey(ap netip.AddrPort, t ConnType) (Key, error) {
	a := ap.Addr().Unmap()
	if !a.Is4() {
		return Key{}, fmt.Errorf("cache: %s is not an IPv4 address", ap.Addr())
	}
	b := a.As4()
	return Key{IP: binary.BigEndian.Uint32(b[:]), Port: ap.Port(), Type: t}, nil
}

// AddrPort converts the key back to an address/port pair.
func (k Key) AddrPort() netip.AddrPort {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], k.IP)
	return netip.AddrPortFrom(netip.AddrFrom4(b), k.Port)
}

// String formats the key as ip:port:type with the IP in hex.
func (k Key) String() string {
	return fmt.Sprintf("0x%08x:%d:%d", k.IP, k.Port, k.Type)
}
