// Package util contains internal helpers (bucket hashing, padding).
//revive:disable:var-naming  // allow 'util' as an internal helpers package name
package util

// ConnHash folds a connection key into a load-spreading hash:
// the IPv4 address's high and low 16-bit halves are added together,
// then the port and the connection type tag. Callers reduce the result
// modulo their bucket count.
//
// The fold is not collision resistant; it only has to spread peers of one
// cluster over the buckets. The result never exceeds 3*0xFFFF+0xFF, so it
// fits comfortably in 32 bits.
func ConnHash(ip uint32, port uint16, typ uint8) uint32 {
	h := ip >> 16
	h += ip & 0xFFFF
	h += uint32(port)
	h += uint32(typ)
	return h
}

// BucketIndex maps a connection key to a bucket in [0, buckets).
// buckets must be positive.
func BucketIndex(ip uint32, port uint16, typ uint8, buckets int) int {
	if buckets <= 1 {
		return 0
	}
	return int(ConnHash(ip, port, typ) % uint32(buckets))
}
