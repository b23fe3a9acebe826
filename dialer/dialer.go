// Package dialer reuses idle RPC connections through a cache.Cache: Dial
// returns a cached connection to the peer when one is available and dials a
// new one otherwise; Release hands a healthy connection back for reuse.
package dialer

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/netip"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/IvanBrykalov/conncache/cache"
)

// Connection types cached separately for the same peer.
const (
	TypeUDP cache.ConnType = iota
	TypeTCP
)

// DefaultDialTimeout bounds every dial made by the default DialFunc. A context
// deadline also applies; whichever comes first ends the dial.
const DefaultDialTimeout = 5 * time.Second

// ErrUnknownType is returned for a connection type with no network.
var ErrUnknownType = errors.New("dialer: unknown connection type")

// DialFunc matches (*net.Dialer).DialContext.
type DialFunc func(ctx context.Context, network, address string) (net.Conn, error)

// Options configures a Dialer.
type Options struct {
	// Capacity and KeepAlive size the underlying cache (see cache.Options).
	Capacity  int
	KeepAlive time.Duration

	// Dial opens new connections; nil => net.Dialer with DefaultDialTimeout.
	Dial DialFunc

	Metrics cache.Metrics
	Logger  logrus.FieldLogger
}

// Conn is a connection obtained from a Dialer. It remembers the key it is
// cached under.
type Conn struct {
	net.Conn
	key cache.Key
}

// Key returns the cache key of the connection.
func (c *Conn) Key() cache.Key { return c.key }

// Dialer is safe for concurrent use.
type Dialer struct {
	store cache.Store[*Conn]
	dial  DialFunc
	log   logrus.FieldLogger
}

// New builds a Dialer and its connection cache. Connections the cache gives
// up on are closed.
func New(opt Options) (*Dialer, error) {
	if opt.Logger == nil {
		opt.Logger = logrus.StandardLogger()
	}
	d := &Dialer{
		dial: opt.Dial,
		log:  opt.Logger.WithField("component", "dialer"),
	}
	if d.dial == nil {
		d.dial = (&net.Dialer{Timeout: DefaultDialTimeout}).DialContext
	}

	c, err := cache.Open(cache.Options[*Conn]{
		Capacity:  opt.Capacity,
		KeepAlive: opt.KeepAlive,
		Release:   d.closeIdle,
		Metrics:   opt.Metrics,
		Logger:    opt.Logger,
	})
	if err != nil {
		return nil, fmt.Errorf("dialer: open cache: %w", err)
	}
	d.store = c
	return d, nil
}

// Dial returns an idle cached connection to addr of type t, or dials one.
func (d *Dialer) Dial(ctx context.Context, addr netip.AddrPort, t cache.ConnType) (*Conn, error) {
	network, err := networkOf(t)
	if err != nil {
		return nil, err
	}
	k, err := cache.NewKey(addr, t)
	if err != nil {
		return nil, err
	}
	if c, ok := d.store.Get(k); ok {
		return c, nil
	}

	nc, err := d.dial(ctx, network, addr.String())
	if err != nil {
		return nil, fmt.Errorf("dialer: dial %s %s: %w", network, addr, err)
	}
	d.log.WithFields(logrus.Fields{
		"network": network,
		"peer":    addr.String(),
	}).Debug("new connection")
	return &Conn{Conn: nc, key: k}, nil
}

// Release hands c back for reuse. c must not be used afterwards. If the
// cache cannot take it, c is closed.
func (d *Dialer) Release(c *Conn) error {
	if c == nil {
		return nil
	}
	err := d.store.Put(c.key, c)
	if err == nil {
		return nil
	}
	d.log.WithError(err).WithField("conn", c.key.String()).Debug("connection not cached, closing")
	return c.Conn.Close()
}

// Discard closes a connection that must not be reused (e.g. after an I/O error).
func (d *Dialer) Discard(c *Conn) error {
	if c == nil {
		return nil
	}
	return c.Conn.Close()
}

// Idle returns the advisory number of cached idle connections.
func (d *Dialer) Idle() int { return d.store.Len() }

// Close closes every idle connection and stops the cache's sweeper.
// Connections currently handed out are not affected.
func (d *Dialer) Close() error { return d.store.Close() }

func (d *Dialer) closeIdle(c *Conn) {
	if err := c.Conn.Close(); err != nil {
		d.log.WithError(err).WithField("conn", c.key.String()).Debug("closing idle connection")
	}
}

func networkOf(t cache.ConnType) (string, error) {
	switch t {
	case TypeUDP:
		return "udp", nil
	case TypeTCP:
		return "tcp", nil
	default:
		return "", fmt.Errorf("%w: %d", ErrUnknownType, t)
	}
}
