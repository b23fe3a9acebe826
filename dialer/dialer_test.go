package dialer

import (
	"context"
	"errors"
	"io"
	"net"
	"net/netip"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// listen starts a TCP server that holds accepted connections open until the
// test ends.
func listen(t *testing.T) netip.AddrPort {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	go func() {
		for {
			c, err := ln.Accept()
			if err != nil {
				return
			}
			go func() {
				_, _ = io.Copy(io.Discard, c)
				_ = c.Close()
			}()
		}
	}()
	t.Cleanup(func() { _ = ln.Close() })
	return netip.MustParseAddrPort(ln.Addr().String())
}

func newDialer(t *testing.T, capacity int, dials *atomic.Int64) *Dialer {
	t.Helper()
	log := logrus.New()
	log.SetOutput(io.Discard)
	nd := &net.Dialer{Timeout: time.Second}
	d, err := New(Options{
		Capacity:  capacity,
		KeepAlive: time.Minute,
		Logger:    log,
		Dial: func(ctx context.Context, network, address string) (net.Conn, error) {
			dials.Add(1)
			return nd.DialContext(ctx, network, address)
		},
	})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = d.Close() })
	return d
}

func TestDialer_ReusesReleasedConn(t *testing.T) {
	t.Parallel()

	addr := listen(t)
	var dials atomic.Int64
	d := newDialer(t, 16, &dials)
	ctx := context.Background()

	c1, err := d.Dial(ctx, addr, TypeTCP)
	if err != nil {
		t.Fatal(err)
	}
	if err := d.Release(c1); err != nil {
		t.Fatal(err)
	}
	if d.Idle() != 1 {
		t.Fatalf("Idle = %d, want 1", d.Idle())
	}

	c2, err := d.Dial(ctx, addr, TypeTCP)
	if err != nil {
		t.Fatal(err)
	}
	if c2 != c1 {
		t.Fatal("released connection must be reused")
	}
	if dials.Load() != 1 {
		t.Fatalf("dialed %d times, want 1", dials.Load())
	}
	if _, err := c2.Write([]byte("ping")); err != nil {
		t.Fatalf("reused connection unusable: %v", err)
	}
	_ = d.Discard(c2)
}

// TCP and UDP connections to the same peer are cached separately.
func TestDialer_TypesAreSeparate(t *testing.T) {
	t.Parallel()

	addr := listen(t)
	var dials atomic.Int64
	d := newDialer(t, 16, &dials)
	ctx := context.Background()

	tcp, err := d.Dial(ctx, addr, TypeTCP)
	if err != nil {
		t.Fatal(err)
	}
	_ = d.Release(tcp)

	udp, err := d.Dial(ctx, addr, TypeUDP)
	if err != nil {
		t.Fatal(err)
	}
	if udp == tcp || udp.Key().Type != TypeUDP {
		t.Fatal("UDP dial must not reuse a TCP connection")
	}
	if udp.RemoteAddr().Network() != "udp" {
		t.Fatalf("network = %s", udp.RemoteAddr().Network())
	}
	_ = d.Discard(udp)
}

// When the cache is full the released connection is closed, not leaked.
func TestDialer_ReleaseWhenFullCloses(t *testing.T) {
	t.Parallel()

	addr := listen(t)
	var dials atomic.Int64
	d := newDialer(t, 1, &dials)
	ctx := context.Background()

	a, err := d.Dial(ctx, addr, TypeTCP)
	if err != nil {
		t.Fatal(err)
	}
	b, err := d.Dial(ctx, addr, TypeTCP)
	if err != nil {
		t.Fatal(err)
	}
	_ = d.Release(a)
	if err := d.Release(b); err != nil {
		t.Fatalf("Release of overflow connection: %v", err)
	}
	if _, err := b.Read(make([]byte, 1)); !errors.Is(err, net.ErrClosed) {
		t.Fatalf("overflow connection must be closed, read err %v", err)
	}
}

func TestDialer_CloseClosesIdle(t *testing.T) {
	t.Parallel()

	addr := listen(t)
	var dials atomic.Int64
	d := newDialer(t, 4, &dials)

	c, err := d.Dial(context.Background(), addr, TypeTCP)
	if err != nil {
		t.Fatal(err)
	}
	_ = d.Release(c)
	if err := d.Close(); err != nil {
		t.Fatal(err)
	}
	if _, err := c.Read(make([]byte, 1)); !errors.Is(err, net.ErrClosed) {
		t.Fatalf("idle connection must be closed by Close, read err %v", err)
	}
}

func TestDialer_Errors(t *testing.T) {
	t.Parallel()

	var dials atomic.Int64
	d := newDialer(t, 4, &dials)
	ctx := context.Background()

	if _, err := d.Dial(ctx, netip.MustParseAddrPort("127.0.0.1:1"), 9); !errors.Is(err, ErrUnknownType) {
		t.Fatalf("want ErrUnknownType, got %v", err)
	}
	if _, err := d.Dial(ctx, netip.MustParseAddrPort("[::1]:80"), TypeTCP); err == nil {
		t.Fatal("IPv6 peers are not cacheable")
	}
	if dials.Load() != 0 {
		t.Fatal("no dial may happen for invalid input")
	}

	if _, err := New(Options{KeepAlive: time.Second}); err == nil {
		t.Fatal("zero capacity must fail")
	}
}

// Concurrent senders never hold more connections than there are senders.
func TestDialer_ConcurrentSenders(t *testing.T) {
	addr := listen(t)
	var dials atomic.Int64
	d := newDialer(t, 64, &dials)

	const senders = 8
	g, ctx := errgroup.WithContext(context.Background())
	for w := 0; w < senders; w++ {
		g.Go(func() error {
			for i := 0; i < 50; i++ {
				c, err := d.Dial(ctx, addr, TypeTCP)
				if err != nil {
					return err
				}
				if _, err := c.Write([]byte("x")); err != nil {
					return err
				}
				if err := d.Release(c); err != nil {
					return err
				}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		t.Fatal(err)
	}
	if n := dials.Load(); n > senders {
		t.Fatalf("dialed %d connections for %d senders", n, senders)
	}
	if d.Idle() != int(dials.Load()) {
		t.Fatalf("Idle = %d, dialed %d", d.Idle(), dials.Load())
	}
}
