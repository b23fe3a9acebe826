package prom

import (
	"io"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/sirupsen/logrus"

	"github.com/IvanBrykalov/conncache/cache"
)

type stepClock struct{ t int64 }

func (c *stepClock) NowUnixNano() int64 { return c.t }

type idleTimer struct{}

func (idleTimer) AfterFunc(time.Duration, func()) cache.Stopper { return stopped{} }

type stopped struct{}

func (stopped) Stop() bool { return true }

func TestAdapter_CountsCacheTraffic(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	m := New(reg, "conncache", "test", prometheus.Labels{"app": "t"})

	log := logrus.New()
	log.SetOutput(io.Discard)
	clk := &stepClock{}
	c, err := cache.Open(cache.Options[string]{
		Capacity:  1,
		KeepAlive: time.Second,
		Release:   func(string) {},
		Timer:     idleTimer{},
		Clock:     clk,
		Metrics:   m,
		Logger:    log,
	})
	if err != nil {
		t.Fatal(err)
	}

	k := cache.Key{IP: 0x0A000001, Port: 80}
	_ = c.Put(k, "a")
	_ = c.Put(k, "b") // pool full
	c.Get(k)          // hit
	c.Get(k)          // miss
	_ = c.Put(k, "c")

	clk.t = int64(2 * time.Second)
	c.Get(cache.Key{IP: 0x0A000001}) // meets expired "c": miss
	_ = c.Put(k, "d")
	_ = c.Close() // drains "d"

	if got := testutil.ToFloat64(m.hits); got != 1 {
		t.Fatalf("hits = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.misses); got != 2 {
		t.Fatalf("misses = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.rejects); got != 1 {
		t.Fatalf("rejects = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.evicts.WithLabelValues("expired")); got != 1 {
		t.Fatalf("expired evictions = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.evicts.WithLabelValues("close")); got != 1 {
		t.Fatalf("close evictions = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.size); got != 0 {
		t.Fatalf("size after close = %v, want 0", got)
	}
	if n := testutil.CollectAndCount(reg); n != 6 {
		t.Fatalf("collected %d series, want 6", n)
	}
}
