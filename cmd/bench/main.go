// Command bench runs a synthetic RPC-sender workload against the connection
// cache and exposes optional pprof/Prometheus endpoints.
package main

import (
	"context"
	"flag"
	"fmt"
	"math/rand"
	"net/http"
	_ "net/http/pprof" // registers /debug/pprof/* on DefaultServeMux
	"runtime"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/IvanBrykalov/conncache/cache"
	pmet "github.com/IvanBrykalov/conncache/metrics/prom"
)

// fakeConn stands in for a network connection.
type fakeConn struct {
	id     uint64
	closed atomic.Bool
}

func main() {
	// ---- Flags ----
	var (
		capacity  = flag.Int("cap", 4096, "buckets / entry slots")
		keepAlive = flag.Duration("keepalive", 500*time.Millisecond, "idle keep-alive")

		workers  = flag.Int("workers", 2*runtime.GOMAXPROCS(0), "number of sender goroutines")
		duration = flag.Duration("duration", 10*time.Second, "benchmark duration")
		peers    = flag.Int("peers", 256, "number of distinct peers")
		hold     = flag.Duration("hold", 0, "time a sender keeps a connection per request")
		seed     = flag.Int64("seed", time.Now().UnixNano(), "random seed")

		pprofAddr   = flag.String("pprof", "", "serve pprof at addr (e.g. :6060); empty = disabled")
		metricsAddr = flag.String("http", ":8080", "serve Prometheus metrics at addr")
		level       = flag.String("log", "info", "log level (trace|debug|info|warn|error)")
	)
	flag.Parse()

	log := logrus.New()
	lvl, err := logrus.ParseLevel(*level)
	if err != nil {
		log.WithError(err).Fatal("bad -log")
	}
	log.SetLevel(lvl)

	// ---- pprof server (on DefaultServeMux) ----
	if *pprofAddr != "" {
		go func() {
			log.Infof("pprof: serving at %s", *pprofAddr)
			log.Warn(http.ListenAndServe(*pprofAddr, nil))
		}()
	}

	// ---- Prometheus metrics (on DefaultServeMux) ----
	metrics := pmet.New(nil, "conncache", "bench", nil)
	http.Handle("/metrics", promhttp.Handler())
	go func() {
		log.Infof("metrics: serving at %s", *metricsAddr)
		log.Warn(http.ListenAndServe(*metricsAddr, nil))
	}()

	// ---- Build cache ----
	var dialed, closed atomic.Uint64
	c, err := cache.Open(cache.Options[*fakeConn]{
		Capacity:  *capacity,
		KeepAlive: *keepAlive,
		Release: func(fc *fakeConn) {
			if !fc.closed.CompareAndSwap(false, true) {
				log.WithField("conn", fc.id).Fatal("connection released twice")
			}
			closed.Add(1)
		},
		Metrics: metrics,
		Logger:  log,
	})
	if err != nil {
		log.WithError(err).Fatal("open cache")
	}

	workersN := *workers
	if workersN <= 0 {
		workersN = 1
	}
	peersN := *peers
	if peersN <= 0 {
		peersN = 1
	}

	// ---- Load generation ----
	var reqs, hits, rejects uint64
	ctx, cancel := context.WithTimeout(context.Background(), *duration)
	defer cancel()

	start := time.Now()
	g, ctx := errgroup.WithContext(ctx)
	for w := 0; w < workersN; w++ {
		w := w
		g.Go(func() error {
			// rand.Rand is NOT goroutine-safe: one per worker.
			r := rand.New(rand.NewSource(*seed + int64(w)*9973))
			for ctx.Err() == nil {
				k := cache.Key{
					IP:   0x0A000000 | uint32(r.Intn(peersN)),
					Port: 6030,
					Type: cache.ConnType(r.Intn(2)),
				}
				atomic.AddUint64(&reqs, 1)
				fc, ok := c.Get(k)
				if ok {
					atomic.AddUint64(&hits, 1)
				} else {
					fc = &fakeConn{id: dialed.Add(1)}
				}
				if *hold > 0 {
					time.Sleep(*hold)
				}
				if err := c.Put(k, fc); err != nil {
					atomic.AddUint64(&rejects, 1)
					fc.closed.Store(true)
					closed.Add(1)
				}
			}
			return nil
		})
	}
	_ = g.Wait()
	elapsed := time.Since(start)

	// ---- Report ----
	idle := c.Len()
	_ = c.Close()

	reqsN := atomic.LoadUint64(&reqs)
	hitsN := atomic.LoadUint64(&hits)
	hitRate := 0.0
	if reqsN > 0 {
		hitRate = float64(hitsN) / float64(reqsN) * 100
	}

	fmt.Printf("cap=%d keepalive=%v workers=%d peers=%d dur=%v seed=%d\n",
		*capacity, *keepAlive, workersN, peersN, elapsed, *seed)
	fmt.Printf("requests=%d (%.0f req/s)  hits=%d  hit-rate=%.2f%%  rejects=%d\n",
		reqsN, float64(reqsN)/elapsed.Seconds(), hitsN, hitRate, atomic.LoadUint64(&rejects))
	fmt.Printf("dialed=%d  closed=%d  idle at end=%d\n", dialed.Load(), closed.Load(), idle)
}
