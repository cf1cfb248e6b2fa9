package ctl

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
)

// Counter names tracked by Stats. Mirroring the original's acquisition
// statistics page (xawtv/Nextview "acquisition stats" popup).
const (
	CounterPacketsTotal    = "ttx_packets_total"
	CounterEpgPacketsTotal = "epg_packets_total"
	CounterEpgPagesTotal   = "epg_pages_total"
	CounterBlocksDecoded   = "blocks_decoded"
	CounterBlocksRejected  = "blocks_rejected"
	CounterRingOverflow    = "ring_overflow"
	CounterProvidersKnown  = "providers_known"
	CounterPiAccepted      = "pi_accepted"
	CounterPiObsoleted     = "pi_obsoleted"
)

// StatsServer is the interface the controller reports through; kept
// separate from *Stats so tests can substitute a fake.
type StatsServer interface {
	Reset()
	SetCounter(key string, val int64)
	UpdateCounterBy(key string, count int64)
}

// Stats is a mutex-protected counter map, reported over /metrics by a
// PrometheusExporter.
type Stats struct {
	mux      sync.Mutex
	counters map[string]int64
}

// NewStats returns an empty counter set.
func NewStats() *Stats {
	return &Stats{counters: map[string]int64{}}
}

// SetCounter sets key to val.
func (s *Stats) SetCounter(key string, val int64) {
	s.mux.Lock()
	s.counters[key] = val
	s.mux.Unlock()
}

// UpdateCounterBy adds count to key's current value.
func (s *Stats) UpdateCounterBy(key string, count int64) {
	s.mux.Lock()
	s.counters[key] += count
	s.mux.Unlock()
}

// Get returns a point-in-time copy of every counter.
func (s *Stats) Get() map[string]int64 {
	ret := make(map[string]int64, len(s.counters))
	s.mux.Lock()
	for k, v := range s.counters {
		ret[k] = v
	}
	s.mux.Unlock()
	return ret
}

// Reset zeroes every known counter.
func (s *Stats) Reset() {
	s.mux.Lock()
	for k := range s.counters {
		s.counters[k] = 0
	}
	s.mux.Unlock()
}

// PrometheusExporter serves Stats as a set of gauges on /metrics,
// scraping the in-process counter map on an interval rather than
// fetching it over HTTP (unlike ptp/sptp/stats's cross-process
// variant, the controller and exporter share one address space).
type PrometheusExporter struct {
	registry *prometheus.Registry
	gauges   map[string]prometheus.Gauge
	stats    *Stats
	port     int
	interval time.Duration
}

// NewPrometheusExporter returns an exporter that scrapes stats every
// interval and listens on port.
func NewPrometheusExporter(stats *Stats, port int, interval time.Duration) *PrometheusExporter {
	return &PrometheusExporter{
		registry: prometheus.NewRegistry(),
		gauges:   map[string]prometheus.Gauge{},
		stats:    stats,
		port:     port,
		interval: interval,
	}
}

// Start begins the periodic scrape and blocks serving /metrics.
// Callers typically run it in its own goroutine.
func (e *PrometheusExporter) Start() {
	go func() {
		for {
			e.scrape()
			time.Sleep(e.interval)
		}
	}()

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(e.registry, promhttp.HandlerOpts{EnableOpenMetrics: true}))
	log.Fatal(http.ListenAndServe(fmt.Sprintf(":%d", e.port), mux))
}

func (e *PrometheusExporter) scrape() {
	for key, val := range e.stats.Get() {
		g, ok := e.gauges[key]
		if !ok {
			g = prometheus.NewGauge(prometheus.GaugeOpts{Name: flattenKey(key), Help: key})
			if err := e.registry.Register(g); err != nil {
				are := &prometheus.AlreadyRegisteredError{}
				if errors.As(err, are) {
					g = are.ExistingCollector.(prometheus.Gauge)
				} else {
					log.Errorf("ctl: failed to register metric %s: %v", key, err)
					continue
				}
			}
			e.gauges[key] = g
		}
		g.Set(float64(val))
	}
}

func flattenKey(key string) string {
	key = strings.ReplaceAll(key, " ", "_")
	key = strings.ReplaceAll(key, ".", "_")
	key = strings.ReplaceAll(key, "-", "_")
	return key
}
