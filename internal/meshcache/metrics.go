package meshcache

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type metrics struct {
	entries      prometheus.Gauge
	inserts      prometheus.Counter
	releases     prometheus.Counter
	misses       prometheus.Counter
	writtenBytes prometheus.Counter
}

// newMetrics creates the cache collectors and registers them on reg. A nil
// reg leaves them unregistered.
func newMetrics(reg prometheus.Registerer) *metrics {
	f := promauto.With(reg)
	return &metrics{
		entries: f.NewGauge(prometheus.GaugeOpts{
			Namespace: "meshbuf",
			Subsystem: "cache",
			Name:      "entries",
			Help:      "Number of decoded meshes held by the cache.",
		}),
		inserts: f.NewCounter(prometheus.CounterOpts{
			Namespace: "meshbuf",
			Subsystem: "cache",
			Name:      "inserts_total",
			Help:      "Total number of meshes inserted.",
		}),
		releases: f.NewCounter(prometheus.CounterOpts{
			Namespace: "meshbuf",
			Subsystem: "cache",
			Name:      "releases_total",
			Help:      "Total number of cache entries released.",
		}),
		misses: f.NewCounter(prometheus.CounterOpts{
			Namespace: "meshbuf",
			Subsystem: "cache",
			Name:      "misses_total",
			Help:      "Total number of lookups of absent handles.",
		}),
		writtenBytes: f.NewCounter(prometheus.CounterOpts{
			Namespace: "meshbuf",
			Subsystem: "cache",
			Name:      "written_bytes_total",
			Help:      "Total bytes written into destination buffers from cached meshes.",
		}),
	}
}
