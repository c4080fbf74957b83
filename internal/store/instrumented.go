package store

import (
	"time"

	"github.com/ASHISH26940/moviedb/internal/movie"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
)

// Backend is the minimal table contract the instrumented wrapper delegates to.
type Backend interface {
	Get(key uint64) (movie.Movie, error)
	Insert(key uint64, m movie.Movie) error
	Len() int
	Range(fn func(key uint64, m movie.Movie) bool)
}

// Compile-time check to ensure Store implements Backend.
var _ Backend = (*Store)(nil)

// InstrumentedStore wraps a Backend with Prometheus metrics.
type InstrumentedStore struct {
	backend  Backend
	ops      *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

// Compile-time check to ensure InstrumentedStore implements Backend.
var _ Backend = (*InstrumentedStore)(nil)

// NewInstrumentedStore wraps backend and registers its collectors on reg.
func NewInstrumentedStore(backend Backend, reg prometheus.Registerer) (*InstrumentedStore, error) {
	s := &InstrumentedStore{
		backend: backend,
		ops: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "moviedb",
			Subsystem: "store",
			Name:      "operations_total",
			Help:      "Store operations by kind and result.",
		}, []string{"op", "result"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "moviedb",
			Subsystem: "store",
			Name:      "operation_duration_seconds",
			Help:      "Time spent inside store operations.",
			Buckets:   prometheus.ExponentialBuckets(1e-7, 4, 10),
		}, []string{"op"}),
	}
	records := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: "moviedb",
		Subsystem: "store",
		Name:      "records",
		Help:      "Number of movies currently stored.",
	}, func() float64 { return float64(backend.Len()) })

	for _, c := range []prometheus.Collector{s.ops, s.duration, records} {
		if err := reg.Register(c); err != nil {
			return nil, errors.Wrap(err, "register store metrics")
		}
	}
	return s, nil
}

// Get delegates to the wrapped store and records the outcome.
func (s *InstrumentedStore) Get(key uint64) (movie.Movie, error) {
	start := time.Now()
	m, err := s.backend.Get(key)
	s.observe("get", start, err)
	return m, err
}

// Insert delegates to the wrapped store and records the outcome.
func (s *InstrumentedStore) Insert(key uint64, m movie.Movie) error {
	start := time.Now()
	err := s.backend.Insert(key, m)
	s.observe("insert", start, err)
	return err
}

// Len delegates to the wrapped store.
func (s *InstrumentedStore) Len() int {
	return s.backend.Len()
}

// Range delegates to the wrapped store. It is not measured.
func (s *InstrumentedStore) Range(fn func(key uint64, m movie.Movie) bool) {
	s.backend.Range(fn)
}

func (s *InstrumentedStore) observe(op string, start time.Time, err error) {
	s.duration.WithLabelValues(op).Observe(time.Since(start).Seconds())
	s.ops.WithLabelValues(op, resultLabel(err)).Inc()
}

func resultLabel(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrConflict):
		return "conflict"
	default:
		return "error"
	}
}
