package store

import (
	"testing"

	"github.com/ASHISH26940/moviedb/internal/movie"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestInstrumentedStore_CountsOutcomes(t *testing.T) {
	reg := prometheus.NewRegistry()
	s, err := NewInstrumentedStore(New(), reg)
	if err != nil {
		t.Fatalf("failed to create instrumented store: %v", err)
	}

	if _, err := s.Get(1); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := s.Insert(1, movie.Movie{ID: "1"}); err != nil {
		t.Fatalf("expected insert to succeed, got %v", err)
	}
	if err := s.Insert(1, movie.Movie{ID: "1"}); !errors.Is(err, ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
	if _, err := s.Get(1); err != nil {
		t.Fatalf("expected get to succeed, got %v", err)
	}

	checks := []struct {
		op, result string
		want       float64
	}{
		{"get", "not_found", 1},
		{"get", "ok", 1},
		{"insert", "ok", 1},
		{"insert", "conflict", 1},
	}
	for _, c := range checks {
		if got := testutil.ToFloat64(s.ops.WithLabelValues(c.op, c.result)); got != c.want {
			t.Errorf("%s/%s: expected %v, got %v", c.op, c.result, c.want, got)
		}
	}

	if s.Len() != 1 {
		t.Errorf("expected Len 1, got %d", s.Len())
	}
	if n := testutil.CollectAndCount(s.duration); n != 2 {
		t.Errorf("expected 2 latency series, got %d", n)
	}
}

func TestInstrumentedStore_DoubleRegistration(t *testing.T) {
	reg := prometheus.NewRegistry()
	if _, err := NewInstrumentedStore(New(), reg); err != nil {
		t.Fatalf("first registration failed: %v", err)
	}
	if _, err := NewInstrumentedStore(New(), reg); err == nil {
		t.Fatal("expected an error registering the same collectors twice")
	}
}
