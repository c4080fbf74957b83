package replication

import (
	"bytes"
	"io"
	"testing"
	"time"

	"github.com/ASHISH26940/moviedb/internal/movie"
	"github.com/ASHISH26940/moviedb/internal/store"
	"github.com/hashicorp/raft"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// memSink is an in-memory raft.SnapshotSink.
type memSink struct {
	bytes.Buffer
	cancelled bool
	closed    bool
}

func (s *memSink) ID() string    { return "mem" }
func (s *memSink) Cancel() error { s.cancelled = true; return nil }
func (s *memSink) Close() error  { s.closed = true; return nil }

func applyInsert(t *testing.T, fsm *FSM, index, key uint64, m movie.Movie) interface{} {
	t.Helper()
	data, err := EncodeInsert(key, m)
	if err != nil {
		t.Fatalf("failed to encode insert: %v", err)
	}
	return fsm.Apply(&raft.Log{Index: index, Data: data})
}

func TestFSM_ApplyInsert(t *testing.T) {
	st := store.New()
	fsm := NewFSM(st, zap.NewNop())
	arrival := movie.Movie{ID: "1", Name: "Arrival", Year: 2016, WasGood: true}

	// --- Test Case 1: First insert succeeds ---
	if resp := applyInsert(t, fsm, 1, 1, arrival); resp != nil {
		t.Fatalf("expected nil response, got %v", resp)
	}
	got, err := st.Get(1)
	if err != nil || got != arrival {
		t.Fatalf("expected %+v in store, got %+v (%v)", arrival, got, err)
	}

	// --- Test Case 2: Second insert on the same key reports a conflict ---
	resp := applyInsert(t, fsm, 2, 1, movie.Movie{ID: "1", Name: "Other"})
	err, ok := resp.(error)
	if !ok || !errors.Is(err, store.ErrConflict) {
		t.Fatalf("expected ErrConflict response, got %v", resp)
	}
	got, _ = st.Get(1)
	if got != arrival {
		t.Errorf("expected stored movie to be unchanged, got %+v", got)
	}

	// --- Test Case 3: Garbage and unknown ops return errors instead of panicking ---
	if _, ok := fsm.Apply(&raft.Log{Index: 3, Data: []byte("{")}).(error); !ok {
		t.Error("expected an error for undecodable command")
	}
	if _, ok := fsm.Apply(&raft.Log{Index: 4, Data: []byte(`{"op":"DELETE","key":1}`)}).(error); !ok {
		t.Error("expected an error for unknown op")
	}
	if st.Len() != 1 {
		t.Errorf("expected 1 movie after rejected commands, got %d", st.Len())
	}
}

func TestFSM_SnapshotRestore(t *testing.T) {
	src := store.New()
	fsm := NewFSM(src, zap.NewNop())
	for i := uint64(1); i <= 3; i++ {
		applyInsert(t, fsm, i, i, movie.Movie{ID: "x", Name: "movie", Year: uint16(2000 + i)})
	}

	snap, err := fsm.Snapshot()
	if err != nil {
		t.Fatalf("snapshot failed: %v", err)
	}
	sink := &memSink{}
	if err := snap.Persist(sink); err != nil {
		t.Fatalf("persist failed: %v", err)
	}
	snap.Release()
	if !sink.closed || sink.cancelled {
		t.Fatalf("expected sink to be closed and not cancelled")
	}

	dst := store.New()
	// A key already present in the destination keeps its value.
	kept := movie.Movie{ID: "2", Name: "kept"}
	if err := dst.Insert(2, kept); err != nil {
		t.Fatalf("seed insert failed: %v", err)
	}
	restored := NewFSM(dst, zap.NewNop())
	if err := restored.Restore(io.NopCloser(bytes.NewReader(sink.Bytes()))); err != nil {
		t.Fatalf("restore failed: %v", err)
	}

	if dst.Len() != 3 {
		t.Fatalf("expected 3 movies after restore, got %d", dst.Len())
	}
	if got, _ := dst.Get(2); got != kept {
		t.Errorf("expected key 2 to keep %+v, got %+v", kept, got)
	}
	if got, _ := dst.Get(3); got.Year != 2003 {
		t.Errorf("expected key 3 to be restored, got %+v", got)
	}

	if err := restored.Restore(io.NopCloser(bytes.NewReader([]byte("nope")))); err == nil {
		t.Error("expected an error restoring a corrupt snapshot")
	}
}

// TestNode_SingleMember runs a real single-node cluster over the in-memory transport.
func TestNode_SingleMember(t *testing.T) {
	st := store.New()
	_, transport := raft.NewInmemTransport("")
	r, err := newRaft(NodeConfig{NodeID: "node1", Bootstrap: true, LogOutput: io.Discard}, NewFSM(st, zap.NewNop()), transport)
	if err != nil {
		t.Fatalf("failed to start raft: %v", err)
	}
	defer r.Shutdown()

	deadline := time.Now().Add(10 * time.Second)
	for r.State() != raft.Leader {
		if time.Now().After(deadline) {
			t.Fatal("node did not become leader in time")
		}
		time.Sleep(50 * time.Millisecond)
	}

	data, _ := EncodeInsert(1, movie.Movie{ID: "1", Name: "Arrival"})
	f := r.Apply(data, 5*time.Second)
	if err := f.Error(); err != nil {
		t.Fatalf("apply failed: %v", err)
	}
	if f.Response() != nil {
		t.Fatalf("expected nil response for first insert, got %v", f.Response())
	}

	f = r.Apply(data, 5*time.Second)
	if err := f.Error(); err != nil {
		t.Fatalf("apply failed: %v", err)
	}
	if err, _ := f.Response().(error); !errors.Is(err, store.ErrConflict) {
		t.Fatalf("expected ErrConflict response, got %v", f.Response())
	}

	if _, err := st.Get(1); err != nil {
		t.Errorf("expected movie to be applied to the store: %v", err)
	}
}
