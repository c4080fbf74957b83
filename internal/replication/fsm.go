// Package replication replicates movie inserts across nodes with Raft.
package replication

import (
	"encoding/json"
	"io"

	"github.com/ASHISH26940/moviedb/internal/movie"
	"github.com/hashicorp/raft"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// OpInsert is the only command the log carries; movies are never updated or deleted.
const OpInsert = "INSERT"

// DataStore is the interface our FSM needs to interact with the storage layer.
type DataStore interface {
	Insert(key uint64, m movie.Movie) error
	Range(fn func(key uint64, m movie.Movie) bool)
}

// Command represents a single command that will be committed to the Raft log.
type Command struct {
	Op    string      `json:"op"`
	Key   uint64      `json:"key"`
	Movie movie.Movie `json:"movie"`
}

// EncodeInsert builds the log payload for inserting m under key.
func EncodeInsert(key uint64, m movie.Movie) ([]byte, error) {
	data, err := json.Marshal(Command{Op: OpInsert, Key: key, Movie: m})
	if err != nil {
		return nil, errors.Wrap(err, "encode insert command")
	}
	return data, nil
}

// FSM is a Finite State Machine that applies Raft logs to the movie store.
// The value returned from Apply is the store's error (nil on success), so
// callers can read store.ErrConflict off the ApplyFuture response.
type FSM struct {
	store  DataStore
	logger *zap.Logger
}

// NewFSM creates a new FSM over the given data store.
func NewFSM(store DataStore, logger *zap.Logger) *FSM {
	return &FSM{
		store:  store,
		logger: logger,
	}
}

// Apply applies a Raft log entry to the movie store.
func (f *FSM) Apply(logEntry *raft.Log) interface{} {
	var cmd Command
	if err := json.Unmarshal(logEntry.Data, &cmd); err != nil {
		f.logger.Error("failed to decode raft command", zap.Uint64("index", logEntry.Index), zap.Error(err))
		return errors.Wrap(err, "decode raft command")
	}

	switch cmd.Op {
	case OpInsert:
		err := f.store.Insert(cmd.Key, cmd.Movie)
		f.logger.Debug("applied insert",
			zap.Uint64("index", logEntry.Index),
			zap.Uint64("key", cmd.Key),
			zap.Error(err),
		)
		return err
	default:
		f.logger.Warn("unrecognized raft command", zap.String("op", cmd.Op))
		return errors.Errorf("unrecognized command op %q", cmd.Op)
	}
}

type snapshotEntry struct {
	Key   uint64      `json:"key"`
	Movie movie.Movie `json:"movie"`
}

// Snapshot captures the current table for log compaction.
func (f *FSM) Snapshot() (raft.FSMSnapshot, error) {
	var entries []snapshotEntry
	f.store.Range(func(key uint64, m movie.Movie) bool {
		entries = append(entries, snapshotEntry{Key: key, Movie: m})
		return true
	})
	return &fsmSnapshot{entries: entries}, nil
}

// Restore inserts every movie from a snapshot. Keys already present are kept
// as they are, matching Insert's no-overwrite rule.
func (f *FSM) Restore(rc io.ReadCloser) error {
	defer rc.Close()

	var entries []snapshotEntry
	if err := json.NewDecoder(rc).Decode(&entries); err != nil {
		return errors.Wrap(err, "decode snapshot")
	}
	for _, e := range entries {
		_ = f.store.Insert(e.Key, e.Movie)
	}
	f.logger.Info("restored snapshot", zap.Int("movies", len(entries)))
	return nil
}

type fsmSnapshot struct {
	entries []snapshotEntry
}

func (s *fsmSnapshot) Persist(sink raft.SnapshotSink) error {
	if err := json.NewEncoder(sink).Encode(s.entries); err != nil {
		_ = sink.Cancel()
		return errors.Wrap(err, "persist snapshot")
	}
	return sink.Close()
}

func (s *fsmSnapshot) Release() {}
