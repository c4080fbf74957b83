package server

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/ASHISH26940/moviedb/internal/movie"
	"github.com/ASHISH26940/moviedb/internal/replication"
	"github.com/ASHISH26940/moviedb/internal/store"
	"github.com/hashicorp/raft"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

const (
	msgNotFound    = "Could not find movie!"
	msgConflict    = "Already have this movie stored"
	msgCreated     = "Added movie to db!"
	msgMalformedID = "Movie id must be a non-negative integer"
	msgInternal    = "Internal server error"
)

// Outcome is a handler result, independent of how it is written to the wire.
type Outcome struct {
	Status      int
	ContentType string
	Body        []byte
}

func textOutcome(status int, msg string) Outcome {
	return Outcome{
		Status:      status,
		ContentType: "text/plain; charset=utf-8",
		Body:        []byte(msg),
	}
}

// notLeaderError is returned for writes that reach a follower.
type notLeaderError struct {
	leader raft.ServerAddress
}

func (e notLeaderError) Error() string {
	return "Writes must be sent to the leader at: " + string(e.leader)
}

// Fetch returns the movie stored under key as JSON, or a not-found outcome.
func (s *Server) Fetch(key uint64) Outcome {
	m, err := s.store.Get(key)
	switch {
	case err == nil:
	case errors.Is(err, store.ErrNotFound):
		return textOutcome(http.StatusNotFound, msgNotFound)
	default:
		s.logger.Error("fetch failed", zap.Uint64("key", key), zap.Error(err))
		return textOutcome(http.StatusInternalServerError, msgInternal)
	}

	body, err := json.Marshal(m)
	if err != nil {
		s.logger.Error("encode movie", zap.Uint64("key", key), zap.Error(err))
		return textOutcome(http.StatusInternalServerError, msgInternal)
	}
	return Outcome{Status: http.StatusOK, ContentType: "application/json", Body: body}
}

// Create stores m under the key parsed from its id. An id that does not parse
// is a client error and leaves the store untouched; an existing key is a
// conflict, whatever the stored movie looks like.
func (s *Server) Create(m movie.Movie) Outcome {
	key, err := m.Key()
	if err != nil {
		s.logger.Debug("rejected movie id", zap.String("id", m.ID), zap.Error(err))
		return textOutcome(http.StatusBadRequest, msgMalformedID)
	}

	err = s.insert(key, m)
	var nl notLeaderError
	switch {
	case err == nil:
		s.logger.Info("stored movie", zap.Uint64("key", key), zap.String("name", m.Name))
		return textOutcome(http.StatusOK, msgCreated)
	case errors.Is(err, store.ErrConflict):
		s.logger.Debug("movie already stored", zap.Uint64("key", key))
		return textOutcome(http.StatusConflict, msgConflict)
	case errors.As(err, &nl):
		return textOutcome(http.StatusForbidden, nl.Error())
	case errors.Is(err, raft.ErrNotLeader), errors.Is(err, raft.ErrLeadershipLost):
		return textOutcome(http.StatusForbidden, notLeaderError{leader: s.raft.Leader()}.Error())
	default:
		s.logger.Error("create failed", zap.Uint64("key", key), zap.Error(err))
		return textOutcome(http.StatusInternalServerError, msgInternal)
	}
}

// insert writes directly to the store, or through the Raft log when replication is on.
func (s *Server) insert(key uint64, m movie.Movie) error {
	if s.raft == nil {
		return s.store.Insert(key, m)
	}
	if s.raft.State() != raft.Leader {
		return notLeaderError{leader: s.raft.Leader()}
	}

	cmd, err := replication.EncodeInsert(key, m)
	if err != nil {
		return err
	}

	// Blocks until the command is committed by a majority and applied to the FSM.
	future := s.raft.Apply(cmd, s.applyTimeout)
	if err := future.Error(); err != nil {
		return errors.Wrap(err, "apply insert")
	}
	if err, ok := future.Response().(error); ok {
		return err
	}
	return nil
}

// handleGet serves GET /movie/{id}. The id must be an unsigned integer.
func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	key, err := movie.ParseKey(r.PathValue("id"))
	if err != nil {
		http.Error(w, msgMalformedID, http.StatusBadRequest)
		return
	}
	writeOutcome(w, s.Fetch(key))
}

// handleCreate serves POST /movie/ with a JSON movie body.
func (s *Server) handleCreate(w http.ResponseWriter, r *http.Request) {
	m, err := movie.Decode(http.MaxBytesReader(w, r.Body, 1<<20))
	switch {
	case err == nil:
	case errors.Is(err, movie.ErrMissingField):
		http.Error(w, fmt.Sprintf("Invalid movie: %v", err), http.StatusUnprocessableEntity)
		return
	default:
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	writeOutcome(w, s.Create(m))
}

// handleJoin adds a new node to the Raft cluster.
func (s *Server) handleJoin(w http.ResponseWriter, r *http.Request) {
	if s.raft.State() != raft.Leader {
		http.Error(w, "Can only join a cluster via the leader node", http.StatusForbidden)
		return
	}

	var joinReq replication.JoinRequest
	if err := json.NewDecoder(r.Body).Decode(&joinReq); err != nil {
		http.Error(w, "Invalid join request body", http.StatusBadRequest)
		return
	}
	if joinReq.NodeID == "" || joinReq.Addr == "" {
		http.Error(w, "Missing node_id or addr in join request", http.StatusBadRequest)
		return
	}

	s.logger.Info("join request", zap.String("node_id", joinReq.NodeID), zap.String("addr", joinReq.Addr))

	future := s.raft.AddVoter(raft.ServerID(joinReq.NodeID), raft.ServerAddress(joinReq.Addr), 0, 0)
	if err := future.Error(); err != nil {
		s.logger.Error("failed to add voter", zap.String("node_id", joinReq.NodeID), zap.Error(err))
		http.Error(w, "Failed to add node to cluster: "+err.Error(), http.StatusInternalServerError)
		return
	}

	s.logger.Info("added voter", zap.String("node_id", joinReq.NodeID))
	w.WriteHeader(http.StatusOK)
}

func writeOutcome(w http.ResponseWriter, o Outcome) {
	w.Header().Set("Content-Type", o.ContentType)
	w.WriteHeader(o.Status)
	w.Write(o.Body)
}
