package replication

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/hashicorp/raft"
	"github.com/pkg/errors"
)

// NodeConfig describes the local Raft member.
type NodeConfig struct {
	NodeID    string
	BindAddr  string // host:port for Raft traffic
	Bootstrap bool
	LogOutput io.Writer
}

// NewNode starts a Raft member over TCP. Log and snapshot stores live in
// memory; a restarted node catches up from the cluster.
func NewNode(cfg NodeConfig, fsm raft.FSM) (*raft.Raft, error) {
	addr, err := net.ResolveTCPAddr("tcp", cfg.BindAddr)
	if err != nil {
		return nil, errors.Wrap(err, "resolve raft address")
	}
	transport, err := raft.NewTCPTransport(cfg.BindAddr, addr, 3, 10*time.Second, cfg.LogOutput)
	if err != nil {
		return nil, errors.Wrap(err, "create raft transport")
	}
	return newRaft(cfg, fsm, transport)
}

func newRaft(cfg NodeConfig, fsm raft.FSM, transport raft.Transport) (*raft.Raft, error) {
	raftConfig := raft.DefaultConfig()
	raftConfig.LocalID = raft.ServerID(cfg.NodeID)
	if cfg.LogOutput != nil {
		raftConfig.LogOutput = cfg.LogOutput
	}

	logStore := raft.NewInmemStore()
	snapshots := raft.NewInmemSnapshotStore()

	r, err := raft.NewRaft(raftConfig, fsm, logStore, logStore, snapshots, transport)
	if err != nil {
		return nil, errors.Wrap(err, "create raft node")
	}

	if cfg.Bootstrap {
		bootstrapConfig := raft.Configuration{
			Servers: []raft.Server{
				{
					ID:      raft.ServerID(cfg.NodeID),
					Address: transport.LocalAddr(),
				},
			},
		}
		if err := r.BootstrapCluster(bootstrapConfig).Error(); err != nil && !errors.Is(err, raft.ErrCantBootstrap) {
			return nil, errors.Wrap(err, "bootstrap cluster")
		}
	}
	return r, nil
}

// JoinRequest is the body of POST /join.
type JoinRequest struct {
	NodeID string `json:"node_id"`
	Addr   string `json:"addr"`
}

// Join asks the member serving HTTP at leaderHTTPAddr to add this node as a voter.
func Join(ctx context.Context, client *http.Client, leaderHTTPAddr string, req JoinRequest) error {
	body, err := json.Marshal(req)
	if err != nil {
		return errors.Wrap(err, "encode join request")
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, "http://"+leaderHTTPAddr+"/join", bytes.NewReader(body))
	if err != nil {
		return errors.Wrap(err, "build join request")
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(httpReq)
	if err != nil {
		return errors.Wrapf(err, "join via %s", leaderHTTPAddr)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return errors.Errorf("join via %s: status %d: %s", leaderHTTPAddr, resp.StatusCode, bytes.TrimSpace(msg))
	}
	return nil
}
