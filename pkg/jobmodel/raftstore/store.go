package raftstore

import (
	"encoding/json"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"time"

	"github.com/ferozmbasheer/clustercore/pkg/clustertypes"
	"github.com/hashicorp/raft"
	raftboltdb "github.com/hashicorp/raft-boltdb"
)

// Config configures a Store.
type Config struct {
	NodeID   string
	BindAddr string
	DataDir  string
	// ServerURL is returned verbatim by ServerURL(); it is not itself
	// replicated since every manager typically fronts the same URL.
	ServerURL string
}

// Store is a Raft-replicated JobModel. All writes go through Raft and are
// only visible locally once committed; reads are served from the local
// BoltDB view, keeping the consensus layer and the persisted view as two
// separate concerns.
type Store struct {
	cfg  Config
	view *boltView
	fsm  *fsm
	raft *raft.Raft
}

// Open creates (or reopens) a Store's local state. Call Bootstrap once to
// start Raft on it; Store has no operation for joining an existing
// quorum, and until Bootstrap runs every Set* call fails.
func Open(cfg Config) (*Store, error) {
	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return nil, fmt.Errorf("raftstore: create data dir: %w", err)
	}
	view, err := newBoltView(filepath.Join(cfg.DataDir, "jobmodel.db"))
	if err != nil {
		return nil, err
	}
	return &Store{cfg: cfg, view: view, fsm: newFSM(view)}, nil
}

// Bootstrap starts a new single-node Raft quorum rooted at this Store.
// Store does not expose the underlying raft.Raft, so it offers no way to
// add further voters to the quorum.
func (s *Store) Bootstrap() error {
	raftCfg := raft.DefaultConfig()
	raftCfg.LocalID = raft.ServerID(s.cfg.NodeID)

	addr, err := net.ResolveTCPAddr("tcp", s.cfg.BindAddr)
	if err != nil {
		return fmt.Errorf("raftstore: resolve bind addr: %w", err)
	}
	transport, err := raft.NewTCPTransport(s.cfg.BindAddr, addr, 3, 10*time.Second, os.Stderr)
	if err != nil {
		return fmt.Errorf("raftstore: create transport: %w", err)
	}

	snapshotStore, err := raft.NewFileSnapshotStore(s.cfg.DataDir, 2, os.Stderr)
	if err != nil {
		return fmt.Errorf("raftstore: create snapshot store: %w", err)
	}

	logStore, err := raftboltdb.NewBoltStore(filepath.Join(s.cfg.DataDir, "raft-log.db"))
	if err != nil {
		return fmt.Errorf("raftstore: create log store: %w", err)
	}
	stableStore, err := raftboltdb.NewBoltStore(filepath.Join(s.cfg.DataDir, "raft-stable.db"))
	if err != nil {
		return fmt.Errorf("raftstore: create stable store: %w", err)
	}

	r, err := raft.NewRaft(raftCfg, s.fsm, logStore, stableStore, snapshotStore, transport)
	if err != nil {
		return fmt.Errorf("raftstore: create raft: %w", err)
	}
	s.raft = r

	future := r.BootstrapCluster(raft.Configuration{
		Servers: []raft.Server{{ID: raftCfg.LocalID, Address: transport.LocalAddr()}},
	})
	return future.Error()
}

// IsLeader reports whether this node is the current Raft leader. Only the
// leader may Apply mutations.
func (s *Store) IsLeader() bool {
	return s.raft != nil && s.raft.State() == raft.Leader
}

// Close releases the underlying BoltDB handle.
func (s *Store) Close() error {
	if s.raft != nil {
		_ = s.raft.Shutdown().Error()
	}
	return s.view.close()
}

// SetContainers replicates the full container id list through Raft. Must
// be called on the leader.
func (s *Store) SetContainers(ids []clustertypes.ProcessorId) error {
	data, err := json.Marshal(setContainersPayload{Containers: ids})
	if err != nil {
		return err
	}
	return s.apply("set_containers", data)
}

// SetHost replicates a last-known-host update through Raft. Must be
// called on the leader.
func (s *Store) SetHost(id clustertypes.ProcessorId, host clustertypes.Host) error {
	data, err := json.Marshal(setHostPayload{ProcessorId: id, Host: host})
	if err != nil {
		return err
	}
	return s.apply("set_host", data)
}

func (s *Store) apply(op string, data json.RawMessage) error {
	if s.raft == nil {
		return fmt.Errorf("raftstore: not bootstrapped")
	}
	payload, err := json.Marshal(command{Op: op, Data: data})
	if err != nil {
		return err
	}
	future := s.raft.Apply(payload, 5*time.Second)
	if err := future.Error(); err != nil {
		return fmt.Errorf("raftstore: apply %s: %w", op, err)
	}
	if err, ok := future.Response().(error); ok && err != nil {
		return fmt.Errorf("raftstore: %s rejected: %w", op, err)
	}
	return nil
}

// Containers implements jobmodel.JobModel.
func (s *Store) Containers() []clustertypes.ProcessorId {
	ids, _ := s.view.containers()
	return ids
}

// ContainerToHost implements jobmodel.JobModel.
func (s *Store) ContainerToHost(id clustertypes.ProcessorId) clustertypes.Host {
	return s.view.host(id)
}

// ServerURL implements jobmodel.JobModel.
func (s *Store) ServerURL() string {
	return s.cfg.ServerURL
}
