package raftstore

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/ferozmbasheer/clustercore/pkg/clustertypes"
	"github.com/hashicorp/raft"
)

// command is a Raft log entry: an operation name plus its JSON payload.
type command struct {
	Op   string          `json:"op"`
	Data json.RawMessage `json:"data"`
}

type setContainersPayload struct {
	Containers []clustertypes.ProcessorId `json:"containers"`
}

type setHostPayload struct {
	ProcessorId clustertypes.ProcessorId `json:"processor_id"`
	Host        clustertypes.Host        `json:"host"`
}

// fsm applies committed job-model mutations to the local BoltDB view.
type fsm struct {
	view *boltView
}

func newFSM(view *boltView) *fsm {
	return &fsm{view: view}
}

func (f *fsm) Apply(l *raft.Log) interface{} {
	var cmd command
	if err := json.Unmarshal(l.Data, &cmd); err != nil {
		return fmt.Errorf("raftstore: unmarshal command: %w", err)
	}

	switch cmd.Op {
	case "set_containers":
		var p setContainersPayload
		if err := json.Unmarshal(cmd.Data, &p); err != nil {
			return err
		}
		return f.view.setContainers(p.Containers)

	case "set_host":
		var p setHostPayload
		if err := json.Unmarshal(cmd.Data, &p); err != nil {
			return err
		}
		return f.view.setHost(p.ProcessorId, p.Host)

	default:
		return fmt.Errorf("raftstore: unknown command op %q", cmd.Op)
	}
}

func (f *fsm) Snapshot() (raft.FSMSnapshot, error) {
	hosts, err := f.view.snapshot()
	if err != nil {
		return nil, err
	}
	containers, err := f.view.containers()
	if err != nil {
		return nil, err
	}
	return &fsmSnapshot{hosts: hosts, containers: containers}, nil
}

func (f *fsm) Restore(rc io.ReadCloser) error {
	defer rc.Close()
	var snap fsmSnapshot
	if err := json.NewDecoder(rc).Decode(&snap); err != nil {
		return fmt.Errorf("raftstore: decode snapshot: %w", err)
	}
	if err := f.view.restore(snap.hosts); err != nil {
		return err
	}
	return f.view.setContainers(snap.containers)
}

type fsmSnapshot struct {
	hosts      map[clustertypes.ProcessorId]clustertypes.Host
	containers []clustertypes.ProcessorId
}

func (s *fsmSnapshot) Persist(sink raft.SnapshotSink) error {
	err := json.NewEncoder(sink).Encode(s)
	if err != nil {
		sink.Cancel()
		return err
	}
	return sink.Close()
}

func (s *fsmSnapshot) Release() {}

// MarshalJSON/UnmarshalJSON let fsmSnapshot round-trip through the
// unexported fields Persist/Restore need without exporting them on the
// public Store API.
func (s *fsmSnapshot) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Hosts      map[clustertypes.ProcessorId]clustertypes.Host `json:"hosts"`
		Containers []clustertypes.ProcessorId                     `json:"containers"`
	}{s.hosts, s.containers})
}

func (s *fsmSnapshot) UnmarshalJSON(data []byte) error {
	var aux struct {
		Hosts      map[clustertypes.ProcessorId]clustertypes.Host `json:"hosts"`
		Containers []clustertypes.ProcessorId                     `json:"containers"`
	}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	s.hosts = aux.Hosts
	s.containers = aux.Containers
	return nil
}
