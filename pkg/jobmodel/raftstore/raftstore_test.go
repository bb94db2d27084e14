package raftstore

import (
	"bytes"
	"encoding/json"
	"io"
	"path/filepath"
	"testing"

	"github.com/ferozmbasheer/clustercore/pkg/clustertypes"
	"github.com/hashicorp/raft"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memorySnapshotSink is a minimal in-memory raft.SnapshotSink for testing
// fsm.Snapshot/Persist without a real snapshot store.
type memorySnapshotSink struct {
	buf bytes.Buffer
}

func newMemorySnapshotSink() *memorySnapshotSink { return &memorySnapshotSink{} }

func (s *memorySnapshotSink) Write(p []byte) (int, error) { return s.buf.Write(p) }
func (s *memorySnapshotSink) Close() error                { return nil }
func (s *memorySnapshotSink) ID() string                  { return "test-snapshot" }
func (s *memorySnapshotSink) Cancel() error                { return nil }
func (s *memorySnapshotSink) reader() io.ReadCloser        { return io.NopCloser(&s.buf) }

func newTestView(t *testing.T) *boltView {
	t.Helper()
	path := filepath.Join(t.TempDir(), "jobmodel.db")
	v, err := newBoltView(path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = v.close() })
	return v
}

func TestBoltViewSetAndGetHost(t *testing.T) {
	v := newTestView(t)
	assert.Equal(t, clustertypes.Host(""), v.host("0"))

	require.NoError(t, v.setHost("0", "hostA"))
	assert.Equal(t, clustertypes.Host("hostA"), v.host("0"))
}

func TestBoltViewSetAndGetContainers(t *testing.T) {
	v := newTestView(t)
	ids, err := v.containers()
	require.NoError(t, err)
	assert.Empty(t, ids)

	want := []clustertypes.ProcessorId{"0", "0-0", "1"}
	require.NoError(t, v.setContainers(want))

	got, err := v.containers()
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestBoltViewSnapshotAndRestore(t *testing.T) {
	v := newTestView(t)
	require.NoError(t, v.setHost("0", "hostA"))
	require.NoError(t, v.setHost("1", "hostB"))

	snap, err := v.snapshot()
	require.NoError(t, err)
	assert.Equal(t, clustertypes.Host("hostA"), snap["0"])

	replacement := map[clustertypes.ProcessorId]clustertypes.Host{"2": "hostC"}
	require.NoError(t, v.restore(replacement))

	assert.Equal(t, clustertypes.Host(""), v.host("0"))
	assert.Equal(t, clustertypes.Host("hostC"), v.host("2"))
}

func applyCommand(t *testing.T, f *fsm, op string, payload interface{}) interface{} {
	t.Helper()
	data, err := json.Marshal(payload)
	require.NoError(t, err)
	cmd := command{Op: op, Data: data}
	raw, err := json.Marshal(cmd)
	require.NoError(t, err)
	return f.Apply(&raft.Log{Data: raw})
}

func TestFSMApplySetContainers(t *testing.T) {
	v := newTestView(t)
	f := newFSM(v)

	result := applyCommand(t, f, "set_containers", setContainersPayload{Containers: []clustertypes.ProcessorId{"0", "0-0"}})
	assert.Nil(t, result)

	got, err := v.containers()
	require.NoError(t, err)
	assert.Equal(t, []clustertypes.ProcessorId{"0", "0-0"}, got)
}

func TestFSMApplySetHost(t *testing.T) {
	v := newTestView(t)
	f := newFSM(v)

	result := applyCommand(t, f, "set_host", setHostPayload{ProcessorId: "0", Host: "hostA"})
	assert.Nil(t, result)
	assert.Equal(t, clustertypes.Host("hostA"), v.host("0"))
}

func TestFSMApplyUnknownOpReturnsError(t *testing.T) {
	v := newTestView(t)
	f := newFSM(v)

	result := applyCommand(t, f, "bogus", struct{}{})
	require.Error(t, result.(error))
}

func TestFSMSnapshotAndRestoreRoundTrip(t *testing.T) {
	v := newTestView(t)
	f := newFSM(v)
	require.NoError(t, v.setHost("0", "hostA"))
	require.NoError(t, v.setContainers([]clustertypes.ProcessorId{"0"}))

	snap, err := f.Snapshot()
	require.NoError(t, err)

	sink := newMemorySnapshotSink()
	require.NoError(t, snap.Persist(sink))

	v2 := newTestView(t)
	f2 := newFSM(v2)
	require.NoError(t, f2.Restore(sink.reader()))

	assert.Equal(t, clustertypes.Host("hostA"), v2.host("0"))
	got, err := v2.containers()
	require.NoError(t, err)
	assert.Equal(t, []clustertypes.ProcessorId{"0"}, got)
}

func TestStoreContainersAndHostReadThroughView(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(Config{NodeID: "n1", DataDir: dir, ServerURL: "http://jobmodel"})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	require.NoError(t, s.view.setContainers([]clustertypes.ProcessorId{"0"}))
	require.NoError(t, s.view.setHost("0", "hostA"))

	assert.Equal(t, []clustertypes.ProcessorId{"0"}, s.Containers())
	assert.Equal(t, clustertypes.Host("hostA"), s.ContainerToHost("0"))
	assert.Equal(t, "http://jobmodel", s.ServerURL())
}

func TestStoreApplyFailsBeforeBootstrap(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(Config{NodeID: "n1", DataDir: dir})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	assert.Error(t, s.SetContainers([]clustertypes.ProcessorId{"0"}))
	assert.False(t, s.IsLeader())
}
