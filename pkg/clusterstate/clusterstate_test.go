package clusterstate

import (
	"testing"

	"github.com/ferozmbasheer/clustercore/pkg/clustertypes"
	"github.com/stretchr/testify/assert"
)

func TestSetPendingThenPromoteToRunning(t *testing.T) {
	s := New()
	res := &clustertypes.Resource{ResourceId: "r1", Host: "h1"}

	s.SetPending("0", res)
	assert.True(t, s.IsPending("0"))
	assert.False(t, s.IsRunning("0"))

	s.PromoteToRunning("0", res)
	assert.False(t, s.IsPending("0"))
	assert.True(t, s.IsRunning("0"))

	got, ok := s.RunningResource("0")
	assert.True(t, ok)
	assert.Same(t, res, got)
}

func TestClearRemovesFromBoth(t *testing.T) {
	s := New()
	res := &clustertypes.Resource{ResourceId: "r1", Host: "h1"}
	s.SetPending("0", res)
	s.Clear("0")
	assert.False(t, s.IsPending("0"))
	assert.False(t, s.IsRunning("0"))
}

func TestPendingOrRunningOnHost(t *testing.T) {
	s := New()
	res := &clustertypes.Resource{ResourceId: "r1", Host: "h1"}
	s.SetPending("0", res)
	assert.True(t, s.PendingOrRunningOnHost("0", "h1"))
	assert.False(t, s.PendingOrRunningOnHost("0", "h2"))
	assert.False(t, s.PendingOrRunningOnHost("1", "h1"))
}

func TestRunningOnHost(t *testing.T) {
	s := New()
	res1 := &clustertypes.Resource{ResourceId: "r1", Host: "h1"}
	res2 := &clustertypes.Resource{ResourceId: "r2", Host: "h2"}
	s.PromoteToRunning("0", res1)
	s.PromoteToRunning("1", res2)
	s.PromoteToRunning("2", res1)

	got := s.RunningOnHost("h1")
	assert.ElementsMatch(t, []clustertypes.ProcessorId{"0", "2"}, got)
}

func TestCounts(t *testing.T) {
	s := New()
	res := &clustertypes.Resource{ResourceId: "r1", Host: "h1"}
	s.SetPending("0", res)
	s.PromoteToRunning("1", res)
	assert.Equal(t, 1, s.PendingCount())
	assert.Equal(t, 1, s.RunningCount())
}
