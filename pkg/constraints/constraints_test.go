package constraints

import (
	"testing"

	"github.com/ferozmbasheer/clustercore/pkg/clustertypes"
	"github.com/stretchr/testify/assert"
)

func TestBuildPartitionsFamilies(t *testing.T) {
	tests := []struct {
		name      string
		ids       []clustertypes.ProcessorId
		id        clustertypes.ProcessorId
		wantSibs  []clustertypes.ProcessorId
	}{
		{
			name:     "active with two standbys",
			ids:      []clustertypes.ProcessorId{"0", "0-0", "0-1"},
			id:       "0",
			wantSibs: []clustertypes.ProcessorId{"0-0", "0-1"},
		},
		{
			name:     "standby sees active and siblings",
			ids:      []clustertypes.ProcessorId{"0", "0-0", "0-1"},
			id:       "0-0",
			wantSibs: []clustertypes.ProcessorId{"0", "0-1"},
		},
		{
			name:     "distinct family unaffected",
			ids:      []clustertypes.ProcessorId{"0", "0-0", "1", "1-0"},
			id:       "1",
			wantSibs: []clustertypes.ProcessorId{"1-0"},
		},
		{
			name:     "no standbys",
			ids:      []clustertypes.ProcessorId{"0"},
			id:       "0",
			wantSibs: []clustertypes.ProcessorId{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			table := Build(tt.ids)
			assert.Equal(t, tt.wantSibs, table.Siblings(tt.id))
		})
	}
}

func TestContains(t *testing.T) {
	table := Build([]clustertypes.ProcessorId{"0", "0-0", "1"})
	assert.True(t, table.Contains("0", "0-0"))
	assert.True(t, table.Contains("0-0", "0"))
	assert.False(t, table.Contains("0", "1"))
}

func TestSiblingsUnknownId(t *testing.T) {
	table := Build([]clustertypes.ProcessorId{"0", "0-0"})
	assert.Nil(t, table.Siblings("99"))
}
