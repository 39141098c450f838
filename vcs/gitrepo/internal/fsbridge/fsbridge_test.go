package fsbridge

import (
	"testing"

	"github.com/go-git/go-billy/v5/memfs"
	fsb "github.com/input-output-hk/catalyst-forge-libs/fs/billy"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestToBilly(t *testing.T) {
	memFS := memfs.New()

	result, err := ToBilly(fsb.NewFS(memFS))
	require.NoError(t, err)
	assert.Equal(t, memFS, result, "unwrapping must return the backing filesystem")
}

func TestNewStorage(t *testing.T) {
	tests := []struct {
		name      string
		cacheSize int
	}{
		{name: "explicit cache size", cacheSize: 500},
		{name: "zero falls back to minimum", cacheSize: 0},
		{name: "negative falls back to minimum", cacheSize: -1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			storage := NewStorage(memfs.New(), tt.cacheSize)
			assert.NotNil(t, storage)
		})
	}
}
