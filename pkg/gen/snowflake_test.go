package gen

import (
	"testing"

	"github.com/stretchr/testify/require"

	"watchearn/pkg/config"
)

func TestNewSnowflakeNode(t *testing.T) {
	node, err := NewSnowflakeNode(&config.Config{NodeID: 3})
	require.NoError(t, err)
	require.NotEqual(t, node.Generate(), node.Generate())

	_, err = NewSnowflakeNode(&config.Config{NodeID: 5000})
	require.Error(t, err)
}
