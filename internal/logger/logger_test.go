package logger

import (
	"testing"

	"github.com/stretchr/testify/require"

	"tpia/config"
)

func TestNewFallsBackToInfoOnBadLevel(t *testing.T) {
	l, err := New(config.LogConfig{Level: "loud", Encoding: "json"})
	require.NoError(t, err)
	require.True(t, l.Core().Enabled(0)) // info
	require.False(t, l.Core().Enabled(-1))
}

func TestOrNop(t *testing.T) {
	require.NotNil(t, OrNop(nil))
}
