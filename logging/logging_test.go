package logging_test

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/raftlab/raftkit/logging"
)

func TestInit_WithRotatingFileDoesNotError(t *testing.T) {
	dir := t.TempDir()
	err := logging.Init("info", logging.FileConfig{Filename: filepath.Join(dir, "raftnode.log")})
	require.NoError(t, err)
}

func TestInit_RejectsUnknownLevel(t *testing.T) {
	err := logging.Init("not-a-level", logging.FileConfig{})
	require.Error(t, err)
}
