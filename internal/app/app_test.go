package app

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestNewWithoutDatabase(t *testing.T) {
	a, err := New(context.Background(), "")
	require.NoError(t, err)
	defer a.Close()

	require.Nil(t, a.Store)
	require.NotNil(t, a.Logger)
	require.NotNil(t, a.Tracker)
	require.NotNil(t, a.Limiter)
	require.Equal(t, 30*time.Second, a.Client.Timeout)
}

func TestNewRejectsBadConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server:\n  port: -1\n"), 0o600))

	_, err := New(context.Background(), path)
	require.Error(t, err)
	require.Contains(t, err.Error(), "server.port")
}
