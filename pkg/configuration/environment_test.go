package configuration

import (
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
)

func newLoaded(t *testing.T, env map[string]string) *Configuration {
	t.Helper()
	t.Setenv("LOG_PATH", filepath.Join(t.TempDir(), "app.log"))
	for k, v := range env {
		t.Setenv(k, v)
	}
	c := &Configuration{}
	require.NoError(t, c.load(nil))
	t.Cleanup(c.Unload)
	return c
}

func TestLoadDefaults(t *testing.T) {
	c := newLoaded(t, nil)

	require.Equal(t, "agency_sdk", c.Database.Name)
	require.Equal(t, 10, c.HierarchyMaxDepth)
	require.Equal(t, "X-Actor-ID", c.ActorIDHeader)
	require.Equal(t, "X-Request-ID", c.RequestIDHeader)
	require.Equal(t, "localhost:3200", c.SocketAddress)
	require.Contains(t, c.Database.Opts, "dbname=agency_sdk")
	require.NotNil(t, c.Logger())
}

func TestLoadOverrides(t *testing.T) {
	c := newLoaded(t, map[string]string{
		"ORG_HIERARCHY_MAX_DEPTH": "25",
		"GO_APP_ENV":              "production",
		"PORT":                    "8080",
		"LOG_LEVEL":               "debug",
	})

	require.Equal(t, 25, c.HierarchyMaxDepth)
	require.Equal(t, ":8080", c.SocketAddress)
	require.Equal(t, logrus.DebugLevel, c.LogrusLogLevel())
}

func TestLoadRejectsBadDepthBound(t *testing.T) {
	for _, depth := range []string{"0", "-3", "101"} {
		t.Setenv("ORG_HIERARCHY_MAX_DEPTH", depth)
		c := &Configuration{}
		require.Error(t, c.load(nil), "depth %s must be rejected", depth)
	}
}
