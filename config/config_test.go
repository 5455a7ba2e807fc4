package config_test

import (
	"os"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/patallen/floorcast/config"
)

func clearEnv(t *testing.T) {
	for _, key := range []string{
		"FLOORCAST_HA_WEBSOCKET_TOKEN", "FLOORCAST_SNAPSHOT_INTERVAL_SECONDS",
		"FLOORCAST_ENTITY_BLOCKLIST", "FLOORCAST_DB_URI",
	} {
		require.NoError(t, os.Unsetenv(key))
	}
}

func TestLoad_RequiresHAWebsocketToken(t *testing.T) {
	clearEnv(t)
	_, err := config.Load()
	require.Error(t, err)
}

func TestLoad_AppliesDefaultsAndParsesBlocklist(t *testing.T) {
	clearEnv(t)
	t.Setenv("FLOORCAST_HA_WEBSOCKET_TOKEN", "secret")
	t.Setenv("FLOORCAST_ENTITY_BLOCKLIST", "update.*, binary_sensor.battery")

	cfg, err := config.Load()
	require.NoError(t, err)
	require.Equal(t, "secret", cfg.HAWebsocketToken)
	require.Equal(t, 300, cfg.SnapshotIntervalSeconds)
	require.Equal(t, "floorcast.db", cfg.DBURI)
	require.Equal(t, []string{"update.*", "binary_sensor.battery"}, cfg.EntityBlocklist)
}

func TestLoad_OverridesSnapshotInterval(t *testing.T) {
	clearEnv(t)
	t.Setenv("FLOORCAST_HA_WEBSOCKET_TOKEN", "secret")
	t.Setenv("FLOORCAST_SNAPSHOT_INTERVAL_SECONDS", "60")

	cfg, err := config.Load()
	require.NoError(t, err)
	require.Equal(t, 60, cfg.SnapshotIntervalSeconds)
}
