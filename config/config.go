// Package config loads floorcast's runtime configuration from the
// environment via viper, all variables namespaced under the
// FLOORCAST_ prefix. Grounded on the pack's viper users
// (rtcdance-streamgate, amlandas-Conduit-AI-Intelligence-Hub,
// steveyegge-beads): AutomaticEnv plus a key replacer, defaults set
// through viper.SetDefault, required keys checked explicitly since
// viper has no first-class "required" concept.
package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// Config is the fully-resolved set of options floorcast's components
// are built from.
type Config struct {
	SnapshotIntervalSeconds int
	HAWebsocketToken        string
	HAWebsocketURL          string
	DBURI                   string
	EntityBlocklist         []string
	LogLevel                string
	LogToConsole            bool
}

const envPrefix = "FLOORCAST"

// Load reads configuration from the environment (and, if present, a
// .env file in the working directory), applying defaults for every
// optional field.
func Load() (Config, error) {
	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetConfigName(".env")
	v.SetConfigType("env")
	v.AddConfigPath(".")
	if err := v.ReadInConfig(); err != nil {
		if _, notFound := err.(viper.ConfigFileNotFoundError); !notFound {
			return Config{}, fmt.Errorf("config: reading .env: %w", err)
		}
	}

	v.SetDefault("snapshot_interval_seconds", 300)
	v.SetDefault("ha_websocket_url", "ws://homeassistant.local:8123/api/websocket")
	v.SetDefault("db_uri", "floorcast.db")
	v.SetDefault("entity_blocklist", []string{"update.*"})
	v.SetDefault("log_level", "info")
	v.SetDefault("log_to_console", false)

	token := v.GetString("ha_websocket_token")
	if token == "" {
		return Config{}, fmt.Errorf("config: %s_HA_WEBSOCKET_TOKEN is required", envPrefix)
	}

	return Config{
		SnapshotIntervalSeconds: v.GetInt("snapshot_interval_seconds"),
		HAWebsocketToken:        token,
		HAWebsocketURL:          v.GetString("ha_websocket_url"),
		DBURI:                   v.GetString("db_uri"),
		EntityBlocklist:         entityBlocklist(v),
		LogLevel:                v.GetString("log_level"),
		LogToConsole:            v.GetBool("log_to_console"),
	}, nil
}

// entityBlocklist handles both the default/.env []string form and a
// comma-separated string form, since an env var can only ever be a
// plain string and viper doesn't split one on commas for us.
func entityBlocklist(v *viper.Viper) []string {
	raw := v.Get("entity_blocklist")
	if s, ok := raw.(string); ok {
		parts := strings.Split(s, ",")
		out := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				out = append(out, p)
			}
		}
		return out
	}
	return v.GetStringSlice("entity_blocklist")
}
