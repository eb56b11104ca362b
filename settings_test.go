package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/require"
)

func parseSettings(t *testing.T, args ...string) *viper.Viper {
	flags, cli := newFlags()
	require.NoError(t, flags.Parse(append([]string{"cloudfiles-http-gw"}, args...)))

	v := newSettings(flags)
	require.NoError(t, readConfig(v, *cli.config))

	return v
}

func TestSettingsDefaults(t *testing.T) {
	v := parseSettings(t)

	require.Equal(t, "0.0.0.0:8082", v.GetString(cfgListenAddress))
	require.Equal(t, "us", v.GetString(cfgAuthEndpoint))
	require.Equal(t, defaultRequestTimeout, v.GetDuration(cfgRequestTimeout))
	require.Equal(t, 12*time.Hour, v.GetDuration(cfgAuthValidity))
	require.Equal(t, time.Minute, v.GetDuration(cfgAuthRefresh))
	require.Equal(t, authorizerNone, v.GetString(cfgProxyAuthorizer))
	require.False(t, v.GetBool(cfgRelayEnabled))
	require.Equal(t, "dev", v.GetString(cfgAppVersion))
}

func TestSettingsSources(t *testing.T) {
	t.Setenv(Prefix+"_AUTH_API_KEY", "from-env")
	t.Setenv(Prefix+"_PROXY_AUTHORIZER", "read_only")

	cfg := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(cfg, []byte(`
auth:
  username: from-file
  refresh_interval: 30s
proxy:
  keys: [alpha, beta]
relay:
  enabled: true
`), 0o600))

	v := parseSettings(t,
		"--config", cfg,
		"--listen_address", "127.0.0.1:9000",
		"--auth.endpoint", "uk")

	require.Equal(t, "127.0.0.1:9000", v.GetString(cfgListenAddress))
	require.Equal(t, "uk", v.GetString(cfgAuthEndpoint))
	require.Equal(t, "from-file", v.GetString(cfgAuthUsername))
	require.Equal(t, "from-env", v.GetString(cfgAuthAPIKey))
	require.Equal(t, 30*time.Second, v.GetDuration(cfgAuthRefresh))
	require.Equal(t, []string{"alpha", "beta"}, v.GetStringSlice(cfgProxyKeys))
	require.Equal(t, "read_only", v.GetString(cfgProxyAuthorizer))
	require.True(t, v.GetBool(cfgRelayEnabled))
}
