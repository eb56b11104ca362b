package main

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/cloudfiles/cloudfiles-http-gw/cloudfiles"
	"github.com/cloudfiles/cloudfiles-http-gw/relay"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

type empty int

const (
	devNull = empty(0)

	defaultRequestTimeout  = cloudfiles.DefaultTimeout
	defaultConnectTimeout  = 10 * time.Second
	defaultRefreshInterval = time.Minute

	defaultMaxRequestBodySize = 256 << 20
)

const (
	cfgConfig = "config"

	cfgListenAddress  = "listen_address"
	cfgRequestTimeout = "request_timeout"
	cfgConnectTimeout = "connect_timeout"

	// auth
	cfgAuthEndpoint   = "auth.endpoint"
	cfgAuthUsername   = "auth.username"
	cfgAuthAPIKey     = "auth.api_key"
	cfgAuthServiceNet = "auth.servicenet"
	cfgAuthValidity   = "auth.validity"
	cfgAuthRefresh    = "auth.refresh_interval"

	// proxy
	cfgProxyAuthorizer = "proxy.authorizer"
	cfgProxyKeys       = "proxy.keys"

	// relay
	cfgRelayEnabled       = "relay.enabled"
	cfgRelayAddress       = "relay.listen_address"
	cfgRelayHeaderTimeout = "relay.header_timeout"

	// web
	cfgWebReadBufferSize     = "web.read_buffer_size"
	cfgWebWriteBufferSize    = "web.write_buffer_size"
	cfgWebReadTimeout        = "web.read_timeout"
	cfgWebWriteTimeout       = "web.write_timeout"
	cfgWebMaxRequestBodySize = "web.max_request_body_size"

	// logger
	cfgLoggerLevel              = "logger.level"
	cfgLoggerFormat             = "logger.format"
	cfgLoggerTraceLevel         = "logger.trace_level"
	cfgLoggerNoCaller           = "logger.no_caller"
	cfgLoggerNoDisclaimer       = "logger.no_disclaimer"
	cfgLoggerSamplingInitial    = "logger.sampling.initial"
	cfgLoggerSamplingThereafter = "logger.sampling.thereafter"

	cfgMetrics = "metrics"
	cfgPprof   = "pprof"

	cfgAppName    = "app.name"
	cfgAppVersion = "app.version"
)

// Authorizer names accepted by proxy.authorizer.
const (
	authorizerNone     = "none"
	authorizerReadOnly = "read_only"
	authorizerKey      = "key"
)

func (empty) Read([]byte) (int, error) { return 0, io.EOF }

type cliFlags struct {
	help    *bool
	version *bool
	config  *string
}

func newFlags() (*pflag.FlagSet, cliFlags) {
	flags := pflag.NewFlagSet("commandline", pflag.ExitOnError)
	flags.SortFlags = false

	cli := cliFlags{
		help:    flags.BoolP("help", "h", false, "show help"),
		version: flags.BoolP("version", "v", false, "show version"),
		config:  flags.StringP(cfgConfig, "c", "", "path to yaml config file"),
	}

	flags.Bool(cfgPprof, false, "enable pprof")
	flags.Bool(cfgMetrics, false, "enable prometheus")

	flags.String(cfgListenAddress, "0.0.0.0:8082", "HTTP gateway listen address")
	flags.Duration(cfgRequestTimeout, defaultRequestTimeout, "Cloud Files request timeout")
	flags.Duration(cfgConnectTimeout, defaultConnectTimeout, "Cloud Files connect timeout")

	flags.String(cfgAuthEndpoint, "us", `auth endpoint: "us", "uk" or an auth url`)
	flags.StringP(cfgAuthUsername, "u", "", "Cloud Files username")
	flags.Bool(cfgAuthServiceNet, false, "use the internal service network for storage requests")

	flags.String(cfgProxyAuthorizer, authorizerNone, `request authorizer: "none", "read_only" or "key"`)

	flags.Bool(cfgRelayEnabled, false, "enable the streaming upload relay")
	flags.String(cfgRelayAddress, "127.0.0.1:8083", "streaming upload relay listen address")

	return flags, cli
}

// newSettings binds parsed flags, environment and defaults.
func newSettings(flags *pflag.FlagSet) *viper.Viper {
	v := viper.New()
	v.AutomaticEnv()
	v.SetEnvPrefix(Prefix)
	v.SetConfigType("yaml")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// set prefers:
	v.Set(cfgAppName, "cloudfiles-http-gw")
	v.Set(cfgAppVersion, Version)

	// set defaults:

	// auth:
	v.SetDefault(cfgAuthValidity, cloudfiles.DefaultValidity)
	v.SetDefault(cfgAuthRefresh, defaultRefreshInterval)

	// proxy:
	v.SetDefault(cfgProxyKeys, []string{})

	// relay:
	v.SetDefault(cfgRelayHeaderTimeout, relay.DefaultHeaderTimeout)

	// logger:
	v.SetDefault(cfgLoggerLevel, "info")
	v.SetDefault(cfgLoggerFormat, "console")
	v.SetDefault(cfgLoggerTraceLevel, "fatal")
	v.SetDefault(cfgLoggerNoCaller, false)
	v.SetDefault(cfgLoggerNoDisclaimer, true)
	v.SetDefault(cfgLoggerSamplingInitial, 1000)
	v.SetDefault(cfgLoggerSamplingThereafter, 1000)

	// web-server:
	v.SetDefault(cfgWebReadBufferSize, 4096)
	v.SetDefault(cfgWebWriteBufferSize, 4096)
	v.SetDefault(cfgWebReadTimeout, time.Minute)
	v.SetDefault(cfgWebWriteTimeout, time.Minute)
	v.SetDefault(cfgWebMaxRequestBodySize, defaultMaxRequestBodySize)

	if err := v.BindPFlags(flags); err != nil {
		panic(err)
	}

	return v
}

func readConfig(v *viper.Viper, path string) error {
	if path == "" {
		return v.ReadConfig(devNull)
	}

	v.SetConfigFile(path)
	return v.ReadInConfig()
}

func settings() *viper.Viper {
	flags, cli := newFlags()
	if err := flags.Parse(os.Args); err != nil {
		panic(err)
	}

	switch {
	case *cli.help:
		fmt.Printf("Cloud Files HTTP Gateway %s (%s)\n", Version, Build)
		flags.PrintDefaults()
		os.Exit(0)
	case *cli.version:
		fmt.Printf("Cloud Files HTTP Gateway %s (%s)\n", Version, Build)
		os.Exit(0)
	}

	v := newSettings(flags)
	if err := readConfig(v, *cli.config); err != nil {
		panic(err)
	}

	return v
}
