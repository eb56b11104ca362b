package main

import (
	"github.com/cloudfiles/cloudfiles-http-gw/logger"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

func newLogger(v *viper.Viper) (*zap.Logger, zap.AtomicLevel) {
	options := []logger.Option{
		logger.WithLevel(v.GetString(cfgLoggerLevel)),
		logger.WithTraceLevel(v.GetString(cfgLoggerTraceLevel)),
		logger.WithFormat(v.GetString(cfgLoggerFormat)),
		logger.WithSampling(
			v.GetInt(cfgLoggerSamplingInitial),
			v.GetInt(cfgLoggerSamplingThereafter)),
	}

	if v.GetBool(cfgLoggerNoCaller) {
		options = append(options, logger.WithoutCaller())
	}

	if !v.GetBool(cfgLoggerNoDisclaimer) {
		options = append(options, logger.WithFields(
			zap.String("app_name", v.GetString(cfgAppName)),
			zap.String("app_version", v.GetString(cfgAppVersion))))
	}

	l, lvl, err := logger.New(options...)
	if err != nil {
		panic(err)
	}

	return l, lvl
}
