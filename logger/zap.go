package logger

import (
	"fmt"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Entry encodings.
const (
	FormatJSON    = "json"
	FormatConsole = "console"
)

type (
	// Option represents logger option setter.
	Option func(o *options)

	options struct {
		zap      []zap.Option
		fields   []zap.Field
		sampling zap.SamplingConfig

		format     string
		level      string
		traceLevel string
		output     []string
		caller     bool
	}
)

// Level parses lvl case-insensitively, falling back to info for unknown
// names.
func Level(lvl string) zapcore.Level {
	var l zapcore.Level
	if err := l.UnmarshalText([]byte(strings.ToLower(lvl))); err != nil {
		return zapcore.InfoLevel
	}
	return l
}

func defaults() *options {
	return &options{
		sampling:   zap.SamplingConfig{Initial: 100, Thereafter: 100},
		format:     FormatConsole,
		level:      "debug",
		traceLevel: "fatal",
		output:     []string{"stdout"},
		caller:     true,
	}
}

// New returns a zap.Logger built from opts together with its level, which
// can be changed at runtime.
func New(opts ...Option) (*zap.Logger, zap.AtomicLevel, error) {
	o := defaults()
	for _, opt := range opts {
		opt(o)
	}

	lvl := zap.NewAtomicLevelAt(Level(o.level))

	// stack traces only from the trace level up
	zapOpts := append(o.zap, zap.AddStacktrace(Level(o.traceLevel)))

	l, err := o.config(lvl).Build(zapOpts...)
	if err != nil {
		return nil, lvl, fmt.Errorf("could not build logger: %w", err)
	}

	return l.With(o.fields...), lvl, nil
}

func (o *options) config(lvl zap.AtomicLevel) zap.Config {
	c := zap.NewProductionConfig()
	c.Level = lvl
	c.OutputPaths = o.output
	c.ErrorOutputPaths = o.output
	c.DisableCaller = !o.caller
	c.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	c.Encoding = FormatJSON
	if strings.EqualFold(o.format, FormatConsole) {
		c.Encoding = FormatConsole
	}

	c.Sampling = nil
	if o.sampling.Initial > 0 && o.sampling.Thereafter > 0 {
		sampling := o.sampling
		c.Sampling = &sampling
	}

	return c
}
