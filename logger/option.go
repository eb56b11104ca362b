package logger

import "go.uber.org/zap"

// WithSampling logs the first initial entries of each message per second,
// then every thereafter-th. Zero disables sampling.
func WithSampling(initial, thereafter int) Option {
	return func(o *options) {
		o.sampling.Initial = initial
		o.sampling.Thereafter = thereafter
	}
}

// WithFormat selects FormatConsole or FormatJSON.
func WithFormat(v string) Option { return func(o *options) { o.format = v } }

func WithLevel(v string) Option { return func(o *options) { o.level = v } }

func WithTraceLevel(v string) Option { return func(o *options) { o.traceLevel = v } }

func WithOutput(paths ...string) Option { return func(o *options) { o.output = paths } }

func WithoutCaller() Option { return func(o *options) { o.caller = false } }

// WithFields adds fields to every entry.
func WithFields(fields ...zap.Field) Option {
	return func(o *options) { o.fields = append(o.fields, fields...) }
}

func WithZapOptions(opts ...zap.Option) Option { return func(o *options) { o.zap = opts } }
