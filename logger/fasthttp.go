package logger

import (
	"fmt"

	"github.com/valyala/fasthttp"
	"go.uber.org/zap"
)

type printfLogger struct {
	log *zap.Logger
}

// Fasthttp adapts l to the logger of fasthttp servers and clients. Their
// messages report broken connections, so they are logged at warn level.
func Fasthttp(l *zap.Logger) fasthttp.Logger {
	return &printfLogger{log: l.WithOptions(zap.AddCallerSkip(1))}
}

func (p *printfLogger) Printf(format string, args ...interface{}) {
	p.log.Warn(fmt.Sprintf(format, args...), zap.String("component", "fasthttp"))
}
