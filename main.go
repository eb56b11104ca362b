package main

import (
	"context"
	"os/signal"
	"syscall"
)

// Prefix is a prefix used for environment variables containing gateway
// configuration.
const Prefix = "CF_GW"

var (
	// Version is gateway version.
	Version = "dev"
	// Build is the commit the gateway was built from.
	Build = "now"
)

func main() {
	globalContext, _ := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	v := settings()
	logger, atomicLevel := newLogger(v)

	application := newApp(globalContext, WithLogger(logger, atomicLevel), WithConfig(v))
	go application.Worker(globalContext)
	go application.Serve(globalContext)
	application.Wait()
}
