// ndb records CircuitPython boards and other network devices in a local
// SQLite registry backed by a content-addressed store.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/nerrad567/ndb/internal/cli"
)

// Version information, set at build time via ldflags:
//
//	go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:])
	cancel()
	os.Exit(code)
}

func run(ctx context.Context, args []string) int {
	return cli.Execute(ctx, versionString(), args, os.Stdin, os.Stdout, os.Stderr)
}

func versionString() string {
	if commit == "unknown" {
		return version
	}
	return version + " (" + commit + ", " + date + ")"
}
