// Package main starts the live-event relay service and handles termination.
//
// The process is a transport adapter around room lifecycle and event
// fan-out; the broadcast-source protocol remains owned by the upstream
// bridge.
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	relaycmd "github.com/zuliantoe/TTSLiveChatRelay/internal/cmd/relay"
	"github.com/zuliantoe/TTSLiveChatRelay/internal/platform/config"
)

func main() {
	cfg, err := relaycmd.ParseConfig(flag.CommandLine, os.Args[1:])
	if err != nil {
		config.Exitf("parse flags: %v", err)
	}
	log.SetPrefix("[RELAY] ")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := relaycmd.Run(ctx, cfg); err != nil {
		log.Fatalf("failed to serve: %v", err)
	}
}
