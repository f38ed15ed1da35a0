// Package main starts the worship session synchronization service and
// handles termination.
package main

import (
	"context"
	"flag"
	"log"
	"os"

	worshipcmd "github.com/louisbranch/hymnal.space/internal/cmd/worship"
	entrypoint "github.com/louisbranch/hymnal.space/internal/platform/cmd"
)

func main() {
	cfg, err := worshipcmd.ParseConfig(flag.CommandLine, os.Args[1:])
	if err != nil {
		log.Fatalf("parse flags: %v", err)
	}
	log.SetPrefix("[WORSHIP] ")

	ctx, stop := entrypoint.SignalContext(context.Background())
	defer stop()

	if err := worshipcmd.Run(ctx, cfg); err != nil {
		log.Fatalf("failed to serve: %v", err)
	}
}
