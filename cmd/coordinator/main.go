// Package main starts the terminal emergency coordinator and handles
// termination.
//
// The process owns threat state, hazard zones and evacuation routes for one
// facility; detection, alert delivery and responder desks stay external and
// reach it over HTTP, NATS and Redis.
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	coordinatorcmd "github.com/louisbranch/egress/internal/cmd/coordinator"
)

func main() {
	cfg, err := coordinatorcmd.ParseConfig(flag.CommandLine, os.Args[1:])
	if err != nil {
		log.Fatalf("parse flags: %v", err)
	}
	log.SetPrefix("[COORDINATOR] ")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := coordinatorcmd.Run(ctx, cfg); err != nil {
		log.Fatalf("failed to serve: %v", err)
	}
}
