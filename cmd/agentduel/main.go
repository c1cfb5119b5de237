package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	duelcmd "github.com/agentduel/agents/internal/cmd/duel"
)

func main() {
	cfg, err := duelcmd.ParseConfig(flag.CommandLine, os.Args[1:])
	if err != nil {
		log.Fatalf("parse flags: %v", err)
	}
	log.SetPrefix("[DUEL] ")
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := duelcmd.Run(ctx, cfg); err != nil {
		log.Fatalf("agent validation failed: %v", err)
	}
}
