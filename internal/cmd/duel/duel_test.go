package duel

import (
	"context"
	"errors"
	"flag"
	"path/filepath"
	"testing"

	"github.com/agentduel/agents/internal/loader"
)

func fixture(name string) string {
	return filepath.Join("..", "..", "loader", "testdata", name)
}

func TestParseConfigReadsEnvAndFlags(t *testing.T) {
	t.Setenv("AGENTDUEL_AGENT", "env.lua")
	t.Setenv("AGENTDUEL_GAME", "liars-dice")

	fs := flag.NewFlagSet("duel", flag.ContinueOnError)
	cfg, err := ParseConfig(fs, []string{"-agent", "flag.lua", "-peek"})
	if err != nil {
		t.Fatalf("parse config: %v", err)
	}
	if cfg.Agent != "flag.lua" {
		t.Fatalf("expected flag value for agent, got %q", cfg.Agent)
	}
	if cfg.Game != "liars-dice" {
		t.Fatalf("expected env value for game, got %q", cfg.Game)
	}
	if !cfg.Peek {
		t.Fatal("expected peek to be enabled")
	}
}

func TestRunRequiresAgent(t *testing.T) {
	t.Setenv("AGENTDUEL_OTEL_ENDPOINT", "")

	if err := Run(context.Background(), Config{}); err == nil {
		t.Fatal("expected missing agent error")
	}
}

func TestRunValidatesAgent(t *testing.T) {
	t.Setenv("AGENTDUEL_OTEL_ENDPOINT", "")

	cfg := Config{Agent: fixture("tagged.lua"), Game: "liars-dice"}
	if err := Run(context.Background(), cfg); err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
}

func TestRunSurfacesLoadErrors(t *testing.T) {
	t.Setenv("AGENTDUEL_OTEL_ENDPOINT", "")

	cfg := Config{Agent: fixture("tagged.lua"), Game: "coin-flip"}
	err := Run(context.Background(), cfg)
	if !errors.Is(err, loader.ErrGameMismatch) {
		t.Fatalf("expected ErrGameMismatch, got %v", err)
	}
}

func TestRunPeekSkipsInstantiation(t *testing.T) {
	t.Setenv("AGENTDUEL_OTEL_ENDPOINT", "")

	// Peek must succeed even though the module's constructor explodes.
	cfg := Config{Agent: fixture("bad_constructor.lua"), Peek: true}
	if err := Run(context.Background(), cfg); err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
}
