// Package duel parses the agentduel command flags and validates agent
// modules against the lifecycle contract.
package duel

import (
	"context"
	"errors"
	"flag"
	"log"

	"github.com/agentduel/agents/internal/loader"
	entrypoint "github.com/agentduel/agents/internal/platform/cmd"
)

// Config holds agentduel command configuration.
type Config struct {
	Agent string `env:"AGENTDUEL_AGENT"`
	Game  string `env:"AGENTDUEL_GAME"`
	Peek  bool   `env:"AGENTDUEL_PEEK"`
}

// ParseConfig parses environment and flags into a Config.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	var cfg Config
	if err := entrypoint.ParseConfig(&cfg); err != nil {
		return Config{}, err
	}
	fs.StringVar(&cfg.Agent, "agent", cfg.Agent, "Path to the agent Lua module")
	fs.StringVar(&cfg.Game, "game", cfg.Game, "Game the agent is expected to play")
	fs.BoolVar(&cfg.Peek, "peek", cfg.Peek, "Only report the agent's declared game tag, without instantiating it")
	if err := entrypoint.ParseArgs(fs, args); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Run validates the configured agent module. With -peek it reports the
// declared game tag without instantiating the module; otherwise it performs
// a full load, surfacing the same errors a match host would.
func Run(ctx context.Context, cfg Config) error {
	return entrypoint.RunWithTelemetry(ctx, entrypoint.ServiceDuel, func(context.Context) error {
		if cfg.Agent == "" {
			return errors.New("an agent file is required (-agent)")
		}
		if cfg.Peek {
			tag, ok := loader.PeekGameTag(cfg.Agent)
			if !ok {
				log.Printf("%s declares no game tag (plays any game)", cfg.Agent)
				return nil
			}
			log.Printf("%s declares game %q", cfg.Agent, tag)
			return nil
		}
		handle, err := loader.Load(cfg.Agent, cfg.Game)
		if err != nil {
			return err
		}
		if tag := handle.GameTag(); tag != "" {
			log.Printf("%s is a valid agent for game %q", cfg.Agent, tag)
		} else {
			log.Printf("%s is a valid agent for any game", cfg.Agent)
		}
		return nil
	})
}
