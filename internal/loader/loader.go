// Package loader resolves an agent source file to a validated, instantiated
// agent handle. Agent modules are Lua files evaluated in an isolated
// interpreter state, so a loaded module can never collide with the host's
// own symbols or with another concurrently loaded agent.
package loader

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	lua "github.com/Shopify/go-lua"
)

const (
	candidateGlobal = "Agent"
	baseGlobal      = "BaseAgent"
	tagField        = "game"
	turnFunction    = "on_turn"

	registryCandidate = "agentduel.candidate"
	registryInstance  = "agentduel.instance"
)

// Load failure kinds. Every failed load wraps exactly one of these.
var (
	// ErrNotFound indicates the source reference does not resolve to a file.
	ErrNotFound = errors.New("agent file not found")
	// ErrInvalidFormat indicates the file is not a parseable Lua module.
	ErrInvalidFormat = errors.New("agent file is not a valid Lua module")
	// ErrExecutionFailure indicates evaluating or instantiating the module
	// raised an unexpected fault.
	ErrExecutionFailure = errors.New("agent module failed to run")
	// ErrContractViolation indicates no candidate in the module exposes the
	// mandatory on_turn function.
	ErrContractViolation = errors.New("agent does not satisfy the lifecycle contract")
	// ErrGameMismatch indicates the agent declares a game tag different from
	// the requested game.
	ErrGameMismatch = errors.New("agent declares a different game")
)

// LoadError reports why an agent module could not be loaded. It wraps one of
// the failure kinds above, so callers can branch with errors.Is.
type LoadError struct {
	Path string
	Err  error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("load agent %s: %v", e.Path, e.Err)
}

func (e *LoadError) Unwrap() error { return e.Err }

// Load evaluates the agent module at path, validates it against the lifecycle
// contract and returns a ready-to-use handle. When expectedGame is non-empty
// and the module declares a game tag, the two must match; the check runs
// before instantiation so a mismatched module has no constructor side
// effects. A load either fully succeeds or fails with exactly one LoadError.
func Load(path string, expectedGame string) (*Handle, error) {
	l, err := evaluate(path)
	if err != nil {
		return nil, &LoadError{Path: path, Err: err}
	}
	tag := readTag(l)
	if expectedGame != "" && tag != "" && tag != expectedGame {
		return nil, &LoadError{Path: path, Err: fmt.Errorf(
			"%w: agent plays %q but the match is %q; use an agent written for %q",
			ErrGameMismatch, tag, expectedGame, expectedGame)}
	}
	if err := instantiate(l); err != nil {
		return nil, &LoadError{Path: path, Err: err}
	}
	return &Handle{state: l, path: path, gameTag: tag}, nil
}

// PeekGameTag answers what game the module at path claims to play without
// instantiating it. The check is advisory: any fault is swallowed and
// reported as absent (ok false), never raised.
func PeekGameTag(path string) (tag string, ok bool) {
	l, err := evaluate(path)
	if err != nil {
		return "", false
	}
	tag = readTag(l)
	return tag, tag != ""
}

// evaluate opens a fresh interpreter, registers the BaseAgent prototype,
// runs the module and leaves the chosen candidate table in the registry.
func evaluate(path string) (*lua.State, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNotFound, err)
	}
	info, err := os.Stat(abs)
	if err != nil || info.IsDir() {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, abs)
	}
	if filepath.Ext(abs) != ".lua" {
		return nil, fmt.Errorf("%w: %s does not have a .lua extension", ErrInvalidFormat, abs)
	}

	l := lua.NewState()
	lua.OpenLibraries(l)
	if err := registerBaseAgent(l); err != nil {
		return nil, fmt.Errorf("%w: register base prototype: %v", ErrExecutionFailure, err)
	}
	if err := lua.LoadFile(l, abs, ""); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidFormat, err)
	}
	if err := l.ProtectedCall(0, 1, 0); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrExecutionFailure, err)
	}
	if !selectCandidate(l) {
		return nil, fmt.Errorf(
			"%w: no table with an %q function; declare a table named %q, or return it from the module",
			ErrContractViolation, turnFunction, candidateGlobal)
	}
	return l, nil
}

// selectCandidate picks the agent table and stores it in the registry.
// Explicit declarations win: the module's return value first, then the Agent
// global. Scanning the remaining globals is a documented fallback only, in
// sorted name order so repeated loads of a module with several candidate
// tables always pick the same one. Expects the chunk's return value on top
// of the stack and consumes it.
func selectCandidate(l *lua.State) bool {
	if l.TypeOf(-1) == lua.TypeTable {
		l.SetField(lua.RegistryIndex, registryCandidate)
		return true
	}
	l.Pop(1)
	l.Global(candidateGlobal)
	if l.TypeOf(-1) == lua.TypeTable {
		l.SetField(lua.RegistryIndex, registryCandidate)
		return true
	}
	l.Pop(1)
	return scanForCandidate(l)
}

// scanForCandidate walks the module's top-level definitions for the first
// table structurally satisfying the contract, excluding the BaseAgent
// prototype and the globals table itself.
func scanForCandidate(l *lua.State) bool {
	l.RawGetInt(lua.RegistryIndex, lua.RegistryIndexGlobals)
	globals := l.Top()

	var names []string
	l.PushNil()
	for l.Next(globals) {
		if l.TypeOf(-2) == lua.TypeString && l.TypeOf(-1) == lua.TypeTable {
			if name, ok := l.ToString(-2); ok && name != baseGlobal && name != "_G" {
				names = append(names, name)
			}
		}
		l.Pop(1)
	}
	sort.Strings(names)

	for _, name := range names {
		l.Field(globals, name)
		if isAgentTable(l) {
			l.SetField(lua.RegistryIndex, registryCandidate)
			l.Pop(1)
			return true
		}
		l.Pop(1)
	}
	l.Pop(1)
	return false
}

// isAgentTable reports whether the table on top of the stack exposes an
// on_turn function and is not the BaseAgent prototype. The lookup honors
// metatables, so tables extended from BaseAgent qualify.
func isAgentTable(l *lua.State) bool {
	l.Global(baseGlobal)
	same := l.RawEqual(-1, -2)
	l.Pop(1)
	if same {
		return false
	}
	l.Field(-1, turnFunction)
	isFunc := l.TypeOf(-1) == lua.TypeFunction
	l.Pop(1)
	return isFunc
}

// readTag reads the candidate's declared game tag. Absent or non-string tags
// read as empty. The tag is read from the candidate, not the instance, so it
// is available without running any agent code.
func readTag(l *lua.State) string {
	l.Field(lua.RegistryIndex, registryCandidate)
	l.Field(-1, tagField)
	tag := ""
	if l.TypeOf(-1) == lua.TypeString {
		tag, _ = l.ToString(-1)
	}
	l.Pop(2)
	return tag
}

// instantiate turns the candidate into the agent instance. A candidate with
// a new function is constructed through it; otherwise the candidate table is
// the instance. The on_turn re-check runs on the instance because a
// constructor can return a table that dropped the function the candidate
// advertised.
func instantiate(l *lua.State) error {
	l.Field(lua.RegistryIndex, registryCandidate)
	candidate := l.Top()

	l.Field(candidate, "new")
	if l.TypeOf(-1) == lua.TypeFunction {
		l.PushValue(candidate)
		if err := l.ProtectedCall(1, 1, 0); err != nil {
			l.SetTop(candidate - 1)
			return fmt.Errorf("%w: constructor: %v", ErrExecutionFailure, err)
		}
		if l.TypeOf(-1) != lua.TypeTable {
			l.SetTop(candidate - 1)
			return fmt.Errorf("%w: constructor must return a table", ErrExecutionFailure)
		}
		l.SetField(lua.RegistryIndex, registryInstance)
		l.Pop(1)
	} else {
		l.Pop(1)
		l.SetField(lua.RegistryIndex, registryInstance)
	}

	l.Field(lua.RegistryIndex, registryInstance)
	l.Field(-1, turnFunction)
	callable := l.TypeOf(-1) == lua.TypeFunction
	l.Pop(2)
	if !callable {
		return fmt.Errorf("%w: the agent instance has no callable %q function", ErrContractViolation, turnFunction)
	}
	return nil
}

// baseAgentSource defines the BaseAgent prototype agent modules may extend.
// Every lifecycle hook defaults to a no-op; on_turn errors until the agent
// provides its own.
const baseAgentSource = `
local BaseAgent = {}
BaseAgent.__index = BaseAgent

function BaseAgent.extend(tbl)
  return setmetatable(tbl or {}, BaseAgent)
end

function BaseAgent.on_match_start(self, info) end
function BaseAgent.on_round_start(self, info) end
function BaseAgent.on_turn(self, state)
  error("agent must implement on_turn")
end
function BaseAgent.on_round_end(self, result) end

_G.BaseAgent = BaseAgent
`

func registerBaseAgent(l *lua.State) error {
	if err := lua.LoadBuffer(l, baseAgentSource, "=BaseAgent", ""); err != nil {
		return err
	}
	return l.ProtectedCall(0, 0, 0)
}
