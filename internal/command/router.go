package command

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
)

// Router maps the first token of an input line to a registered command and
// evaluates the command's guards in a fixed order (admin, registration,
// arity, freeze) before running its handler. The first failing guard aborts
// the dispatch; handlers never see an invocation that failed a guard.
type Router struct {
	mu       sync.RWMutex
	commands map[string]*Command
	frozen   atomic.Bool
}

// NewRouter creates an empty router.
func NewRouter() *Router {
	return &Router{commands: make(map[string]*Command)}
}

// Register adds a command to the dispatch table. A duplicate name or an
// empty arity interval is a configuration error.
func (r *Router) Register(cmd *Command) error {
	if err := cmd.validate(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.commands[cmd.name]; exists {
		return fmt.Errorf("command %q registered twice", cmd.name)
	}
	r.commands[cmd.name] = cmd
	return nil
}

// MustRegister registers commands at wiring time, panicking on configuration
// errors so a broken table can never start serving.
func (r *Router) MustRegister(cmds ...*Command) {
	for _, cmd := range cmds {
		if err := r.Register(cmd); err != nil {
			panic(err)
		}
	}
}

// SetFrozen flips the global freeze flag. While frozen, mutating commands
// are rejected before their handler runs; read-only commands keep working.
func (r *Router) SetFrozen(frozen bool) {
	r.frozen.Store(frozen)
}

// Frozen reports the freeze flag.
func (r *Router) Frozen() bool {
	return r.frozen.Load()
}

// Dispatch tokenizes a line and evaluates it as a command.
func (r *Router) Dispatch(ctx context.Context, line string, caller Caller, reply ReplyFunc) error {
	args := Tokenize(line)
	if len(args) == 0 {
		return fmt.Errorf("%w: empty command", ErrInvalidArgumentCount)
	}
	return r.Evaluate(ctx, args, caller, reply)
}

// Evaluate runs an already-tokenized argument vector: args[0] is the command
// name, the rest are its arguments.
func (r *Router) Evaluate(ctx context.Context, args []string, caller Caller, reply ReplyFunc) error {
	r.mu.RLock()
	cmd, ok := r.commands[args[0]]
	r.mu.RUnlock()
	if !ok {
		return ErrUnknownCommand
	}

	// Guard order is part of the contract: an unregistered non-admin calling
	// an admin command hears about permissions, not registration.
	if cmd.adminOnly && !caller.Admin {
		return ErrPermissionDenied
	}
	if cmd.registered && !caller.Registered {
		return ErrRegistrationRequired
	}
	if err := cmd.checkArity(args[1:]); err != nil {
		return err
	}
	if cmd.mutating && !caller.Admin && r.frozen.Load() {
		return ErrSystemFrozen
	}

	return cmd.handler(ctx, &Invocation{Args: args[1:], Caller: caller, Reply: reply})
}

// Commands returns the registered commands sorted by name.
func (r *Router) Commands() []*Command {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Command, 0, len(r.commands))
	for _, cmd := range r.commands {
		out = append(out, cmd)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].name < out[j].name })
	return out
}
