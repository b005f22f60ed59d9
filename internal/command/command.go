package command

import (
	"context"
	"fmt"
	"strings"
)

// ReplyFunc sends a single line of text back to wherever the command came
// from.
type ReplyFunc func(text string) error

// Caller describes who issued a command. Identity and membership are fetched
// by the gateway before dispatch, so guards stay pure predicates.
type Caller struct {
	ID         int64
	Username   string
	Admin      bool
	Registered bool
}

// Invocation carries everything a handler gets: the arguments after the
// command name, the caller, and a reply channel.
type Invocation struct {
	Args   []string
	Caller Caller
	Reply  ReplyFunc
}

// HandlerFunc runs a command after all guards passed.
type HandlerFunc func(ctx context.Context, inv *Invocation) error

const unbounded = -1

// Command is a declarative command descriptor: a name, guard settings and a
// handler. Build one with New and the chained setters, then hand it to
// Router.Register.
type Command struct {
	name        string
	description string
	argNames    []string

	minArgs int
	maxArgs int

	adminOnly  bool
	registered bool
	mutating   bool

	handler HandlerFunc
}

// New starts a descriptor with no guards: any number of arguments, open to
// everyone, allowed while frozen.
func New(name, description string) *Command {
	return &Command{name: name, description: description, maxArgs: unbounded}
}

// Name returns the token the command dispatches on.
func (c *Command) Name() string { return c.name }

// Args names the arguments for help text.
func (c *Command) Args(names ...string) *Command {
	c.argNames = names
	return c
}

// RequireAdmin restricts the command to configured admins.
func (c *Command) RequireAdmin() *Command {
	c.adminOnly = true
	return c
}

// RequireRegistered restricts the command to registered players.
func (c *Command) RequireRegistered() *Command {
	c.registered = true
	return c
}

// Mutating marks the command as blocked while the system is frozen.
func (c *Command) Mutating() *Command {
	c.mutating = true
	return c
}

// ExactArgs intersects the arity interval with [n, n].
func (c *Command) ExactArgs(n int) *Command {
	return c.MinArgs(n).MaxArgs(n)
}

// MinArgs intersects the arity interval with [n, inf).
func (c *Command) MinArgs(n int) *Command {
	if n > c.minArgs {
		c.minArgs = n
	}
	return c
}

// MaxArgs intersects the arity interval with [0, n].
func (c *Command) MaxArgs(n int) *Command {
	if c.maxArgs == unbounded || n < c.maxArgs {
		c.maxArgs = n
	}
	return c
}

// Handle sets the handler.
func (c *Command) Handle(fn HandlerFunc) *Command {
	c.handler = fn
	return c
}

// validate reports configuration errors: these are programming mistakes
// detected at registration, not runtime failures.
func (c *Command) validate() error {
	if c.name == "" {
		return fmt.Errorf("command has no name")
	}
	if c.handler == nil {
		return fmt.Errorf("command %q has no handler", c.name)
	}
	if c.maxArgs != unbounded && c.minArgs > c.maxArgs {
		return fmt.Errorf("command %q has an empty arity interval [%d, %d]", c.name, c.minArgs, c.maxArgs)
	}
	return nil
}

// checkArity raises InvalidArgumentCount naming the violated bound.
func (c *Command) checkArity(args []string) error {
	n := len(args)
	switch {
	case c.minArgs == c.maxArgs && n != c.minArgs:
		return fmt.Errorf("%w: expected exactly %d, got %d", ErrInvalidArgumentCount, c.minArgs, n)
	case n < c.minArgs:
		return fmt.Errorf("%w: expected at least %d, got %d", ErrInvalidArgumentCount, c.minArgs, n)
	case c.maxArgs != unbounded && n > c.maxArgs:
		return fmt.Errorf("%w: expected at most %d, got %d", ErrInvalidArgumentCount, c.maxArgs, n)
	}
	return nil
}

// Usage renders the command with its argument names, e.g.
// "create <bet> <map> <tribe>".
func (c *Command) Usage() string {
	var b strings.Builder
	b.WriteString(c.name)
	for _, arg := range c.argNames {
		b.WriteString(" <")
		b.WriteString(arg)
		b.WriteString(">")
	}
	return b.String()
}
