package gateway

import "context"

// Invocation carries the context of one command from the chat gateway: who
// issued it, in which guild, and which voice channel they could be joined to
// (0 when the user has no resolvable voice channel).
type Invocation struct {
	User    uint64
	Guild   uint64
	Channel uint64
	Args    []string
}

// Handler runs one command and returns a short human-readable status.
type Handler func(ctx context.Context, inv Invocation) string

// Command pairs a name with its handler.
type Command struct {
	Name    string
	Help    string
	Handler Handler
}

// Dispatcher is the command table. It is constructed once at startup and
// handed to the gateway adapter; nothing mutates it afterwards.
type Dispatcher struct {
	commands map[string]Command
}

func NewDispatcher(cmds []Command) *Dispatcher {
	table := make(map[string]Command, len(cmds))
	for _, c := range cmds {
		table[c.Name] = c
	}
	return &Dispatcher{commands: table}
}

// Dispatch runs the named command, reporting whether it exists.
func (d *Dispatcher) Dispatch(ctx context.Context, name string, inv Invocation) (string, bool) {
	c, ok := d.commands[name]
	if !ok {
		return "", false
	}
	return c.Handler(ctx, inv), true
}
