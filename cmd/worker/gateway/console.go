package gateway

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
)

// Console is a minimal line-oriented gateway adapter: one command per line,
// whitespace-separated arguments, replies printed back. It lets the worker
// run end-to-end without a chat network attached.
type Console struct {
	in         io.Reader
	out        io.Writer
	dispatcher *Dispatcher

	// Fixed identity for every invocation; a real gateway would resolve
	// these per message.
	user    uint64
	guild   uint64
	channel uint64
}

func NewConsole(in io.Reader, out io.Writer, d *Dispatcher, user, guild, channel uint64) *Console {
	return &Console{
		in:         in,
		out:        out,
		dispatcher: d,
		user:       user,
		guild:      guild,
		channel:    channel,
	}
}

// Run reads commands until EOF or ctx cancellation.
func (c *Console) Run(ctx context.Context) error {
	sc := bufio.NewScanner(c.in)
	for sc.Scan() {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		fields := strings.Fields(sc.Text())
		if len(fields) == 0 {
			continue
		}
		inv := Invocation{
			User:    c.user,
			Guild:   c.guild,
			Channel: c.channel,
			Args:    fields[1:],
		}
		reply, ok := c.dispatcher.Dispatch(ctx, fields[0], inv)
		if !ok {
			reply = fmt.Sprintf("unknown command %q", fields[0])
		}
		if reply != "" {
			fmt.Fprintln(c.out, reply)
		}
	}
	return sc.Err()
}
