package stream

import (
	"context"

	"github.com/lyrebird-bot/lyrebird/cmd/worker/queue"
)

// Driver opens the streaming transport for one voice channel. The chat
// network's audio protocol lives behind this interface; the worker only
// decides what to stream and when.
type Driver interface {
	Connect(ctx context.Context, guild, channel uint64) (Conn, error)
}

// Conn is one session's live transport. It drives the session's queue as its
// player and is closed when the session is left or drained.
type Conn interface {
	queue.Player
	Close() error
}
