package stream

import (
	"context"
	"time"

	"github.com/lyrebird-bot/lyrebird/cmd/worker/track"
)

// NewNullDriver returns a driver that accepts every connection and plays
// nothing. Tracks never finish on their own; only skip/clear advance the
// queue. Used for audio-less runs.
func NewNullDriver() Driver {
	return nullDriver{}
}

type nullDriver struct{}

func (nullDriver) Connect(ctx context.Context, guild, channel uint64) (Conn, error) {
	return nullConn{}, nil
}

type nullConn struct{}

func (nullConn) Play(t *track.Track, onDone func()) error { return nil }
func (nullConn) StopTrack(t *track.Track) error           { return nil }
func (nullConn) Pause() error                             { return nil }
func (nullConn) Resume() error                            { return nil }
func (nullConn) Stop() error                              { return nil }
func (nullConn) Position() time.Duration                  { return 0 }
func (nullConn) Close() error                             { return nil }
