//go:build (linux && cgo) || windows || darwin

package stream

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/gopxl/beep/v2"
	"github.com/gopxl/beep/v2/mp3"
	"github.com/gopxl/beep/v2/speaker"
	"github.com/lyrebird-bot/lyrebird/cmd/worker/track"
)

// AudioAvailable indicates whether local audio playback is supported in this
// build.
const AudioAvailable = true

// NewLocalDriver returns a driver that streams to the local speakers. It
// stands in for a real voice transport during development and local runs.
func NewLocalDriver() Driver {
	return &localDriver{}
}

type localDriver struct {
	initOnce sync.Once
	initErr  error
}

const localSampleRate = beep.SampleRate(44100)

func (d *localDriver) Connect(ctx context.Context, guild, channel uint64) (Conn, error) {
	d.initOnce.Do(func() {
		d.initErr = speaker.Init(localSampleRate, localSampleRate.N(time.Second/10))
	})
	if d.initErr != nil {
		return nil, fmt.Errorf("failed to init audio output: %w", d.initErr)
	}
	slog.Info("connected local audio output", "guild", guild, "channel", channel)
	return &localConn{}, nil
}

// localConn plays one track at a time through the speakers.
type localConn struct {
	mu       sync.Mutex
	current  *track.Track
	ctrl     *beep.Ctrl
	streamer beep.StreamSeekCloser
	format   beep.Format
	tempDir  string
}

func (c *localConn) Play(t *track.Track, onDone func()) error {
	path, err := Fetch(context.Background(), t.Source)
	if err != nil {
		t.MarkDead()
		return err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.MarkDead()
		return fmt.Errorf("failed to read audio file: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.stopLocked()

	if t.Source.Kind != track.KindFile {
		// Fetched file, clean it up once the next track replaces it.
		c.tempDir = filepath.Dir(path)
	}

	streamer, format, err := mp3.Decode(nopCloser{bytes.NewReader(data)})
	if err != nil {
		t.MarkDead()
		return fmt.Errorf("failed to decode audio: %w", err)
	}

	c.current = t
	c.streamer = streamer
	c.format = format

	resampled := beep.Resample(4, format.SampleRate, localSampleRate, streamer)
	c.ctrl = &beep.Ctrl{Streamer: resampled}

	speaker.Play(beep.Seq(c.ctrl, beep.Callback(func() {
		// Run in a fresh goroutine: the queue will call back into Play.
		go onDone()
	})))
	return nil
}

func (c *localConn) StopTrack(t *track.Track) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.current == t {
		c.stopLocked()
	}
	return nil
}

func (c *localConn) Pause() error {
	c.setPaused(true)
	return nil
}

func (c *localConn) Resume() error {
	c.setPaused(false)
	return nil
}

func (c *localConn) setPaused(paused bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.ctrl != nil {
		speaker.Lock()
		c.ctrl.Paused = paused
		speaker.Unlock()
	}
}

func (c *localConn) Stop() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stopLocked()
	return nil
}

func (c *localConn) stopLocked() {
	if c.ctrl != nil {
		// Pausing alone leaves the decoded stream resident in the mixer.
		speaker.Clear()
	}
	if c.streamer != nil {
		_ = c.streamer.Close()
		c.streamer = nil
	}
	c.ctrl = nil
	c.current = nil
	if c.tempDir != "" {
		_ = os.RemoveAll(c.tempDir)
		c.tempDir = ""
	}
}

func (c *localConn) Position() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.streamer == nil {
		return 0
	}
	speaker.Lock()
	pos := c.streamer.Position()
	speaker.Unlock()
	return c.format.SampleRate.D(pos)
}

func (c *localConn) Close() error {
	return c.Stop()
}

type nopCloser struct {
	*bytes.Reader
}

func (nopCloser) Close() error { return nil }
