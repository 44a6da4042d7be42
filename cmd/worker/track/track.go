package track

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Source kinds. A source must carry enough information for the streaming
// driver to resolve and play the track again after a restart.
const (
	KindResolve = "resolve" // URL or search query handed to the resolver
	KindFile    = "file"    // path to a local audio file
)

// Source describes where a track came from. It is the only part of a track
// that survives a restart.
type Source struct {
	Kind string `json:"kind"`
	Arg  string `json:"arg"`
}

func Resolve(arg string) Source { return Source{Kind: KindResolve, Arg: arg} }
func File(path string) Source   { return Source{Kind: KindFile, Arg: path} }

// Search builds a resolve source for a free-form search query.
func Search(query string) Source {
	return Source{Kind: KindResolve, Arg: "ytsearch1:" + query}
}

// Meta is the metadata cache attached to a track once resolution succeeds.
// It is display-only and intentionally dropped from restart snapshots.
type Meta struct {
	Title    string
	Artist   string
	Duration time.Duration
}

// Track is one playable unit in a queue. The source is immutable; the
// metadata cache is written at most once after resolution.
type Track struct {
	ID     string
	Source Source

	mu   sync.Mutex
	meta *Meta
	dead bool
	loop bool
}

func New(src Source) *Track {
	return &Track{ID: uuid.NewString(), Source: src}
}

// SetMeta attaches the metadata cache. The first write wins.
func (t *Track) SetMeta(m Meta) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.meta == nil {
		t.meta = &m
	}
}

// Meta returns the cached metadata, or nil if resolution has not completed.
func (t *Track) Meta() *Meta {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.meta
}

// MarkDead flags the track as stopped or errored. Dead tracks are excluded
// from restart snapshots.
func (t *Track) MarkDead() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.dead = true
}

func (t *Track) Alive() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return !t.dead
}

// SetLoop toggles loop mode for this track and returns the new state.
func (t *Track) SetLoop(enabled bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.loop = enabled
}

func (t *Track) Loop() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.loop
}

// Describe renders "artist - title" for status messages and queue listings.
func (t *Track) Describe() string {
	m := t.Meta()
	if m == nil {
		return t.Source.Arg
	}
	artist := m.Artist
	if artist == "" {
		artist = "unknown artist"
	}
	title := m.Title
	if title == "" {
		title = "unknown title"
	}
	return artist + " - " + title
}

// FormatDuration renders a duration as h:mm:ss, m:ss or Ns depending on size.
func FormatDuration(d time.Duration) string {
	secs := int64(d.Seconds())
	mins := secs / 60
	hours := mins / 60
	mins %= 60
	secs %= 60
	switch {
	case hours > 0:
		return fmt.Sprintf("%d:%02d:%02d", hours, mins, secs)
	case mins > 0:
		return fmt.Sprintf("%d:%02d", mins, secs)
	default:
		return fmt.Sprintf("%ds", secs)
	}
}
