package stream

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/GiGurra/cmder"
	"github.com/lyrebird-bot/lyrebird/cmd/worker/track"
)

const (
	probeTimeout = 30 * time.Second
	fetchTimeout = 5 * time.Minute
)

// ytMetadata is the subset of yt-dlp's -J output we care about.
type ytMetadata struct {
	Title    string       `json:"title"`
	Artist   string       `json:"artist"`
	Uploader string       `json:"uploader"`
	Duration float64      `json:"duration"`
	Entries  []ytMetadata `json:"entries"`
}

func (m ytMetadata) toMeta() track.Meta {
	artist := m.Artist
	if artist == "" {
		artist = m.Uploader
	}
	return track.Meta{
		Title:    m.Title,
		Artist:   artist,
		Duration: time.Duration(m.Duration * float64(time.Second)),
	}
}

// Probe resolves a source's metadata without starting playback.
func Probe(ctx context.Context, src track.Source) (track.Meta, error) {
	switch src.Kind {
	case track.KindFile:
		name := strings.TrimSuffix(filepath.Base(src.Arg), filepath.Ext(src.Arg))
		return track.Meta{Title: name}, nil
	case track.KindResolve:
		res := cmder.New("yt-dlp", "-J", "--no-playlist", src.Arg).
			WithAttemptTimeout(probeTimeout).
			Run(ctx)
		if res.Err != nil {
			return track.Meta{}, fmt.Errorf("failed to resolve %q: %w", src.Arg, res.Err)
		}
		var m ytMetadata
		if err := json.Unmarshal([]byte(res.StdOut), &m); err != nil {
			return track.Meta{}, fmt.Errorf("failed to parse resolver output for %q: %w", src.Arg, err)
		}
		// Search queries come back as a one-entry playlist.
		if len(m.Entries) > 0 {
			m = m.Entries[0]
		}
		return m.toMeta(), nil
	default:
		return track.Meta{}, fmt.Errorf("unknown source kind %q", src.Kind)
	}
}

// Fetch materializes a resolve source as a local mp3 file and returns its
// path. The caller owns the file and deletes it when playback ends.
func Fetch(ctx context.Context, src track.Source) (string, error) {
	if src.Kind == track.KindFile {
		return src.Arg, nil
	}
	dir, err := os.MkdirTemp("", "lyrebird-fetch-*")
	if err != nil {
		return "", fmt.Errorf("failed to create fetch dir: %w", err)
	}
	out := filepath.Join(dir, "audio.%(ext)s")
	res := cmder.New("yt-dlp", "-x", "--audio-format", "mp3", "--no-playlist", "-o", out, src.Arg).
		WithAttemptTimeout(fetchTimeout).
		Run(ctx)
	if res.Err != nil {
		_ = os.RemoveAll(dir)
		return "", fmt.Errorf("failed to fetch %q: %w", src.Arg, res.Err)
	}
	return filepath.Join(dir, "audio.mp3"), nil
}
