package queue

import (
	"errors"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"github.com/lyrebird-bot/lyrebird/cmd/worker/track"
	"github.com/samber/lo"
)

var (
	ErrQueueEmpty      = errors.New("queue is empty")
	ErrIndexOutOfRange = errors.New("index out of range")
	ErrCurrentTrack    = errors.New("cannot touch the current track")
	ErrAlreadyPaused   = errors.New("already paused")
	ErrNotPaused       = errors.New("not paused")
)

// Player is the slice of the streaming collaborator the queue drives.
// Play begins streaming a track and calls onDone when it finishes on its own.
type Player interface {
	Play(t *track.Track, onDone func()) error
	StopTrack(t *track.Track) error
	Pause() error
	Resume() error
	Stop() error
	Position() time.Duration
}

// Store holds the ordered queue for one session. The element at position 0,
// if present, is the track currently streaming. All access goes through one
// mutex, so no two mutations on the same store ever interleave.
type Store struct {
	mu      sync.Mutex
	items   []*track.Track
	player  Player
	playID  uint64
	paused  bool
	started bool // position 0 has been handed to the player
}

func New(p Player) *Store {
	return &Store{player: p}
}

// Modify runs f against the full ordered sequence under the store lock and
// returns whatever f computes. Every mutation on the store is expressed as a
// single call to Modify.
func Modify[R any](s *Store, f func(items *[]*track.Track) R) R {
	s.mu.Lock()
	defer s.mu.Unlock()
	return f(&s.items)
}

func (s *Store) Len() int {
	return Modify(s, func(items *[]*track.Track) int { return len(*items) })
}

func (s *Store) Empty() bool {
	return s.Len() == 0
}

// Slice returns a read-only snapshot of positions [from, to), clamped to the
// queue bounds. The snapshot is taken atomically; it may be superseded by a
// concurrent mutation the moment it is returned.
func (s *Store) Slice(from, to int) []*track.Track {
	return Modify(s, func(items *[]*track.Track) []*track.Track {
		from = max(from, 0)
		to = min(to, len(*items))
		if from >= to {
			return nil
		}
		out := make([]*track.Track, to-from)
		copy(out, (*items)[from:to])
		return out
	})
}

// Enqueue appends a track and starts streaming it if it landed at position 0
// while playback is not paused.
func (s *Store) Enqueue(t *track.Track) error {
	return Modify(s, func(items *[]*track.Track) error {
		*items = append(*items, t)
		if len(*items) == 1 && !s.paused {
			if err := s.startLocked(items); err != nil {
				t.MarkDead()
				*items = (*items)[:len(*items)-1]
				return err
			}
		}
		return nil
	})
}

// startLocked begins streaming position 0. The playID guards against stale
// end-of-track callbacks from tracks replaced by skip/clear/drain.
func (s *Store) startLocked(items *[]*track.Track) error {
	t := (*items)[0]
	s.playID++
	id := s.playID
	err := s.player.Play(t, func() { s.onTrackEnd(id) })
	s.started = err == nil
	return err
}

// onTrackEnd advances the queue when the current track finishes on its own.
func (s *Store) onTrackEnd(id uint64) {
	Modify(s, func(items *[]*track.Track) struct{} {
		if id != s.playID || len(*items) == 0 {
			return struct{}{}
		}
		if (*items)[0].Loop() {
			if err := s.startLocked(items); err == nil {
				return struct{}{}
			}
			// Fall through and advance past the broken track.
		}
		*items = (*items)[1:]
		s.playNextLocked(items)
		return struct{}{}
	})
}

// playNextLocked starts the head track, dropping tracks that fail to start
// rather than stalling the queue.
func (s *Store) playNextLocked(items *[]*track.Track) {
	for len(*items) > 0 {
		err := s.startLocked(items)
		if err == nil {
			return
		}
		t := (*items)[0]
		t.MarkDead()
		*items = (*items)[1:]
		slog.Warn("dropping track that failed to start", "track", t.Describe(), "error", err)
	}
	s.started = false
}

// Move relocates the track at from to position to. The current track can
// neither be moved nor displaced; a destination past the end appends.
func (s *Store) Move(from, to int) error {
	if from == 0 || to == 0 {
		return ErrCurrentTrack
	}
	return Modify(s, func(items *[]*track.Track) error {
		if from < 0 || from >= len(*items) || to < 0 {
			return ErrIndexOutOfRange
		}
		t := (*items)[from]
		*items = append((*items)[:from], (*items)[from+1:]...)
		if to > len(*items) {
			*items = append(*items, t)
			return nil
		}
		*items = append(*items, nil)
		copy((*items)[to+1:], (*items)[to:])
		(*items)[to] = t
		return nil
	})
}

// Swap exchanges the tracks at positions a and b.
func (s *Store) Swap(a, b int) error {
	if a == 0 || b == 0 {
		return ErrCurrentTrack
	}
	return Modify(s, func(items *[]*track.Track) error {
		if a < 0 || a >= len(*items) || b < 0 || b >= len(*items) {
			return ErrIndexOutOfRange
		}
		(*items)[a], (*items)[b] = (*items)[b], (*items)[a]
		return nil
	})
}

// Remove deletes the track at index and returns it, signalling the player to
// release its resources. Position 0 is rejected; use Skip or Clear instead.
func (s *Store) Remove(index int) (*track.Track, error) {
	if index == 0 {
		return nil, ErrCurrentTrack
	}
	type result struct {
		t   *track.Track
		err error
	}
	r := Modify(s, func(items *[]*track.Track) result {
		if index < 0 || index >= len(*items) {
			return result{err: ErrIndexOutOfRange}
		}
		t := (*items)[index]
		*items = append((*items)[:index], (*items)[index+1:]...)
		t.MarkDead()
		if err := s.player.StopTrack(t); err != nil {
			return result{t: t, err: err}
		}
		return result{t: t}
	})
	return r.t, r.err
}

// Shuffle randomly permutes everything behind the current track.
func (s *Store) Shuffle() {
	Modify(s, func(items *[]*track.Track) struct{} {
		if len(*items) > 2 {
			rest := (*items)[1:]
			rand.Shuffle(len(rest), func(i, j int) {
				rest[i], rest[j] = rest[j], rest[i]
			})
		}
		return struct{}{}
	})
}

// Clear stops playback and empties the queue, current track included.
func (s *Store) Clear() error {
	return Modify(s, func(items *[]*track.Track) error {
		s.playID++
		for _, t := range *items {
			t.MarkDead()
		}
		*items = nil
		s.paused = false
		s.started = false
		return s.player.Stop()
	})
}

// Skip ends the current track and starts the next one, if any.
func (s *Store) Skip() error {
	return Modify(s, func(items *[]*track.Track) error {
		if len(*items) == 0 {
			return ErrQueueEmpty
		}
		cur := (*items)[0]
		s.playID++
		cur.MarkDead()
		_ = s.player.StopTrack(cur)
		*items = (*items)[1:]
		s.started = false
		if !s.paused {
			s.playNextLocked(items)
		}
		return nil
	})
}

func (s *Store) Pause() error {
	return Modify(s, func(items *[]*track.Track) error {
		if s.paused {
			return ErrAlreadyPaused
		}
		if err := s.player.Pause(); err != nil {
			return err
		}
		s.paused = true
		return nil
	})
}

// Resume continues playback. A head track that arrived while paused, or was
// exposed by a paused skip, was never handed to the player; start it now.
func (s *Store) Resume() error {
	return Modify(s, func(items *[]*track.Track) error {
		if !s.paused {
			return ErrNotPaused
		}
		if err := s.player.Resume(); err != nil {
			return err
		}
		s.paused = false
		if !s.started && len(*items) > 0 {
			s.playNextLocked(items)
		}
		return nil
	})
}

func (s *Store) Paused() bool {
	return Modify(s, func(items *[]*track.Track) bool { return s.paused })
}

// Position reports how far into the current track playback has come.
func (s *Store) Position() time.Duration {
	return s.player.Position()
}

// Drain pauses playback, stops every track and returns the sources of the
// tracks that were still live, in queue order. Used only by the restart path.
func (s *Store) Drain() []track.Source {
	return Modify(s, func(items *[]*track.Track) []track.Source {
		_ = s.player.Pause()
		s.playID++
		s.started = false
		drained := *items
		*items = nil
		live := lo.Filter(drained, func(t *track.Track, _ int) bool { return t.Alive() })
		for _, t := range drained {
			_ = s.player.StopTrack(t)
		}
		return lo.Map(live, func(t *track.Track, _ int) track.Source { return t.Source })
	})
}
