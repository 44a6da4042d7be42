package queue

import (
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/lyrebird-bot/lyrebird/cmd/worker/track"
	"pgregory.net/rapid"
)

// fakePlayer records every collaborator call the store makes.
type fakePlayer struct {
	mu       sync.Mutex
	played   []*track.Track
	stopped  []*track.Track
	pauses   int
	resumes  int
	stops    int
	onDone   func()
	failArgs map[string]bool
}

func newFakePlayer() *fakePlayer {
	return &fakePlayer{failArgs: map[string]bool{}}
}

func (p *fakePlayer) Play(t *track.Track, onDone func()) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.failArgs[t.Source.Arg] {
		return errors.New("transport refused track")
	}
	p.played = append(p.played, t)
	p.onDone = onDone
	return nil
}

func (p *fakePlayer) StopTrack(t *track.Track) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stopped = append(p.stopped, t)
	return nil
}

func (p *fakePlayer) Pause() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.pauses++
	return nil
}

func (p *fakePlayer) Resume() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.resumes++
	return nil
}

func (p *fakePlayer) Stop() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stops++
	return nil
}

func (p *fakePlayer) Position() time.Duration { return 0 }

// finish simulates the current track ending on its own.
func (p *fakePlayer) finish() {
	p.mu.Lock()
	f := p.onDone
	p.mu.Unlock()
	if f != nil {
		f()
	}
}

func (p *fakePlayer) playedArgs() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	args := make([]string, len(p.played))
	for i, t := range p.played {
		args[i] = t.Source.Arg
	}
	return args
}

func mkStore(t *testing.T, args ...string) (*Store, *fakePlayer) {
	t.Helper()
	p := newFakePlayer()
	s := New(p)
	for _, a := range args {
		if err := s.Enqueue(track.New(track.Resolve(a))); err != nil {
			t.Fatalf("enqueue %q failed: %v", a, err)
		}
	}
	return s, p
}

func argsOf(s *Store) []string {
	tracks := s.Slice(0, s.Len())
	args := make([]string, len(tracks))
	for i, tr := range tracks {
		args[i] = tr.Source.Arg
	}
	return args
}

func assertOrder(t *testing.T, s *Store, want ...string) {
	t.Helper()
	got := argsOf(s)
	if len(got) != len(want) {
		t.Fatalf("queue = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("queue = %v, want %v", got, want)
		}
	}
}

func TestEnqueueStartsFirstTrack(t *testing.T) {
	s, p := mkStore(t, "A", "B")
	if got := p.playedArgs(); len(got) != 1 || got[0] != "A" {
		t.Fatalf("played = %v, want [A]", got)
	}
	if s.Len() != 2 {
		t.Fatalf("len = %d, want 2", s.Len())
	}
}

func TestMoveSwapRemoveScenario(t *testing.T) {
	s, _ := mkStore(t, "A", "B", "C")

	if err := s.Move(1, 2); err != nil {
		t.Fatalf("move(1,2) failed: %v", err)
	}
	assertOrder(t, s, "A", "C", "B")

	if err := s.Swap(1, 2); err != nil {
		t.Fatalf("swap(1,2) failed: %v", err)
	}
	assertOrder(t, s, "A", "B", "C")

	removed, err := s.Remove(1)
	if err != nil {
		t.Fatalf("remove(1) failed: %v", err)
	}
	if removed.Source.Arg != "B" {
		t.Fatalf("removed %q, want B", removed.Source.Arg)
	}
	assertOrder(t, s, "A", "C")
}

func TestMoveRejectsCurrentSlot(t *testing.T) {
	s, _ := mkStore(t, "A", "B", "C")
	tests := []struct {
		name     string
		from, to int
	}{
		{"from current", 0, 2},
		{"to current", 2, 0},
		{"both current", 0, 0},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if err := s.Move(tc.from, tc.to); !errors.Is(err, ErrCurrentTrack) {
				t.Fatalf("move(%d,%d) = %v, want ErrCurrentTrack", tc.from, tc.to, err)
			}
		})
	}
	assertOrder(t, s, "A", "B", "C")
}

func TestMoveOutOfBounds(t *testing.T) {
	s, _ := mkStore(t, "A", "B", "C")
	tests := []struct {
		name     string
		from, to int
	}{
		{"from past end", 5, 1},
		{"from negative", -1, 1},
		{"to negative", 1, -1},
		{"both negative", -2, -1},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if err := s.Move(tc.from, tc.to); !errors.Is(err, ErrIndexOutOfRange) {
				t.Fatalf("move(%d,%d) = %v, want ErrIndexOutOfRange", tc.from, tc.to, err)
			}
		})
	}
	assertOrder(t, s, "A", "B", "C")
}

func TestMovePastEndAppends(t *testing.T) {
	s, _ := mkStore(t, "A", "B", "C", "D")
	if err := s.Move(1, 99); err != nil {
		t.Fatalf("move(1,99) failed: %v", err)
	}
	assertOrder(t, s, "A", "C", "D", "B")
}

func TestSwapRejectsCurrentAndBounds(t *testing.T) {
	s, _ := mkStore(t, "A", "B", "C")
	if err := s.Swap(0, 1); !errors.Is(err, ErrCurrentTrack) {
		t.Fatalf("swap(0,1) = %v, want ErrCurrentTrack", err)
	}
	if err := s.Swap(1, 7); !errors.Is(err, ErrIndexOutOfRange) {
		t.Fatalf("swap(1,7) = %v, want ErrIndexOutOfRange", err)
	}
}

func TestRemoveRejectsCurrentAndBounds(t *testing.T) {
	s, _ := mkStore(t, "A", "B")
	if _, err := s.Remove(0); !errors.Is(err, ErrCurrentTrack) {
		t.Fatalf("remove(0) = %v, want ErrCurrentTrack", err)
	}
	if _, err := s.Remove(5); !errors.Is(err, ErrIndexOutOfRange) {
		t.Fatalf("remove(5) = %v, want ErrIndexOutOfRange", err)
	}
}

func TestRemoveStopsTrack(t *testing.T) {
	s, p := mkStore(t, "A", "B")
	removed, err := s.Remove(1)
	if err != nil {
		t.Fatalf("remove(1) failed: %v", err)
	}
	if removed.Alive() {
		t.Fatal("removed track should be marked dead")
	}
	if len(p.stopped) != 1 || p.stopped[0] != removed {
		t.Fatalf("player.StopTrack not called for removed track")
	}
	if s.Len() != 1 {
		t.Fatalf("len = %d, want 1", s.Len())
	}
}

func TestShuffleKeepsNowPlaying(t *testing.T) {
	args := make([]string, 20)
	for i := range args {
		args[i] = string(rune('a' + i))
	}
	s, _ := mkStore(t, args...)

	before := argsOf(s)
	s.Shuffle()
	after := argsOf(s)

	if after[0] != before[0] {
		t.Fatalf("position 0 changed: %q -> %q", before[0], after[0])
	}
	restBefore := append([]string(nil), before[1:]...)
	restAfter := append([]string(nil), after[1:]...)
	sort.Strings(restBefore)
	sort.Strings(restAfter)
	for i := range restBefore {
		if restBefore[i] != restAfter[i] {
			t.Fatalf("shuffle changed the multiset: %v vs %v", restBefore, restAfter)
		}
	}
}

func TestClearEmptiesEverything(t *testing.T) {
	s, p := mkStore(t, "A", "B", "C")
	if err := s.Clear(); err != nil {
		t.Fatalf("clear failed: %v", err)
	}
	if s.Len() != 0 {
		t.Fatalf("len = %d, want 0", s.Len())
	}
	if p.stops != 1 {
		t.Fatalf("player.Stop calls = %d, want 1", p.stops)
	}
}

func TestSkipEmptyQueue(t *testing.T) {
	s, _ := mkStore(t)
	if err := s.Skip(); !errors.Is(err, ErrQueueEmpty) {
		t.Fatalf("skip = %v, want ErrQueueEmpty", err)
	}
}

func TestSkipAdvances(t *testing.T) {
	s, p := mkStore(t, "A", "B")
	if err := s.Skip(); err != nil {
		t.Fatalf("skip failed: %v", err)
	}
	if got := p.playedArgs(); len(got) != 2 || got[1] != "B" {
		t.Fatalf("played = %v, want [A B]", got)
	}
	assertOrder(t, s, "B")
}

func TestPauseResumeStates(t *testing.T) {
	s, p := mkStore(t, "A")
	if err := s.Resume(); !errors.Is(err, ErrNotPaused) {
		t.Fatalf("resume while playing = %v, want ErrNotPaused", err)
	}
	if err := s.Pause(); err != nil {
		t.Fatalf("pause failed: %v", err)
	}
	if err := s.Pause(); !errors.Is(err, ErrAlreadyPaused) {
		t.Fatalf("second pause = %v, want ErrAlreadyPaused", err)
	}
	if err := s.Resume(); err != nil {
		t.Fatalf("resume failed: %v", err)
	}
	if p.pauses != 1 || p.resumes != 1 {
		t.Fatalf("pauses/resumes = %d/%d, want 1/1", p.pauses, p.resumes)
	}
}

func TestResumeStartsTrackEnqueuedWhilePaused(t *testing.T) {
	s, p := mkStore(t)
	if err := s.Pause(); err != nil {
		t.Fatalf("pause failed: %v", err)
	}
	if err := s.Enqueue(track.New(track.Resolve("A"))); err != nil {
		t.Fatalf("enqueue failed: %v", err)
	}
	if got := p.playedArgs(); len(got) != 0 {
		t.Fatalf("played while paused = %v, want none", got)
	}
	if err := s.Resume(); err != nil {
		t.Fatalf("resume failed: %v", err)
	}
	if got := p.playedArgs(); len(got) != 1 || got[0] != "A" {
		t.Fatalf("played after resume = %v, want [A]", got)
	}
}

func TestResumeStartsHeadAfterPausedSkip(t *testing.T) {
	s, p := mkStore(t, "A", "B")
	if err := s.Pause(); err != nil {
		t.Fatalf("pause failed: %v", err)
	}
	if err := s.Skip(); err != nil {
		t.Fatalf("skip failed: %v", err)
	}
	if got := p.playedArgs(); len(got) != 1 {
		t.Fatalf("played during paused skip = %v, want just [A]", got)
	}
	if err := s.Resume(); err != nil {
		t.Fatalf("resume failed: %v", err)
	}
	if got := p.playedArgs(); len(got) != 2 || got[1] != "B" {
		t.Fatalf("played after resume = %v, want [A B]", got)
	}
	assertOrder(t, s, "B")
}

func TestResumeDoesNotRestartPausedTrack(t *testing.T) {
	s, p := mkStore(t, "A")
	if err := s.Pause(); err != nil {
		t.Fatalf("pause failed: %v", err)
	}
	if err := s.Resume(); err != nil {
		t.Fatalf("resume failed: %v", err)
	}
	if got := p.playedArgs(); len(got) != 1 {
		t.Fatalf("played = %v, want exactly [A]", got)
	}
}

func TestTrackEndAdvances(t *testing.T) {
	s, p := mkStore(t, "A", "B")
	p.finish()
	if got := p.playedArgs(); len(got) != 2 || got[1] != "B" {
		t.Fatalf("played = %v, want [A B]", got)
	}
	assertOrder(t, s, "B")
}

func TestStaleEndCallbackIgnored(t *testing.T) {
	s, p := mkStore(t, "A", "B")

	p.mu.Lock()
	stale := p.onDone
	p.mu.Unlock()

	if err := s.Skip(); err != nil {
		t.Fatalf("skip failed: %v", err)
	}
	stale() // A's end callback arrives after the skip already advanced

	assertOrder(t, s, "B")
	if got := p.playedArgs(); len(got) != 2 {
		t.Fatalf("played = %v, want exactly [A B]", got)
	}
}

func TestLoopRestartsTrack(t *testing.T) {
	s, p := mkStore(t, "A", "B")
	s.Slice(0, 1)[0].SetLoop(true)
	p.finish()
	if got := p.playedArgs(); len(got) != 2 || got[1] != "A" {
		t.Fatalf("played = %v, want [A A]", got)
	}
	assertOrder(t, s, "A", "B")
}

func TestEnqueueFailedStartDropsTrack(t *testing.T) {
	p := newFakePlayer()
	p.failArgs["A"] = true
	s := New(p)

	bad := track.New(track.Resolve("A"))
	if err := s.Enqueue(bad); err == nil {
		t.Fatal("expected enqueue of unplayable track to fail")
	}
	if bad.Alive() {
		t.Fatal("unplayable track should be marked dead")
	}
	if s.Len() != 0 {
		t.Fatalf("len = %d, want 0", s.Len())
	}

	if err := s.Enqueue(track.New(track.Resolve("B"))); err != nil {
		t.Fatalf("enqueue B failed: %v", err)
	}
	assertOrder(t, s, "B")
}

func TestDrainCollectsLiveSourcesInOrder(t *testing.T) {
	s, p := mkStore(t, "A", "B", "C")
	s.Slice(1, 2)[0].MarkDead() // B errored mid-stream

	sources := s.Drain()
	if len(sources) != 2 || sources[0].Arg != "A" || sources[1].Arg != "C" {
		t.Fatalf("drained sources = %v, want [A C]", sources)
	}
	if s.Len() != 0 {
		t.Fatalf("len after drain = %d, want 0", s.Len())
	}
	if p.pauses != 1 {
		t.Fatalf("pause calls = %d, want 1", p.pauses)
	}
}

func TestMoveSwapPreserveMultisetAndCurrent(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		n := rapid.IntRange(2, 9).Draw(rt, "n")
		args := make([]string, n)
		for i := range args {
			args[i] = string(rune('a' + i))
		}
		p := newFakePlayer()
		s := New(p)
		for _, a := range args {
			if err := s.Enqueue(track.New(track.Resolve(a))); err != nil {
				rt.Fatalf("enqueue failed: %v", err)
			}
		}

		before := argsOf(s)
		ops := rapid.IntRange(1, 20).Draw(rt, "ops")
		for i := 0; i < ops; i++ {
			a := rapid.IntRange(1, n-1).Draw(rt, "a")
			b := rapid.IntRange(1, 2*n).Draw(rt, "b")
			if rapid.Bool().Draw(rt, "useMove") {
				if err := s.Move(a, b); err != nil {
					rt.Fatalf("move(%d,%d) failed: %v", a, b, err)
				}
			} else if b < n {
				if err := s.Swap(a, b); err != nil {
					rt.Fatalf("swap(%d,%d) failed: %v", a, b, err)
				}
			}
		}

		after := argsOf(s)
		if after[0] != before[0] {
			rt.Fatalf("position 0 changed: %q -> %q", before[0], after[0])
		}
		sortedBefore := append([]string(nil), before...)
		sortedAfter := append([]string(nil), after...)
		sort.Strings(sortedBefore)
		sort.Strings(sortedAfter)
		for i := range sortedBefore {
			if sortedBefore[i] != sortedAfter[i] {
				rt.Fatalf("multiset changed: %v vs %v", before, after)
			}
		}
	})
}
