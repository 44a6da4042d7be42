package worker

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"

	"github.com/lyrebird-bot/lyrebird/cmd/worker/gateway"
	"github.com/lyrebird-bot/lyrebird/cmd/worker/pages"
	"github.com/lyrebird-bot/lyrebird/cmd/worker/queue"
	"github.com/lyrebird-bot/lyrebird/cmd/worker/session"
	"github.com/lyrebird-bot/lyrebird/cmd/worker/stream"
	"github.com/lyrebird-bot/lyrebird/cmd/worker/track"
)

// commands builds the full command table handed to the gateway adapter.
func (w *Worker) commands() []gateway.Command {
	return []gateway.Command{
		{Name: "join", Help: "join your voice channel", Handler: w.join},
		{Name: "leave", Help: "leave the voice channel", Handler: w.leave},
		{Name: "play", Help: "queue a song from a URL", Handler: w.play},
		{Name: "splay", Help: "search for a song and queue it", Handler: w.splay},
		{Name: "skip", Help: "skip the current track", Handler: w.skip},
		{Name: "pause", Help: "pause the current track", Handler: w.pause},
		{Name: "resume", Help: "resume playback", Handler: w.resume},
		{Name: "move", Help: "reorder a track in the queue", Handler: w.move},
		{Name: "swap", Help: "swap two tracks in the queue", Handler: w.swap},
		{Name: "remove", Help: "remove a track by its index", Handler: w.remove},
		{Name: "clear", Help: "stop playback and clear the queue", Handler: w.clear},
		{Name: "shuffle", Help: "shuffle the queued tracks", Handler: w.shuffle},
		{Name: "loop", Help: "toggle loop mode for the current track", Handler: w.loop},
		{Name: "queue", Help: "list the queue", Handler: w.listQueue},
		{Name: "prev", Help: "previous page of the queue listing", Handler: w.navCmd(pages.NavPrev)},
		{Name: "next", Help: "next page of the queue listing", Handler: w.navCmd(pages.NavNext)},
		{Name: "refresh", Help: "re-render the queue listing", Handler: w.navCmd(pages.NavRefresh)},
		{Name: "nav", Help: "forward a raw navigation identifier", Handler: w.nav},
		{Name: "restart", Help: "restart the bot (owner only)", Handler: w.Restart},
	}
}

// withSession runs f against the guild's session. With autojoin set the
// session is created from the invoker's voice channel when absent.
func (w *Worker) withSession(ctx context.Context, inv gateway.Invocation, autojoin bool, f func(s *session.Session) string) string {
	if autojoin {
		s, err := w.registry.Autojoin(ctx, inv.Guild, inv.Channel)
		if err != nil {
			return fmt.Sprintf("failed to autojoin: %v", err)
		}
		return f(s)
	}
	s, ok := w.registry.Get(inv.Guild)
	if !ok {
		return "Not in a voice channel"
	}
	return f(s)
}

func (w *Worker) join(ctx context.Context, inv gateway.Invocation) string {
	if _, err := w.registry.Join(ctx, inv.Guild, inv.Channel, true); err != nil {
		return fmt.Sprintf("failed to join: %v", err)
	}
	return "Joined"
}

func (w *Worker) leave(ctx context.Context, inv gateway.Invocation) string {
	if err := w.registry.Leave(ctx, inv.Guild); err != nil {
		if errors.Is(err, session.ErrNotJoined) {
			return "Not in a voice channel"
		}
		return fmt.Sprintf("Failed: %v", err)
	}
	return "Left voice channel"
}

func (w *Worker) play(ctx context.Context, inv gateway.Invocation) string {
	if len(inv.Args) != 1 {
		return "Must provide a URL to a video or audio"
	}
	url := inv.Args[0]
	if !strings.HasPrefix(url, "http") {
		return "Argument must be a valid URL"
	}
	return w.enqueue(ctx, inv, track.Resolve(url))
}

func (w *Worker) splay(ctx context.Context, inv gateway.Invocation) string {
	if len(inv.Args) == 0 {
		return "Must provide a search query"
	}
	return w.enqueue(ctx, inv, track.Search(strings.Join(inv.Args, " ")))
}

func (w *Worker) enqueue(ctx context.Context, inv gateway.Invocation, src track.Source) string {
	return w.withSession(ctx, inv, true, func(s *session.Session) string {
		t := track.New(src)
		meta, err := stream.Probe(ctx, src)
		if err != nil {
			return fmt.Sprintf("failed to resolve: %v", err)
		}
		t.SetMeta(meta)
		if err := s.Queue.Enqueue(t); err != nil {
			return fmt.Sprintf("failed to play: %v", err)
		}
		return "Queued: " + t.Describe()
	})
}

func (w *Worker) skip(ctx context.Context, inv gateway.Invocation) string {
	return w.withSession(ctx, inv, false, func(s *session.Session) string {
		if err := s.Queue.Skip(); err != nil {
			return "queue is empty"
		}
		return "skipped"
	})
}

func (w *Worker) pause(ctx context.Context, inv gateway.Invocation) string {
	return w.withSession(ctx, inv, false, func(s *session.Session) string {
		if err := s.Queue.Pause(); err != nil {
			return err.Error()
		}
		return "Paused"
	})
}

func (w *Worker) resume(ctx context.Context, inv gateway.Invocation) string {
	return w.withSession(ctx, inv, false, func(s *session.Session) string {
		if err := s.Queue.Resume(); err != nil {
			return err.Error()
		}
		return "Resumed"
	})
}

func (w *Worker) move(ctx context.Context, inv gateway.Invocation) string {
	from, to, ok := twoInts(inv.Args)
	if !ok {
		return "invalid arguments"
	}
	return w.withSession(ctx, inv, false, func(s *session.Session) string {
		switch err := s.Queue.Move(from, to); {
		case errors.Is(err, queue.ErrCurrentTrack):
			return "Cannot move the current song"
		case errors.Is(err, queue.ErrIndexOutOfRange):
			return fmt.Sprintf("Failed: index out of bounds for %d", from)
		case err != nil:
			return fmt.Sprintf("Failed: %v", err)
		}
		return "Success"
	})
}

func (w *Worker) swap(ctx context.Context, inv gateway.Invocation) string {
	a, b, ok := twoInts(inv.Args)
	if !ok {
		return "invalid arguments"
	}
	return w.withSession(ctx, inv, false, func(s *session.Session) string {
		switch err := s.Queue.Swap(a, b); {
		case errors.Is(err, queue.ErrCurrentTrack):
			return "Cannot swap the current song"
		case errors.Is(err, queue.ErrIndexOutOfRange):
			return fmt.Sprintf("Failed: index out of bounds for %d or %d", a, b)
		case err != nil:
			return fmt.Sprintf("Failed: %v", err)
		}
		return "Success"
	})
}

func (w *Worker) remove(ctx context.Context, inv gateway.Invocation) string {
	if len(inv.Args) != 1 {
		return "must provide valid index"
	}
	index, err := strconv.Atoi(inv.Args[0])
	if err != nil {
		return "must provide valid index"
	}
	return w.withSession(ctx, inv, false, func(s *session.Session) string {
		t, err := s.Queue.Remove(index)
		switch {
		case errors.Is(err, queue.ErrCurrentTrack):
			return "Cannot remove the current song"
		case errors.Is(err, queue.ErrIndexOutOfRange):
			return fmt.Sprintf("No track at index %d", index)
		case err != nil:
			return fmt.Sprintf("Failed to stop track: %v", err)
		}
		return "Removed: " + t.Describe()
	})
}

func (w *Worker) clear(ctx context.Context, inv gateway.Invocation) string {
	return w.withSession(ctx, inv, false, func(s *session.Session) string {
		if err := s.Queue.Clear(); err != nil {
			slog.Warn("failed to stop playback on clear", "guild", inv.Guild, "error", err)
		}
		return "cleared queue"
	})
}

func (w *Worker) shuffle(ctx context.Context, inv gateway.Invocation) string {
	return w.withSession(ctx, inv, false, func(s *session.Session) string {
		s.Queue.Shuffle()
		return "Success"
	})
}

func (w *Worker) loop(ctx context.Context, inv gateway.Invocation) string {
	return w.withSession(ctx, inv, false, func(s *session.Session) string {
		current := s.Queue.Slice(0, 1)
		if len(current) == 0 {
			return "No track is currently playing"
		}
		t := current[0]
		if t.Loop() {
			t.SetLoop(false)
			return "Looping disabled"
		}
		t.SetLoop(true)
		return "Looping enabled"
	})
}

// listQueue starts an interactive paginated listing for the guild, replacing
// any previous one.
func (w *Worker) listQueue(ctx context.Context, inv gateway.Invocation) string {
	return w.withSession(ctx, inv, false, func(s *session.Session) string {
		if s.Queue.Empty() {
			return "queue is empty"
		}
		view := &consoleView{out: w.opts.Out}
		c := pages.NewController(s.Queue, view, w.opts.PageSize, w.opts.NavWindow)
		w.setView(inv.Guild, c)
		go c.Run(ctx)
		return c.Render()
	})
}

// navCmd binds a command name to its navigation event.
func (w *Worker) navCmd(n pages.Nav) gateway.Handler {
	return func(ctx context.Context, inv gateway.Invocation) string {
		return w.sendNav(inv.Guild, n)
	}
}

// nav forwards a raw navigation identifier, the shape reaction-style
// gateways deliver. The identifier is decoded once here, at the boundary;
// unknown identifiers are logged and ignored.
func (w *Worker) nav(ctx context.Context, inv gateway.Invocation) string {
	if len(inv.Args) != 1 {
		return "invalid arguments"
	}
	n, ok := pages.ParseNav(inv.Args[0])
	if !ok {
		slog.Debug("ignoring unknown navigation event", "name", inv.Args[0])
		return ""
	}
	return w.sendNav(inv.Guild, n)
}

func (w *Worker) sendNav(guild uint64, n pages.Nav) string {
	c := w.view(guild)
	if c == nil {
		return "no active queue listing"
	}
	if !c.Send(n) {
		return "queue listing expired"
	}
	return ""
}

// consoleView renders queue pages straight to the worker's output.
type consoleView struct {
	out io.Writer
}

func (v *consoleView) Update(content string) error {
	_, err := fmt.Fprintln(v.out, content)
	return err
}

func (v *consoleView) Detach() error {
	_, err := fmt.Fprintln(v.out, "(queue listing closed)")
	return err
}

func twoInts(args []string) (int, int, bool) {
	if len(args) != 2 {
		return 0, 0, false
	}
	a, err1 := strconv.Atoi(args[0])
	b, err2 := strconv.Atoi(args[1])
	if err1 != nil || err2 != nil {
		return 0, 0, false
	}
	return a, b, true
}
