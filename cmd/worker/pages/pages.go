package pages

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/lyrebird-bot/lyrebird/cmd/worker/queue"
	"github.com/lyrebird-bot/lyrebird/cmd/worker/track"
)

const (
	DefaultPageSize = 10
	DefaultWindow   = 120 * time.Second
)

// Nav is a page-navigation event, decoded once at the gateway boundary.
type Nav int

const (
	NavPrev Nav = iota
	NavNext
	NavRefresh
)

// ParseNav decodes a navigation identifier. Unknown identifiers are reported
// to the caller, which logs and ignores them.
func ParseNav(s string) (Nav, bool) {
	switch s {
	case "prev", "previous", "⬅️":
		return NavPrev, true
	case "next", "➡️":
		return NavNext, true
	case "refresh", "🔄":
		return NavRefresh, true
	default:
		return 0, false
	}
}

// State of a controller. Active is the only non-terminal state.
type State int

const (
	StateActive State = iota
	StateExpired
	StateClosed
)

// View is the interactive surface a controller renders into. Detach disables
// further navigation once the controller reaches a terminal state.
type View interface {
	Update(content string) error
	Detach() error
}

// Controller owns the cursor of one interactive queue listing. It waits for
// navigation events with a bounded inactivity window; whichever of "event
// arrives" and "deadline elapses" resolves first wins.
type Controller struct {
	store  *queue.Store
	view   View
	size   int
	window time.Duration

	events chan Nav
	quit   chan struct{}

	mu    sync.Mutex
	state State
	page  int
}

func NewController(store *queue.Store, view View, size int, window time.Duration) *Controller {
	if size <= 0 {
		size = DefaultPageSize
	}
	if window <= 0 {
		window = DefaultWindow
	}
	return &Controller{
		store:  store,
		view:   view,
		size:   size,
		window: window,
		events: make(chan Nav, 16),
		quit:   make(chan struct{}),
	}
}

// Send delivers a navigation event. Events sent after the controller reached
// a terminal state are dropped; the return value reports delivery.
func (c *Controller) Send(n Nav) bool {
	c.mu.Lock()
	active := c.state == StateActive
	c.mu.Unlock()
	if !active {
		return false
	}
	select {
	case c.events <- n:
		return true
	case <-c.quit:
		return false
	}
}

// Run consumes navigation events until the inactivity window elapses, the
// controller is closed, or ctx is cancelled.
func (c *Controller) Run(ctx context.Context) {
	timer := time.NewTimer(c.window)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			c.terminate(StateClosed)
			return
		case <-c.quit:
			return
		case <-timer.C:
			c.terminate(StateExpired)
			return
		case n := <-c.events:
			c.handle(n)
			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
			timer.Reset(c.window)
		}
	}
}

func (c *Controller) handle(n Nav) {
	c.mu.Lock()
	switch n {
	case NavPrev:
		c.page = max(c.page-1, 0)
	case NavNext:
		c.page = min(c.page+1, c.lastPage())
	case NavRefresh:
		// Re-render only; the queue may have changed under us.
	}
	content := c.renderLocked()
	c.mu.Unlock()
	_ = c.view.Update(content)
}

// lastPage computes the highest valid page for the store's current length.
// Must be called with c.mu held.
func (c *Controller) lastPage() int {
	n := c.store.Len()
	if n == 0 {
		return 0
	}
	return (n - 1) / c.size
}

// Close ends the controller explicitly, e.g. when its message is torn down.
// Navigation affordances are detached synchronously before Run unblocks.
func (c *Controller) Close() {
	c.terminate(StateClosed)
}

func (c *Controller) terminate(st State) {
	c.mu.Lock()
	if c.state != StateActive {
		c.mu.Unlock()
		return
	}
	c.state = st
	close(c.quit)
	c.mu.Unlock()
	_ = c.view.Detach()
}

func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Controller) Page() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.page
}

// Render produces the current page from a fresh queue snapshot.
func (c *Controller) Render() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.renderLocked()
}

func (c *Controller) renderLocked() string {
	return RenderPage(c.store, c.page, c.size)
}

// RenderPage lists the tracks on one page of the store. Position 0 is always
// labeled as now playing, annotated with live elapsed/total time when it
// falls on the rendered page.
func RenderPage(store *queue.Store, page, size int) string {
	n := store.Len()
	if n == 0 {
		return "queue is empty"
	}
	start := page * size
	if start >= n {
		return "Index out of bounds."
	}

	var b strings.Builder
	for i, t := range store.Slice(start, start+size) {
		if b.Len() > 0 {
			b.WriteByte('\n')
		}
		idx := start + i
		if idx == 0 {
			fmt.Fprintf(&b, "**Now Playing**: %s - %s / %s",
				t.Describe(),
				track.FormatDuration(store.Position()),
				totalDuration(t))
		} else {
			fmt.Fprintf(&b, "%d: %s", idx, t.Describe())
		}
	}
	last := (n - 1) / size
	fmt.Fprintf(&b, "\npage %d of %d", page+1, last+1)
	return b.String()
}

func totalDuration(t *track.Track) string {
	m := t.Meta()
	if m == nil || m.Duration == 0 {
		return "unknown"
	}
	return track.FormatDuration(m.Duration)
}
