package worker

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/GiGurra/boa/pkg/boa"
	"github.com/lyrebird-bot/lyrebird/cmd/common"
	"github.com/lyrebird-bot/lyrebird/cmd/worker/gateway"
	"github.com/lyrebird-bot/lyrebird/cmd/worker/pages"
	"github.com/lyrebird-bot/lyrebird/cmd/worker/session"
	"github.com/lyrebird-bot/lyrebird/cmd/worker/snapshot"
	"github.com/lyrebird-bot/lyrebird/cmd/worker/stream"
	"github.com/lyrebird-bot/lyrebird/cmd/worker/track"
	"github.com/spf13/cobra"
)

// Environment contract with the runner. The token and owner id are forwarded
// on every launch; the recover path only after a restart.
const (
	EnvToken       = "DISCORD_TOKEN"
	EnvOwnerID     = "BOT_OWNER_ID"
	EnvSupervised  = "IS_RUN_BY_RUNNER"
	EnvRecoverPath = "RESTART_RECOVER_PATH"
)

type Params struct {
	PageSize      int    `optional:"true" help:"Tracks per page in queue listings." default:"10"`
	NavWindowSecs int64  `optional:"true" help:"Seconds of inactivity before a queue listing stops responding." default:"120"`
	NoAudio       bool   `optional:"true" help:"Use the silent streaming driver instead of local audio output."`
	Guild         uint64 `optional:"true" help:"Guild id assumed by the console gateway." default:"1"`
	Channel       uint64 `optional:"true" help:"Voice channel id assumed by the console gateway." default:"1"`
}

func Cmd() *cobra.Command {
	return boa.CmdT[Params]{
		Use:         "worker",
		Short:       "Run the bot worker process",
		ParamEnrich: common.DefaultParamEnricher(),
		RunFunc: func(params *Params, cmd *cobra.Command, args []string) {
			if err := Run(cmd.Context(), params, os.Stdin, os.Stdout); err != nil {
				_, _ = fmt.Fprintf(os.Stderr, "worker: %v\n", err)
				os.Exit(1)
			}
		},
	}.ToCobra()
}

func Run(ctx context.Context, params *Params, in io.Reader, out io.Writer) error {
	if os.Getenv(EnvToken) == "" {
		return fmt.Errorf("%s not set", EnvToken)
	}
	owner, _ := strconv.ParseUint(os.Getenv(EnvOwnerID), 10, 64)
	supervised := os.Getenv(EnvSupervised) != ""

	var driver stream.Driver
	if params.NoAudio {
		driver = stream.NewNullDriver()
	} else {
		driver = stream.NewLocalDriver()
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	w := New(session.NewRegistry(driver), Options{
		Owner:      owner,
		Supervised: supervised,
		PageSize:   params.PageSize,
		NavWindow:  time.Duration(params.NavWindowSecs) * time.Second,
		Out:        out,
		OnRestart:  cancel,
	})

	if path := os.Getenv(EnvRecoverPath); path != "" {
		w.Replay(ctx, path)
	}

	console := gateway.NewConsole(in, out, w.Dispatcher(), owner, params.Guild, params.Channel)
	if err := console.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// Options configures a Worker outside of its registry.
type Options struct {
	Owner      uint64
	Supervised bool
	PageSize   int
	NavWindow  time.Duration
	Out        io.Writer
	OnRestart  func()
}

// Worker ties the session registry, the command table and the restart
// protocol together for one process lifetime.
type Worker struct {
	registry   *session.Registry
	dispatcher *gateway.Dispatcher
	opts       Options

	mu    sync.Mutex
	views map[uint64]*pages.Controller
}

func New(registry *session.Registry, opts Options) *Worker {
	if opts.PageSize <= 0 {
		opts.PageSize = pages.DefaultPageSize
	}
	if opts.NavWindow <= 0 {
		opts.NavWindow = pages.DefaultWindow
	}
	if opts.Out == nil {
		opts.Out = os.Stdout
	}
	w := &Worker{
		registry: registry,
		opts:     opts,
		views:    make(map[uint64]*pages.Controller),
	}
	w.dispatcher = gateway.NewDispatcher(w.commands())
	return w
}

// Dispatcher returns the command table, constructed once at startup.
func (w *Worker) Dispatcher() *gateway.Dispatcher {
	return w.dispatcher
}

// Replay re-populates the registry from a transfer file written by the
// previous process. Individual failures are logged and skipped; a broken
// file means a cold start, not an aborted one.
func (w *Worker) Replay(ctx context.Context, path string) {
	records, err := snapshot.Read(path)
	if err != nil {
		slog.Warn("no restart recovery available", "path", path, "error", err)
		return
	}
	for _, rec := range records {
		s, err := w.registry.Autojoin(ctx, rec.Guild, rec.Channel)
		if err != nil {
			slog.Warn("failed to rejoin guild", "guild", rec.Guild, "error", err)
			continue
		}
		recovered := 0
		for _, src := range rec.Queue {
			if err := s.Queue.Enqueue(track.New(src)); err != nil {
				slog.Warn("failed to re-enqueue track", "guild", rec.Guild, "arg", src.Arg, "error", err)
				continue
			}
			recovered++
		}
		slog.Info("recovered session", "guild", rec.Guild, "tracks", recovered)
	}
}

// Restart drains every session into a transfer file and emits the restart
// signal line for the runner. Returns the user-facing status.
func (w *Worker) Restart(ctx context.Context, inv gateway.Invocation) string {
	if w.opts.Owner == 0 || inv.User != w.opts.Owner {
		return "Can only be used by bot owner"
	}
	if !w.opts.Supervised {
		return "Not being run by the runner, therefore restart will not work"
	}

	w.closeViews()
	records := w.registry.DrainAll(ctx)
	path, err := snapshot.Write(records)
	if err != nil {
		slog.Error("failed to write restart snapshot", "error", err)
		return fmt.Sprintf("failed to write restart snapshot: %v", err)
	}

	fmt.Fprintf(w.opts.Out, "!restart,path=%s\n", path)
	if w.opts.OnRestart != nil {
		w.opts.OnRestart()
	}
	return "sending restart command.."
}

func (w *Worker) closeViews() {
	w.mu.Lock()
	views := w.views
	w.views = make(map[uint64]*pages.Controller)
	w.mu.Unlock()
	for _, c := range views {
		c.Close()
	}
}

// setView installs the guild's active queue listing, closing any prior one.
func (w *Worker) setView(guild uint64, c *pages.Controller) {
	w.mu.Lock()
	prev := w.views[guild]
	w.views[guild] = c
	w.mu.Unlock()
	if prev != nil {
		prev.Close()
	}
}

func (w *Worker) view(guild uint64) *pages.Controller {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.views[guild]
}
