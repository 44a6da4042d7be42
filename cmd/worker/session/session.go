package session

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/lyrebird-bot/lyrebird/cmd/worker/queue"
	"github.com/lyrebird-bot/lyrebird/cmd/worker/snapshot"
	"github.com/lyrebird-bot/lyrebird/cmd/worker/stream"
)

var (
	ErrAlreadyJoined = errors.New("already in a voice channel")
	ErrNotJoined     = errors.New("not in a voice channel")
	ErrNoChannel     = errors.New("you are not in a voice channel")
)

// Session is one guild's active playback context: the channel it is
// connected to and the queue it is streaming from.
type Session struct {
	Guild   uint64
	Channel uint64
	Queue   *queue.Store

	conn stream.Conn
}

// Registry maps guilds to their sessions. The registry lock covers only the
// structural map mutations; all queue work happens under the per-session
// store lock, so a slow session never blocks unrelated guilds.
type Registry struct {
	mu       sync.Mutex
	driver   stream.Driver
	sessions map[uint64]*Session
}

func NewRegistry(driver stream.Driver) *Registry {
	return &Registry{
		driver:   driver,
		sessions: make(map[uint64]*Session),
	}
}

func (r *Registry) Get(guild uint64) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[guild]
	return s, ok
}

// Join connects to the given voice channel. With mustJoin set an existing
// session is an error; otherwise it is simply returned.
func (r *Registry) Join(ctx context.Context, guild, channel uint64, mustJoin bool) (*Session, error) {
	r.mu.Lock()
	if s, ok := r.sessions[guild]; ok {
		r.mu.Unlock()
		if mustJoin {
			return nil, ErrAlreadyJoined
		}
		return s, nil
	}
	r.mu.Unlock()

	if channel == 0 {
		return nil, ErrNoChannel
	}

	// Connect outside the registry lock; the transport may be slow.
	conn, err := r.driver.Connect(ctx, guild, channel)
	if err != nil {
		return nil, err
	}

	s := &Session{
		Guild:   guild,
		Channel: channel,
		Queue:   queue.New(conn),
		conn:    conn,
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.sessions[guild]; ok {
		// Lost the race to another join for the same guild.
		_ = conn.Close()
		if mustJoin {
			return nil, ErrAlreadyJoined
		}
		return existing, nil
	}
	r.sessions[guild] = s
	return s, nil
}

// Autojoin returns the guild's session, creating it if absent.
func (r *Registry) Autojoin(ctx context.Context, guild, channel uint64) (*Session, error) {
	return r.Join(ctx, guild, channel, false)
}

// Leave removes the session and tears down its transport.
func (r *Registry) Leave(ctx context.Context, guild uint64) error {
	r.mu.Lock()
	s, ok := r.sessions[guild]
	if ok {
		delete(r.sessions, guild)
	}
	r.mu.Unlock()
	if !ok {
		return ErrNotJoined
	}
	_ = s.Queue.Clear()
	return s.conn.Close()
}

// DrainAll extracts the replay state of every session and empties the
// registry. The map is swapped out under the lock, so no join can race a
// drain for the same guild. Once started, a drain runs to completion.
func (r *Registry) DrainAll(ctx context.Context) []snapshot.Record {
	r.mu.Lock()
	sessions := r.sessions
	r.sessions = make(map[uint64]*Session)
	r.mu.Unlock()

	records := make([]snapshot.Record, 0, len(sessions))
	for _, s := range sessions {
		sources := s.Queue.Drain()
		_ = s.conn.Close()
		records = append(records, snapshot.Record{
			Guild:   s.Guild,
			Channel: s.Channel,
			Queue:   sources,
		})
	}
	sort.Slice(records, func(i, j int) bool { return records[i].Guild < records[j].Guild })
	return records
}

// Len reports the number of active sessions.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}
