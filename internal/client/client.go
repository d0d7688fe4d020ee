// Package client implements the jellysync synchronization engine: the
// room connection, the session roster, the playback reconciliation
// loop, chat sequencing and liveness monitoring.
//
// Concurrency model: inbound socket frames, local player events, timer
// firings and API calls are all discrete events serialized behind one
// mutex scoped to the whole event-handling step. Timers capture the
// session generation and become no-ops once the session they belong to
// is torn down.
package client

import (
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/jellysync/jellysync/internal/player"
	"github.com/jellysync/jellysync/internal/protocol"
	"github.com/jellysync/jellysync/internal/serverdir"
)

// Protocol constants. Overridable through Options so tests can shrink
// them; the wire contract expects the defaults.
const (
	DefaultHandshakeTimeout = 10 * time.Second
	DefaultAnnounceInterval = 3 * time.Second
	DefaultLivenessTimeout  = 15 * time.Second
	DefaultChatFreshFor     = 5 * time.Second
	DefaultChatHistoryLimit = 100
)

// Options configures a client. Directory is required: the engine
// refuses sessions whose announced media server is not in it.
type Options struct {
	Directory serverdir.Directory
	// Player receives play/pause/seek/load commands derived from the
	// server-asserted state. Nil means observe-only.
	Player player.Player
	// Notifier receives engine events. Callbacks run inside the event
	// step and must not call back into the client.
	Notifier Notifier
	Logger   *slog.Logger

	HandshakeTimeout time.Duration
	AnnounceInterval time.Duration
	LivenessTimeout  time.Duration
	ChatFreshFor     time.Duration
	ChatHistoryLimit int
}

func (o Options) withDefaults() Options {
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	if o.Notifier == nil {
		o.Notifier = NopNotifier{}
	}
	if o.HandshakeTimeout <= 0 {
		o.HandshakeTimeout = DefaultHandshakeTimeout
	}
	if o.AnnounceInterval <= 0 {
		o.AnnounceInterval = DefaultAnnounceInterval
	}
	if o.LivenessTimeout <= 0 {
		o.LivenessTimeout = DefaultLivenessTimeout
	}
	if o.ChatFreshFor <= 0 {
		o.ChatFreshFor = DefaultChatFreshFor
	}
	if o.ChatHistoryLimit <= 0 {
		o.ChatHistoryLimit = DefaultChatHistoryLimit
	}
	return o
}

// Session is the room identity installed by a successful handshake and
// discarded wholesale on disconnect.
type Session struct {
	Room         string
	Leader       int
	You          int
	Members      []protocol.Member
	JellyfinHost string
	// ServerIndex is the position of JellyfinHost in the local server
	// directory, -1 if the directory does not order servers.
	ServerIndex int
}

// MemberPlaybackState is the last playback state the server broadcast
// for one member.
type MemberPlaybackState struct {
	Member     int
	State      protocol.PlayingState
	Timestamp  *float64
	BufferSecs *float64
}

// Notifier receives engine events for UI consumption.
type Notifier interface {
	OnChat(entry ChatEntry)
	OnRosterChanged(members []protocol.Member)
	OnLeaderChanged(newLeader int)
	OnServerState(state protocol.PlayingState, timestamp *float64, media string)
	OnDisconnect(reason string)
}

// NopNotifier ignores every event.
type NopNotifier struct{}

func (NopNotifier) OnChat(ChatEntry)                                      {}
func (NopNotifier) OnRosterChanged([]protocol.Member)                     {}
func (NopNotifier) OnLeaderChanged(int)                                   {}
func (NopNotifier) OnServerState(protocol.PlayingState, *float64, string) {}
func (NopNotifier) OnDisconnect(string)                                   {}

// Client is one connected room session. Zero value is not usable;
// obtain one from Create or Join.
type Client struct {
	opts   Options
	logger *slog.Logger

	mu         sync.Mutex
	generation uint64
	conn       *websocket.Conn
	session    *Session
	done       chan struct{}

	// local playback view, derived from player events only
	localState protocol.PlayingState
	media      string
	timestamp  *float64
	bufferSecs *float64

	// server-asserted playback view
	serverState     protocol.PlayingState
	serverTimestamp *float64

	memberStates map[int]MemberPlaybackState

	chatSeq   int
	chatIndex int
	chat      []ChatEntry

	announceTimer *time.Timer
	livenessTimer *time.Timer
}

func newClient(opts Options) *Client {
	return &Client{
		opts:         opts,
		logger:       opts.Logger,
		localState:   protocol.StateNothingPlaying,
		serverState:  protocol.StateNothingPlaying,
		memberStates: make(map[int]MemberPlaybackState),
		done:         make(chan struct{}),
	}
}

// Done is closed when the session ends, whether by Disconnect, a socket
// error or a liveness timeout. After teardown it stays closed.
func (c *Client) Done() <-chan struct{} {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.done
}

// Connected reports whether the session socket is still open.
func (c *Client) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn != nil
}

// Session returns a snapshot of the current session, or nil.
func (c *Client) Session() *Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session == nil {
		return nil
	}
	s := *c.session
	s.Members = append([]protocol.Member(nil), c.session.Members...)
	return &s
}

// LocalState returns the playback state derived from the local player.
func (c *Client) LocalState() protocol.PlayingState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.localState
}

// ServerState returns the last state the server asserted.
func (c *Client) ServerState() protocol.PlayingState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.serverState
}

// Media returns the current opaque media identifier, "" if none.
func (c *Client) Media() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.media
}

// MemberState returns the last broadcast playback state for a member.
func (c *Client) MemberState(index int) (MemberPlaybackState, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	state, ok := c.memberStates[index]
	return state, ok
}

// readPump delivers inbound frames, in transport order, into the
// serialized dispatch path. A read error of any kind ends the session.
func (c *Client) readPump(conn *websocket.Conn, generation uint64) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			c.mu.Lock()
			if c.generation == generation {
				c.logger.Info("socket closed", "error", err)
				c.teardownLocked("socket closed")
			}
			c.mu.Unlock()
			return
		}

		c.mu.Lock()
		if c.generation != generation {
			c.mu.Unlock()
			return
		}
		c.handleFrameLocked(data)
		c.mu.Unlock()
	}
}

func (c *Client) handleFrameLocked(data []byte) {
	frame, err := protocol.Decode(data)
	if err != nil {
		c.logger.Warn("dropping frame", "error", err)
		return
	}

	switch f := frame.(type) {
	case *protocol.PingFrame:
		c.onPingLocked()
	case *protocol.MemberChangeFrame:
		c.onRosterChangedLocked(f.Members)
	case *protocol.LeaderChangeFrame:
		c.onLeaderChangedLocked(f.NewLeader)
	case *protocol.MemberPlaybackStateFrame:
		c.onMemberPlaybackStateLocked(f)
	case *protocol.PlaybackStateFrame:
		c.onServerPlaybackStateLocked(f.State, f.Timestamp, f.Media)
	case *protocol.ChatFrame:
		c.onChatLocked(f)
	default:
		// session frames mid-stream, stray pongs and echoed requests
		// carry nothing for an established session
		c.logger.Debug("ignoring frame", "frame", frame)
	}
}

// send writes one frame on the session socket. Sends on a closed or
// absent socket are silent no-ops; all outbound traffic flows through
// here so ordering and error handling stay centralized.
func (c *Client) sendLocked(frame any) {
	if c.conn == nil {
		return
	}
	if err := c.conn.WriteJSON(frame); err != nil {
		c.logger.Warn("failed to write frame", "error", err)
	}
}
