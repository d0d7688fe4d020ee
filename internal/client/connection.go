package client

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/gorilla/websocket"

	"github.com/jellysync/jellysync/internal/protocol"
	"github.com/jellysync/jellysync/internal/serverdir"
	"github.com/jellysync/jellysync/pkg/validator"
)

var (
	// ErrConnectTimeout: neither the socket open nor the session frame
	// arrived within the handshake timeout.
	ErrConnectTimeout = errors.New("connect timeout")
	// ErrConnectRejected: the socket closed before a session frame
	// arrived. Usually the room does not exist.
	ErrConnectRejected = errors.New("connection rejected")
	// ErrUnknownServer: the handshake succeeded but the announced media
	// server is not one the user has authenticated with locally.
	ErrUnknownServer = errors.New("unknown media server")
	// ErrNoDirectory: Options.Directory was not provided.
	ErrNoDirectory = errors.New("no server directory configured")
)

// CreateParams opens a new room backed by one of the locally
// authenticated media servers.
type CreateParams struct {
	DisplayName      string
	DisplayNameColor string
	JellyfinHost     string
}

// JoinParams joins an existing room by id.
type JoinParams struct {
	Room             string
	DisplayName      string
	DisplayNameColor string
}

var validate = validator.NewValidator()

// Create connects to the sync server at serverURL and creates a room.
func Create(ctx context.Context, serverURL string, params CreateParams, opts Options) (*Client, error) {
	request := protocol.NewCreateRequest(params.DisplayName, params.DisplayNameColor, params.JellyfinHost)
	if errs, ok := validate.Validate(request); !ok {
		return nil, fmt.Errorf("invalid create request: %w", errs[0])
	}
	return connect(ctx, serverURL, request, opts)
}

// Join connects to the sync server at serverURL and joins a room.
func Join(ctx context.Context, serverURL string, params JoinParams, opts Options) (*Client, error) {
	request := protocol.NewJoinRequest(params.Room, params.DisplayName, params.DisplayNameColor)
	if errs, ok := validate.Validate(request); !ok {
		return nil, fmt.Errorf("invalid join request: %w", errs[0])
	}
	return connect(ctx, serverURL, request, opts)
}

// connect races the socket open against the handshake timeout, sends
// the initial request, then races the session frame against the same
// timeout and against the socket closing. There is no automatic retry;
// the caller decides whether to try again.
func connect(ctx context.Context, serverURL string, request any, opts Options) (*Client, error) {
	opts = opts.withDefaults()
	if opts.Directory == nil {
		return nil, ErrNoDirectory
	}

	// one deadline covers both races: time spent dialing shrinks the
	// window left for the session frame
	deadline := time.Now().Add(opts.HandshakeTimeout)
	dialCtx, cancel := context.WithDeadline(ctx, deadline)
	defer cancel()

	dialer := websocket.Dialer{HandshakeTimeout: opts.HandshakeTimeout}
	conn, _, err := dialer.DialContext(dialCtx, serverURL, nil)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w: %v", ErrConnectTimeout, err)
		}
		// closed or refused before opening counts as rejection, not timeout
		return nil, fmt.Errorf("%w: %v", ErrConnectRejected, err)
	}

	if err := conn.WriteJSON(request); err != nil {
		conn.Close()
		return nil, fmt.Errorf("%w: %v", ErrConnectRejected, err)
	}

	session, err := awaitSession(conn, deadline)
	if err != nil {
		conn.Close()
		return nil, err
	}

	// the handshake nominally succeeded, but a session on a media server
	// the user never authenticated with must not be accepted
	serverIndex, err := verifyHost(ctx, opts.Directory, session.JellyfinHost)
	if err != nil {
		conn.Close()
		return nil, err
	}

	c := newClient(opts)
	c.mu.Lock()
	c.conn = conn
	c.onJoinedLocked(session, serverIndex)
	generation := c.generation
	c.mu.Unlock()

	go c.readPump(conn, generation)

	return c, nil
}

// awaitSession reads frames until a session frame arrives or the
// handshake deadline passes. Frames of other types before the session
// frame are ignored, matching the handshake contract.
func awaitSession(conn *websocket.Conn, deadline time.Time) (*protocol.SessionFrame, error) {
	if err := conn.SetReadDeadline(deadline); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConnectRejected, err)
	}

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				return nil, fmt.Errorf("%w: no session frame before the handshake deadline", ErrConnectTimeout)
			}
			return nil, fmt.Errorf("%w: %v", ErrConnectRejected, err)
		}

		frame, err := protocol.Decode(data)
		if err != nil {
			// pre-session garbage is dropped, same as in-session garbage
			continue
		}
		if session, ok := frame.(*protocol.SessionFrame); ok {
			if err := conn.SetReadDeadline(time.Time{}); err != nil {
				return nil, fmt.Errorf("%w: %v", ErrConnectRejected, err)
			}
			return session, nil
		}
	}
}

func verifyHost(ctx context.Context, directory serverdir.Directory, host string) (int, error) {
	if _, err := directory.GetByAddress(ctx, host); err != nil {
		if errors.Is(err, serverdir.ErrNotFound) {
			return -1, fmt.Errorf("%w: %s", ErrUnknownServer, host)
		}
		return -1, fmt.Errorf("failed to look up server: %w", err)
	}

	index, err := directory.IndexByAddress(ctx, host)
	if err != nil {
		index = -1
	}
	return index, nil
}
