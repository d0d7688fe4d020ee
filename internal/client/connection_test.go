package client

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jellysync/jellysync/internal/protocol"
)

func TestConnectTimeoutWaitingForSession(t *testing.T) {
	fs := newFakeServer(t)
	opts := testOptions(t)
	opts.HandshakeTimeout = 200 * time.Millisecond

	type result struct {
		c   *Client
		err error
	}
	results := make(chan result, 1)
	go func() {
		c, err := Create(context.Background(), fs.url(), CreateParams{
			DisplayName:      "Alice",
			DisplayNameColor: "#fff",
			JellyfinHost:     testHost,
		}, opts)
		results <- result{c, err}
	}()

	serverConn := fs.accept(t)
	readFrame(t, serverConn) // swallow the create request, never answer

	res := <-results
	require.Error(t, res.err)
	assert.ErrorIs(t, res.err, ErrConnectTimeout)
	assert.Nil(t, res.c)
}

func TestConnectRejectedBySocketClose(t *testing.T) {
	fs := newFakeServer(t)
	opts := testOptions(t)
	opts.HandshakeTimeout = 2 * time.Second

	type result struct {
		c   *Client
		err error
	}
	results := make(chan result, 1)
	go func() {
		c, err := Join(context.Background(), fs.url(), JoinParams{
			Room:             "missing-room",
			DisplayName:      "Alice",
			DisplayNameColor: "#fff",
		}, opts)
		results <- result{c, err}
	}()

	serverConn := fs.accept(t)
	readFrame(t, serverConn)
	serverConn.Close()

	res := <-results
	require.Error(t, res.err)
	assert.ErrorIs(t, res.err, ErrConnectRejected)
	assert.Nil(t, res.c)
}

func TestConnectRejectedWhenDialFails(t *testing.T) {
	fs := newFakeServer(t)
	url := fs.url()
	fs.srv.Close()

	opts := testOptions(t)
	opts.HandshakeTimeout = time.Second

	_, err := Create(context.Background(), url, CreateParams{
		DisplayName:      "Alice",
		DisplayNameColor: "#fff",
		JellyfinHost:     testHost,
	}, opts)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrConnectRejected)
}

func TestConnectUnknownServer(t *testing.T) {
	fs := newFakeServer(t)
	opts := testOptions(t)

	type result struct {
		c   *Client
		err error
	}
	results := make(chan result, 1)
	go func() {
		c, err := Join(context.Background(), fs.url(), JoinParams{
			Room:             "R1",
			DisplayName:      "Alice",
			DisplayNameColor: "#fff",
		}, opts)
		results <- result{c, err}
	}()

	serverConn := fs.accept(t)
	readFrame(t, serverConn)

	// handshake succeeds, but the announced media server was never
	// authenticated locally
	payload := sessionPayload("R1", 0, 0, soloMember("Alice"))
	payload["jellyfinHost"] = "https://evil.example"
	require.NoError(t, serverConn.WriteJSON(payload))

	res := <-results
	require.Error(t, res.err)
	assert.ErrorIs(t, res.err, ErrUnknownServer)
	assert.Nil(t, res.c)
}

func TestConnectIgnoresFramesBeforeSession(t *testing.T) {
	fs := newFakeServer(t)
	opts := testOptions(t)

	type result struct {
		c   *Client
		err error
	}
	results := make(chan result, 1)
	go func() {
		c, err := Create(context.Background(), fs.url(), CreateParams{
			DisplayName:      "Alice",
			DisplayNameColor: "#fff",
			JellyfinHost:     testHost,
		}, opts)
		results <- result{c, err}
	}()

	serverConn := fs.accept(t)
	readFrame(t, serverConn)

	require.NoError(t, serverConn.WriteJSON(map[string]any{"type": protocol.TypePing}))
	require.NoError(t, serverConn.WriteJSON(sessionPayload("R1", 0, 0, soloMember("Alice"))))

	res := <-results
	require.NoError(t, res.err)
	t.Cleanup(res.c.Disconnect)
	assert.Equal(t, "R1", res.c.Session().Room)
}

func TestHandshakeDeadlineCoversBothRaces(t *testing.T) {
	// a slow upgrade eats into the same budget the session wait gets;
	// the two races together must stay bounded by one handshake timeout
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		conn.ReadMessage() // the create request; never answer
		time.Sleep(time.Second)
	}))
	t.Cleanup(srv.Close)

	opts := testOptions(t)
	opts.HandshakeTimeout = 400 * time.Millisecond

	start := time.Now()
	_, err := Create(context.Background(), "ws"+strings.TrimPrefix(srv.URL, "http"), CreateParams{
		DisplayName:      "Alice",
		DisplayNameColor: "#fff",
		JellyfinHost:     testHost,
	}, opts)
	elapsed := time.Since(start)

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrConnectTimeout)
	assert.Less(t, elapsed, 550*time.Millisecond,
		"handshake overran its single deadline: %s", elapsed)
}

func TestConnectValidatesRequest(t *testing.T) {
	fs := newFakeServer(t)
	opts := testOptions(t)

	_, err := Create(context.Background(), fs.url(), CreateParams{
		DisplayNameColor: "#fff",
		JellyfinHost:     testHost,
	}, opts)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "displayName")

	_, err = Join(context.Background(), fs.url(), JoinParams{
		DisplayName:      "Alice",
		DisplayNameColor: "#fff",
	}, opts)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "room")
}

func TestConnectRequiresDirectory(t *testing.T) {
	fs := newFakeServer(t)

	_, err := Create(context.Background(), fs.url(), CreateParams{
		DisplayName:      "Alice",
		DisplayNameColor: "#fff",
		JellyfinHost:     testHost,
	}, Options{})
	assert.ErrorIs(t, err, ErrNoDirectory)
}
