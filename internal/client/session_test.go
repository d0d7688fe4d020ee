package client

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jellysync/jellysync/internal/protocol"
)

// recordingNotifier captures engine events for assertions.
type recordingNotifier struct {
	mu          sync.Mutex
	chats       []ChatEntry
	rosters     [][]protocol.Member
	leaders     []int
	disconnects []string
}

func (n *recordingNotifier) OnChat(entry ChatEntry) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.chats = append(n.chats, entry)
}

func (n *recordingNotifier) OnRosterChanged(members []protocol.Member) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.rosters = append(n.rosters, members)
}

func (n *recordingNotifier) OnLeaderChanged(newLeader int) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.leaders = append(n.leaders, newLeader)
}

func (n *recordingNotifier) OnServerState(protocol.PlayingState, *float64, string) {}

func (n *recordingNotifier) OnDisconnect(reason string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.disconnects = append(n.disconnects, reason)
}

func (n *recordingNotifier) snapshot() (chats int, leaders []int, disconnects []string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.chats), append([]int(nil), n.leaders...), append([]string(nil), n.disconnects...)
}

func TestRosterChangePrunesDepartedStates(t *testing.T) {
	c, serverConn := connectClient(t, testOptions(t))

	for _, index := range []int{0, 1} {
		require.NoError(t, serverConn.WriteJSON(map[string]any{
			"type":       protocol.TypeMemberPlaybackState,
			"member":     index,
			"state":      string(protocol.StatePaused),
			"timestamp":  1.0,
			"bufferSecs": 10.0,
		}))
	}
	require.Eventually(t, func() bool {
		_, ok := c.MemberState(1)
		return ok
	}, 2*time.Second, 10*time.Millisecond)

	// member 1 leaves
	require.NoError(t, serverConn.WriteJSON(map[string]any{
		"type":    protocol.TypeMemberChange,
		"members": soloMember("Alice"),
	}))

	require.Eventually(t, func() bool {
		_, ok := c.MemberState(1)
		return !ok
	}, 2*time.Second, 10*time.Millisecond)

	_, ok := c.MemberState(0)
	assert.True(t, ok, "states of present members survive roster changes")
	assert.Len(t, c.Session().Members, 1)
}

func TestLeaderChangeKeepsPlaybackState(t *testing.T) {
	c, serverConn := connectClient(t, testOptions(t))
	readFrameOfType(t, serverConn, protocol.TypeMemberPlaybackState)

	pushServerState(t, c, serverConn, protocol.StatePlaying, 4, "M1")
	require.Equal(t, protocol.StateBuffering, c.LocalState())

	require.NoError(t, serverConn.WriteJSON(map[string]any{
		"type":      protocol.TypeLeaderChange,
		"newLeader": 1,
	}))
	require.Eventually(t, func() bool {
		return c.Session().Leader == 1
	}, 2*time.Second, 10*time.Millisecond)

	assert.Equal(t, protocol.StateBuffering, c.LocalState())
	assert.Equal(t, protocol.StatePlaying, c.ServerState())
	assert.Equal(t, "M1", c.Media())
}

func TestDisconnectClearsSessionState(t *testing.T) {
	c, serverConn := connectClient(t, testOptions(t))

	require.NoError(t, serverConn.WriteJSON(map[string]any{
		"type": protocol.TypeChat, "member": 0, "message": "hi",
	}))
	require.Eventually(t, func() bool {
		return len(c.ChatHistory()) == 1
	}, 2*time.Second, 10*time.Millisecond)

	c.Disconnect()

	assert.False(t, c.Connected())
	assert.Nil(t, c.Session())
	assert.Empty(t, c.ChatHistory())
	assert.Equal(t, protocol.StateNothingPlaying, c.LocalState())
	assert.Equal(t, protocol.StateNothingPlaying, c.ServerState())
	assert.Equal(t, "", c.Media())
	_, ok := c.MemberState(0)
	assert.False(t, ok)
}

func TestNotifierReceivesEvents(t *testing.T) {
	notifier := &recordingNotifier{}
	opts := testOptions(t)
	opts.Notifier = notifier
	c, serverConn := connectClient(t, opts)

	require.NoError(t, serverConn.WriteJSON(map[string]any{
		"type": protocol.TypeChat, "member": 0, "message": "hi",
	}))
	require.NoError(t, serverConn.WriteJSON(map[string]any{
		"type":      protocol.TypeLeaderChange,
		"newLeader": 1,
	}))

	require.Eventually(t, func() bool {
		chats, leaders, _ := notifier.snapshot()
		return chats == 1 && len(leaders) == 1
	}, 2*time.Second, 10*time.Millisecond)

	c.Disconnect()

	_, leaders, disconnects := notifier.snapshot()
	assert.Equal(t, []int{1}, leaders)
	require.Len(t, disconnects, 1)
	assert.Equal(t, "disconnect requested", disconnects[0])
}
