package client

import (
	"github.com/jellysync/jellysync/internal/protocol"
)

// onJoinedLocked installs a freshly negotiated session: arms the
// liveness watchdog and fires the first playback announce so the server
// learns this member's state immediately.
func (c *Client) onJoinedLocked(frame *protocol.SessionFrame, serverIndex int) {
	c.session = &Session{
		Room:         frame.Room,
		Leader:       frame.Leader,
		You:          frame.You,
		Members:      append([]protocol.Member(nil), frame.Members...),
		JellyfinHost: frame.JellyfinHost,
		ServerIndex:  serverIndex,
	}
	c.logger.Info("joined session",
		"room", frame.Room,
		"you", frame.You,
		"leader", frame.Leader,
		"members", len(frame.Members),
	)
	c.armLivenessLocked()
	c.announceLocked()
}

// onRosterChangedLocked replaces the member list verbatim and prunes
// playback states of members no longer present; stale entries must
// never reference a departed member.
func (c *Client) onRosterChangedLocked(members []protocol.Member) {
	if c.session == nil {
		return
	}
	c.session.Members = append([]protocol.Member(nil), members...)

	present := make(map[int]struct{}, len(members))
	for _, m := range members {
		present[m.Index] = struct{}{}
	}
	for index := range c.memberStates {
		if _, ok := present[index]; !ok {
			delete(c.memberStates, index)
		}
	}

	c.opts.Notifier.OnRosterChanged(append([]protocol.Member(nil), members...))
}

// onLeaderChangedLocked moves the leader index only. Playback state is
// untouched; the new leader's next push updates it.
func (c *Client) onLeaderChangedLocked(newLeader int) {
	if c.session == nil {
		return
	}
	c.session.Leader = newLeader
	c.logger.Info("leader changed", "newLeader", newLeader)
	c.opts.Notifier.OnLeaderChanged(newLeader)
}

func (c *Client) onMemberPlaybackStateLocked(frame *protocol.MemberPlaybackStateFrame) {
	if frame.Member == nil {
		c.logger.Warn("dropping member playback state without member index")
		return
	}
	c.memberStates[*frame.Member] = MemberPlaybackState{
		Member:     *frame.Member,
		State:      frame.State,
		Timestamp:  frame.Timestamp,
		BufferSecs: frame.BufferSecs,
	}
}

// Disconnect tears the session down: socket, timers, roster, chat and
// both playback views go at once. Idempotent.
func (c *Client) Disconnect() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.teardownLocked("disconnect requested")
}

func (c *Client) teardownLocked(reason string) {
	if c.conn == nil && c.session == nil {
		return
	}

	// invalidate every timer owned by this session; a stale firing
	// checks the generation and becomes a no-op
	c.generation++

	if c.announceTimer != nil {
		c.announceTimer.Stop()
		c.announceTimer = nil
	}
	if c.livenessTimer != nil {
		c.livenessTimer.Stop()
		c.livenessTimer = nil
	}

	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}

	c.session = nil
	c.chat = nil
	c.chatSeq = 0
	c.chatIndex = 0
	c.memberStates = make(map[int]MemberPlaybackState)
	c.localState = protocol.StateNothingPlaying
	c.serverState = protocol.StateNothingPlaying
	c.media = ""
	c.timestamp = nil
	c.bufferSecs = nil
	c.serverTimestamp = nil

	c.logger.Info("session torn down", "reason", reason)
	c.opts.Notifier.OnDisconnect(reason)
	// the early return above makes this the only close; the channel
	// stays closed so late Done callers see the ended session
	close(c.done)
}
