package client

import (
	"errors"
	"time"

	"github.com/jellysync/jellysync/internal/protocol"
)

// ErrNotLeader reports a media change attempted by a non-leader. This
// is the one client-side leadership gate; plain state-change requests
// are sent optimistically and arbitrated by the server.
var ErrNotLeader = errors.New("not the session leader")

// PlaybackEnded handles the local player reaching the end of the item
// or being torn down. Both playback views drop to nothing-playing.
func (c *Client) PlaybackEnded() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.localState = protocol.StateNothingPlaying
	c.serverState = protocol.StateNothingPlaying
	c.timestamp = nil
	c.bufferSecs = nil
	c.announceLocked()
}

// BufferStatusChanged handles a buffer report from the local player.
// Reaching can-play-through while buffering lands on paused, never
// directly on playing; an explicit play-state event is required for
// that. Losing can-play-through while playing drops to buffering. The
// buffer length and timestamp are recorded either way.
func (c *Client) BufferStatusChanged(length, currentTime float64, canPlayThrough bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.bufferSecs = &length
	c.timestamp = &currentTime
	if canPlayThrough && c.localState == protocol.StateBuffering {
		c.localState = protocol.StatePaused
	} else if !canPlayThrough && c.localState == protocol.StatePlaying {
		c.localState = protocol.StateBuffering
	}
	c.announceLocked()
}

// TimeChanged records the player position. A pure timestamp update does
// not announce; the periodic announce carries it.
func (c *Client) TimeChanged(to float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.timestamp = &to
}

// BufferingStarted handles a stall reported by the local player.
func (c *Client) BufferingStarted() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.localState = protocol.StateBuffering
	c.announceLocked()
}

// PlayStateChanged handles an explicit play/pause transition of the
// local player.
func (c *Client) PlayStateChanged(newState protocol.PlayingState) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.localState = newState
	c.announceLocked()
}

// onServerPlaybackStateLocked applies an authoritative playback push.
// The media reference updates unconditionally when present. A non-idle
// assertion records the server timestamp as the pending sync target
// and, if this client is idle, promotes it to buffering so a newly
// joined member picks up the in-progress session.
func (c *Client) onServerPlaybackStateLocked(state protocol.PlayingState, timestamp *float64, media *string) {
	mediaChanged := false
	if media != nil && *media != c.media {
		c.media = *media
		mediaChanged = true
	}

	if state != protocol.StateNothingPlaying {
		c.serverTimestamp = timestamp
		c.serverState = state
		if c.localState == protocol.StateNothingPlaying {
			c.localState = protocol.StateBuffering
			c.announceLocked()
		}
	}

	c.driveTrackedPlayerLocked(state, timestamp, mediaChanged)
	c.opts.Notifier.OnServerState(state, timestamp, c.media)
}

// driveTrackedPlayerLocked forwards the server assertion to the local
// player collaborator, when one is attached. Player errors are logged
// and never fatal to the session.
func (c *Client) driveTrackedPlayerLocked(state protocol.PlayingState, timestamp *float64, mediaChanged bool) {
	p := c.opts.Player
	if p == nil {
		return
	}

	if mediaChanged && c.media != "" {
		if err := p.Load(c.media); err != nil {
			c.logger.Warn("player load failed", "media", c.media, "error", err)
		}
	}
	if timestamp != nil {
		if err := p.SeekTo(*timestamp); err != nil {
			c.logger.Warn("player seek failed", "error", err)
		}
	}
	switch state {
	case protocol.StatePlaying:
		if err := p.Play(); err != nil {
			c.logger.Warn("player play failed", "error", err)
		}
	case protocol.StatePaused:
		if err := p.Pause(); err != nil {
			c.logger.Warn("player pause failed", "error", err)
		}
	}
}

// ServerTimestamp returns the pending seek target the server last
// asserted, nil if none.
func (c *Client) ServerTimestamp() *float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.serverTimestamp
}

// RequestStateChange asks the server for a global playback change. No
// leadership check happens here; the server arbitrates.
func (c *Client) RequestStateChange(state protocol.PlayingState, timestamp *float64, media *string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.sendLocked(&protocol.ChangePlaybackStateFrame{
		Type:      protocol.TypeChangePlaybackState,
		State:     state,
		Timestamp: timestamp,
		Media:     media,
	})
}

// TogglePlay requests pause when the server-asserted state is running
// (playing or buffering), play otherwise, at the current local
// position.
func (c *Client) TogglePlay() {
	c.mu.Lock()
	defer c.mu.Unlock()

	state := protocol.StatePlaying
	if c.serverState == protocol.StateBuffering || c.serverState == protocol.StatePlaying {
		state = protocol.StatePaused
	}
	c.sendLocked(&protocol.ChangePlaybackStateFrame{
		Type:      protocol.TypeChangePlaybackState,
		State:     state,
		Timestamp: c.timestamp,
	})
}

// SeekTo requests a global seek, keeping the playing/paused mode the
// local player is currently in.
func (c *Client) SeekTo(secs float64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	state := protocol.StatePaused
	if c.localState == protocol.StatePlaying {
		state = protocol.StatePlaying
	}
	c.sendLocked(&protocol.ChangePlaybackStateFrame{
		Type:      protocol.TypeChangePlaybackState,
		State:     state,
		Timestamp: &secs,
	})
}

// LeaderChangeMedia switches the watched item. Only the leader may
// emit it; everyone else gets ErrNotLeader without any traffic.
func (c *Client) LeaderChangeMedia(media string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.session == nil || c.session.You != c.session.Leader {
		return ErrNotLeader
	}
	timestamp := 0.0
	c.sendLocked(&protocol.ChangePlaybackStateFrame{
		Type:      protocol.TypeChangePlaybackState,
		State:     protocol.StatePlaying,
		Timestamp: &timestamp,
		Media:     &media,
	})
	return nil
}

// announceLocked emits one member-playback-state packet and reschedules
// the periodic announce. Rescheduling happens on every emission attempt
// from any trigger, so the cadence stays bounded by the interval with
// no drift accumulation. A non-idle announce with missing media,
// timestamp or buffer is skipped outright: sending it incomplete gets
// the client kicked for protocol violation. Without a session there is
// nothing to announce to and no timer may be armed; a trailing player
// event after teardown must not revive the announce chain.
func (c *Client) announceLocked() {
	if c.session == nil {
		return
	}
	c.rescheduleAnnounceLocked()

	frame := &protocol.MemberPlaybackStateFrame{
		Type:  protocol.TypeMemberPlaybackState,
		State: c.localState,
	}
	if c.localState != protocol.StateNothingPlaying {
		if c.media == "" || c.timestamp == nil || c.bufferSecs == nil {
			return
		}
		media := c.media
		frame.Media = &media
		frame.Timestamp = c.timestamp
		frame.BufferSecs = c.bufferSecs
	}
	c.sendLocked(frame)
}

func (c *Client) rescheduleAnnounceLocked() {
	if c.announceTimer != nil {
		c.announceTimer.Stop()
	}
	generation := c.generation
	c.announceTimer = time.AfterFunc(c.opts.AnnounceInterval, func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		if c.generation != generation {
			return
		}
		c.announceLocked()
	})
}
