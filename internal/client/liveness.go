package client

import (
	"time"

	"github.com/jellysync/jellysync/internal/protocol"
)

// onPingLocked is the client half of the bidirectional heartbeat: reply
// with pong and push the silence watchdog out. The client never pings
// the server on its own.
func (c *Client) onPingLocked() {
	c.sendLocked(protocol.NewPong())
	c.armLivenessLocked()
}

// armLivenessLocked (re)starts the watchdog. If the server stays silent
// past the liveness timeout, the session is torn down unconditionally;
// there is no partial or degraded state.
func (c *Client) armLivenessLocked() {
	if c.livenessTimer != nil {
		c.livenessTimer.Stop()
	}
	generation := c.generation
	c.livenessTimer = time.AfterFunc(c.opts.LivenessTimeout, func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		if c.generation != generation {
			return
		}
		c.logger.Warn("liveness timeout, no ping from server", "timeout", c.opts.LivenessTimeout)
		c.teardownLocked("liveness timeout")
	})
}
