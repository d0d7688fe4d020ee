package client

import (
	"time"

	"github.com/jellysync/jellysync/internal/protocol"
)

const systemSenderColor = "lightgray"

// ChatEntry is one message in the session's bounded chat history. The
// sender name and color are resolved against the roster at receipt
// time; later roster changes do not rewrite history.
type ChatEntry struct {
	Sender     string
	Color      string
	Message    string
	Sequence   *int
	ReceivedAt time.Time
	// Fresh is set for the freshness window after receipt, for
	// transient UI emphasis.
	Fresh bool

	index int
}

// SendChat transmits a chat message with the next outbound sequence
// number. Sequence numbers start at 0 and are never reused within a
// session.
func (c *Client) SendChat(message string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	seq := c.chatSeq
	c.chatSeq++
	c.sendLocked(protocol.NewChatMessage(message, seq))
}

// ChatHistory returns a snapshot of the inbound chat window, oldest
// first.
func (c *Client) ChatHistory() []ChatEntry {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]ChatEntry(nil), c.chat...)
}

func (c *Client) onChatLocked(frame *protocol.ChatFrame) {
	if frame.Member == nil {
		c.logger.Warn("dropping chat frame without sender")
		return
	}

	entry := ChatEntry{
		Message:    frame.Message,
		Sequence:   frame.Sequence,
		ReceivedAt: time.Now(),
		Fresh:      true,
		index:      c.chatIndex,
	}
	c.chatIndex++

	if frame.Member.System {
		entry.Sender = "system"
		entry.Color = systemSenderColor
	} else {
		entry.Sender = c.displayNameLocked(frame.Member.Index)
		entry.Color = c.displayNameColorLocked(frame.Member.Index)
	}

	c.chat = append(c.chat, entry)
	if len(c.chat) > c.opts.ChatHistoryLimit {
		c.chat = c.chat[1:]
	}

	c.scheduleFreshnessExpiryLocked(entry.index)
	c.opts.Notifier.OnChat(entry)
}

// scheduleFreshnessExpiryLocked flips one entry's Fresh flag after the
// freshness window. The one-shot belongs to the session: teardown bumps
// the generation and the firing becomes a no-op.
func (c *Client) scheduleFreshnessExpiryLocked(index int) {
	generation := c.generation
	time.AfterFunc(c.opts.ChatFreshFor, func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		if c.generation != generation {
			return
		}
		for i := range c.chat {
			if c.chat[i].index == index {
				c.chat[i].Fresh = false
				return
			}
		}
	})
}

func (c *Client) displayNameLocked(index int) string {
	if c.session != nil {
		for _, m := range c.session.Members {
			if m.Index == index {
				return m.DisplayName
			}
		}
	}
	return "Unknown"
}

func (c *Client) displayNameColorLocked(index int) string {
	if c.session != nil {
		for _, m := range c.session.Members {
			if m.Index == index {
				return m.DisplayNameColor
			}
		}
	}
	return "Unknown"
}
