// Package protocol defines the jellysync wire protocol: JSON frames
// exchanged over a persistent websocket, each one object with a "type"
// discriminator.
package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
)

// PlayingState is the playback state enum shared by both sides of the
// protocol.
type PlayingState string

const (
	StatePlaying        PlayingState = "playing"
	StatePaused         PlayingState = "paused"
	StateBuffering      PlayingState = "buffering"
	StateNothingPlaying PlayingState = "nothing-playing"
)

// Frame type discriminators.
const (
	TypeCreate              = "create"
	TypeJoin                = "join"
	TypeSession             = "session"
	TypeLeaderChange        = "leader-change"
	TypeMemberChange        = "member-change"
	TypeMemberPlaybackState = "member-playback-state"
	TypeChangePlaybackState = "change-playback-state"
	TypePlaybackState       = "playback-state"
	TypeChat                = "chat"
	TypePing                = "ping"
	TypePong                = "pong"
)

var (
	// ErrMalformedFrame reports a frame whose "type" field is missing or
	// not a string. Callers log and drop; it is never fatal to a session.
	ErrMalformedFrame = errors.New("malformed frame")
	// ErrUnknownType reports a frame with an unrecognized "type".
	ErrUnknownType = errors.New("unknown frame type")
)

// Member is one roster entry. Members are referenced only by Index,
// which is stable and unique within a session.
type Member struct {
	Index            int    `json:"index"`
	DisplayName      string `json:"displayName"`
	DisplayNameColor string `json:"displayNameColor"`
}

// CreateRequest opens a new room on the sync server.
type CreateRequest struct {
	Type             string `json:"type"`
	DisplayName      string `json:"displayName" validate:"required,max=64"`
	DisplayNameColor string `json:"displayNameColor" validate:"required,max=32"`
	JellyfinHost     string `json:"jellyfinHost" validate:"required,url"`
}

func NewCreateRequest(displayName, displayNameColor, jellyfinHost string) *CreateRequest {
	return &CreateRequest{
		Type:             TypeCreate,
		DisplayName:      displayName,
		DisplayNameColor: displayNameColor,
		JellyfinHost:     jellyfinHost,
	}
}

// JoinRequest joins an existing room.
type JoinRequest struct {
	Type             string `json:"type"`
	Room             string `json:"room" validate:"required"`
	DisplayName      string `json:"displayName" validate:"required,max=64"`
	DisplayNameColor string `json:"displayNameColor" validate:"required,max=32"`
}

func NewJoinRequest(room, displayName, displayNameColor string) *JoinRequest {
	return &JoinRequest{
		Type:             TypeJoin,
		Room:             room,
		DisplayName:      displayName,
		DisplayNameColor: displayNameColor,
	}
}

// SessionFrame is the handshake success response.
type SessionFrame struct {
	Type         string   `json:"type"`
	Room         string   `json:"room"`
	Leader       int      `json:"leader"`
	You          int      `json:"you"`
	Members      []Member `json:"members"`
	JellyfinHost string   `json:"jellyfinHost"`
}

// LeaderChangeFrame announces a new leader index.
type LeaderChangeFrame struct {
	Type      string `json:"type"`
	NewLeader int    `json:"newLeader"`
}

// MemberChangeFrame carries a full roster replacement.
type MemberChangeFrame struct {
	Type    string   `json:"type"`
	Members []Member `json:"members"`
}

// MemberPlaybackStateFrame describes one member's local playback state.
// Inbound frames carry Member; the client's own announces omit it, the
// server attributes them. Timestamp, BufferSecs and Media are absent
// when the state is nothing-playing.
type MemberPlaybackStateFrame struct {
	Type       string       `json:"type"`
	Member     *int         `json:"member,omitempty"`
	State      PlayingState `json:"state"`
	Media      *string      `json:"media,omitempty"`
	Timestamp  *float64     `json:"timestamp,omitempty"`
	BufferSecs *float64     `json:"bufferSecs,omitempty"`
}

// ChangePlaybackStateFrame requests a global playback state change. The
// server is the sole arbiter of whether to honor it.
type ChangePlaybackStateFrame struct {
	Type      string       `json:"type"`
	State     PlayingState `json:"state"`
	Timestamp *float64     `json:"timestamp"`
	Media     *string      `json:"media,omitempty"`
}

// PlaybackStateFrame is the server's authoritative playback push.
type PlaybackStateFrame struct {
	Type      string       `json:"type"`
	State     PlayingState `json:"state"`
	Timestamp *float64     `json:"timestamp,omitempty"`
	Media     *string      `json:"media,omitempty"`
}

// ChatSender is either the literal string "system" or a member index.
type ChatSender struct {
	System bool
	Index  int
}

func SystemSender() ChatSender          { return ChatSender{System: true} }
func MemberSender(index int) ChatSender { return ChatSender{Index: index} }

func (s ChatSender) MarshalJSON() ([]byte, error) {
	if s.System {
		return json.Marshal("system")
	}
	return json.Marshal(s.Index)
}

func (s *ChatSender) UnmarshalJSON(data []byte) error {
	var str string
	if err := json.Unmarshal(data, &str); err == nil {
		if str != "system" {
			return fmt.Errorf("unexpected chat sender %q", str)
		}
		s.System = true
		return nil
	}
	var index int
	if err := json.Unmarshal(data, &index); err != nil {
		return fmt.Errorf("chat sender is neither \"system\" nor an index: %w", err)
	}
	s.System = false
	s.Index = index
	return nil
}

// ChatFrame is both directions of chat. Outbound frames carry Message
// and Sequence; inbound frames carry Member and may omit Sequence.
type ChatFrame struct {
	Type     string      `json:"type"`
	Member   *ChatSender `json:"member,omitempty"`
	Message  string      `json:"message"`
	Sequence *int        `json:"sequence,omitempty"`
}

func NewChatMessage(message string, sequence int) *ChatFrame {
	return &ChatFrame{Type: TypeChat, Message: message, Sequence: &sequence}
}

// PingFrame is the server half of the liveness heartbeat.
type PingFrame struct {
	Type string `json:"type"`
}

// PongFrame is the client's reply to a ping.
type PongFrame struct {
	Type string `json:"type"`
}

func NewPong() *PongFrame { return &PongFrame{Type: TypePong} }

type envelope struct {
	Type json.RawMessage `json:"type"`
}

// Decode parses a raw frame into its concrete type. A missing or
// non-string "type" yields ErrMalformedFrame; a recognized envelope
// with an unknown discriminator yields ErrUnknownType.
func Decode(data []byte) (any, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedFrame, err)
	}
	var frameType string
	if err := json.Unmarshal(env.Type, &frameType); err != nil {
		return nil, fmt.Errorf("%w: type field missing or not a string", ErrMalformedFrame)
	}

	var frame any
	switch frameType {
	case TypeSession:
		frame = &SessionFrame{}
	case TypeLeaderChange:
		frame = &LeaderChangeFrame{}
	case TypeMemberChange:
		frame = &MemberChangeFrame{}
	case TypeMemberPlaybackState:
		frame = &MemberPlaybackStateFrame{}
	case TypeChangePlaybackState:
		frame = &ChangePlaybackStateFrame{}
	case TypePlaybackState:
		frame = &PlaybackStateFrame{}
	case TypeChat:
		frame = &ChatFrame{}
	case TypePing:
		frame = &PingFrame{}
	case TypePong:
		frame = &PongFrame{}
	case TypeCreate:
		frame = &CreateRequest{}
	case TypeJoin:
		frame = &JoinRequest{}
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, frameType)
	}

	if err := json.Unmarshal(data, frame); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedFrame, err)
	}
	return frame, nil
}
