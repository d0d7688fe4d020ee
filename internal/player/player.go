// Package player abstracts the local media element the sync engine
// drives. The engine never touches media decoding; it issues coarse
// commands here and consumes the event methods on the engine side
// (PlaybackEnded, BufferStatusChanged, TimeChanged, BufferingStarted,
// PlayStateChanged) that implementations raise.
package player

// Player accepts playback commands derived from the server-asserted
// state. Implementations must be safe to call from the engine's
// dispatch goroutine and must not call back into the engine
// synchronously.
type Player interface {
	// Load switches the player to a new media item. The identifier is
	// opaque to the engine; only the media server understands it.
	Load(media string) error
	Play() error
	Pause() error
	SeekTo(secs float64) error
}

// Nop is a Player that ignores every command, for headless clients that
// only observe the room.
type Nop struct{}

func (Nop) Load(string) error    { return nil }
func (Nop) Play() error          { return nil }
func (Nop) Pause() error         { return nil }
func (Nop) SeekTo(float64) error { return nil }
