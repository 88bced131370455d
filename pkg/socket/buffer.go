package socket

import "encoding/json"

// DefaultBufferSize bounds the replay buffer.
const DefaultBufferSize = 256

// replayBuffer keeps the most recent messages of the current connection.
// When full the oldest message is dropped. Not safe for concurrent use.
type replayBuffer struct {
	buf  []json.RawMessage
	head int
	size int
}

func newReplayBuffer(capacity int) *replayBuffer {
	if capacity <= 0 {
		capacity = DefaultBufferSize
	}
	return &replayBuffer{buf: make([]json.RawMessage, capacity)}
}

func (b *replayBuffer) push(msg json.RawMessage) {
	tail := (b.head + b.size) % len(b.buf)
	b.buf[tail] = msg
	if b.size < len(b.buf) {
		b.size++
		return
	}
	b.head = (b.head + 1) % len(b.buf)
}

func (b *replayBuffer) snapshot() []json.RawMessage {
	out := make([]json.RawMessage, b.size)
	for i := 0; i < b.size; i++ {
		out[i] = b.buf[(b.head+i)%len(b.buf)]
	}
	return out
}

func (b *replayBuffer) reset() {
	for i := range b.buf {
		b.buf[i] = nil
	}
	b.head = 0
	b.size = 0
}

func (b *replayBuffer) len() int {
	return b.size
}
