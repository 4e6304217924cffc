package securechannel

import (
	"crypto/rand"
	"encoding/binary"
	"sync"
)

// Sequence number limits (Part 6, 6.7.2.4).
const (
	// MaxSequenceNumber is the value a sender must exceed before wrapping.
	MaxSequenceNumber uint32 = 4294966271 // UInt32 max - 1024

	// SequenceWrapLimit bounds the first value after a wrap and the
	// initial value of a new channel.
	SequenceWrapLimit uint32 = 1024
)

// SequenceCounter hands out outgoing sequence numbers for one channel.
// It is safe for concurrent use.
type SequenceCounter struct {
	mu    sync.Mutex
	value uint32
}

// NewSequenceCounter creates a counter starting at a random value in
// [1, SequenceWrapLimit).
func NewSequenceCounter() *SequenceCounter {
	return &SequenceCounter{value: randomSequenceInit()}
}

// NewSequenceCounterWithValue creates a counter with a specific initial value.
// Used for testing.
func NewSequenceCounterWithValue(initial uint32) *SequenceCounter {
	return &SequenceCounter{value: initial}
}

// Next returns the next sequence number. Once a number above
// MaxSequenceNumber has been used the counter wraps to 1.
func (c *SequenceCounter) Next() uint32 {
	c.mu.Lock()
	defer c.mu.Unlock()

	current := c.value
	if c.value > MaxSequenceNumber {
		c.value = 1
	} else {
		c.value++
	}
	return current
}

// Current returns the value the next call to Next will return.
func (c *SequenceCounter) Current() uint32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.value
}

func randomSequenceInit() uint32 {
	var buf [4]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return 1
	}
	return binary.LittleEndian.Uint32(buf[:])%(SequenceWrapLimit-1) + 1
}

// SequenceWindow checks incoming sequence numbers for one channel.
// Each number must be greater than the last accepted one, except that a
// sender that went past MaxSequenceNumber may wrap to a value below SequenceWrapLimit.
type SequenceWindow struct {
	mu          sync.Mutex
	last        uint32
	initialized bool
}

// NewSequenceWindow creates a window that accepts any first number.
func NewSequenceWindow() *SequenceWindow {
	return &SequenceWindow{}
}

// Accept checks n and records it if valid.
func (w *SequenceWindow) Accept(n uint32) bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	if !w.initialized {
		w.last = n
		w.initialized = true
		return true
	}
	if n > w.last {
		w.last = n
		return true
	}
	if w.last > MaxSequenceNumber && n < SequenceWrapLimit {
		w.last = n
		return true
	}
	return false
}

// Last returns the last accepted number.
func (w *SequenceWindow) Last() uint32 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.last
}
