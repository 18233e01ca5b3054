package runtime

import (
	"strings"
	"sync"
)

// StreamCollector accumulates streaming chat chunks. Pass its Add method as
// the onChunk callback and read the combined text afterwards.
//
// Thread-safe for concurrent append and read operations.
//
// Example:
//
//	col := runtime.NewStreamCollector()
//	final, err := rt.ChatStream(ctx, "anthropic", msgs, col.Add)
//	if err != nil {
//	    // col.Text() still holds whatever arrived before the failure
//	}
type StreamCollector struct {
	mu     sync.RWMutex
	text   strings.Builder
	chunks int
}

// NewStreamCollector creates an empty collector.
func NewStreamCollector() *StreamCollector {
	return &StreamCollector{}
}

// Add appends one chunk. It satisfies the onChunk callback signature.
func (c *StreamCollector) Add(chunk string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.text.WriteString(chunk)
	c.chunks++
}

// Text returns the chunks concatenated in arrival order.
func (c *StreamCollector) Text() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.text.String()
}

// Chunks returns the number of chunks received so far.
func (c *StreamCollector) Chunks() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.chunks
}

// Len returns the current length of the accumulated text.
func (c *StreamCollector) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.text.Len()
}

// Reset clears the collector for reuse.
func (c *StreamCollector) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.text.Reset()
	c.chunks = 0
}
