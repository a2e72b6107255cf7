package audio

import (
	"sync"
)

const MIMEMP3 = "audio/mpeg"

// Clip is a reference-counted synthesized audio payload. The creator holds the
// first reference; every additional holder calls Retain and later Release.
// The payload is dropped when the last reference is released.
type Clip struct {
	mu       sync.Mutex
	data     []byte
	mime     string
	refs     int
	released bool
}

func NewClip(data []byte, mime string) *Clip {
	if mime == "" {
		mime = MIMEMP3
	}
	return &Clip{data: data, mime: mime, refs: 1}
}

// Retain adds a reference. It reports false once the clip has been released.
func (c *Clip) Retain() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.released {
		return false
	}
	c.refs++
	return true
}

func (c *Clip) Release() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.released {
		return
	}
	c.refs--
	if c.refs <= 0 {
		c.released = true
		c.data = nil
	}
}

// Bytes returns the payload, or nil after release.
func (c *Clip) Bytes() []byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.data
}

func (c *Clip) MIME() string { return c.mime }

func (c *Clip) Released() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.released
}

func (c *Clip) Size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.data)
}
