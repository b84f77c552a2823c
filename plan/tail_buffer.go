package plan

import (
	"sync"
)

const defaultOutputTailBytes = 64 * 1024 // kept in memory per command

// tailBuffer keeps only the last N bytes written to it so a representative
// snippet of command output can be attached to a failure without retaining
// the entire log in memory.
type tailBuffer struct {
	maxBytes int

	mu       sync.Mutex
	total    int64
	contents []byte
}

func newTailBuffer(maxBytes int) *tailBuffer {
	if maxBytes <= 0 {
		maxBytes = defaultOutputTailBytes
	}
	return &tailBuffer{maxBytes: maxBytes}
}

func (b *tailBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.total += int64(len(p))
	b.contents = append(b.contents, p...)
	if len(b.contents) > b.maxBytes {
		b.contents = b.contents[len(b.contents)-b.maxBytes:]
	}
	return len(p), nil
}

func (b *tailBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return string(b.contents)
}

func (b *tailBuffer) Truncated() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return int64(len(b.contents)) < b.total
}
