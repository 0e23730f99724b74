// Package syncbuffer collects the output of a child process while it is being
// written from the process' pipes.
package syncbuffer

import (
	"bytes"
	"sync"
)

type SyncBuffer struct {
	mu  sync.RWMutex
	buf bytes.Buffer
}

func (b *SyncBuffer) Write(p []byte) (n int, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.buf.Write(p)
}

func (b *SyncBuffer) String() string {
	b.mu.RLock()
	defer b.mu.RUnlock()

	return b.buf.String()
}

func (b *SyncBuffer) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()

	return b.buf.Len()
}

// Tail returns at most the last n bytes written, starting at a line boundary
// when one is available, so that error messages quoting server output stay readable.
func (b *SyncBuffer) Tail(n int) string {
	b.mu.RLock()
	defer b.mu.RUnlock()

	data := b.buf.Bytes()
	if len(data) <= n {
		return string(data)
	}
	data = data[len(data)-n:]
	if i := bytes.IndexByte(data, '\n'); i >= 0 && i < len(data)-1 {
		data = data[i+1:]
	}
	return string(data)
}
