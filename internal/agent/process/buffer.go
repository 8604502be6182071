package process

import (
	"bytes"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/Apothic-AI/bufo/internal/common/logger"
)

// TailBuffer is a bounded ring of the most recent stderr lines from the
// agent. It doubles as an io.Writer so it can be attached directly to the
// child's stderr; exec.Cmd then guarantees every byte has landed here before
// Wait returns, which keeps the tail complete when exit is reported.
type TailBuffer struct {
	logger *logger.Logger

	mu      sync.Mutex
	lines   []string
	size    int
	head    int
	count   int
	partial []byte
}

// NewTailBuffer creates a tail buffer holding at most size lines. Lines are
// also mirrored to the debug log when a logger is provided.
func NewTailBuffer(size int, log *logger.Logger) *TailBuffer {
	if size < 1 {
		size = 1
	}
	return &TailBuffer{
		logger: log,
		lines:  make([]string, size),
		size:   size,
	}
}

// Write splits incoming bytes into lines. A trailing fragment without a
// newline is held back until the next write or Flush.
func (b *TailBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	b.partial = append(b.partial, p...)
	var done []string
	for {
		idx := bytes.IndexByte(b.partial, '\n')
		if idx < 0 {
			break
		}
		line := strings.TrimSuffix(string(b.partial[:idx]), "\r")
		b.partial = b.partial[idx+1:]
		b.add(line)
		done = append(done, line)
	}
	b.mu.Unlock()

	if b.logger != nil {
		for _, line := range done {
			b.logger.Debug("agent stderr", zap.String("line", line))
		}
	}
	return len(p), nil
}

// Flush promotes an unterminated final fragment into the ring. Called once
// after the process exits.
func (b *TailBuffer) Flush() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.partial) == 0 {
		return
	}
	b.add(strings.TrimSuffix(string(b.partial), "\r"))
	b.partial = nil
}

// add appends a line to the ring. Caller holds b.mu.
func (b *TailBuffer) add(line string) {
	idx := (b.head + b.count) % b.size
	if b.count < b.size {
		b.count++
	} else {
		b.head = (b.head + 1) % b.size
	}
	b.lines[idx] = line
}

// Lines returns the buffered lines, oldest first.
func (b *TailBuffer) Lines() []string {
	b.mu.Lock()
	defer b.mu.Unlock()

	result := make([]string, b.count)
	for i := 0; i < b.count; i++ {
		result[i] = b.lines[(b.head+i)%b.size]
	}
	return result
}

// Last returns the most recent n lines, oldest first.
func (b *TailBuffer) Last(n int) []string {
	b.mu.Lock()
	defer b.mu.Unlock()

	if n > b.count {
		n = b.count
	}
	result := make([]string, n)
	start := b.count - n
	for i := 0; i < n; i++ {
		result[i] = b.lines[(b.head+start+i)%b.size]
	}
	return result
}

// Count returns the number of buffered lines.
func (b *TailBuffer) Count() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.count
}
