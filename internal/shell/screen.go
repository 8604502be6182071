package shell

import (
	"strings"
	"sync"

	"github.com/tuzig/vt10x"
)

// Screen feeds PTY output through a virtual terminal emulator and exposes
// the visible text. Control sequences are interpreted rather than stored, so
// snapshots read like what a user would see.
type Screen struct {
	mu   sync.Mutex
	term vt10x.Terminal
	cols int
	rows int
}

// NewScreen creates an emulated terminal of the given dimensions.
// Non-positive values select 80x24.
func NewScreen(cols, rows int) *Screen {
	if cols <= 0 {
		cols = defaultCols
	}
	if rows <= 0 {
		rows = defaultRows
	}
	return &Screen{
		term: vt10x.New(vt10x.WithSize(cols, rows)),
		cols: cols,
		rows: rows,
	}
}

// Write feeds raw PTY output into the emulator. It always reports the full
// chunk as written so it can sit on the output path as an io.Writer.
func (s *Screen) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, _ = s.term.Write(p)
	return len(p), nil
}

// Resize changes the emulated terminal dimensions.
func (s *Screen) Resize(cols, rows int) {
	if cols <= 0 || rows <= 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.term.Resize(cols, rows)
	s.cols = cols
	s.rows = rows
}

// Lines returns the visible rows with trailing whitespace trimmed.
func (s *Screen) Lines() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	lines := make([]string, s.rows)
	for row := 0; row < s.rows; row++ {
		chars := make([]rune, 0, s.cols)
		for col := 0; col < s.cols; col++ {
			g := s.term.Cell(col, row)
			if g.Char == 0 {
				chars = append(chars, ' ')
			} else {
				chars = append(chars, g.Char)
			}
		}
		lines[row] = strings.TrimRight(string(chars), " ")
	}
	return lines
}

// String returns the visible screen with trailing blank rows dropped.
func (s *Screen) String() string {
	lines := s.Lines()
	end := len(lines)
	for end > 0 && lines[end-1] == "" {
		end--
	}
	return strings.Join(lines[:end], "\n")
}
