package shell

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScreenPlainText(t *testing.T) {
	s := NewScreen(40, 6)
	n, err := s.Write([]byte("hello\r\nworld\r\n"))
	require.NoError(t, err)
	assert.Equal(t, 14, n)

	lines := s.Lines()
	require.Len(t, lines, 6)
	assert.Equal(t, "hello", lines[0])
	assert.Equal(t, "world", lines[1])
	assert.Equal(t, "hello\nworld", s.String())
}

func TestScreenInterpretsColorSequences(t *testing.T) {
	s := NewScreen(40, 4)
	_, err := s.Write([]byte("\x1b[31mred\x1b[0m text\r\n"))
	require.NoError(t, err)

	assert.Equal(t, "red text", s.Lines()[0])
}

func TestScreenCarriageReturnOverwrites(t *testing.T) {
	s := NewScreen(40, 4)
	_, err := s.Write([]byte("12345\rab"))
	require.NoError(t, err)

	assert.Equal(t, "ab345", s.Lines()[0])
}

func TestScreenClearSequence(t *testing.T) {
	s := NewScreen(40, 4)
	_, err := s.Write([]byte("stale output\r\n"))
	require.NoError(t, err)
	require.Equal(t, "stale output", s.Lines()[0])

	_, err = s.Write([]byte("\x1b[2J\x1b[H"))
	require.NoError(t, err)
	assert.Equal(t, "", s.String())

	_, err = s.Write([]byte("fresh"))
	require.NoError(t, err)
	assert.Equal(t, "fresh", s.String())
}

func TestScreenWrapsAtWidth(t *testing.T) {
	s := NewScreen(10, 4)
	_, err := s.Write([]byte("abcdefghijXYZ"))
	require.NoError(t, err)

	lines := s.Lines()
	assert.Equal(t, "abcdefghij", lines[0])
	assert.Equal(t, "XYZ", lines[1])
}

func TestScreenResize(t *testing.T) {
	s := NewScreen(10, 2)
	s.Resize(40, 6)

	_, err := s.Write([]byte("one two three four\r\n"))
	require.NoError(t, err)

	lines := s.Lines()
	require.Len(t, lines, 6)
	assert.Equal(t, "one two three four", lines[0])

	// Nonsense dimensions are ignored.
	s.Resize(0, -1)
	assert.Len(t, s.Lines(), 6)
}
