package ingest

import (
	"bytes"
	"io"
	"strings"
	"testing"
	"testing/iotest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSkipBOM(t *testing.T) {
	tests := []struct {
		name     string
		input    []byte
		expected string
	}{
		{
			name:     "file with BOM",
			input:    append([]byte{0xEF, 0xBB, 0xBF}, []byte("a;b")...),
			expected: "a;b",
		},
		{
			name:     "file without BOM",
			input:    []byte("a;b"),
			expected: "a;b",
		},
		{
			name:     "empty file",
			input:    []byte{},
			expected: "",
		},
		{
			name:     "only BOM",
			input:    []byte{0xEF, 0xBB, 0xBF},
			expected: "",
		},
		{
			name:     "partial BOM at start",
			input:    []byte{0xEF, 0xBB, 'a'},
			expected: string([]byte{0xEF, 0xBB, 'a'}),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := io.ReadAll(skipBOM(bytes.NewReader(tt.input)))
			require.NoError(t, err)
			assert.Equal(t, tt.expected, string(result))
		})
	}
}

func TestUTF8Sanitizer(t *testing.T) {
	tests := []struct {
		name     string
		input    []byte
		expected string
	}{
		{"valid ASCII", []byte("hello;world"), "hello;world"},
		{"valid multibyte", []byte("São Paulo"), "São Paulo"},
		{"invalid byte replaced", []byte{'h', 'e', 0x80, 'l', 'o'}, "he?lo"},
		{"truncated rune at EOF", []byte{'a', 0xC3}, "a?"},
		{"empty input", []byte{}, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := io.ReadAll(newUTF8Sanitizer(bytes.NewReader(tt.input)))
			require.NoError(t, err)
			assert.Equal(t, tt.expected, string(result))
		})
	}
}

func TestUTF8Sanitizer_SplitRune(t *testing.T) {
	// One byte per read forces every multi-byte rune to straddle reads.
	src := iotest.OneByteReader(strings.NewReader("Conceição;ñ"))
	result, err := io.ReadAll(iotest.OneByteReader(newUTF8Sanitizer(src)))
	require.NoError(t, err)
	assert.Equal(t, "Conceição;ñ", string(result))
}

func TestCountingReader(t *testing.T) {
	input := strings.Repeat("x", 1000)
	reader := NewCountingReader(strings.NewReader(input), int64(len(input)))

	buf := make([]byte, 100)
	total := 0
	for {
		n, err := reader.Read(buf)
		total += n
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
	}

	assert.Equal(t, len(input), total)
	assert.Equal(t, int64(len(input)), reader.BytesRead)
	assert.Equal(t, 100, reader.Progress())
	assert.Equal(t, 0, NewCountingReader(strings.NewReader(""), 0).Progress())
}

func TestWrap(t *testing.T) {
	input := append([]byte{0xEF, 0xBB, 0xBF}, []byte{'h', 'e', 0x80, 'l', 'o'}...)

	reader := Wrap(bytes.NewReader(input), int64(len(input)))
	result, err := io.ReadAll(reader)
	require.NoError(t, err)

	assert.Equal(t, "he?lo", string(result))
	assert.Greater(t, reader.BytesRead, int64(0))
}
