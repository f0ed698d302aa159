package ingest

// readers.go holds the io.Reader wrappers every source file passes through
// before parsing:
//
//   - skipBOM drops a leading UTF-8 byte order mark written by spreadsheet exports
//   - utf8Sanitizer replaces invalid UTF-8 bytes with '?' without buffering the file
//   - CountingReader tracks bytes consumed for progress logging
//
// Use Wrap to apply them in the right order.

import (
	"bufio"
	"bytes"
	"io"
	"unicode/utf8"
)

var bom = []byte{0xEF, 0xBB, 0xBF}

// skipBOM returns a reader positioned after the UTF-8 BOM, if the input starts with one.
func skipBOM(r io.Reader) io.Reader {
	br := bufio.NewReader(r)
	head, _ := br.Peek(len(bom))
	if bytes.Equal(head, bom) {
		_, _ = br.Discard(len(bom))
	}
	return br
}

// utf8Sanitizer rewrites invalid UTF-8 as it streams. A multi-byte rune split
// across two reads of the source is carried over to the next fill.
type utf8Sanitizer struct {
	r     io.Reader
	buf   []byte
	out   []byte // sanitized bytes not handed out yet
	carry []byte
	err   error
}

func newUTF8Sanitizer(r io.Reader) *utf8Sanitizer {
	return &utf8Sanitizer{
		r:     r,
		buf:   make([]byte, 32*1024),
		carry: make([]byte, 0, utf8.UTFMax),
	}
}

func (s *utf8Sanitizer) Read(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	for empty := 0; len(s.out) == 0 && s.err == nil; empty++ {
		if empty == 100 {
			return 0, io.ErrNoProgress
		}
		s.fill()
	}
	if len(s.out) > 0 {
		n := copy(p, s.out)
		s.out = s.out[n:]
		return n, nil
	}
	return 0, s.err
}

func (s *utf8Sanitizer) fill() {
	off := copy(s.buf, s.carry)
	s.carry = s.carry[:0]

	n, err := s.r.Read(s.buf[off:])
	n += off
	if err != nil {
		s.err = err
	}
	data := s.buf[:n]
	s.out = data[:s.sanitize(data, err != nil)]
}

// sanitize cleans data in place and returns the number of bytes ready to hand out.
func (s *utf8Sanitizer) sanitize(data []byte, final bool) int {
	if !final {
		if tail := partialRuneSuffix(data); tail > 0 {
			s.carry = append(s.carry, data[len(data)-tail:]...)
			data = data[:len(data)-tail]
		}
	}
	if utf8.Valid(data) {
		return len(data)
	}

	w := 0
	for i := 0; i < len(data); {
		r, size := utf8.DecodeRune(data[i:])
		if r == utf8.RuneError && size == 1 {
			data[w] = '?'
			w++
			i++
			continue
		}
		w += copy(data[w:], data[i:i+size])
		i += size
	}
	return w
}

// partialRuneSuffix returns how many trailing bytes form the start of a
// multi-byte rune that is not complete yet.
func partialRuneSuffix(data []byte) int {
	for back := 1; back <= utf8.UTFMax-1 && back <= len(data); back++ {
		b := data[len(data)-back]
		if utf8.RuneStart(b) {
			if b < utf8.RuneSelf {
				return 0
			}
			if !utf8.FullRune(data[len(data)-back:]) {
				return back
			}
			return 0
		}
	}
	return 0
}

// CountingReader counts the bytes read through it.
type CountingReader struct {
	r         io.Reader
	BytesRead int64
	Total     int64 // 0 when unknown
}

// NewCountingReader wraps r. total may be 0 if the size is unknown.
func NewCountingReader(r io.Reader, total int64) *CountingReader {
	return &CountingReader{r: r, Total: total}
}

func (c *CountingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.BytesRead += int64(n)
	return n, err
}

// Progress returns the percentage read, or 0 if the total is unknown.
func (c *CountingReader) Progress() int {
	if c.Total <= 0 {
		return 0
	}
	return int(c.BytesRead * 100 / c.Total)
}

// Wrap applies BOM skipping, UTF-8 sanitizing and byte counting, in that order.
func Wrap(r io.Reader, total int64) *CountingReader {
	return NewCountingReader(newUTF8Sanitizer(skipBOM(r)), total)
}
