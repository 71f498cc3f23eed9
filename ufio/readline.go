//go:build linux
// +build linux

// File: ufio/readline.go
// Author: momentics <momentics@gmail.com>
//
// Delimited reads through a per-handle staging buffer.

package ufio

import (
	"bytes"
	"io"

	"github.com/vmamidi/UserFiber/api"
	"github.com/vmamidi/UserFiber/pool"
)

const defaultLineBufSize = 4096

// lineBuffer stages bytes read past a delimiter until the next ReadLine.
type lineBuffer struct {
	buf   []byte
	start int
	end   int
}

func (b *lineBuffer) Reset() { b.start, b.end = 0, 0 }

func (b *lineBuffer) staged() []byte { return b.buf[b.start:b.end] }

func (b *lineBuffer) consume(n int) {
	b.start += n
	if b.start == b.end {
		b.start, b.end = 0, 0
	}
}

// reserve makes room for at least need bytes in total, compacting first.
func (b *lineBuffer) reserve(need int) {
	if b.start > 0 {
		n := copy(b.buf, b.buf[b.start:b.end])
		b.start, b.end = 0, n
	}
	if len(b.buf) < need {
		grown := make([]byte, need)
		copy(grown, b.buf[:b.end])
		b.buf = grown
	}
}

// lineBuffers is shared by every IO thread; each thread draws from its own
// partition without locking.
var lineBuffers = newLineBufferPool()

func newLineBufferPool() *pool.ThreadMappedPool[lineBuffer] {
	p := pool.NewThreadMappedPool[lineBuffer](0, func() *lineBuffer {
		return &lineBuffer{buf: make([]byte, defaultLineBufSize)}
	})
	p.SetRecycler(pool.ResetRecycler[lineBuffer]{})
	p.SetMaxPoolSize(256)
	return p
}

func (h *Handle) lineBuf() *lineBuffer {
	if h.line == nil {
		h.lineTid = h.fiber.Runtime().ThreadID()
		h.line = lineBuffers.GetFor(h.lineTid)
	}
	return h.line
}

func (h *Handle) releaseLine() {
	if h.line != nil {
		lineBuffers.PutFor(h.lineTid, h.line)
		h.line = nil
	}
}

// ReadLine reads until delim or len(buf)-1 bytes, whichever comes first. The
// line is copied into buf without the delimiter and followed by a 0 byte;
// the returned count excludes both. Bytes received past the delimiter are
// kept for the next call, so ReadLine and Read should not be mixed on one
// handle. At end of stream the staged remainder is returned; with nothing
// staged the result is 0, io.EOF. On timeout or failure it returns -1.
func (h *Handle) ReadLine(buf []byte, delim byte, timeout api.Timeout) (int, error) {
	if len(buf) < 2 {
		return -1, api.ErrInvalidArgument
	}
	if h.fiber == nil {
		return -1, api.ErrNoScheduler
	}
	limit := len(buf) - 1
	lb := h.lineBuf()
	dl := newDeadline(timeout)
	for {
		staged := lb.staged()
		window := staged
		if len(window) > limit+1 {
			window = window[:limit+1]
		}
		if i := bytes.IndexByte(window, delim); i >= 0 && i <= limit {
			copy(buf, staged[:i])
			buf[i] = 0
			lb.consume(i + 1)
			return i, nil
		}
		if len(staged) >= limit {
			copy(buf, staged[:limit])
			buf[limit] = 0
			lb.consume(limit)
			return limit, nil
		}

		lb.reserve(limit + 1)
		n, err := h.read(lb.buf[lb.end:], dl)
		if err == io.EOF {
			rest := lb.staged()
			if len(rest) == 0 {
				return 0, io.EOF
			}
			n := copy(buf, rest)
			buf[n] = 0
			lb.consume(n)
			return n, nil
		}
		if err != nil {
			return -1, err
		}
		lb.end += n
	}
}

// ReadLineString is ReadLine returning at most max bytes as a string.
func (h *Handle) ReadLineString(max int, delim byte, timeout api.Timeout) (string, error) {
	buf := make([]byte, max+1)
	n, err := h.ReadLine(buf, delim, timeout)
	if err != nil {
		return "", err
	}
	return string(buf[:n]), nil
}
