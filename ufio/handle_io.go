//go:build linux
// +build linux

// File: ufio/handle_io.go
// Author: momentics <momentics@gmail.com>
//
// Stream and datagram operations on a Handle.

package ufio

import (
	"io"

	"golang.org/x/sys/unix"

	"github.com/vmamidi/UserFiber/api"
)

// Read reads up to len(buf) bytes. It returns 0, io.EOF when the peer shut
// down its side, and -1 with the error on timeout or failure.
//
// Readiness is edge triggered: when Read fills buf completely, call Read
// again before relying on the descriptor becoming ready, because bytes
// already buffered by the kernel produce no new event.
func (h *Handle) Read(buf []byte, timeout api.Timeout) (int, error) {
	return h.read(buf, newDeadline(timeout))
}

func (h *Handle) read(buf []byte, dl *deadline) (int, error) {
	var n int
	err := h.retry("read", interestRead, dl, func() (err error) {
		n, err = unix.Read(h.fd, buf)
		return err
	})
	if err != nil {
		return -1, err
	}
	if n == 0 && len(buf) > 0 {
		return 0, io.EOF
	}
	return n, nil
}

// Write writes all of buf, waiting for buffer space as needed. It returns
// the number of bytes written; on timeout or failure the error is returned
// along with the bytes that made it out.
func (h *Handle) Write(buf []byte, timeout api.Timeout) (int, error) {
	dl := newDeadline(timeout)
	total := 0
	for total < len(buf) {
		var n int
		err := h.retry("write", interestWrite, dl, func() (err error) {
			n, err = unix.Write(h.fd, buf[total:])
			return err
		})
		if err != nil {
			return total, err
		}
		total += n
	}
	return total, nil
}

// Writev writes every buffer of iovs in order, like Write.
func (h *Handle) Writev(iovs [][]byte, timeout api.Timeout) (int, error) {
	dl := newDeadline(timeout)
	pending := make([][]byte, 0, len(iovs))
	for _, b := range iovs {
		if len(b) > 0 {
			pending = append(pending, b)
		}
	}
	total := 0
	for len(pending) > 0 {
		var n int
		err := h.retry("writev", interestWrite, dl, func() (err error) {
			n, err = unix.Writev(h.fd, pending)
			return err
		})
		if err != nil {
			return total, err
		}
		total += n
		pending = advance(pending, n)
	}
	return total, nil
}

// advance drops the first n bytes from iovs.
func advance(iovs [][]byte, n int) [][]byte {
	for n > 0 && len(iovs) > 0 {
		if n < len(iovs[0]) {
			iovs[0] = iovs[0][n:]
			return iovs
		}
		n -= len(iovs[0])
		iovs = iovs[1:]
	}
	return iovs
}

// SendTo sends one datagram to sa.
func (h *Handle) SendTo(buf []byte, sa unix.Sockaddr, timeout api.Timeout) (int, error) {
	return h.SendMsg(buf, nil, sa, 0, timeout)
}

// SendMsg sends one message with optional ancillary data.
func (h *Handle) SendMsg(buf, oob []byte, sa unix.Sockaddr, flags int, timeout api.Timeout) (int, error) {
	var n int
	err := h.retry("sendmsg", interestWrite, newDeadline(timeout), func() (err error) {
		n, err = unix.SendmsgN(h.fd, buf, oob, sa, flags)
		return err
	})
	if err != nil {
		return -1, err
	}
	return n, nil
}

// RecvFrom receives one datagram and its source address.
func (h *Handle) RecvFrom(buf []byte, flags int, timeout api.Timeout) (int, unix.Sockaddr, error) {
	var (
		n    int
		from unix.Sockaddr
	)
	err := h.retry("recvfrom", interestRead, newDeadline(timeout), func() (err error) {
		n, from, err = unix.Recvfrom(h.fd, buf, flags)
		return err
	})
	if err != nil {
		return -1, nil, err
	}
	return n, from, nil
}

// RecvMsg receives one message with ancillary data. It returns the data and
// ancillary byte counts, the message flags and the source address.
func (h *Handle) RecvMsg(buf, oob []byte, flags int, timeout api.Timeout) (n, oobn, recvflags int, from unix.Sockaddr, err error) {
	err = h.retry("recvmsg", interestRead, newDeadline(timeout), func() (e error) {
		n, oobn, recvflags, from, e = unix.Recvmsg(h.fd, buf, oob, flags)
		return e
	})
	if err != nil {
		return -1, 0, 0, nil, err
	}
	return n, oobn, recvflags, from, nil
}
