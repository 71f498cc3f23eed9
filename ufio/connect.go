//go:build linux
// +build linux

// File: ufio/connect.go
// Author: momentics <momentics@gmail.com>

package ufio

import (
	"net"
	"strconv"

	"golang.org/x/sys/unix"

	"github.com/vmamidi/UserFiber/api"
)

// Connect connects to the IPv4 address sa, creating a non-blocking TCP
// socket first when the handle has none. It waits for the connection to be
// established within timeout and records the remote address on success.
func (h *Handle) Connect(sa unix.Sockaddr, timeout api.Timeout) error {
	sa4, ok := sa.(*unix.SockaddrInet4)
	if !ok {
		return api.ErrNotSupported
	}
	if h.fd < 0 {
		fd, err := unix.Socket(unix.AF_INET, unix.SOCK_STREAM|unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC, 0)
		if err != nil {
			h.setErr(err)
			return api.NewOpError("socket", -1, err)
		}
		h.fd = fd
		h.closed = false
		h.active = false
	}
	if !h.IsSetup(true) {
		return api.ErrBadFd
	}

	var err error
	for {
		err = unix.Connect(h.fd, sa4)
		if err != unix.EINTR {
			break
		}
	}
	switch err {
	case nil:
	case unix.EINPROGRESS, unix.EALREADY:
		if timeout == 0 {
			h.errno = unix.ETIMEDOUT
			return api.ErrTimeout
		}
		s, serr := h.scheduler()
		if serr != nil {
			return serr
		}
		if werr := s.SetupForConnect(h, timeout); werr != nil {
			if werr == api.ErrTimeout {
				h.errno = unix.ETIMEDOUT
			}
			return werr
		}
		soerr, gerr := unix.GetsockoptInt(h.fd, unix.SOL_SOCKET, unix.SO_ERROR)
		if gerr != nil {
			h.setErr(gerr)
			return api.NewOpError("getsockopt", h.fd, gerr)
		}
		if soerr != 0 {
			h.errno = unix.Errno(soerr)
			return &api.OpError{Op: "connect", Fd: h.fd, Err: h.errno}
		}
	default:
		h.setErr(err)
		return api.NewOpError("connect", h.fd, err)
	}

	h.errno = 0
	h.remoteIP = net.IP(sa4.Addr[:]).String()
	h.remotePort = sa4.Port
	return nil
}

// ConnectTo connects to an "ip:port" IPv4 address.
func (h *Handle) ConnectTo(addr string, timeout api.Timeout) error {
	sa, err := ParseSockaddr(addr)
	if err != nil {
		return err
	}
	return h.Connect(sa, timeout)
}

// ParseSockaddr parses an "ip:port" IPv4 address. IPv6 addresses yield
// api.ErrNotSupported.
func ParseSockaddr(addr string) (*unix.SockaddrInet4, error) {
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return nil, api.ErrInvalidArgument
	}
	p, err := strconv.Atoi(port)
	if err != nil || p < 0 || p > 65535 {
		return nil, api.ErrInvalidArgument
	}
	ip := net.ParseIP(host)
	if ip == nil {
		return nil, api.ErrInvalidArgument
	}
	ip4 := ip.To4()
	if ip4 == nil {
		return nil, api.ErrNotSupported
	}
	sa := &unix.SockaddrInet4{Port: p}
	copy(sa.Addr[:], ip4)
	return sa, nil
}

// sockaddrIP returns the textual address and port of an accepted peer.
func sockaddrIP(sa unix.Sockaddr) (string, int) {
	switch a := sa.(type) {
	case *unix.SockaddrInet4:
		return net.IP(a.Addr[:]).String(), a.Port
	case *unix.SockaddrInet6:
		return net.IP(a.Addr[:]).String(), a.Port
	}
	return "", 0
}
