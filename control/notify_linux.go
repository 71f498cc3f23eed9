//go:build linux
// +build linux

// control/notify_linux.go
// Author: momentics <momentics@gmail.com>
//
// inotify based change notifications for configuration files.

package control

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"unsafe"

	"golang.org/x/sys/unix"
)

// Directories are watched rather than files so that editors replacing a
// file by rename keep being noticed.
const notifyMask = unix.IN_CLOSE_WRITE | unix.IN_MOVED_TO | unix.IN_DELETE

// notifier reports paths of watched files whose content may have changed.
type notifier struct {
	fd     int
	f      *os.File
	events chan []string
	done   chan struct{}

	mu    sync.Mutex
	dirs  map[int]string // wd -> directory
	files map[string]bool
}

func newNotifier() (*notifier, error) {
	fd, err := unix.InotifyInit1(unix.IN_NONBLOCK | unix.IN_CLOEXEC)
	if err != nil {
		return nil, os.NewSyscallError("inotify_init1", err)
	}
	n := &notifier{
		fd: fd,
		// non-blocking, so reads park in the runtime poller and Close
		// unblocks them
		f:      os.NewFile(uintptr(fd), "inotify"),
		events: make(chan []string, 1),
		done:   make(chan struct{}),
		dirs:   make(map[int]string),
		files:  make(map[string]bool),
	}
	go n.loop()
	return n, nil
}

// Add watches path. Adding a file of an already watched directory only
// registers its name.
func (n *notifier) Add(path string) error {
	dir := filepath.Dir(path)
	n.mu.Lock()
	defer n.mu.Unlock()
	n.files[path] = true
	for _, d := range n.dirs {
		if d == dir {
			return nil
		}
	}
	wd, err := unix.InotifyAddWatch(n.fd, dir, notifyMask)
	if err != nil {
		delete(n.files, path)
		return os.NewSyscallError("inotify_add_watch", err)
	}
	n.dirs[wd] = dir
	return nil
}

// Events delivers batches of changed paths. It is closed after Close.
func (n *notifier) Events() <-chan []string { return n.events }

func (n *notifier) Close() error {
	close(n.done)
	return n.f.Close()
}

func (n *notifier) loop() {
	defer close(n.events)
	buf := make([]byte, 64*(unix.SizeofInotifyEvent+unix.NAME_MAX+1))
	for {
		nr, err := n.f.Read(buf)
		if err != nil {
			if !errors.Is(err, os.ErrClosed) {
				select {
				case <-n.done:
				default:
					logNotifyErr(err)
				}
			}
			return
		}
		changed := n.parse(buf[:nr])
		if len(changed) == 0 {
			continue
		}
		select {
		case n.events <- changed:
		case <-n.done:
			return
		}
	}
}

func (n *notifier) parse(buf []byte) []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	var changed []string
	for off := 0; off+unix.SizeofInotifyEvent <= len(buf); {
		ev := (*unix.InotifyEvent)(unsafe.Pointer(&buf[off]))
		end := off + unix.SizeofInotifyEvent + int(ev.Len)
		if end > len(buf) {
			break
		}
		name := buf[off+unix.SizeofInotifyEvent : end]
		if i := bytes.IndexByte(name, 0); i >= 0 {
			name = name[:i]
		}
		off = end
		if ev.Mask&unix.IN_Q_OVERFLOW != 0 {
			// events were lost; treat every file as changed
			for p := range n.files {
				changed = append(changed, p)
			}
			continue
		}
		dir, ok := n.dirs[int(ev.Wd)]
		if !ok || len(name) == 0 {
			continue
		}
		if p := filepath.Join(dir, string(name)); n.files[p] {
			changed = append(changed, p)
		}
	}
	return changed
}
