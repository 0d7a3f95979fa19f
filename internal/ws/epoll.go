//go:build linux

package ws

import (
	"net"
	"sync"
	"syscall"

	"golang.org/x/sys/unix"
)

// Epoll multiplexes read readiness for every open channel through one kernel
// epoll instance, so the server runs a bounded worker pool instead of a
// goroutine per connection. The interest list is keyed by socket fd and
// resolves straight back to the owning Connection, so ready channels come out
// of Wait with their identity and write state attached.
type Epoll struct {
	fd       int
	mu       sync.RWMutex
	channels map[int]*Connection // fd -> owning channel
	events   []unix.EpollEvent   // reusable buffer for Wait
}

// NewEpoll creates the epoll instance via epoll_create1.
func NewEpoll() (*Epoll, error) {
	fd, err := unix.EpollCreate1(0)
	if err != nil {
		return nil, err
	}
	return &Epoll{
		fd:       fd,
		channels: make(map[int]*Connection),
		events:   make([]unix.EpollEvent, 128),
	}, nil
}

// Add puts the channel's socket on the interest list for input and hangup
// events.
func (e *Epoll) Add(c *Connection) error {
	if err := unix.EpollCtl(e.fd, syscall.EPOLL_CTL_ADD, c.Fd, &unix.EpollEvent{
		Events: unix.EPOLLIN | unix.EPOLLHUP,
		Fd:     int32(c.Fd),
	}); err != nil {
		return err
	}

	e.mu.Lock()
	e.channels[c.Fd] = c
	e.mu.Unlock()
	return nil
}

// Remove drops the channel from the lookup map and the interest list. The
// map entry goes first so a concurrent Wait cannot resurrect a channel whose
// fd the kernel already forgot.
func (e *Epoll) Remove(c *Connection) error {
	e.mu.Lock()
	delete(e.channels, c.Fd)
	e.mu.Unlock()

	return unix.EpollCtl(e.fd, syscall.EPOLL_CTL_DEL, c.Fd, nil)
}

// Wait blocks until at least one registered socket is readable and returns
// the owning channels. A channel removed between the kernel wakeup and the
// lookup is skipped.
func (e *Epoll) Wait() ([]*Connection, error) {
	n, err := unix.EpollWait(e.fd, e.events, -1)
	if err != nil {
		return nil, err
	}

	e.mu.RLock()
	ready := make([]*Connection, 0, n)
	for i := 0; i < n; i++ {
		if c, ok := e.channels[int(e.events[i].Fd)]; ok {
			ready = append(ready, c)
		}
	}
	e.mu.RUnlock()
	return ready, nil
}

// Close releases the lookup map and the epoll file descriptor.
func (e *Epoll) Close() error {
	e.mu.Lock()
	e.channels = nil
	e.mu.Unlock()
	return unix.Close(e.fd)
}

// socketFD pulls the file descriptor out of a net.Conn without duplicating
// it (File() dups), so the same descriptor stays valid for the interest
// list.
func socketFD(conn net.Conn) int {
	sc, ok := conn.(syscall.Conn)
	if !ok {
		return -1
	}

	raw, err := sc.SyscallConn()
	if err != nil {
		return -1
	}

	fd := -1
	_ = raw.Control(func(sfd uintptr) {
		fd = int(sfd)
	})
	return fd
}
