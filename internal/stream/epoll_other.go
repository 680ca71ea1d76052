//go:build !linux

package stream

import (
	"bufio"
	"net"
	"sync"
)

// Epoll provides a goroutine-per-connection fallback for non-Linux platforms
// so the server runs on developer machines without epoll.
//
// Each monitored connection is wrapped in a peekConn whose buffered reader
// is shared with the server's frame reader, so detecting readiness never
// consumes bytes.
type Epoll struct {
	mu      sync.RWMutex
	conns   map[net.Conn]struct{}
	readyCh chan net.Conn // connections with pending data
	wakeCh  map[net.Conn]chan struct{}
	done    chan struct{}
	once    sync.Once
}

type peekConn struct {
	net.Conn
	r *bufio.Reader
}

func (c *peekConn) Read(p []byte) (int, error) { return c.r.Read(p) }

// NewEpoll creates a new fallback epoll instance.
func NewEpoll() (*Epoll, error) {
	return &Epoll{
		conns:   make(map[net.Conn]struct{}),
		readyCh: make(chan net.Conn, 128),
		wakeCh:  make(map[net.Conn]chan struct{}),
		done:    make(chan struct{}),
	}, nil
}

// Wrap returns the connection the server must read from and register.
func (e *Epoll) Wrap(conn net.Conn) net.Conn {
	return &peekConn{Conn: conn, r: bufio.NewReader(conn)}
}

// Add starts monitoring conn, which must come from Wrap.
func (e *Epoll) Add(conn net.Conn) error {
	wake := make(chan struct{}, 1)
	e.mu.Lock()
	e.conns[conn] = struct{}{}
	e.wakeCh[conn] = wake
	e.mu.Unlock()

	go e.monitor(conn, wake)
	return nil
}

// monitor peeks one byte to detect pending data, signals readiness and then
// waits for Rearm before peeking again, so a frame is never read by two
// goroutines at once.
func (e *Epoll) monitor(conn net.Conn, wake chan struct{}) {
	pc, ok := conn.(*peekConn)
	if !ok {
		return
	}
	for {
		_, err := pc.r.Peek(1)
		select {
		case e.readyCh <- conn:
		case <-e.done:
			return
		}
		if err != nil {
			return
		}
		select {
		case <-wake:
		case <-e.done:
			return
		}
	}
}

// Rearm lets the monitor of conn look for the next frame.
func (e *Epoll) Rearm(conn net.Conn) {
	e.mu.RLock()
	wake, ok := e.wakeCh[conn]
	e.mu.RUnlock()
	if ok {
		select {
		case wake <- struct{}{}:
		default:
		}
	}
}

// Remove unregisters a connection. Its monitor exits once the connection is
// closed.
func (e *Epoll) Remove(conn net.Conn) error {
	e.mu.Lock()
	delete(e.conns, conn)
	if wake, ok := e.wakeCh[conn]; ok {
		close(wake)
		delete(e.wakeCh, conn)
	}
	e.mu.Unlock()
	return nil
}

// Wait blocks until at least one connection is ready or the instance is
// closed.
func (e *Epoll) Wait() ([]net.Conn, error) {
	var first net.Conn
	select {
	case first = <-e.readyCh:
	case <-e.done:
		return nil, net.ErrClosed
	}

	conns := []net.Conn{first}
	for {
		select {
		case conn := <-e.readyCh:
			conns = append(conns, conn)
		default:
			return conns, nil
		}
	}
}

// Close shuts down the fallback epoll instance.
func (e *Epoll) Close() error {
	e.once.Do(func() { close(e.done) })
	return nil
}

func isEINTR(err error) bool { return false }

// socketFD is unused by the fallback; connections are keyed by value.
func socketFD(conn net.Conn) int {
	return -1
}
