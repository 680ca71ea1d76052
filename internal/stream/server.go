// Package stream serves the animated background to browsers over WebSocket.
// Every viewer gets its own simulator and frame loop; frames are recorded as
// display lists and sent as JSON for the page to replay on its canvas.
package stream

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/datviz/datviz-app/internal/background"
	"github.com/datviz/datviz-app/internal/metrics"
	"github.com/datviz/datviz-app/internal/protocol"
)

// maxMessageSize bounds client data frames; viewers only send small control
// messages.
const maxMessageSize = 4096

// ServerConfig holds tunable parameters for the stream server.
type ServerConfig struct {
	WorkerPoolSize int           // max concurrent read-worker goroutines
	MaxViewers     int           // hard cap on concurrent viewers
	ReadTimeout    time.Duration // timeout for WebSocket read operations
	WriteTimeout   time.Duration // timeout for WebSocket write operations
	FrameInterval  time.Duration // time between animation frames
	DefaultWidth   int           // viewport width when the client sends none
	DefaultHeight  int           // viewport height when the client sends none
	Heartbeat      HeartbeatConfig
}

// DefaultServerConfig returns the production defaults.
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		WorkerPoolSize: 64,
		MaxViewers:     1000,
		ReadTimeout:    10 * time.Second,
		WriteTimeout:   5 * time.Second,
		FrameInterval:  33 * time.Millisecond,
		DefaultWidth:   1280,
		DefaultHeight:  720,
		Heartbeat:      DefaultHeartbeatConfig(),
	}
}

// Server upgrades HTTP requests to WebSocket viewers. Client frames are
// detected with epoll (a goroutine fallback off Linux) and read by a bounded
// worker pool; each viewer's frames are written by its own loop goroutine.
type Server struct {
	config     ServerConfig
	epoll      *Epoll
	conns      *ConnectionManager
	dispatcher *MessageDispatcher
	workerPool chan struct{} // semaphore limiting concurrent read workers
	ctx        context.Context
	cancel     context.CancelFunc
	wg         sync.WaitGroup
	started    atomic.Bool
	stopOnce   sync.Once
	startedAt  time.Time

	// admitMu guards viewer admission: closing, pending and the
	// registration of new connections.
	admitMu sync.Mutex
	closing bool
	pending int // admitted viewers not yet registered

	// newFrameSource is replaced in tests.
	newFrameSource func(time.Duration) background.FrameSource
}

// NewServer creates a Server with the given configuration. Call Start before
// serving requests.
func NewServer(config ServerConfig) *Server {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		config:         config,
		conns:          NewConnectionManager(),
		dispatcher:     NewMessageDispatcher(),
		workerPool:     make(chan struct{}, max(config.WorkerPoolSize, 1)),
		ctx:            ctx,
		cancel:         cancel,
		newFrameSource: background.NewTicker,
	}
	s.dispatcher.Register(protocol.TypeResize, s.handleResize)
	return s
}

// Start creates the poller and launches the event loop and heartbeat
// goroutines. It does not listen; mount the server on an HTTP router.
func (s *Server) Start() error {
	var err error
	s.epoll, err = NewEpoll()
	if err != nil {
		return fmt.Errorf("stream: failed to create epoll: %w", err)
	}
	s.startedAt = time.Now()
	s.started.Store(true)

	s.wg.Add(1)
	go s.startEventLoop()
	s.startHeartbeat(s.config.Heartbeat)

	log.Info().Int("workers", cap(s.workerPool)).Int("max_viewers", s.config.MaxViewers).
		Dur("frame_interval", s.config.FrameInterval).Msg("stream: server started")
	return nil
}

// ServeHTTP upgrades the request to a WebSocket viewer. The query parameters
// w and h give the initial viewport; missing or non-positive values use the
// configured defaults and large values are clamped.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if !s.started.Load() {
		http.Error(w, "stream not running", http.StatusServiceUnavailable)
		return
	}
	if msg := s.admit(); msg != "" {
		http.Error(w, msg, http.StatusServiceUnavailable)
		return
	}
	defer s.wg.Done()

	width := protocol.ClampDimension(queryInt(r, "w"), s.config.DefaultWidth)
	height := protocol.ClampDimension(queryInt(r, "h"), s.config.DefaultHeight)

	raw, _, _, err := ws.UpgradeHTTP(r, w)
	if err != nil {
		s.unreserve()
		log.Debug().Err(err).Msg("stream: upgrade failed")
		return
	}
	conn := s.epoll.Wrap(raw)

	vp := &viewport{w: width, h: height}
	list := background.NewDisplayList()
	c := &Connection{
		ID:           uuid.NewString(),
		Conn:         conn,
		CreatedAt:    time.Now(),
		sim:          background.New(list, vp, nil),
		list:         list,
		viewport:     vp,
		writeTimeout: s.config.WriteTimeout,
	}
	c.touch()

	// Registered before the poller sees the connection so the loop exists
	// before any client frame is read.
	if !s.register(c) {
		_ = raw.Close()
		return
	}
	metrics.StreamViewers.Inc()

	started, err := protocol.NewServerMessage(protocol.TypeViewStarted, protocol.ViewStartedMsg{
		ViewID:    c.ID,
		Width:     width,
		Height:    height,
		Particles: background.ParticleCount,
	})
	if err == nil {
		err = c.WriteMessage(started)
	}
	if err != nil {
		log.Debug().Str("viewer", c.ID).Err(err).Msg("stream: failed to send view_started")
		s.RemoveConnection(c)
		return
	}

	s.startLoop(c)
	if err := s.epoll.Add(conn); err != nil {
		log.Error().Str("viewer", c.ID).Err(err).Msg("stream: epoll add failed")
		s.RemoveConnection(c)
		return
	}

	log.Debug().Str("viewer", c.ID).Int("width", width).Int("height", height).
		Int("total", s.conns.Count()).Msg("stream: viewer connected")
}

// admit reserves a viewer slot and a WaitGroup token for one ServeHTTP
// call, or returns why the viewer is refused. The caller must release the
// token with wg.Done and the slot with register or unreserve.
func (s *Server) admit() string {
	s.admitMu.Lock()
	defer s.admitMu.Unlock()
	if s.closing {
		return "stream shutting down"
	}
	if s.conns.Count()+s.pending >= s.config.MaxViewers {
		return "too many viewers"
	}
	s.pending++
	s.wg.Add(1)
	return ""
}

func (s *Server) unreserve() {
	s.admitMu.Lock()
	s.pending--
	s.admitMu.Unlock()
}

// register turns a reserved slot into a registered connection. It fails once
// shutdown has begun, as Shutdown has already swept the registry.
func (s *Server) register(c *Connection) bool {
	s.admitMu.Lock()
	defer s.admitMu.Unlock()
	s.pending--
	if s.closing {
		return false
	}
	s.conns.Add(c)
	return true
}

// startLoop animates c until its connection is removed. A failed frame
// write ends the loop, which then removes the connection.
func (s *Server) startLoop(c *Connection) {
	var frameStart time.Time
	h := background.Loop{
		Framer: framerFunc(func() {
			frameStart = time.Now()
			c.sim.Frame()
		}),
		Source: s.newFrameSource(s.config.FrameInterval),
		OnFrame: func(seq uint64) bool {
			data, err := protocol.NewFrameMessage(seq, c.list.Snapshot())
			if err != nil {
				log.Error().Str("viewer", c.ID).Err(err).Msg("stream: encode frame")
				return false
			}
			metrics.FrameDuration.Observe(time.Since(frameStart).Seconds())
			if err := c.WriteMessage(data); err != nil {
				log.Debug().Str("viewer", c.ID).Err(err).Msg("stream: frame write failed")
				return false
			}
			metrics.StreamMessages.WithLabelValues("sent").Inc()
			return true
		},
	}.Start(s.ctx)
	c.loop.Store(h)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		<-h.Done()
		s.RemoveConnection(c)
	}()

	// Removed while the loop was starting: nothing else will stop it.
	if s.conns.Get(c.ID) == nil {
		h.Stop()
	}
}

type framerFunc func()

func (f framerFunc) Frame() { f() }

func (s *Server) handleResize(c *Connection, msg interface{}) {
	m, ok := msg.(protocol.ResizeMsg)
	if !ok {
		return
	}
	c.viewport.set(m.Width, m.Height)
	c.sim.Resize()
}

// HandleHealth responds with the server's health status as JSON, including
// the current viewer count and uptime.
func (s *Server) HandleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)

	resp := struct {
		Status  string `json:"status"`
		Viewers int    `json:"viewers"`
		Uptime  string `json:"uptime"`
	}{
		Status:  "ok",
		Viewers: s.conns.Count(),
		Uptime:  time.Since(s.startedAt).Round(time.Second).String(),
	}

	_ = json.NewEncoder(w).Encode(resp)
}

// startEventLoop runs the poller wait loop. Each ready connection is read by
// a worker goroutine bounded by the worker pool semaphore.
func (s *Server) startEventLoop() {
	defer s.wg.Done()
	for {
		if s.ctx.Err() != nil {
			return
		}

		conns, err := s.epoll.Wait()
		if err != nil {
			if s.ctx.Err() != nil {
				return
			}
			if isEINTR(err) {
				continue
			}
			log.Error().Err(err).Msg("stream: epoll wait error")
			time.Sleep(10 * time.Millisecond)
			continue
		}

		for _, conn := range conns {
			conn := conn
			select {
			case s.workerPool <- struct{}{}:
			case <-s.ctx.Done():
				return
			}
			s.wg.Add(1)
			go func() {
				defer s.wg.Done()
				defer func() { <-s.workerPool }()
				s.handleConn(conn)
			}()
		}
	}
}

// handleConn reads a single WebSocket frame from a ready connection. Control
// frames are answered without blocking on a data frame that may never
// arrive. A failed read removes the viewer.
func (s *Server) handleConn(netConn net.Conn) {
	c := s.conns.GetByConn(netConn)
	if c == nil {
		return
	}

	// Level-triggered epoll reports the same connection until it is read.
	if !atomic.CompareAndSwapInt32(&c.processing, 0, 1) {
		return
	}
	defer atomic.StoreInt32(&c.processing, 0)
	defer s.epoll.Rearm(netConn)

	if s.config.ReadTimeout > 0 {
		_ = netConn.SetReadDeadline(time.Now().Add(s.config.ReadTimeout))
	}

	header, reader, err := wsutil.NextReader(netConn, ws.StateServerSide)
	if err != nil {
		// A timeout means a stale dispatch; the heartbeat handles dead peers.
		if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
			return
		}
		s.RemoveConnection(c)
		return
	}
	_ = netConn.SetReadDeadline(time.Time{})
	c.touch()

	if header.OpCode.IsControl() {
		switch header.OpCode {
		case ws.OpClose:
			s.RemoveConnection(c)
		case ws.OpPing:
			c.writeMu.Lock()
			err := ws.WriteFrame(c.Conn, ws.NewPongFrame(nil))
			c.writeMu.Unlock()
			if err != nil {
				s.RemoveConnection(c)
			}
		}
		if header.Length > 0 {
			_, _ = io.CopyN(io.Discard, reader, header.Length)
		}
		return
	}

	if header.Length > maxMessageSize {
		log.Debug().Str("viewer", c.ID).Int64("length", header.Length).Msg("stream: message too large")
		s.RemoveConnection(c)
		return
	}

	data := make([]byte, header.Length)
	if header.Length > 0 {
		if _, err := io.ReadFull(reader, data); err != nil {
			s.RemoveConnection(c)
			return
		}
	}
	if len(data) == 0 {
		return
	}

	s.dispatcher.Dispatch(c, data)
}

// RemoveConnection stops the viewer's loop, unregisters the connection from
// the poller and the manager and closes it. It is safe to call more than
// once and from any goroutine except the viewer's own OnFrame callback.
func (s *Server) RemoveConnection(c *Connection) {
	_ = s.epoll.Remove(c.Conn)

	if !s.conns.Remove(c.ID) {
		return
	}
	if h := c.loop.Load(); h != nil {
		h.Stop()
	}
	metrics.StreamViewers.Dec()

	log.Debug().Str("viewer", c.ID).Int("total", s.conns.Count()).Msg("stream: viewer disconnected")
}

// Shutdown stops the event loop and heartbeat, stops every viewer's loop,
// closes all connections and waits for the server goroutines to exit.
func (s *Server) Shutdown() error {
	if !s.started.Load() {
		return nil
	}
	s.stopOnce.Do(func() {
		log.Info().Msg("stream: shutting down server...")
		s.admitMu.Lock()
		s.closing = true
		s.admitMu.Unlock()
		s.cancel()

		for _, c := range s.conns.All() {
			s.RemoveConnection(c)
		}
		s.wg.Wait()

		if err := s.epoll.Close(); err != nil {
			log.Error().Err(err).Msg("stream: epoll close")
		}
		log.Info().Msg("stream: server stopped, all viewers closed")
	})
	return nil
}

func queryInt(r *http.Request, key string) int {
	v, err := strconv.Atoi(r.URL.Query().Get(key))
	if err != nil {
		return 0
	}
	return v
}
