package stream

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"

	"github.com/datviz/datviz-app/internal/protocol"
)

// ViewerStats tracks what a Viewer has seen.
type ViewerStats struct {
	ConnectLatency time.Duration
	Frames         int
	Discs          int // discs in the last frame
	Lines          int // lines in the last frame
	Errors         int
}

// Viewer is a WebSocket client of the stream server, used by datvizctl and
// tests. Send and Close are goroutine-safe; NextFrame must be called from a
// single goroutine.
type Viewer struct {
	conn      net.Conn
	writeMu   sync.Mutex
	closeOnce sync.Once
	started   protocol.ViewStartedMsg
	stats     ViewerStats
}

// Dial connects to url and waits for the view_started message.
func Dial(ctx context.Context, url string) (*Viewer, error) {
	start := time.Now()
	conn, br, _, err := ws.Dial(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("dial: %w", err)
	}
	v := &Viewer{conn: newClientConn(conn, br)}
	v.stats.ConnectLatency = time.Since(start)

	typ, data, err := v.read(ctx)
	if err != nil {
		v.Close()
		return nil, err
	}
	if typ != protocol.TypeViewStarted {
		v.Close()
		return nil, fmt.Errorf("stream: expected %s, got %s", protocol.TypeViewStarted, typ)
	}
	if err := json.Unmarshal(data, &v.started); err != nil {
		v.Close()
		return nil, fmt.Errorf("stream: decode view_started: %w", err)
	}
	return v, nil
}

// Started returns the view_started message.
func (v *Viewer) Started() protocol.ViewStartedMsg { return v.started }

// Stats returns a copy of the viewer's counters.
func (v *Viewer) Stats() ViewerStats { return v.stats }

// Send writes a JSON message to the server.
func (v *Viewer) Send(msg interface{}) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal: %w", err)
	}
	v.writeMu.Lock()
	defer v.writeMu.Unlock()
	return wsutil.WriteClientMessage(v.conn, ws.OpText, data)
}

// Resize asks the server to resize the viewer's surface.
func (v *Viewer) Resize(width, height int) error {
	return v.Send(protocol.ResizeMsg{Type: protocol.TypeResize, Width: width, Height: height})
}

// NextFrame reads until the next frame arrives. Pong messages are skipped and
// error messages are returned as errors.
func (v *Viewer) NextFrame(ctx context.Context) (*protocol.FrameMsg, error) {
	for {
		typ, data, err := v.read(ctx)
		if err != nil {
			return nil, err
		}
		switch typ {
		case protocol.TypeFrame:
			var f protocol.FrameMsg
			if err := json.Unmarshal(data, &f); err != nil {
				v.stats.Errors++
				return nil, fmt.Errorf("stream: decode frame: %w", err)
			}
			v.stats.Frames++
			v.stats.Discs, v.stats.Lines = len(f.Discs), len(f.Lines)
			return &f, nil
		case protocol.TypeError:
			var e protocol.ErrorMsg
			_ = json.Unmarshal(data, &e)
			v.stats.Errors++
			return nil, fmt.Errorf("stream: server error %s: %s", e.Code, e.Message)
		}
	}
}

// Close closes the connection. It is safe to call multiple times.
func (v *Viewer) Close() error {
	var err error
	v.closeOnce.Do(func() {
		err = v.conn.Close()
	})
	return err
}

func (v *Viewer) read(ctx context.Context) (string, []byte, error) {
	if dl, ok := ctx.Deadline(); ok {
		_ = v.conn.SetReadDeadline(dl)
		defer v.conn.SetReadDeadline(time.Time{})
	}
	data, err := wsutil.ReadServerText(v.conn)
	if err != nil {
		return "", nil, fmt.Errorf("stream: read: %w", err)
	}
	var env struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &env); err != nil {
		return "", nil, fmt.Errorf("stream: decode envelope: %w", err)
	}
	return env.Type, data, nil
}

// clientConn reads through the handshake buffer first. The server may send
// frames in the same packet as the upgrade response, and those bytes are
// only in br. br is left to the collector rather than returned with
// ws.PutReader, since a concurrent Close could otherwise recycle it under a
// pending Read.
type clientConn struct {
	net.Conn
	r io.Reader
}

func newClientConn(conn net.Conn, br *bufio.Reader) net.Conn {
	if br == nil {
		return conn
	}
	return &clientConn{Conn: conn, r: io.MultiReader(br, conn)}
}

func (c *clientConn) Read(p []byte) (int, error) { return c.r.Read(p) }
