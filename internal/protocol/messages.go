// Package protocol defines the WebSocket messages exchanged on the background
// stream. All messages are JSON objects with a "type" discriminator.
package protocol

import (
	"encoding/json"
	"fmt"

	"github.com/datviz/datviz-app/internal/background"
)

// ---------------------------------------------------------------------------
// Message type constants
// ---------------------------------------------------------------------------

// Client -> Server message types.
const (
	TypeResize = "resize"
	TypePing   = "ping"
)

// Server -> Client message types.
const (
	TypeViewStarted = "view_started"
	TypeFrame       = "frame"
	TypeError       = "error"
	TypePong        = "pong"
)

// MaxDimension bounds viewport sides accepted from clients.
const MaxDimension = 8192

// ---------------------------------------------------------------------------
// Envelope — used for initial JSON parsing to extract the type discriminator.
// ---------------------------------------------------------------------------

// Envelope holds the message type and the raw JSON payload for deferred
// parsing into a concrete struct.
type Envelope struct {
	Type string          `json:"type"`
	Raw  json.RawMessage `json:"-"`
}

// UnmarshalJSON implements the json.Unmarshaler interface. It captures the
// full raw bytes and extracts only the "type" field so that the rest of the
// payload can be decoded later into the appropriate concrete struct.
func (e *Envelope) UnmarshalJSON(data []byte) error {
	e.Raw = make(json.RawMessage, len(data))
	copy(e.Raw, data)

	var partial struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &partial); err != nil {
		return fmt.Errorf("protocol: failed to unmarshal envelope: %w", err)
	}
	if partial.Type == "" {
		return fmt.Errorf("protocol: missing or empty \"type\" field")
	}
	e.Type = partial.Type
	return nil
}

// ---------------------------------------------------------------------------
// Client -> Server message structs
// ---------------------------------------------------------------------------

// ResizeMsg reports a new viewport size for the viewer's simulator.
type ResizeMsg struct {
	Type   string `json:"type"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
}

// PingMsg is a client-initiated keepalive ping.
type PingMsg struct {
	Type string `json:"type"`
}

// ---------------------------------------------------------------------------
// Server -> Client message structs
// ---------------------------------------------------------------------------

// ViewStartedMsg is sent once the viewer's simulator is running.
type ViewStartedMsg struct {
	Type      string `json:"type"`
	ViewID    string `json:"view_id"`
	Width     int    `json:"width"`
	Height    int    `json:"height"`
	Particles int    `json:"particles"`
}

// FrameMsg carries the draw calls of one rendered frame.
type FrameMsg struct {
	Type   string       `json:"type"`
	Seq    uint64       `json:"seq"`
	Width  int          `json:"width"`
	Height int          `json:"height"`
	Discs  [][3]float64 `json:"discs"`
	Lines  [][4]float64 `json:"lines"`
}

// ErrorMsg is sent by the server to communicate an error condition.
type ErrorMsg struct {
	Type    string `json:"type"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// PongMsg is the server's response to a client ping.
type PongMsg struct {
	Type string `json:"type"`
}

// ---------------------------------------------------------------------------
// Helper functions
// ---------------------------------------------------------------------------

// ParseClientMessage parses raw WebSocket bytes into a typed client message.
// It returns the message type string, the decoded struct, and any error
// encountered during parsing. An error is returned for unknown or
// server-only message types, and for resize messages with out-of-range
// dimensions.
func ParseClientMessage(data []byte) (string, interface{}, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return "", nil, fmt.Errorf("protocol: failed to parse message: %w", err)
	}

	var (
		msg interface{}
		err error
	)

	switch env.Type {
	case TypeResize:
		var m ResizeMsg
		if err = json.Unmarshal(env.Raw, &m); err == nil {
			err = validateSize(m.Width, m.Height)
		}
		msg = m
	case TypePing:
		var m PingMsg
		err = json.Unmarshal(env.Raw, &m)
		msg = m
	default:
		return env.Type, nil, fmt.Errorf("protocol: unknown client message type: %q", env.Type)
	}

	if err != nil {
		return env.Type, nil, fmt.Errorf("protocol: failed to decode %q payload: %w", env.Type, err)
	}
	return env.Type, msg, nil
}

func validateSize(w, h int) error {
	if w < 1 || w > MaxDimension || h < 1 || h > MaxDimension {
		return fmt.Errorf("size %dx%d outside [1,%d]", w, h, MaxDimension)
	}
	return nil
}

// ClampDimension limits v to [1, MaxDimension], substituting def when v is
// not positive.
func ClampDimension(v, def int) int {
	switch {
	case v <= 0:
		return def
	case v > MaxDimension:
		return MaxDimension
	}
	return v
}

// NewServerMessage creates a JSON-encoded byte slice for a server message.
// The msgType is injected into the payload under the "type" key.
func NewServerMessage(msgType string, payload interface{}) ([]byte, error) {
	// Marshal the payload struct to a generic map so we can ensure the "type"
	// field is present and correct.
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("protocol: failed to marshal payload: %w", err)
	}

	var m map[string]interface{}
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("protocol: failed to unmarshal payload into map: %w", err)
	}

	m["type"] = msgType

	out, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("protocol: failed to marshal server message: %w", err)
	}
	return out, nil
}

// NewFrameMessage encodes a frame message. Frames are sent many times a
// second, so the payload is marshalled once without the map round trip of
// NewServerMessage.
func NewFrameMessage(seq uint64, f background.Frame) ([]byte, error) {
	out, err := json.Marshal(FrameMsg{
		Type:   TypeFrame,
		Seq:    seq,
		Width:  f.Width,
		Height: f.Height,
		Discs:  f.Discs,
		Lines:  f.Lines,
	})
	if err != nil {
		return nil, fmt.Errorf("protocol: failed to marshal frame: %w", err)
	}
	return out, nil
}
