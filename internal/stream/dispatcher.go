package stream

import (
	"github.com/rs/zerolog/log"

	"github.com/datviz/datviz-app/internal/metrics"
	"github.com/datviz/datviz-app/internal/protocol"
)

// MessageHandler is the callback signature for handling a parsed client message.
// The msg parameter is the concrete struct returned by protocol.ParseClientMessage.
type MessageHandler func(conn *Connection, msg interface{})

// MessageDispatcher routes incoming WebSocket messages to registered handlers
// based on the message type. It answers ping internally and sends structured
// error responses for malformed or unsupported messages.
type MessageDispatcher struct {
	handlers map[string]MessageHandler
}

// NewMessageDispatcher creates an empty MessageDispatcher.
func NewMessageDispatcher() *MessageDispatcher {
	return &MessageDispatcher{handlers: make(map[string]MessageHandler)}
}

// Register associates a MessageHandler with a message type. If a handler was
// already registered for the given type, it is silently replaced.
func (d *MessageDispatcher) Register(msgType string, handler MessageHandler) {
	d.handlers[msgType] = handler
}

// Dispatch parses the raw bytes into a typed message, handles ping
// internally, and routes all other types to the registered handler.
func (d *MessageDispatcher) Dispatch(conn *Connection, data []byte) {
	metrics.StreamMessages.WithLabelValues("received").Inc()

	msgType, msg, err := protocol.ParseClientMessage(data)
	if err != nil {
		log.Debug().Str("viewer", conn.ID).Err(err).Msg("stream: dispatch parse error")
		d.sendError(conn, "parse_error", "invalid message format")
		return
	}

	if msgType == protocol.TypePing {
		d.sendPong(conn)
		return
	}

	handler, ok := d.handlers[msgType]
	if !ok {
		log.Debug().Str("viewer", conn.ID).Str("type", msgType).Msg("stream: unsupported message type")
		d.sendError(conn, "unsupported_type", "unsupported message type")
		return
	}

	handler(conn, msg)
}

// sendError sends a structured error message back to the client. Errors are
// logged but not propagated.
func (d *MessageDispatcher) sendError(conn *Connection, code string, message string) {
	metrics.StreamMessages.WithLabelValues("rejected").Inc()

	data, err := protocol.NewServerMessage(protocol.TypeError, protocol.ErrorMsg{
		Code:    code,
		Message: message,
	})
	if err != nil {
		log.Error().Str("viewer", conn.ID).Err(err).Msg("stream: failed to build error message")
		return
	}
	if err := conn.WriteMessage(data); err != nil {
		log.Debug().Str("viewer", conn.ID).Err(err).Msg("stream: failed to send error message")
	}
}

func (d *MessageDispatcher) sendPong(conn *Connection) {
	data, err := protocol.NewServerMessage(protocol.TypePong, protocol.PongMsg{})
	if err != nil {
		log.Error().Str("viewer", conn.ID).Err(err).Msg("stream: failed to build pong message")
		return
	}
	if err := conn.WriteMessage(data); err != nil {
		log.Debug().Str("viewer", conn.ID).Err(err).Msg("stream: failed to send pong message")
	}
}
