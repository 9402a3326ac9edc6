package capture

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/teslashibe/pulseai/pkg/protocol"
)

// Remote pulls frames from a websocket camera feed. Binary messages are
// taken as encoded images; text messages must be protocol "frame" messages.
// The connection is dialed lazily and re-dialed on the next call after a
// read failure.
type Remote struct {
	url    string
	dialer *websocket.Dialer
	header http.Header
	logger *slog.Logger

	mu     sync.Mutex
	conn   *websocket.Conn
	closed bool
	seq    uint64
}

// RemoteOption configures a Remote.
type RemoteOption func(*Remote)

// WithDialer overrides the websocket dialer.
func WithDialer(d *websocket.Dialer) RemoteOption {
	return func(r *Remote) { r.dialer = d }
}

// WithHeader sets headers sent on dial, e.g. an Authorization token.
func WithHeader(h http.Header) RemoteOption {
	return func(r *Remote) { r.header = h }
}

// WithRemoteLogger sets the structured logger.
func WithRemoteLogger(l *slog.Logger) RemoteOption {
	return func(r *Remote) { r.logger = l }
}

// NewRemote creates a source for the feed at url (ws:// or wss://).
func NewRemote(url string, opts ...RemoteOption) *Remote {
	r := &Remote{
		url:    url,
		dialer: &websocket.Dialer{HandshakeTimeout: 10 * time.Second},
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.logger = r.logger.With("component", "capture.remote")
	return r
}

// Next reads the next frame from the feed.
func (r *Remote) Next(ctx context.Context) (Frame, error) {
	for {
		conn, err := r.connect(ctx)
		if err != nil {
			return Frame{}, err
		}

		stop := context.AfterFunc(ctx, func() {
			conn.SetReadDeadline(time.Now())
		})
		msgType, data, err := conn.ReadMessage()
		stop()

		if err != nil {
			r.drop(conn)
			if r.isClosed() {
				return Frame{}, ErrClosed
			}
			if ctx.Err() != nil {
				return Frame{}, ctx.Err()
			}
			return Frame{}, fmt.Errorf("capture: read remote frame: %w", err)
		}

		f, ok := r.decode(msgType, data)
		if !ok {
			continue
		}

		r.mu.Lock()
		r.seq++
		f.Seq = r.seq
		r.mu.Unlock()
		return f, nil
	}
}

func (r *Remote) decode(msgType int, data []byte) (Frame, bool) {
	f := Frame{CapturedAt: time.Now(), Origin: "remote"}

	switch msgType {
	case websocket.BinaryMessage:
		if len(data) == 0 {
			return f, false
		}
		f.Data = data
		f.MimeType = http.DetectContentType(data)
		return f, true

	case websocket.TextMessage:
		msg, err := protocol.ParseMessage(data)
		if err != nil {
			r.logger.Debug("ignoring unparseable message", "error", err)
			return f, false
		}
		if msg.Type != protocol.TypeFrame {
			return f, false
		}
		fd, err := msg.GetFrameData()
		if err != nil {
			r.logger.Debug("ignoring bad frame payload", "error", err)
			return f, false
		}
		img, mime, err := fd.Decode()
		if err != nil {
			r.logger.Debug("ignoring undecodable frame", "error", err)
			return f, false
		}
		f.Data, f.MimeType = img, mime
		f.Width, f.Height = fd.Width, fd.Height
		return f, true
	}
	return f, false
}

func (r *Remote) connect(ctx context.Context) (*websocket.Conn, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil, ErrClosed
	}
	if r.conn != nil {
		return r.conn, nil
	}

	conn, _, err := r.dialer.DialContext(ctx, r.url, r.header)
	if err != nil {
		return nil, fmt.Errorf("capture: dial %s: %w", r.url, err)
	}
	r.logger.Info("connected to camera feed", "url", r.url)
	r.conn = conn
	return conn, nil
}

func (r *Remote) drop(conn *websocket.Conn) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.conn == conn {
		r.conn = nil
	}
	conn.Close()
}

func (r *Remote) isClosed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.closed
}

// Close closes the connection and ends the sequence.
func (r *Remote) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	if r.conn != nil {
		err := r.conn.Close()
		r.conn = nil
		return err
	}
	return nil
}
