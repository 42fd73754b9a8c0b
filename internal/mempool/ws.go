package mempool

import (
	"context"
	"encoding/json"
	"time"

	"github.com/btcsuite/btclog"
	"github.com/davecgh/go-spew/spew"
	"github.com/go-errors/errors"
	"github.com/gorilla/websocket"
	"golang.org/x/sync/errgroup"
)

// log is this package's tagged logger; silent until the daemon wires a
// real backend via UseLogger.
var log = btclog.Disabled

// UseLogger installs logger as this package's logger.
func UseLogger(logger btclog.Logger) {
	log = logger
}

const (
	// pingInterval is how often the keepalive arm sends a websocket Ping,
	// per the spec's push-stream protocol.
	pingInterval = 20 * time.Second

	// pingPayloadSize is the fixed ping payload size named in the spec.
	pingPayloadSize = 124

	writeWait = 10 * time.Second
)

// controlFrame is an outbound JSON control message understood by the
// explorer's push stream.
type controlFrame struct {
	Action string   `json:"action"`
	Data   []string `json:"data,omitempty"`
}

// StreamClient owns one live websocket connection to the explorer's push
// endpoint. Its Run method implements the spec's "inbound arm / keepalive
// arm sharing one writer" protocol, grounded on the daemon's historical
// split between a peer's readHandler, writeHandler, and pingHandler: a
// dedicated writer goroutine drains a small outbound queue so the two
// producers of outbound frames — the keepalive arm's pings and the read
// loop's pong replies to server-initiated pings — never race on the same
// connection.
type StreamClient struct {
	conn *websocket.Conn

	events  chan BlockEvent
	writeCh chan writeRequest
}

// writeRequest is one frame queued for the writer arm. messageType is one
// of the gorilla/websocket message/control constants; control types
// (Ping/Pong/Close) are written with WriteControl, everything else with
// WriteMessage.
type writeRequest struct {
	messageType int
	payload     []byte
}

// DialStream opens the websocket connection and sends the two framed
// control messages the spec requires immediately after connecting.
func DialStream(ctx context.Context, url string) (*StreamClient, error) {
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}

	conn, _, err := dialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, errors.Errorf("dial explorer websocket: %v", err)
	}

	sc := &StreamClient{
		conn:    conn,
		events:  make(chan BlockEvent, 16),
		writeCh: make(chan writeRequest, 4),
	}

	// The server may ping us too; reply through the same writer queue the
	// keepalive arm uses instead of writing from the read goroutine, so
	// the two never race on the connection. The handler runs on the read
	// loop inside Run; a pong is dropped rather than blocking that loop
	// when the writer queue is already full.
	conn.SetPingHandler(func(appData string) error {
		select {
		case sc.writeCh <- writeRequest{messageType: websocket.PongMessage, payload: []byte(appData)}:
		default:
		}
		return nil
	})

	if err := sc.sendControl(controlFrame{Action: "init"}); err != nil {
		conn.Close()
		return nil, err
	}
	if err := sc.sendControl(controlFrame{Action: "want", Data: []string{"blocks"}}); err != nil {
		conn.Close()
		return nil, err
	}

	return sc, nil
}

// Events returns the channel BlockEvents are delivered on. The channel is
// closed once Run returns.
func (sc *StreamClient) Events() <-chan BlockEvent {
	return sc.events
}

// Close closes the underlying connection. Safe to call after Run has
// already returned.
func (sc *StreamClient) Close() error {
	return sc.conn.Close()
}

func (sc *StreamClient) sendControl(f controlFrame) error {
	payload, err := json.Marshal(f)
	if err != nil {
		return errors.Errorf("encode control frame: %v", err)
	}
	sc.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return sc.conn.WriteMessage(websocket.TextMessage, payload)
}

// Run drives the connection until ctx is cancelled or the connection is
// lost, whichever comes first. It closes sc.events before returning. A
// clean close frame from the explorer returns a nil error; any other
// failure (broken read, broken write) is returned so the caller's
// reconnect-with-backoff policy can take over.
func (sc *StreamClient) Run(ctx context.Context) error {
	defer close(sc.events)

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, gctx := errgroup.WithContext(runCtx)

	g.Go(func() error { return sc.writerArm(gctx) })
	g.Go(func() error {
		err := sc.inboundArm(gctx)
		if err == nil {
			// Clean close: stop the writer and keepalive arms too.
			cancel()
		}
		return err
	})
	g.Go(func() error { return sc.keepaliveArm(gctx) })

	err := g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// writerArm is the sole goroutine allowed to call WriteMessage/WriteControl
// on sc.conn, so the inbound and keepalive arms never issue a frame
// concurrently.
func (sc *StreamClient) writerArm(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case req := <-sc.writeCh:
			sc.conn.SetWriteDeadline(time.Now().Add(writeWait))

			var err error
			switch req.messageType {
			case websocket.PingMessage, websocket.PongMessage, websocket.CloseMessage:
				err = sc.conn.WriteControl(req.messageType, req.payload, time.Now().Add(writeWait))
			default:
				err = sc.conn.WriteMessage(req.messageType, req.payload)
			}
			if err != nil {
				return errors.Errorf("websocket write failed: %v", err)
			}
		}
	}
}

// inboundArm reads frames off the wire and decodes every text frame into a
// BlockEvent, dropping frames that carry no block payload.
func (sc *StreamClient) inboundArm(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		_, payload, err := sc.conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err,
				websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil
			}
			return errors.Errorf("websocket read failed: %v", err)
		}

		var raw mempoolRaw
		if err := json.Unmarshal(payload, &raw); err != nil {
			// Malformed/unrecognized frame: a deserialization hiccup is a
			// transient condition per the spec, not a fatal one.
			continue
		}

		if log.Level() <= btclog.LevelTrace {
			log.Tracef("decoded explorer frame: %s", spew.Sdump(raw))
		}

		event, ok := raw.toBlockEvent()
		if !ok {
			continue
		}

		select {
		case sc.events <- event:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// keepaliveArm sends a fixed-size Ping on every tick. A missing Pong never
// kills the connection by itself; only a failed write (surfaced by the
// writer arm) does.
func (sc *StreamClient) keepaliveArm(ctx context.Context) error {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	payload := make([]byte, pingPayloadSize)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			select {
			case sc.writeCh <- writeRequest{messageType: websocket.PingMessage, payload: payload}:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
}
