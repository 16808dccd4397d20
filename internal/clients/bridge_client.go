package clients

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

const (
	bridgePingInterval = 30 * time.Second
	bridgeReadTimeout  = 2*bridgePingInterval + 10*time.Second
	bridgeWriteTimeout = 10 * time.Second
)

// ErrBridgeClosed is returned for requests that cannot complete because the
// page holding the wallet went away.
var ErrBridgeClosed = errors.New("wallet bridge closed")

const (
	msgHello    = "hello"
	msgRequest  = "request"
	msgResponse = "response"
)

// BridgeError is an error the page's wallet rejected a request with
// (EIP-1193 ProviderRpcError).
type BridgeError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *BridgeError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("wallet error %d", e.Code)
	}
	return e.Message
}

// bridgeMessage is what the page sends: hello or response.
type bridgeMessage struct {
	Type   string          `json:"type"`
	ID     uint64          `json:"id,omitempty"`
	Result json.RawMessage `json:"result,omitempty"`
	Error  *BridgeError    `json:"error,omitempty"`
	Wallet bool            `json:"wallet,omitempty"`
}

// bridgeRequest is what the server sends. Params is always an array.
type bridgeRequest struct {
	Type   string `json:"type"`
	ID     uint64 `json:"id"`
	Method string `json:"method"`
	Params []any  `json:"params"`
}

type bridgeResult struct {
	result json.RawMessage
	err    error
}

// BridgeClient relays wallet requests to window.ethereum in a browser page
// over a websocket. The page answers each request with a response carrying
// the same id.
type BridgeClient struct {
	conn   *websocket.Conn
	logger *zap.Logger

	writeMu sync.Mutex

	mu      sync.Mutex
	pending map[uint64]chan bridgeResult
	nextID  uint64
	closed  bool

	hello     chan struct{}
	helloOnce sync.Once
	hasWallet bool

	done      chan struct{}
	closeOnce sync.Once
}

// NewBridgeClient wraps an upgraded websocket. Call Serve to start reading.
func NewBridgeClient(conn *websocket.Conn, logger *zap.Logger) *BridgeClient {
	return &BridgeClient{
		conn:    conn,
		logger:  logger,
		pending: make(map[uint64]chan bridgeResult),
		hello:   make(chan struct{}),
		done:    make(chan struct{}),
	}
}

// Serve reads messages until the connection fails or ctx is done. Pending
// requests fail with ErrBridgeClosed once it returns.
func (c *BridgeClient) Serve(ctx context.Context) error {
	defer c.Close()

	c.conn.SetReadLimit(1 << 20)
	_ = c.conn.SetReadDeadline(time.Now().Add(bridgeReadTimeout))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(bridgeReadTimeout))
	})

	go c.keepalive(ctx)

	for {
		var msg bridgeMessage
		if err := c.conn.ReadJSON(&msg); err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil
			}
			select {
			case <-ctx.Done():
				return nil
			case <-c.done:
				return nil
			default:
			}
			return errors.Wrap(err, "read bridge message")
		}
		_ = c.conn.SetReadDeadline(time.Now().Add(bridgeReadTimeout))

		switch msg.Type {
		case msgHello:
			c.helloOnce.Do(func() {
				c.hasWallet = msg.Wallet
				close(c.hello)
			})
			c.logger.Debug("bridge hello", zap.Bool("wallet", msg.Wallet))
		case msgResponse:
			c.resolve(msg)
		default:
			c.logger.Warn("unknown bridge message", zap.String("type", msg.Type))
		}
	}
}

func (c *BridgeClient) keepalive(ctx context.Context) {
	ticker := time.NewTicker(bridgePingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			c.Close()
			return
		case <-c.done:
			return
		case <-ticker.C:
			c.writeMu.Lock()
			err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(bridgeWriteTimeout))
			c.writeMu.Unlock()
			if err != nil {
				c.logger.Debug("bridge ping failed", zap.Error(err))
				c.Close()
				return
			}
		}
	}
}

func (c *BridgeClient) resolve(msg bridgeMessage) {
	c.mu.Lock()
	ch, ok := c.pending[msg.ID]
	delete(c.pending, msg.ID)
	c.mu.Unlock()

	if !ok {
		c.logger.Debug("response for unknown request", zap.Uint64("id", msg.ID))
		return
	}

	if msg.Error != nil {
		ch <- bridgeResult{err: msg.Error}
		return
	}
	ch <- bridgeResult{result: msg.Result}
}

// WaitHello blocks until the page reports whether it has an injected wallet.
func (c *BridgeClient) WaitHello(ctx context.Context) (bool, error) {
	select {
	case <-c.hello:
		return c.hasWallet, nil
	case <-c.done:
		return false, ErrBridgeClosed
	case <-ctx.Done():
		return false, ctx.Err()
	}
}

// Request implements wallet.Provider. It waits for the page's answer or ctx.
func (c *BridgeClient) Request(ctx context.Context, method string, params ...any) (json.RawMessage, error) {
	ch := make(chan bridgeResult, 1)

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, ErrBridgeClosed
	}
	c.nextID++
	id := c.nextID
	c.pending[id] = ch
	c.mu.Unlock()

	if params == nil {
		params = []any{}
	}
	msg := bridgeRequest{Type: msgRequest, ID: id, Method: method, Params: params}

	c.writeMu.Lock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(bridgeWriteTimeout))
	err := c.conn.WriteJSON(msg)
	c.writeMu.Unlock()
	if err != nil {
		c.forget(id)
		return nil, errors.Wrapf(ErrBridgeClosed, "send %s: %v", method, err)
	}

	select {
	case res := <-ch:
		return res.result, res.err
	case <-ctx.Done():
		c.forget(id)
		return nil, ctx.Err()
	}
}

func (c *BridgeClient) forget(id uint64) {
	c.mu.Lock()
	delete(c.pending, id)
	c.mu.Unlock()
}

// Done is closed once the bridge stops serving.
func (c *BridgeClient) Done() <-chan struct{} { return c.done }

// Close shuts the connection and fails every pending request.
func (c *BridgeClient) Close() {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.closed = true
		pending := c.pending
		c.pending = make(map[uint64]chan bridgeResult)
		c.mu.Unlock()

		for _, ch := range pending {
			ch <- bridgeResult{err: ErrBridgeClosed}
		}

		close(c.done)

		c.writeMu.Lock()
		_ = c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
		c.writeMu.Unlock()
		_ = c.conn.Close()
	})
}
