package ethrpc

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

// WSConfig configures the websocket subscription client.
type WSConfig struct {
	// PingInterval is the interval for sending ping frames.
	PingInterval time.Duration
	// ReadTimeout is the timeout for reading messages.
	ReadTimeout time.Duration
	// WriteTimeout is the timeout for writing messages.
	WriteTimeout time.Duration
	// Buffer is the per-subscription channel buffer.
	Buffer int
}

// DefaultWSConfig returns the default websocket configuration.
func DefaultWSConfig() WSConfig {
	return WSConfig{
		PingInterval: 30 * time.Second,
		ReadTimeout:  60 * time.Second,
		WriteTimeout: 10 * time.Second,
		Buffer:       10000,
	}
}

// WSClient subscribes to log notifications over eth_subscribe.
type WSClient struct {
	endpoint string
	config   WSConfig

	conn      *websocket.Conn
	connMu    sync.Mutex
	closed    atomic.Bool
	requestID atomic.Uint64

	// subs maps subscription id to delivery channel
	subs   map[string]chan Log
	subsMu sync.RWMutex

	// pendingSubs maps request id to its in-flight subscription
	pendingSubs   map[uint64]pendingSub
	pendingSubsMu sync.Mutex

	done chan struct{}
	wg   sync.WaitGroup
}

// pendingSub is one in-flight eth_subscribe request. The read loop registers
// the delivery channel before releasing the waiter, so a notification arriving
// right after the confirmation is not dropped.
type pendingSub struct {
	confirm chan string
	logs    chan Log
}

// NewWSClient connects to the endpoint and starts the read loop.
func NewWSClient(ctx context.Context, endpoint string, config *WSConfig) (*WSClient, error) {
	cfg := DefaultWSConfig()
	if config != nil {
		cfg = *config
	}

	c := &WSClient{
		endpoint:    endpoint,
		config:      cfg,
		subs:        make(map[string]chan Log),
		pendingSubs: make(map[uint64]pendingSub),
		done:        make(chan struct{}),
	}

	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.DialContext(ctx, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("websocket dial: %w", err)
	}
	c.conn = conn

	c.wg.Add(2)
	go c.readLoop()
	go c.pingLoop()

	return c, nil
}

// SubscribeLogs subscribes to logs matching the filter. ToBlock/FromBlock are
// ignored; subscriptions are head-following.
func (c *WSClient) SubscribeLogs(ctx context.Context, filter LogFilter) (<-chan Log, error) {
	if c.closed.Load() {
		return nil, fmt.Errorf("client closed")
	}

	reqID := c.requestID.Add(1)

	params := map[string]interface{}{}
	if filter.Address != "" {
		params["address"] = filter.Address
	}
	if len(filter.Topics0) > 0 {
		params["topics"] = []interface{}{filter.Topics0}
	}

	req := rpcRequest{
		JSONRPC: "2.0",
		ID:      reqID,
		Method:  "eth_subscribe",
		Params:  []interface{}{"logs", params},
	}

	pending := pendingSub{
		confirm: make(chan string, 1),
		logs:    make(chan Log, c.config.Buffer),
	}
	c.pendingSubsMu.Lock()
	c.pendingSubs[reqID] = pending
	c.pendingSubsMu.Unlock()

	c.connMu.Lock()
	c.conn.SetWriteDeadline(time.Now().Add(c.config.WriteTimeout))
	err := c.conn.WriteJSON(req)
	c.connMu.Unlock()
	if err != nil {
		c.dropPending(reqID)
		return nil, fmt.Errorf("write subscribe: %w", err)
	}

	// Close() also closes the confirm channel; a receive from the closed
	// channel must not hand out an unregistered delivery channel.
	select {
	case _, ok := <-pending.confirm:
		if !ok {
			return nil, fmt.Errorf("client closed")
		}
	case <-time.After(30 * time.Second):
		c.dropPending(reqID)
		return nil, fmt.Errorf("subscription timeout after 30s")
	case <-c.done:
		return nil, fmt.Errorf("client closed")
	case <-ctx.Done():
		c.dropPending(reqID)
		return nil, ctx.Err()
	}

	return pending.logs, nil
}

// Close closes the connection and all subscription channels.
func (c *WSClient) Close() error {
	if c.closed.Swap(true) {
		return nil
	}

	close(c.done)

	c.connMu.Lock()
	c.conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	c.conn.Close()
	c.connMu.Unlock()

	c.subsMu.Lock()
	for id, ch := range c.subs {
		close(ch)
		delete(c.subs, id)
	}
	c.subsMu.Unlock()

	c.pendingSubsMu.Lock()
	for id, p := range c.pendingSubs {
		close(p.confirm)
		delete(c.pendingSubs, id)
	}
	c.pendingSubsMu.Unlock()

	c.wg.Wait()
	return nil
}

func (c *WSClient) dropPending(reqID uint64) {
	c.pendingSubsMu.Lock()
	delete(c.pendingSubs, reqID)
	c.pendingSubsMu.Unlock()
}

// wsMessage covers both subscription confirmations and notifications.
type wsMessage struct {
	ID     uint64          `json:"id"`
	Result json.RawMessage `json:"result"`
	Method string          `json:"method"`
	Params *struct {
		Subscription string `json:"subscription"`
		Result       rawLog `json:"result"`
	} `json:"params"`
	Error *rpcError `json:"error"`
}

// readLoop reads messages and dispatches to subscribers.
func (c *WSClient) readLoop() {
	defer c.wg.Done()

	for !c.closed.Load() {
		c.conn.SetReadDeadline(time.Now().Add(c.config.ReadTimeout))
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if c.closed.Load() {
				return
			}
			select {
			case <-c.done:
				return
			case <-time.After(100 * time.Millisecond):
				continue
			}
		}
		c.handleMessage(message)
	}
}

// handleMessage routes one websocket frame.
func (c *WSClient) handleMessage(message []byte) {
	var msg wsMessage
	if err := json.Unmarshal(message, &msg); err != nil {
		return
	}

	// Subscription confirmation: result is the subscription id. Register the
	// delivery channel before releasing the waiter.
	if msg.ID != 0 && msg.Error == nil && msg.Result != nil {
		var subID string
		if err := json.Unmarshal(msg.Result, &subID); err != nil {
			return
		}
		c.pendingSubsMu.Lock()
		p, ok := c.pendingSubs[msg.ID]
		if ok {
			delete(c.pendingSubs, msg.ID)
		}
		c.pendingSubsMu.Unlock()
		if !ok {
			return
		}

		c.subsMu.Lock()
		c.subs[subID] = p.logs
		c.subsMu.Unlock()
		p.confirm <- subID
		return
	}

	// Log notification.
	if msg.Method == "eth_subscription" && msg.Params != nil {
		block, err := hexToInt64(msg.Params.Result.BlockNumber)
		if err != nil {
			return
		}
		idx, err := hexToInt64(msg.Params.Result.LogIndex)
		if err != nil {
			return
		}
		log := Log{
			Address:     strings.ToLower(msg.Params.Result.Address),
			Topics:      msg.Params.Result.Topics,
			Data:        msg.Params.Result.Data,
			BlockNumber: block,
			TxHash:      strings.ToLower(msg.Params.Result.TxHash),
			LogIndex:    int(idx),
		}

		c.subsMu.RLock()
		ch := c.subs[msg.Params.Subscription]
		c.subsMu.RUnlock()
		if ch != nil {
			select {
			case ch <- log:
			case <-c.done:
			}
		}
	}
}

// pingLoop keeps the connection alive.
func (c *WSClient) pingLoop() {
	defer c.wg.Done()

	ticker := time.NewTicker(c.config.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			c.connMu.Lock()
			c.conn.SetWriteDeadline(time.Now().Add(c.config.WriteTimeout))
			c.conn.WriteMessage(websocket.PingMessage, nil)
			c.connMu.Unlock()
		}
	}
}
