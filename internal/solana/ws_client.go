package solana

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

// WSConfig configures WebSocket confirmer behavior.
type WSConfig struct {
	// HandshakeTimeout bounds the initial dial.
	HandshakeTimeout time.Duration
	// PingInterval is interval for sending ping frames.
	PingInterval time.Duration
	// WriteTimeout is timeout for writing messages.
	WriteTimeout time.Duration
}

// DefaultWSConfig returns default WebSocket configuration.
func DefaultWSConfig() WSConfig {
	return WSConfig{
		HandshakeTimeout: 10 * time.Second,
		PingInterval:     30 * time.Second,
		WriteTimeout:     10 * time.Second,
	}
}

// WSConfirmer awaits transaction confirmation over a signatureSubscribe
// WebSocket subscription. The node fires the notification once and cancels
// the subscription server-side. If the connection drops, all pending waits
// fail and callers fall back to polling signature statuses over HTTP.
type WSConfirmer struct {
	endpoint string
	config   WSConfig

	conn      *websocket.Conn
	connMu    sync.Mutex
	closed    atomic.Bool
	requestID atomic.Uint64

	// waitMu guards the three maps below. A wait is registered under its
	// request ID before the subscribe request is written, and re-keyed by
	// subscription ID when the ack arrives, so a notification can never
	// slip between the two.
	waitMu    sync.Mutex
	byRequest map[uint64]*wsWait
	bySub     map[int64]*wsWait
	// early holds notifications that arrived before their ack was
	// processed; the node fires each notification exactly once.
	early map[int64]error

	done chan struct{}
	wg   sync.WaitGroup
}

// wsWait tracks one AwaitSignature call from subscribe to notification.
type wsWait struct {
	result chan error // buffered; receives the notification outcome
	subID  int64
	acked  bool
}

// NewWSConfirmer creates a confirmer and connects to the endpoint.
func NewWSConfirmer(ctx context.Context, endpoint string, config *WSConfig) (*WSConfirmer, error) {
	cfg := DefaultWSConfig()
	if config != nil {
		cfg = *config
	}

	c := &WSConfirmer{
		endpoint:  endpoint,
		config:    cfg,
		byRequest: make(map[uint64]*wsWait),
		bySub:     make(map[int64]*wsWait),
		early:     make(map[int64]error),
		done:      make(chan struct{}),
	}

	dialer := websocket.Dialer{HandshakeTimeout: cfg.HandshakeTimeout}
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

// Compile-time interface check.
var _ Confirmer = (*WSConfirmer)(nil)

type wsRequest struct {
	JSONRPC string        `json:"jsonrpc"`
	ID      uint64        `json:"id"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params"`
}

type wsMessage struct {
	ID     uint64          `json:"id"`
	Result json.RawMessage `json:"result"`
	Method string          `json:"method"`
	Params *wsNotifyParams `json:"params"`
	Error  *RPCError       `json:"error"`
}

type wsNotifyParams struct {
	Subscription int64 `json:"subscription"`
	Result       struct {
		Value struct {
			Err interface{} `json:"err"`
		} `json:"value"`
	} `json:"result"`
}

// AwaitSignature blocks until the signature confirms or ctx expires.
func (c *WSConfirmer) AwaitSignature(ctx context.Context, signature string) error {
	if c.closed.Load() {
		return fmt.Errorf("confirmer closed")
	}

	reqID := c.requestID.Add(1)
	req := wsRequest{
		JSONRPC: "2.0",
		ID:      reqID,
		Method:  "signatureSubscribe",
		Params: []interface{}{
			signature,
			map[string]string{"commitment": "confirmed"},
		},
	}

	w := &wsWait{result: make(chan error, 1)}
	c.waitMu.Lock()
	c.byRequest[reqID] = w
	c.waitMu.Unlock()
	defer func() {
		c.waitMu.Lock()
		delete(c.byRequest, reqID)
		if w.acked {
			delete(c.bySub, w.subID)
			delete(c.early, w.subID)
		}
		c.waitMu.Unlock()
	}()

	if err := c.write(req); err != nil {
		return fmt.Errorf("subscribe signature: %w", err)
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-c.done:
		return fmt.Errorf("confirmer closed")
	case err := <-w.result:
		return err
	}
}

// write sends a request under the connection write lock.
func (c *WSConfirmer) write(req wsRequest) error {
	c.connMu.Lock()
	defer c.connMu.Unlock()

	c.conn.SetWriteDeadline(time.Now().Add(c.config.WriteTimeout))
	return c.conn.WriteJSON(req)
}

// readLoop dispatches subscription acks and signature notifications.
func (c *WSConfirmer) readLoop() {
	defer c.wg.Done()
	defer c.failAll()

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			return
		}

		var msg wsMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			continue
		}

		switch {
		case msg.ID != 0 && msg.Result != nil:
			// Subscription ack carrying the subscription ID
			var subID int64
			if err := json.Unmarshal(msg.Result, &subID); err != nil {
				continue
			}
			c.waitMu.Lock()
			if w, ok := c.byRequest[msg.ID]; ok {
				w.subID = subID
				w.acked = true
				c.bySub[subID] = w
				if result, fired := c.early[subID]; fired {
					delete(c.early, subID)
					w.result <- result
				}
			} else {
				// The waiter gave up before the ack; nobody will
				// consume a buffered notification for this sub.
				delete(c.early, subID)
			}
			c.waitMu.Unlock()

		case msg.Method == "signatureNotification" && msg.Params != nil:
			var result error
			if txErr := msg.Params.Result.Value.Err; txErr != nil {
				result = &TransactionError{Err: txErr}
			}
			c.waitMu.Lock()
			if w, ok := c.bySub[msg.Params.Subscription]; ok {
				w.result <- result
			} else {
				c.early[msg.Params.Subscription] = result
			}
			c.waitMu.Unlock()
		}
	}
}

// pingLoop keeps the connection alive.
func (c *WSConfirmer) pingLoop() {
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

// failAll unblocks every pending wait after a connection loss.
func (c *WSConfirmer) failAll() {
	if c.closed.CompareAndSwap(false, true) {
		close(c.done)
	}
}

// Close shuts down the confirmer and unblocks pending waits.
func (c *WSConfirmer) Close() error {
	c.failAll()
	c.connMu.Lock()
	err := c.conn.Close()
	c.connMu.Unlock()
	c.wg.Wait()
	return err
}
