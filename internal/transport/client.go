package transport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/AlexZinkM/oasis-wallet/internal/model"

	"github.com/google/uuid"
)

// DefaultCallTimeout is how long the page waits for any response
const DefaultCallTimeout = 30 * time.Second

// SendFunc posts one encoded envelope towards the trusted side.
// ctx is done once the page stops waiting for the answer.
type SendFunc func(ctx context.Context, envelope []byte) error

// callResult is a response as seen by the page
type callResult struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data,omitempty"`
	Error   string          `json:"error,omitempty"`
}

// Client is the page side of the channel. Every call gets a fresh correlation id;
// responses for unknown or abandoned ids are dropped.
type Client struct {
	send    SendFunc
	timeout time.Duration

	mu      sync.Mutex
	pending map[string]chan callResult
}

// NewClient creates a page client posting through send
func NewClient(send SendFunc, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = DefaultCallTimeout
	}
	return &Client{
		send:    send,
		timeout: timeout,
		pending: make(map[string]chan callResult),
	}
}

// Call sends a message of type typ with fields and decodes the response data into out
func (c *Client) Call(ctx context.Context, typ Type, fields map[string]any, out any) error {
	message := map[string]any{"type": typ}
	for k, v := range fields {
		if k != "type" {
			message[k] = v
		}
	}
	rawMessage, err := json.Marshal(message)
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", typ, err)
	}

	id := uuid.NewString()
	envelope, err := json.Marshal(Envelope{ID: id, Message: rawMessage})
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", typ, err)
	}

	ch := make(chan callResult, 1)
	c.mu.Lock()
	c.pending[id] = ch
	c.mu.Unlock()
	defer c.forget(id)

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	if err := c.send(ctx, envelope); err != nil {
		return fmt.Errorf("failed to send %s: %w", typ, err)
	}

	select {
	case res := <-ch:
		if !res.Success {
			if res.Error == "" {
				return errors.New("unknown error")
			}
			return errors.New(res.Error)
		}
		if out == nil || len(res.Data) == 0 {
			return nil
		}
		if err := json.Unmarshal(res.Data, out); err != nil {
			return fmt.Errorf("malformed %s response: %w", typ, err)
		}
		return nil
	case <-ctx.Done():
		return model.ErrTimeout
	}
}

// Deliver hands a response from the trusted side to its waiting call.
// It reports whether the response matched a pending call.
func (c *Client) Deliver(raw []byte) bool {
	var resp struct {
		ID string `json:"id"`
		callResult
	}
	if err := json.Unmarshal(raw, &resp); err != nil || resp.ID == "" {
		return false
	}

	c.mu.Lock()
	ch, ok := c.pending[resp.ID]
	delete(c.pending, resp.ID)
	c.mu.Unlock()
	if !ok {
		return false
	}
	ch <- resp.callResult
	return true
}

// Pending returns the number of calls waiting for a response
func (c *Client) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}

func (c *Client) forget(id string) {
	c.mu.Lock()
	delete(c.pending, id)
	c.mu.Unlock()
}
