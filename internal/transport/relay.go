package transport

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/AlexZinkM/oasis-wallet/internal/logging"

	"go.uber.org/zap"
)

// Relay is the in-process bridge between one page and the trusted handler.
// It stamps the page's origin on every request and answers asynchronously,
// so responses may arrive in any order.
type Relay struct {
	handler Handler
	origin  string
	client  *Client
	logger  *zap.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewRelay returns a relay for the page at origin and the client the page calls through
func NewRelay(handler Handler, origin string, timeout time.Duration, logger *zap.Logger) *Relay {
	if logger == nil {
		logger = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	r := &Relay{
		handler: handler,
		origin:  origin,
		logger:  logger.With(logging.Origin(origin)),
		ctx:     ctx,
		cancel:  cancel,
	}
	r.client = NewClient(r.forward, timeout)
	return r
}

// Client returns the page side client
func (r *Relay) Client() *Client {
	return r.client
}

// Close abandons in-flight requests and waits for their handlers to return
func (r *Relay) Close() {
	r.cancel()
	r.wg.Wait()
}

func (r *Relay) forward(ctx context.Context, raw []byte) error {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		// without an id there is nobody to answer
		r.logger.Warn("dropping malformed envelope", zap.Error(err))
		return nil
	}
	env.Message = NormalizePayload(env.Message)

	// the handler lives only while the page still waits for this id
	callCtx, cancel := context.WithCancel(ctx)
	stop := context.AfterFunc(r.ctx, cancel)

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		defer stop()
		defer cancel()
		resp := r.handler.Handle(callCtx, r.origin, env)
		out, err := json.Marshal(resp)
		if err != nil {
			out, _ = json.Marshal(Response{ID: env.ID, Error: err.Error()})
		}
		if !r.client.Deliver(out) {
			r.logger.Debug("dropping late response", zap.String("id", env.ID))
		}
	}()
	return nil
}
