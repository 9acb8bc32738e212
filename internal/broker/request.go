package broker

import (
	"time"

	"github.com/gagliardetto/solana-go"
)

// Kind is the variant of a pending request
type Kind string

const (
	KindConnection  Kind = "connection"
	KindTransaction Kind = "transaction"
	KindMessage     Kind = "message"
)

// Kinds lists every request kind in display order
var Kinds = []Kind{KindConnection, KindTransaction, KindMessage}

// State is the outcome of a request. Approved and rejected are terminal.
type State string

const (
	StatePending  State = "pending"
	StateApproved State = "approved"
	StateRejected State = "rejected"
)

// Mode selects what approving a transaction request does
type Mode string

const (
	ModeSign    Mode = "sign"
	ModeSignAll Mode = "signAll"
	ModeSend    Mode = "send"
)

// Meta identifies the page behind a request
type Meta struct {
	Origin string `json:"origin"`
	Title  string `json:"title"`
	Icon   string `json:"icon,omitempty"`
}

// Payload is the kind specific content of a request.
// Connection requests carry none.
type Payload struct {
	Transactions []*solana.Transaction `json:"-"`
	Mode         Mode                  `json:"mode,omitempty"`
	Message      []byte                `json:"message,omitempty"`
}

// Result is what an approval produced
type Result struct {
	Transactions []*solana.Transaction `json:"-"`
	Signatures   []solana.Signature    `json:"signatures,omitempty"`
}

// Request is a snapshot of a broker request
type Request struct {
	ID        string    `json:"id"`
	Kind      Kind      `json:"kind"`
	Meta      Meta      `json:"meta"`
	CreatedAt time.Time `json:"createdAt"`
	Payload   Payload   `json:"payload"`
	State     State     `json:"state"`
	Result    *Result   `json:"result,omitempty"`
	Err       error     `json:"-"`
}

// Resolved reports whether the request left pending
func (r *Request) Resolved() bool {
	return r.State != StatePending
}

type entry struct {
	req  Request
	done chan struct{}
}

func (e *entry) resolve(state State, result *Result, err error) {
	e.req.State = state
	e.req.Result = result
	e.req.Err = err
	close(e.done)
}

func validKind(k Kind) bool {
	for _, kind := range Kinds {
		if k == kind {
			return true
		}
	}
	return false
}
