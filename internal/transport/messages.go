// Package transport carries dApp requests across the page boundary: the message schema,
// the trusted dispatcher, the page side client and the injected provider.
package transport

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strconv"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
)

// Type is the tag of a request message
type Type string

const (
	TypeConnect             Type = "connect"
	TypeDisconnect          Type = "disconnect"
	TypeGetPublicKey        Type = "getPublicKey"
	TypeSignTransaction     Type = "signTransaction"
	TypeSignAllTransactions Type = "signAllTransactions"
	TypeSignMessage         Type = "signMessage"
	TypeSendTransaction     Type = "sendTransaction"
)

// ProtocolError is returned for messages that do not match the schema
type ProtocolError struct {
	Type   Type
	Reason string
}

func (e *ProtocolError) Error() string {
	if e.Type == "" {
		return "protocol error: " + e.Reason
	}
	return fmt.Sprintf("protocol error in %s: %s", e.Type, e.Reason)
}

// Envelope is a request as posted by the page
type Envelope struct {
	ID      string          `json:"id"`
	Message json.RawMessage `json:"message"`
}

// Response is the reply to one Envelope
type Response struct {
	ID      string `json:"id"`
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
}

// Message is one decoded request variant
type Message interface {
	Type() Type
}

// Connect asks for a connection grant
type Connect struct {
	Title string `json:"title,omitempty"`
	Icon  string `json:"icon,omitempty"`
}

// Disconnect drops the connection grant
type Disconnect struct{}

// GetPublicKey asks for the wallet address
type GetPublicKey struct{}

// SignTransaction asks for one transaction to be signed
type SignTransaction struct {
	Transaction Bytes `json:"transaction"`
}

// SignAllTransactions asks for several transactions to be signed
type SignAllTransactions struct {
	Transactions []Bytes `json:"transactions"`
}

// SignMessage asks for an arbitrary message to be signed
type SignMessage struct {
	Message Bytes `json:"message"`
}

// SendOptions are the broadcast options a page may pass along
type SendOptions struct {
	SkipPreflight       bool   `json:"skipPreflight,omitempty"`
	PreflightCommitment string `json:"preflightCommitment,omitempty"`
	MaxRetries          *uint  `json:"maxRetries,omitempty"`
}

// SendTransaction asks for a transaction to be signed and broadcast
type SendTransaction struct {
	Transaction Bytes        `json:"transaction"`
	Options     *SendOptions `json:"options,omitempty"`
}

func (Connect) Type() Type             { return TypeConnect }
func (Disconnect) Type() Type          { return TypeDisconnect }
func (GetPublicKey) Type() Type        { return TypeGetPublicKey }
func (SignTransaction) Type() Type     { return TypeSignTransaction }
func (SignAllTransactions) Type() Type { return TypeSignAllTransactions }
func (SignMessage) Type() Type         { return TypeSignMessage }
func (SendTransaction) Type() Type     { return TypeSendTransaction }

// NormalizePayload substitutes an empty object for anything that is not a JSON object
func NormalizePayload(raw json.RawMessage) json.RawMessage {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || trimmed[0] != '{' || !json.Valid(trimmed) {
		return json.RawMessage("{}")
	}
	return trimmed
}

// Decode validates raw against the message schema
func Decode(raw json.RawMessage) (Message, error) {
	raw = NormalizePayload(raw)

	var head struct {
		Type Type `json:"type"`
	}
	if err := json.Unmarshal(raw, &head); err != nil {
		return nil, &ProtocolError{Reason: "type must be a string"}
	}

	var msg Message
	switch head.Type {
	case TypeConnect:
		msg = &Connect{}
	case TypeDisconnect:
		msg = &Disconnect{}
	case TypeGetPublicKey:
		msg = &GetPublicKey{}
	case TypeSignTransaction:
		msg = &SignTransaction{}
	case TypeSignAllTransactions:
		msg = &SignAllTransactions{}
	case TypeSignMessage:
		msg = &SignMessage{}
	case TypeSendTransaction:
		msg = &SendTransaction{}
	case "":
		return nil, &ProtocolError{Reason: "missing message type"}
	default:
		return nil, &ProtocolError{Type: head.Type, Reason: "unknown message type"}
	}

	if err := json.Unmarshal(raw, msg); err != nil {
		return nil, &ProtocolError{Type: head.Type, Reason: err.Error()}
	}
	if err := validate(msg); err != nil {
		return nil, &ProtocolError{Type: head.Type, Reason: err.Error()}
	}
	return msg, nil
}

func validate(msg Message) error {
	switch m := msg.(type) {
	case *SignTransaction:
		if len(m.Transaction) == 0 {
			return fmt.Errorf("transaction is required")
		}
	case *SendTransaction:
		if len(m.Transaction) == 0 {
			return fmt.Errorf("transaction is required")
		}
	case *SignAllTransactions:
		if len(m.Transactions) == 0 {
			return fmt.Errorf("transactions must be a non-empty array")
		}
		for i, tx := range m.Transactions {
			if len(tx) == 0 {
				return fmt.Errorf("transactions[%d] is empty", i)
			}
		}
	case *SignMessage:
		if m.Message == nil {
			return fmt.Errorf("message is required")
		}
	}
	return nil
}

// Bytes decodes from a base64 string or an array of byte values and
// encodes as an array of byte values
type Bytes []byte

func (b *Bytes) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		return nil
	}

	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		decoded, err := base64.StdEncoding.DecodeString(s)
		if err != nil {
			return fmt.Errorf("invalid base64: %w", err)
		}
		*b = decoded
		return nil
	}

	var values []json.Number
	if err := json.Unmarshal(data, &values); err != nil {
		return fmt.Errorf("expected base64 string or byte array")
	}
	out := make([]byte, len(values))
	for i, v := range values {
		n, err := strconv.ParseUint(v.String(), 10, 8)
		if err != nil {
			return fmt.Errorf("byte %d: %q is not in 0..255", i, v)
		}
		out[i] = byte(n)
	}
	*b = out
	return nil
}

func (b Bytes) MarshalJSON() ([]byte, error) {
	values := make([]int, len(b))
	for i, v := range b {
		values[i] = int(v)
	}
	return json.Marshal(values)
}

// EncodeTransaction serializes tx to base64 wire bytes. Missing signatures are
// encoded as zeroes, the way partially signed transactions travel.
func EncodeTransaction(tx *solana.Transaction) (string, error) {
	if required := int(tx.Message.Header.NumRequiredSignatures); len(tx.Signatures) < required {
		padded := *tx
		padded.Signatures = make([]solana.Signature, required)
		copy(padded.Signatures, tx.Signatures)
		tx = &padded
	}
	raw, err := tx.MarshalBinary()
	if err != nil {
		return "", fmt.Errorf("failed to serialize transaction: %w", err)
	}
	return base64.StdEncoding.EncodeToString(raw), nil
}

// DecodeTransaction parses wire bytes into a transaction
func DecodeTransaction(raw []byte) (*solana.Transaction, error) {
	tx, err := solana.TransactionFromDecoder(bin.NewBinDecoder(raw))
	if err != nil {
		return nil, fmt.Errorf("failed to decode transaction: %w", err)
	}
	return tx, nil
}
