package relay

import (
	"io"

	"github.com/jmoon-dev/greenwire/pkg/wire"
)

// Control messages flow between the three pipeline stages over bounded
// channels. A full channel suspends the sender until space frees; nothing
// is ever dropped. Closing a stage's control channel is its termination
// signal (chained shutdown), so no explicit stop broadcast exists.

// AddReader registers a new client's read half with the decode stage.
type AddReader struct {
	ID wire.ClientID
	R  io.Reader
}

// DecodeEvent is one result from the decode stage: either a decoded order
// or a disconnect. End-of-stream and read errors are not distinguished.
type DecodeEvent struct {
	Client       wire.ClientID
	Order        wire.Order
	Disconnected bool
}

// EncodeControl is the sealed set of messages accepted by the encode stage.
type EncodeControl interface {
	encodeControl()
}

// AddWriter registers a new client's write half. The encode stage sends
// the LOGIN greeting before registering the sink.
type AddWriter struct {
	ID wire.ClientID
	W  io.WriteCloser
}

// RemoveWriter deregisters a disconnected client's write half.
type RemoveWriter struct {
	ID wire.ClientID
}

// SendAck addresses an order acknowledgement to a single client.
type SendAck struct {
	ID  wire.ClientID
	Ack wire.OrderAck
}

// Broadcast delivers a trade to every registered client.
type Broadcast struct {
	Trade wire.Trade
}

func (AddWriter) encodeControl()    {}
func (RemoveWriter) encodeControl() {}
func (SendAck) encodeControl()      {}
func (Broadcast) encodeControl()    {}
