// Package wire implements the line protocol spoken between clients and the
// relay. One message per newline-terminated UTF-8 line:
//
//	client -> server:  BUY:<PRODUCT> | SELL:<PRODUCT>
//	server -> client:  LOGIN:<id> | ACK:<PRODUCT> | TRADE:<PRODUCT>
package wire

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ClientID identifies one live connection. Ids are issued from a monotonic
// counter so a reconnecting client never collides with an earlier one.
type ClientID uint64

func (c ClientID) String() string { return strconv.FormatUint(uint64(c), 10) }

type Side uint8

const (
	Buy Side = iota
	Sell
)

func (s Side) String() string {
	if s == Buy {
		return "BUY"
	}
	return "SELL"
}

// Product is the closed set of tradable goods.
type Product uint8

const (
	Apple Product = iota
	Pear
	Tomato
	Potato
	Onion
)

// Products lists every product in wire order.
var Products = [...]Product{Apple, Pear, Tomato, Potato, Onion}

func (p Product) String() string {
	switch p {
	case Apple:
		return "APPLE"
	case Pear:
		return "PEAR"
	case Tomato:
		return "TOMATO"
	case Potato:
		return "POTATO"
	case Onion:
		return "ONION"
	default:
		return "UNKNOWN"
	}
}

// ErrMalformed marks inbound lines that fail to parse. Malformed input is
// per-line: the line is discarded and the connection stays open.
var ErrMalformed = errors.New("malformed input")

func ParseSide(tok string) (Side, error) {
	switch tok {
	case "BUY":
		return Buy, nil
	case "SELL":
		return Sell, nil
	default:
		return 0, fmt.Errorf("%w: unknown side %q", ErrMalformed, tok)
	}
}

func ParseProduct(tok string) (Product, error) {
	switch tok {
	case "APPLE":
		return Apple, nil
	case "PEAR":
		return Pear, nil
	case "TOMATO":
		return Tomato, nil
	case "POTATO":
		return Potato, nil
	case "ONION":
		return Onion, nil
	default:
		return 0, fmt.Errorf("%w: unknown product %q", ErrMalformed, tok)
	}
}

// Order is one decoded client instruction. It is consumed once by the
// matcher and not retained.
type Order struct {
	Side    Side
	Product Product
}

// ParseOrder decodes one inbound line (without its trailing newline).
func ParseOrder(line string) (Order, error) {
	sideTok, productTok, found := strings.Cut(line, ":")
	if !found {
		return Order{}, fmt.Errorf("%w: expected SIDE:PRODUCT, got %q", ErrMalformed, line)
	}
	side, err := ParseSide(sideTok)
	if err != nil {
		return Order{}, err
	}
	product, err := ParseProduct(productTok)
	if err != nil {
		return Order{}, err
	}
	return Order{Side: side, Product: product}, nil
}

// Message is any outbound protocol message. Append encodes the message,
// newline included, onto b and returns the extended slice so callers can
// reuse one scratch buffer per connection loop.
type Message interface {
	Append(b []byte) []byte
}

// Login is sent once to a client immediately after it connects.
type Login struct {
	ClientID ClientID
}

func (l Login) Append(b []byte) []byte {
	b = append(b, "LOGIN:"...)
	b = strconv.AppendUint(b, uint64(l.ClientID), 10)
	return append(b, '\n')
}

// OrderAck echoes a processed order back to its sender.
type OrderAck struct {
	Product Product
}

func (a OrderAck) Append(b []byte) []byte {
	b = append(b, "ACK:"...)
	b = append(b, a.Product.String()...)
	return append(b, '\n')
}

// Trade is broadcast to every connected client when a match occurs.
type Trade struct {
	Product Product
}

func (t Trade) Append(b []byte) []byte {
	b = append(b, "TRADE:"...)
	b = append(b, t.Product.String()...)
	return append(b, '\n')
}
