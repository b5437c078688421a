package relay

import "github.com/jmoon-dev/greenwire/pkg/wire"

// Book is the per-product aggregate of outstanding orders. It tracks only
// counts: no prices, no quantities, no per-order identity. A match against
// "the oldest resting order" is therefore an aggregate decrement, not a
// queue pop.
type Book struct {
	Buys  uint64
	Sells uint64
}

// Matcher is the count-based matching engine. It is synchronous, performs
// no I/O and cannot fail. The acceptor owns it exclusively; it is never
// touched concurrently.
//
// Invariant: after every Apply, Buys == 0 || Sells == 0 holds for each
// book, because an incoming order always drains the opposite side before
// resting.
type Matcher struct {
	books map[wire.Product]*Book
}

func NewMatcher() *Matcher {
	return &Matcher{books: make(map[wire.Product]*Book)}
}

func (m *Matcher) book(product wire.Product) *Book {
	b, ok := m.books[product]
	if !ok {
		b = &Book{}
		m.books[product] = b
	}
	return b
}

// Apply runs one order through the engine. It returns the resulting trade
// and true when the order matched a resting opposite order; otherwise the
// order rests and the zero trade with false is returned.
func (m *Matcher) Apply(side wire.Side, product wire.Product) (wire.Trade, bool) {
	b := m.book(product)
	if side == wire.Buy {
		if b.Sells > 0 {
			b.Sells--
			return wire.Trade{Product: product}, true
		}
		b.Buys++
		return wire.Trade{}, false
	}
	if b.Buys > 0 {
		b.Buys--
		return wire.Trade{Product: product}, true
	}
	b.Sells++
	return wire.Trade{}, false
}

// Counts reports the resting order counts for a product. Products never
// seen report zero on both sides.
func (m *Matcher) Counts(product wire.Product) (buys, sells uint64) {
	if b, ok := m.books[product]; ok {
		return b.Buys, b.Sells
	}
	return 0, 0
}
