package relay

import (
	"sync"

	"github.com/jmoon-dev/greenwire/pkg/wire"
)

// BookCounts mirrors one product's resting counts for observers.
type BookCounts struct {
	Buys  uint64 `json:"buys"`
	Sells uint64 `json:"sells"`
}

// Snapshot is a point-in-time copy of the relay's counters.
type Snapshot struct {
	Clients int                   `json:"clients"`
	Orders  uint64                `json:"orders"`
	Trades  uint64                `json:"trades"`
	Books   map[string]BookCounts `json:"books"`
}

// Stats is the read-only view served by the observability API. The
// acceptor loop is the only writer; the matcher itself is never shared,
// its counts are mirrored here after each order.
type Stats struct {
	mu      sync.RWMutex
	clients int
	orders  uint64
	trades  uint64
	books   map[wire.Product]BookCounts
}

func NewStats() *Stats {
	return &Stats{books: make(map[wire.Product]BookCounts)}
}

func (s *Stats) clientConnected() {
	s.mu.Lock()
	s.clients++
	s.mu.Unlock()
}

func (s *Stats) clientDisconnected() {
	s.mu.Lock()
	s.clients--
	s.mu.Unlock()
}

func (s *Stats) orderProcessed(product wire.Product, buys, sells uint64, matched bool) {
	s.mu.Lock()
	s.orders++
	if matched {
		s.trades++
	}
	s.books[product] = BookCounts{Buys: buys, Sells: sells}
	s.mu.Unlock()
}

// Snapshot returns a copy safe to serialize outside the lock.
func (s *Stats) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snap := Snapshot{
		Clients: s.clients,
		Orders:  s.orders,
		Trades:  s.trades,
		Books:   make(map[string]BookCounts, len(s.books)),
	}
	for p, b := range s.books {
		snap.Books[p.String()] = b
	}
	return snap
}
