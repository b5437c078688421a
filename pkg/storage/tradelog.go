// Package storage holds the pebble-backed trade tape. Only executed
// trades are recorded; the relay keeps no order history.
package storage

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"time"

	"github.com/cockroachdb/pebble"

	"github.com/jmoon-dev/greenwire/pkg/wire"
)

var tradePrefix = []byte("t:")

// keys: t:<8-byte big-endian seq>
func kTrade(seq uint64) []byte {
	key := make([]byte, 0, len(tradePrefix)+8)
	key = append(key, tradePrefix...)
	return binary.BigEndian.AppendUint64(key, seq)
}

func keyUpperBound(prefix []byte) []byte {
	end := append([]byte(nil), prefix...)
	end[len(end)-1]++
	return end
}

// TradeEntry is one persisted trade.
type TradeEntry struct {
	Seq     uint64 `json:"seq"`
	Product string `json:"product"`
	Time    int64  `json:"ts"`
}

// TradeLog is an append-only tape of executed trades. Record runs on the
// acceptor loop only; Recent may be called concurrently from the API.
type TradeLog struct {
	db  *pebble.DB
	seq uint64
}

func OpenTradeLog(path string) (*TradeLog, error) {
	db, err := pebble.Open(path, &pebble.Options{})
	if err != nil {
		return nil, fmt.Errorf("open trade log: %w", err)
	}

	l := &TradeLog{db: db}
	if err := l.resumeSeq(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return l, nil
}

func (l *TradeLog) Close() error { return l.db.Close() }

// resumeSeq continues numbering after the last persisted trade.
func (l *TradeLog) resumeSeq() error {
	iter, err := l.db.NewIter(&pebble.IterOptions{
		LowerBound: tradePrefix,
		UpperBound: keyUpperBound(tradePrefix),
	})
	if err != nil {
		return fmt.Errorf("trade log iter: %w", err)
	}
	defer iter.Close()

	if iter.Last() && iter.Valid() {
		key := iter.Key()
		l.seq = binary.BigEndian.Uint64(key[len(tradePrefix):]) + 1
	}
	return nil
}

// Record appends one trade, synced to disk.
func (l *TradeLog) Record(product wire.Product) error {
	entry := TradeEntry{
		Seq:     l.seq,
		Product: product.String(),
		Time:    time.Now().UnixMilli(),
	}
	val, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshal trade: %w", err)
	}
	if err := l.db.Set(kTrade(l.seq), val, pebble.Sync); err != nil {
		return fmt.Errorf("append trade: %w", err)
	}
	l.seq++
	return nil
}

// Recent returns up to n trades, newest first.
func (l *TradeLog) Recent(n int) ([]TradeEntry, error) {
	iter, err := l.db.NewIter(&pebble.IterOptions{
		LowerBound: tradePrefix,
		UpperBound: keyUpperBound(tradePrefix),
	})
	if err != nil {
		return nil, fmt.Errorf("trade log iter: %w", err)
	}
	defer iter.Close()

	var out []TradeEntry
	for ok := iter.Last(); ok && len(out) < n; ok = iter.Prev() {
		var entry TradeEntry
		if err := json.Unmarshal(iter.Value(), &entry); err != nil {
			continue // skip invalid entries
		}
		out = append(out, entry)
	}
	return out, nil
}
