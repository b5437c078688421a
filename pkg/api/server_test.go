package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmoon-dev/greenwire/pkg/relay"
	"github.com/jmoon-dev/greenwire/pkg/storage"
)

type fakeStats struct {
	snap relay.Snapshot
}

func (f *fakeStats) Snapshot() relay.Snapshot { return f.snap }

type fakeTrades struct {
	entries []storage.TradeEntry
	err     error
}

func (f *fakeTrades) Recent(n int) ([]storage.TradeEntry, error) {
	if f.err != nil {
		return nil, f.err
	}
	if n < len(f.entries) {
		return f.entries[:n], nil
	}
	return f.entries, nil
}

func getJSON(t *testing.T, url string, out interface{}) *http.Response {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	return resp
}

func TestHealth(t *testing.T) {
	s := NewServer(&fakeStats{}, nil)
	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	var body map[string]string
	resp := getJSON(t, ts.URL+"/health", &body)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", body["status"])
}

func TestGetBooksListsEveryProduct(t *testing.T) {
	stats := &fakeStats{snap: relay.Snapshot{
		Books: map[string]relay.BookCounts{
			"APPLE": {Buys: 2},
			"ONION": {Sells: 1},
		},
	}}
	s := NewServer(stats, nil)
	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	var books []BookInfo
	getJSON(t, ts.URL+"/api/v1/books", &books)

	require.Len(t, books, 5, "every product appears, traded or not")
	assert.Equal(t, BookInfo{Product: "APPLE", Buys: 2}, books[0])
	assert.Equal(t, BookInfo{Product: "ONION", Sells: 1}, books[4])
}

func TestGetStats(t *testing.T) {
	stats := &fakeStats{snap: relay.Snapshot{Clients: 3, Orders: 10, Trades: 4}}
	s := NewServer(stats, nil)
	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	var snap relay.Snapshot
	getJSON(t, ts.URL+"/api/v1/stats", &snap)
	assert.Equal(t, 3, snap.Clients)
	assert.Equal(t, uint64(10), snap.Orders)
	assert.Equal(t, uint64(4), snap.Trades)
}

func TestGetTrades(t *testing.T) {
	trades := &fakeTrades{entries: []storage.TradeEntry{
		{Seq: 1, Product: "PEAR", Time: 1700000000000},
		{Seq: 0, Product: "APPLE", Time: 1699999999000},
	}}
	s := NewServer(&fakeStats{}, trades)
	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	var got []TradeInfo
	getJSON(t, ts.URL+"/api/v1/trades?limit=1", &got)
	require.Len(t, got, 1)
	assert.Equal(t, TradeInfo{Seq: 1, Product: "PEAR", Timestamp: 1700000000000}, got[0])
}

func TestGetTradesWhenTapeDisabled(t *testing.T) {
	s := NewServer(&fakeStats{}, nil)
	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/api/v1/trades")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestGetTradesBadLimit(t *testing.T) {
	s := NewServer(&fakeStats{}, &fakeTrades{})
	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/api/v1/trades?limit=zero")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestGetTradesReadFailure(t *testing.T) {
	s := NewServer(&fakeStats{}, &fakeTrades{err: errors.New("disk gone")})
	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/api/v1/trades")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
}
