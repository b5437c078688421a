package storage

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmoon-dev/greenwire/pkg/wire"
)

func TestTradeLog_RecordAndRecent(t *testing.T) {
	l, err := OpenTradeLog(t.TempDir())
	require.NoError(t, err)
	defer l.Close()

	require.NoError(t, l.Record(wire.Apple))
	require.NoError(t, l.Record(wire.Pear))
	require.NoError(t, l.Record(wire.Onion))

	recent, err := l.Recent(2)
	require.NoError(t, err)
	require.Len(t, recent, 2)

	// Newest first.
	assert.Equal(t, "ONION", recent[0].Product)
	assert.Equal(t, uint64(2), recent[0].Seq)
	assert.Equal(t, "PEAR", recent[1].Product)
	assert.Equal(t, uint64(1), recent[1].Seq)
}

func TestTradeLog_RecentOnEmptyLog(t *testing.T) {
	l, err := OpenTradeLog(t.TempDir())
	require.NoError(t, err)
	defer l.Close()

	recent, err := l.Recent(10)
	require.NoError(t, err)
	assert.Empty(t, recent)
}

func TestTradeLog_SeqResumesAcrossReopen(t *testing.T) {
	dir := t.TempDir()

	l, err := OpenTradeLog(dir)
	require.NoError(t, err)
	require.NoError(t, l.Record(wire.Tomato))
	require.NoError(t, l.Record(wire.Tomato))
	require.NoError(t, l.Close())

	l, err = OpenTradeLog(dir)
	require.NoError(t, err)
	defer l.Close()
	require.NoError(t, l.Record(wire.Potato))

	recent, err := l.Recent(3)
	require.NoError(t, err)
	require.Len(t, recent, 3)
	assert.Equal(t, uint64(2), recent[0].Seq, "numbering continues after reopen")
	assert.Equal(t, "POTATO", recent[0].Product)
}
