package trace

import (
	"bufio"
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSinkWritesJSONLines(t *testing.T) {
	var buf bytes.Buffer
	s := NewSink(&buf)
	require.NoError(t, s.Write(Entry{Cycle: 1, PC: 0x0400, Mnemonic: "LDA", A: 0x42}))
	require.NoError(t, s.Write(Entry{Cycle: 3, PC: 0x0402, Mnemonic: "STA"}))

	scanner := bufio.NewScanner(&buf)
	var entries []Entry
	for scanner.Scan() {
		var e Entry
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &e))
		entries = append(entries, e)
	}
	require.Len(t, entries, 2)
	assert.Equal(t, uint16(0x0400), entries[0].PC)
	assert.Equal(t, uint8(0x42), entries[0].A)
	assert.Equal(t, "STA", entries[1].Mnemonic)
}

func TestRingKeepsLastN(t *testing.T) {
	r := NewRing(3)
	assert.Empty(t, r.Entries())

	r.Add(Entry{Cycle: 1})
	r.Add(Entry{Cycle: 2})
	got := r.Entries()
	require.Len(t, got, 2)
	assert.Equal(t, uint64(1), got[0].Cycle)

	r.Add(Entry{Cycle: 3})
	r.Add(Entry{Cycle: 4})
	r.Add(Entry{Cycle: 5})
	got = r.Entries()
	require.Len(t, got, 3)
	assert.Equal(t, uint64(3), got[0].Cycle)
	assert.Equal(t, uint64(5), got[2].Cycle)
}

func TestZeroCapacityRing(t *testing.T) {
	r := NewRing(0)
	r.Add(Entry{Cycle: 1})
	assert.Empty(t, r.Entries())
}
