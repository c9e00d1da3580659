package lss

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeTrack serves a fixed bit pattern, looping forever.
type fakeTrack struct {
	bits []byte
	pos  int
}

func (f *fakeTrack) NextBit(phase160 int) int {
	b := f.bits[f.pos%len(f.bits)]
	f.pos++
	return int(b)
}

// nibbleBits serializes disk nibbles the way a drive head would see them:
// 8 data bits MSB-first, then the given number of trailing sync zeros.
func nibbleBits(syncBits int, nibbles ...byte) []byte {
	var out []byte
	for _, n := range nibbles {
		for i := 7; i >= 0; i-- {
			out = append(out, (n>>uint(i))&1)
		}
		for i := 0; i < syncBits; i++ {
			out = append(out, 0)
		}
	}
	return out
}

// readNibbles clocks the engine in read mode (Q6 and Q7 low) for pulses
// LSS clocks and records each nibble as it completes: the latch's high
// bit marks a full nibble, which the sequencer itself holds for a while
// and then clears before assembling the next one.
func readNibbles(e *Engine, track Track, pulses int) []byte {
	var out []byte
	prev := uint8(0)
	for i := 0; i < pulses; i++ {
		e.OnPulse(false, false, true, 0, track)
		if e.Latch&0x80 != 0 && (prev&0x80 == 0 || e.Latch != prev) {
			out = append(out, e.Latch)
		}
		prev = e.Latch
	}
	return out
}

func TestReadAssemblesNibbles(t *testing.T) {
	// Five self-sync FFs then an address prologue with no sync bits between
	// its nibbles, as DOS lays it down. Nothing here ever produces three
	// consecutive zero bits (AA ends in a zero, so a sync gap after it
	// would), which keeps the weak-bit randomizer out of the picture and
	// the sequence deterministic.
	bits := nibbleBits(2, 0xff, 0xff, 0xff, 0xff, 0xff)
	bits = append(bits, nibbleBits(0, 0xd5, 0xaa, 0x96)...)
	track := &fakeTrack{bits: bits}

	e := &Engine{}
	// One bit is consumed every 8 LSS clocks; run enough pulses to loop
	// the pattern a few times.
	got := readNibbles(e, track, len(track.bits)*8*3)

	require.NotEmpty(t, got)
	// Find the prologue in the consumed stream.
	found := false
	for i := 0; i+2 < len(got); i++ {
		if got[i] == 0xd5 && got[i+1] == 0xaa && got[i+2] == 0x96 {
			found = true
			break
		}
	}
	assert.True(t, found, "expected D5 AA 96 in consumed nibbles, got % 02X", got)
}

func TestMotorOffHoldsEngine(t *testing.T) {
	track := &fakeTrack{bits: nibbleBits(0, 0xff)}
	e := &Engine{}
	for i := 0; i < 100; i++ {
		e.OnPulse(false, false, false, 0, track)
	}
	assert.Zero(t, track.pos, "no bits may be consumed with the motor off")
	assert.Zero(t, e.Latch)
}

func TestNilTrackIsSafe(t *testing.T) {
	e := &Engine{}
	for i := 0; i < 100; i++ {
		e.OnPulse(false, false, true, 0, nil)
	}
	assert.Zero(t, e.Latch)
}

func TestResetClearsHighBitAndState(t *testing.T) {
	e := &Engine{}
	e.Latch = 0xd5
	e.state = 7
	e.Reset()
	assert.Equal(t, uint8(0x55), e.Latch)
	assert.Zero(t, e.state)
}
